package model

// Pair is the public projection of one line of a data partition.
// Nothing else from the stored record leaves the data reader.
type Pair struct {
	Question    string `json:"question"`
	Answer      string `json:"answer"`
	Category    string `json:"category,omitempty"`
	Fingerprint string `json:"fingerprint,omitempty"`
	DataTier    string `json:"data_tier,omitempty"`
	Vertical    string `json:"vertical,omitempty"`
}

// Catalog mirrors catalog.json as written by the export jobs.
type Catalog struct {
	Vaults map[string]CatalogVault `json:"vaults"`
}

type CatalogVault struct {
	Tiers map[string]CatalogTier `json:"tiers"`
}

type CatalogTier struct {
	Specialties []CatalogSpecialty `json:"specialties"`
}

type CatalogSpecialty struct {
	Specialty string `json:"specialty"`
	Count     int64  `json:"count,omitempty"`
}

// SubCategories lists the sub-categories the catalog knows for category and tier.
func (c *Catalog) SubCategories(category, tier string) []string {
	if c == nil {
		return nil
	}
	vault, ok := c.Vaults[category]
	if !ok {
		return nil
	}
	t, ok := vault.Tiers[tier]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(t.Specialties))
	for _, s := range t.Specialties {
		if s.Specialty != "" {
			out = append(out, s.Specialty)
		}
	}
	return out
}
