package partition

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"math/big"
	"sort"
	"strings"

	"swarmgate/internal/apierr"
	"swarmgate/internal/blob"
	"swarmgate/internal/config"
	"swarmgate/internal/model"

	"github.com/tidwall/gjson"
)

const (
	catalogObject = "catalog.json"
	samplesObject = "samples.jsonl"
	countObject   = "count.json"
)

// Available lists the sub-categories the catalog knows for category and
// tier. Lookup failures yield nil.
func (r *Reader) Available(ctx context.Context, category, tier string) []string {
	var locs []location
	if c, ok := r.categories[category]; ok {
		locs = append(locs, location{store: storeName(c.Store), key: c.Prefix + catalogObject})
	}
	if r.legacy {
		locs = append(locs, location{store: DefaultStore, key: catalogObject})
	}

	for _, loc := range locs {
		obj, err := r.get(ctx, loc.store, loc.key)
		if err != nil {
			continue
		}
		var catalog model.Catalog
		if err := json.Unmarshal(obj.Data, &catalog); err != nil {
			r.logger.Warn("Ignoring unreadable catalog", "store", loc.store, "object", loc.key, "error", err)
			continue
		}
		if subs := catalog.SubCategories(category, tier); len(subs) > 0 {
			return subs
		}
	}
	return nil
}

// Verticals lists the configured site verticals.
func (r *Reader) Verticals() []string {
	out := make([]string, 0, len(r.verticals))
	for name := range r.verticals {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func (r *Reader) vertical(name string) (string, config.CategoryConfig, error) {
	name = strings.ToLower(name)
	if name == "" {
		name = r.defaultVertical
	}
	v, ok := r.verticals[name]
	if !ok {
		available := r.Verticals()
		return name, v, apierr.BadRequest(apierr.ReasonInvalidParameter, "Invalid vertical. Use: "+strings.Join(available, ", ")).
			With("available_verticals", available)
	}
	return name, v, nil
}

// Catalog returns the raw catalog document of a vertical.
func (r *Reader) Catalog(ctx context.Context, vertical string) ([]byte, error) {
	name, v, err := r.vertical(vertical)
	if err != nil {
		return nil, err
	}
	obj, err := r.get(ctx, storeName(v.Store), v.Prefix+catalogObject)
	if errors.Is(err, blob.ErrNotFound) {
		return nil, apierr.NotFound(apierr.ReasonNotFound, "Catalog not found for vertical: "+name).With("vertical", name)
	}
	if err != nil {
		return nil, err
	}
	return obj.Data, nil
}

// SampleResult is a random selection of public sample pairs.
type SampleResult struct {
	Vertical  string
	Specialty string
	Pairs     []model.Pair
}

// Sample returns up to the configured sample size of randomly chosen pairs
// from a vertical's samples, optionally restricted to one specialty.
func (r *Reader) Sample(ctx context.Context, vertical, specialty string) (*SampleResult, error) {
	name, v, err := r.vertical(vertical)
	if err != nil {
		return nil, err
	}
	obj, err := r.get(ctx, storeName(v.Store), v.Prefix+samplesObject)
	if errors.Is(err, blob.ErrNotFound) {
		return nil, apierr.NotFound(apierr.ReasonNotFound, "Samples not available for vertical: "+name).With("vertical", name)
	}
	if err != nil {
		return nil, err
	}

	lines := splitLines(obj.Data)
	if specialty != "" {
		filtered := lines[:0]
		for _, line := range lines {
			if gjson.Get(line, "specialty").String() == specialty {
				filtered = append(filtered, line)
			}
		}
		lines = filtered
	}
	if err := shuffle(lines); err != nil {
		return nil, apierr.Wrap(apierr.KindInternal, apierr.ReasonInternal, "Server error.", err)
	}
	if len(lines) > r.sampleSize {
		lines = lines[:r.sampleSize]
	}

	res := &SampleResult{Vertical: name, Specialty: specialty, Pairs: make([]model.Pair, 0, len(lines))}
	for _, line := range lines {
		p := project(line, "", "")
		p.Vertical = name
		res.Pairs = append(res.Pairs, p)
	}
	return res, nil
}

// shuffle is a Fisher-Yates shuffle driven by crypto/rand.
func shuffle(lines []string) error {
	for i := len(lines) - 1; i > 0; i-- {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(i+1)))
		if err != nil {
			return err
		}
		j := int(n.Int64())
		lines[i], lines[j] = lines[j], lines[i]
	}
	return nil
}

// Counts returns the record counts ledger. When the ledger is missing,
// unreadable or reports no records, the configured fallback is returned.
func (r *Reader) Counts(ctx context.Context) map[string]interface{} {
	obj, err := r.get(ctx, DefaultStore, countObject)
	if err == nil && gjson.GetBytes(obj.Data, "total").Float() > 0 {
		var counts map[string]interface{}
		jsonErr := json.Unmarshal(obj.Data, &counts)
		if jsonErr == nil {
			counts["source"] = "ledger"
			return counts
		}
		r.logger.Warn("Ignoring unreadable count ledger", "error", jsonErr)
	} else if err != nil && !errors.Is(err, blob.ErrNotFound) {
		r.logger.Warn("Count ledger unavailable, serving fallback", "error", err)
	}

	out := make(map[string]interface{}, len(r.fallbackCounts)+1)
	for k, v := range r.fallbackCounts {
		out[k] = v
	}
	out["source"] = "fallback"
	return out
}
