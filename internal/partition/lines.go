package partition

import (
	"bytes"

	"swarmgate/internal/model"

	"github.com/tidwall/gjson"
)

// splitLines returns the servable records of a partition. Blank lines and
// lines that are not valid JSON are not records.
func splitLines(data []byte) []string {
	var out []string
	for _, raw := range bytes.Split(data, []byte("\n")) {
		line := bytes.TrimSpace(raw)
		if len(line) == 0 || !gjson.ValidBytes(line) {
			continue
		}
		out = append(out, string(line))
	}
	return out
}

// project reduces a stored line to its public fields.
func project(line, subCategory, dataTier string) model.Pair {
	f := gjson.GetMany(line, "question", "answer", "specialty", "category", "fingerprint", "tier", "data_tier")
	return model.Pair{
		Question:    f[0].String(),
		Answer:      f[1].String(),
		Category:    firstOf(f[2].String(), f[3].String(), subCategory),
		Fingerprint: f[4].String(),
		DataTier:    firstOf(f[5].String(), f[6].String(), dataTier),
	}
}

func firstOf(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
