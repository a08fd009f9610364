package store

import (
	"sort"
	"strings"

	"github.com/antzucaro/matchr"
)

// maxNameDistance is the edit-distance cutoff beyond which a name is
// considered a different person rather than a misspelling.
const maxNameDistance = 3

// RankPatients fuzzily matches query against candidates and returns the
// closest matches first (distance, then name for determinism). Matching is
// case-insensitive; a substring hit counts as distance zero so partial names
// typed by the clinician still find the record.
func RankPatients(query string, candidates []Patient, limit int) []PatientMatch {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return nil
	}

	var out []PatientMatch
	for _, p := range candidates {
		name := strings.ToLower(p.Name)
		var dist int
		if !strings.Contains(name, q) {
			dist = matchr.DamerauLevenshtein(q, name)
			if dist > maxNameDistance {
				continue
			}
		}
		out = append(out, PatientMatch{Patient: p, Distance: dist})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Distance != out[j].Distance {
			return out[i].Distance < out[j].Distance
		}
		return out[i].Patient.Name < out[j].Patient.Name
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
