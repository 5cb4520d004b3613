package screen

import (
	"strings"

	"github.com/xrash/smetrics"
)

// DuplicateThreshold is the Jaro-Winkler score at or above which two
// normalized titles are treated as the same record.
const DuplicateThreshold = 0.95

// Jaro-Winkler prefix parameters (standard values).
const (
	jwBoostThreshold = 0.7
	jwPrefixSize     = 4
)

// Record is the minimal view of a paper the duplicate matcher needs.
type Record struct {
	ID    string
	Title string
}

// FindDuplicates maps each record ID to the ID of the earlier record it
// duplicates, or to "" if the record is kept as an original.
//
// Input order is significant: each record is compared against the originals
// kept so far, in insertion order, and the first original scoring >=
// DuplicateThreshold wins (not the best match). Records with empty titles
// are never compared and are always kept as originals.
func FindDuplicates(records []Record) map[string]string {
	result := make(map[string]string, len(records))

	type original struct {
		id   string
		norm string
	}
	var originals []original

	for _, r := range records {
		norm := normalizeTitle(r.Title)
		duplicateOf := ""

		if norm != "" {
			for _, o := range originals {
				if smetrics.JaroWinkler(norm, o.norm, jwBoostThreshold, jwPrefixSize) >= DuplicateThreshold {
					duplicateOf = o.id
					break
				}
			}
		}

		if duplicateOf == "" {
			originals = append(originals, original{id: r.ID, norm: norm})
		}
		result[r.ID] = duplicateOf
	}

	return result
}

func normalizeTitle(title string) string {
	return strings.ToLower(strings.TrimSpace(title))
}
