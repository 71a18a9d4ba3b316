package ingestion

import (
	"regexp"
	"sort"
	"strings"
)

var (
	parentheticalSuffix = regexp.MustCompile(`\s*\([^)]*\)\s*$`)
	nonAlnumRun         = regexp.MustCompile(`[^a-z0-9]+`)
)

// NormalizeHeader turns a partner column header into a comparable key:
// first line only, lowercased, trailing parenthetical dropped, punctuation collapsed to "_".
// "Date of Birth (MM/DD/YYYY)" becomes "date_of_birth".
func NormalizeHeader(header string) string {
	h := strings.TrimPrefix(header, "\ufeff")
	if i := strings.IndexAny(h, "\r\n"); i >= 0 {
		h = h[:i]
	}
	h = strings.ToLower(strings.TrimSpace(h))
	if stripped := parentheticalSuffix.ReplaceAllString(h, ""); stripped != "" {
		h = stripped
	}
	h = nonAlnumRun.ReplaceAllString(h, "_")
	return strings.Trim(h, "_")
}

// normalizedKeys maps each header through mappings (case-insensitive on the header's first line)
// and NormalizeHeader.
func normalizedKeys(headers []string, mappings map[string]string) []string {
	lookup := make(map[string]string, len(mappings))
	for partnerCol, canonical := range mappings {
		lookup[strings.ToLower(strings.TrimSpace(partnerCol))] = canonical
	}

	keys := make([]string, len(headers))
	for i, h := range headers {
		first := strings.TrimSpace(strings.SplitN(h, "\n", 2)[0])
		if canonical, ok := lookup[strings.ToLower(first)]; ok {
			keys[i] = canonical
			continue
		}
		keys[i] = NormalizeHeader(h)
	}
	return keys
}

// SortedUnique returns the non-empty keys sorted with duplicates removed.
func SortedUnique(keys []string) []string {
	seen := make(map[string]struct{}, len(keys))
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if k == "" {
			continue
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
