// Package strings holds list helpers used when parsing configuration.
package strings

import (
	"strings"
)

// SplitList splits s on sep and returns the trimmed, non-empty items with
// duplicates removed. Order is preserved and an empty input yields nil.
//
//	SplitList("k1:9092, k2:9092,,k1:9092", ",")
//	// []string{"k1:9092", "k2:9092"}
func SplitList(s, sep string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	out := DedupeAndTrim(strings.Split(s, sep))
	if len(out) == 0 {
		return nil
	}
	return out
}

// DedupeAndTrim removes duplicates and blank entries, trimming whitespace from
// each element. Order is preserved.
func DedupeAndTrim(values []string) []string {
	if len(values) == 0 {
		return values
	}

	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))
	for _, v := range values {
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; !ok {
			seen[trimmed] = struct{}{}
			result = append(result, trimmed)
		}
	}
	return result
}
