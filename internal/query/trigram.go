package query

import (
	"strings"
	"unicode"
)

// trigramSimilarity returns the Jaccard similarity of the trigram sets
// of a and b, in [0, 1]. Strings are lowercased and split into
// alphanumeric words; each word is padded with two leading and one
// trailing space before trigram extraction, so word starts weigh more
// than word interiors. Matches the convention of trigram text indexes,
// which is what the default 0.3 fuzzy threshold is calibrated against.
func trigramSimilarity(a, b string) float64 {
	ta := trigrams(a)
	tb := trigrams(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}

	intersection := 0
	for t := range ta {
		if _, ok := tb[t]; ok {
			intersection++
		}
	}
	union := len(ta) + len(tb) - intersection
	return float64(intersection) / float64(union)
}

// trigrams extracts the padded trigram set of s.
func trigrams(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, word := range splitWords(s) {
		padded := []rune("  " + word + " ")
		for i := 0; i+3 <= len(padded); i++ {
			set[string(padded[i:i+3])] = struct{}{}
		}
	}
	return set
}

// splitWords lowercases s and splits it on any non-alphanumeric rune.
func splitWords(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
