// Package similarity provides normalized string similarity scoring for
// supplier names and product descriptions.
//
// Scores are in [0, 1], symmetric, and deterministic. Comparison is
// token-set based rather than pure edit distance so that reordered or
// re-punctuated descriptions ("Microcrystalline Cellulose" vs
// "cellulose, microcrystalline") still score highly.
package similarity

import (
	"sort"
	"strings"
	"unicode"

	"github.com/agext/levenshtein"
)

// Score computes the similarity between two text fields. It is symmetric,
// returns 1.0 for identical inputs after normalization, and 0.0 when
// either side normalizes to nothing while the other does not.
func Score(a, b string) float64 {
	ta := Tokenize(a)
	tb := Tokenize(b)

	if len(ta) == 0 && len(tb) == 0 {
		return 1.0
	}
	if len(ta) == 0 || len(tb) == 0 {
		return 0.0
	}

	sorted := levenshtein.Similarity(joinSorted(ta), joinSorted(tb), nil)
	set := tokenSetScore(ta, tb)

	if set > sorted {
		return set
	}
	return sorted
}

// Tokenize lowercases the input, treats any non-alphanumeric rune as a
// separator, and returns the resulting tokens.
func Tokenize(s string) []string {
	lowered := strings.ToLower(s)
	return strings.FieldsFunc(lowered, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

// Normalize returns the canonical comparison form of a text field:
// lowercased tokens, sorted, joined by single spaces.
func Normalize(s string) string {
	return joinSorted(Tokenize(s))
}

func joinSorted(tokens []string) string {
	sorted := make([]string, len(tokens))
	copy(sorted, tokens)
	sort.Strings(sorted)
	return strings.Join(sorted, " ")
}

// tokenSetScore averages, in both directions, each token's best
// edit-distance similarity against the other token set. Averaging both
// directions keeps the score symmetric when the sets differ in size.
func tokenSetScore(a, b []string) float64 {
	return (directedMean(a, b) + directedMean(b, a)) / 2
}

func directedMean(from, to []string) float64 {
	var sum float64
	for _, token := range from {
		sum += bestTokenMatch(token, to)
	}
	return sum / float64(len(from))
}

func bestTokenMatch(token string, candidates []string) float64 {
	best := 0.0
	for _, candidate := range candidates {
		if token == candidate {
			return 1.0
		}
		if s := levenshtein.Similarity(token, candidate, nil); s > best {
			best = s
		}
	}
	return best
}

// BestMatch returns the highest Score of query against any of the given
// candidates, along with the index of that candidate. Returns -1 when
// candidates is empty.
func BestMatch(query string, candidates []string) (float64, int) {
	best := 0.0
	bestIdx := -1
	for i, candidate := range candidates {
		if s := Score(query, candidate); bestIdx == -1 || s > best {
			best = s
			bestIdx = i
		}
	}
	if bestIdx == -1 {
		return 0.0, -1
	}
	return best, bestIdx
}
