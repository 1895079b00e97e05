package resolver

import (
	"sort"
	"strings"

	"github.com/agext/levenshtein"
)

// DefaultFuzzyThreshold is the merge threshold from §4.5 step 4.
const DefaultFuzzyThreshold = 0.85

// editDistanceRatio returns agext/levenshtein's normalized similarity in
// [0,1], 1 meaning identical strings.
func editDistanceRatio(a, b string) float64 {
	if a == "" && b == "" {
		return 1
	}
	return levenshtein.Match(a, b, nil)
}

// tokenSetRatio compares two strings as unordered word sets: the fraction
// of the smaller token set that also appears in the larger, a cheap proxy
// for "same entity, different word order/extra tokens" (e.g. "Smith John"
// vs "John Smith", or "Acme Shipping" vs "Acme Shipping Corp"). Tokens are
// split on whitespace only, so punctuation stays attached ("Smith," is not
// "Smith").
func tokenSetRatio(a, b string) float64 {
	setA := tokenSet(a)
	setB := tokenSet(b)
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}

	smaller, larger := setA, setB
	if len(larger) < len(smaller) {
		smaller, larger = larger, smaller
	}

	shared := 0
	for tok := range smaller {
		if larger[tok] {
			shared++
		}
	}
	return float64(shared) / float64(len(smaller))
}

func tokenSet(s string) map[string]bool {
	out := make(map[string]bool)
	for _, tok := range strings.Fields(strings.ToLower(s)) {
		out[tok] = true
	}
	return out
}

// similarity blends edit-distance and token-set ratios (§4.5 step 4:
// "edit-distance ratio + token-set ratio"), averaged equally.
func similarity(a, b string) float64 {
	return (editDistanceRatio(a, b) + tokenSetRatio(a, b)) / 2
}

// sortedKeys is a small helper so cluster iteration order is deterministic
// regardless of map iteration order, which Go does not guarantee.
func sortedKeys(m map[string][]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
