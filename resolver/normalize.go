package resolver

import (
	"strings"
	"unicode"

	"github.com/joeott/legal-doc-processor-sub013/types"
)

// personHonorifics are stripped before computing a PERSON normalized key
// (§4.5 step 2: "honorific removal for PERSON").
var personHonorifics = []string{
	"mr.", "mr", "mrs.", "mrs", "ms.", "ms", "dr.", "dr", "prof.", "prof",
	"judge", "hon.", "hon", "esq.", "esq",
}

// orgLegalSuffixes are normalized away before computing an ORG normalized
// key (§4.5 step 2: "legal-suffix normalization for ORG").
var orgLegalSuffixes = []string{
	"inc.", "inc", "llc", "l.l.c.", "corp.", "corp", "corporation", "co.", "co",
	"ltd.", "ltd", "llp", "l.l.p.", "company", "partners", "lp", "l.p.",
}

// NormalizedKey computes the exact-merge key for a mention (§4.5 step 2):
// casefold, strip punctuation, and apply type-specific normalization.
func NormalizedKey(text string, entityType types.EntityType) string {
	folded := strings.ToLower(strings.TrimSpace(text))
	words := splitWords(folded)

	switch entityType {
	case types.EntityPerson:
		words = removeTokens(words, personHonorifics)
	case types.EntityOrg:
		words = removeTokens(words, orgLegalSuffixes)
	}

	return strings.Join(words, " ")
}

// splitWords tokenizes on punctuation and whitespace, dropping empty tokens
// and bare punctuation so "John Smith," and "John Smith" normalize equal.
func splitWords(s string) []string {
	var words []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			words = append(words, cur.String())
			cur.Reset()
		}
	}
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			cur.WriteRune(r)
		} else {
			flush()
		}
	}
	flush()
	return words
}

func removeTokens(words []string, stop []string) []string {
	stopSet := make(map[string]bool, len(stop))
	for _, s := range stop {
		stopSet[strings.Trim(s, ".")] = true
	}
	out := make([]string, 0, len(words))
	for _, w := range words {
		if stopSet[w] {
			continue
		}
		out = append(out, w)
	}
	return out
}
