package llm

import (
	"context"
	"regexp"
	"strings"
)

// LocalClient is the local-fallback NER routine EX switches to once the
// remote Client has failed K consecutive times (§4.4). It is a conservative
// pattern-based recognizer, not a model: no third-party NER/NLP library
// appears anywhere in the retrieved example pack, so this is written
// against the standard library only (see DESIGN.md for the justification
// of this specific stdlib-only component). Recall is intentionally lower
// than the remote model's; the whole point of the fallback is to keep the
// pipeline moving in degraded mode, not to match remote-quality accuracy.
type LocalClient struct{}

func NewLocalClient() *LocalClient { return &LocalClient{} }

var (
	moneyPattern = regexp.MustCompile(`\$\s?[0-9][0-9,]*(?:\.[0-9]{2})?`)
	datePattern  = regexp.MustCompile(`\b(?:January|February|March|April|May|June|July|August|September|October|November|December)\s+\d{1,2},\s+\d{4}\b`)
	// capitalizedRun matches runs of 2+ Title-Case words, a cheap proxy for
	// person/org names in English legal prose.
	capitalizedRun = regexp.MustCompile(`\b([A-Z][a-z]+(?:\s+[A-Z][a-z]+)+)\b`)
)

// ExtractEntities implements Client with regex heuristics for MONEY, DATE
// and a capitalized-run proxy for PERSON/ORG (§4.4 local fallback).
func (l *LocalClient) ExtractEntities(ctx context.Context, chunkText string) ([]MentionCandidate, error) {
	var out []MentionCandidate

	for _, loc := range moneyPattern.FindAllStringIndex(chunkText, -1) {
		out = append(out, MentionCandidate{
			Text: chunkText[loc[0]:loc[1]], Type: "MONEY", Confidence: 0.6,
			StartOffset: loc[0], EndOffset: loc[1],
		})
	}
	for _, loc := range datePattern.FindAllStringIndex(chunkText, -1) {
		out = append(out, MentionCandidate{
			Text: chunkText[loc[0]:loc[1]], Type: "DATE", Confidence: 0.6,
			StartOffset: loc[0], EndOffset: loc[1],
		})
	}
	for _, loc := range capitalizedRun.FindAllStringIndex(chunkText, -1) {
		text := chunkText[loc[0]:loc[1]]
		entType := "PERSON"
		if looksLikeOrg(text) {
			entType = "ORG"
		}
		out = append(out, MentionCandidate{
			Text: text, Type: entType, Confidence: 0.4,
			StartOffset: loc[0], EndOffset: loc[1],
		})
	}
	return out, nil
}

var orgSuffixes = []string{"Inc", "LLC", "Corp", "Corporation", "Company", "Co", "Ltd", "LLP", "Partners"}

func looksLikeOrg(text string) bool {
	for _, suf := range orgSuffixes {
		if strings.HasSuffix(text, suf) {
			return true
		}
	}
	return false
}

// ExtractRelationships implements Client. The local fallback does not
// attempt relationship extraction and always returns no candidates. RB is
// built on the remote client, so an open circuit reaches RB as a client
// error and fails its stage; RB runs on this client only when no remote
// provider is configured, and then stages no relationships.
func (l *LocalClient) ExtractRelationships(ctx context.Context, chunkText string, knownEntities []string) ([]RelationshipCandidate, error) {
	return nil, nil
}
