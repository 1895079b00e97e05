// Package llm defines the black-box external extraction/relationship
// function EX and RB call per chunk (§6 "External interfaces: the LLM/NER
// provider is treated as a black box behind a narrow interface"), and a
// concrete implementation backed by the Anthropic API. Nothing above this
// package depends on the Anthropic SDK directly, so the extractor and
// relationship builder can be tested against a fake Client.
package llm

import (
	"context"
)

// MentionCandidate is one entity span the provider extracted from a chunk,
// prior to any dedup/whitelist/span-validation policy in EX (§4.4).
type MentionCandidate struct {
	Text        string
	Type        string
	Confidence  float64
	StartOffset int
	EndOffset   int
}

// RelationshipCandidate is one directed edge the provider proposed between
// two mention texts within a chunk, prior to RB's mention-to-canonical
// projection (§4.6).
type RelationshipCandidate struct {
	FromText   string
	ToText     string
	Type       string
	Confidence float64
	Evidence   string
}

// Client is the black-box extraction/relationship function (§6). Both
// methods take the full chunk text and return structured candidates; the
// provider is free to use any internal prompt/model, and callers treat it
// as opaque.
type Client interface {
	ExtractEntities(ctx context.Context, chunkText string) ([]MentionCandidate, error)
	ExtractRelationships(ctx context.Context, chunkText string, knownEntities []string) ([]RelationshipCandidate, error)
}
