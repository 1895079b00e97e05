package relationship_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeott/legal-doc-processor-sub013/llm"
	"github.com/joeott/legal-doc-processor-sub013/relationship"
	"github.com/joeott/legal-doc-processor-sub013/types"
)

func canonicalMention(chunkIdx int, text string, canonicalID uuid.UUID) types.EntityMention {
	return types.EntityMention{
		ID:                uuid.New(),
		ChunkIndex:        chunkIdx,
		Text:              text,
		Type:              types.EntityPerson,
		CanonicalEntityID: &canonicalID,
	}
}

func TestBuild_ProjectsAndDedupsKeepingHighestConfidenceAndFirstEvidence(t *testing.T) {
	docID := uuid.New()
	fromID := uuid.New()
	toID := uuid.New()

	chunks := []types.Chunk{
		{ID: uuid.New(), ChunkIndex: 0, Text: "John Smith sued Acme Corp."},
		{ID: uuid.New(), ChunkIndex: 1, Text: "Acme Corp was sued by John Smith again."},
	}
	mentions := []types.EntityMention{
		canonicalMention(0, "John Smith", fromID),
		canonicalMention(0, "Acme Corp", toID),
		canonicalMention(1, "John Smith", fromID),
		canonicalMention(1, "Acme Corp", toID),
	}
	canonical := []types.CanonicalEntity{
		{ID: fromID, CanonicalName: "John Smith"},
		{ID: toID, CanonicalName: "Acme Corp"},
	}

	fake := &llm.FakeClient{Relationships: []llm.RelationshipCandidate{
		{FromText: "John Smith", ToText: "Acme Corp", Type: "SUES", Confidence: 0.6, Evidence: "first chunk evidence"},
	}}
	// Second chunk call returns a higher-confidence duplicate.
	builder := relationship.New(&sequencedClient{results: [][]llm.RelationshipCandidate{
		fake.Relationships,
		{{FromText: "John Smith", ToText: "Acme Corp", Type: "SUES", Confidence: 0.9, Evidence: "second chunk evidence"}},
	}}, relationship.DefaultConfig())

	rels, err := builder.Build(context.Background(), docID, chunks, mentions, canonical)
	require.NoError(t, err)
	require.Len(t, rels, 1)
	assert.Equal(t, 0.9, rels[0].Confidence)
	assert.Equal(t, "first chunk evidence", rels[0].EvidenceText)
}

func TestBuild_DropsSelfLoopsAndUnresolvedAndLowConfidence(t *testing.T) {
	docID := uuid.New()
	fromID := uuid.New()
	toID := uuid.New()

	chunks := []types.Chunk{{ID: uuid.New(), ChunkIndex: 0, Text: "text"}}
	mentions := []types.EntityMention{
		canonicalMention(0, "John Smith", fromID),
		{ID: uuid.New(), ChunkIndex: 0, Text: "Unknown Entity"}, // unresolved: no CanonicalEntityID
	}
	canonical := []types.CanonicalEntity{{ID: fromID, CanonicalName: "John Smith"}, {ID: toID, CanonicalName: "Acme Corp"}}

	client := &sequencedClient{results: [][]llm.RelationshipCandidate{{
		{FromText: "John Smith", ToText: "John Smith", Type: "SELF", Confidence: 0.9},
		{FromText: "John Smith", ToText: "Unknown Entity", Type: "KNOWS", Confidence: 0.9},
		{FromText: "John Smith", ToText: "Acme Corp", Type: "LOW", Confidence: 0.1},
	}}}
	builder := relationship.New(client, relationship.DefaultConfig())

	rels, err := builder.Build(context.Background(), docID, chunks, mentions, canonical)
	require.NoError(t, err)
	assert.Empty(t, rels)
}

// sequencedClient returns one slice of candidates per call, in order.
type sequencedClient struct {
	results [][]llm.RelationshipCandidate
	call    int
}

func (c *sequencedClient) ExtractEntities(ctx context.Context, chunkText string) ([]llm.MentionCandidate, error) {
	return nil, nil
}

func (c *sequencedClient) ExtractRelationships(ctx context.Context, chunkText string, knownEntities []string) ([]llm.RelationshipCandidate, error) {
	if c.call >= len(c.results) {
		return nil, nil
	}
	r := c.results[c.call]
	c.call++
	return r, nil
}
