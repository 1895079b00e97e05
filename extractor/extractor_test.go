package extractor_test

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeott/legal-doc-processor-sub013/extractor"
	"github.com/joeott/legal-doc-processor-sub013/llm"
	"github.com/joeott/legal-doc-processor-sub013/statestore"
	"github.com/joeott/legal-doc-processor-sub013/types"
)

func newTestStore(t *testing.T) *statestore.Store {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return statestore.NewWithClient(client, "")
}

func testChunk() types.Chunk {
	return types.Chunk{ID: uuid.New(), ChunkIndex: 0, Text: "John Smith paid $100 on January 1, 2024."}
}

func TestExtractChunk_DedupsAndValidatesSpans(t *testing.T) {
	ss := newTestStore(t)
	cfg := extractor.DefaultConfig("anthropic")
	remote := &llm.FakeClient{Mentions: []llm.MentionCandidate{
		{Text: "John Smith", Type: "PERSON", Confidence: 0.9, StartOffset: 0, EndOffset: 10},
		{Text: "john smith", Type: "PERSON", Confidence: 0.4, StartOffset: 0, EndOffset: 10},
		{Text: "out of bounds", Type: "PERSON", Confidence: 0.9, StartOffset: 1000, EndOffset: 1010},
	}}
	ex := extractor.New(remote, llm.NewLocalClient(), ss, cfg)

	chunk := testChunk()
	mentions, err := ex.ExtractChunk(context.Background(), chunk, uuid.New())
	require.NoError(t, err)
	require.Len(t, mentions, 1)
	assert.Equal(t, 0.9, mentions[0].Confidence)
	assert.Equal(t, types.ExtractionMethodRemote, mentions[0].ExtractionMethod)
}

func TestExtractChunk_ReTypesDisallowedType(t *testing.T) {
	ss := newTestStore(t)
	cfg := extractor.DefaultConfig("anthropic")
	cfg.AllowedTypes = map[types.EntityType]bool{types.EntityPerson: true}
	remote := &llm.FakeClient{Mentions: []llm.MentionCandidate{
		{Text: "Acme Corp", Type: "ORG", Confidence: 0.8, StartOffset: 0, EndOffset: 9},
	}}
	ex := extractor.New(remote, llm.NewLocalClient(), ss, cfg)

	mentions, err := ex.ExtractChunk(context.Background(), testChunk(), uuid.New())
	require.NoError(t, err)
	require.Len(t, mentions, 1)
	assert.Equal(t, types.EntityOther, mentions[0].Type)
}

func TestExtractChunk_FallsBackToLocalAfterConsecutiveFailures(t *testing.T) {
	ss := newTestStore(t)
	cfg := extractor.DefaultConfig("anthropic")
	cfg.ConsecutiveFailuresToFallback = 2
	failing := &llm.FakeClient{Err: errors.New("boom")}
	ex := extractor.New(failing, llm.NewLocalClient(), ss, cfg)

	chunk := testChunk()
	_, err := ex.ExtractChunk(context.Background(), chunk, uuid.New())
	require.Error(t, err)
	_, err = ex.ExtractChunk(context.Background(), chunk, uuid.New())
	require.Error(t, err)

	mentions, err := ex.ExtractChunk(context.Background(), chunk, uuid.New())
	require.NoError(t, err)
	for _, m := range mentions {
		assert.Equal(t, types.ExtractionMethodLocal, m.ExtractionMethod)
	}
}
