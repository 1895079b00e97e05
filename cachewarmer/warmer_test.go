package cachewarmer_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/joeott/legal-doc-processor-sub013/cachewarmer"
	"github.com/joeott/legal-doc-processor-sub013/pgstore"
	"github.com/joeott/legal-doc-processor-sub013/statestore"
	"github.com/joeott/legal-doc-processor-sub013/types"
)

func newTestRedis(t *testing.T) *statestore.Store {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return statestore.NewWithClient(client, "")
}

func newTestPostgres(t *testing.T) *pgstore.Store {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:17-alpine",
		tcpostgres.WithDatabase("ldp_test"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	store, err := pgstore.New(ctx, pgstore.Config{DSN: connStr})
	require.NoError(t, err)
	t.Cleanup(store.Close)

	return store
}

func insertDoc(t *testing.T, ps *pgstore.Store, projectID uuid.UUID) uuid.UUID {
	t.Helper()
	ctx := context.Background()
	id := uuid.New()
	doc := *types.NewDocument(id, projectID, "s3://bucket/key.pdf", "doc.pdf")
	require.NoError(t, ps.InsertDocument(ctx, doc))
	return id
}

func TestWarmBatch_PreloadsProjectMetaAndFrequentEntities(t *testing.T) {
	ss := newTestRedis(t)
	ps := newTestPostgres(t)
	ctx := context.Background()

	projectID := uuid.New()
	docID := insertDoc(t, ps, projectID)

	entity := types.CanonicalEntity{
		ID: uuid.New(), DocumentID: docID, Type: types.EntityPerson,
		CanonicalName: "Jane Doe", MentionCount: 4, Confidence: 0.9, CreatedAt: time.Now(),
	}
	tx, err := ps.Pool().Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, ps.InsertCanonicalEntity(ctx, tx, entity))
	require.NoError(t, tx.Commit(ctx))

	w := cachewarmer.New(ss, ps)
	require.NoError(t, w.WarmBatch(ctx, uuid.New(), projectID, []uuid.UUID{docID}))

	var meta cachewarmer.ProjectMeta
	ok, err := ss.GetJSON(ctx, "proj:meta:"+projectID.String(), &meta)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1, meta.DocumentCount)

	var entities []types.CanonicalEntity
	ok, err = ss.GetJSON(ctx, "proj:entities:"+projectID.String(), &entities)
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, entities, 1)
	assert.Equal(t, "Jane Doe", entities[0].CanonicalName)

	var resolution map[string]uuid.UUID
	ok, err = ss.GetJSON(ctx, "proj:resolution:"+projectID.String(), &resolution)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, entity.ID, resolution["Jane Doe"])
}

func TestWarmBatch_PreloadsExistingOCRResultAndChunks(t *testing.T) {
	ss := newTestRedis(t)
	ps := newTestPostgres(t)
	ctx := context.Background()

	projectID := uuid.New()
	docID := insertDoc(t, ps, projectID)

	resultText := "the parties agree as follows"
	job := types.OcrJob{
		ID: uuid.New(), ProviderJobID: "textract-job-1", DocumentID: docID,
		Status: types.OcrJobCompleted, SubmittedAt: time.Now(), ResultText: &resultText,
	}
	require.NoError(t, ps.InsertOcrJob(ctx, job))

	chunks := []types.Chunk{
		{ID: uuid.New(), DocumentID: docID, ChunkIndex: 0, Text: "the parties", StartOffset: 0, EndOffset: 11},
	}
	require.NoError(t, ps.InsertChunks(ctx, chunks))

	w := cachewarmer.New(ss, ps)
	require.NoError(t, w.WarmBatch(ctx, uuid.New(), projectID, []uuid.UUID{docID}))

	text, ok, err := ss.GetOCRCache(ctx, docID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, resultText, text)

	cached, ok, err := ss.GetChunksCache(ctx, docID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, cached, 1)
	assert.Equal(t, "the parties", cached[0].Text)
}

func TestWarmBatch_SkipsDocumentWithNoOCRResultYet(t *testing.T) {
	ss := newTestRedis(t)
	ps := newTestPostgres(t)
	ctx := context.Background()

	projectID := uuid.New()
	docID := insertDoc(t, ps, projectID)

	w := cachewarmer.New(ss, ps)
	require.NoError(t, w.WarmBatch(ctx, uuid.New(), projectID, []uuid.UUID{docID}))

	_, ok, err := ss.GetOCRCache(ctx, docID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestWarmBatch_IsIdempotent(t *testing.T) {
	ss := newTestRedis(t)
	ps := newTestPostgres(t)
	ctx := context.Background()

	projectID := uuid.New()
	docID := insertDoc(t, ps, projectID)

	w := cachewarmer.New(ss, ps)
	require.NoError(t, w.WarmBatch(ctx, uuid.New(), projectID, []uuid.UUID{docID}))
	require.NoError(t, w.WarmBatch(ctx, uuid.New(), projectID, []uuid.UUID{docID}))

	var meta cachewarmer.ProjectMeta
	ok, err := ss.GetJSON(ctx, "proj:meta:"+projectID.String(), &meta)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1, meta.DocumentCount)
}
