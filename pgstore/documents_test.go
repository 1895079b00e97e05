package pgstore_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/joeott/legal-doc-processor-sub013/pgstore"
	"github.com/joeott/legal-doc-processor-sub013/types"
)

// newTestStore starts a disposable Postgres container, applies migrations
// and returns a Store whose schema is torn down when the test ends.
func newTestStore(t *testing.T) *pgstore.Store {
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

func TestInsertAndGetDocument(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	doc := *types.NewDocument(uuid.New(), uuid.New(), "s3://bucket/key.pdf", "complaint.pdf")
	doc.ContentHash = "deadbeef"
	doc.SizeBytes = 1024
	doc.MimeType = "application/pdf"
	doc.CurrentStage = types.StageOCR

	require.NoError(t, store.InsertDocument(ctx, doc))

	got, err := store.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	require.Equal(t, doc.ID, got.ID)
	require.Equal(t, doc.ProjectID, got.ProjectID)
	require.Equal(t, types.DocumentStatusPending, got.Status)
	require.Equal(t, types.StageOCR, got.CurrentStage)
}

func TestUpdateDocumentStage(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	doc := *types.NewDocument(uuid.New(), uuid.New(), "s3://bucket/key.pdf", "complaint.pdf")
	doc.MimeType = "application/pdf"
	require.NoError(t, store.InsertDocument(ctx, doc))

	require.NoError(t, store.UpdateDocumentStage(ctx, doc.ID, types.StageChunking, types.DocumentStatusRunning))

	got, err := store.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	require.Equal(t, types.StageChunking, got.CurrentStage)
	require.Equal(t, types.DocumentStatusRunning, got.Status)
}

func TestUpdateDocumentStage_MissingDocument(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	err := store.UpdateDocumentStage(ctx, uuid.New(), types.StageChunking, types.DocumentStatusRunning)
	require.ErrorIs(t, err, pgstore.ErrNotFound)
}

func TestChunksRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	doc := *types.NewDocument(uuid.New(), uuid.New(), "s3://bucket/key.pdf", "complaint.pdf")
	doc.MimeType = "application/pdf"
	require.NoError(t, store.InsertDocument(ctx, doc))

	chunks := []types.Chunk{
		{ID: uuid.New(), DocumentID: doc.ID, ChunkIndex: 0, Text: "first chunk", StartOffset: 0, EndOffset: 11, CreatedAt: time.Now()},
		{ID: uuid.New(), DocumentID: doc.ID, ChunkIndex: 1, Text: "second chunk", StartOffset: 11, EndOffset: 23, CreatedAt: time.Now()},
	}
	require.NoError(t, store.InsertChunks(ctx, chunks))

	got, err := store.GetChunksByDocument(ctx, doc.ID)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, 0, got[0].ChunkIndex)
	require.Equal(t, 1, got[1].ChunkIndex)
}

func TestRelationshipDedupKeepsHigherConfidence(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	doc := *types.NewDocument(uuid.New(), uuid.New(), "s3://bucket/key.pdf", "complaint.pdf")
	doc.MimeType = "application/pdf"
	require.NoError(t, store.InsertDocument(ctx, doc))

	from := types.CanonicalEntity{ID: uuid.New(), DocumentID: doc.ID, Type: types.EntityPerson, CanonicalName: "Jane Roe", Confidence: 0.9, CreatedAt: time.Now()}
	to := types.CanonicalEntity{ID: uuid.New(), DocumentID: doc.ID, Type: types.EntityOrg, CanonicalName: "Acme Corp", Confidence: 0.9, CreatedAt: time.Now()}

	tx, err := store.BeginTx(ctx)
	require.NoError(t, err)
	require.NoError(t, store.InsertCanonicalEntity(ctx, tx, from))
	require.NoError(t, store.InsertCanonicalEntity(ctx, tx, to))
	require.NoError(t, tx.Commit(ctx))

	relID := uuid.New()
	low := types.Relationship{ID: relID, DocumentID: doc.ID, FromEntityID: from.ID, ToEntityID: to.ID, Type: "EMPLOYED_BY", Confidence: 0.4, CreatedAt: time.Now()}
	high := types.Relationship{ID: uuid.New(), DocumentID: doc.ID, FromEntityID: from.ID, ToEntityID: to.ID, Type: "EMPLOYED_BY", Confidence: 0.8, CreatedAt: time.Now()}

	tx2, err := store.BeginTx(ctx)
	require.NoError(t, err)
	require.NoError(t, store.InsertRelationship(ctx, tx2, low))
	require.NoError(t, store.InsertRelationship(ctx, tx2, high))
	require.NoError(t, tx2.Commit(ctx))

	rels, err := store.GetRelationshipsByDocument(ctx, doc.ID)
	require.NoError(t, err)
	require.Len(t, rels, 1)
	require.InDelta(t, 0.8, rels[0].Confidence, 0.0001)
}
