package pipeline_test

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

	"github.com/joeott/legal-doc-processor-sub013/pgstore"
	"github.com/joeott/legal-doc-processor-sub013/pipeline"
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

func insertDoc(t *testing.T, ps *pgstore.Store, stage types.Stage) *types.Document {
	t.Helper()
	ctx := context.Background()
	doc := types.NewDocument(uuid.New(), uuid.New(), "s3://bucket/key.pdf", "doc.pdf")
	doc.CurrentStage = stage
	doc.Status = types.DocumentStatusRunning
	require.NoError(t, ps.InsertDocument(ctx, *doc))
	return doc
}

func TestAdvance_MovesDocumentToNextStageAndEnqueuesTask(t *testing.T) {
	ss := newTestRedis(t)
	ps := newTestPostgres(t)
	ctx := context.Background()

	doc := insertDoc(t, ps, types.StageOCR)
	task := types.ProcessingTask{
		ID:         uuid.New(),
		DocumentID: doc.ID,
		Stage:      types.StageOCR,
		Status:     types.TaskStatusCompleted,
		QueueName:  "batch.high",
		Priority:   types.PriorityHigh,
	}
	require.NoError(t, ps.InsertTask(ctx, task))

	c := pipeline.New(ss, ps, nil)
	require.NoError(t, c.Advance(ctx, task))

	updated, err := ps.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StageChunking, updated.CurrentStage)
	assert.Equal(t, types.DocumentStatusRunning, updated.Status)

	state, err := ss.GetDocumentState(ctx, doc.ID)
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.Equal(t, types.StageChunking, state.Stage)
	assert.Equal(t, types.TaskStatusInProgress, state.Status)

	next, err := ss.DequeueTask(ctx, "batch.high", time.Second)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, types.StageChunking, next.Stage)
	assert.Equal(t, doc.ID, next.DocumentID)
}

func TestAdvance_CompletesDocumentAfterFinalization(t *testing.T) {
	ss := newTestRedis(t)
	ps := newTestPostgres(t)
	ctx := context.Background()

	doc := insertDoc(t, ps, types.StageFinalization)
	task := types.ProcessingTask{
		ID:         uuid.New(),
		DocumentID: doc.ID,
		Stage:      types.StageFinalization,
		Status:     types.TaskStatusCompleted,
		QueueName:  "batch.normal",
		Priority:   types.PriorityNormal,
	}
	require.NoError(t, ps.InsertTask(ctx, task))

	c := pipeline.New(ss, ps, nil)
	require.NoError(t, c.Advance(ctx, task))

	updated, err := ps.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, types.DocumentStatusCompleted, updated.Status)

	summary, err := ss.GetDocumentStatusSummary(ctx, doc.ID)
	require.NoError(t, err)
	require.NotNil(t, summary)
	assert.Equal(t, types.DocumentStatusCompleted, summary.OverallStatus)
	assert.Contains(t, summary.StagesCompleted, types.StageFinalization)
}

func TestFail_RecordsDocumentFailure(t *testing.T) {
	ss := newTestRedis(t)
	ps := newTestPostgres(t)
	ctx := context.Background()

	doc := insertDoc(t, ps, types.StageEntityExtraction)
	task := types.ProcessingTask{
		ID:         uuid.New(),
		DocumentID: doc.ID,
		Stage:      types.StageEntityExtraction,
		Status:     types.TaskStatusFailed,
		QueueName:  "entity",
	}
	require.NoError(t, ps.InsertTask(ctx, task))

	c := pipeline.New(ss, ps, nil)
	require.NoError(t, c.Fail(ctx, task, "DATA", "malformed chunk"))

	updated, err := ps.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, types.DocumentStatusFailed, updated.Status)
	require.NotNil(t, updated.ErrorMessage)
	assert.Equal(t, "malformed chunk", *updated.ErrorMessage)

	state, err := ss.GetDocumentState(ctx, doc.ID)
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.Equal(t, types.TaskStatusFailed, state.Status)

	summary, err := ss.GetDocumentStatusSummary(ctx, doc.ID)
	require.NoError(t, err)
	require.NotNil(t, summary)
	assert.Equal(t, types.DocumentStatusFailed, summary.OverallStatus)
}
