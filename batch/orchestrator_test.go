package batch_test

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

	"github.com/joeott/legal-doc-processor-sub013/batch"
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

type fakeCacheWarmer struct {
	calls []uuid.UUID
}

func (f *fakeCacheWarmer) WarmBatch(ctx context.Context, batchID, projectID uuid.UUID, documentIDs []uuid.UUID) error {
	f.calls = append(f.calls, batchID)
	return nil
}

func insertDocs(t *testing.T, ps *pgstore.Store, projectID uuid.UUID, n int) []uuid.UUID {
	t.Helper()
	ctx := context.Background()
	ids := make([]uuid.UUID, 0, n)
	for i := 0; i < n; i++ {
		id := uuid.New()
		doc := *types.NewDocument(id, projectID, "s3://bucket/key.pdf", "doc.pdf")
		require.NoError(t, ps.InsertDocument(ctx, doc))
		ids = append(ids, id)
	}
	return ids
}

func TestSubmit_FansOutTasksAndWarmsCacheSynchronouslyForHighPriority(t *testing.T) {
	ss := newTestRedis(t)
	ps := newTestPostgres(t)
	ctx := context.Background()

	projectID := uuid.New()
	docIDs := insertDocs(t, ps, projectID, 5)
	cw := &fakeCacheWarmer{}
	orch := batch.New(ss, ps, cw)

	b, err := orch.Submit(ctx, projectID, docIDs, types.PriorityHigh, types.BatchOptions{WarmCache: true, MaxRetries: 3})
	require.NoError(t, err)
	require.NotNil(t, b)

	assert.Len(t, cw.calls, 1)

	for _, docID := range docIDs {
		summary, err := ss.GetDocumentStatusSummary(ctx, docID)
		require.NoError(t, err)
		require.NotNil(t, summary)
		assert.Equal(t, types.DocumentStatusPending, summary.OverallStatus)
		assert.Equal(t, types.StageOCR, summary.CurrentStage)
	}

	depth, err := ss.QueueDepth(ctx, types.PriorityHigh.QueueName())
	require.NoError(t, err)
	assert.Equal(t, int64(5), depth)
}

func TestSubmit_SkipsCacheWarmBelowThreshold(t *testing.T) {
	ss := newTestRedis(t)
	ps := newTestPostgres(t)
	ctx := context.Background()

	projectID := uuid.New()
	docIDs := insertDocs(t, ps, projectID, 2)
	cw := &fakeCacheWarmer{}
	orch := batch.New(ss, ps, cw)

	_, err := orch.Submit(ctx, projectID, docIDs, types.PriorityNormal, types.BatchOptions{WarmCache: true, MaxRetries: 3})
	require.NoError(t, err)
	assert.Empty(t, cw.calls)
}

func TestMonitor_ComputesProgressAndOverallStatus(t *testing.T) {
	ss := newTestRedis(t)
	ps := newTestPostgres(t)
	ctx := context.Background()

	projectID := uuid.New()
	docIDs := insertDocs(t, ps, projectID, 2)
	orch := batch.New(ss, ps, nil)

	b, err := orch.Submit(ctx, projectID, docIDs, types.PriorityNormal, types.BatchOptions{MaxRetries: 3})
	require.NoError(t, err)

	// First document completes, second fails.
	require.NoError(t, ss.SetDocumentStatusSummary(ctx, types.DocumentStatusSummary{
		DocumentID: docIDs[0], OverallStatus: types.DocumentStatusCompleted, CurrentStage: types.StageFinalization,
	}))
	require.NoError(t, ss.SetDocumentStatusSummary(ctx, types.DocumentStatusSummary{
		DocumentID: docIDs[1], OverallStatus: types.DocumentStatusFailed, CurrentStage: types.StageOCR,
	}))
	cat := "DATA"
	msg := "empty ocr"
	require.NoError(t, ps.SetDocumentError(ctx, docIDs[1], cat, msg))

	progress, err := orch.Monitor(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, progress.Total)
	assert.Equal(t, 1, progress.Completed)
	assert.Equal(t, 1, progress.Failed)
	assert.Equal(t, "partial_success", progress.OverallStatus)
	require.Len(t, progress.FailureDetails, 1)
	assert.Equal(t, "DATA", progress.FailureDetails[0].Category)
}

func TestRecover_ClassifiesStrategyByFailureRateAndRetryCount(t *testing.T) {
	ss := newTestRedis(t)
	ps := newTestPostgres(t)
	ctx := context.Background()

	projectID := uuid.New()
	docIDs := insertDocs(t, ps, projectID, 4)
	orch := batch.New(ss, ps, nil)

	b, err := orch.Submit(ctx, projectID, docIDs, types.PriorityNormal, types.BatchOptions{MaxRetries: 2})
	require.NoError(t, err)

	// 1 of 4 failed: 25% failure rate -> immediate.
	require.NoError(t, ss.SetDocumentStatusSummary(ctx, types.DocumentStatusSummary{
		DocumentID: docIDs[0], OverallStatus: types.DocumentStatusFailed, CurrentStage: types.StageOCR,
	}))
	for _, id := range docIDs[1:] {
		require.NoError(t, ss.SetDocumentStatusSummary(ctx, types.DocumentStatusSummary{
			DocumentID: id, OverallStatus: types.DocumentStatusCompleted, CurrentStage: types.StageFinalization,
		}))
	}

	plan, err := orch.Recover(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, types.RecoveryImmediate, plan.Strategy)
	assert.Len(t, plan.FailedDocs, 1)
}

func TestRecover_HighFailureRateIsDelayed(t *testing.T) {
	ss := newTestRedis(t)
	ps := newTestPostgres(t)
	ctx := context.Background()

	projectID := uuid.New()
	docIDs := insertDocs(t, ps, projectID, 4)
	orch := batch.New(ss, ps, nil)

	b, err := orch.Submit(ctx, projectID, docIDs, types.PriorityNormal, types.BatchOptions{MaxRetries: 5})
	require.NoError(t, err)

	for _, id := range docIDs[:3] {
		require.NoError(t, ss.SetDocumentStatusSummary(ctx, types.DocumentStatusSummary{
			DocumentID: id, OverallStatus: types.DocumentStatusFailed, CurrentStage: types.StageOCR,
		}))
	}
	require.NoError(t, ss.SetDocumentStatusSummary(ctx, types.DocumentStatusSummary{
		DocumentID: docIDs[3], OverallStatus: types.DocumentStatusCompleted, CurrentStage: types.StageFinalization,
	}))

	plan, err := orch.Recover(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, types.RecoveryDelayed, plan.Strategy)
	assert.GreaterOrEqual(t, plan.Delay, batch.MinRecoveryDelay)
}

func TestExecute_ReenqueuesFailedDocumentsWithIncrementedRetryCount(t *testing.T) {
	ss := newTestRedis(t)
	ps := newTestPostgres(t)
	ctx := context.Background()

	projectID := uuid.New()
	docIDs := insertDocs(t, ps, projectID, 1)
	orch := batch.New(ss, ps, nil)

	b, err := orch.Submit(ctx, projectID, docIDs, types.PriorityNormal, types.BatchOptions{MaxRetries: 3})
	require.NoError(t, err)

	// Drain the initial OCR task so only the retry shows up in the queue.
	_, err = ss.DequeueTask(ctx, types.PriorityNormal.QueueName(), 10*time.Millisecond)
	require.NoError(t, err)

	tasks, err := ps.ListTasksByDocument(ctx, docIDs[0])
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	require.NoError(t, ps.FailTask(ctx, tasks[0].ID, "DATA", "empty ocr", time.Now()))

	plan := types.RecoveryPlan{BatchID: b.ID, Strategy: types.RecoveryImmediate, FailedDocs: docIDs}
	require.NoError(t, orch.Execute(ctx, plan))

	retried, err := ss.DequeueTask(ctx, types.PriorityNormal.QueueName(), 10*time.Millisecond)
	require.NoError(t, err)
	require.NotNil(t, retried)
	assert.Equal(t, 1, retried.RetryCount)

	retryCount, err := ss.GetBatchRetryCount(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), retryCount)
}
