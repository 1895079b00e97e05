package taskruntime_test

import (
	"context"
	"errors"
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
	"github.com/joeott/legal-doc-processor-sub013/statestore"
	"github.com/joeott/legal-doc-processor-sub013/taskruntime"
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

func newDocAndTask(t *testing.T, ps *pgstore.Store, stage types.Stage) (uuid.UUID, types.ProcessingTask) {
	t.Helper()
	ctx := context.Background()
	docID := uuid.New()
	doc := *types.NewDocument(docID, uuid.New(), "s3://bucket/key.pdf", "complaint.pdf")
	doc.CurrentStage = stage
	require.NoError(t, ps.InsertDocument(ctx, doc))

	task := types.ProcessingTask{
		ID:         uuid.New(),
		DocumentID: docID,
		Stage:      stage,
		Status:     types.TaskStatusPending,
		QueueName:  stage.QueueName(),
		Priority:   types.PriorityNormal,
		CreatedAt:  time.Now(),
	}
	require.NoError(t, ps.InsertTask(ctx, task))
	return docID, task
}

func TestPool_CompletesTaskAndEmitsMetric(t *testing.T) {
	ss := newTestRedis(t)
	ps := newTestPostgres(t)
	ctx := context.Background()

	_, task := newDocAndTask(t, ps, types.StageChunking)
	require.NoError(t, ss.EnqueueTask(ctx, task.QueueName, task))

	ran := make(chan struct{}, 1)
	cfg := taskruntime.DefaultConfig()
	cfg.Queues = map[string]int{task.QueueName: 1}
	cfg.DequeueTimeout = 100 * time.Millisecond
	cfg.CancelPollInterval = 50 * time.Millisecond

	registry := taskruntime.Registry{
		types.StageChunking: taskruntime.ExecutorFunc(func(ctx context.Context, tk types.ProcessingTask) error {
			ran <- struct{}{}
			return nil
		}),
	}

	pool := taskruntime.NewPool(ss, ps, registry, cfg, nil)
	pool.Start()
	defer pool.Stop()

	select {
	case <-ran:
	case <-time.After(3 * time.Second):
		t.Fatal("executor never ran")
	}

	require.Eventually(t, func() bool {
		got, err := ps.GetTask(ctx, task.ID)
		return err == nil && got.Status == types.TaskStatusCompleted
	}, 3*time.Second, 50*time.Millisecond)

	bucket := statestore.MetricsBucket(time.Now())
	n, err := ss.GetMetric(ctx, bucket, string(types.StageChunking), "completed")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestPool_RetriesTransientFailureWithBackoff(t *testing.T) {
	ss := newTestRedis(t)
	ps := newTestPostgres(t)
	ctx := context.Background()

	_, task := newDocAndTask(t, ps, types.StageEntityExtraction)
	require.NoError(t, ss.EnqueueTask(ctx, task.QueueName, task))

	attempts := make(chan struct{}, 2)
	cfg := taskruntime.DefaultConfig()
	cfg.Queues = map[string]int{task.QueueName: 1}
	cfg.DequeueTimeout = 100 * time.Millisecond
	cfg.CancelPollInterval = 50 * time.Millisecond
	cfg.MaxRetries = 2

	registry := taskruntime.Registry{
		types.StageEntityExtraction: taskruntime.ExecutorFunc(func(ctx context.Context, tk types.ProcessingTask) error {
			attempts <- struct{}{}
			return errors.New("connection reset by peer")
		}),
	}

	pool := taskruntime.NewPool(ss, ps, registry, cfg, nil)
	pool.Start()
	defer pool.Stop()

	select {
	case <-attempts:
	case <-time.After(3 * time.Second):
		t.Fatal("executor never ran once")
	}

	require.Eventually(t, func() bool {
		got, err := ss.GetTaskPayload(ctx, task.ID.String())
		return err == nil && got != nil && got.Status == types.TaskStatusPending && got.RetryCount == 1
	}, 3*time.Second, 50*time.Millisecond)
}

func TestPool_FailsTerminallyOnPermanentError(t *testing.T) {
	ss := newTestRedis(t)
	ps := newTestPostgres(t)
	ctx := context.Background()

	_, task := newDocAndTask(t, ps, types.StageRelationshipBuilding)
	require.NoError(t, ss.EnqueueTask(ctx, task.QueueName, task))

	cfg := taskruntime.DefaultConfig()
	cfg.Queues = map[string]int{task.QueueName: 1}
	cfg.DequeueTimeout = 100 * time.Millisecond
	cfg.CancelPollInterval = 50 * time.Millisecond

	registry := taskruntime.Registry{
		types.StageRelationshipBuilding: taskruntime.ExecutorFunc(func(ctx context.Context, tk types.ProcessingTask) error {
			return errors.New("schema violation in stage output")
		}),
	}

	pool := taskruntime.NewPool(ss, ps, registry, cfg, nil)
	pool.Start()
	defer pool.Stop()

	require.Eventually(t, func() bool {
		got, err := ps.GetTask(ctx, task.ID)
		return err == nil && got.Status == types.TaskStatusFailed
	}, 3*time.Second, 50*time.Millisecond)
}

func TestPool_SkipsDuplicateWorkWhenStageLocked(t *testing.T) {
	ss := newTestRedis(t)
	ps := newTestPostgres(t)
	ctx := context.Background()

	docID, task := newDocAndTask(t, ps, types.StageOCR)
	require.NoError(t, ss.EnqueueTask(ctx, task.QueueName, task))

	locked, err := ss.AcquireStageLock(ctx, docID, string(types.StageOCR), "external-owner", time.Minute)
	require.NoError(t, err)
	require.True(t, locked)

	ran := make(chan struct{}, 1)
	cfg := taskruntime.DefaultConfig()
	cfg.Queues = map[string]int{task.QueueName: 1}
	cfg.DequeueTimeout = 100 * time.Millisecond
	cfg.CancelPollInterval = 50 * time.Millisecond

	registry := taskruntime.Registry{
		types.StageOCR: taskruntime.ExecutorFunc(func(ctx context.Context, tk types.ProcessingTask) error {
			ran <- struct{}{}
			return nil
		}),
	}

	pool := taskruntime.NewPool(ss, ps, registry, cfg, nil)
	pool.Start()
	defer pool.Stop()

	select {
	case <-ran:
		t.Fatal("executor ran despite an external stage lock being held")
	case <-time.After(500 * time.Millisecond):
	}
}

func TestPool_CancelledTaskIsNotRetried(t *testing.T) {
	ss := newTestRedis(t)
	ps := newTestPostgres(t)
	ctx := context.Background()

	_, task := newDocAndTask(t, ps, types.StageFinalization)
	require.NoError(t, ss.EnqueueTask(ctx, task.QueueName, task))
	require.NoError(t, ss.MarkTaskCancelled(ctx, task.ID))

	cfg := taskruntime.DefaultConfig()
	cfg.Queues = map[string]int{task.QueueName: 1}
	cfg.DequeueTimeout = 100 * time.Millisecond
	cfg.CancelPollInterval = 50 * time.Millisecond

	ran := make(chan struct{}, 1)
	registry := taskruntime.Registry{
		types.StageFinalization: taskruntime.ExecutorFunc(func(ctx context.Context, tk types.ProcessingTask) error {
			ran <- struct{}{}
			return nil
		}),
	}

	pool := taskruntime.NewPool(ss, ps, registry, cfg, nil)
	pool.Start()
	defer pool.Stop()

	select {
	case <-ran:
		t.Fatal("executor ran for a task already marked cancelled")
	case <-time.After(500 * time.Millisecond):
	}

	got, err := ps.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, types.TaskStatusCancelled, got.Status)
}
