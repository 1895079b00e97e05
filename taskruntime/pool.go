package taskruntime

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/joeott/legal-doc-processor-sub013/pgstore"
	"github.com/joeott/legal-doc-processor-sub013/pipelineerr"
	"github.com/joeott/legal-doc-processor-sub013/statestore"
	"github.com/joeott/legal-doc-processor-sub013/types"
)

// Config configures the worker pool (§4.7).
type Config struct {
	// Queues maps a queue name to its worker count. Names are the six
	// named stage queues (default, ocr, text, entity, graph, cleanup)
	// plus the three batch priority queues (batch.high, batch.normal,
	// batch.low).
	Queues map[string]int

	MemoryCeilingBytes  uint64        // default 512 MiB
	MemoryCheckInterval time.Duration // default 5s
	SoftTimeout         time.Duration // default 55m
	HardTimeout         time.Duration // default 65m
	MaxRetries          int           // default 3
	DequeueTimeout      time.Duration // per-queue blocking poll window, default 2s
	CancelPollInterval  time.Duration // default 2s

	// OnMemoryBreach responds to a worker exceeding MemoryCeilingBytes.
	// Defaults to logging fatally and exiting the process so an external
	// supervisor restarts it, matching §4.7's "terminating and
	// restarting children" for a single-process deployment.
	OnMemoryBreach ceilingBreaker

	// Advancer hands control back to the Pipeline Coordinator on a task's
	// terminal outcome (§4.1, §4.7). Nil is a valid, no-op default, used by
	// tests that only exercise TR's own scheduling behavior.
	Advancer Advancer
}

// DefaultConfig returns the specification's stated defaults (§4.7).
func DefaultConfig() Config {
	return Config{
		Queues: map[string]int{
			"default":      1,
			"ocr":          2,
			"text":         2,
			"entity":       2,
			"graph":        1,
			"cleanup":      1,
			"batch.high":   2,
			"batch.normal": 2,
			"batch.low":    1,
		},
		MemoryCeilingBytes:  512 * 1024 * 1024,
		MemoryCheckInterval: 5 * time.Second,
		SoftTimeout:         55 * time.Minute,
		HardTimeout:         65 * time.Minute,
		MaxRetries:          3,
		DequeueTimeout:      2 * time.Second,
		CancelPollInterval:  2 * time.Second,
	}
}

// Pool is the process-wide worker pool consuming SS's priority FIFO
// queues (§4.7).
type Pool struct {
	ss        *statestore.Store
	ps        *pgstore.Store
	executors Registry
	cfg       Config
	log       *logrus.Logger

	workers []*worker
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewPool builds a pool. log may be nil, in which case the standard logrus
// logger is used.
func NewPool(ss *statestore.Store, ps *pgstore.Store, executors Registry, cfg Config, log *logrus.Logger) *Pool {
	if cfg.Queues == nil {
		cfg = DefaultConfig()
	}
	if cfg.MemoryCheckInterval == 0 {
		cfg.MemoryCheckInterval = 5 * time.Second
	}
	if cfg.HardTimeout == 0 {
		cfg.HardTimeout = 65 * time.Minute
	}
	if cfg.SoftTimeout == 0 {
		cfg.SoftTimeout = 55 * time.Minute
	}
	if cfg.DequeueTimeout == 0 {
		cfg.DequeueTimeout = 2 * time.Second
	}
	if cfg.CancelPollInterval == 0 {
		cfg.CancelPollInterval = 2 * time.Second
	}
	if cfg.OnMemoryBreach == nil {
		cfg.OnMemoryBreach = func(ceiling, heap uint64) {
			logrus.StandardLogger().WithFields(logrus.Fields{
				"ceiling_bytes": ceiling,
				"heap_bytes":    heap,
			}).Fatal("worker exiting: memory ceiling breach")
		}
	}
	if log == nil {
		log = logrus.StandardLogger()
	}

	p := &Pool{ss: ss, ps: ps, executors: executors, cfg: cfg, log: log, stopCh: make(chan struct{})}

	id := 0
	for queueName, count := range cfg.Queues {
		for i := 0; i < count; i++ {
			p.workers = append(p.workers, &worker{
				id:        id,
				queueName: queueName,
				pool:      p,
			})
			id++
		}
	}
	return p
}

// Start launches every configured worker in its own goroutine.
func (p *Pool) Start() {
	p.log.WithField("worker_count", len(p.workers)).Info("starting task runtime worker pool")
	for _, w := range p.workers {
		p.wg.Add(1)
		go w.run()
	}
}

// Stop signals every worker to finish its current task and exit, then
// waits for them to do so.
func (p *Pool) Stop() {
	p.log.Info("stopping task runtime worker pool")
	close(p.stopCh)
	p.wg.Wait()
	p.log.Info("task runtime worker pool stopped")
}

// worker polls one priority class's pull order and runs tasks to
// completion, retry, or terminal failure (§4.7).
type worker struct {
	id        int
	queueName string
	pool      *Pool
}

// pullOrder implements §4.7's priority precedence: batch.high pulls only
// high, batch.normal pulls normal then low when idle, batch.low pulls
// only low. Ordinary named stage queues (ocr, text, entity, graph,
// cleanup, default) have no fallback.
func pullOrder(queueName string) []string {
	switch queueName {
	case "batch.normal":
		return []string{"batch.normal", "batch.low"}
	default:
		return []string{queueName}
	}
}

func (w *worker) log() *logrus.Entry {
	return w.pool.log.WithFields(logrus.Fields{"worker_id": w.id, "queue": w.queueName})
}

func (w *worker) run() {
	defer w.pool.wg.Done()

	stopMem := make(chan struct{})
	defer close(stopMem)
	go watchMemory(stopMem, w.pool.cfg.MemoryCheckInterval, w.pool.cfg.MemoryCeilingBytes, w.log(), w.pool.cfg.OnMemoryBreach)

	owner := fmt.Sprintf("tr-%s-%d", w.queueName, w.id)
	order := pullOrder(w.queueName)

	for {
		select {
		case <-w.pool.stopCh:
			return
		default:
		}

		task, err := w.pollNext(order)
		if err != nil {
			w.log().WithError(err).Warn("dequeue failed")
			time.Sleep(time.Second)
			continue
		}
		if task == nil {
			continue
		}
		w.process(*task, owner)
	}
}

// pollNext tries each queue in order with a short blocking timeout,
// promoting any due delayed tasks on that queue first. The first
// non-empty queue wins; an empty sweep returns (nil, nil) so the caller
// loops back to the stop-channel check.
func (w *worker) pollNext(order []string) (*types.ProcessingTask, error) {
	ctx := context.Background()
	for _, qn := range order {
		if _, err := w.pool.ss.PromoteDueDelayedTasks(ctx, qn); err != nil {
			w.log().WithError(err).Warn("promote delayed tasks failed")
		}
		task, err := w.pool.ss.DequeueTask(ctx, qn, w.pool.cfg.DequeueTimeout)
		if err != nil {
			return nil, err
		}
		if task != nil {
			return task, nil
		}
	}
	return nil, nil
}

// process runs one task to a terminal outcome: completed, retried
// (re-enqueued with backoff), terminally failed, or cancelled (§4.7).
func (w *worker) process(task types.ProcessingTask, owner string) {
	ctx := context.Background()
	log := w.log().WithFields(logrus.Fields{"task_id": task.ID, "document_id": task.DocumentID, "stage": task.Stage})

	if cancelled, err := w.pool.ss.IsTaskCancelled(ctx, task.ID); err == nil && cancelled {
		w.finishCancelled(ctx, task, log)
		return
	}

	locked, err := w.pool.ss.AcquireStageLock(ctx, task.DocumentID, string(task.Stage), owner, task.Stage.LockTTL())
	if err != nil {
		log.WithError(err).Error("acquire stage lock failed")
		return
	}
	if !locked {
		// Another worker already holds this (document, stage): refuse
		// the duplicate work rather than racing it (§4.7, §4.1).
		log.Warn("stage already locked, skipping duplicate task")
		return
	}
	defer w.pool.ss.ReleaseStageLock(ctx, task.DocumentID, string(task.Stage), owner)

	executor, ok := w.pool.executors[task.Stage]
	if !ok {
		w.fail(ctx, task, pipelineerr.CategoryConfiguration, fmt.Errorf("no executor registered for stage %q", task.Stage), log)
		return
	}

	now := time.Now()
	if err := w.pool.ps.StartTask(ctx, task.ID, now); err != nil {
		log.WithError(err).Warn("persist task start failed")
	}
	task.Status = types.TaskStatusInProgress
	task.StartedAt = &now
	if err := w.pool.ss.SetTaskPayload(ctx, task); err != nil {
		log.WithError(err).Warn("persist task payload failed")
	}

	runCtx, cancel := context.WithTimeout(ctx, w.pool.cfg.HardTimeout)
	defer cancel()

	cancelStop := make(chan struct{})
	defer close(cancelStop)
	go w.watchCancellation(runCtx, cancel, task.ID, cancelStop)

	softTimer := time.AfterFunc(w.pool.cfg.SoftTimeout, func() {
		log.Warn("task exceeded soft time limit, still running")
	})
	defer softTimer.Stop()

	execErr := executor.Execute(runCtx, task)

	if cancelled, _ := w.pool.ss.IsTaskCancelled(ctx, task.ID); cancelled {
		w.finishCancelled(ctx, task, log)
		return
	}

	if execErr == nil {
		w.succeed(ctx, task, log)
		return
	}

	if runCtx.Err() == context.DeadlineExceeded {
		w.fail(ctx, task, pipelineerr.CategoryResource, pipelineerr.NewStageError(pipelineerr.CategoryResource, "hard_timeout", execErr), log)
		return
	}

	category := pipelineerr.Classify(execErr)
	if category.Retryable() && task.RetryCount < w.pool.cfg.MaxRetries {
		w.retry(ctx, task, category, execErr, log)
		return
	}
	w.fail(ctx, task, category, execErr, log)
}

// watchCancellation polls IsTaskCancelled while a task runs and cancels
// runCtx the moment it's flagged, so the executor observes ctx.Done() at
// its next I/O boundary (§4.9: cancellation is cooperative at external
// I/O boundaries).
func (w *worker) watchCancellation(runCtx context.Context, cancel context.CancelFunc, taskID uuid.UUID, stop <-chan struct{}) {
	ticker := time.NewTicker(w.pool.cfg.CancelPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-runCtx.Done():
			return
		case <-ticker.C:
			cancelled, err := w.pool.ss.IsTaskCancelled(context.Background(), taskID)
			if err != nil {
				continue
			}
			if cancelled {
				cancel()
				return
			}
		}
	}
}

func (w *worker) succeed(ctx context.Context, task types.ProcessingTask, log *logrus.Entry) {
	now := time.Now()
	if err := w.pool.ps.CompleteTask(ctx, task.ID, now); err != nil {
		log.WithError(err).Warn("persist task completion failed")
	}
	task.Status = types.TaskStatusCompleted
	task.CompletedAt = &now
	if err := w.pool.ss.SetTaskPayload(ctx, task); err != nil {
		log.WithError(err).Warn("persist completed task payload failed")
	}
	w.emitMetric(ctx, task, "completed")
	log.Info("task completed")

	if w.pool.cfg.Advancer != nil {
		if err := w.pool.cfg.Advancer.Advance(ctx, task); err != nil {
			log.WithError(err).Error("pipeline coordinator failed to advance document")
		}
	}
}

func (w *worker) retry(ctx context.Context, task types.ProcessingTask, category pipelineerr.Category, cause error, log *logrus.Entry) {
	delay := retryDelay(category, task.RetryCount)
	task.RetryCount++
	msg := cause.Error()
	cat := string(category)
	task.ErrorMessage = &msg
	task.ErrorCategory = &cat
	task.Status = types.TaskStatusPending

	if err := w.pool.ss.EnqueueTaskDelayed(ctx, task.QueueName, task, delay); err != nil {
		log.WithError(err).Error("failed to schedule retry, failing task terminally")
		w.fail(ctx, task, category, cause, log)
		return
	}
	w.emitMetric(ctx, task, "retry_scheduled")
	w.recordError(ctx, task, category, cause)
	log.WithFields(logrus.Fields{"retry_count": task.RetryCount, "delay": delay, "category": category}).Warn("task failed, retry scheduled")
}

func (w *worker) fail(ctx context.Context, task types.ProcessingTask, category pipelineerr.Category, cause error, log *logrus.Entry) {
	now := time.Now()
	msg := cause.Error()
	if err := w.pool.ps.FailTask(ctx, task.ID, string(category), msg, now); err != nil {
		log.WithError(err).Warn("persist task failure failed")
	}
	cat := string(category)
	task.Status = types.TaskStatusFailed
	task.ErrorMessage = &msg
	task.ErrorCategory = &cat
	task.CompletedAt = &now
	if err := w.pool.ss.SetTaskPayload(ctx, task); err != nil {
		log.WithError(err).Warn("persist failed task payload failed")
	}
	w.emitMetric(ctx, task, "failed")
	w.recordError(ctx, task, category, cause)
	log.WithFields(logrus.Fields{"category": category}).Error("task failed terminally")

	if w.pool.cfg.Advancer != nil {
		if err := w.pool.cfg.Advancer.Fail(ctx, task, string(category), msg); err != nil {
			log.WithError(err).Error("pipeline coordinator failed to record document failure")
		}
	}
}

func (w *worker) finishCancelled(ctx context.Context, task types.ProcessingTask, log *logrus.Entry) {
	now := time.Now()
	if err := w.pool.ps.CancelTask(ctx, task.ID, now); err != nil {
		log.WithError(err).Warn("persist task cancellation failed")
	}
	task.Status = types.TaskStatusCancelled
	task.CompletedAt = &now
	if err := w.pool.ss.SetTaskPayload(ctx, task); err != nil {
		log.WithError(err).Warn("persist cancelled task payload failed")
	}
	w.emitMetric(ctx, task, "cancelled")
	log.Info("task cancelled")
}

func (w *worker) emitMetric(ctx context.Context, task types.ProcessingTask, status string) {
	bucket := statestore.MetricsBucket(time.Now())
	if err := w.pool.ss.IncrMetric(ctx, bucket, string(task.Stage), status); err != nil {
		w.log().WithError(err).Warn("emit metric failed")
	}
}

func (w *worker) recordError(ctx context.Context, task types.ProcessingTask, category pipelineerr.Category, cause error) {
	bucket := statestore.MetricsBucket(time.Now())
	rec := statestore.ErrorRecord{
		DocumentID: task.DocumentID.String(),
		Stage:      string(task.Stage),
		Category:   string(category),
		Message:    cause.Error(),
		At:         time.Now(),
	}
	if err := w.pool.ss.RecordError(ctx, bucket, rec); err != nil {
		w.log().WithError(err).Warn("record error failed")
	}
}
