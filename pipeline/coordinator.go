// Package pipeline implements the Pipeline Coordinator (PC): the sole
// writer of a document's doc:state:{uuid} hash and the six per-stage
// Executors that plug into the Task Runtime (§4.1). PC reacts to a task's
// terminal outcome — handed to it through taskruntime.Advancer — by
// advancing a document to its next stage or recording its failure; it
// never runs stage logic itself.
//
// Grounded on coordinator/phases.go's PhaseManager, reimplemented against
// Redis compare-and-set (statestore.CASDocumentState) instead of an
// in-memory mutex-guarded map, since a document's live stage must survive
// a process restart and be visible to every worker (§5).
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/joeott/legal-doc-processor-sub013/pgstore"
	"github.com/joeott/legal-doc-processor-sub013/statestore"
	"github.com/joeott/legal-doc-processor-sub013/types"
)

// maxCASRetries bounds Coordinator's own compare-and-set retry loop. A
// conflict here means another Advance/Fail call for the same document
// raced this one, which the pipeline's single-task-in-flight-per-stage
// locking (§4.1 stage locks) makes rare but not impossible across a
// retry/cancel boundary.
const maxCASRetries = 5

// Coordinator implements taskruntime.Advancer over SS and PS.
type Coordinator struct {
	ss  *statestore.Store
	ps  *pgstore.Store
	log *logrus.Logger
}

// New builds a Coordinator. log may be nil, defaulting to the standard
// logrus logger, matching the rest of the module's ambient logging.
func New(ss *statestore.Store, ps *pgstore.Store, log *logrus.Logger) *Coordinator {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Coordinator{ss: ss, ps: ps, log: log}
}

// Advance is called by TR after task completes its stage successfully. It
// moves the document to the next stage's in_progress state and enqueues
// the next stage's task, or — when task's stage was the last one —
// marks the document completed (§4.1 transition table).
func (c *Coordinator) Advance(ctx context.Context, task types.ProcessingTask) error {
	log := c.log.WithFields(logrus.Fields{"document_id": task.DocumentID, "stage": task.Stage})

	next, hasNext := task.Stage.Next()
	if !hasNext {
		return c.completeDocument(ctx, task, log)
	}
	return c.advanceToStage(ctx, task, next, log)
}

// Fail is called by TR after task fails terminally (retries exhausted or a
// non-retryable category). It records the document as failed in both SS
// and PS; the document's stage itself is left where it stopped so an
// operator can inspect which stage failed (§4.1, §9).
func (c *Coordinator) Fail(ctx context.Context, task types.ProcessingTask, category, message string) error {
	log := c.log.WithFields(logrus.Fields{"document_id": task.DocumentID, "stage": task.Stage, "category": category})

	if err := c.casState(ctx, task.DocumentID, func(cur *types.DocumentState) types.DocumentState {
		return types.DocumentState{
			DocumentID: task.DocumentID,
			Stage:      task.Stage,
			Status:     types.TaskStatusFailed,
			StartedAt:  startedAtOrNow(cur),
			Error:      message,
		}
	}); err != nil {
		log.WithError(err).Error("failed to CAS document state to failed")
	}

	if err := c.ps.SetDocumentError(ctx, task.DocumentID, category, message); err != nil {
		return fmt.Errorf("record document failure: %w", err)
	}

	summary := types.DocumentStatusSummary{
		DocumentID:    task.DocumentID,
		OverallStatus: types.DocumentStatusFailed,
		CurrentStage:  task.Stage,
	}
	if err := c.ss.SetDocumentStatusSummary(ctx, summary); err != nil {
		log.WithError(err).Warn("failed to update document status summary")
	}

	log.Warn("document failed")
	return nil
}

func (c *Coordinator) advanceToStage(ctx context.Context, task types.ProcessingTask, next types.Stage, log *logrus.Entry) error {
	if err := c.casState(ctx, task.DocumentID, func(cur *types.DocumentState) types.DocumentState {
		return types.DocumentState{
			DocumentID: task.DocumentID,
			Stage:      next,
			Status:     types.TaskStatusInProgress,
			StartedAt:  time.Now(),
		}
	}); err != nil {
		return fmt.Errorf("cas document state to %s: %w", next, err)
	}

	if err := c.ps.UpdateDocumentStage(ctx, task.DocumentID, next, types.DocumentStatusRunning); err != nil {
		return fmt.Errorf("update document stage: %w", err)
	}

	if err := c.updateStatusSummary(ctx, task.DocumentID, types.DocumentStatusRunning, next, task.Stage); err != nil {
		log.WithError(err).Warn("failed to update document status summary")
	}

	// The next task keeps the same queue/priority as the task that just
	// completed: a batch submission fans a document's whole stage chain
	// onto its priority queue (batch.high/normal/low) rather than the
	// named per-stage queues, so preserving these fields keeps a
	// document's lifecycle on the queue it started on (§4.1, §4.7, §4.8).
	nextTask := types.ProcessingTask{
		ID:            uuidFromStage(task.DocumentID, next, task.RetryCount),
		DocumentID:    task.DocumentID,
		Stage:         next,
		Status:        types.TaskStatusPending,
		QueueName:     task.QueueName,
		Priority:      task.Priority,
		PredecessorID: &task.ID,
		CreatedAt:     time.Now(),
	}
	if err := c.ps.InsertTask(ctx, nextTask); err != nil {
		return fmt.Errorf("insert next task: %w", err)
	}
	if err := c.ss.EnqueueTask(ctx, nextTask.QueueName, nextTask); err != nil {
		return fmt.Errorf("enqueue next task: %w", err)
	}

	log.WithField("next_stage", next).Info("document advanced to next stage")
	return nil
}

func (c *Coordinator) completeDocument(ctx context.Context, task types.ProcessingTask, log *logrus.Entry) error {
	if err := c.casState(ctx, task.DocumentID, func(cur *types.DocumentState) types.DocumentState {
		return types.DocumentState{
			DocumentID: task.DocumentID,
			Stage:      task.Stage,
			Status:     types.TaskStatusCompleted,
			StartedAt:  startedAtOrNow(cur),
		}
	}); err != nil {
		return fmt.Errorf("cas document state to completed: %w", err)
	}

	if err := c.ps.UpdateDocumentStage(ctx, task.DocumentID, task.Stage, types.DocumentStatusCompleted); err != nil {
		return fmt.Errorf("update document stage: %w", err)
	}

	if err := c.updateStatusSummary(ctx, task.DocumentID, types.DocumentStatusCompleted, task.Stage, task.Stage); err != nil {
		log.WithError(err).Warn("failed to update document status summary")
	}

	log.Info("document completed")
	return nil
}

// updateStatusSummary refreshes doc:status:{uuid}, the hash BO's Monitor
// scans for batch progress (§4.8, §6). justCompleted is appended to
// StagesCompleted if not already present.
func (c *Coordinator) updateStatusSummary(ctx context.Context, docID uuid.UUID, overall types.DocumentStatus, current, justCompleted types.Stage) error {
	cur, err := c.ss.GetDocumentStatusSummary(ctx, docID)
	if err != nil {
		return fmt.Errorf("get document status summary: %w", err)
	}
	summary := types.DocumentStatusSummary{DocumentID: docID, OverallStatus: overall, CurrentStage: current}
	if cur != nil {
		summary.StagesCompleted = cur.StagesCompleted
	}
	found := false
	for _, s := range summary.StagesCompleted {
		if s == justCompleted {
			found = true
			break
		}
	}
	if !found {
		summary.StagesCompleted = append(summary.StagesCompleted, justCompleted)
	}
	return c.ss.SetDocumentStatusSummary(ctx, summary)
}

// casState reads the current document state, builds the replacement with
// build, and CAS-writes it, retrying on ErrVersionConflict up to
// maxCASRetries times since another racing writer's read may now be stale.
func (c *Coordinator) casState(ctx context.Context, docID uuid.UUID, build func(cur *types.DocumentState) types.DocumentState) error {
	for attempt := 0; attempt < maxCASRetries; attempt++ {
		cur, err := c.ss.GetDocumentState(ctx, docID)
		if err != nil {
			return fmt.Errorf("get document state: %w", err)
		}
		var expectedVersion int64
		if cur != nil {
			expectedVersion = cur.Version
		}
		next := build(cur)
		next.Version = expectedVersion + 1

		_, err = c.ss.CASDocumentState(ctx, expectedVersion, next)
		if err == nil {
			return nil
		}
		if err == statestore.ErrVersionConflict {
			continue
		}
		return err
	}
	return statestore.ErrVersionConflict
}

// uuidFromStage derives a stable task id for a document's entry into a
// stage, namespaced by retry count so a retried predecessor doesn't clash
// with an earlier attempt's successor task.
func uuidFromStage(docID uuid.UUID, stage types.Stage, retryCount int) uuid.UUID {
	return uuid.NewSHA1(docID, []byte(fmt.Sprintf("%s:%d", stage, retryCount)))
}

func startedAtOrNow(cur *types.DocumentState) time.Time {
	if cur != nil {
		return cur.StartedAt
	}
	return time.Now()
}
