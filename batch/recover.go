package batch

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/joeott/legal-doc-processor-sub013/types"
)

// Recover collects the batch's failed documents and classifies a retry
// strategy (§4.8):
//   - immediate, if failure rate ≤ 50% and retry_count < max_retries
//   - delayed, if failure rate > 50% (≥ 10 min delay)
//   - manual, if retry_count ≥ max_retries
func (o *Orchestrator) Recover(ctx context.Context, batchID uuid.UUID) (*types.RecoveryPlan, error) {
	manifest, err := o.ss.GetBatchManifest(ctx, batchID)
	if err != nil {
		return nil, fmt.Errorf("get batch manifest: %w", err)
	}
	if manifest == nil {
		return nil, fmt.Errorf("batch %s: manifest not found", batchID)
	}

	var failedDocs []uuid.UUID
	for _, docID := range manifest.DocumentIDs {
		summary, err := o.ss.GetDocumentStatusSummary(ctx, docID)
		if err != nil {
			return nil, fmt.Errorf("get status summary for %s: %w", docID, err)
		}
		if summary != nil && summary.OverallStatus == types.DocumentStatusFailed {
			failedDocs = append(failedDocs, docID)
		}
	}

	total := len(manifest.DocumentIDs)
	var failureRate float64
	if total > 0 {
		failureRate = float64(len(failedDocs)) / float64(total)
	}

	retryCount, err := o.ss.GetBatchRetryCount(ctx, batchID)
	if err != nil {
		return nil, fmt.Errorf("get batch retry count: %w", err)
	}

	maxRetries := manifest.MaxRetries
	plan := types.RecoveryPlan{
		BatchID:     batchID,
		FailedDocs:  failedDocs,
		FailureRate: failureRate,
		RetryCount:  int(retryCount),
	}

	switch {
	case int(retryCount) >= maxRetries:
		plan.Strategy = types.RecoveryManual
	case failureRate > HighFailureRateThreshold:
		plan.Strategy = types.RecoveryDelayed
		plan.Delay = MinRecoveryDelay
	default:
		plan.Strategy = types.RecoveryImmediate
	}

	return &plan, nil
}

// Execute re-enqueues a RecoveryPlan's failed documents with retry_count
// incremented, immediately or after plan.Delay (§4.8). A "manual" plan is
// a no-op: BO surfaces it for an operator, it does not self-execute.
func (o *Orchestrator) Execute(ctx context.Context, plan types.RecoveryPlan) error {
	if plan.Strategy == types.RecoveryManual {
		return nil
	}

	if _, err := o.ss.IncrBatchRetryCount(ctx, plan.BatchID); err != nil {
		return fmt.Errorf("incr batch retry count: %w", err)
	}

	for _, docID := range plan.FailedDocs {
		tasks, err := o.ps.ListTasksByDocument(ctx, docID)
		if err != nil {
			return fmt.Errorf("list tasks for document %s: %w", docID, err)
		}
		failedTask, ok := latestFailedTask(tasks)
		if !ok {
			continue
		}

		retryTask := types.ProcessingTask{
			ID:            uuid.New(),
			DocumentID:    docID,
			Stage:         failedTask.Stage,
			Status:        types.TaskStatusPending,
			QueueName:     failedTask.QueueName,
			Priority:      failedTask.Priority,
			RetryCount:    failedTask.RetryCount + 1,
			PredecessorID: &failedTask.ID,
			CreatedAt:     time.Now(),
		}
		if err := o.ps.InsertTask(ctx, retryTask); err != nil {
			return fmt.Errorf("insert retry task for document %s: %w", docID, err)
		}

		if plan.Strategy == types.RecoveryDelayed {
			delay := plan.Delay
			if delay < MinRecoveryDelay {
				delay = MinRecoveryDelay
			}
			if err := o.ss.EnqueueTaskDelayed(ctx, retryTask.QueueName, retryTask, delay); err != nil {
				return fmt.Errorf("schedule delayed retry for document %s: %w", docID, err)
			}
			continue
		}
		if err := o.ss.EnqueueTask(ctx, retryTask.QueueName, retryTask); err != nil {
			return fmt.Errorf("enqueue retry for document %s: %w", docID, err)
		}
	}
	return nil
}

// latestFailedTask returns the most recent failed attempt from a
// document's task history (tasks are newest-first, per
// ListTasksByDocument's ordering).
func latestFailedTask(tasks []types.ProcessingTask) (types.ProcessingTask, bool) {
	for _, t := range tasks {
		if t.Status == types.TaskStatusFailed {
			return t, true
		}
	}
	return types.ProcessingTask{}, false
}
