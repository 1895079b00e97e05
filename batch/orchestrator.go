// Package batch implements the Batch Orchestrator (BO): submit, monitor,
// recover and execute over a group of documents submitted together at one
// priority (§4.8).
package batch

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/joeott/legal-doc-processor-sub013/pgstore"
	"github.com/joeott/legal-doc-processor-sub013/statestore"
	"github.com/joeott/legal-doc-processor-sub013/types"
)

// WarmCacheThreshold is the minimum batch size that triggers cache
// warming when BatchOptions.WarmCache is set (§4.8 default 5).
const WarmCacheThreshold = 5

// QueueDepthBackpressureThreshold is the default queue-depth ceiling past
// which BO delays new batch enqueues (§5 default 100).
const QueueDepthBackpressureThreshold = 100

// MinRecoveryDelay is the floor on a "delayed" recovery plan's re-enqueue
// delay (§4.8: "introduces ≥ 10 min delay").
const MinRecoveryDelay = 10 * time.Minute

// HighFailureRateThreshold separates "immediate" from "delayed" recovery
// (§4.8: delayed if failure rate > 50%).
const HighFailureRateThreshold = 0.5

// CacheWarmer is the narrow interface BO needs from CW, kept separate so
// this package doesn't import cachewarmer directly (the caller wires the
// concrete implementation in).
type CacheWarmer interface {
	WarmBatch(ctx context.Context, batchID, projectID uuid.UUID, documentIDs []uuid.UUID) error
}

// Orchestrator runs BO's four operations against SS and PS (§4.8).
type Orchestrator struct {
	ss *statestore.Store
	ps *pgstore.Store
	cw CacheWarmer
}

func New(ss *statestore.Store, ps *pgstore.Store, cw CacheWarmer) *Orchestrator {
	return &Orchestrator{ss: ss, ps: ps, cw: cw}
}

// ErrBackpressure is returned by Submit when the target priority queue is
// too deep to accept more work (§5 backpressure).
type ErrBackpressure struct {
	QueueName string
	Depth     int64
}

func (e *ErrBackpressure) Error() string {
	return fmt.Sprintf("batch: queue %q depth %d exceeds backpressure threshold", e.QueueName, e.Depth)
}

// Submit builds a Batch manifest, fans out a first-stage (OCR) task per
// document onto the batch's priority queue, initializes per-document
// state, and optionally triggers cache warming (§4.8).
func (o *Orchestrator) Submit(ctx context.Context, projectID uuid.UUID, documentIDs []uuid.UUID, priority types.Priority, opts types.BatchOptions) (*types.Batch, error) {
	queueName := priority.QueueName()

	// Low-priority batches respect backpressure; high/normal proceed since
	// BO's own priority scheme already protects them from low-priority
	// queue buildup (§5: "CW disables itself for low priority batches" is
	// the companion rule, applied in Submit's cache-warm branch below).
	if priority == types.PriorityLow {
		depth, err := o.ss.QueueDepth(ctx, queueName)
		if err != nil {
			return nil, fmt.Errorf("check queue depth: %w", err)
		}
		if depth > QueueDepthBackpressureThreshold {
			return nil, &ErrBackpressure{QueueName: queueName, Depth: depth}
		}
	}

	b := types.Batch{
		ID:          uuid.New(),
		ProjectID:   projectID,
		Priority:    priority,
		DocumentIDs: documentIDs,
		WarmCache:   opts.WarmCache,
		MaxRetries:  opts.MaxRetries,
		SubmittedAt: time.Now(),
	}
	if err := o.ss.SetBatchManifest(ctx, b); err != nil {
		return nil, fmt.Errorf("write batch manifest: %w", err)
	}

	taskIDs := make([]uuid.UUID, 0, len(documentIDs))
	for _, docID := range documentIDs {
		task := types.ProcessingTask{
			ID:         uuid.New(),
			DocumentID: docID,
			Stage:      types.StageOCR,
			Status:     types.TaskStatusPending,
			QueueName:  queueName,
			Priority:   priority,
			CreatedAt:  time.Now(),
		}
		if err := o.ps.InsertTask(ctx, task); err != nil {
			return nil, fmt.Errorf("insert task for document %s: %w", docID, err)
		}
		if err := o.ss.EnqueueTask(ctx, queueName, task); err != nil {
			return nil, fmt.Errorf("enqueue task for document %s: %w", docID, err)
		}
		taskIDs = append(taskIDs, task.ID)

		summary := types.DocumentStatusSummary{
			DocumentID:      docID,
			OverallStatus:   types.DocumentStatusPending,
			CurrentStage:    types.StageOCR,
			StagesCompleted: nil,
		}
		if err := o.ss.SetDocumentStatusSummary(ctx, summary); err != nil {
			return nil, fmt.Errorf("set status summary for document %s: %w", docID, err)
		}

		state := types.DocumentState{DocumentID: docID, Stage: types.StageOCR, Status: types.TaskStatusPending, StartedAt: time.Now(), Version: 0}
		if _, err := o.ss.CASDocumentState(ctx, 0, state); err != nil && err != statestore.ErrVersionConflict {
			return nil, fmt.Errorf("init document state for %s: %w", docID, err)
		}
	}
	if err := o.ss.SetBatchTaskIDs(ctx, b.ID, taskIDs); err != nil {
		return nil, fmt.Errorf("write batch task ids: %w", err)
	}

	if opts.WarmCache && priority != types.PriorityLow && len(documentIDs) >= WarmCacheThreshold && o.cw != nil {
		if priority == types.PriorityHigh {
			if err := o.cw.WarmBatch(ctx, b.ID, projectID, documentIDs); err != nil {
				return nil, fmt.Errorf("warm cache: %w", err)
			}
		} else {
			go func() {
				_ = o.cw.WarmBatch(context.Background(), b.ID, projectID, documentIDs)
			}()
		}
	}

	return &b, nil
}
