package batch

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/joeott/legal-doc-processor-sub013/types"
)

// Monitor scans doc:status:{doc} for every document in the batch and
// computes progress: counts by (stage, status), overall percent
// complete, elapsed time, and an ETA derived from the observed average
// completion time (§4.8).
func (o *Orchestrator) Monitor(ctx context.Context, batchID uuid.UUID) (*types.BatchProgress, error) {
	manifest, err := o.ss.GetBatchManifest(ctx, batchID)
	if err != nil {
		return nil, fmt.Errorf("get batch manifest: %w", err)
	}
	if manifest == nil {
		return nil, fmt.Errorf("batch %s: manifest not found", batchID)
	}

	counts := make(types.BatchStageCounts)
	var completed, failed, cancelled, inProgress int
	var completedDurations []time.Duration
	var failureDetails []types.FailureDetail

	for _, docID := range manifest.DocumentIDs {
		summary, err := o.ss.GetDocumentStatusSummary(ctx, docID)
		if err != nil {
			return nil, fmt.Errorf("get status summary for %s: %w", docID, err)
		}
		if summary == nil {
			continue
		}

		if counts[summary.CurrentStage] == nil {
			counts[summary.CurrentStage] = make(map[types.DocumentStatus]int)
		}
		counts[summary.CurrentStage][summary.OverallStatus]++

		switch summary.OverallStatus {
		case types.DocumentStatusCompleted:
			completed++
			if doc, err := o.ps.GetDocument(ctx, docID); err == nil && doc != nil {
				completedDurations = append(completedDurations, doc.UpdatedAt.Sub(doc.CreatedAt))
			}
		case types.DocumentStatusFailed:
			failed++
			if doc, err := o.ps.GetDocument(ctx, docID); err == nil && doc != nil && doc.ErrorCategory != nil {
				msg := ""
				if doc.ErrorMessage != nil {
					msg = *doc.ErrorMessage
				}
				failureDetails = append(failureDetails, types.FailureDetail{
					DocumentID: docID,
					Stage:      summary.CurrentStage,
					Category:   *doc.ErrorCategory,
					Message:    msg,
				})
			}
		case types.DocumentStatusCancelled:
			cancelled++
		default:
			inProgress++
		}
	}

	total := len(manifest.DocumentIDs)
	var percent float64
	if total > 0 {
		percent = 100 * float64(completed+failed+cancelled) / float64(total)
	}

	elapsed := time.Since(manifest.SubmittedAt)
	remaining := total - completed - failed - cancelled
	eta := estimatedTimeRemaining(completedDurations, remaining)

	overall := overallStatus(total, completed, failed, cancelled)

	progress := types.BatchProgress{
		BatchID:          batchID,
		Total:            total,
		Completed:        completed,
		Failed:           failed,
		Cancelled:        cancelled,
		InProgress:       inProgress,
		ByStageAndStatus: counts,
		PercentComplete:  percent,
		Elapsed:          elapsed,
		ETA:              eta,
		OverallStatus:    overall,
		FailureDetails:   failureDetails,
	}
	if err := o.ss.SetBatchProgress(ctx, progress); err != nil {
		return nil, fmt.Errorf("set batch progress: %w", err)
	}
	return &progress, nil
}

// estimatedTimeRemaining is ETA = avg_time_per_completed × remaining
// (§4.8). With no completed documents yet, there is no basis for an
// estimate, so it returns 0 rather than guessing.
func estimatedTimeRemaining(completedDurations []time.Duration, remaining int) time.Duration {
	if len(completedDurations) == 0 || remaining <= 0 {
		return 0
	}
	var sum time.Duration
	for _, d := range completedDurations {
		sum += d
	}
	avg := sum / time.Duration(len(completedDurations))
	return avg * time.Duration(remaining)
}

// overallStatus implements §7's partial-success rule: running while any
// document is unfinished; once all are finished, completed when none
// failed, partial_success when some failed and others completed, and
// failed when some failed and none completed.
func overallStatus(total, completed, failed, cancelled int) string {
	done := completed + failed + cancelled
	if done < total {
		return "running"
	}
	if failed == 0 {
		return "completed"
	}
	if completed > 0 {
		return "partial_success"
	}
	return "failed"
}
