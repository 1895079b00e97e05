package ocr

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/joeott/legal-doc-processor-sub013/pipelineerr"
	"github.com/joeott/legal-doc-processor-sub013/statestore"
	"github.com/joeott/legal-doc-processor-sub013/types"
)

// BlobSource is the narrow slice of the Blob Store the adapter needs:
// fetching the source PDF bytes to classify before Submit hands the key
// off to the provider. Accepting this instead of *blobstore.Store directly
// keeps Adapter testable without a live S3 endpoint.
type BlobSource interface {
	Get(ctx context.Context, key string) ([]byte, error)
}

// MaxSubmissionRetries bounds ocr.submit's own retry loop before the stage
// fails with a TRANSIENT category (§4.2, §7).
const MaxSubmissionRetries = 3

// MaxPollRetries bounds ocr.poll's retry count before the job is declared
// timed out (§4.2: "poll-exhaustion at max_retries (default 30) ->
// ocr_timeout").
const MaxPollRetries = 30

// Adapter wires a Provider to the Blob Store and State Store, implementing
// the two-sub-task async model OA exposes to the pipeline runtime:
// ocr.submit uploads/starts the job, ocr.poll advances it to completion.
type Adapter struct {
	provider  Provider
	blobs     BlobSource
	state     *statestore.Store
	minBlocks int
}

// New builds an Adapter. minBlocksPerPage overrides MinTextBlocksPerPage
// when positive.
func New(provider Provider, blobs BlobSource, state *statestore.Store, minBlocksPerPage int) *Adapter {
	if minBlocksPerPage <= 0 {
		minBlocksPerPage = MinTextBlocksPerPage
	}
	return &Adapter{provider: provider, blobs: blobs, state: state, minBlocks: minBlocksPerPage}
}

// Submit runs the ocr.submit sub-task: it fetches the source PDF bytes
// already at doc.BlobLocation, classifies scanned-vs-text pages, starts the
// provider job, and records job metadata in SS under job:ocr:{job_id}
// (§4.2, §6). It makes up to MaxSubmissionRetries provider submission
// attempts, with exponential backoff between them, before giving up with a
// retryable StageError.
func (a *Adapter) Submit(ctx context.Context, doc types.Document, blobKey string) (types.OcrJob, error) {
	pdfBytes, err := a.blobs.Get(ctx, blobKey)
	if err != nil {
		return types.OcrJob{}, pipelineerr.NewStageError(pipelineerr.CategoryResource, "source_fetch_failed", err)
	}
	if !looksLikePDF(pdfBytes) {
		return types.OcrJob{}, pipelineerr.NewStageError(pipelineerr.CategoryData, "not_a_pdf", nil)
	}

	scanned, _ := ClassifyScanned(pdfBytes, a.minBlocks)

	var handle JobHandle
	submit := func() error {
		var err error
		handle, err = a.provider.Submit(ctx, blobKey, doc.MimeType)
		return err
	}
	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), MaxSubmissionRetries-1), ctx)
	if lastErr := backoff.Retry(submit, bo); lastErr != nil {
		return types.OcrJob{}, pipelineerr.NewStageError(pipelineerr.CategoryTransient, "ocr_submit_failed", lastErr)
	}

	job := types.OcrJob{
		ID:            uuid.NewSHA1(doc.ID, []byte("doc:ocrjob")),
		ProviderJobID: handle.ProviderJobID,
		DocumentID:    doc.ID,
		Status:        types.OcrJobInProgress,
		SubmittedAt:   time.Now(),
		Scanned:       scanned,
	}
	if err := a.state.SetOcrJobHash(ctx, job.ProviderJobID, job); err != nil {
		return types.OcrJob{}, pipelineerr.NewStageError(pipelineerr.CategoryResource, "job_cache_write_failed", err)
	}
	return job, nil
}

// Poll runs one ocr.poll sub-task iteration: it asks the provider for the
// job's current status, updates the cached job record, and returns the
// result text once the provider reports completion. Callers are expected to
// re-invoke Poll (typically via the task runtime's scheduler) while
// PollResult.Status == in_progress, until either completion, provider
// failure, or MaxPollRetries is exhausted (§4.2, §7 ocr_timeout).
func (a *Adapter) Poll(ctx context.Context, job types.OcrJob) (types.OcrJob, string, error) {
	if job.Attempts >= MaxPollRetries {
		job.Status = types.OcrJobFailed
		reason := "ocr_timeout"
		job.ErrorMessage = &reason
		_ = a.state.SetOcrJobHash(ctx, job.ProviderJobID, job)
		return job, "", pipelineerr.NewStageError(pipelineerr.CategoryTransient, "ocr_timeout", nil)
	}

	result, err := a.provider.Poll(ctx, JobHandle{ProviderJobID: job.ProviderJobID})
	if err != nil {
		job.Attempts++
		_ = a.state.SetOcrJobHash(ctx, job.ProviderJobID, job)
		return job, "", pipelineerr.NewStageError(pipelineerr.CategoryTransient, "ocr_poll_failed", err)
	}

	switch result.Status {
	case PollInProgress:
		job.Attempts++
		if err := a.state.SetOcrJobHash(ctx, job.ProviderJobID, job); err != nil {
			return job, "", pipelineerr.NewStageError(pipelineerr.CategoryResource, "job_cache_write_failed", err)
		}
		return job, "", nil

	case PollFailed:
		job.Status = types.OcrJobFailed
		job.ErrorMessage = &result.Reason
		_ = a.state.SetOcrJobHash(ctx, job.ProviderJobID, job)
		return job, "", pipelineerr.NewStageError(pipelineerr.CategoryPermanent, "ocr_provider_failed", fmt.Errorf("%s", result.Reason))

	case PollCompleted:
		text := joinBlocks(result.Blocks)
		job.Status = types.OcrJobCompleted
		job.PageCount = result.Pages
		job.ResultText = &text
		if err := a.state.SetOcrJobHash(ctx, job.ProviderJobID, job); err != nil {
			return job, "", pipelineerr.NewStageError(pipelineerr.CategoryResource, "job_cache_write_failed", err)
		}
		if err := a.state.SetOCRCache(ctx, job.DocumentID, text); err != nil {
			return job, "", pipelineerr.NewStageError(pipelineerr.CategoryResource, "ocr_cache_write_failed", err)
		}
		return job, text, nil

	default:
		return job, "", pipelineerr.NewStageError(pipelineerr.CategoryPermanent, "unknown_poll_status", nil)
	}
}

// Cancel delegates to the provider. The cached job:ocr:{job_id} record is
// left in place.
func (a *Adapter) Cancel(ctx context.Context, job types.OcrJob) error {
	if err := a.provider.Cancel(ctx, JobHandle{ProviderJobID: job.ProviderJobID}); err != nil {
		return pipelineerr.NewStageError(pipelineerr.CategoryTransient, "ocr_cancel_failed", err)
	}
	return nil
}

// joinBlocks concatenates provider text blocks into the single OCR text
// body stored in doc:ocr:{doc} (§6). Providers may emit blocks out of page
// order across paginated results, so blocks are sorted by PageNumber first
// (§4.2: "concatenates page text deterministically, ascending page order");
// the sort is stable so within-page block order is preserved.
func joinBlocks(blocks []Block) string {
	sorted := make([]Block, len(blocks))
	copy(sorted, blocks)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].PageNumber < sorted[j].PageNumber
	})

	parts := make([]string, 0, len(sorted))
	for _, b := range sorted {
		parts = append(parts, b.Text)
	}
	return strings.Join(parts, "\n")
}
