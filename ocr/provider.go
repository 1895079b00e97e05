// Package ocr implements the OCR Adapter (OA): the async submit/poll/cancel
// contract over an external OCR provider (§4.2) and the scanned-PDF
// classification heuristic. Pages are not rasterized: a scanned PDF is
// submitted to the provider whole, like any other, and the classification
// is only recorded on the job (OcrJob.Scanned).
package ocr

import "context"

// JobHandle identifies an in-flight OCR job at the provider.
type JobHandle struct {
	ProviderJobID string
}

// PollStatus is the provider's reported state for a job (§4.2: "poll(JobHandle)
// -> {in_progress|completed(pages, blocks)|failed(reason)}").
type PollStatus string

const (
	PollInProgress PollStatus = "in_progress"
	PollCompleted  PollStatus = "completed"
	PollFailed     PollStatus = "failed"
)

// Block is one unit of machine-extracted text on a page, ordered the way the
// provider emits it (line or word granularity, provider-dependent).
type Block struct {
	PageNumber int
	Text       string
}

// PollResult carries whichever fields apply to Status.
type PollResult struct {
	Status PollStatus
	Pages  int
	Blocks []Block
	Reason string // set when Status == PollFailed
}

// Provider is the black-box external OCR contract (§4.2). Submit starts an
// async job against a document already resident in the Blob Store at
// blobKey; Poll is called repeatedly until the job leaves in_progress;
// Cancel best-effort stops a job the pipeline no longer needs.
type Provider interface {
	Submit(ctx context.Context, blobKey string, mimeType string) (JobHandle, error)
	Poll(ctx context.Context, job JobHandle) (PollResult, error)
	Cancel(ctx context.Context, job JobHandle) error
}
