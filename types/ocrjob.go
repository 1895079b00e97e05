package types

import (
	"time"

	"github.com/google/uuid"
)

// OcrJobStatus mirrors the external provider's reported status (§3, §6).
type OcrJobStatus string

const (
	OcrJobInProgress OcrJobStatus = "in_progress"
	OcrJobCompleted  OcrJobStatus = "completed"
	OcrJobFailed     OcrJobStatus = "failed"
)

// OcrJob is metadata for an outstanding async OCR job (§3).
type OcrJob struct {
	ID           uuid.UUID    `json:"id"`
	ProviderJobID string      `json:"provider_job_id"`
	DocumentID   uuid.UUID    `json:"document_id"`
	Status       OcrJobStatus `json:"status"`
	SubmittedAt  time.Time    `json:"submitted_at"`
	Attempts     int          `json:"attempts"` // poll count, bounded by max_retries (§4.2)
	PageCount    int          `json:"page_count"`
	ErrorMessage *string      `json:"error_message,omitempty"`
	ResultText   *string      `json:"result_text,omitempty"`
	Scanned      bool         `json:"scanned"` // classified per the scanned-PDF heuristic (§4.2)
}
