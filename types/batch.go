package types

import (
	"time"

	"github.com/google/uuid"
)

// Batch is a submitted group of documents (§3, §4.8).
type Batch struct {
	ID          uuid.UUID   `json:"id"`
	ProjectID   uuid.UUID   `json:"project_id"`
	Priority    Priority    `json:"priority"`
	DocumentIDs []uuid.UUID `json:"document_ids"`
	WarmCache   bool        `json:"warm_cache"`
	MaxRetries  int         `json:"max_retries"`
	SubmittedAt time.Time   `json:"submitted_at"`
}

// BatchOptions configures batch submission (§6 submit_batch.options).
type BatchOptions struct {
	WarmCache        bool
	MaxRetries       int
	EntityResolution bool
}

// BatchStageCounts buckets document counts by (stage, status) for progress
// reporting (§4.8 Monitor).
type BatchStageCounts map[Stage]map[DocumentStatus]int

// BatchProgress is the computed progress aggregate for a batch (§4.8).
type BatchProgress struct {
	BatchID           uuid.UUID        `json:"batch_id"`
	Total             int              `json:"total"`
	Completed         int              `json:"completed"`
	Failed            int              `json:"failed"`
	Cancelled         int              `json:"cancelled"`
	InProgress        int              `json:"in_progress"`
	ByStageAndStatus  BatchStageCounts `json:"by_stage_and_status"`
	PercentComplete   float64          `json:"percent_complete"`
	Elapsed           time.Duration    `json:"elapsed"`
	ETA               time.Duration    `json:"eta"`
	OverallStatus     string           `json:"overall_status"` // running | completed | partial_success | failed
	FailureDetails    []FailureDetail  `json:"failure_details,omitempty"`
}

// FailureDetail surfaces a per-document error for a batch report (§7).
type FailureDetail struct {
	DocumentID   uuid.UUID `json:"document_id"`
	Stage        Stage     `json:"stage"`
	Category     string    `json:"category"`
	Message      string    `json:"message"`
}

// RecoveryStrategy is BO's classification of how to retry failed documents
// in a batch (§4.8 Recover).
type RecoveryStrategy string

const (
	RecoveryImmediate RecoveryStrategy = "immediate"
	RecoveryDelayed   RecoveryStrategy = "delayed"
	RecoveryManual    RecoveryStrategy = "manual"
)

// RecoveryPlan describes how BO will retry a batch's failed documents.
type RecoveryPlan struct {
	BatchID        uuid.UUID        `json:"batch_id"`
	Strategy       RecoveryStrategy `json:"strategy"`
	FailedDocs     []uuid.UUID      `json:"failed_docs"`
	FailureRate    float64          `json:"failure_rate"`
	RetryCount     int              `json:"retry_count"`
	Delay          time.Duration    `json:"delay,omitempty"`
}
