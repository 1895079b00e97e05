package types

import (
	"time"

	"github.com/google/uuid"
)

// DocumentState is the SS-resident hash tracking a document's live stage
// progress (§3 DocumentState, §6 doc:state:{uuid}). PC is the sole writer;
// stage workers read-then-CAS through PC via a monotonically increasing
// Version field to avoid lost updates (§5).
type DocumentState struct {
	DocumentID  uuid.UUID      `json:"document_id"`
	Stage       Stage          `json:"stage"`
	Status      TaskStatus     `json:"status"`
	StartedAt   time.Time      `json:"started_at"`
	Error       string         `json:"error,omitempty"`
	Version     int64          `json:"version"`
}

// DocumentStatusSummary is the SS hash at doc:status:{uuid} used by BO's
// Monitor (§4.8, §6 doc:status:{uuid}).
type DocumentStatusSummary struct {
	DocumentID       uuid.UUID `json:"document_id"`
	OverallStatus    DocumentStatus `json:"overall_status"`
	CurrentStage     Stage     `json:"current_stage"`
	StagesCompleted  []Stage   `json:"stages_completed"`
}
