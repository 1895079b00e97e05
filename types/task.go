package types

import (
	"time"

	"github.com/google/uuid"
)

// TaskStatus is the lifecycle of one ProcessingTask attempt (§3).
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
	TaskStatusCancelled  TaskStatus = "cancelled"
)

// ProcessingTask is one attempt of one stage on one document (§3).
type ProcessingTask struct {
	ID           uuid.UUID  `json:"id"`
	DocumentID   uuid.UUID  `json:"document_id"`
	Stage        Stage      `json:"stage"`
	Status       TaskStatus `json:"status"`
	QueueName    string     `json:"queue_name"`
	Priority     Priority   `json:"priority"`
	RetryCount   int        `json:"retry_count"`
	ErrorMessage *string    `json:"error_message,omitempty"`
	ErrorCategory *string   `json:"error_category,omitempty"`
	PredecessorID *uuid.UUID `json:"predecessor_id,omitempty"` // the failed task this one retries
	CreatedAt    time.Time  `json:"created_at"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}

// Priority is a batch submission priority (§4.8, §6).
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityNormal Priority = "normal"
	PriorityLow    Priority = "low"
)

// QueueName maps a stage to the TR queue it runs on (§4.7).
func (s Stage) QueueName() string {
	switch s {
	case StageOCR:
		return "ocr"
	case StageChunking:
		return "text"
	case StageEntityExtraction, StageEntityResolution:
		return "entity"
	case StageRelationshipBuilding:
		return "graph"
	case StageFinalization:
		return "cleanup"
	default:
		return "default"
	}
}

// QueueName returns the batch priority queue name for TR (§4.7).
func (p Priority) QueueName() string {
	return "batch." + string(p)
}
