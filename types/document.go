// Package types defines the closed data model shared by every pipeline
// component: documents, chunks, mentions, canonical entities, staged
// relationships, processing tasks, OCR jobs and batches. Stage functions
// exchange only these types; nothing in this module passes around
// untyped maps the way the source system mixed dict/attribute access.
package types

import (
	"time"

	"github.com/google/uuid"
)

// DocumentStatus is the overall lifecycle status of a document.
type DocumentStatus string

const (
	DocumentStatusPending   DocumentStatus = "pending"
	DocumentStatusRunning   DocumentStatus = "running"
	DocumentStatusCompleted DocumentStatus = "completed"
	DocumentStatusFailed    DocumentStatus = "failed"
	DocumentStatusCancelled DocumentStatus = "cancelled"
)

// IsTerminal reports whether status admits no further stage transitions.
func (s DocumentStatus) IsTerminal() bool {
	return s == DocumentStatusCompleted || s == DocumentStatusFailed || s == DocumentStatusCancelled
}

// Stage is one of the six ordered steps a document moves through.
type Stage string

const (
	StageOCR                   Stage = "ocr"
	StageChunking               Stage = "chunking"
	StageEntityExtraction       Stage = "entity_extraction"
	StageEntityResolution       Stage = "entity_resolution"
	StageRelationshipBuilding   Stage = "relationship_building"
	StageFinalization           Stage = "finalization"
)

// Stages lists the six stages in execution order.
var Stages = []Stage{
	StageOCR,
	StageChunking,
	StageEntityExtraction,
	StageEntityResolution,
	StageRelationshipBuilding,
	StageFinalization,
}

// Next returns the stage that follows s, and false if s is the last stage.
func (s Stage) Next() (Stage, bool) {
	for i, st := range Stages {
		if st == s && i+1 < len(Stages) {
			return Stages[i+1], true
		}
	}
	return "", false
}

// LockTTL returns the stage-specific lock TTL from §4.1 (OCR gets a longer
// window; all other stages default to 30 minutes).
func (s Stage) LockTTL() time.Duration {
	if s == StageOCR {
		return 60 * time.Minute
	}
	return 30 * time.Minute
}

// Document is the unit of processing (§3).
type Document struct {
	ID              uuid.UUID      `json:"id"`
	ProjectID       uuid.UUID      `json:"project_id"`
	BlobLocation    string         `json:"blob_location"` // scheme://bucket/key
	OriginalFilename string        `json:"original_filename"`
	ContentHash     string         `json:"content_hash"`
	SizeBytes       int64          `json:"size_bytes"`
	MimeType        string         `json:"mime_type"`
	Status          DocumentStatus `json:"status"`
	CurrentStage    Stage          `json:"current_stage"`
	OcrJobID        *uuid.UUID     `json:"ocr_job_id,omitempty"`
	ErrorMessage    *string        `json:"error_message,omitempty"`
	ErrorCategory   *string        `json:"error_category,omitempty"`
	PageCount       int            `json:"page_count"`
	ChunkCount      int            `json:"chunk_count"`
	EntityCount     int            `json:"entity_count"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

// NewDocument creates a pending document with a deterministic identity.
func NewDocument(id, projectID uuid.UUID, blobLocation, filename string) *Document {
	now := time.Now()
	return &Document{
		ID:               id,
		ProjectID:        projectID,
		BlobLocation:     blobLocation,
		OriginalFilename: filename,
		Status:           DocumentStatusPending,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}
