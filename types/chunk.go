package types

import (
	"time"

	"github.com/google/uuid"
)

// Chunk is an immutable text window of a document (§3). Indices are dense
// and strictly increasing per document; the chunk set is closed once
// chunking completes for a document.
type Chunk struct {
	ID          uuid.UUID      `json:"id"`
	DocumentID  uuid.UUID      `json:"document_id"`
	ChunkIndex  int            `json:"chunk_index"` // 0-based, contiguous
	Text        string         `json:"text"`
	StartOffset int            `json:"start_offset"` // char-range [start,end)
	EndOffset   int            `json:"end_offset"`
	PageStart   *int           `json:"page_start,omitempty"`
	PageEnd     *int           `json:"page_end,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

// Len returns the character length of the chunk's text.
func (c Chunk) Len() int {
	return len([]rune(c.Text))
}

// ValidateChunkSet checks the invariants of §3/§8: dense contiguous indices
// starting at 0, and non-decreasing char ranges.
func ValidateChunkSet(chunks []Chunk) error {
	for i, c := range chunks {
		if c.ChunkIndex != i {
			return &InvariantError{Msg: "chunk indices are not dense/contiguous"}
		}
		if i > 0 && c.StartOffset < chunks[i-1].StartOffset {
			return &InvariantError{Msg: "chunk char ranges are not non-decreasing"}
		}
		if c.EndOffset < c.StartOffset {
			return &InvariantError{Msg: "chunk end offset precedes start offset"}
		}
	}
	return nil
}

// InvariantError marks a violation of a data-model invariant from §3/§8.
type InvariantError struct {
	Msg string
}

func (e *InvariantError) Error() string { return "invariant violation: " + e.Msg }
