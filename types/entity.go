package types

import (
	"time"

	"github.com/google/uuid"
)

// CanonicalEntity is the deduplicated representative of a cluster of
// mentions within a document's resolution scope (§3, §4.5).
type CanonicalEntity struct {
	ID            uuid.UUID  `json:"id"`
	DocumentID    uuid.UUID  `json:"document_id"`
	Type          EntityType `json:"type"`
	CanonicalName string     `json:"canonical_name"`
	Aliases       []string   `json:"aliases"`
	MentionCount  int        `json:"mention_count"`
	Confidence    float64    `json:"confidence"` // aggregate, see resolver.aggregateConfidence
	CreatedAt     time.Time  `json:"created_at"`
}

// Relationship is a directed typed edge between two canonical entities,
// staged for external graph load (§3, §4.6).
type Relationship struct {
	ID              uuid.UUID  `json:"id"`
	DocumentID      uuid.UUID  `json:"document_id"`
	FromEntityID    uuid.UUID  `json:"from_entity_id"`
	ToEntityID      uuid.UUID  `json:"to_entity_id"`
	Type            string     `json:"type"`
	Confidence      float64    `json:"confidence"`
	EvidenceChunkID *uuid.UUID `json:"evidence_chunk_id,omitempty"`
	EvidenceText    string     `json:"evidence_text,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

// Key returns the (from, to, type) uniqueness key for dedup (§3, §4.6).
func (r Relationship) Key() [3]string {
	return [3]string{r.FromEntityID.String(), r.ToEntityID.String(), r.Type}
}

// Valid reports the §3/§8 relationship-validity invariant: endpoints
// differ and both belong to the canonical set passed in.
func (r Relationship) Valid(canonicalIDs map[uuid.UUID]bool) bool {
	if r.FromEntityID == r.ToEntityID {
		return false
	}
	return canonicalIDs[r.FromEntityID] && canonicalIDs[r.ToEntityID]
}
