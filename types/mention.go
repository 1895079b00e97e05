package types

import (
	"time"

	"github.com/google/uuid"
)

// EntityType is the whitelisted mention/canonical type enum (§4.4).
type EntityType string

const (
	EntityPerson EntityType = "PERSON"
	EntityOrg    EntityType = "ORG"
	EntityLoc    EntityType = "LOC"
	EntityDate   EntityType = "DATE"
	EntityMoney  EntityType = "MONEY"
	EntityOther  EntityType = "OTHER"
)

// AllowedEntityTypes is the default type whitelist used by the extractor's
// type-whitelist policy (§4.4).
var AllowedEntityTypes = map[EntityType]bool{
	EntityPerson: true,
	EntityOrg:    true,
	EntityLoc:    true,
	EntityDate:   true,
	EntityMoney:  true,
	EntityOther:  true,
}

// ExtractionMethod records which code path produced a mention (§4.4).
type ExtractionMethod string

const (
	ExtractionMethodRemote ExtractionMethod = "remote_llm"
	ExtractionMethodLocal  ExtractionMethod = "local_fallback"
)

// EntityMention is an occurrence of an entity in one chunk (§3).
type EntityMention struct {
	ID                 uuid.UUID      `json:"id"`
	DocumentID         uuid.UUID      `json:"document_id"`
	ChunkID            uuid.UUID      `json:"chunk_id"`
	ChunkIndex         int            `json:"chunk_index"` // denormalized for ordering (§4.4)
	Text               string         `json:"text"`
	Type               EntityType     `json:"type"`
	Confidence         float64        `json:"confidence"` // [0,1]
	StartOffset        int            `json:"start_offset"`
	EndOffset          int            `json:"end_offset"`
	CanonicalEntityID  *uuid.UUID     `json:"canonical_entity_id,omitempty"`
	UnresolvedReason   *string        `json:"unresolved_reason,omitempty"`
	ExtractionMethod   ExtractionMethod `json:"extraction_method"`
	CreatedAt          time.Time      `json:"created_at"`
}

// WithinChunk reports whether the mention's offsets fall inside a chunk of
// length chunkLen (§3 invariant: mention locality).
func (m EntityMention) WithinChunk(chunkLen int) bool {
	return m.StartOffset >= 0 && m.EndOffset <= chunkLen && m.StartOffset < m.EndOffset
}

// MentionSortKey orders mentions in (chunk_index, start_offset) order per
// §4.4's output-ordering requirement.
type MentionSortKey struct {
	ChunkIndex  int
	StartOffset int
}

func (m EntityMention) SortKey() MentionSortKey {
	return MentionSortKey{ChunkIndex: m.ChunkIndex, StartOffset: m.StartOffset}
}

// Less implements the (chunk_index, start_offset) total order.
func (k MentionSortKey) Less(other MentionSortKey) bool {
	if k.ChunkIndex != other.ChunkIndex {
		return k.ChunkIndex < other.ChunkIndex
	}
	return k.StartOffset < other.StartOffset
}
