package pgstore

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/joeott/legal-doc-processor-sub013/types"
)

// InsertRelationship stages one directed edge, deduped on the
// (document, from, to, type) unique constraint: a conflicting insert keeps
// whichever confidence is higher, together with that row's evidence. The
// relationship builder's own dedup (§4.6: highest confidence, evidence from
// the first supporting chunk) runs in Build before any insert.
func (s *Store) InsertRelationship(ctx context.Context, tx pgx.Tx, r types.Relationship) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO relationship_staging
			(id, document_id, from_entity_id, to_entity_id, type, confidence,
			 evidence_chunk_id, evidence_text, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (document_id, from_entity_id, to_entity_id, type) DO UPDATE SET
			confidence = GREATEST(relationship_staging.confidence, EXCLUDED.confidence),
			evidence_chunk_id = CASE
				WHEN relationship_staging.confidence < EXCLUDED.confidence
				THEN EXCLUDED.evidence_chunk_id ELSE relationship_staging.evidence_chunk_id END,
			evidence_text = CASE
				WHEN relationship_staging.confidence < EXCLUDED.confidence
				THEN EXCLUDED.evidence_text ELSE relationship_staging.evidence_text END
	`, r.ID, r.DocumentID, r.FromEntityID, r.ToEntityID, r.Type, r.Confidence,
		r.EvidenceChunkID, r.EvidenceText, r.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert relationship: %w", err)
	}
	return nil
}

// GetRelationshipsByDocument returns every staged relationship for a
// document, the set finalization hands off to the external graph load
// (§4.7, §4.6 Non-goals: "does not write to the graph store itself").
func (s *Store) GetRelationshipsByDocument(ctx context.Context, docID uuid.UUID) ([]types.Relationship, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, document_id, from_entity_id, to_entity_id, type, confidence,
		       evidence_chunk_id, evidence_text, created_at
		FROM relationship_staging WHERE document_id = $1
	`, docID)
	if err != nil {
		return nil, fmt.Errorf("get relationships by document: %w", err)
	}
	defer rows.Close()

	var rels []types.Relationship
	for rows.Next() {
		var r types.Relationship
		if err := rows.Scan(&r.ID, &r.DocumentID, &r.FromEntityID, &r.ToEntityID, &r.Type,
			&r.Confidence, &r.EvidenceChunkID, &r.EvidenceText, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan relationship: %w", err)
		}
		rels = append(rels, r)
	}
	return rels, rows.Err()
}
