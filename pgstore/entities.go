package pgstore

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/joeott/legal-doc-processor-sub013/types"
)

// InsertCanonicalEntity writes one resolved cluster's representative row,
// as part of the resolver's single write-back transaction (§4.5).
func (s *Store) InsertCanonicalEntity(ctx context.Context, tx pgx.Tx, e types.CanonicalEntity) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO canonical_entities
			(id, document_id, type, canonical_name, aliases, mention_count, confidence, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (id) DO UPDATE SET
			canonical_name = EXCLUDED.canonical_name,
			aliases = EXCLUDED.aliases,
			mention_count = EXCLUDED.mention_count,
			confidence = EXCLUDED.confidence
	`, e.ID, e.DocumentID, e.Type, e.CanonicalName, e.Aliases, e.MentionCount, e.Confidence, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert canonical entity: %w", err)
	}
	return nil
}

// GetCanonicalEntitiesByDocument returns every resolved entity for a
// document, used by the relationship builder's mention-to-canonical
// projection (§4.6) and by finalization's summary (§4.7).
func (s *Store) GetCanonicalEntitiesByDocument(ctx context.Context, docID uuid.UUID) ([]types.CanonicalEntity, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, document_id, type, canonical_name, aliases, mention_count, confidence, created_at
		FROM canonical_entities WHERE document_id = $1 ORDER BY canonical_name
	`, docID)
	if err != nil {
		return nil, fmt.Errorf("get canonical entities by document: %w", err)
	}
	defer rows.Close()

	var entities []types.CanonicalEntity
	for rows.Next() {
		var e types.CanonicalEntity
		if err := rows.Scan(&e.ID, &e.DocumentID, &e.Type, &e.CanonicalName, &e.Aliases,
			&e.MentionCount, &e.Confidence, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan canonical entity: %w", err)
		}
		entities = append(entities, e)
	}
	return entities, rows.Err()
}

// FrequentCanonicalEntitiesByProject supports CW's warm-cache query for
// resolution maps, sampling the most-mentioned canonical entities across a
// project's documents (§4.9).
func (s *Store) FrequentCanonicalEntitiesByProject(ctx context.Context, projectID uuid.UUID, limit int) ([]types.CanonicalEntity, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT ce.id, ce.document_id, ce.type, ce.canonical_name, ce.aliases, ce.mention_count, ce.confidence, ce.created_at
		FROM canonical_entities ce
		JOIN source_documents sd ON sd.id = ce.document_id
		WHERE sd.project_id = $1
		ORDER BY ce.mention_count DESC
		LIMIT $2
	`, projectID, limit)
	if err != nil {
		return nil, fmt.Errorf("frequent canonical entities by project: %w", err)
	}
	defer rows.Close()

	var entities []types.CanonicalEntity
	for rows.Next() {
		var e types.CanonicalEntity
		if err := rows.Scan(&e.ID, &e.DocumentID, &e.Type, &e.CanonicalName, &e.Aliases,
			&e.MentionCount, &e.Confidence, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan canonical entity: %w", err)
		}
		entities = append(entities, e)
	}
	return entities, rows.Err()
}
