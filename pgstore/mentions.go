package pgstore

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/joeott/legal-doc-processor-sub013/types"
)

// InsertMentions bulk-inserts entity mentions produced by one extraction
// pass over a document's chunks (§4.4). Mentions are written unresolved;
// the resolver later sets canonical_entity_id.
func (s *Store) InsertMentions(ctx context.Context, mentions []types.EntityMention) error {
	if len(mentions) == 0 {
		return nil
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin insert mentions: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, m := range mentions {
		batch.Queue(`
			INSERT INTO entity_mentions
				(id, document_id, chunk_id, chunk_index, text, type, confidence,
				 start_offset, end_offset, canonical_entity_id, unresolved_reason,
				 extraction_method, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		`, m.ID, m.DocumentID, m.ChunkID, m.ChunkIndex, m.Text, m.Type, m.Confidence,
			m.StartOffset, m.EndOffset, m.CanonicalEntityID, m.UnresolvedReason,
			m.ExtractionMethod, m.CreatedAt)
	}

	br := tx.SendBatch(ctx, batch)
	for range mentions {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return fmt.Errorf("insert mention: %w", err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("close mention batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit insert mentions: %w", err)
	}
	return nil
}

// GetMentionsByDocument returns every mention for a document, ordered
// (chunk_index, start_offset) per §4.4's output-ordering requirement.
func (s *Store) GetMentionsByDocument(ctx context.Context, docID uuid.UUID) ([]types.EntityMention, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, document_id, chunk_id, chunk_index, text, type, confidence,
		       start_offset, end_offset, canonical_entity_id, unresolved_reason,
		       extraction_method, created_at
		FROM entity_mentions WHERE document_id = $1
		ORDER BY chunk_index, start_offset
	`, docID)
	if err != nil {
		return nil, fmt.Errorf("get mentions by document: %w", err)
	}
	defer rows.Close()

	var mentions []types.EntityMention
	for rows.Next() {
		var m types.EntityMention
		if err := rows.Scan(&m.ID, &m.DocumentID, &m.ChunkID, &m.ChunkIndex, &m.Text, &m.Type,
			&m.Confidence, &m.StartOffset, &m.EndOffset, &m.CanonicalEntityID,
			&m.UnresolvedReason, &m.ExtractionMethod, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan mention: %w", err)
		}
		mentions = append(mentions, m)
	}
	return mentions, rows.Err()
}

// SetMentionCanonical links a resolved mention to its canonical entity
// (§4.5 step "write-back"), within the resolver's caller-managed transaction.
func (s *Store) SetMentionCanonical(ctx context.Context, tx pgx.Tx, mentionID, canonicalID uuid.UUID) error {
	ct, err := tx.Exec(ctx, `
		UPDATE entity_mentions SET canonical_entity_id = $1 WHERE id = $2
	`, canonicalID, mentionID)
	if err != nil {
		return fmt.Errorf("set mention canonical: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetMentionUnresolved records why a mention could not be resolved to a
// canonical entity (§4.5 edge case: a mention with no viable cluster).
func (s *Store) SetMentionUnresolved(ctx context.Context, tx pgx.Tx, mentionID uuid.UUID, reason string) error {
	ct, err := tx.Exec(ctx, `
		UPDATE entity_mentions SET unresolved_reason = $1 WHERE id = $2
	`, reason, mentionID)
	if err != nil {
		return fmt.Errorf("set mention unresolved: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// BeginTx exposes a raw transaction for callers (resolver, relationship
// builder) that must write several tables atomically (§4.5, §4.6).
func (s *Store) BeginTx(ctx context.Context) (pgx.Tx, error) {
	return s.pool.Begin(ctx)
}
