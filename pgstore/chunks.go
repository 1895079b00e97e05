package pgstore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/joeott/legal-doc-processor-sub013/types"
)

// InsertChunks bulk-inserts a document's chunk set in a single transaction
// (§4.3: the chunk set is written atomically, all-or-nothing, so a partial
// chunking failure never leaves a document with a gappy chunk index).
func (s *Store) InsertChunks(ctx context.Context, chunks []types.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin insert chunks: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, c := range chunks {
		var metadata []byte
		if c.Metadata != nil {
			metadata, err = json.Marshal(c.Metadata)
			if err != nil {
				return fmt.Errorf("encode chunk metadata: %w", err)
			}
		}
		batch.Queue(`
			INSERT INTO document_chunks
				(id, document_id, chunk_index, text, start_offset, end_offset,
				 page_start, page_end, metadata, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		`, c.ID, c.DocumentID, c.ChunkIndex, c.Text, c.StartOffset, c.EndOffset,
			c.PageStart, c.PageEnd, metadata, c.CreatedAt)
	}

	br := tx.SendBatch(ctx, batch)
	for range chunks {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return fmt.Errorf("insert chunk: %w", err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("close chunk batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit insert chunks: %w", err)
	}
	return nil
}

// GetChunksByDocument returns a document's chunks ordered by chunk_index,
// the order every downstream stage relies on (§3, §4.3).
func (s *Store) GetChunksByDocument(ctx context.Context, docID uuid.UUID) ([]types.Chunk, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, document_id, chunk_index, text, start_offset, end_offset,
		       page_start, page_end, metadata, created_at
		FROM document_chunks WHERE document_id = $1 ORDER BY chunk_index
	`, docID)
	if err != nil {
		return nil, fmt.Errorf("get chunks by document: %w", err)
	}
	defer rows.Close()

	var chunks []types.Chunk
	for rows.Next() {
		var c types.Chunk
		var metadata []byte
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.ChunkIndex, &c.Text, &c.StartOffset,
			&c.EndOffset, &c.PageStart, &c.PageEnd, &metadata, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &c.Metadata); err != nil {
				return nil, fmt.Errorf("decode chunk metadata: %w", err)
			}
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}
