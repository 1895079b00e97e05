package pgstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/joeott/legal-doc-processor-sub013/types"
)

// ErrNotFound is returned by single-row reads when no row matches.
var ErrNotFound = errors.New("pgstore: not found")

// InsertDocument creates the source_documents row for a newly submitted
// document (§4.8 Submit step "per-document init").
func (s *Store) InsertDocument(ctx context.Context, doc types.Document) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO source_documents
			(id, project_id, blob_location, original_filename, content_hash,
			 size_bytes, mime_type, status, current_stage, ocr_job_id,
			 error_message, error_category, page_count, chunk_count,
			 entity_count, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
	`,
		doc.ID, doc.ProjectID, doc.BlobLocation, doc.OriginalFilename, doc.ContentHash,
		doc.SizeBytes, doc.MimeType, doc.Status, doc.CurrentStage, doc.OcrJobID,
		doc.ErrorMessage, doc.ErrorCategory, doc.PageCount, doc.ChunkCount,
		doc.EntityCount, doc.CreatedAt, doc.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

// GetDocument reads one source_documents row.
func (s *Store) GetDocument(ctx context.Context, id uuid.UUID) (*types.Document, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, project_id, blob_location, original_filename, content_hash,
		       size_bytes, mime_type, status, current_stage, ocr_job_id,
		       error_message, error_category, page_count, chunk_count,
		       entity_count, created_at, updated_at
		FROM source_documents WHERE id = $1
	`, id)
	var doc types.Document
	err := row.Scan(
		&doc.ID, &doc.ProjectID, &doc.BlobLocation, &doc.OriginalFilename, &doc.ContentHash,
		&doc.SizeBytes, &doc.MimeType, &doc.Status, &doc.CurrentStage, &doc.OcrJobID,
		&doc.ErrorMessage, &doc.ErrorCategory, &doc.PageCount, &doc.ChunkCount,
		&doc.EntityCount, &doc.CreatedAt, &doc.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get document: %w", err)
	}
	return &doc, nil
}

// UpdateDocumentStage advances current_stage/status after a stage commits
// (§4.1, §5: PC is the sole writer of this transition).
func (s *Store) UpdateDocumentStage(ctx context.Context, id uuid.UUID, stage types.Stage, status types.DocumentStatus) error {
	ct, err := s.pool.Exec(ctx, `
		UPDATE source_documents
		SET current_stage = $1, status = $2, updated_at = now()
		WHERE id = $3
	`, stage, status, id)
	if err != nil {
		return fmt.Errorf("update document stage: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetDocumentError records the stage failure classification on a document
// (§4.1 failure handling, §9 error model).
func (s *Store) SetDocumentError(ctx context.Context, id uuid.UUID, category, message string) error {
	ct, err := s.pool.Exec(ctx, `
		UPDATE source_documents
		SET status = $1, error_category = $2, error_message = $3, updated_at = now()
		WHERE id = $4
	`, types.DocumentStatusFailed, category, message, id)
	if err != nil {
		return fmt.Errorf("set document error: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetDocumentOCRJob links a document to its outstanding OCR job id.
func (s *Store) SetDocumentOCRJob(ctx context.Context, id uuid.UUID, ocrJobID uuid.UUID) error {
	ct, err := s.pool.Exec(ctx, `
		UPDATE source_documents SET ocr_job_id = $1, updated_at = now() WHERE id = $2
	`, ocrJobID, id)
	if err != nil {
		return fmt.Errorf("set document ocr job: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateDocumentCounts refreshes the denormalized page/chunk/entity counts
// used by status reporting (§3, §4.10).
func (s *Store) UpdateDocumentCounts(ctx context.Context, id uuid.UUID, pageCount, chunkCount, entityCount int) error {
	ct, err := s.pool.Exec(ctx, `
		UPDATE source_documents
		SET page_count = $1, chunk_count = $2, entity_count = $3, updated_at = now()
		WHERE id = $4
	`, pageCount, chunkCount, entityCount, id)
	if err != nil {
		return fmt.Errorf("update document counts: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListDocumentsByProject returns every document submitted under a project,
// used by BO's batch manifest fan-out and monitoring (§4.8).
func (s *Store) ListDocumentsByProject(ctx context.Context, projectID uuid.UUID) ([]types.Document, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, project_id, blob_location, original_filename, content_hash,
		       size_bytes, mime_type, status, current_stage, ocr_job_id,
		       error_message, error_category, page_count, chunk_count,
		       entity_count, created_at, updated_at
		FROM source_documents WHERE project_id = $1 ORDER BY created_at
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list documents by project: %w", err)
	}
	defer rows.Close()

	var docs []types.Document
	for rows.Next() {
		var doc types.Document
		if err := rows.Scan(
			&doc.ID, &doc.ProjectID, &doc.BlobLocation, &doc.OriginalFilename, &doc.ContentHash,
			&doc.SizeBytes, &doc.MimeType, &doc.Status, &doc.CurrentStage, &doc.OcrJobID,
			&doc.ErrorMessage, &doc.ErrorCategory, &doc.PageCount, &doc.ChunkCount,
			&doc.EntityCount, &doc.CreatedAt, &doc.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}
