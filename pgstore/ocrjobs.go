package pgstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/joeott/legal-doc-processor-sub013/types"
)

// InsertOcrJob records a newly submitted OCR job (§4.2 submit).
func (s *Store) InsertOcrJob(ctx context.Context, job types.OcrJob) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO textract_jobs
			(id, provider_job_id, document_id, status, submitted_at, attempts,
			 page_count, error_message, result_text, scanned)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, job.ID, job.ProviderJobID, job.DocumentID, job.Status, job.SubmittedAt, job.Attempts,
		job.PageCount, job.ErrorMessage, job.ResultText, job.Scanned)
	if err != nil {
		return fmt.Errorf("insert ocr job: %w", err)
	}
	return nil
}

// GetOcrJobByProviderID looks up a job by the external provider's job id,
// the key the poll loop receives back from the OCR adapter (§4.2).
func (s *Store) GetOcrJobByProviderID(ctx context.Context, providerJobID string) (*types.OcrJob, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, provider_job_id, document_id, status, submitted_at, attempts,
		       page_count, error_message, result_text, scanned
		FROM textract_jobs WHERE provider_job_id = $1
	`, providerJobID)
	var j types.OcrJob
	err := row.Scan(&j.ID, &j.ProviderJobID, &j.DocumentID, &j.Status, &j.SubmittedAt,
		&j.Attempts, &j.PageCount, &j.ErrorMessage, &j.ResultText, &j.Scanned)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get ocr job by provider id: %w", err)
	}
	return &j, nil
}

// GetOcrJobByDocumentID returns the most recently submitted OCR job for a
// document, the lookup the cache warmer uses to preload an existing OCR
// result (§4.9) since warming starts from a document id, not a provider id.
func (s *Store) GetOcrJobByDocumentID(ctx context.Context, documentID uuid.UUID) (*types.OcrJob, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, provider_job_id, document_id, status, submitted_at, attempts,
		       page_count, error_message, result_text, scanned
		FROM textract_jobs WHERE document_id = $1
		ORDER BY submitted_at DESC LIMIT 1
	`, documentID)
	var j types.OcrJob
	err := row.Scan(&j.ID, &j.ProviderJobID, &j.DocumentID, &j.Status, &j.SubmittedAt,
		&j.Attempts, &j.PageCount, &j.ErrorMessage, &j.ResultText, &j.Scanned)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get ocr job by document id: %w", err)
	}
	return &j, nil
}

// IncrOcrJobAttempts bumps the poll-attempt counter, bounded by max_retries
// in the OCR adapter's polling policy (§4.2).
func (s *Store) IncrOcrJobAttempts(ctx context.Context, id uuid.UUID) (int, error) {
	var attempts int
	err := s.pool.QueryRow(ctx, `
		UPDATE textract_jobs SET attempts = attempts + 1 WHERE id = $1
		RETURNING attempts
	`, id).Scan(&attempts)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("incr ocr job attempts: %w", err)
	}
	return attempts, nil
}

// CompleteOcrJob records the final OCR result text and page count (§4.2).
func (s *Store) CompleteOcrJob(ctx context.Context, id uuid.UUID, resultText string, pageCount int) error {
	ct, err := s.pool.Exec(ctx, `
		UPDATE textract_jobs
		SET status = $1, result_text = $2, page_count = $3
		WHERE id = $4
	`, types.OcrJobCompleted, resultText, pageCount, id)
	if err != nil {
		return fmt.Errorf("complete ocr job: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// FailOcrJob records a terminal OCR job failure (§4.2, §9).
func (s *Store) FailOcrJob(ctx context.Context, id uuid.UUID, message string) error {
	ct, err := s.pool.Exec(ctx, `
		UPDATE textract_jobs SET status = $1, error_message = $2 WHERE id = $3
	`, types.OcrJobFailed, message, id)
	if err != nil {
		return fmt.Errorf("fail ocr job: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
