package pgstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/joeott/legal-doc-processor-sub013/types"
)

// InsertTask records a new processing task attempt (§3, §4.7 enqueue).
func (s *Store) InsertTask(ctx context.Context, task types.ProcessingTask) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO processing_tasks
			(id, document_id, stage, status, queue_name, priority, retry_count,
			 error_message, error_category, predecessor_id, created_at, started_at, completed_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
	`, task.ID, task.DocumentID, task.Stage, task.Status, task.QueueName, task.Priority,
		task.RetryCount, task.ErrorMessage, task.ErrorCategory, task.PredecessorID,
		task.CreatedAt, task.StartedAt, task.CompletedAt)
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

// StartTask marks a task in_progress with a started_at timestamp (§4.7).
func (s *Store) StartTask(ctx context.Context, id uuid.UUID, startedAt time.Time) error {
	ct, err := s.pool.Exec(ctx, `
		UPDATE processing_tasks SET status = $1, started_at = $2 WHERE id = $3
	`, types.TaskStatusInProgress, startedAt, id)
	if err != nil {
		return fmt.Errorf("start task: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// CompleteTask marks a task completed (§4.7).
func (s *Store) CompleteTask(ctx context.Context, id uuid.UUID, completedAt time.Time) error {
	ct, err := s.pool.Exec(ctx, `
		UPDATE processing_tasks SET status = $1, completed_at = $2 WHERE id = $3
	`, types.TaskStatusCompleted, completedAt, id)
	if err != nil {
		return fmt.Errorf("complete task: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// FailTask marks a task failed with its classified error (§9).
func (s *Store) FailTask(ctx context.Context, id uuid.UUID, category, message string, completedAt time.Time) error {
	ct, err := s.pool.Exec(ctx, `
		UPDATE processing_tasks
		SET status = $1, error_category = $2, error_message = $3, completed_at = $4
		WHERE id = $5
	`, types.TaskStatusFailed, category, message, completedAt, id)
	if err != nil {
		return fmt.Errorf("fail task: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// CancelTask marks a task cancelled, distinct from FailTask since a
// cancellation is not a classified error (§4.7, §4.9 cancel(task_id)).
func (s *Store) CancelTask(ctx context.Context, id uuid.UUID, completedAt time.Time) error {
	ct, err := s.pool.Exec(ctx, `
		UPDATE processing_tasks SET status = $1, completed_at = $2 WHERE id = $3
	`, types.TaskStatusCancelled, completedAt, id)
	if err != nil {
		return fmt.Errorf("cancel task: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// GetTask reads one processing_tasks row.
func (s *Store) GetTask(ctx context.Context, id uuid.UUID) (*types.ProcessingTask, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, document_id, stage, status, queue_name, priority, retry_count,
		       error_message, error_category, predecessor_id, created_at, started_at, completed_at
		FROM processing_tasks WHERE id = $1
	`, id)
	var t types.ProcessingTask
	err := row.Scan(&t.ID, &t.DocumentID, &t.Stage, &t.Status, &t.QueueName, &t.Priority,
		&t.RetryCount, &t.ErrorMessage, &t.ErrorCategory, &t.PredecessorID,
		&t.CreatedAt, &t.StartedAt, &t.CompletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	return &t, nil
}

// ListTasksByDocument returns every task attempt recorded for a document,
// newest first, used by batch recovery's failure classification (§4.8).
func (s *Store) ListTasksByDocument(ctx context.Context, docID uuid.UUID) ([]types.ProcessingTask, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, document_id, stage, status, queue_name, priority, retry_count,
		       error_message, error_category, predecessor_id, created_at, started_at, completed_at
		FROM processing_tasks WHERE document_id = $1 ORDER BY created_at DESC
	`, docID)
	if err != nil {
		return nil, fmt.Errorf("list tasks by document: %w", err)
	}
	defer rows.Close()

	var tasks []types.ProcessingTask
	for rows.Next() {
		var t types.ProcessingTask
		if err := rows.Scan(&t.ID, &t.DocumentID, &t.Stage, &t.Status, &t.QueueName, &t.Priority,
			&t.RetryCount, &t.ErrorMessage, &t.ErrorCategory, &t.PredecessorID,
			&t.CreatedAt, &t.StartedAt, &t.CompletedAt); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}
