package statestore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/joeott/legal-doc-processor-sub013/types"
)

// SetBatchManifest writes batch:manifest:{id} (ttl=24h, §4.8, §6).
func (s *Store) SetBatchManifest(ctx context.Context, batch types.Batch) error {
	data, err := json.Marshal(batch)
	if err != nil {
		return fmt.Errorf("encode batch manifest: %w", err)
	}
	return s.client.Set(ctx, s.key("batch", "manifest", batch.ID.String()), data, 24*time.Hour).Err()
}

// GetBatchManifest reads batch:manifest:{id}.
func (s *Store) GetBatchManifest(ctx context.Context, batchID uuid.UUID) (*types.Batch, error) {
	data, err := s.client.Get(ctx, s.key("batch", "manifest", batchID.String())).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get batch manifest: %w", err)
	}
	var batch types.Batch
	if err := json.Unmarshal(data, &batch); err != nil {
		return nil, fmt.Errorf("decode batch manifest: %w", err)
	}
	return &batch, nil
}

// SetBatchTaskIDs writes batch:job:{id} (ttl=24h, §6): the task ids fanned
// out for a batch submission.
func (s *Store) SetBatchTaskIDs(ctx context.Context, batchID uuid.UUID, taskIDs []uuid.UUID) error {
	data, err := json.Marshal(taskIDs)
	if err != nil {
		return fmt.Errorf("encode batch task ids: %w", err)
	}
	return s.client.Set(ctx, s.key("batch", "job", batchID.String()), data, 24*time.Hour).Err()
}

// SetBatchProgress writes batch:progress:{id} (ttl=1h, §6).
func (s *Store) SetBatchProgress(ctx context.Context, progress types.BatchProgress) error {
	data, err := json.Marshal(progress)
	if err != nil {
		return fmt.Errorf("encode batch progress: %w", err)
	}
	return s.client.Set(ctx, s.key("batch", "progress", progress.BatchID.String()), data, time.Hour).Err()
}

// GetBatchProgress reads batch:progress:{id}.
func (s *Store) GetBatchProgress(ctx context.Context, batchID uuid.UUID) (*types.BatchProgress, error) {
	data, err := s.client.Get(ctx, s.key("batch", "progress", batchID.String())).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get batch progress: %w", err)
	}
	var progress types.BatchProgress
	if err := json.Unmarshal(data, &progress); err != nil {
		return nil, fmt.Errorf("decode batch progress: %w", err)
	}
	return &progress, nil
}

// IncrBatchRetryCount atomically bumps batch:retry_count:{id} (ttl=24h, §6)
// and returns the new value.
func (s *Store) IncrBatchRetryCount(ctx context.Context, batchID uuid.UUID) (int64, error) {
	key := s.key("batch", "retry_count", batchID.String())
	n, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("incr batch retry count: %w", err)
	}
	s.client.Expire(ctx, key, 24*time.Hour)
	return n, nil
}

// GetBatchRetryCount reads batch:retry_count:{id}, defaulting to 0.
func (s *Store) GetBatchRetryCount(ctx context.Context, batchID uuid.UUID) (int64, error) {
	n, err := s.client.Get(ctx, s.key("batch", "retry_count", batchID.String())).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get batch retry count: %w", err)
	}
	return n, nil
}

// QueueDepth returns the length of a TR FIFO queue, used by BO's
// backpressure check (§5: "if SS indicates queue depth above a threshold").
func (s *Store) QueueDepth(ctx context.Context, queueName string) (int64, error) {
	n, err := s.client.LLen(ctx, s.key("queue", queueName)).Result()
	if err != nil {
		return 0, fmt.Errorf("queue depth: %w", err)
	}
	return n, nil
}
