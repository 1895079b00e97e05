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

// EnqueueTask appends a task ID to the named FIFO queue (§4.7: "named FIFO
// queues") and writes the task's full payload to task:{id} so a worker
// dequeuing only an ID can fetch the rest. The payload expires after 48h;
// TR overwrites it with the terminal status on completion, failure or
// cancellation but does not delete it.
func (s *Store) EnqueueTask(ctx context.Context, queueName string, task types.ProcessingTask) error {
	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("encode task: %w", err)
	}
	if err := s.client.Set(ctx, s.key("task", task.ID.String()), data, 48*time.Hour).Err(); err != nil {
		return fmt.Errorf("write task payload: %w", err)
	}
	if err := s.client.RPush(ctx, s.key("queue", queueName), task.ID.String()).Err(); err != nil {
		return fmt.Errorf("enqueue task: %w", err)
	}
	return nil
}

// EnqueueTaskDelayed schedules a task to become dequeueable after delay,
// used by TR's retry scheduling (§4.7: "schedules a retry on the same
// queue with delay f(category, retry_count)"). It stores the task in a
// sorted set scored by ready-time rather than the FIFO list directly;
// PromoteDueDelayedTasks moves ready entries onto the live queue.
func (s *Store) EnqueueTaskDelayed(ctx context.Context, queueName string, task types.ProcessingTask, delay time.Duration) error {
	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("encode delayed task: %w", err)
	}
	if err := s.client.Set(ctx, s.key("task", task.ID.String()), data, 48*time.Hour).Err(); err != nil {
		return fmt.Errorf("write delayed task payload: %w", err)
	}
	readyAt := time.Now().Add(delay)
	z := redis.Z{Score: float64(readyAt.Unix()), Member: task.ID.String()}
	if err := s.client.ZAdd(ctx, s.key("queue", queueName, "delayed"), z).Err(); err != nil {
		return fmt.Errorf("schedule delayed task: %w", err)
	}
	return nil
}

// PromoteDueDelayedTasks moves every delayed task whose ready-time has
// passed onto the live FIFO queue. Workers call this once per poll cycle.
func (s *Store) PromoteDueDelayedTasks(ctx context.Context, queueName string) (int, error) {
	key := s.key("queue", queueName, "delayed")
	now := float64(time.Now().Unix())
	ids, err := s.client.ZRangeByScore(ctx, key, &redis.ZRangeBy{Min: "-inf", Max: fmt.Sprintf("%f", now)}).Result()
	if err != nil {
		return 0, fmt.Errorf("scan delayed tasks: %w", err)
	}
	for _, id := range ids {
		if err := s.client.RPush(ctx, s.key("queue", queueName), id).Err(); err != nil {
			return 0, fmt.Errorf("promote delayed task: %w", err)
		}
		s.client.ZRem(ctx, key, id)
	}
	return len(ids), nil
}

// DequeueTask blocks up to timeout for the next task ID on queueName and
// returns its payload, or (nil, nil) on timeout (§4.7 worker poll loop).
func (s *Store) DequeueTask(ctx context.Context, queueName string, timeout time.Duration) (*types.ProcessingTask, error) {
	result, err := s.client.BLPop(ctx, timeout, s.key("queue", queueName)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("dequeue task: %w", err)
	}
	// BLPop returns [key, value]; result[1] is the task ID.
	return s.GetTaskPayload(ctx, result[1])
}

// GetTaskPayload reads a task's full payload by ID string.
func (s *Store) GetTaskPayload(ctx context.Context, taskID string) (*types.ProcessingTask, error) {
	data, err := s.client.Get(ctx, s.key("task", taskID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get task payload: %w", err)
	}
	var task types.ProcessingTask
	if err := json.Unmarshal(data, &task); err != nil {
		return nil, fmt.Errorf("decode task payload: %w", err)
	}
	return &task, nil
}

// SetTaskPayload overwrites task:{id}, used by the worker to persist
// updated retry_count/status between a failure and its rescheduled retry.
func (s *Store) SetTaskPayload(ctx context.Context, task types.ProcessingTask) error {
	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("encode task payload: %w", err)
	}
	return s.client.Set(ctx, s.key("task", task.ID.String()), data, 48*time.Hour).Err()
}

// MarkTaskCancelled sets a cancellation flag the running worker checks at
// its next I/O boundary (§5: "cancellation is cooperative at external I/O
// boundaries").
func (s *Store) MarkTaskCancelled(ctx context.Context, taskID uuid.UUID) error {
	return s.client.Set(ctx, s.key("task", "cancel", taskID.String()), "1", time.Hour).Err()
}

// IsTaskCancelled checks the flag MarkTaskCancelled sets.
func (s *Store) IsTaskCancelled(ctx context.Context, taskID uuid.UUID) (bool, error) {
	n, err := s.client.Exists(ctx, s.key("task", "cancel", taskID.String())).Result()
	if err != nil {
		return false, fmt.Errorf("check task cancelled: %w", err)
	}
	return n > 0, nil
}
