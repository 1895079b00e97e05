package statestore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// MetricsBucket returns the epoch-hour bucket MC uses for time-bucketed
// counters (§4.10, §6 metrics:{bucket}:{stage}:{status}).
func MetricsBucket(t time.Time) string {
	return fmt.Sprintf("%d", t.Unix()/3600)
}

// IncrMetric bumps metrics:{bucket}:{stage}:{status} and sets a 7-day TTL
// the first time the key is created (§6).
func (s *Store) IncrMetric(ctx context.Context, bucket, stage, status string) error {
	key := s.key("metrics", bucket, stage, status)
	n, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("incr metric: %w", err)
	}
	if n == 1 {
		s.client.Expire(ctx, key, 7*24*time.Hour)
	}
	return nil
}

// GetMetric reads a single metrics:{bucket}:{stage}:{status} counter.
func (s *Store) GetMetric(ctx context.Context, bucket, stage, status string) (int64, error) {
	n, err := s.client.Get(ctx, s.key("metrics", bucket, stage, status)).Int64()
	if err != nil {
		return 0, nil // missing counter reads as zero, not an error
	}
	return n, nil
}

// ErrorRecord is one entry in the rolling error log (§4.10, §7).
type ErrorRecord struct {
	DocumentID string    `json:"document_id"`
	Stage      string    `json:"stage"`
	Category   string    `json:"category"`
	Message    string    `json:"message"`
	At         time.Time `json:"at"`
}

// RecordError appends to metrics:errors:{bucket}, a sorted set scored by
// timestamp so GetErrorSummary can window-scan it (§4.10, §6).
func (s *Store) RecordError(ctx context.Context, bucket string, rec ErrorRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode error record: %w", err)
	}
	key := s.key("metrics", "errors", bucket)
	member := redis.Z{Score: float64(rec.At.UnixNano()), Member: string(data)}
	if err := s.client.ZAdd(ctx, key, member).Err(); err != nil {
		return fmt.Errorf("record error: %w", err)
	}
	s.client.Expire(ctx, key, 7*24*time.Hour)
	return nil
}

// GetErrorSummary returns the classified errors recorded for a bucket.
func (s *Store) GetErrorSummary(ctx context.Context, bucket string) ([]ErrorRecord, error) {
	key := s.key("metrics", "errors", bucket)
	members, err := s.client.ZRange(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("get error summary: %w", err)
	}
	records := make([]ErrorRecord, 0, len(members))
	for _, m := range members {
		var rec ErrorRecord
		if err := json.Unmarshal([]byte(m), &rec); err != nil {
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}
