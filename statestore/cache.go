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

// SetOCRCache writes doc:ocr:{uuid} (ttl=24h, §6).
func (s *Store) SetOCRCache(ctx context.Context, docID uuid.UUID, text string) error {
	return s.client.Set(ctx, s.key("doc", "ocr", docID.String()), text, 24*time.Hour).Err()
}

// GetOCRCache reads doc:ocr:{uuid}; ok is false on cache miss.
func (s *Store) GetOCRCache(ctx context.Context, docID uuid.UUID) (text string, ok bool, err error) {
	text, err = s.client.Get(ctx, s.key("doc", "ocr", docID.String())).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get ocr cache: %w", err)
	}
	return text, true, nil
}

// WarmOCRCache preloads doc:ocr:{uuid} from PS with the 1h TTL the
// specification assigns to cache-warmer entries (§4.9), distinct from
// SetOCRCache's 24h TTL for a freshly computed result.
func (s *Store) WarmOCRCache(ctx context.Context, docID uuid.UUID, text string) error {
	return s.client.Set(ctx, s.key("doc", "ocr", docID.String()), text, time.Hour).Err()
}

// SetChunksCache writes doc:chunks:{uuid} as a JSON list (ttl=1h, §6).
func (s *Store) SetChunksCache(ctx context.Context, docID uuid.UUID, chunks []types.Chunk) error {
	data, err := json.Marshal(chunks)
	if err != nil {
		return fmt.Errorf("encode chunks cache: %w", err)
	}
	return s.client.Set(ctx, s.key("doc", "chunks", docID.String()), data, time.Hour).Err()
}

// GetChunksCache reads doc:chunks:{uuid}; ok is false on cache miss.
func (s *Store) GetChunksCache(ctx context.Context, docID uuid.UUID) (chunks []types.Chunk, ok bool, err error) {
	data, err := s.client.Get(ctx, s.key("doc", "chunks", docID.String())).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get chunks cache: %w", err)
	}
	if err := json.Unmarshal(data, &chunks); err != nil {
		return nil, false, fmt.Errorf("decode chunks cache: %w", err)
	}
	return chunks, true, nil
}

// SetJSONWithTTL is a generic warm-cache write used by the cache warmer for
// project metadata, frequent canonical entities (proj:entities:{project})
// and resolution maps (§4.9). Entries expire after ttl; the cache warmer
// passes WarmTTL (1h).
func (s *Store) SetJSONWithTTL(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode cache value for %s: %w", key, err)
	}
	if err := s.client.Set(ctx, s.key(key), data, ttl).Err(); err != nil {
		return fmt.Errorf("set cache %s: %w", key, err)
	}
	return nil
}

// GetJSON reads a generic cache entry written by SetJSONWithTTL.
func (s *Store) GetJSON(ctx context.Context, key string, dest interface{}) (bool, error) {
	data, err := s.client.Get(ctx, s.key(key)).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get cache %s: %w", key, err)
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return false, fmt.Errorf("decode cache %s: %w", key, err)
	}
	return true, nil
}

// SetOcrJobHash writes job:ocr:{job_id} (ttl=24h, §6).
func (s *Store) SetOcrJobHash(ctx context.Context, jobID string, job types.OcrJob) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode ocr job: %w", err)
	}
	return s.client.Set(ctx, s.key("job", "ocr", jobID), data, 24*time.Hour).Err()
}

func (s *Store) GetOcrJobHash(ctx context.Context, jobID string) (*types.OcrJob, error) {
	data, err := s.client.Get(ctx, s.key("job", "ocr", jobID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get ocr job: %w", err)
	}
	var job types.OcrJob
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("decode ocr job: %w", err)
	}
	return &job, nil
}
