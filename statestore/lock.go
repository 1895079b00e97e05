package statestore

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// AcquireStageLock implements the §4.1 at-most-one-in-flight guarantee:
// a scoped lock keyed lock:doc:{uuid}:{stage} with a stage-specific TTL.
// owner should uniquely identify the acquiring worker so ReleaseStageLock
// can refuse to release a lock it doesn't hold (e.g. after a timeout
// caused a different worker to pick the document back up).
func (s *Store) AcquireStageLock(ctx context.Context, docID uuid.UUID, stage string, owner string, ttl time.Duration) (bool, error) {
	key := s.key("lock", "doc", docID.String(), stage)
	ok, err := s.client.SetNX(ctx, key, owner, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire stage lock: %w", err)
	}
	return ok, nil
}

// ReleaseStageLock releases a lock only if it is still held by owner, via
// a Lua script so the check-and-delete is atomic (avoids releasing a lock
// that expired and was re-acquired by another worker).
func (s *Store) ReleaseStageLock(ctx context.Context, docID uuid.UUID, stage string, owner string) error {
	key := s.key("lock", "doc", docID.String(), stage)
	script := redis.NewScript(`
		if redis.call("GET", KEYS[1]) == ARGV[1] then
			return redis.call("DEL", KEYS[1])
		end
		return 0
	`)
	if err := script.Run(ctx, s.client, []string{key}, owner).Err(); err != nil {
		return fmt.Errorf("release stage lock: %w", err)
	}
	return nil
}

// IsStageLocked reports whether (doc, stage) currently has an in-flight
// executor, used by the no-op duplicate-work refusal path (§4.7).
func (s *Store) IsStageLocked(ctx context.Context, docID uuid.UUID, stage string) (bool, error) {
	key := s.key("lock", "doc", docID.String(), stage)
	n, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("check stage lock: %w", err)
	}
	return n > 0, nil
}
