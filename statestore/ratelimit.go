package statestore

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// rateLimitScript implements a fixed-window token bucket entirely in
// Redis: atomic decrement with TTL-based refill, never an in-process
// counter (§9: "Global mutable cache for rate limits... model as a shared
// SS token bucket with atomic decrement and TTL-based refill"). KEYS[1] is
// the bucket key; ARGV[1] is the bucket capacity; ARGV[2] is the window
// in seconds. Returns 1 if a token was available and consumed, else 0.
var rateLimitScript = redis.NewScript(`
	local key = KEYS[1]
	local capacity = tonumber(ARGV[1])
	local window = tonumber(ARGV[2])
	local current = redis.call("GET", key)
	if not current then
		redis.call("SET", key, capacity - 1, "EX", window)
		return 1
	end
	local remaining = tonumber(current)
	if remaining <= 0 then
		return 0
	end
	redis.call("DECR", key)
	return 1
`)

// TryAcquireRateLimit attempts to consume one token from the named
// provider bucket (e.g. "llm:anthropic") within the given capacity/window.
// It returns true if a token was available. Buckets refill automatically
// when the window's TTL expires, so no background refill loop is needed.
func (s *Store) TryAcquireRateLimit(ctx context.Context, provider string, capacity int, window time.Duration) (bool, error) {
	key := s.key("ratelimit", provider)
	res, err := rateLimitScript.Run(ctx, s.client, []string{key}, capacity, int(window.Seconds())).Int()
	if err != nil {
		return false, fmt.Errorf("rate limit acquire: %w", err)
	}
	return res == 1, nil
}

// ConsecutiveFailures tracks the local-fallback trigger for the extractor
// (§4.4: "if the external call has failed K consecutive times within a
// window, switch to a local NER routine"). IncrConsecutiveFailures bumps
// the counter with a sliding TTL; ResetConsecutiveFailures clears it on
// the first subsequent success.
func (s *Store) IncrConsecutiveFailures(ctx context.Context, provider string, window time.Duration) (int64, error) {
	key := s.key("extract", "failures", provider)
	n, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("incr consecutive failures: %w", err)
	}
	s.client.Expire(ctx, key, window)
	return n, nil
}

func (s *Store) ResetConsecutiveFailures(ctx context.Context, provider string) error {
	if err := s.client.Del(ctx, s.key("extract", "failures", provider)).Err(); err != nil {
		return fmt.Errorf("reset consecutive failures: %w", err)
	}
	return nil
}
