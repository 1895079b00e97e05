// Package statestore implements the State Store (SS): a Redis-backed
// key/value and hash store for document state, stage-result caching,
// idempotency locks, rate-limit buckets, metrics streams and batch
// progress (§4 State Store, §6 "State store (SS) key layout"). It plays
// the same role the teacher's db/repository.CacheRepository and
// queue/redis.Queue play together, generalized to the six-stage pipeline.
package statestore

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store wraps a Redis client with the key-space operations every pipeline
// component needs. All non-trivial mutations go through single-key atomic
// Redis commands or a scoped lock (§5 Shared-resource policy).
type Store struct {
	client *redis.Client
	prefix string
}

// Config configures the State Store's Redis connection.
type Config struct {
	RedisURL  string // empty means redis://localhost:6379/0
	KeyPrefix string // defaults to "" (keys match §6 exactly, e.g. "doc:state:{uuid}")
}

// New creates a State Store backed by a live Redis connection.
func New(ctx context.Context, cfg Config) (*Store, error) {
	redisURL := cfg.RedisURL
	if redisURL == "" {
		redisURL = "redis://localhost:6379/0"
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Store{client: client, prefix: cfg.KeyPrefix}, nil
}

// NewWithClient wraps an already-constructed *redis.Client (used by tests
// to point the Store at a miniredis instance).
func NewWithClient(client *redis.Client, keyPrefix string) *Store {
	return &Store{client: client, prefix: keyPrefix}
}

// Close releases the underlying Redis connection.
func (s *Store) Close() error { return s.client.Close() }

func (s *Store) key(parts ...string) string {
	all := parts
	if s.prefix != "" {
		all = append([]string{s.prefix}, parts...)
	}
	k := ""
	for i, p := range all {
		if i > 0 {
			k += ":"
		}
		k += p
	}
	return k
}

// Client exposes the underlying *redis.Client for callers (e.g. metrics)
// that need primitives this package doesn't wrap.
func (s *Store) Client() *redis.Client { return s.client }
