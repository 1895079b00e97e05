package llm

import (
	"context"
	"time"

	"github.com/sony/gobreaker"
)

// CircuitBreakerClient wraps a Client with a per-provider gobreaker circuit,
// tripping after consecutive failures so EX's local-fallback policy (§4.4:
// "if the external call has failed K consecutive times within a window,
// switch to a local NER routine") has a fast, bounded signal to act on
// instead of waiting out a deadline on every call.
type CircuitBreakerClient struct {
	inner Client
	cb    *gobreaker.CircuitBreaker
}

// NewCircuitBreakerClient wraps inner with a circuit named name. maxFailures
// is the consecutive-failure threshold that trips the breaker open.
func NewCircuitBreakerClient(name string, inner Client, maxFailures uint32, openTimeout time.Duration) *CircuitBreakerClient {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     openTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
	})
	return &CircuitBreakerClient{inner: inner, cb: cb}
}

// ErrCircuitOpen wraps gobreaker.ErrOpenState so callers can detect the
// "fall back to local extraction now" signal without importing gobreaker.
var ErrCircuitOpen = gobreaker.ErrOpenState

func (c *CircuitBreakerClient) ExtractEntities(ctx context.Context, chunkText string) ([]MentionCandidate, error) {
	res, err := c.cb.Execute(func() (interface{}, error) {
		return c.inner.ExtractEntities(ctx, chunkText)
	})
	if err != nil {
		return nil, err
	}
	return res.([]MentionCandidate), nil
}

func (c *CircuitBreakerClient) ExtractRelationships(ctx context.Context, chunkText string, knownEntities []string) ([]RelationshipCandidate, error) {
	res, err := c.cb.Execute(func() (interface{}, error) {
		return c.inner.ExtractRelationships(ctx, chunkText, knownEntities)
	})
	if err != nil {
		return nil, err
	}
	return res.([]RelationshipCandidate), nil
}

// State exposes the breaker's current state for metrics/logging.
func (c *CircuitBreakerClient) State() gobreaker.State { return c.cb.State() }
