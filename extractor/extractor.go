// Package extractor implements the Entity Extractor (EX): per-chunk calls
// to the external entity-extraction function (§4.4), with dedup, span
// validation, type whitelisting, shared token-bucket rate limiting, and
// automatic fallback to a local extractor after K consecutive remote
// failures.
package extractor

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/joeott/legal-doc-processor-sub013/llm"
	"github.com/joeott/legal-doc-processor-sub013/pipelineerr"
	"github.com/joeott/legal-doc-processor-sub013/statestore"
	"github.com/joeott/legal-doc-processor-sub013/types"
)

// Config controls extraction policy (§4.4).
type Config struct {
	Provider                string        // rate-limit bucket key; one bucket per provider
	RateLimitCapacity       int           // requests allowed per RateLimitWindow
	RateLimitWindow         time.Duration
	ConsecutiveFailuresToFallback int64   // K in "failed K consecutive times"
	FailureWindow           time.Duration
	AllowedTypes            map[types.EntityType]bool // defaults to types.AllowedEntityTypes
	DropDisallowedTypes     bool                       // false re-types to OTHER instead of dropping
}

// DefaultConfig mirrors the specification's stated defaults.
func DefaultConfig(provider string) Config {
	return Config{
		Provider:                      provider,
		RateLimitCapacity:             10,
		RateLimitWindow:               time.Second,
		ConsecutiveFailuresToFallback: 3,
		FailureWindow:                 5 * time.Minute,
		AllowedTypes:                  types.AllowedEntityTypes,
		DropDisallowedTypes:           false,
	}
}

// Extractor runs EX's per-chunk policy pipeline over a remote Client, with
// an automatic switch to a local Client once the remote has failed too many
// times in a row (§4.4).
type Extractor struct {
	remote llm.Client
	local  llm.Client
	state  *statestore.Store
	cfg    Config

	usingLocalForDocument bool // sticky within one document's extraction run, per §4.4 "for the remainder of the document"
}

// New builds an Extractor. local is the fallback Client used once the
// remote has tripped the consecutive-failure policy.
func New(remote, local llm.Client, state *statestore.Store, cfg Config) *Extractor {
	return &Extractor{remote: remote, local: local, state: state, cfg: cfg}
}

// ResetDocument clears the sticky local-fallback flag; call once per new
// document before extracting its chunks.
func (e *Extractor) ResetDocument() {
	e.usingLocalForDocument = false
}

// ExtractChunk runs the full per-chunk policy: rate limiting, remote call
// with backoff-and-jitter retry on rate-limit errors, fallback-on-failure
// tracking, dedup, span validation and type whitelisting. It returns
// mentions for chunk in (chunk_index, start_offset)-compatible order
// (callers sort the full per-document set; see types.EntityMention.SortKey).
func (e *Extractor) ExtractChunk(ctx context.Context, chunk types.Chunk, documentID uuid.UUID) ([]types.EntityMention, error) {
	client := e.remote
	method := types.ExtractionMethodRemote
	if e.usingLocalForDocument {
		client = e.local
		method = types.ExtractionMethodLocal
	}

	var candidates []llm.MentionCandidate
	var err error
	if method == types.ExtractionMethodRemote {
		candidates, err = e.callRemoteWithPolicy(ctx, chunk.Text)
		if err != nil {
			failures, ferr := e.state.IncrConsecutiveFailures(ctx, e.cfg.Provider, e.cfg.FailureWindow)
			if ferr == nil && failures >= e.cfg.ConsecutiveFailuresToFallback {
				e.usingLocalForDocument = true
			}
			return nil, pipelineerr.NewStageError(pipelineerr.Classify(err), "extraction_call_failed", err)
		}
		_ = e.state.ResetConsecutiveFailures(ctx, e.cfg.Provider)
	} else {
		candidates, err = e.local.ExtractEntities(ctx, chunk.Text)
		if err != nil {
			return nil, pipelineerr.NewStageError(pipelineerr.CategoryPermanent, "local_extraction_failed", err)
		}
	}

	mentions := toMentions(candidates, chunk, documentID, method)
	mentions = dedupWithinChunk(mentions)
	mentions = validateSpans(mentions, len(chunk.Text))
	mentions = applyTypeWhitelist(mentions, e.cfg)
	return mentions, nil
}

// callRemoteWithPolicy acquires a rate-limit token (blocking with backoff
// when the bucket is empty) and retries transient/rate-limit errors with
// exponential backoff and jitter (§4.4, §7).
func (e *Extractor) callRemoteWithPolicy(ctx context.Context, chunkText string) ([]llm.MentionCandidate, error) {
	if err := e.waitForRateLimit(ctx); err != nil {
		return nil, err
	}

	var result []llm.MentionCandidate
	op := func() error {
		candidates, err := e.remote.ExtractEntities(ctx, chunkText)
		if err != nil {
			cat := pipelineerr.Classify(err)
			if cat == pipelineerr.CategoryRateLimit || cat == pipelineerr.CategoryTransient {
				return err // retryable: backoff.Retry keeps going
			}
			return backoff.Permanent(err)
		}
		result = candidates
		return nil
	}

	bo := backoff.WithContext(backoff.NewExponentialBackOff(), ctx)
	if err := backoff.Retry(op, bo); err != nil {
		return nil, err
	}
	return result, nil
}

// waitForRateLimit blocks until a token-bucket slot is available or ctx is
// done, backing off between attempts (§4.4 "token-bucket rate limits shared
// across workers").
func (e *Extractor) waitForRateLimit(ctx context.Context) error {
	bo := backoff.WithContext(backoff.NewExponentialBackOff(), ctx)
	return backoff.Retry(func() error {
		ok, err := e.state.TryAcquireRateLimit(ctx, e.cfg.Provider, e.cfg.RateLimitCapacity, e.cfg.RateLimitWindow)
		if err != nil {
			return backoff.Permanent(err)
		}
		if !ok {
			return errors.New("rate limit bucket empty")
		}
		return nil
	}, bo)
}

// toMentions converts raw candidates into EntityMention values, recording
// how each one was produced.
func toMentions(candidates []llm.MentionCandidate, chunk types.Chunk, documentID uuid.UUID, method types.ExtractionMethod) []types.EntityMention {
	mentions := make([]types.EntityMention, 0, len(candidates))
	for _, c := range candidates {
		mentions = append(mentions, types.EntityMention{
			ID:               uuid.NewSHA1(chunk.ID, []byte(c.Text+":"+c.Type+":"+itoa(c.StartOffset))),
			DocumentID:        documentID,
			ChunkID:           chunk.ID,
			ChunkIndex:        chunk.ChunkIndex,
			Text:              c.Text,
			Type:              types.EntityType(c.Type),
			Confidence:        c.Confidence,
			StartOffset:       c.StartOffset,
			EndOffset:         c.EndOffset,
			ExtractionMethod:  method,
		})
	}
	return mentions
}

// dedupWithinChunk collapses mentions sharing a (lowercased text, type) key,
// keeping the highest-confidence occurrence (§4.4).
func dedupWithinChunk(mentions []types.EntityMention) []types.EntityMention {
	best := make(map[string]types.EntityMention, len(mentions))
	order := make([]string, 0, len(mentions))
	for _, m := range mentions {
		key := strings.ToLower(m.Text) + "|" + string(m.Type)
		existing, ok := best[key]
		if !ok {
			order = append(order, key)
			best[key] = m
			continue
		}
		if m.Confidence > existing.Confidence {
			best[key] = m
		}
	}
	out := make([]types.EntityMention, 0, len(order))
	for _, key := range order {
		out = append(out, best[key])
	}
	return out
}

// validateSpans clamps each mention's start offset to 0 and end offset to
// the chunk length, then drops mentions whose clamped span still falls
// outside the chunk text (§4.4). The clamped offsets are not moved to a
// whitespace boundary, and the mention's Text is left unchanged.
func validateSpans(mentions []types.EntityMention, chunkLen int) []types.EntityMention {
	out := make([]types.EntityMention, 0, len(mentions))
	for _, m := range mentions {
		if m.StartOffset < 0 {
			m.StartOffset = 0
		}
		if m.EndOffset > chunkLen {
			m.EndOffset = chunkLen
		}
		if !m.WithinChunk(chunkLen) {
			continue
		}
		out = append(out, m)
	}
	return out
}

// applyTypeWhitelist keeps only allowed types, re-typing or dropping others
// per cfg.DropDisallowedTypes (§4.4).
func applyTypeWhitelist(mentions []types.EntityMention, cfg Config) []types.EntityMention {
	allowed := cfg.AllowedTypes
	if allowed == nil {
		allowed = types.AllowedEntityTypes
	}
	out := make([]types.EntityMention, 0, len(mentions))
	for _, m := range mentions {
		if allowed[m.Type] {
			out = append(out, m)
			continue
		}
		if cfg.DropDisallowedTypes {
			continue
		}
		m.Type = types.EntityOther
		out = append(out, m)
	}
	return out
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var b []byte
	for n > 0 {
		b = append([]byte{byte('0' + n%10)}, b...)
		n /= 10
	}
	if neg {
		b = append([]byte{'-'}, b...)
	}
	return string(b)
}
