package statestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/joeott/legal-doc-processor-sub013/types"
)

// ErrVersionConflict is returned by CASDocumentState when another writer
// updated doc:state:{uuid} between the caller's read and write (§5: "State
// hash updates for a document use compare-and-set on a monotonically
// increasing version field to avoid lost updates").
var ErrVersionConflict = errors.New("statestore: document state version conflict")

func (s *Store) docStateKey(docID uuid.UUID) string {
	return s.key("doc", "state", docID.String())
}

func (s *Store) docStatusKey(docID uuid.UUID) string {
	return s.key("doc", "status", docID.String())
}

// GetDocumentState reads doc:state:{uuid}. A nil, nil result means the key
// doesn't exist yet (document never entered the pipeline).
func (s *Store) GetDocumentState(ctx context.Context, docID uuid.UUID) (*types.DocumentState, error) {
	data, err := s.client.Get(ctx, s.docStateKey(docID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get document state: %w", err)
	}
	var st types.DocumentState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("decode document state: %w", err)
	}
	return &st, nil
}

// casScript atomically checks the stored version matches expectedVersion
// (0 meaning "key must not exist yet") before writing the new value, whose
// version the caller has already set. It's the PC-only-writer CAS
// primitive from §5/§3.
var casScript = redis.NewScript(`
	local current = redis.call("GET", KEYS[1])
	if current then
		local ok, decoded = pcall(cjson.decode, current)
		if ok and decoded.version ~= tonumber(ARGV[2]) then
			return {0, current}
		end
	elseif tonumber(ARGV[2]) ~= 0 then
		return {0, false}
	end
	redis.call("SET", KEYS[1], ARGV[1])
	return {1, ARGV[1]}
`)

// CASDocumentState writes newState only if the currently stored version
// equals expectedVersion (pass 0 for a brand-new document). On success it
// returns the state actually stored (with newState.Version as given); on
// conflict it returns ErrVersionConflict and the state that was in place.
func (s *Store) CASDocumentState(ctx context.Context, expectedVersion int64, newState types.DocumentState) (*types.DocumentState, error) {
	payload, err := json.Marshal(newState)
	if err != nil {
		return nil, fmt.Errorf("encode document state: %w", err)
	}

	res, err := casScript.Run(ctx, s.client, []string{s.docStateKey(newState.DocumentID)}, string(payload), expectedVersion).Result()
	if err != nil {
		return nil, fmt.Errorf("cas document state: %w", err)
	}

	arr, ok := res.([]interface{})
	if !ok || len(arr) != 2 {
		return nil, fmt.Errorf("cas document state: unexpected script result")
	}
	success, _ := arr[0].(int64)
	if success == 1 {
		return &newState, nil
	}

	// Conflict: surface the current state if present.
	if raw, ok := arr[1].(string); ok {
		var cur types.DocumentState
		if err := json.Unmarshal([]byte(raw), &cur); err == nil {
			return &cur, ErrVersionConflict
		}
	}
	return nil, ErrVersionConflict
}

// SetDocumentStatusSummary writes doc:status:{uuid}, the hash BO scans for
// batch progress (§4.8 Monitor, §6).
func (s *Store) SetDocumentStatusSummary(ctx context.Context, summary types.DocumentStatusSummary) error {
	data, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("encode status summary: %w", err)
	}
	if err := s.client.Set(ctx, s.docStatusKey(summary.DocumentID), data, 0).Err(); err != nil {
		return fmt.Errorf("set status summary: %w", err)
	}
	return nil
}

// GetDocumentStatusSummary reads doc:status:{uuid}.
func (s *Store) GetDocumentStatusSummary(ctx context.Context, docID uuid.UUID) (*types.DocumentStatusSummary, error) {
	data, err := s.client.Get(ctx, s.docStatusKey(docID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get status summary: %w", err)
	}
	var summary types.DocumentStatusSummary
	if err := json.Unmarshal(data, &summary); err != nil {
		return nil, fmt.Errorf("decode status summary: %w", err)
	}
	return &summary, nil
}
