// Package relationship implements the Relationship Builder (RB): per-chunk
// calls to the external relationship function, projection of mention
// endpoints onto canonical entities, filtering, document-wide dedup, and
// atomic persistence to the staging table (§4.6).
package relationship

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/joeott/legal-doc-processor-sub013/llm"
	"github.com/joeott/legal-doc-processor-sub013/pgstore"
	"github.com/joeott/legal-doc-processor-sub013/pipelineerr"
	"github.com/joeott/legal-doc-processor-sub013/types"
)

// Config controls relationship-building policy (§4.6).
type Config struct {
	ConfidenceThreshold float64 // default 0.5
}

// DefaultConfig returns the specification's stated default.
func DefaultConfig() Config {
	return Config{ConfidenceThreshold: 0.5}
}

// Builder runs RB over a document's chunks, mentions and canonical
// entities. Per §4.9/§9, both mentions and canonical entities are required
// inputs — RB never re-derives one from the other.
type Builder struct {
	client llm.Client
	cfg    Config
}

func New(client llm.Client, cfg Config) *Builder {
	if cfg.ConfidenceThreshold <= 0 {
		cfg.ConfidenceThreshold = 0.5
	}
	return &Builder{client: client, cfg: cfg}
}

// candidateEdge accumulates one (from,to,type) key across chunks: the
// highest confidence seen, and the evidence from the first chunk that
// supported the edge at all (§4.6: "keeping highest confidence; record
// evidence from the first supporting chunk" — two independently tracked
// facts, since the highest-confidence occurrence need not be the first).
type candidateEdge struct {
	rel            types.Relationship // evidence fields pinned to the first occurrence
	bestConfidence float64
	firstChunkIdx  int
}

// Build runs §4.6's full algorithm over one document: calling the external
// relationship function per chunk, projecting to canonical entities,
// filtering, and deduping document-wide. It does not persist; call
// WriteBack with the result.
func (b *Builder) Build(ctx context.Context, documentID uuid.UUID, chunks []types.Chunk, mentions []types.EntityMention, canonical []types.CanonicalEntity) ([]types.Relationship, error) {
	textIndex := buildTextIndex(mentions, canonical)

	best := make(map[[3]string]candidateEdge)

	for _, chunk := range chunks {
		known := knownEntityTexts(mentions, chunk.ChunkIndex)
		if len(known) == 0 {
			continue
		}

		candidates, err := b.client.ExtractRelationships(ctx, chunk.Text, known)
		if err != nil {
			return nil, pipelineerr.NewStageError(pipelineerr.Classify(err), "relationship_call_failed", err)
		}

		for _, c := range candidates {
			rel, ok := b.projectAndFilter(documentID, chunk, c, textIndex)
			if !ok {
				continue
			}
			key := rel.Key()
			existing, seen := best[key]
			if !seen {
				best[key] = candidateEdge{rel: rel, bestConfidence: rel.Confidence, firstChunkIdx: chunk.ChunkIndex}
				continue
			}
			if rel.Confidence > existing.bestConfidence {
				existing.bestConfidence = rel.Confidence
			}
			best[key] = existing
		}
	}

	out := make([]types.Relationship, 0, len(best))
	for _, key := range sortedRelationshipKeys(best) {
		edge := best[key]
		r := edge.rel
		r.Confidence = edge.bestConfidence
		out = append(out, r)
	}
	return out, nil
}

// projectAndFilter implements §4.6's per-candidate policy: project mention
// endpoints to canonical entities (drop if either is unresolved), drop
// self-loops, drop below-threshold confidence.
func (b *Builder) projectAndFilter(documentID uuid.UUID, chunk types.Chunk, c llm.RelationshipCandidate, textIndex map[string]uuid.UUID) (types.Relationship, bool) {
	fromID, ok := textIndex[normalizeLookup(c.FromText)]
	if !ok {
		return types.Relationship{}, false
	}
	toID, ok := textIndex[normalizeLookup(c.ToText)]
	if !ok {
		return types.Relationship{}, false
	}
	if fromID == toID {
		return types.Relationship{}, false
	}
	if c.Confidence < b.cfg.ConfidenceThreshold {
		return types.Relationship{}, false
	}

	return types.Relationship{
		ID:              deterministicRelationshipID(documentID, fromID, toID, c.Type),
		DocumentID:      documentID,
		FromEntityID:    fromID,
		ToEntityID:      toID,
		Type:            c.Type,
		Confidence:      c.Confidence,
		EvidenceChunkID: &chunk.ID,
		EvidenceText:    c.Evidence,
	}, true
}

// buildTextIndex maps each mention's lowercased surface text to its
// canonical entity, so candidate FromText/ToText strings (surface forms
// the relationship function saw, not IDs) can be projected (§4.6).
func buildTextIndex(mentions []types.EntityMention, canonical []types.CanonicalEntity) map[string]uuid.UUID {
	canonicalByID := make(map[uuid.UUID]types.CanonicalEntity, len(canonical))
	for _, e := range canonical {
		canonicalByID[e.ID] = e
	}

	index := make(map[string]uuid.UUID)
	for _, m := range mentions {
		if m.CanonicalEntityID == nil {
			continue
		}
		if _, ok := canonicalByID[*m.CanonicalEntityID]; !ok {
			continue
		}
		index[normalizeLookup(m.Text)] = *m.CanonicalEntityID
	}
	// Canonical names and aliases resolve too, since the relationship
	// function may echo back the canonical form rather than the exact
	// mention surface text it was shown.
	for _, e := range canonical {
		index[normalizeLookup(e.CanonicalName)] = e.ID
		for _, alias := range e.Aliases {
			index[normalizeLookup(alias)] = e.ID
		}
	}
	return index
}

func normalizeLookup(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// knownEntityTexts lists the distinct mention surface forms in one chunk,
// the "known entities" context passed to the external relationship
// function alongside the chunk's text (§4.6).
func knownEntityTexts(mentions []types.EntityMention, chunkIndex int) []string {
	seen := make(map[string]bool)
	var out []string
	for _, m := range mentions {
		if m.ChunkIndex != chunkIndex {
			continue
		}
		if seen[m.Text] {
			continue
		}
		seen[m.Text] = true
		out = append(out, m.Text)
	}
	return out
}

func sortedRelationshipKeys(m map[[3]string]candidateEdge) [][3]string {
	keys := make([][3]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i][0] != keys[j][0] {
			return keys[i][0] < keys[j][0]
		}
		if keys[i][1] != keys[j][1] {
			return keys[i][1] < keys[j][1]
		}
		return keys[i][2] < keys[j][2]
	})
	return keys
}

// deterministicRelationshipID derives a stable UUID from the edge's
// identity key so a retried write-back or a re-run of relationship
// building over an unchanged mention/canonical set is idempotent.
func deterministicRelationshipID(documentID, from, to uuid.UUID, relType string) uuid.UUID {
	name := fmt.Sprintf("%s:rel:%s:%s:%s", documentID.String(), from.String(), to.String(), relType)
	return uuid.NewSHA1(documentID, []byte(name))
}

// WriteBack persists relationships to the staging table in one transaction
// per document (§4.6: "persist to staging table atomically per document").
func WriteBack(ctx context.Context, store *pgstore.Store, rels []types.Relationship) error {
	if len(rels) == 0 {
		return nil
	}
	tx, err := store.BeginTx(ctx)
	if err != nil {
		return pipelineerr.NewStageError(pipelineerr.CategoryResource, "relationship_writeback_begin_failed", err)
	}
	defer tx.Rollback(ctx)

	for _, r := range rels {
		if err := store.InsertRelationship(ctx, tx, r); err != nil {
			return pipelineerr.NewStageError(pipelineerr.CategoryResource, "relationship_writeback_failed", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return pipelineerr.NewStageError(pipelineerr.CategoryResource, "relationship_writeback_commit_failed", err)
	}
	return nil
}
