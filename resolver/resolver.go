// Package resolver implements the Entity Resolver (ER): clustering a
// document's entity mentions into canonical entities by exact normalized
// key, then fuzzy similarity for remaining singletons, and writing the
// result back atomically (§4.5).
package resolver

import (
	"context"
	"fmt"
	"sort"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/joeott/legal-doc-processor-sub013/pgstore"
	"github.com/joeott/legal-doc-processor-sub013/pipelineerr"
	"github.com/joeott/legal-doc-processor-sub013/types"
)

// Config controls resolution policy.
type Config struct {
	FuzzyThreshold float64 // default DefaultFuzzyThreshold (0.85)
	WriteBackRetries int
}

// DefaultConfig returns the specification's stated defaults.
func DefaultConfig() Config {
	return Config{FuzzyThreshold: DefaultFuzzyThreshold, WriteBackRetries: 3}
}

// cluster is a group of mention indices (into the type-scoped slice) that
// have been merged into one canonical entity candidate.
type cluster struct {
	indices []int
}

// Result is ER's output: the canonical entities to persist, plus the
// original mentions with their CanonicalEntityID backfilled.
type Result struct {
	Entities []types.CanonicalEntity
	Mentions []types.EntityMention
}

// Resolve runs steps 1-6 of §4.5 over every mention of one document.
// mentions must already belong to a single document; Resolve does not
// filter by document itself.
func Resolve(documentID uuid.UUID, mentions []types.EntityMention, cfg Config) Result {
	if cfg.FuzzyThreshold <= 0 {
		cfg.FuzzyThreshold = DefaultFuzzyThreshold
	}

	byType := groupByType(mentions)

	var entities []types.CanonicalEntity
	resolved := make([]types.EntityMention, len(mentions))
	copy(resolved, mentions)

	for _, entityType := range sortedTypeKeys(byType) {
		idxs := byType[entityType]
		clusters := exactKeyClusters(mentions, idxs, entityType)
		clusters = fuzzyMergeSingletons(mentions, clusters, cfg.FuzzyThreshold)

		for _, c := range clusters {
			entity := buildCanonicalEntity(documentID, entityType, mentions, c)
			entities = append(entities, entity)
			for _, idx := range c.indices {
				resolved[idx].CanonicalEntityID = &entity.ID
			}
		}
	}

	return Result{Entities: entities, Mentions: resolved}
}

// groupByType buckets mention indices by entity type (§4.5 step 1).
func groupByType(mentions []types.EntityMention) map[types.EntityType][]int {
	out := make(map[types.EntityType][]int)
	for i, m := range mentions {
		out[m.Type] = append(out[m.Type], i)
	}
	return out
}

func sortedTypeKeys(m map[types.EntityType][]int) []types.EntityType {
	keys := make([]types.EntityType, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// exactKeyClusters implements §4.5 steps 2-3: normalize each mention then
// group mentions sharing a normalized key.
func exactKeyClusters(mentions []types.EntityMention, idxs []int, entityType types.EntityType) []cluster {
	byKey := make(map[string][]int)
	for _, idx := range idxs {
		key := NormalizedKey(mentions[idx].Text, entityType)
		byKey[key] = append(byKey[key], idx)
	}

	clusters := make([]cluster, 0, len(byKey))
	for _, key := range sortedKeys(byKey) {
		clusters = append(clusters, cluster{indices: byKey[key]})
	}
	return clusters
}

// fuzzyMergeSingletons implements §4.5 step 4: for clusters that are still
// singletons after exact-key grouping, merge pairs whose similarity meets
// the threshold. Merging is greedy in normalized-key order: each unmerged
// singleton absorbs every later singleton whose similarity to the
// accumulated cluster's longest text meets the threshold. Singletons are
// not compared with multi-mention clusters, and no tie-break by confidence
// or name is applied; a singleton joins the first cluster that reaches it.
func fuzzyMergeSingletons(mentions []types.EntityMention, clusters []cluster, threshold float64) []cluster {
	var singles []int  // indices into clusters that are singletons
	var multi []cluster
	for i, c := range clusters {
		if len(c.indices) == 1 {
			singles = append(singles, i)
		} else {
			multi = append(multi, c)
		}
	}

	merged := make([]bool, len(singles))
	var result []cluster
	result = append(result, multi...)

	for i, si := range singles {
		if merged[i] {
			continue
		}
		acc := clusters[si]
		accText := representativeText(mentions, acc)

		for j := i + 1; j < len(singles); j++ {
			if merged[j] {
				continue
			}
			sj := singles[j]
			candText := representativeText(mentions, clusters[sj])

			if similarity(accText, candText) >= threshold {
				merged[j] = true
				acc = cluster{indices: append(append([]int{}, acc.indices...), clusters[sj].indices...)}
				accText = representativeText(mentions, acc)
			}
		}
		result = append(result, acc)
	}

	return result
}

// representativeText is the text used to compare a cluster against others
// during fuzzy merge: the longest mention text so far, matching the
// canonical-name rule in step 5.
func representativeText(mentions []types.EntityMention, c cluster) string {
	best := ""
	for _, idx := range c.indices {
		if len(mentions[idx].Text) > len(best) {
			best = mentions[idx].Text
		}
	}
	return best
}

// buildCanonicalEntity implements §4.5 steps 5-6: canonical name selection,
// alias collection, aggregate confidence, and deterministic UUID
// derivation from the cluster's earliest (chunk_index, start_offset)
// mention, so re-running resolution on the same mention set reproduces
// identical canonical IDs.
func buildCanonicalEntity(documentID uuid.UUID, entityType types.EntityType, mentions []types.EntityMention, c cluster) types.CanonicalEntity {
	sortedIdx := append([]int{}, c.indices...)
	sort.Slice(sortedIdx, func(i, j int) bool {
		return mentions[sortedIdx[i]].SortKey().Less(mentions[sortedIdx[j]].SortKey())
	})
	first := mentions[sortedIdx[0]]

	name, aliasSet := canonicalName(mentions, c)
	var aliases []string
	for a := range aliasSet {
		if a != name {
			aliases = append(aliases, a)
		}
	}
	sort.Strings(aliases)

	return types.CanonicalEntity{
		ID:            deterministicCanonicalID(documentID, first),
		DocumentID:    documentID,
		Type:          entityType,
		CanonicalName: name,
		Aliases:       aliases,
		MentionCount:  len(c.indices),
		Confidence:    aggregateConfidence(mentions, c),
	}
}

// canonicalName picks the longest mention text in the cluster, falling
// back to the highest-confidence mention on a length tie (§4.5 step 5),
// and returns the set of distinct surface forms as aliases.
func canonicalName(mentions []types.EntityMention, c cluster) (string, map[string]bool) {
	aliases := make(map[string]bool)
	var best types.EntityMention
	for i, idx := range c.indices {
		m := mentions[idx]
		aliases[m.Text] = true
		if i == 0 {
			best = m
			continue
		}
		if len(m.Text) > len(best.Text) || (len(m.Text) == len(best.Text) && m.Confidence > best.Confidence) {
			best = m
		}
	}
	return best.Text, aliases
}

// aggregateConfidence is the cluster's mean mention confidence, a simple
// and order-independent aggregate the specification does not otherwise
// pin down.
func aggregateConfidence(mentions []types.EntityMention, c cluster) float64 {
	if len(c.indices) == 0 {
		return 0
	}
	sum := 0.0
	for _, idx := range c.indices {
		sum += mentions[idx].Confidence
	}
	return sum / float64(len(c.indices))
}

// deterministicCanonicalID derives a stable UUID from the document and the
// cluster's first-mention identity, so replaying resolution over an
// unchanged mention set reproduces the same canonical entity ID (§4.5
// step 6, §4.1 idempotent re-entry).
func deterministicCanonicalID(documentID uuid.UUID, first types.EntityMention) uuid.UUID {
	name := fmt.Sprintf("%s:canonical:%d:%d", documentID.String(), first.ChunkIndex, first.StartOffset)
	return uuid.NewSHA1(documentID, []byte(name))
}

// WriteBack persists a Result atomically: canonical entities, then each
// mention's canonical pointer, in one transaction. §4.5 step 7 requires
// this be retried as a whole on partial failure; deterministic IDs make a
// retried write-back idempotent, so WriteBack itself retries transient
// failures with backoff rather than requiring the caller to re-resolve.
func WriteBack(ctx context.Context, store *pgstore.Store, result Result, retries int) error {
	if retries <= 0 {
		retries = 3
	}

	op := func() error {
		tx, err := store.BeginTx(ctx)
		if err != nil {
			return fmt.Errorf("begin write-back: %w", err)
		}
		defer tx.Rollback(ctx)

		for _, e := range result.Entities {
			if err := store.InsertCanonicalEntity(ctx, tx, e); err != nil {
				return err
			}
		}
		for _, m := range result.Mentions {
			if m.CanonicalEntityID == nil {
				continue
			}
			if err := store.SetMentionCanonical(ctx, tx, m.ID, *m.CanonicalEntityID); err != nil {
				return err
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit write-back: %w", err)
		}
		return nil
	}

	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(retries)), ctx)
	if err := backoff.Retry(op, bo); err != nil {
		return pipelineerr.NewStageError(pipelineerr.CategoryResource, "resolution_writeback_failed", err)
	}
	return nil
}
