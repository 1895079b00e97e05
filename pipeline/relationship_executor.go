package pipeline

import (
	"context"
	"fmt"

	"github.com/joeott/legal-doc-processor-sub013/pgstore"
	"github.com/joeott/legal-doc-processor-sub013/relationship"
	"github.com/joeott/legal-doc-processor-sub013/types"
)

// RelationshipExecutor runs the relationship_building stage (§4.6):
// per-chunk relationship extraction projected onto canonical entities,
// deduped document-wide and staged for graph load.
type RelationshipExecutor struct {
	builder *relationship.Builder
	ps      *pgstore.Store
}

func NewRelationshipExecutor(b *relationship.Builder, ps *pgstore.Store) *RelationshipExecutor {
	return &RelationshipExecutor{builder: b, ps: ps}
}

func (e *RelationshipExecutor) Execute(ctx context.Context, task types.ProcessingTask) error {
	existing, err := e.ps.GetRelationshipsByDocument(ctx, task.DocumentID)
	if err != nil {
		return fmt.Errorf("get relationships by document: %w", err)
	}
	if len(existing) > 0 {
		return nil // already built by a prior attempt (§4.1 idempotent re-entry)
	}

	chunks, err := e.ps.GetChunksByDocument(ctx, task.DocumentID)
	if err != nil {
		return fmt.Errorf("get chunks by document: %w", err)
	}
	mentions, err := e.ps.GetMentionsByDocument(ctx, task.DocumentID)
	if err != nil {
		return fmt.Errorf("get mentions by document: %w", err)
	}
	canonical, err := e.ps.GetCanonicalEntitiesByDocument(ctx, task.DocumentID)
	if err != nil {
		return fmt.Errorf("get canonical entities by document: %w", err)
	}
	if len(canonical) == 0 {
		return nil
	}

	rels, err := e.builder.Build(ctx, task.DocumentID, chunks, mentions, canonical)
	if err != nil {
		return err
	}

	return relationship.WriteBack(ctx, e.ps, rels)
}
