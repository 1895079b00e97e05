package pipeline

import (
	"context"
	"fmt"

	"github.com/joeott/legal-doc-processor-sub013/pgstore"
	"github.com/joeott/legal-doc-processor-sub013/resolver"
	"github.com/joeott/legal-doc-processor-sub013/types"
)

// ResolutionExecutor runs the entity_resolution stage (§4.5): cluster a
// document's mentions into canonical entities and write the result back
// atomically.
type ResolutionExecutor struct {
	ps  *pgstore.Store
	cfg resolver.Config
}

func NewResolutionExecutor(ps *pgstore.Store, cfg resolver.Config) *ResolutionExecutor {
	return &ResolutionExecutor{ps: ps, cfg: cfg}
}

func (e *ResolutionExecutor) Execute(ctx context.Context, task types.ProcessingTask) error {
	existing, err := e.ps.GetCanonicalEntitiesByDocument(ctx, task.DocumentID)
	if err != nil {
		return fmt.Errorf("get canonical entities by document: %w", err)
	}
	if len(existing) > 0 {
		return nil // already resolved by a prior attempt (§4.1 idempotent re-entry)
	}

	mentions, err := e.ps.GetMentionsByDocument(ctx, task.DocumentID)
	if err != nil {
		return fmt.Errorf("get mentions by document: %w", err)
	}
	if len(mentions) == 0 {
		return nil
	}

	result := resolver.Resolve(task.DocumentID, mentions, e.cfg)
	if err := resolver.WriteBack(ctx, e.ps, result, e.cfg.WriteBackRetries); err != nil {
		return err
	}

	doc, err := e.ps.GetDocument(ctx, task.DocumentID)
	if err != nil {
		return fmt.Errorf("get document: %w", err)
	}
	return e.ps.UpdateDocumentCounts(ctx, task.DocumentID, doc.PageCount, doc.ChunkCount, len(result.Entities))
}
