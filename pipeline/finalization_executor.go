package pipeline

import (
	"context"
	"fmt"

	"github.com/joeott/legal-doc-processor-sub013/pgstore"
	"github.com/joeott/legal-doc-processor-sub013/statestore"
	"github.com/joeott/legal-doc-processor-sub013/types"
)

// FinalizationExecutor runs the finalization stage (§4.7): it blocks on PS
// writes and SS cache updates, recomputing the document's authoritative
// page/chunk/entity counts from what the earlier stages actually
// persisted. Marking the document completed itself is PC's job
// (Coordinator.Advance, once this stage's task succeeds), not this
// executor's.
type FinalizationExecutor struct {
	ss *statestore.Store
	ps *pgstore.Store
}

func NewFinalizationExecutor(ss *statestore.Store, ps *pgstore.Store) *FinalizationExecutor {
	return &FinalizationExecutor{ss: ss, ps: ps}
}

func (e *FinalizationExecutor) Execute(ctx context.Context, task types.ProcessingTask) error {
	doc, err := e.ps.GetDocument(ctx, task.DocumentID)
	if err != nil {
		return fmt.Errorf("get document: %w", err)
	}

	chunks, err := e.ps.GetChunksByDocument(ctx, task.DocumentID)
	if err != nil {
		return fmt.Errorf("get chunks by document: %w", err)
	}
	if err := e.ss.SetChunksCache(ctx, task.DocumentID, chunks); err != nil {
		return fmt.Errorf("set chunks cache: %w", err)
	}

	canonical, err := e.ps.GetCanonicalEntitiesByDocument(ctx, task.DocumentID)
	if err != nil {
		return fmt.Errorf("get canonical entities by document: %w", err)
	}

	return e.ps.UpdateDocumentCounts(ctx, task.DocumentID, doc.PageCount, len(chunks), len(canonical))
}
