package pipeline

import (
	"context"
	"fmt"
	"sort"

	"github.com/joeott/legal-doc-processor-sub013/extractor"
	"github.com/joeott/legal-doc-processor-sub013/pgstore"
	"github.com/joeott/legal-doc-processor-sub013/types"
)

// ExtractionExecutor runs the entity_extraction stage (§4.4): per-chunk
// remote/local entity extraction with dedup, span validation and type
// whitelisting, then a document-wide ordered write-back.
type ExtractionExecutor struct {
	extractor *extractor.Extractor
	ps        *pgstore.Store
}

func NewExtractionExecutor(ex *extractor.Extractor, ps *pgstore.Store) *ExtractionExecutor {
	return &ExtractionExecutor{extractor: ex, ps: ps}
}

func (e *ExtractionExecutor) Execute(ctx context.Context, task types.ProcessingTask) error {
	existing, err := e.ps.GetMentionsByDocument(ctx, task.DocumentID)
	if err != nil {
		return fmt.Errorf("get mentions by document: %w", err)
	}
	if len(existing) > 0 {
		return nil // already extracted by a prior attempt (§4.1 idempotent re-entry)
	}

	chunks, err := e.ps.GetChunksByDocument(ctx, task.DocumentID)
	if err != nil {
		return fmt.Errorf("get chunks by document: %w", err)
	}

	e.extractor.ResetDocument()

	var mentions []types.EntityMention
	for _, chunk := range chunks {
		chunkMentions, err := e.extractor.ExtractChunk(ctx, chunk, task.DocumentID)
		if err != nil {
			return err
		}
		mentions = append(mentions, chunkMentions...)
	}

	sort.Slice(mentions, func(i, j int) bool {
		return mentions[i].SortKey().Less(mentions[j].SortKey())
	})

	if len(mentions) == 0 {
		return nil
	}
	if err := e.ps.InsertMentions(ctx, mentions); err != nil {
		return fmt.Errorf("insert mentions: %w", err)
	}

	doc, err := e.ps.GetDocument(ctx, task.DocumentID)
	if err != nil {
		return fmt.Errorf("get document: %w", err)
	}
	return e.ps.UpdateDocumentCounts(ctx, task.DocumentID, doc.PageCount, doc.ChunkCount, len(mentions))
}
