package pipeline

import (
	"context"
	"fmt"

	"github.com/joeott/legal-doc-processor-sub013/chunker"
	"github.com/joeott/legal-doc-processor-sub013/pgstore"
	"github.com/joeott/legal-doc-processor-sub013/pipelineerr"
	"github.com/joeott/legal-doc-processor-sub013/statestore"
	"github.com/joeott/legal-doc-processor-sub013/types"
)

// ChunkingExecutor runs the chunking stage (§4.3): split a document's OCR
// text into the dense ordered Chunk set and persist it atomically.
type ChunkingExecutor struct {
	chunker *chunker.Chunker
	ss      *statestore.Store
	ps      *pgstore.Store
	cfg     chunker.Config
}

func NewChunkingExecutor(c *chunker.Chunker, ss *statestore.Store, ps *pgstore.Store, cfg chunker.Config) *ChunkingExecutor {
	return &ChunkingExecutor{chunker: c, ss: ss, ps: ps, cfg: cfg}
}

func (e *ChunkingExecutor) Execute(ctx context.Context, task types.ProcessingTask) error {
	existing, err := e.ps.GetChunksByDocument(ctx, task.DocumentID)
	if err != nil {
		return fmt.Errorf("get chunks by document: %w", err)
	}
	if len(existing) > 0 {
		return nil // already chunked by a prior attempt (§4.1 idempotent re-entry)
	}

	text, ok, err := e.ss.GetOCRCache(ctx, task.DocumentID)
	if err != nil {
		return fmt.Errorf("get ocr cache: %w", err)
	}
	if !ok {
		job, jerr := e.ps.GetOcrJobByDocumentID(ctx, task.DocumentID)
		if jerr != nil {
			return pipelineerr.NewStageError(pipelineerr.CategoryData, "ocr_text_missing", jerr)
		}
		if job.ResultText == nil {
			return pipelineerr.NewStageError(pipelineerr.CategoryData, "ocr_text_missing", nil)
		}
		text = *job.ResultText
	}

	chunks, err := e.chunker.Split(task.DocumentID, text, e.cfg)
	if err != nil {
		return err
	}

	if err := e.ps.InsertChunks(ctx, chunks); err != nil {
		return fmt.Errorf("insert chunks: %w", err)
	}
	if err := e.ss.SetChunksCache(ctx, task.DocumentID, chunks); err != nil {
		return fmt.Errorf("set chunks cache: %w", err)
	}

	doc, err := e.ps.GetDocument(ctx, task.DocumentID)
	if err != nil {
		return fmt.Errorf("get document: %w", err)
	}
	return e.ps.UpdateDocumentCounts(ctx, task.DocumentID, doc.PageCount, len(chunks), doc.EntityCount)
}
