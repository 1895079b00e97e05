// Package cachewarmer implements the Cache Warmer (CW): idempotent
// preloading of project metadata, existing OCR results, chunks, and
// frequent canonical entities from PS into SS ahead of a batch run (§4.9).
package cachewarmer

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/joeott/legal-doc-processor-sub013/pgstore"
	"github.com/joeott/legal-doc-processor-sub013/statestore"
	"github.com/joeott/legal-doc-processor-sub013/types"
)

// WarmTTL is the fixed lifetime of every entry CW writes (§4.9).
const WarmTTL = time.Hour

// FrequentEntityLimit bounds how many of a project's most-frequent
// canonical entities are preloaded (§4.9 "frequent canonical entities").
const FrequentEntityLimit = 200

// Warmer runs CW's preload over one project/batch (§4.9).
type Warmer struct {
	ss *statestore.Store
	ps *pgstore.Store
}

func New(ss *statestore.Store, ps *pgstore.Store) *Warmer {
	return &Warmer{ss: ss, ps: ps}
}

// ProjectMeta is the synthesized project summary CW preloads under
// proj:meta:{project}. The schema has no standalone project table (§3
// defines no Project entity — project_uuid is only a foreign key on
// Document), so "project metadata" is an aggregate computed from the
// project's documents rather than a dedicated row.
type ProjectMeta struct {
	ProjectID     uuid.UUID `json:"project_id"`
	DocumentCount int       `json:"document_count"`
	WarmedAt      time.Time `json:"warmed_at"`
}

// WarmBatch preloads SS for every document in documentIDs plus the
// project-wide entries, and is safe to call more than once for the same
// batch (§4.9: "CW is idempotent") — every write is a plain overwrite,
// never a conditional create.
func (w *Warmer) WarmBatch(ctx context.Context, batchID, projectID uuid.UUID, documentIDs []uuid.UUID) error {
	if err := w.warmProjectMeta(ctx, projectID); err != nil {
		return fmt.Errorf("warm project meta: %w", err)
	}
	if err := w.warmFrequentEntities(ctx, projectID); err != nil {
		return fmt.Errorf("warm frequent entities: %w", err)
	}
	for _, docID := range documentIDs {
		if err := w.warmDocument(ctx, docID); err != nil {
			return fmt.Errorf("warm document %s: %w", docID, err)
		}
	}
	return nil
}

func (w *Warmer) warmProjectMeta(ctx context.Context, projectID uuid.UUID) error {
	docs, err := w.ps.ListDocumentsByProject(ctx, projectID)
	if err != nil {
		return fmt.Errorf("list documents by project: %w", err)
	}
	meta := ProjectMeta{ProjectID: projectID, DocumentCount: len(docs), WarmedAt: time.Now()}
	return w.ss.SetJSONWithTTL(ctx, "proj:meta:"+projectID.String(), meta, WarmTTL)
}

func (w *Warmer) warmFrequentEntities(ctx context.Context, projectID uuid.UUID) error {
	entities, err := w.ps.FrequentCanonicalEntitiesByProject(ctx, projectID, FrequentEntityLimit)
	if err != nil {
		return fmt.Errorf("frequent canonical entities: %w", err)
	}
	if err := w.ss.SetJSONWithTTL(ctx, "proj:entities:"+projectID.String(), entities, WarmTTL); err != nil {
		return err
	}
	return w.ss.SetJSONWithTTL(ctx, "proj:resolution:"+projectID.String(), resolutionMap(entities), WarmTTL)
}

// resolutionMap projects the preloaded canonical entities into a
// canonical-name → ID lookup stored under proj:resolution:{project} (§4.9
// "resolution maps"). The resolver does not read it; resolver.Resolve works
// only from the mentions it is given.
func resolutionMap(entities []types.CanonicalEntity) map[string]uuid.UUID {
	m := make(map[string]uuid.UUID, len(entities))
	for _, e := range entities {
		m[e.CanonicalName] = e.ID
	}
	return m
}

func (w *Warmer) warmDocument(ctx context.Context, docID uuid.UUID) error {
	if _, err := w.ps.GetDocument(ctx, docID); err != nil {
		if err == pgstore.ErrNotFound {
			return nil
		}
		return fmt.Errorf("get document: %w", err)
	}

	if err := w.warmOCRText(ctx, docID); err != nil {
		return err
	}

	chunks, err := w.ps.GetChunksByDocument(ctx, docID)
	if err != nil {
		return fmt.Errorf("get chunks by document: %w", err)
	}
	if len(chunks) > 0 {
		if err := w.ss.SetChunksCache(ctx, docID, chunks); err != nil {
			return fmt.Errorf("warm chunks cache: %w", err)
		}
	}
	return nil
}

// warmOCRText preloads a document's most recent completed OCR result text,
// if one exists; a document with no OCR job yet, or one still pending, is
// not an error — there is simply nothing to warm (§4.9).
func (w *Warmer) warmOCRText(ctx context.Context, docID uuid.UUID) error {
	job, err := w.ps.GetOcrJobByDocumentID(ctx, docID)
	if err == pgstore.ErrNotFound {
		return nil
	}
	if err != nil {
		return fmt.Errorf("get ocr job by document id: %w", err)
	}
	if job.Status != types.OcrJobCompleted || job.ResultText == nil {
		return nil
	}
	if err := w.ss.WarmOCRCache(ctx, docID, *job.ResultText); err != nil {
		return fmt.Errorf("warm ocr cache: %w", err)
	}
	return nil
}
