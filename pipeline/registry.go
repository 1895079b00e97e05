package pipeline

import (
	"github.com/joeott/legal-doc-processor-sub013/chunker"
	"github.com/joeott/legal-doc-processor-sub013/extractor"
	"github.com/joeott/legal-doc-processor-sub013/ocr"
	"github.com/joeott/legal-doc-processor-sub013/pgstore"
	"github.com/joeott/legal-doc-processor-sub013/relationship"
	"github.com/joeott/legal-doc-processor-sub013/resolver"
	"github.com/joeott/legal-doc-processor-sub013/statestore"
	"github.com/joeott/legal-doc-processor-sub013/taskruntime"
	"github.com/joeott/legal-doc-processor-sub013/types"
)

// Executors bundles the per-stage implementations NewRegistry wires into a
// taskruntime.Registry, so corectx can construct each stage's dependencies
// once and hand them here.
type Executors struct {
	OCR          *ocr.Adapter
	Chunker      *chunker.Chunker
	ChunkerCfg   chunker.Config
	Extractor    *extractor.Extractor
	Relationship *relationship.Builder
	ResolverCfg  resolver.Config
}

// NewRegistry builds the taskruntime.Registry mapping every stage to its
// Executor (§4.1, §4.7).
func NewRegistry(ex Executors, ss *statestore.Store, ps *pgstore.Store) taskruntime.Registry {
	return taskruntime.Registry{
		types.StageOCR:                  NewOCRExecutor(ex.OCR, ps),
		types.StageChunking:             NewChunkingExecutor(ex.Chunker, ss, ps, ex.ChunkerCfg),
		types.StageEntityExtraction:     NewExtractionExecutor(ex.Extractor, ps),
		types.StageEntityResolution:     NewResolutionExecutor(ps, ex.ResolverCfg),
		types.StageRelationshipBuilding: NewRelationshipExecutor(ex.Relationship, ps),
		types.StageFinalization:         NewFinalizationExecutor(ss, ps),
	}
}
