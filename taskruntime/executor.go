// Package taskruntime implements the Task Runtime (TR): a process-wide
// worker pool that consumes named FIFO queues, enforces memory and time
// ceilings, classifies failures, schedules retries with category-specific
// backoff, and honors cooperative cancellation (§4.7).
package taskruntime

import (
	"context"

	"github.com/joeott/legal-doc-processor-sub013/types"
)

// Executor runs one stage's logic for one task. The pipeline package's
// per-stage executors (OCRExecutor, ChunkingExecutor, ..., FinalizationExecutor)
// implement this to plug into TR; TR itself knows nothing about any
// stage's internals, only how to schedule and retry them.
type Executor interface {
	Execute(ctx context.Context, task types.ProcessingTask) error
}

// ExecutorFunc adapts a plain function to Executor.
type ExecutorFunc func(ctx context.Context, task types.ProcessingTask) error

func (f ExecutorFunc) Execute(ctx context.Context, task types.ProcessingTask) error {
	return f(ctx, task)
}

// Registry maps a stage to the Executor that runs it. A task whose stage
// has no registered Executor fails as a CONFIGURATION error: TR has no
// way to make progress on it and no auto-retry can fix that.
type Registry map[types.Stage]Executor

// Advancer is PC's hook into TR's task lifecycle: once a task reaches a
// terminal outcome for this attempt, TR hands control back to PC to decide
// the document's next transition (§4.1, §4.7 "hands control back to PC
// which enqueues the next stage"). Either method may be nil-safe no-ops if
// a caller runs TR without a Pipeline Coordinator wired in (e.g. tests).
type Advancer interface {
	// Advance is called after a task completes its stage successfully.
	Advance(ctx context.Context, task types.ProcessingTask) error
	// Fail is called after a task fails terminally (retries exhausted or
	// non-retryable category).
	Fail(ctx context.Context, task types.ProcessingTask, category string, message string) error
}
