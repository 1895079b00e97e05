// Package cli provides the command-line interface for the legal-document
// processing service: starting the Task Runtime worker pool, submitting and
// recovering batches, and printing Metrics Collector reports (§4.1, §4.7,
// §4.8, §4.10).
//
// Architecture Overview:
//
//	CLI → config.PipelineConfig → corectx.Context → {batch, pipeline, metrics}
//
// Configuration is environment-only (config.LoadPipelineConfig, all keys
// under the LDP_ prefix), matching this service's 12-factor deployment
// model; command-line flags override specific per-invocation values (e.g.
// which batch to recover) rather than duplicating connection config.
package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/joeott/legal-doc-processor-sub013/batch"
	"github.com/joeott/legal-doc-processor-sub013/cachewarmer"
	"github.com/joeott/legal-doc-processor-sub013/config"
	"github.com/joeott/legal-doc-processor-sub013/corectx"
	"github.com/joeott/legal-doc-processor-sub013/metrics"
	"github.com/joeott/legal-doc-processor-sub013/types"
	"github.com/joeott/legal-doc-processor-sub013/version"
)

// RootCmd is the application's entry point. Every subcommand but version loads
// config.PipelineConfig from the environment and builds its own
// *corectx.Context, since each invocation is a separate short-lived
// process (the long-running exception is `serve`, which keeps its Context
// open for the process lifetime).
var RootCmd = &cobra.Command{
	Use:   "legal-doc-processor",
	Short: "distributed fault-tolerant pipeline for OCR, entity extraction, and relationship building over legal PDFs",
	Long: `legal-doc-processor runs the six-stage document pipeline
(ocr -> chunking -> entity_extraction -> entity_resolution ->
relationship_building -> finalization) described in this repository's
specification: a Redis-backed State Store for live document/task state, a
Postgres Persistent Store for durable results, an S3 Blob Store for source
PDFs, and a Task Runtime worker pool that drives documents through every
stage under the Pipeline Coordinator's supervision.

Configuration is read entirely from LDP_-prefixed environment variables
(LDP_POSTGRES_DSN, LDP_S3_BUCKET, LDP_REDIS_URL, ...); see config.PipelineConfig.`,
}

func init() {
	RootCmd.AddCommand(serveCmd, submitBatchCmd, recoverBatchCmd, metricsCmd, versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "print the running binary's build and dependency version information",
	Run: func(cmd *cobra.Command, args []string) {
		info := version.GetBuildInfo()
		fmt.Printf("legal-doc-processor %s (go %s)\n", version.GetServiceVersion(), info.GoVersion)
	},
}

func newLogger() *logrus.Logger {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})
	return log
}

func buildContext(ctx context.Context, log *logrus.Logger) (*corectx.Context, error) {
	cfg := config.LoadPipelineConfig()
	return corectx.New(ctx, cfg, log)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "start the Task Runtime worker pool and process queued tasks until terminated",
	Run: func(cmd *cobra.Command, args []string) {
		log := newLogger()
		ctx := cmd.Context()

		cc, err := buildContext(ctx, log)
		if err != nil {
			log.WithError(err).Fatal("failed to build core context")
		}
		defer cc.Close()

		cc.Pool.Start()
		log.Info("worker pool started, awaiting shutdown signal")

		<-ctx.Done()

		log.Info("shutdown signal received, stopping worker pool")
		cc.Pool.Stop()
	},
}

var submitBatchFlags struct {
	projectID  string
	documentID []string
	priority   string
	warmCache  bool
	maxRetries int
}

var submitBatchCmd = &cobra.Command{
	Use:   "submit-batch",
	Short: "submit a batch of documents to the Batch Orchestrator (§4.8)",
	Run: func(cmd *cobra.Command, args []string) {
		log := newLogger()
		ctx := cmd.Context()

		cc, err := buildContext(ctx, log)
		if err != nil {
			log.WithError(err).Fatal("failed to build core context")
		}
		defer cc.Close()

		projectID, err := uuid.Parse(submitBatchFlags.projectID)
		if err != nil {
			log.WithError(err).Fatal("invalid --project-id")
		}
		docIDs := make([]uuid.UUID, 0, len(submitBatchFlags.documentID))
		for _, raw := range submitBatchFlags.documentID {
			id, err := uuid.Parse(raw)
			if err != nil {
				log.WithError(err).Fatalf("invalid --document-id %q", raw)
			}
			docIDs = append(docIDs, id)
		}

		warmer := cachewarmer.New(cc.SS, cc.PS)
		orchestrator := batch.New(cc.SS, cc.PS, warmer)

		result, err := orchestrator.Submit(ctx, projectID, docIDs, types.Priority(submitBatchFlags.priority), types.BatchOptions{
			WarmCache:  submitBatchFlags.warmCache,
			MaxRetries: submitBatchFlags.maxRetries,
		})
		if err != nil {
			log.WithError(err).Fatal("batch submission failed")
		}
		fmt.Printf("submitted batch %s (%d documents, priority %s)\n", result.ID, len(result.DocumentIDs), result.Priority)
	},
}

func init() {
	submitBatchCmd.Flags().StringVar(&submitBatchFlags.projectID, "project-id", "", "project UUID (required)")
	submitBatchCmd.Flags().StringArrayVar(&submitBatchFlags.documentID, "document-id", nil, "document UUID (repeatable, required)")
	submitBatchCmd.Flags().StringVar(&submitBatchFlags.priority, "priority", string(types.PriorityNormal), "batch priority: high|normal|low")
	submitBatchCmd.Flags().BoolVar(&submitBatchFlags.warmCache, "warm-cache", true, "warm the State Store cache before enqueuing tasks")
	submitBatchCmd.Flags().IntVar(&submitBatchFlags.maxRetries, "max-retries", 3, "per-document max retries for this batch")
	submitBatchCmd.MarkFlagRequired("project-id")
	submitBatchCmd.MarkFlagRequired("document-id")
}

var recoverBatchFlags struct {
	batchID string
	execute bool
}

var recoverBatchCmd = &cobra.Command{
	Use:   "recover-batch",
	Short: "inspect (or execute) the Batch Orchestrator's recovery plan for a batch's failed documents (§4.8)",
	Run: func(cmd *cobra.Command, args []string) {
		log := newLogger()
		ctx := cmd.Context()

		cc, err := buildContext(ctx, log)
		if err != nil {
			log.WithError(err).Fatal("failed to build core context")
		}
		defer cc.Close()

		batchID, err := uuid.Parse(recoverBatchFlags.batchID)
		if err != nil {
			log.WithError(err).Fatal("invalid --batch-id")
		}

		warmer := cachewarmer.New(cc.SS, cc.PS)
		orchestrator := batch.New(cc.SS, cc.PS, warmer)

		plan, err := orchestrator.Recover(ctx, batchID)
		if err != nil {
			log.WithError(err).Fatal("failed to compute recovery plan")
		}
		fmt.Printf("strategy=%s failed_docs=%d failure_rate=%.2f retry_count=%d delay=%s\n",
			plan.Strategy, len(plan.FailedDocs), plan.FailureRate, plan.RetryCount, plan.Delay)

		if !recoverBatchFlags.execute {
			return
		}
		if err := orchestrator.Execute(ctx, *plan); err != nil {
			log.WithError(err).Fatal("failed to execute recovery plan")
		}
		fmt.Println("recovery plan executed")
	},
}

func init() {
	recoverBatchCmd.Flags().StringVar(&recoverBatchFlags.batchID, "batch-id", "", "batch UUID (required)")
	recoverBatchCmd.Flags().BoolVar(&recoverBatchFlags.execute, "execute", false, "execute the recovery plan instead of only printing it")
	recoverBatchCmd.MarkFlagRequired("batch-id")
}

var metricsFlags struct {
	since time.Duration
}

var metricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "print a Metrics Collector performance report for the trailing window (§4.10)",
	Run: func(cmd *cobra.Command, args []string) {
		log := newLogger()
		ctx := cmd.Context()

		cc, err := buildContext(ctx, log)
		if err != nil {
			log.WithError(err).Fatal("failed to build core context")
		}
		defer cc.Close()

		collector := metrics.New(cc.SS)
		to := time.Now()
		from := to.Add(-metricsFlags.since)

		report, err := collector.PerformanceReport(ctx, from, to)
		if err != nil {
			log.WithError(err).Fatal("failed to build performance report")
		}
		for _, s := range report.Stages {
			fmt.Printf("%-24s completed=%d retried=%d failed=%d cancelled=%d\n",
				s.Stage, s.Completed, s.Retried, s.Failed, s.Cancelled)
		}
	},
}

func init() {
	metricsCmd.Flags().DurationVar(&metricsFlags.since, "since", 24*time.Hour, "how far back the report window extends")
}
