// Package main is the entry point for the legal-document processing
// service's CLI: a cobra command tree (cli.RootCmd) exposing `serve` (run
// the Task Runtime worker pool), `submit-batch` and `recover-batch`
// (Batch Orchestrator operations, §4.8), `metrics` (Metrics Collector
// reports, §4.10), and `version` (build information).
//
// Command Execution Flow:
//  1. cobra parses the subcommand and its flags
//  2. every subcommand but `version` loads config.PipelineConfig from LDP_-prefixed
//     environment variables
//  3. corectx.New connects the State Store, Persistent Store, Blob Store,
//     OCR adapter and LLM clients, and wires the Pipeline Coordinator into
//     the Task Runtime pool
//  4. the subcommand runs to completion (or, for `serve`, until SIGINT/
//     SIGTERM) and closes the core context
//
// Exit codes follow cobra's convention: 0 on success, 1 on any command
// error (cobra prints the error; fatal logging inside a command exits
// with the same code via logrus's Fatal).
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joeott/legal-doc-processor-sub013/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cli.RootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
