// Package corectx is the composition root: it builds every long-lived
// dependency (State Store, Persistent Store, Blob Store, OCR adapter, LLM
// clients, per-stage processors) exactly once and wires them into the
// Pipeline Coordinator and Task Runtime pool a running service needs.
// Nothing outside this package and tests should construct these components
// directly; everything else should receive them through a Context.
//
// Grounded on the teacher's cli.runServer, which plays the same role for
// the RabbitMQ/CouchDB/JWT service: load config, construct every service
// once, wire them into the HTTP handlers, and hand back a single object
// whose Close tears the whole thing down.
package corectx

import (
	"context"
	"fmt"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/textract"
	"github.com/sirupsen/logrus"

	"github.com/joeott/legal-doc-processor-sub013/blobstore"
	"github.com/joeott/legal-doc-processor-sub013/chunker"
	"github.com/joeott/legal-doc-processor-sub013/config"
	"github.com/joeott/legal-doc-processor-sub013/extractor"
	"github.com/joeott/legal-doc-processor-sub013/llm"
	"github.com/joeott/legal-doc-processor-sub013/ocr"
	"github.com/joeott/legal-doc-processor-sub013/pgstore"
	"github.com/joeott/legal-doc-processor-sub013/pipeline"
	"github.com/joeott/legal-doc-processor-sub013/relationship"
	"github.com/joeott/legal-doc-processor-sub013/resolver"
	"github.com/joeott/legal-doc-processor-sub013/statestore"
	"github.com/joeott/legal-doc-processor-sub013/taskruntime"
)

// circuitBreakerThreshold/circuitBreakerCooldown configure the breaker
// around the remote LLM client: it opens after circuitBreakerThreshold
// consecutive failures and stays open for circuitBreakerCooldown. EX's own
// switch to its local fallback (§4.4) is counted separately, by
// extractor.Config.ConsecutiveFailuresToFallback; calls an open breaker
// rejects count as failures there.
const (
	circuitBreakerThreshold = 5
	circuitBreakerCooldown  = 30 * time.Second
)

// Context holds every constructed dependency a running service needs:
// the three stores, the OCR/LLM adapters, the Pipeline Coordinator, and
// the Task Runtime pool that drives it all. Build one with New and keep it
// for the process lifetime.
type Context struct {
	Config config.PipelineConfig
	Log    *logrus.Logger

	SS *statestore.Store
	PS *pgstore.Store
	BS *blobstore.Store

	Coordinator *pipeline.Coordinator
	Pool        *taskruntime.Pool
}

// New constructs every dependency named in cfg and wires them into a
// Task Runtime pool whose Advancer is the Pipeline Coordinator, ready to
// call Start. Callers own ctx's lifetime; New itself only uses it for the
// initial connection checks each store performs.
func New(ctx context.Context, cfg config.PipelineConfig, log *logrus.Logger) (*Context, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	ss, err := statestore.New(ctx, statestore.Config{RedisURL: cfg.RedisURL, KeyPrefix: cfg.RedisKeyPrefix})
	if err != nil {
		return nil, fmt.Errorf("connect state store: %w", err)
	}

	ps, err := pgstore.New(ctx, pgstore.Config{
		DSN:      cfg.PostgresDSN,
		MaxConns: cfg.PostgresMaxConns,
		MinConns: cfg.PostgresMinConns,
	})
	if err != nil {
		return nil, fmt.Errorf("connect persistent store: %w", err)
	}

	bs, err := blobstore.New(ctx, blobstore.Config{
		Region:          cfg.S3Region,
		Bucket:          cfg.S3Bucket,
		Endpoint:        cfg.S3Endpoint,
		AccessKeyID:     cfg.S3AccessKeyID,
		SecretAccessKey: cfg.S3SecretKey,
		UsePathStyle:    cfg.S3UsePathStyle,
	})
	if err != nil {
		return nil, fmt.Errorf("connect blob store: %w", err)
	}

	textractClient, err := newTextractClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("build textract client: %w", err)
	}
	textractBucket := cfg.TextractBucket
	if textractBucket == "" {
		textractBucket = cfg.S3Bucket
	}
	ocrProvider := ocr.NewTextractProvider(textractClient, textractBucket)
	ocrAdapter := ocr.New(ocrProvider, bs, ss, 0)

	remoteLLM, localLLM := newLLMClients(cfg)

	chunkerImpl, err := chunker.New()
	if err != nil {
		return nil, fmt.Errorf("build chunker: %w", err)
	}

	extractorImpl := extractor.New(remoteLLM, localLLM, ss, extractor.DefaultConfig(cfg.LLMProvider))
	relationshipBuilder := relationship.New(remoteLLM, relationship.DefaultConfig())

	coordinator := pipeline.New(ss, ps, log)

	registry := pipeline.NewRegistry(pipeline.Executors{
		OCR:          ocrAdapter,
		Chunker:      chunkerImpl,
		ChunkerCfg:   chunker.DefaultConfig(),
		Extractor:    extractorImpl,
		Relationship: relationshipBuilder,
		ResolverCfg:  resolver.DefaultConfig(),
	}, ss, ps)

	trCfg := taskruntime.DefaultConfig()
	if cfg.MaxRetries > 0 {
		trCfg.MaxRetries = cfg.MaxRetries
	}
	if cfg.SoftTimeout > 0 {
		trCfg.SoftTimeout = cfg.SoftTimeout
	}
	if cfg.HardTimeout > 0 {
		trCfg.HardTimeout = cfg.HardTimeout
	}
	if cfg.DequeueTimeout > 0 {
		trCfg.DequeueTimeout = cfg.DequeueTimeout
	}
	if cfg.Queues != nil {
		trCfg.Queues = cfg.Queues
	}
	trCfg.Advancer = coordinator

	pool := taskruntime.NewPool(ss, ps, registry, trCfg, log)

	return &Context{
		Config:      cfg,
		Log:         log,
		SS:          ss,
		PS:          ps,
		BS:          bs,
		Coordinator: coordinator,
		Pool:        pool,
	}, nil
}

// newLLMClients builds the remote/local Client pair extractor.New expects.
// The remote client is wrapped in a circuit breaker so EX's local-fallback
// policy (§4.4) has a concrete failure signal to react to; the local
// client never trips a breaker since it has no external dependency to
// protect.
func newLLMClients(cfg config.PipelineConfig) (remote, local llm.Client) {
	local = llm.NewLocalClient()
	if cfg.LLMProvider != "anthropic" || cfg.AnthropicAPIKey == "" {
		return local, local
	}
	anthropicClient := llm.NewAnthropicClient(llm.AnthropicConfig{APIKey: cfg.AnthropicAPIKey})
	remote = llm.NewCircuitBreakerClient("anthropic", anthropicClient, circuitBreakerThreshold, circuitBreakerCooldown)
	return remote, local
}

// newTextractClient loads the shared AWS SDK config and scopes a Textract
// client to it, following the same region and static-credential idiom
// blobstore.New uses for S3 so the two AWS clients in this service share a
// region and credentials. The S3 endpoint override is not applied to the
// Textract client.
func newTextractClient(ctx context.Context, cfg config.PipelineConfig) (*textract.Client, error) {
	optFns := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.S3Region)}
	if cfg.S3AccessKeyID != "" {
		optFns = append(optFns, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.S3AccessKeyID, cfg.S3SecretKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, optFns...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return textract.NewFromConfig(awsCfg), nil
}

// Close releases the Persistent Store's connection pool and the State
// Store's Redis connection. The Blob Store's S3 client needs no explicit
// close.
func (c *Context) Close() {
	c.PS.Close()
	if err := c.SS.Close(); err != nil {
		c.Log.WithError(err).Warn("error closing state store connection")
	}
}
