package config

import "time"

// PipelineConfig is the top-level configuration for the document-processing
// service: every connection string, provider credential, and pool-sizing
// knob corectx.New needs to wire the State Store, Persistent Store, Blob
// Store, OCR adapter, LLM clients, and Task Runtime pool together. It plays
// the role the teacher's AllConfig plays for the HTTP/RabbitMQ/CouchDB
// service, generalized to this pipeline's seven dependencies.
type PipelineConfig struct {
	Service ServiceConfig

	RedisURL       string
	RedisKeyPrefix string

	PostgresDSN      string
	PostgresMaxConns int32
	PostgresMinConns int32

	S3Region       string
	S3Bucket       string
	S3Endpoint     string
	S3AccessKeyID  string
	S3SecretKey    string
	S3UsePathStyle bool

	TextractBucket string

	AnthropicAPIKey string
	LLMProvider     string // "anthropic" (remote) paired with the local fallback client

	Queues         map[string]int
	MaxRetries     int
	SoftTimeout    time.Duration
	HardTimeout    time.Duration
	DequeueTimeout time.Duration
}

// LoadPipelineConfig loads PipelineConfig from the environment, all keys
// under the "LDP" prefix (e.g. LDP_REDIS_URL, LDP_POSTGRES_DSN), reusing
// the teacher's EnvConfig/ServiceConfig loading machinery rather than
// inventing a parallel one.
func LoadPipelineConfig() PipelineConfig {
	env := NewEnvConfig("LDP")
	return PipelineConfig{
		Service: LoadServiceConfig("LDP"),

		RedisURL:       env.GetString("REDIS_URL", "redis://localhost:6379/0"),
		RedisKeyPrefix: env.GetString("REDIS_KEY_PREFIX", ""),

		PostgresDSN:      env.MustGetString("POSTGRES_DSN"),
		PostgresMaxConns: int32(env.GetInt("POSTGRES_MAX_CONNS", 10)),
		PostgresMinConns: int32(env.GetInt("POSTGRES_MIN_CONNS", 2)),

		S3Region:       env.GetString("S3_REGION", "us-east-1"),
		S3Bucket:       env.MustGetString("S3_BUCKET"),
		S3Endpoint:     env.GetString("S3_ENDPOINT", ""),
		S3AccessKeyID:  env.GetString("S3_ACCESS_KEY_ID", ""),
		S3SecretKey:    env.GetString("S3_SECRET_ACCESS_KEY", ""),
		S3UsePathStyle: env.GetBool("S3_USE_PATH_STYLE", false),

		TextractBucket: env.GetString("TEXTRACT_BUCKET", ""),

		AnthropicAPIKey: env.GetString("ANTHROPIC_API_KEY", ""),
		LLMProvider:     env.GetString("LLM_PROVIDER", "anthropic"),

		MaxRetries:     env.GetInt("MAX_RETRIES", 3),
		SoftTimeout:    env.GetDuration("SOFT_TIMEOUT", 55*time.Minute),
		HardTimeout:    env.GetDuration("HARD_TIMEOUT", 65*time.Minute),
		DequeueTimeout: env.GetDuration("DEQUEUE_TIMEOUT", 2*time.Second),
	}
}

// Validate checks the required fields a production deployment must supply.
func (c PipelineConfig) Validate() error {
	v := NewValidator()
	v.RequireString("PostgresDSN", c.PostgresDSN)
	v.RequireString("S3Bucket", c.S3Bucket)
	v.RequireOneOf("LLMProvider", c.LLMProvider, []string{"anthropic", "local"})
	v.RequirePositiveInt("PostgresMaxConns", int(c.PostgresMaxConns))
	return v.Validate()
}
