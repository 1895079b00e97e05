package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setPipelineEnv(t *testing.T, kv map[string]string) {
	t.Helper()
	for k, v := range kv {
		key := "LDP_" + k
		require.NoError(t, os.Setenv(key, v))
		t.Cleanup(func() { os.Unsetenv(key) })
	}
}

func TestLoadPipelineConfig_AppliesDefaultsAndOverrides(t *testing.T) {
	setPipelineEnv(t, map[string]string{
		"POSTGRES_DSN": "postgres://test@localhost/ldp",
		"S3_BUCKET":    "legal-docs",
	})

	cfg := LoadPipelineConfig()

	assert.Equal(t, "postgres://test@localhost/ldp", cfg.PostgresDSN)
	assert.Equal(t, "legal-docs", cfg.S3Bucket)
	assert.Equal(t, "redis://localhost:6379/0", cfg.RedisURL)
	assert.Equal(t, "anthropic", cfg.LLMProvider)
	assert.Equal(t, 3, cfg.MaxRetries)
}

func TestPipelineConfig_ValidateRejectsMissingRequiredFields(t *testing.T) {
	cfg := PipelineConfig{LLMProvider: "anthropic"}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PostgresDSN")
	assert.Contains(t, err.Error(), "S3Bucket")
}

func TestPipelineConfig_ValidateAcceptsCompleteConfig(t *testing.T) {
	cfg := PipelineConfig{
		PostgresDSN:      "postgres://test@localhost/ldp",
		S3Bucket:         "legal-docs",
		LLMProvider:      "local",
		PostgresMaxConns: 10,
	}
	assert.NoError(t, cfg.Validate())
}
