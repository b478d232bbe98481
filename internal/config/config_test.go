package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sevigo/reviewflow/internal/logger"
)

func validConfig() *Config {
	return &Config{
		ServerPort:         "8080",
		Logger:             logger.Config{Level: "info", Format: "text"},
		LLMProvider:        "ollama",
		ModelName:          "gemma3:latest",
		OllamaHost:         "http://localhost:11434",
		TokenLimit:         32000,
		ChunkTokenBudget:   6000,
		SummaryTokenBudget: 12000,
		MaxOutputTokens:    4096,
		ModelMaxAttempts:   3,
		ModelTimeout:       2 * time.Minute,
		ChunkConcurrency:   2,
		QueueMode:          QueueEmbedded,
		QueuePath:          "reviewflow.db",
		MaxWorkers:         4,
		PollInterval:       2 * time.Second,
		PostTimeout:        30 * time.Second,
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{
			name:   "valid embedded config",
			mutate: func(*Config) {},
		},
		{
			name: "durable mode requires database URL",
			mutate: func(c *Config) {
				c.QueueMode = QueueDurable
				c.DatabaseURL = ""
			},
			wantErr: "DATABASE_URL",
		},
		{
			name: "durable mode with database URL",
			mutate: func(c *Config) {
				c.QueueMode = QueueDurable
				c.DatabaseURL = "postgres://localhost/reviewflow"
			},
		},
		{
			name: "embedded mode requires queue path",
			mutate: func(c *Config) {
				c.QueuePath = ""
			},
			wantErr: "QUEUE_PATH",
		},
		{
			name: "sync mode requires nothing",
			mutate: func(c *Config) {
				c.QueueMode = QueueSync
				c.QueuePath = ""
				c.DatabaseURL = ""
			},
		},
		{
			name: "unknown queue mode",
			mutate: func(c *Config) {
				c.QueueMode = "rabbitmq"
			},
			wantErr: "QUEUE_MODE",
		},
		{
			name: "zero token limit",
			mutate: func(c *Config) {
				c.TokenLimit = 0
			},
			wantErr: "token budgets",
		},
		{
			name: "chunk budget above token limit",
			mutate: func(c *Config) {
				c.ChunkTokenBudget = c.TokenLimit + 1
			},
			wantErr: "CHUNK_TOKEN_BUDGET",
		},
		{
			name: "zero attempts",
			mutate: func(c *Config) {
				c.ModelMaxAttempts = 0
			},
			wantErr: "MODEL_MAX_ATTEMPTS",
		},
		{
			name: "anthropic without key",
			mutate: func(c *Config) {
				c.LLMProvider = "anthropic"
			},
			wantErr: "ANTHROPIC_API_KEY",
		},
		{
			name: "anthropic with key",
			mutate: func(c *Config) {
				c.LLMProvider = "anthropic"
				c.AnthropicAPIKey = "sk-test"
			},
		},
		{
			name: "gemini without key",
			mutate: func(c *Config) {
				c.LLMProvider = "gemini"
			},
			wantErr: "GEMINI_API_KEY",
		},
		{
			name: "unsupported provider",
			mutate: func(c *Config) {
				c.LLMProvider = "bard"
			},
			wantErr: "unsupported LLM provider",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestValidateNormalizesWorkerCounts(t *testing.T) {
	cfg := validConfig()
	cfg.MaxWorkers = 0
	cfg.ChunkConcurrency = -1
	cfg.JobLeaseTimeout = 0

	require.NoError(t, cfg.Validate())
	assert.Equal(t, 1, cfg.MaxWorkers)
	assert.Equal(t, 1, cfg.ChunkConcurrency)
	assert.Equal(t, 10*time.Minute, cfg.JobLeaseTimeout)
}

func TestLoadRepoPolicy(t *testing.T) {
	dir := t.TempDir()
	content := []byte("exclude:\n  - \"*.gen.go\"\n  - \"docs/**\"\nfile_level_fallback: false\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".reviewflow.yml"), content, 0o644))

	policy, err := LoadRepoPolicy(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"*.gen.go", "docs/**"}, policy.Exclude)
	require.NotNil(t, policy.FileLevelFallback)
	assert.False(t, *policy.FileLevelFallback)
}

func TestLoadRepoPolicyMissingFile(t *testing.T) {
	policy, err := LoadRepoPolicy(t.TempDir())
	assert.ErrorIs(t, err, ErrPolicyNotFound)
	require.NotNil(t, policy, "a missing policy file yields the default policy")
	assert.Empty(t, policy.Exclude)
	assert.Nil(t, policy.FileLevelFallback)
}

func TestLoadRepoPolicyMalformedFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".reviewflow.yml"), []byte("exclude: [unclosed"), 0o644))

	_, err := LoadRepoPolicy(dir)
	assert.ErrorIs(t, err, ErrPolicyParsing)
}
