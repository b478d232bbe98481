// Package config loads and validates the application's configuration.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/sevigo/reviewflow/internal/logger"
)

// QueueMode selects which job queue backend executes reviews.
type QueueMode string

const (
	// QueueDurable persists jobs to Postgres; independent workers claim and
	// execute them and jobs survive process restarts.
	QueueDurable QueueMode = "durable"
	// QueueEmbedded persists jobs to a local SQLite file and executes them
	// with in-process workers. Single-node operation without a broker.
	QueueEmbedded QueueMode = "embedded"
	// QueueSync executes jobs inline in the request that admitted them.
	// No durability: a crash mid-job loses the job with no retry.
	QueueSync QueueMode = "sync"
)

// Config holds the application's configuration values.
type Config struct {
	ServerPort string
	Logger     logger.Config

	GitHubAppID          int64
	GitHubWebhookSecret  string
	GitHubPrivateKeyPath string
	GitHubToken          string // PAT for CLI use

	LLMProvider     string
	ModelName       string
	AnthropicAPIKey string
	GeminiAPIKey    string
	OllamaHost      string

	// TokenLimit is the provider context window every request is bounded to.
	TokenLimit int
	// ChunkTokenBudget bounds each per-file chunk.
	ChunkTokenBudget int
	// SummaryTokenBudget bounds the ordinal-0 summary chunk.
	SummaryTokenBudget int
	MaxOutputTokens    int

	ModelMaxAttempts int
	ModelTimeout     time.Duration
	ModelRateLimit   float64 // requests per second against the provider
	ChunkConcurrency int     // parallel review calls after the summary pass

	QueueMode       QueueMode
	DatabaseURL     string // durable mode broker endpoint
	QueuePath       string // embedded mode local file
	MaxWorkers      int
	PollInterval    time.Duration
	JobLeaseTimeout time.Duration

	ReviewDraftPRs    bool
	FileLevelFallback bool
	ExcludePatterns   []string

	PostTimeout time.Duration
}

// Load reads configuration from environment variables and a .env file, sets
// sensible defaults, and validates required fields.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	v.SetDefault("SERVER_PORT", "8080")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "text")
	v.SetDefault("LLM_PROVIDER", "ollama")
	v.SetDefault("MODEL_NAME", "gemma3:latest")
	v.SetDefault("OLLAMA_HOST", "http://localhost:11434")
	v.SetDefault("TOKEN_LIMIT", 32000)
	v.SetDefault("CHUNK_TOKEN_BUDGET", 6000)
	v.SetDefault("SUMMARY_TOKEN_BUDGET", 12000)
	v.SetDefault("MAX_OUTPUT_TOKENS", 4096)
	v.SetDefault("MODEL_MAX_ATTEMPTS", 3)
	v.SetDefault("MODEL_TIMEOUT", "2m")
	v.SetDefault("MODEL_RATE_LIMIT", 1.0)
	v.SetDefault("CHUNK_CONCURRENCY", 2)
	v.SetDefault("QUEUE_MODE", "embedded")
	v.SetDefault("QUEUE_PATH", "reviewflow.db")
	v.SetDefault("MAX_WORKERS", 4)
	v.SetDefault("POLL_INTERVAL", "2s")
	v.SetDefault("JOB_LEASE_TIMEOUT", "10m")
	v.SetDefault("REVIEW_DRAFT_PRS", false)
	v.SetDefault("FILE_LEVEL_FALLBACK", true)
	v.SetDefault("POST_TIMEOUT", "30s")
	v.SetDefault("GITHUB_PRIVATE_KEY_PATH", "keys/reviewflow-app.private-key.pem")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			// A present but unreadable .env file is worth failing on; a
			// missing one is the normal container case.
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{
		ServerPort: v.GetString("SERVER_PORT"),
		Logger: logger.Config{
			Level:  v.GetString("LOG_LEVEL"),
			Format: v.GetString("LOG_FORMAT"),
		},
		GitHubAppID:          v.GetInt64("GITHUB_APP_ID"),
		GitHubWebhookSecret:  v.GetString("GITHUB_WEBHOOK_SECRET"),
		GitHubPrivateKeyPath: v.GetString("GITHUB_PRIVATE_KEY_PATH"),
		GitHubToken:          v.GetString("GITHUB_TOKEN"),
		LLMProvider:          v.GetString("LLM_PROVIDER"),
		ModelName:            v.GetString("MODEL_NAME"),
		AnthropicAPIKey:      v.GetString("ANTHROPIC_API_KEY"),
		GeminiAPIKey:         v.GetString("GEMINI_API_KEY"),
		OllamaHost:           v.GetString("OLLAMA_HOST"),
		TokenLimit:           v.GetInt("TOKEN_LIMIT"),
		ChunkTokenBudget:     v.GetInt("CHUNK_TOKEN_BUDGET"),
		SummaryTokenBudget:   v.GetInt("SUMMARY_TOKEN_BUDGET"),
		MaxOutputTokens:      v.GetInt("MAX_OUTPUT_TOKENS"),
		ModelMaxAttempts:     v.GetInt("MODEL_MAX_ATTEMPTS"),
		ModelTimeout:         v.GetDuration("MODEL_TIMEOUT"),
		ModelRateLimit:       v.GetFloat64("MODEL_RATE_LIMIT"),
		ChunkConcurrency:     v.GetInt("CHUNK_CONCURRENCY"),
		QueueMode:            QueueMode(v.GetString("QUEUE_MODE")),
		DatabaseURL:          v.GetString("DATABASE_URL"),
		QueuePath:            v.GetString("QUEUE_PATH"),
		MaxWorkers:           v.GetInt("MAX_WORKERS"),
		PollInterval:         v.GetDuration("POLL_INTERVAL"),
		JobLeaseTimeout:      v.GetDuration("JOB_LEASE_TIMEOUT"),
		ReviewDraftPRs:       v.GetBool("REVIEW_DRAFT_PRS"),
		FileLevelFallback:    v.GetBool("FILE_LEVEL_FALLBACK"),
		ExcludePatterns:      v.GetStringSlice("EXCLUDE_PATTERNS"),
		PostTimeout:          v.GetDuration("POST_TIMEOUT"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints that viper defaults cannot express.
func (c *Config) Validate() error {
	switch c.QueueMode {
	case QueueDurable:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL must be set for durable queue mode")
		}
	case QueueEmbedded:
		if c.QueuePath == "" {
			return fmt.Errorf("QUEUE_PATH must be set for embedded queue mode")
		}
	case QueueSync:
		// Nothing to require: state is in-memory and loss on crash is
		// documented behavior of this mode.
	default:
		return fmt.Errorf("unknown QUEUE_MODE %q: must be durable, embedded, or sync", c.QueueMode)
	}

	if c.ChunkTokenBudget <= 0 || c.SummaryTokenBudget <= 0 || c.TokenLimit <= 0 {
		return fmt.Errorf("token budgets must be positive")
	}
	if c.ChunkTokenBudget > c.TokenLimit {
		return fmt.Errorf("CHUNK_TOKEN_BUDGET (%d) exceeds TOKEN_LIMIT (%d)", c.ChunkTokenBudget, c.TokenLimit)
	}
	if c.ModelMaxAttempts <= 0 {
		return fmt.Errorf("MODEL_MAX_ATTEMPTS must be positive")
	}
	if c.MaxWorkers <= 0 {
		c.MaxWorkers = 1
	}
	if c.JobLeaseTimeout <= 0 {
		c.JobLeaseTimeout = 10 * time.Minute
	}
	if c.ChunkConcurrency <= 0 {
		c.ChunkConcurrency = 1
	}

	switch c.LLMProvider {
	case "anthropic":
		if c.AnthropicAPIKey == "" {
			return fmt.Errorf("ANTHROPIC_API_KEY must be set for the anthropic provider")
		}
	case "gemini":
		if c.GeminiAPIKey == "" {
			return fmt.Errorf("GEMINI_API_KEY must be set for the gemini provider")
		}
	case "ollama":
	default:
		return fmt.Errorf("unsupported LLM provider: %s", c.LLMProvider)
	}

	return nil
}
