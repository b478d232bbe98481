package wire

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/google/wire"

	"github.com/sevigo/reviewflow/internal/app"
	"github.com/sevigo/reviewflow/internal/config"
	"github.com/sevigo/reviewflow/internal/core"
	"github.com/sevigo/reviewflow/internal/diff"
	"github.com/sevigo/reviewflow/internal/github"
	"github.com/sevigo/reviewflow/internal/guard"
	"github.com/sevigo/reviewflow/internal/jobs"
	"github.com/sevigo/reviewflow/internal/llm"
	"github.com/sevigo/reviewflow/internal/logger"
	"github.com/sevigo/reviewflow/internal/publish"
	"github.com/sevigo/reviewflow/internal/queue"
	"github.com/sevigo/reviewflow/internal/server"
	"github.com/sevigo/reviewflow/internal/storage"
)

var AppSet = wire.NewSet(
	app.NewApp,
	server.NewServer,
	config.Load,
	guard.New,
	jobs.NewPipeline,
	publish.NewPublisher,
	queue.New,
	github.NewClientFactory,
	llm.NewGateway,
	llm.NewProvider,
	provideStore,
	provideDecomposer,
	provideCoreQueue,
	provideLoggerConfig,
	provideLogWriter,
	provideSlogLogger,
)

// provideStore selects the storage backend matching the queue mode: Postgres
// behind the durable queue, a local SQLite file behind the embedded queue,
// and process memory for sync mode.
func provideStore(cfg *config.Config, log *slog.Logger) (storage.Store, error) {
	switch cfg.QueueMode {
	case config.QueueDurable:
		return storage.NewPostgresStore(cfg.DatabaseURL, log)
	case config.QueueEmbedded:
		return storage.NewSQLiteStore(cfg.QueuePath, log)
	case config.QueueSync:
		return storage.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown queue mode %q", cfg.QueueMode)
	}
}

func provideDecomposer(cfg *config.Config, log *slog.Logger) *diff.Decomposer {
	policy := diff.NewExclusionPolicy(cfg.ExcludePatterns...)
	budget := diff.Budget{
		SummaryTokens: cfg.SummaryTokenBudget,
		ChunkTokens:   cfg.ChunkTokenBudget,
	}
	return diff.NewDecomposer(policy, budget, log)
}

func provideCoreQueue(q queue.Queue) core.Queue {
	return q
}

func provideLoggerConfig(cfg *config.Config) logger.Config {
	return cfg.Logger
}

func provideLogWriter() io.Writer {
	return os.Stdout
}

func provideSlogLogger(loggerConfig logger.Config, writer io.Writer) *slog.Logger {
	return logger.New(loggerConfig, writer)
}
