// Package queue provides the job queue backends: a polling worker pool over
// a persistent store (durable and embedded modes) and an inline executor
// (sync mode).
package queue

import (
	"fmt"
	"log/slog"

	"github.com/sevigo/reviewflow/internal/config"
	"github.com/sevigo/reviewflow/internal/core"
	"github.com/sevigo/reviewflow/internal/storage"
)

// Queue dispatches admitted jobs to execution. Jobs are already persisted by
// the time they are enqueued; Enqueue only triggers execution.
type Queue interface {
	core.Queue

	// Start launches background workers, if the backend has any.
	Start()

	// Stop shuts the backend down, waiting for in-flight jobs to finish.
	Stop()
}

// New selects the queue backend for the configured mode. The durable and
// embedded modes share the worker pool; they differ only in the store behind
// it. Sync mode runs jobs inline with no workers at all.
func New(cfg *config.Config, store storage.Store, runner core.Runner, logger *slog.Logger) (Queue, error) {
	switch cfg.QueueMode {
	case config.QueueDurable, config.QueueEmbedded:
		return NewWorkerPool(store, runner, cfg.MaxWorkers, cfg.PollInterval, cfg.JobLeaseTimeout, logger), nil
	case config.QueueSync:
		return NewSyncQueue(runner, logger), nil
	default:
		return nil, fmt.Errorf("unknown queue mode %q", cfg.QueueMode)
	}
}
