package queue

import (
	"context"
	"log/slog"

	"github.com/sevigo/reviewflow/internal/core"
)

// SyncQueue runs each job inline in the goroutine that enqueued it. Used by
// the CLI and by sync mode, where the caller wants the review outcome before
// returning. Nothing survives a crash mid-job; that is the documented
// trade-off of this mode.
type SyncQueue struct {
	runner core.Runner
	logger *slog.Logger
}

// NewSyncQueue creates a SyncQueue.
func NewSyncQueue(runner core.Runner, logger *slog.Logger) *SyncQueue {
	return &SyncQueue{runner: runner, logger: logger}
}

// Enqueue executes the job immediately and returns its outcome.
func (q *SyncQueue) Enqueue(ctx context.Context, job *core.ReviewJob) error {
	q.logger.Info("running review job inline", "job_id", job.ID, "repo", job.RepoFullName, "pr", job.PRNumber)
	return q.runner.Run(ctx, job)
}

// Start is a no-op; there are no workers.
func (q *SyncQueue) Start() {}

// Stop is a no-op; Enqueue returns only after its job finished.
func (q *SyncQueue) Stop() {}
