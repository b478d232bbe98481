package queue

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/sevigo/reviewflow/internal/core"
	"github.com/sevigo/reviewflow/internal/storage"
)

// WorkerPool executes jobs claimed from the store. Claiming is atomic, so
// multiple workers, and for the Postgres store multiple processes, can share
// one queue without double-running a job. Workers poll on an interval and are
// nudged immediately when this process enqueues a job. Before each claim the
// pool re-queues in-flight jobs whose lease expired, so jobs stranded by a
// crashed worker do not stay claimed forever.
type WorkerPool struct {
	store        storage.Store
	runner       core.Runner
	maxWorkers   int
	pollInterval time.Duration
	leaseTimeout time.Duration
	wakeup       chan struct{}
	cancel       context.CancelFunc
	wg           sync.WaitGroup
	logger       *slog.Logger
}

// NewWorkerPool creates a WorkerPool. If maxWorkers is 0 or negative, it
// defaults to 1; a non-positive leaseTimeout defaults to 10 minutes.
func NewWorkerPool(store storage.Store, runner core.Runner, maxWorkers int, pollInterval, leaseTimeout time.Duration, logger *slog.Logger) *WorkerPool {
	if maxWorkers <= 0 {
		maxWorkers = 1
	}
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	if leaseTimeout <= 0 {
		leaseTimeout = 10 * time.Minute
	}
	return &WorkerPool{
		store:        store,
		runner:       runner,
		maxWorkers:   maxWorkers,
		pollInterval: pollInterval,
		leaseTimeout: leaseTimeout,
		wakeup:       make(chan struct{}, 1),
		logger:       logger,
	}
}

// Start launches the workers.
func (p *WorkerPool) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel

	for i := range p.maxWorkers {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
	p.logger.Info("worker pool started", "workers", p.maxWorkers, "poll_interval", p.pollInterval)
}

// Enqueue nudges the workers. The job itself was persisted by the admission
// guard; the nudge only shortcuts the next poll. A full wakeup channel means
// a nudge is already pending, which is just as good.
func (p *WorkerPool) Enqueue(_ context.Context, job *core.ReviewJob) error {
	p.logger.Info("queuing review job", "job_id", job.ID, "repo", job.RepoFullName, "pr", job.PRNumber)

	select {
	case p.wakeup <- struct{}{}:
	default:
	}
	return nil
}

// Stop cancels the workers and waits for in-flight jobs to finish. Claimed
// but unfinished jobs stay in a non-terminal status; once their lease
// expires they are re-queued and picked up by whoever polls next.
func (p *WorkerPool) Stop() {
	p.logger.Info("stopping worker pool, waiting for in-flight jobs")
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
	p.logger.Info("worker pool stopped")
}

// worker claims and runs jobs until the pool shuts down. After finishing a
// job it immediately tries to claim another; it only sleeps when the queue
// is empty.
func (p *WorkerPool) worker(ctx context.Context, id int) {
	defer p.wg.Done()
	log := p.logger.With("worker_id", id)
	log.Info("starting review worker")

	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		claimed := p.claimAndRun(ctx, log)

		if ctx.Err() != nil {
			log.Info("shutting down review worker")
			return
		}
		if claimed {
			continue
		}

		select {
		case <-ctx.Done():
			log.Info("shutting down review worker")
			return
		case <-p.wakeup:
		case <-ticker.C:
		}
	}
}

// requeueStale releases the leases of jobs whose worker stopped making
// progress. Stage transitions refresh updated_at, so a live job keeps its
// lease across a long pipeline run.
func (p *WorkerPool) requeueStale(ctx context.Context, log *slog.Logger) {
	n, err := p.store.RequeueStaleJobs(ctx, time.Now().UTC().Add(-p.leaseTimeout))
	if err != nil {
		if ctx.Err() == nil {
			log.Error("failed to re-queue stale jobs", "error", err)
		}
		return
	}
	if n > 0 {
		log.Warn("re-queued stale in-flight jobs", "count", n, "lease", p.leaseTimeout)
	}
}

// claimAndRun claims one job and runs it. Returns false when the queue was
// empty or the claim failed.
func (p *WorkerPool) claimAndRun(ctx context.Context, log *slog.Logger) bool {
	p.requeueStale(ctx, log)

	job, err := p.store.ClaimQueuedJob(ctx)
	if err != nil {
		if ctx.Err() == nil {
			log.Error("failed to claim job", "error", err)
		}
		return false
	}
	if job == nil {
		return false
	}

	log.Info("worker claimed job", "job_id", job.ID, "repo", job.RepoFullName, "pr", job.PRNumber)
	if err := p.runner.Run(ctx, job); err != nil {
		log.Error("review job failed", "job_id", job.ID, "repo", job.RepoFullName, "pr", job.PRNumber, "error", err)
	}
	return true
}
