// Package storage persists review jobs, chunks, and comments. Three
// implementations back the three queue modes: Postgres (durable), SQLite
// (embedded), and in-memory (synchronous).
package storage

import (
	"context"
	"time"

	"github.com/sevigo/reviewflow/internal/core"
)

// Store defines the persistence contract the orchestration layer requires.
// The schema behind it is an implementation concern.
type Store interface {
	// RecordDelivery records a webhook delivery ID. It returns false when the
	// ID was recorded before, which is the dedup signal for the guard.
	RecordDelivery(ctx context.Context, deliveryID string) (bool, error)

	// ForgetDelivery removes a recorded delivery ID. The guard calls this when
	// admission fails after the ID was recorded, so a redelivery of the same
	// GUID is not dropped as a duplicate.
	ForgetDelivery(ctx context.Context, deliveryID string) error

	// ActiveJob returns the single non-terminal job for a PR, or nil.
	ActiveJob(ctx context.Context, repoFullName string, prNumber int) (*core.ReviewJob, error)

	// CreateJob persists a new job in its initial status.
	CreateJob(ctx context.Context, job *core.ReviewJob) error

	// JobStatus returns the current status of a job.
	JobStatus(ctx context.Context, jobID string) (core.JobStatus, error)

	// TransitionJob moves a job to a new status. Moving a job that already
	// reached a terminal state returns core.ErrTerminalState, so terminal
	// finalization is written exactly once.
	TransitionJob(ctx context.Context, jobID string, to core.JobStatus) error

	// ClaimQueuedJob atomically claims the oldest queued job and moves it to
	// running. It returns (nil, nil) when nothing is queued. Safe to call
	// from concurrent workers and, for the Postgres store, from concurrent
	// processes.
	ClaimQueuedJob(ctx context.Context) (*core.ReviewJob, error)

	// RequeueStaleJobs moves in-flight jobs not updated since olderThan back
	// to queued and returns how many were moved. A job stuck mid-pipeline by
	// a crashed worker becomes claimable again once its lease expires; stage
	// transitions refresh updated_at, so live jobs keep their lease.
	RequeueStaleJobs(ctx context.Context, olderThan time.Time) (int, error)

	// SaveChunks persists a job's chunk sequence.
	SaveChunks(ctx context.Context, chunks []core.DiffChunk) error

	// SaveComment inserts or updates a comment keyed by
	// (job_id, ordinal, finding_index).
	SaveComment(ctx context.Context, comment *core.ReviewComment) error

	// Comment returns the posting record for one finding, or nil when the
	// finding was never attempted. Re-execution uses this to skip comments
	// that already carry an external ID.
	Comment(ctx context.Context, jobID string, ordinal, findingIndex int) (*core.ReviewComment, error)

	// LastCompletedSHA returns the head SHA of the most recent completed job
	// for a PR, or "" when the PR was never reviewed to completion.
	LastCompletedSHA(ctx context.Context, repoFullName string, prNumber int) (string, error)

	// Close releases the store's resources.
	Close() error
}
