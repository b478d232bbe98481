package core

import (
	"context"
	"time"
)

// JobStatus tracks a review job through the pipeline. A job moves strictly
// forward: queued -> running -> summarizing -> reviewing -> posting and then
// into exactly one terminal state.
type JobStatus string

const (
	StatusQueued      JobStatus = "queued"
	StatusRunning     JobStatus = "running"
	StatusSummarizing JobStatus = "summarizing"
	StatusReviewing   JobStatus = "reviewing"
	StatusPosting     JobStatus = "posting"
	StatusCompleted   JobStatus = "completed"
	StatusFailed      JobStatus = "failed"
	StatusSuperseded  JobStatus = "superseded"
	StatusCancelled   JobStatus = "cancelled"
)

// Terminal reports whether the status ends a job's lifecycle.
func (s JobStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusSuperseded, StatusCancelled:
		return true
	}
	return false
}

// ReviewJob is one unit of review work for a single head commit of a pull
// request. At most one non-terminal job exists per (RepoFullName, PRNumber);
// the idempotency guard enforces this, not the queue.
type ReviewJob struct {
	ID             string    `db:"id"`
	RepoOwner      string    `db:"repo_owner"`
	RepoName       string    `db:"repo_name"`
	RepoFullName   string    `db:"repo_full_name"`
	PRNumber       int       `db:"pr_number"`
	PRTitle        string    `db:"pr_title"`
	HeadSHA        string    `db:"head_sha"`
	InstallationID int64     `db:"installation_id"`
	Status         JobStatus `db:"status"`
	AttemptCount   int       `db:"attempt_count"`
	CreatedAt      time.Time `db:"created_at"`
	UpdatedAt      time.Time `db:"updated_at"`
}

// DecisionKind is the outcome of admitting a webhook delivery.
type DecisionKind int

const (
	// DecisionAccept means no review is in flight for the PR; a new job was created.
	DecisionAccept DecisionKind = iota
	// DecisionDrop means the delivery is a duplicate or a retry of the running head SHA.
	DecisionDrop
	// DecisionSupersede means a stale in-flight job was abandoned in favor of a new one.
	DecisionSupersede
)

func (k DecisionKind) String() string {
	switch k {
	case DecisionAccept:
		return "accept"
	case DecisionDrop:
		return "drop"
	case DecisionSupersede:
		return "supersede"
	}
	return "unknown"
}

// Decision is the result of the idempotency guard's admission check.
type Decision struct {
	Kind DecisionKind
	// Job is the newly created job for Accept and Supersede decisions.
	Job *ReviewJob
	// SupersededJobID identifies the abandoned job for Supersede decisions.
	SupersededJobID string
	// Reason is a short operator-facing explanation for Drop decisions.
	Reason string
}

// Queue accepts admitted review jobs for execution. Implementations decide
// whether execution is durable, embedded in-process, or inline in the caller.
type Queue interface {
	// Enqueue hands a queued job to the backend. For the synchronous backend
	// this blocks until the job finishes; for the others it returns once the
	// job is acknowledged. An error signals backpressure, not job failure.
	Enqueue(ctx context.Context, job *ReviewJob) error
}

// Runner executes the full review pipeline for one job: fetch and decompose
// the diff, summarize, review each chunk, and publish the findings.
type Runner interface {
	Run(ctx context.Context, job *ReviewJob) error
}
