// Package guard admits webhook deliveries into the review pipeline. It is
// the single owner of the "one active job per pull request" invariant and of
// delivery deduplication.
package guard

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sevigo/reviewflow/internal/core"
	"github.com/sevigo/reviewflow/internal/storage"
)

// Guard deduplicates deliveries and supersedes stale in-flight jobs. All
// admission decisions for the same pull request serialize through a per-key
// lock; no other component reads or writes the active-job mapping.
type Guard struct {
	store  storage.Store
	logger *slog.Logger

	mu   sync.Mutex
	keys map[string]*sync.Mutex
}

// New creates a Guard backed by the given store.
func New(store storage.Store, logger *slog.Logger) *Guard {
	return &Guard{
		store:  store,
		logger: logger,
		keys:   make(map[string]*sync.Mutex),
	}
}

// keyLock returns the mutex serializing admissions for one pull request.
func (g *Guard) keyLock(repoFullName string, prNumber int) *sync.Mutex {
	key := fmt.Sprintf("%s#%d", repoFullName, prNumber)
	g.mu.Lock()
	defer g.mu.Unlock()
	lock, ok := g.keys[key]
	if !ok {
		lock = &sync.Mutex{}
		g.keys[key] = lock
	}
	return lock
}

// Admit decides what to do with one webhook delivery:
//
//   - Drop when the delivery ID was seen before, when the running job already
//     covers the delivered head SHA, or when that SHA was reviewed to
//     completion earlier.
//   - Accept when no non-terminal job exists for the PR; a new job is created.
//   - Supersede when a non-terminal job exists for an older head SHA; the old
//     job is abandoned (its posted comments remain) and a new job is created.
func (g *Guard) Admit(ctx context.Context, event *core.ReviewEvent) (*core.Decision, error) {
	fresh, err := g.store.RecordDelivery(ctx, event.DeliveryID)
	if err != nil {
		return nil, fmt.Errorf("failed to record delivery: %w", err)
	}
	if !fresh {
		g.logger.Debug("dropping duplicate delivery", "delivery_id", event.DeliveryID)
		return &core.Decision{Kind: core.DecisionDrop, Reason: "duplicate delivery"}, nil
	}

	decision, err := g.decide(ctx, event)
	if err != nil {
		// Release the delivery ID so GitHub's redelivery of the same GUID is
		// not dropped as a duplicate of an admission that never happened.
		if ferr := g.store.ForgetDelivery(ctx, event.DeliveryID); ferr != nil {
			g.logger.Error("failed to release delivery after admission error",
				"delivery_id", event.DeliveryID, "error", ferr)
		}
		return nil, err
	}
	return decision, nil
}

// decide makes the admission decision for a recorded, non-duplicate delivery.
func (g *Guard) decide(ctx context.Context, event *core.ReviewEvent) (*core.Decision, error) {
	lock := g.keyLock(event.RepoFullName, event.PRNumber)
	lock.Lock()
	defer lock.Unlock()

	active, err := g.store.ActiveJob(ctx, event.RepoFullName, event.PRNumber)
	if err != nil {
		return nil, fmt.Errorf("failed to look up active job: %w", err)
	}

	if active != nil {
		if active.HeadSHA == event.HeadSHA {
			g.logger.Debug("dropping retry for running head SHA",
				"repo", event.RepoFullName, "pr", event.PRNumber, "sha", event.HeadSHA)
			return &core.Decision{Kind: core.DecisionDrop, Reason: "review already running for this commit"}, nil
		}
		return g.supersede(ctx, active, event)
	}

	lastSHA, err := g.store.LastCompletedSHA(ctx, event.RepoFullName, event.PRNumber)
	if err != nil {
		return nil, fmt.Errorf("failed to look up last reviewed SHA: %w", err)
	}
	if lastSHA != "" && lastSHA == event.HeadSHA {
		g.logger.Debug("dropping already-reviewed head SHA",
			"repo", event.RepoFullName, "pr", event.PRNumber, "sha", event.HeadSHA)
		return &core.Decision{Kind: core.DecisionDrop, Reason: "commit already reviewed"}, nil
	}

	job, err := g.createJob(ctx, event)
	if err != nil {
		return nil, err
	}
	g.logger.Info("admitted review job",
		"job_id", job.ID, "repo", event.RepoFullName, "pr", event.PRNumber, "sha", event.HeadSHA)
	return &core.Decision{Kind: core.DecisionAccept, Job: job}, nil
}

// supersede abandons the stale job and creates a fresh one for the new head
// SHA. In-flight work is abandoned, not rolled back: comments the old job
// already posted remain untouched.
func (g *Guard) supersede(ctx context.Context, stale *core.ReviewJob, event *core.ReviewEvent) (*core.Decision, error) {
	if err := g.store.TransitionJob(ctx, stale.ID, core.StatusSuperseded); err != nil {
		return nil, fmt.Errorf("failed to supersede job %s: %w", stale.ID, err)
	}

	job, err := g.createJob(ctx, event)
	if err != nil {
		return nil, err
	}
	g.logger.Info("superseded stale review job",
		"old_job_id", stale.ID, "new_job_id", job.ID,
		"repo", event.RepoFullName, "pr", event.PRNumber,
		"old_sha", stale.HeadSHA, "new_sha", event.HeadSHA)

	return &core.Decision{
		Kind:            core.DecisionSupersede,
		Job:             job,
		SupersededJobID: stale.ID,
	}, nil
}

func (g *Guard) createJob(ctx context.Context, event *core.ReviewEvent) (*core.ReviewJob, error) {
	now := time.Now().UTC()
	job := &core.ReviewJob{
		ID:             uuid.NewString(),
		RepoOwner:      event.RepoOwner,
		RepoName:       event.RepoName,
		RepoFullName:   event.RepoFullName,
		PRNumber:       event.PRNumber,
		PRTitle:        event.PRTitle,
		HeadSHA:        event.HeadSHA,
		InstallationID: event.InstallationID,
		Status:         core.StatusQueued,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := g.store.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}
	return job, nil
}
