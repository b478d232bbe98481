// Package jobs runs the review pipeline and the worker pool that feeds it.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/sevigo/reviewflow/internal/config"
	"github.com/sevigo/reviewflow/internal/core"
	"github.com/sevigo/reviewflow/internal/diff"
	"github.com/sevigo/reviewflow/internal/github"
	"github.com/sevigo/reviewflow/internal/llm"
	"github.com/sevigo/reviewflow/internal/publish"
	"github.com/sevigo/reviewflow/internal/storage"
)

// Pipeline executes one review job end to end: fetch the diff, decompose it,
// run the summary and per-file model passes, and publish the findings. It
// checks for supersession between stages so work on a stale head SHA stops
// at the next boundary.
type Pipeline struct {
	store       storage.Store
	decomposer  *diff.Decomposer
	gateway     *llm.Gateway
	publisher   *publish.Publisher
	clients     github.ClientFactory
	concurrency int
	logger      *slog.Logger
}

// NewPipeline creates a Pipeline. Panics on nil collaborators, which are
// wiring bugs, not runtime conditions.
func NewPipeline(
	store storage.Store,
	decomposer *diff.Decomposer,
	gateway *llm.Gateway,
	publisher *publish.Publisher,
	clients github.ClientFactory,
	cfg *config.Config,
	logger *slog.Logger,
) core.Runner {
	if store == nil || decomposer == nil || gateway == nil || publisher == nil || clients == nil {
		panic("pipeline collaborators cannot be nil")
	}
	if cfg.ChunkConcurrency <= 0 {
		cfg.ChunkConcurrency = 1
	}
	return &Pipeline{
		store:       store,
		decomposer:  decomposer,
		gateway:     gateway,
		publisher:   publisher,
		clients:     clients,
		concurrency: cfg.ChunkConcurrency,
		logger:      logger,
	}
}

// Run executes the job. A superseded job returns nil: stopping stale work is
// the intended outcome, not a failure.
func (p *Pipeline) Run(ctx context.Context, job *core.ReviewJob) error {
	log := p.logger.With("job_id", job.ID, "repo", job.RepoFullName, "pr", job.PRNumber, "sha", shortSHA(job.HeadSHA))
	log.Info("starting review job")

	if err := p.transition(ctx, job.ID, core.StatusRunning); err != nil {
		if errors.Is(err, core.ErrTerminalState) {
			log.Info("job reached a terminal state before execution, skipping")
			return nil
		}
		return err
	}

	client, err := p.clients(ctx, job.InstallationID)
	if err != nil {
		return p.fail(ctx, job, log, fmt.Errorf("failed to create GitHub client: %w", err))
	}

	diffText, err := client.GetPullRequestDiff(ctx, job.RepoOwner, job.RepoName, job.PRNumber)
	if err != nil {
		return p.fail(ctx, job, log, fmt.Errorf("%w: %v", core.ErrDiffUnavailable, err))
	}

	files, err := diff.Parse(diffText)
	if err != nil {
		return p.fail(ctx, job, log, fmt.Errorf("failed to parse diff: %w", err))
	}

	decomposer := p.repoDecomposer(ctx, client, job, log)
	chunks, err := decomposer.Decompose(job.ID, diffText)
	if err != nil {
		return p.fail(ctx, job, log, fmt.Errorf("failed to decompose diff: %w", err))
	}
	if len(chunks) <= 1 {
		// Only the summary chunk, or nothing at all: every changed file was
		// binary, deleted, or excluded.
		log.Info("no reviewable changes, completing without review")
		return p.transition(ctx, job.ID, core.StatusCompleted)
	}
	if err := p.store.SaveChunks(ctx, chunks); err != nil {
		return p.fail(ctx, job, log, fmt.Errorf("failed to persist chunks: %w", err))
	}

	if p.superseded(ctx, job.ID) {
		log.Info("job superseded before summary pass, stopping")
		return nil
	}

	if err := p.transition(ctx, job.ID, core.StatusSummarizing); err != nil {
		return p.stopOrFail(ctx, job, log, err)
	}
	gc := p.summarize(ctx, job, chunks[0], log)

	if p.superseded(ctx, job.ID) {
		log.Info("job superseded after summary pass, stopping")
		return nil
	}

	if err := p.transition(ctx, job.ID, core.StatusReviewing); err != nil {
		return p.stopOrFail(ctx, job, log, err)
	}
	results := p.reviewChunks(ctx, job, chunks[1:], gc, log)

	succeeded := 0
	for _, r := range results {
		if r.Err == nil {
			succeeded++
		}
	}
	if succeeded == 0 && gc.Summary == "" {
		// Not one model call landed; there is nothing worth posting.
		return p.fail(ctx, job, log, fmt.Errorf("all model calls failed for %d chunk(s)", len(results)))
	}

	if p.superseded(ctx, job.ID) {
		log.Info("job superseded before posting, stopping")
		return nil
	}

	if err := p.transition(ctx, job.ID, core.StatusPosting); err != nil {
		return p.stopOrFail(ctx, job, log, err)
	}

	posted, err := p.publisher.Publish(ctx, client, job, results, diff.CommentableLinesByFile(files))
	if err != nil {
		return p.fail(ctx, job, log, fmt.Errorf("failed to publish review: %w", err))
	}

	if err := p.transition(ctx, job.ID, core.StatusCompleted); err != nil {
		return p.stopOrFail(ctx, job, log, err)
	}

	log.Info("review job completed",
		"chunks", len(results), "chunks_failed", len(results)-succeeded,
		"posted", posted.Posted, "post_failed", posted.Failed, "skipped", posted.Skipped)
	return nil
}

// repoDecomposer extends the configured decomposer with the exclusion
// patterns from the repository's policy file at the PR's head commit. A
// missing or malformed policy file falls back to the global configuration.
func (p *Pipeline) repoDecomposer(ctx context.Context, client github.Client, job *core.ReviewJob, log *slog.Logger) *diff.Decomposer {
	data, err := client.GetFileContent(ctx, job.RepoOwner, job.RepoName, config.RepoPolicyFile, job.HeadSHA)
	if err != nil {
		log.Debug("no repository review policy", "error", err)
		return p.decomposer
	}
	policy, err := config.ParseRepoPolicy(data)
	if err != nil {
		log.Warn("ignoring malformed repository review policy", "error", err)
		return p.decomposer
	}
	if len(policy.Exclude) > 0 {
		log.Debug("applying repository exclusion patterns", "patterns", len(policy.Exclude))
	}
	return p.decomposer.WithExtraExcludes(policy.Exclude)
}

// summarize runs the ordinal-0 pass. A summary failure degrades the reviews
// instead of failing the job: per-file passes proceed without PR-wide context.
func (p *Pipeline) summarize(ctx context.Context, job *core.ReviewJob, summary core.DiffChunk, log *slog.Logger) core.GlobalContext {
	gc, err := p.gateway.Summarize(ctx, job, summary)
	if err != nil {
		log.Warn("summary pass failed, reviewing without global context", "error", err)
		return core.GlobalContext{Degraded: true}
	}
	return gc
}

// reviewChunks runs the per-file passes with bounded concurrency and returns
// results in ordinal order. Each worker re-checks for supersession before
// starting its chunk.
func (p *Pipeline) reviewChunks(ctx context.Context, job *core.ReviewJob, chunks []core.DiffChunk, gc core.GlobalContext, log *slog.Logger) []core.ChunkResult {
	results := make([]core.ChunkResult, len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)

	for i, chunk := range chunks {
		g.Go(func() error {
			if p.superseded(gctx, job.ID) {
				results[i] = core.ChunkResult{
					Ordinal:  chunk.Ordinal,
					FilePath: chunk.FilePath,
					Err:      core.ErrSuperseded,
				}
				return nil
			}
			results[i] = p.gateway.Review(gctx, chunk, gc)
			if results[i].Err != nil {
				log.Warn("chunk review failed, continuing",
					"ordinal", chunk.Ordinal, "path", chunk.FilePath, "error", results[i].Err)
			}
			return nil
		})
	}
	// Workers never return errors; failures live in their results.
	_ = g.Wait()

	sort.Slice(results, func(a, b int) bool { return results[a].Ordinal < results[b].Ordinal })
	return results
}

// superseded reports whether the job left the active path while the pipeline
// was working. Lookup errors are treated as "keep going": the terminal-state
// guard on transitions is the correctness backstop.
func (p *Pipeline) superseded(ctx context.Context, jobID string) bool {
	status, err := p.store.JobStatus(ctx, jobID)
	if err != nil {
		p.logger.Warn("failed to check job status", "job_id", jobID, "error", err)
		return false
	}
	return status.Terminal()
}

func (p *Pipeline) transition(ctx context.Context, jobID string, to core.JobStatus) error {
	return p.store.TransitionJob(ctx, jobID, to)
}

// stopOrFail distinguishes a lost race with supersession (stop quietly) from
// a real error (fail the job).
func (p *Pipeline) stopOrFail(ctx context.Context, job *core.ReviewJob, log *slog.Logger, err error) error {
	if errors.Is(err, core.ErrTerminalState) {
		log.Info("job reached a terminal state mid-pipeline, stopping")
		return nil
	}
	return p.fail(ctx, job, log, err)
}

// fail finalizes the job as failed. The guarded transition makes this a no-op
// when the job was superseded in the meantime.
func (p *Pipeline) fail(ctx context.Context, job *core.ReviewJob, log *slog.Logger, cause error) error {
	log.Error("review job failed", "error", cause)
	if err := p.transition(ctx, job.ID, core.StatusFailed); err != nil && !errors.Is(err, core.ErrTerminalState) {
		log.Error("failed to finalize job", "error", err)
	}
	return cause
}

func shortSHA(sha string) string {
	if len(sha) > 8 {
		return sha[:8]
	}
	return sha
}
