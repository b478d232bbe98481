// Package publish posts review findings back to the pull request. Each
// comment is posted individually and its outcome recorded, so one rejected
// anchor never takes down the rest of the review and a re-run never
// duplicates comments that already landed.
package publish

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/sevigo/reviewflow/internal/config"
	"github.com/sevigo/reviewflow/internal/core"
	"github.com/sevigo/reviewflow/internal/github"
	"github.com/sevigo/reviewflow/internal/storage"
)

// Publisher turns chunk results into PR comments.
type Publisher struct {
	store             storage.Store
	fileLevelFallback bool
	postTimeout       time.Duration
	logger            *slog.Logger
}

// NewPublisher creates a Publisher.
func NewPublisher(store storage.Store, cfg *config.Config, logger *slog.Logger) *Publisher {
	return &Publisher{
		store:             store,
		fileLevelFallback: cfg.FileLevelFallback,
		postTimeout:       cfg.PostTimeout,
		logger:            logger,
	}
}

// Publish posts every finding in ordinal order, then a summary comment with
// the overall verdict. Findings whose line is not commentable in the current
// diff are redirected to a file-level comment when the fallback is enabled,
// otherwise dropped. The returned error is nil unless posting could not even
// begin; individual comment failures are tallied in the result.
func (p *Publisher) Publish(ctx context.Context, client github.Client, job *core.ReviewJob, results []core.ChunkResult, commentable map[string]map[int]struct{}) (core.PostResult, error) {
	sort.Slice(results, func(i, j int) bool { return results[i].Ordinal < results[j].Ordinal })

	var res core.PostResult
	var failedChunks int
	total := 0

	for _, cr := range results {
		if cr.Err != nil {
			failedChunks++
			continue
		}
		for idx, finding := range cr.Findings {
			total++
			outcome, err := p.postFinding(ctx, client, job, cr.Ordinal, idx, finding, commentable)
			if err != nil {
				p.logger.Warn("failed to post finding",
					"job_id", job.ID, "ordinal", cr.Ordinal, "index", idx,
					"path", finding.FilePath, "line", finding.Line, "error", err)
			}
			switch outcome {
			case core.PostPosted:
				res.Posted++
			case core.PostFailed:
				res.Failed++
			default:
				res.Skipped++
			}
		}
	}

	p.postSummary(ctx, client, job, p.summaryBody(job, total, res, failedChunks))

	return res, nil
}

// summaryCommentIndex keys the verdict summary in the comment table. The
// summary pass at ordinal 0 never produces findings, so the slot is free.
const summaryCommentIndex = 0

// postSummary posts the verdict comment once per job. A re-run of the posting
// stage finds the recorded external ID and skips the post.
func (p *Publisher) postSummary(ctx context.Context, client github.Client, job *core.ReviewJob, summary string) {
	prev, err := p.store.Comment(ctx, job.ID, core.SummaryOrdinal, summaryCommentIndex)
	if err != nil {
		p.logger.Warn("failed to check summary comment state", "job_id", job.ID, "error", err)
		return
	}
	if prev != nil && prev.ExternalID != 0 {
		p.logger.Debug("summary comment already posted", "job_id", job.ID, "external_id", prev.ExternalID)
		return
	}

	comment := &core.ReviewComment{
		JobID:        job.ID,
		Ordinal:      core.SummaryOrdinal,
		FindingIndex: summaryCommentIndex,
		Body:         summary,
		PostStatus:   core.PostPending,
	}
	if err := p.store.SaveComment(ctx, comment); err != nil {
		p.logger.Warn("failed to record summary comment", "job_id", job.ID, "error", err)
		return
	}

	postCtx, cancel := context.WithTimeout(ctx, p.postTimeout)
	defer cancel()

	externalID, err := client.CreateIssueComment(postCtx, job.RepoOwner, job.RepoName, job.PRNumber, summary)
	if err != nil {
		comment.PostStatus = core.PostFailed
		if saveErr := p.store.SaveComment(ctx, comment); saveErr != nil {
			p.logger.Error("failed to record summary failure", "job_id", job.ID, "error", saveErr)
		}
		p.logger.Warn("failed to post review summary", "job_id", job.ID, "error", err)
		return
	}

	comment.ExternalID = externalID
	comment.PostStatus = core.PostPosted
	if err := p.store.SaveComment(ctx, comment); err != nil {
		p.logger.Error("failed to record posted summary", "job_id", job.ID, "error", err)
	}
}

// postFinding posts one finding and records its state. Returns the terminal
// PostStatus for tallying, or PostPending when the finding was skipped
// without an attempt.
func (p *Publisher) postFinding(ctx context.Context, client github.Client, job *core.ReviewJob, ordinal, idx int, finding core.Finding, commentable map[string]map[int]struct{}) (core.PostStatus, error) {
	prev, err := p.store.Comment(ctx, job.ID, ordinal, idx)
	if err != nil {
		return core.PostFailed, err
	}
	if prev != nil && prev.ExternalID != 0 {
		// Already acknowledged by GitHub on an earlier attempt.
		return core.PostPending, nil
	}

	fileLevel := finding.FileLevel() || !lineCommentable(commentable, finding.FilePath, finding.Line)
	if fileLevel && !finding.FileLevel() {
		if !p.fileLevelFallback {
			p.logger.Debug("dropping finding with uncommentable anchor",
				"job_id", job.ID, "path", finding.FilePath, "line", finding.Line)
			return core.PostPending, nil
		}
		p.logger.Debug("falling back to file-level comment",
			"job_id", job.ID, "path", finding.FilePath, "line", finding.Line)
	}

	comment := &core.ReviewComment{
		JobID:        job.ID,
		Ordinal:      ordinal,
		FindingIndex: idx,
		FilePath:     finding.FilePath,
		Line:         finding.Line,
		Body:         findingBody(finding),
		PostStatus:   core.PostPending,
	}
	if err := p.store.SaveComment(ctx, comment); err != nil {
		return core.PostFailed, err
	}

	postCtx, cancel := context.WithTimeout(ctx, p.postTimeout)
	defer cancel()

	var externalID int64
	if fileLevel {
		body := fmt.Sprintf("**`%s`**\n\n%s", finding.FilePath, comment.Body)
		externalID, err = client.CreateIssueComment(postCtx, job.RepoOwner, job.RepoName, job.PRNumber, body)
	} else {
		externalID, err = client.CreateReviewComment(postCtx, job.RepoOwner, job.RepoName, job.PRNumber, &github.InlineComment{
			Path:     finding.FilePath,
			Line:     finding.Line,
			Body:     comment.Body,
			CommitID: job.HeadSHA,
		})
	}

	if err != nil {
		comment.PostStatus = core.PostFailed
		if saveErr := p.store.SaveComment(ctx, comment); saveErr != nil {
			p.logger.Error("failed to record comment failure", "job_id", job.ID, "error", saveErr)
		}
		return core.PostFailed, err
	}

	comment.ExternalID = externalID
	comment.PostStatus = core.PostPosted
	if err := p.store.SaveComment(ctx, comment); err != nil {
		p.logger.Error("failed to record posted comment", "job_id", job.ID, "error", err)
	}
	return core.PostPosted, nil
}

func lineCommentable(commentable map[string]map[int]struct{}, path string, line int) bool {
	lines, ok := commentable[path]
	if !ok {
		return false
	}
	_, ok = lines[line]
	return ok
}

// findingBody renders one finding as Markdown.
func findingBody(f core.Finding) string {
	var b strings.Builder
	if f.Severity != "" {
		fmt.Fprintf(&b, "**Severity:** %s", f.Severity)
	}
	if f.Category != "" {
		if b.Len() > 0 {
			b.WriteString(" | ")
		}
		fmt.Fprintf(&b, "**Category:** %s", f.Category)
	}
	if b.Len() > 0 {
		b.WriteString("\n\n")
	}
	b.WriteString(f.Message)
	return b.String()
}

// summaryBody renders the closing conversation comment with the verdict.
func (p *Publisher) summaryBody(job *core.ReviewJob, total int, res core.PostResult, failedChunks int) string {
	var b strings.Builder
	b.WriteString("## Automated Review\n\n")

	if total == 0 && failedChunks == 0 {
		fmt.Fprintf(&b, "No issues found in `%s`.\n\n**Verdict: APPROVE**\n", shortSHA(job.HeadSHA))
		return b.String()
	}

	fmt.Fprintf(&b, "Reviewed `%s`: %d finding(s), %d posted", shortSHA(job.HeadSHA), total, res.Posted)
	if res.Failed > 0 {
		fmt.Fprintf(&b, ", %d failed to post", res.Failed)
	}
	if res.Skipped > 0 {
		fmt.Fprintf(&b, ", %d skipped", res.Skipped)
	}
	b.WriteString(".\n")
	if failedChunks > 0 {
		fmt.Fprintf(&b, "\n%d file(s) could not be reviewed and were skipped.\n", failedChunks)
	}

	if total > 0 {
		b.WriteString("\n**Verdict: REQUEST_CHANGES**\n")
	} else {
		b.WriteString("\n**Verdict: APPROVE**\n")
	}
	return b.String()
}

func shortSHA(sha string) string {
	if len(sha) > 8 {
		return sha[:8]
	}
	return sha
}
