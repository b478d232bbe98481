package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/sevigo/reviewflow/internal/config"
	"github.com/sevigo/reviewflow/internal/core"
	"github.com/sevigo/reviewflow/internal/diff"
)

// maxContextShare caps how much of the provider window the global context may
// occupy in a review call; the chunk itself gets the rest.
const maxContextShare = 4

// Gateway is the uniform front over a model provider. It enforces the token
// limit on every request, retries transient failures with exponential
// backoff, and applies the per-call timeout and rate limit.
type Gateway struct {
	provider    core.ModelProvider
	maxAttempts int
	timeout     time.Duration
	maxOutput   int
	backoff     time.Duration
	limiter     *rate.Limiter
	logger      *slog.Logger
}

// NewGateway creates a Gateway around the configured provider.
func NewGateway(provider core.ModelProvider, cfg *config.Config, logger *slog.Logger) *Gateway {
	limit := rate.Limit(cfg.ModelRateLimit)
	if limit <= 0 {
		limit = rate.Inf
	}
	return &Gateway{
		provider:    provider,
		maxAttempts: cfg.ModelMaxAttempts,
		timeout:     cfg.ModelTimeout,
		maxOutput:   cfg.MaxOutputTokens,
		backoff:     time.Second,
		limiter:     rate.NewLimiter(limit, 1),
		logger:      logger,
	}
}

// Summarize runs the ordinal-0 pass and returns the cross-file context every
// later review call receives.
func (g *Gateway) Summarize(ctx context.Context, job *core.ReviewJob, chunk core.DiffChunk) (core.GlobalContext, error) {
	content, degraded := g.fitContent(chunk.Content, buildSummaryPrompt(job, core.DiffChunk{}))
	if degraded {
		g.logger.Warn("summary chunk truncated to provider limit",
			"job_id", chunk.JobID, "provider", g.provider.Name())
	}
	fitted := chunk
	fitted.Content = content

	resp, err := g.invoke(ctx, "summarize", func(callCtx context.Context) (*core.ModelResponse, error) {
		return g.provider.Summarize(callCtx, g.request(buildSummaryPrompt(job, fitted)))
	})
	if err != nil {
		return core.GlobalContext{}, err
	}

	g.logUsage("summarize", chunk, resp.Usage)
	return core.GlobalContext{
		Summary:  strings.TrimSpace(resp.RawText),
		Degraded: degraded,
	}, nil
}

// Review runs one per-file pass. A failed chunk is reported in the result,
// never as a pipeline error: one bad chunk does not fail the whole job.
func (g *Gateway) Review(ctx context.Context, chunk core.DiffChunk, gc core.GlobalContext) core.ChunkResult {
	result := core.ChunkResult{Ordinal: chunk.Ordinal, FilePath: chunk.FilePath}

	// Compact the global context first so a verbose summary cannot starve
	// the chunk itself.
	if budget := g.provider.TokenLimit() / maxContextShare; diff.EstimateTokens(gc.Summary) > budget {
		gc.Summary = gc.Summary[:budget*3]
		result.Degraded = true
	}

	content, degraded := g.fitContent(chunk.Content, buildReviewPrompt(core.DiffChunk{FilePath: chunk.FilePath}, gc))
	if degraded {
		g.logger.Warn("review chunk truncated to provider limit",
			"job_id", chunk.JobID, "ordinal", chunk.Ordinal, "path", chunk.FilePath,
			"provider", g.provider.Name())
		result.Degraded = true
	}
	fitted := chunk
	fitted.Content = content

	resp, err := g.invoke(ctx, "review", func(callCtx context.Context) (*core.ModelResponse, error) {
		return g.provider.Review(callCtx, g.request(buildReviewPrompt(fitted, gc)))
	})
	if err != nil {
		result.Err = err
		return result
	}

	g.logUsage("review", chunk, resp.Usage)

	findings := ParseFindings(resp.RawText)
	for i := range findings {
		if findings[i].FilePath == "" || findings[i].FilePath == "unknown" {
			findings[i].FilePath = chunk.FilePath
		}
	}
	result.Findings = findings
	return result
}

func (g *Gateway) request(prompt string) core.ModelRequest {
	return core.ModelRequest{
		Provider:             g.provider.Name(),
		Prompt:               prompt,
		PromptTokensEstimate: diff.EstimateTokens(prompt),
		MaxOutputTokens:      g.maxOutput,
	}
}

// fitContent shrinks chunk content so the full prompt stays under the
// provider's token limit, dropping oldest hunks first. A request is never
// sent over budget; truncation degrades the result instead of failing it.
func (g *Gateway) fitContent(content, promptShell string) (string, bool) {
	overhead := diff.EstimateTokens(promptShell)
	available := g.provider.TokenLimit() - g.maxOutput - overhead
	if available <= 0 {
		available = g.provider.TokenLimit() / 2
	}
	return diff.TruncateOldestHunks(content, available)
}

// invoke runs one provider call with rate limiting, a per-call timeout, and
// exponential backoff on transient errors up to the attempt ceiling.
// Non-transient errors fail immediately.
func (g *Gateway) invoke(ctx context.Context, op string, fn func(context.Context) (*core.ModelResponse, error)) (*core.ModelResponse, error) {
	backoff := g.backoff
	var lastErr error

	for attempt := 1; attempt <= g.maxAttempts; attempt++ {
		if err := g.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		callCtx, cancel := context.WithTimeout(ctx, g.timeout)
		resp, err := fn(callCtx)
		cancel()

		if err == nil {
			return resp, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		// A per-call timeout is the same failure mode as a provider 5xx.
		transient := core.IsTransient(err) || errors.Is(err, context.DeadlineExceeded)
		if !transient {
			g.logger.Error("model call failed", "op", op, "attempt", attempt, "error", err)
			return nil, err
		}

		lastErr = err
		g.logger.Warn("transient model error, backing off",
			"op", op, "attempt", attempt, "max_attempts", g.maxAttempts,
			"backoff", backoff, "error", err)

		if attempt == g.maxAttempts {
			break
		}
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		backoff *= 2
	}

	return nil, fmt.Errorf("model call exhausted %d attempts: %w", g.maxAttempts, lastErr)
}

func (g *Gateway) logUsage(op string, chunk core.DiffChunk, usage core.TokenUsage) {
	g.logger.Debug("model token usage",
		"op", op,
		"job_id", chunk.JobID,
		"ordinal", chunk.Ordinal,
		"provider", g.provider.Name(),
		"prompt_tokens", usage.PromptTokens,
		"completion_tokens", usage.CompletionTokens)
}
