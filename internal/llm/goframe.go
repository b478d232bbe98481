package llm

import (
	"context"
	"strings"

	"github.com/sevigo/goframe/llms"

	"github.com/sevigo/reviewflow/internal/core"
	"github.com/sevigo/reviewflow/internal/diff"
)

// goframeProvider adapts a goframe llms.Model (ollama, gemini) to the
// gateway's capability interface. Goframe's Call API does not report token
// usage, so usage is estimated with the same approximation chunk sizing uses.
type goframeProvider struct {
	name       string
	modelName  string
	tokenLimit int
	model      llms.Model
}

func newGoframeProvider(name, modelName string, tokenLimit int, model llms.Model) core.ModelProvider {
	return &goframeProvider{
		name:       name,
		modelName:  modelName,
		tokenLimit: tokenLimit,
		model:      model,
	}
}

func (p *goframeProvider) Name() string    { return p.name }
func (p *goframeProvider) TokenLimit() int { return p.tokenLimit }

func (p *goframeProvider) Summarize(ctx context.Context, req core.ModelRequest) (*core.ModelResponse, error) {
	return p.call(ctx, req)
}

func (p *goframeProvider) Review(ctx context.Context, req core.ModelRequest) (*core.ModelResponse, error) {
	return p.call(ctx, req)
}

func (p *goframeProvider) call(ctx context.Context, req core.ModelRequest) (*core.ModelResponse, error) {
	text, err := p.model.Call(ctx, req.Prompt)
	if err != nil {
		return nil, &core.ProviderError{
			Provider:  p.name,
			Transient: classifyGoframeError(err),
			Err:       err,
		}
	}

	return &core.ModelResponse{
		RawText: text,
		Usage: core.TokenUsage{
			PromptTokens:     diff.EstimateTokens(req.Prompt),
			CompletionTokens: diff.EstimateTokens(text),
		},
	}, nil
}

// classifyGoframeError decides retryability from the error text, since
// goframe does not expose structured API errors. Auth and request-shape
// failures are fatal; everything else (network, 5xx, rate limit) is worth a
// retry.
func classifyGoframeError(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, fatal := range []string{"api key", "unauthorized", "permission", "invalid request", "not found", "unsupported"} {
		if strings.Contains(msg, fatal) {
			return false
		}
	}
	return true
}
