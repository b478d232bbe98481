package llm

import (
	"context"
	"errors"
	"net/http"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/sevigo/reviewflow/internal/core"
)

// anthropicProvider talks to the Anthropic Messages API. Token usage comes
// from the API response rather than an estimate.
type anthropicProvider struct {
	client     anthropic.Client
	modelName  string
	tokenLimit int
}

func newAnthropicProvider(apiKey, modelName string, tokenLimit int) core.ModelProvider {
	return &anthropicProvider{
		client:     anthropic.NewClient(option.WithAPIKey(apiKey)),
		modelName:  modelName,
		tokenLimit: tokenLimit,
	}
}

func (p *anthropicProvider) Name() string    { return "anthropic" }
func (p *anthropicProvider) TokenLimit() int { return p.tokenLimit }

func (p *anthropicProvider) Summarize(ctx context.Context, req core.ModelRequest) (*core.ModelResponse, error) {
	return p.call(ctx, req)
}

func (p *anthropicProvider) Review(ctx context.Context, req core.ModelRequest) (*core.ModelResponse, error) {
	return p.call(ctx, req)
}

func (p *anthropicProvider) call(ctx context.Context, req core.ModelRequest) (*core.ModelResponse, error) {
	resp, err := p.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(p.modelName),
		MaxTokens: int64(req.MaxOutputTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	})
	if err != nil {
		return nil, classifyAnthropicError(err)
	}

	var text string
	for _, block := range resp.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}

	return &core.ModelResponse{
		RawText: text,
		Usage: core.TokenUsage{
			PromptTokens:     int(resp.Usage.InputTokens),
			CompletionTokens: int(resp.Usage.OutputTokens),
		},
	}, nil
}

// classifyAnthropicError maps API failures onto the gateway's retry taxonomy:
// 429 and 5xx are transient, 4xx (auth, invalid request) are fatal, and
// anything without a status code is treated as a network blip.
func classifyAnthropicError(err error) error {
	pe := &core.ProviderError{Provider: "anthropic", Err: err, Transient: true}

	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		pe.StatusCode = apiErr.StatusCode
		switch {
		case apiErr.StatusCode == http.StatusTooManyRequests:
			pe.Transient = true
		case apiErr.StatusCode >= 500:
			pe.Transient = true
		default:
			pe.Transient = false
		}
	}
	return pe
}
