package core

import "context"

// ModelRequest is one bounded request to a model provider. Prompt token
// estimates use the provider-agnostic approximation from the diff package;
// only MaxOutputTokens is enforced provider-side.
type ModelRequest struct {
	Provider             string
	ModelName            string
	Prompt               string
	PromptTokensEstimate int
	MaxOutputTokens      int
}

// TokenUsage is the provider-reported (or estimated) token consumption of a call.
type TokenUsage struct {
	PromptTokens     int
	CompletionTokens int
}

// ModelResponse is the raw outcome of a provider call before parsing.
type ModelResponse struct {
	RawText string
	Usage   TokenUsage
}

// ModelProvider is the capability set every pluggable model backend must
// implement. New providers are added by implementing this interface, never by
// branching on provider name inside the pipeline.
type ModelProvider interface {
	// Name returns the provider identifier used in configuration and logs.
	Name() string
	// TokenLimit returns the provider's configured context window in tokens.
	TokenLimit() int
	// Summarize produces a short cross-file summary of the given diff content.
	Summarize(ctx context.Context, req ModelRequest) (*ModelResponse, error)
	// Review produces review feedback for the given diff content.
	Review(ctx context.Context, req ModelRequest) (*ModelResponse, error)
}
