// Package llm implements the model gateway: a uniform, budget-enforcing,
// retrying front over heterogeneous model providers.
package llm

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/sevigo/goframe/llms/gemini"
	"github.com/sevigo/goframe/llms/ollama"

	"github.com/sevigo/reviewflow/internal/config"
	"github.com/sevigo/reviewflow/internal/core"
)

// NewProvider builds the configured model provider. Provider selection is a
// pure function of configuration; the pipeline never branches on the name.
func NewProvider(ctx context.Context, cfg *config.Config, logger *slog.Logger) (core.ModelProvider, error) {
	switch cfg.LLMProvider {
	case "anthropic":
		logger.Info("using anthropic model provider", "model", cfg.ModelName)
		return newAnthropicProvider(cfg.AnthropicAPIKey, cfg.ModelName, cfg.TokenLimit), nil

	case "gemini":
		logger.Info("using gemini model provider", "model", cfg.ModelName)
		model, err := gemini.New(ctx,
			gemini.WithModel(cfg.ModelName),
			gemini.WithAPIKey(cfg.GeminiAPIKey),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create gemini model: %w", err)
		}
		return newGoframeProvider("gemini", cfg.ModelName, cfg.TokenLimit, model), nil

	case "ollama":
		logger.Info("using ollama model provider", "model", cfg.ModelName, "host", cfg.OllamaHost)
		model, err := ollama.New(
			ollama.WithServerURL(cfg.OllamaHost),
			ollama.WithModel(cfg.ModelName),
			ollama.WithHTTPClient(newModelHTTPClient()),
			ollama.WithLogger(logger),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create ollama model: %w", err)
		}
		return newGoframeProvider("ollama", cfg.ModelName, cfg.TokenLimit, model), nil

	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.LLMProvider)
	}
}

// newModelHTTPClient creates an HTTP client with generous timeouts; local
// model servers can take a while to produce a long review.
func newModelHTTPClient() *http.Client {
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        100,
		MaxConnsPerHost:     10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}

	return &http.Client{
		Transport: transport,
		Timeout:   5 * time.Minute,
	}
}
