// Code generated manually. DO NOT EDIT.

//go:generate go run -mod=mod github.com/google/wire/cmd/wire
//go:build !wireinject
// +build !wireinject

package wire

import (
	"context"
	"fmt"
	"os"

	"github.com/sevigo/reviewflow/internal/app"
	"github.com/sevigo/reviewflow/internal/config"
	"github.com/sevigo/reviewflow/internal/github"
	"github.com/sevigo/reviewflow/internal/guard"
	"github.com/sevigo/reviewflow/internal/jobs"
	"github.com/sevigo/reviewflow/internal/llm"
	"github.com/sevigo/reviewflow/internal/logger"
	"github.com/sevigo/reviewflow/internal/publish"
	"github.com/sevigo/reviewflow/internal/queue"
	"github.com/sevigo/reviewflow/internal/server"
)

// InitializeApp creates and wires all application dependencies.
func InitializeApp(ctx context.Context) (*app.App, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	slogLogger := logger.New(cfg.Logger, os.Stdout)

	store, err := provideStore(cfg, slogLogger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open storage: %w", err)
	}

	provider, err := llm.NewProvider(ctx, cfg, slogLogger)
	if err != nil {
		_ = store.Close()
		return nil, nil, fmt.Errorf("failed to create model provider: %w", err)
	}
	gateway := llm.NewGateway(provider, cfg, slogLogger)

	decomposer := provideDecomposer(cfg, slogLogger)
	publisher := publish.NewPublisher(store, cfg, slogLogger)
	clients := github.NewClientFactory(cfg, slogLogger)

	pipeline := jobs.NewPipeline(store, decomposer, gateway, publisher, clients, cfg, slogLogger)

	q, err := queue.New(cfg, store, pipeline, slogLogger)
	if err != nil {
		_ = store.Close()
		return nil, nil, fmt.Errorf("failed to create queue: %w", err)
	}

	admissionGuard := guard.New(store, slogLogger)
	srv := server.NewServer(cfg, admissionGuard, q, slogLogger)

	application := app.NewApp(cfg, store, q, srv, slogLogger)

	cleanup := func() {}
	return application, cleanup, nil
}
