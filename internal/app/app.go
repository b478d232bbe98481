// Package app ties the main components of the review service together:
// storage, the model gateway, the admission guard, the job queue, and the
// HTTP server.
package app

import (
	"log/slog"

	"github.com/sevigo/reviewflow/internal/config"
	"github.com/sevigo/reviewflow/internal/queue"
	"github.com/sevigo/reviewflow/internal/server"
	"github.com/sevigo/reviewflow/internal/storage"
)

// App holds the main application components.
type App struct {
	Cfg    *config.Config
	Logger *slog.Logger
	Store  storage.Store

	server *server.Server
	queue  queue.Queue
}

// NewApp assembles the application from its wired components.
func NewApp(cfg *config.Config, store storage.Store, q queue.Queue, srv *server.Server, logger *slog.Logger) *App {
	return &App{
		Cfg:    cfg,
		Logger: logger,
		Store:  store,
		server: srv,
		queue:  q,
	}
}

// Start launches the queue workers and runs the HTTP server. Blocks until
// the server stops.
func (a *App) Start() error {
	a.Logger.Info("starting reviewflow",
		"server_port", a.Cfg.ServerPort,
		"queue_mode", a.Cfg.QueueMode,
		"llm_provider", a.Cfg.LLMProvider,
		"model", a.Cfg.ModelName,
		"max_workers", a.Cfg.MaxWorkers)

	a.queue.Start()
	return a.server.Start()
}

// Stop shuts the application down cleanly: the server first so no new events
// arrive, then the queue so in-flight jobs finish, then storage.
func (a *App) Stop() error {
	a.Logger.Info("shutting down reviewflow services")

	serverErr := a.server.Stop()
	if serverErr != nil {
		a.Logger.Error("error during HTTP server shutdown", "error", serverErr)
	}

	a.queue.Stop()

	if err := a.Store.Close(); err != nil {
		a.Logger.Error("error closing storage", "error", err)
	}

	if serverErr != nil {
		return serverErr
	}
	a.Logger.Info("reviewflow stopped successfully")
	return nil
}
