package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tmarche/bundle-api/internal/config"
	"github.com/tmarche/bundle-api/internal/fetch"
	"github.com/tmarche/bundle-api/internal/service"
	"github.com/tmarche/bundle-api/internal/store"
	"github.com/tmarche/bundle-api/internal/task"
)

// application holds all the shared application dependencies to simplify
// management and ensure proper cleanup on shutdown.
type application struct {
	config *config.Config
	logger *slog.Logger

	taskStore store.TaskStore
	fetcher   *fetch.Fetcher
	workspace *service.Workspace
	runner    *task.Runner
	exports   *service.ExportService
}

// newApplication creates a new application instance with all dependencies
// initialized and the background runner started.
func newApplication(cfg *config.Config, logger *slog.Logger) (*application, error) {
	app := &application{
		config: cfg,
		logger: logger,
	}

	workspace, err := service.NewWorkspace(cfg.Export.TempDir)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize workspace: %w", err)
	}
	app.workspace = workspace

	app.taskStore = store.NewMemoryStore(logger.With("component", "task_store"))
	app.fetcher = fetch.New(cfg.Fetch, logger.With("component", "fetcher"))

	app.runner = task.NewRunner(task.RunnerConfig{
		WorkerCount: cfg.Export.WorkerCount,
		QueueSize:   cfg.Export.QueueSize,
	}, logger.With("component", "runner"))
	app.runner.Start()

	app.exports = service.NewExportService(
		app.taskStore,
		app.fetcher,
		app.runner,
		app.workspace,
		cfg.Export,
		logger,
	)

	logger.Info("Application initialized successfully")
	return app, nil
}

// Run starts the application server, handling lifecycle and cleanup.
// It returns an error if the server fails to start or encounters problems.
func (app *application) Run(ctx context.Context) error {
	router := app.setupRouter()

	if err := app.startHTTPServer(ctx, router); err != nil {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// cleanup handles graceful shutdown of application resources.
func (app *application) cleanup() {
	if app.runner != nil {
		app.runner.Stop()
	}

	app.logger.Info("Application shutdown completed")
}
