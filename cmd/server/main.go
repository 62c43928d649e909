// Package main implements the entry point for the bundle API server, which
// turns rich-text documents into self-contained offline archives through
// asynchronous export tasks.
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"

	"github.com/tmarche/bundle-api/internal/config"
	"github.com/tmarche/bundle-api/internal/platform/logger"
)

func main() {
	cfg, appLogger, err := initializeApp()
	if err != nil {
		log.Fatalf("Failed to initialize application: %v", err)
	}

	app, err := newApplication(cfg, appLogger)
	if err != nil {
		appLogger.Error("Failed to build application", "error", err)
		os.Exit(1)
	}

	if err := app.Run(context.Background()); err != nil {
		appLogger.Error("Server exited with error", "error", err)
		os.Exit(1)
	}
}

// initializeApp loads configuration and sets up logging.
func initializeApp() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	appLogger := logger.Setup(cfg.Server)

	slog.Info("Server configuration loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Server.LogLevel,
		"temp_dir", cfg.Export.TempDir,
		"task_ttl", cfg.Export.TTL.String())

	return cfg, appLogger, nil
}
