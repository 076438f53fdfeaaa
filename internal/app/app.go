package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/vk/matrixci/internal/config"
	"github.com/vk/matrixci/internal/ctxlog"
)

// App encapsulates the application's dependencies, configuration, and
// lifecycle.
type App struct {
	outW      io.Writer
	logger    *slog.Logger
	appConfig *Config
	model     *config.Model
}

// NewApp is the constructor for the main application. It returns a fully
// initialized App instance with its own isolated logger and the pipeline
// declaration already loaded and translated into the unified model.
func NewApp(outW io.Writer, appConfig *Config, loader config.Loader) (*App, error) {
	logger := newLogger(appConfig.LogLevel, appConfig.LogFormat, outW)
	ctx := ctxlog.WithLogger(context.Background(), logger)
	logger.Debug("Logger configured successfully.")

	model, err := loader.Load(ctx, appConfig.PipelinePath)
	if err != nil {
		return nil, fmt.Errorf("failed to load declaration: %w", err)
	}
	logger.Debug("Declaration loaded and translated into unified model.")

	return &App{
		outW:      outW,
		logger:    logger,
		appConfig: appConfig,
		model:     model,
	}, nil
}

// Model returns the loaded declaration model. This is primarily for testing.
func (a *App) Model() *config.Model {
	return a.model
}
