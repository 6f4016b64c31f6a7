// Package app provides the top-level application lifecycle for troveledger.
// It wires stores, caches, blob storage, the indexer and price feed clients,
// services and notifications, then starts the goroutines of the configured
// operating mode.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alanyoungcy/troveledger/internal/config"
)

// App owns the configuration and the teardown of everything Run wires.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	closers []func()
}

// New creates an App. Nothing is connected until Run.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

type modeFunc func(*App, context.Context, *Dependencies, *services) error

var modes = map[string]modeFunc{
	"ingest":  (*App).IngestMode,
	"server":  (*App).ServerMode,
	"rebuild": (*App).RebuildMode,
	"full":    (*App).FullMode,
}

// Run wires dependencies, then blocks in the configured mode until it
// returns or ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	mode := strings.ToLower(a.cfg.Mode)
	run, ok := modes[mode]
	if !ok {
		return fmt.Errorf("app: unsupported mode %q", a.cfg.Mode)
	}

	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	svcs, err := a.buildServices(deps)
	if err != nil {
		return fmt.Errorf("app: build services: %w", err)
	}

	a.logger.InfoContext(ctx, "mode starting", slog.String("mode", mode))
	return run(a, ctx, deps, svcs)
}

// Close releases wired resources in reverse order. Repeated calls are
// no-ops.
func (a *App) Close() {
	if len(a.closers) == 0 {
		return
	}
	a.logger.Info("releasing resources")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
