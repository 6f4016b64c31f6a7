package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/troveledger/internal/domain"
	"github.com/alanyoungcy/troveledger/internal/pipeline"
	"github.com/alanyoungcy/troveledger/internal/server"
	"github.com/alanyoungcy/troveledger/internal/server/handler"
	"github.com/alanyoungcy/troveledger/internal/server/ws"
	"github.com/alanyoungcy/troveledger/internal/service"
	"github.com/alanyoungcy/troveledger/internal/trove"
)

// services are the domain services shared by every mode.
type services struct {
	prices    *service.PriceService
	timelines *service.TimelineService
	batch     *service.BatchRebuilder
	delegates *service.DelegateService
}

func (a *App) buildServices(deps *Dependencies) (*services, error) {
	minDebt, penalty, tolerance, err := a.cfg.EngineParams()
	if err != nil {
		return nil, err
	}
	params := trove.Params{MinDebt: minDebt, PoolLiquidationPenalty: penalty, ResidualTolerance: tolerance}

	var feed service.PriceFeed
	if deps.PriceFeed != nil {
		feed = deps.PriceFeed
	}
	prices := service.NewPriceService(a.cfg.Subgraph.Collateral, feed, deps.PriceStore, deps.PriceCache, deps.SignalBus, a.logger)

	timelines := service.NewTimelineService(service.TimelineDeps{
		Events:    deps.EventStore,
		Timelines: deps.TimelineStore,
		Delegates: deps.DelegateStore,
		Locks:     deps.LockManager,
		Prices:    prices,
		Cache:     deps.TimelineCache,
		Bus:       deps.SignalBus,
		Audit:     deps.AuditStore,
		Alerts:    deps.Notifier,
	}, params, a.cfg.Engine.RebuildLockTTL.Duration, a.logger)

	return &services{
		prices:    prices,
		timelines: timelines,
		batch:     service.NewBatchRebuilder(timelines, a.cfg.Engine.RebuildConcurrency, a.logger),
		delegates: service.NewDelegateService(deps.DelegateStore, deps.AuditStore, a.logger),
	}, nil
}

// IngestMode runs the pipeline: scraping, rebuilding touched positions,
// price polling and the export cron.
func (a *App) IngestMode(ctx context.Context, deps *Dependencies, svcs *services) error {
	a.logger.InfoContext(ctx, "starting ingest mode")
	orch, err := a.newOrchestrator(deps, svcs)
	if err != nil {
		return err
	}
	return orch.Run(ctx)
}

// ServerMode serves the HTTP API and the websocket hub.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies, svcs *services) error {
	a.logger.InfoContext(ctx, "starting server mode")
	g, ctx := errgroup.WithContext(ctx)
	a.startServer(ctx, g, deps, svcs)
	return g.Wait()
}

// RebuildMode reconstructs every known position once and exits.
func (a *App) RebuildMode(ctx context.Context, deps *Dependencies, svcs *services) error {
	a.logger.InfoContext(ctx, "starting rebuild mode")

	ids, err := allPositions(ctx, deps.EventStore)
	if err != nil {
		return err
	}
	start := time.Now()
	report, err := svcs.batch.RebuildAll(ctx, ids)
	if err != nil {
		return err
	}
	for id, ferr := range report.Failed {
		a.logger.WarnContext(ctx, "position rebuild failed",
			slog.String("position_id", id),
			slog.String("error", ferr.Error()),
		)
	}
	a.logger.InfoContext(ctx, "rebuild complete",
		slog.Int("positions", len(ids)),
		slog.Int("rebuilt", report.Rebuilt),
		slog.Int("skipped", report.Skipped),
		slog.Int("failed", len(report.Failed)),
		slog.Duration("took", time.Since(start)),
	)
	return nil
}

// FullMode runs the pipeline and the server together.
func (a *App) FullMode(ctx context.Context, deps *Dependencies, svcs *services) error {
	a.logger.InfoContext(ctx, "starting full mode")
	g, ctx := errgroup.WithContext(ctx)

	if a.cfg.Pipeline.Enabled {
		orch, err := a.newOrchestrator(deps, svcs)
		if err != nil {
			return err
		}
		g.Go(func() error { return orch.Run(ctx) })
	}
	if a.cfg.Server.Enabled {
		a.startServer(ctx, g, deps, svcs)
	}
	return g.Wait()
}

func (a *App) newOrchestrator(deps *Dependencies, svcs *services) (*pipeline.Orchestrator, error) {
	if deps.Subgraph == nil {
		return nil, errors.New("app: ingest needs subgraph.url")
	}
	pc := a.cfg.Pipeline

	scraper := pipeline.NewEventScraper(deps.Subgraph, deps.EventStore, deps.SignalBus, a.cfg.Subgraph.PageSize, a.logger)
	worker := pipeline.NewRebuildWorker(deps.SignalBus, svcs.batch, pc.RebuildBatch, a.logger)

	var poller pipeline.PricePoller
	if deps.PriceFeed != nil {
		poller = pipeline.PollerFunc(func(ctx context.Context) error {
			_, err := svcs.prices.Poll(ctx)
			return err
		})
	}

	var (
		export   *pipeline.ExportJob
		schedule *pipeline.Schedule
	)
	if deps.Exporter != nil {
		var err error
		if schedule, err = pipeline.ParseSchedule(pc.ExportCron); err != nil {
			return nil, fmt.Errorf("app: export_cron: %w", err)
		}
		export = pipeline.NewExportJob(deps.EventStore, deps.TimelineStore, deps.Exporter, a.logger)
	}

	return pipeline.NewOrchestrator(scraper, worker, poller, export, schedule, pipeline.Intervals{
		Scrape: pc.ScrapeInterval.Duration,
		Price:  pc.PriceInterval.Duration,
	}, a.logger), nil
}

func (a *App) startServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, svcs *services) {
	sc := a.cfg.Server

	hub := ws.NewHub(deps.SignalBus, a.logger, ws.Config{
		Channels:  []string{service.ChannelTimelines, service.ChannelPrices},
		Mode:      a.cfg.Mode,
		StartedAt: time.Now().UTC(),
	})
	g.Go(func() error {
		if err := hub.Run(ctx); err != nil && ctx.Err() == nil {
			return fmt.Errorf("ws hub: %w", err)
		}
		return nil
	})

	handlers := server.Handlers{
		Health:    handler.NewHealthHandler(deps.HealthChecks, a.logger),
		Timelines: handler.NewTimelineHandler(svcs.timelines, a.logger),
		Delegates: handler.NewDelegateHandler(svcs.delegates, a.logger),
		Audit:     handler.NewAuditHandler(deps.AuditStore, a.logger),
	}
	if deps.Exporter != nil {
		handlers.Archive = handler.NewArchiveHandler(deps.Exporter, a.logger)
	}

	srv := server.NewServer(server.Config{
		Port:            sc.Port,
		CORSOrigins:     sc.CORSOrigins,
		APIKey:          sc.APIKey,
		RateLimit:       sc.RateLimit,
		RateLimitWindow: sc.RateLimitWindow.Duration,
	}, handlers, hub, deps.RateLimiter, a.logger)

	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}

// allPositions pages through every position with stored events.
func allPositions(ctx context.Context, events domain.EventStore) ([]string, error) {
	const page = 1000
	var ids []string
	for offset := 0; ; offset += page {
		batch, err := events.ListPositions(ctx, domain.ListOpts{Limit: page, Offset: offset})
		if err != nil {
			return nil, fmt.Errorf("app: list positions: %w", err)
		}
		ids = append(ids, batch...)
		if len(batch) < page {
			return ids, nil
		}
	}
}
