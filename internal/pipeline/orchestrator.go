package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// PricePoller records one price observation per call.
type PricePoller interface {
	Poll(ctx context.Context) error
}

// PollerFunc adapts a function to PricePoller.
type PollerFunc func(ctx context.Context) error

func (f PollerFunc) Poll(ctx context.Context) error { return f(ctx) }

// Intervals configures the orchestrator loops.
type Intervals struct {
	Scrape  time.Duration
	Rebuild time.Duration
	Price   time.Duration
}

// Orchestrator runs the ingestion loops: scraping, rebuilding touched
// positions, price polling and the export cron. The price poller and
// export job are optional.
type Orchestrator struct {
	scraper   *EventScraper
	rebuilder *RebuildWorker
	prices    PricePoller
	export    *ExportJob
	schedule  *Schedule
	intervals Intervals
	logger    *slog.Logger
}

// NewOrchestrator creates an Orchestrator. prices, export and schedule
// may be nil.
func NewOrchestrator(
	scraper *EventScraper,
	rebuilder *RebuildWorker,
	prices PricePoller,
	export *ExportJob,
	schedule *Schedule,
	intervals Intervals,
	logger *slog.Logger,
) *Orchestrator {
	if intervals.Rebuild <= 0 {
		intervals.Rebuild = intervals.Scrape
	}
	return &Orchestrator{
		scraper:   scraper,
		rebuilder: rebuilder,
		prices:    prices,
		export:    export,
		schedule:  schedule,
		intervals: intervals,
		logger:    logger.With(slog.String("component", "orchestrator")),
	}
}

// Run starts every loop in an errgroup. Each loop stops when ctx is
// cancelled; a loop failing for any other reason cancels the rest and
// Run returns its error.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.logger.Info("pipeline orchestrator starting",
		slog.Duration("scrape_interval", o.intervals.Scrape),
		slog.Duration("price_interval", o.intervals.Price),
	)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return cleanStop(ctx, "event scraper", o.scraper.RunLoop(ctx, o.intervals.Scrape))
	})

	g.Go(func() error {
		return cleanStop(ctx, "rebuild worker", o.rebuilder.RunLoop(ctx, o.intervals.Rebuild))
	})

	if o.prices != nil && o.intervals.Price > 0 {
		g.Go(func() error {
			err := runEvery(ctx, o.intervals.Price, o.logger, "price poll", o.prices.Poll)
			return cleanStop(ctx, "price poller", err)
		})
	}

	if o.export != nil && o.schedule != nil {
		g.Go(func() error {
			return cleanStop(ctx, "export", o.export.RunCron(ctx, o.schedule))
		})
	}

	if err := g.Wait(); err != nil {
		o.logger.Error("pipeline orchestrator stopped with error", slog.String("error", err.Error()))
		return err
	}
	o.logger.Info("pipeline orchestrator stopped cleanly")
	return nil
}

func cleanStop(ctx context.Context, name string, err error) error {
	if err == nil || ctx.Err() != nil {
		return nil
	}
	return fmt.Errorf("%s: %w", name, err)
}
