package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/troveledger/internal/domain"
)

// Rebuilder is the single-position rebuild the batch fans out to.
type Rebuilder interface {
	Rebuild(ctx context.Context, positionID string) (domain.Timeline, error)
}

// RebuildReport summarises a batch rebuild.
type RebuildReport struct {
	Rebuilt int
	// Skipped positions were being rebuilt elsewhere.
	Skipped int
	// Failed maps position id to its error.
	Failed map[string]error
}

// BatchRebuilder rebuilds many positions with bounded concurrency. Each
// reconstruction is independent, so positions run in parallel.
type BatchRebuilder struct {
	rebuilder   Rebuilder
	concurrency int
	logger      *slog.Logger
}

// NewBatchRebuilder creates a BatchRebuilder running up to concurrency
// rebuilds at once.
func NewBatchRebuilder(rebuilder Rebuilder, concurrency int, logger *slog.Logger) *BatchRebuilder {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &BatchRebuilder{
		rebuilder:   rebuilder,
		concurrency: concurrency,
		logger:      logger.With(slog.String("component", "batch_rebuilder")),
	}
}

// RebuildAll rebuilds every position in ids. A position whose history is
// inconsistent is recorded in the report and does not stop the others.
// Cancelling ctx abandons positions not yet started and returns ctx's
// error with the partial report.
func (b *BatchRebuilder) RebuildAll(ctx context.Context, ids []string) (RebuildReport, error) {
	report := RebuildReport{Failed: map[string]error{}}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.concurrency)

	for _, id := range ids {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			_, err := b.rebuilder.Rebuild(gctx, id)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				report.Rebuilt++
			case errors.Is(err, domain.ErrLockHeld):
				report.Skipped++
			case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
				return err
			default:
				report.Failed[id] = err
			}
			return nil
		})
	}

	err := g.Wait()
	b.logger.InfoContext(ctx, "batch rebuild finished",
		slog.Int("requested", len(ids)),
		slog.Int("rebuilt", report.Rebuilt),
		slog.Int("skipped", report.Skipped),
		slog.Int("failed", len(report.Failed)),
	)
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		return report, fmt.Errorf("batch_rebuilder: %w", err)
	}
	return report, nil
}
