package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/troveledger/internal/domain"
	"github.com/alanyoungcy/troveledger/internal/service"
)

// BatchRebuilder rebuilds a set of positions.
type BatchRebuilder interface {
	RebuildAll(ctx context.Context, ids []string) (service.RebuildReport, error)
}

// RebuildWorker drains StreamTouched and rebuilds the positions it names.
// Entries are read from the start of the stream on boot; rebuilding a
// position twice only refreshes its timeline.
type RebuildWorker struct {
	bus       domain.SignalBus
	batch     BatchRebuilder
	batchSize int
	lastID    string
	logger    *slog.Logger
}

// NewRebuildWorker creates a RebuildWorker reading up to batchSize entries
// per round.
func NewRebuildWorker(bus domain.SignalBus, batch BatchRebuilder, batchSize int, logger *slog.Logger) *RebuildWorker {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &RebuildWorker{
		bus:       bus,
		batch:     batch,
		batchSize: batchSize,
		lastID:    "0",
		logger:    logger.With(slog.String("component", "rebuild_worker")),
	}
}

// Drain rebuilds every position announced since the last drain. The
// stream position advances after each round is rebuilt, including rounds
// with per-position failures, which are logged.
func (w *RebuildWorker) Drain(ctx context.Context) (service.RebuildReport, error) {
	total := service.RebuildReport{Failed: map[string]error{}}
	for {
		msgs, err := w.bus.StreamRead(ctx, StreamTouched, w.lastID, w.batchSize)
		if err != nil {
			return total, fmt.Errorf("rebuild_worker: read: %w", err)
		}
		if len(msgs) == 0 {
			return total, nil
		}

		ids := uniquePositions(msgs, w.logger)
		report, err := w.batch.RebuildAll(ctx, ids)
		total.Rebuilt += report.Rebuilt
		total.Skipped += report.Skipped
		for id, ferr := range report.Failed {
			total.Failed[id] = ferr
			w.logger.WarnContext(ctx, "position rebuild failed",
				slog.String("position_id", id),
				slog.String("error", ferr.Error()),
			)
		}
		if err != nil {
			return total, err
		}
		w.lastID = msgs[len(msgs)-1].ID

		if len(msgs) < w.batchSize {
			return total, nil
		}
	}
}

// RunLoop drains the stream every interval until ctx is cancelled.
func (w *RebuildWorker) RunLoop(ctx context.Context, interval time.Duration) error {
	return runEvery(ctx, interval, w.logger, "rebuild drain", func(ctx context.Context) error {
		_, err := w.Drain(ctx)
		return err
	})
}

func uniquePositions(msgs []domain.StreamMessage, logger *slog.Logger) []string {
	seen := make(map[string]bool, len(msgs))
	ids := make([]string, 0, len(msgs))
	for _, m := range msgs {
		var t Touched
		if err := json.Unmarshal(m.Payload, &t); err != nil || t.PositionID == "" {
			logger.Warn("skipping malformed touched entry", slog.String("id", m.ID))
			continue
		}
		if !seen[t.PositionID] {
			seen[t.PositionID] = true
			ids = append(ids, t.PositionID)
		}
	}
	return ids
}
