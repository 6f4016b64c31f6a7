package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/alanyoungcy/troveledger/internal/domain"
)

// StreamTouched is the stream of positions whose history changed and
// whose timeline needs rebuilding.
const StreamTouched = "touched_positions"

// maxPagesPerRun bounds one scrape so a long backfill still yields to the
// rebuild loop between runs.
const maxPagesPerRun = 50

// ChangeSource retrieves indexed position operations.
type ChangeSource interface {
	FetchTroveChanges(ctx context.Context, sinceBlock uint64, first int) ([]domain.PositionEvent, error)
	FetchLatestBlock(ctx context.Context) (uint64, error)
}

// Touched is the payload appended to StreamTouched.
type Touched struct {
	PositionID string `json:"position_id"`
	Block      uint64 `json:"block"`
}

// EventScraper copies new position operations from the indexer into the
// event store, resuming from the highest stored block.
type EventScraper struct {
	source   ChangeSource
	events   domain.EventStore
	bus      domain.SignalBus
	pageSize int
	logger   *slog.Logger
}

// NewEventScraper creates an EventScraper. bus may be nil, in which case
// touched positions are only returned from Run.
func NewEventScraper(source ChangeSource, events domain.EventStore, bus domain.SignalBus, pageSize int, logger *slog.Logger) *EventScraper {
	if pageSize <= 0 {
		pageSize = 500
	}
	return &EventScraper{
		source:   source,
		events:   events,
		bus:      bus,
		pageSize: pageSize,
		logger:   logger.With(slog.String("component", "event_scraper")),
	}
}

// Run pages through operations after the stored cursor and stores them.
// It returns the sorted ids of every position that received an event.
func (s *EventScraper) Run(ctx context.Context) ([]string, error) {
	cursor, err := s.events.LastBlock(ctx)
	if err != nil {
		return nil, fmt.Errorf("event_scraper: cursor: %w", err)
	}
	start := cursor

	touched := map[string]uint64{}
	var stored int64
	for page := 0; page < maxPagesPerRun; page++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		events, err := s.source.FetchTroveChanges(ctx, cursor, s.pageSize)
		if err != nil {
			return nil, fmt.Errorf("event_scraper: fetch since block %d: %w", cursor, err)
		}
		if len(events) == 0 {
			break
		}

		n, err := s.events.InsertBatch(ctx, events)
		if err != nil {
			return nil, fmt.Errorf("event_scraper: store page since block %d: %w", cursor, err)
		}
		stored += n

		for _, e := range events {
			if e.Order.Block > touched[e.PositionID] {
				touched[e.PositionID] = e.Order.Block
			}
		}

		last := events[len(events)-1].Order.Block
		if last <= cursor {
			break
		}
		cursor = last
	}

	ids := make([]string, 0, len(touched))
	for id := range touched {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	s.announce(ctx, ids, touched)

	if len(ids) > 0 {
		s.logger.InfoContext(ctx, "scraped position events",
			slog.Uint64("from_block", start),
			slog.Uint64("to_block", cursor),
			slog.Int64("stored", stored),
			slog.Int("positions", len(ids)),
		)
	}
	s.logLag(ctx, cursor)
	return ids, nil
}

// RunLoop scrapes every interval until ctx is cancelled.
func (s *EventScraper) RunLoop(ctx context.Context, interval time.Duration) error {
	return runEvery(ctx, interval, s.logger, "event scrape", func(ctx context.Context) error {
		_, err := s.Run(ctx)
		return err
	})
}

func (s *EventScraper) announce(ctx context.Context, ids []string, touched map[string]uint64) {
	if s.bus == nil {
		return
	}
	for _, id := range ids {
		payload, _ := json.Marshal(Touched{PositionID: id, Block: touched[id]})
		if err := s.bus.StreamAppend(ctx, StreamTouched, payload); err != nil {
			s.logger.WarnContext(ctx, "announce touched position failed",
				slog.String("position_id", id),
				slog.String("error", err.Error()),
			)
		}
	}
}

func (s *EventScraper) logLag(ctx context.Context, cursor uint64) {
	head, err := s.source.FetchLatestBlock(ctx)
	if err != nil {
		s.logger.DebugContext(ctx, "indexer head unavailable", slog.String("error", err.Error()))
		return
	}
	if head > cursor {
		s.logger.DebugContext(ctx, "indexer lag",
			slog.Uint64("head", head),
			slog.String("behind", humanize.Comma(int64(head-cursor))+" blocks"),
		)
	}
}
