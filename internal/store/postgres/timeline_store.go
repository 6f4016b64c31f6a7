package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/troveledger/internal/domain"
)

var _ domain.TimelineStore = (*TimelineStore)(nil)

// TimelineStore implements domain.TimelineStore using PostgreSQL. Each
// position keeps only its latest reconstruction, stored as JSONB.
type TimelineStore struct {
	pool *pgxpool.Pool
}

// NewTimelineStore creates a new TimelineStore backed by the given connection pool.
func NewTimelineStore(pool *pgxpool.Pool) *TimelineStore {
	return &TimelineStore{pool: pool}
}

// Save replaces the stored timeline of tl.PositionID.
func (s *TimelineStore) Save(ctx context.Context, tl domain.Timeline) error {
	eventsJSON, err := json.Marshal(tl.Events)
	if err != nil {
		return fmt.Errorf("postgres: marshal timeline %s: %w", tl.PositionID, err)
	}

	const query = `
		INSERT INTO position_timelines (position_id, events, event_count, status, built_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (position_id) DO UPDATE SET
			events = EXCLUDED.events,
			event_count = EXCLUDED.event_count,
			status = EXCLUDED.status,
			built_at = EXCLUDED.built_at`

	_, err = s.pool.Exec(ctx, query,
		tl.PositionID, eventsJSON, len(tl.Events), string(tl.Last().Status), tl.BuiltAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: save timeline %s: %w", tl.PositionID, err)
	}
	return nil
}

// Get returns the stored timeline, or domain.ErrNotFound.
func (s *TimelineStore) Get(ctx context.Context, positionID string) (domain.Timeline, error) {
	const query = `SELECT position_id, events, built_at FROM position_timelines WHERE position_id = $1`

	var (
		tl         domain.Timeline
		eventsJSON []byte
	)
	err := s.pool.QueryRow(ctx, query, positionID).Scan(&tl.PositionID, &eventsJSON, &tl.BuiltAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Timeline{}, domain.ErrNotFound
		}
		return domain.Timeline{}, fmt.Errorf("postgres: get timeline %s: %w", positionID, err)
	}
	if err := json.Unmarshal(eventsJSON, &tl.Events); err != nil {
		return domain.Timeline{}, fmt.Errorf("postgres: unmarshal timeline %s: %w", positionID, err)
	}
	tl.BuiltAt = tl.BuiltAt.UTC()
	return tl, nil
}
