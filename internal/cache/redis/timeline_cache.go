package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/troveledger/internal/domain"
)

var _ domain.TimelineCache = (*TimelineCache)(nil)

const defaultTimelineTTL = 10 * time.Minute

// TimelineCache implements domain.TimelineCache with one JSON string per
// position at "timeline:{positionID}".
type TimelineCache struct {
	c   *Client
	ttl time.Duration
}

// NewTimelineCache creates a TimelineCache. A non-positive ttl selects
// the default.
func NewTimelineCache(c *Client, ttl time.Duration) *TimelineCache {
	if ttl <= 0 {
		ttl = defaultTimelineTTL
	}
	return &TimelineCache{c: c, ttl: ttl}
}

// Set caches tl, replacing any previous entry.
func (tc *TimelineCache) Set(ctx context.Context, tl domain.Timeline) error {
	data, err := json.Marshal(tl)
	if err != nil {
		return fmt.Errorf("redis: marshal timeline %s: %w", tl.PositionID, err)
	}
	if err := tc.c.rdb.Set(ctx, tc.c.key("timeline", tl.PositionID), data, tc.ttl).Err(); err != nil {
		return fmt.Errorf("redis: set timeline %s: %w", tl.PositionID, err)
	}
	return nil
}

// Get returns a cached timeline, or domain.ErrNotFound.
func (tc *TimelineCache) Get(ctx context.Context, positionID string) (domain.Timeline, error) {
	data, err := tc.c.rdb.Get(ctx, tc.c.key("timeline", positionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.Timeline{}, domain.ErrNotFound
		}
		return domain.Timeline{}, fmt.Errorf("redis: get timeline %s: %w", positionID, err)
	}
	var tl domain.Timeline
	if err := json.Unmarshal(data, &tl); err != nil {
		return domain.Timeline{}, fmt.Errorf("redis: unmarshal timeline %s: %w", positionID, err)
	}
	return tl, nil
}

// Invalidate drops the cached timeline of a position.
func (tc *TimelineCache) Invalidate(ctx context.Context, positionID string) error {
	if err := tc.c.rdb.Del(ctx, tc.c.key("timeline", positionID)).Err(); err != nil {
		return fmt.Errorf("redis: invalidate timeline %s: %w", positionID, err)
	}
	return nil
}
