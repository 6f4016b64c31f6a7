package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// PriceCache provides fast access to the latest collateral prices.
type PriceCache interface {
	SetPrice(ctx context.Context, collateral string, price decimal.Decimal, ts time.Time) error
	GetPrice(ctx context.Context, collateral string) (decimal.Decimal, time.Time, error)
}

// TimelineCache holds recently reconstructed timelines.
type TimelineCache interface {
	Set(ctx context.Context, tl Timeline) error
	Get(ctx context.Context, positionID string) (Timeline, error)
	Invalidate(ctx context.Context, positionID string) error
}

// LockManager provides distributed locking.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// RateLimiter provides distributed rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// StreamMessage represents a single entry from a Redis stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus provides pub/sub and durable streams.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}
