package domain

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// EventStore persists raw position events from the indexer.
type EventStore interface {
	// InsertBatch stores events, ignoring ids that already exist, and
	// returns the number of new rows.
	InsertBatch(ctx context.Context, events []PositionEvent) (int64, error)
	// ListByPosition returns a position's events in chain order.
	ListByPosition(ctx context.Context, positionID string) ([]PositionEvent, error)
	// ListPositionsSince returns positions with events in blocks > block.
	ListPositionsSince(ctx context.Context, block uint64) ([]string, error)
	ListPositions(ctx context.Context, opts ListOpts) ([]string, error)
	// LastBlock returns the highest block stored, or zero.
	LastBlock(ctx context.Context) (uint64, error)
}

// PriceStore persists historical collateral prices.
type PriceStore interface {
	Insert(ctx context.Context, p PricePoint) error
	ListRange(ctx context.Context, collateral string, from, to time.Time) ([]PricePoint, error)
	Latest(ctx context.Context, collateral string) (PricePoint, error)
}

// TimelineStore persists reconstructed timelines.
type TimelineStore interface {
	Save(ctx context.Context, tl Timeline) error
	Get(ctx context.Context, positionID string) (Timeline, error)
}

// Delegate is a named batch manager.
type Delegate struct {
	Manager   common.Address
	Name      string
	UpdatedAt time.Time
}

// DelegateStore persists delegate display names.
type DelegateStore interface {
	Upsert(ctx context.Context, d Delegate) error
	Get(ctx context.Context, manager common.Address) (Delegate, error)
	List(ctx context.Context) ([]Delegate, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	// List returns entries newest first. An empty event matches all.
	List(ctx context.Context, event string, opts ListOpts) ([]AuditEntry, error)
}
