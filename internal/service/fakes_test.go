package service

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/troveledger/internal/domain"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeEvents struct {
	byPosition map[string][]domain.PositionEvent
	err        error
}

func (f *fakeEvents) InsertBatch(_ context.Context, events []domain.PositionEvent) (int64, error) {
	for _, e := range events {
		f.byPosition[e.PositionID] = append(f.byPosition[e.PositionID], e)
	}
	return int64(len(events)), nil
}

func (f *fakeEvents) ListByPosition(_ context.Context, id string) ([]domain.PositionEvent, error) {
	return f.byPosition[id], f.err
}

func (f *fakeEvents) ListPositionsSince(context.Context, uint64) ([]string, error) { return nil, nil }

func (f *fakeEvents) ListPositions(context.Context, domain.ListOpts) ([]string, error) {
	ids := make([]string, 0, len(f.byPosition))
	for id := range f.byPosition {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (f *fakeEvents) LastBlock(context.Context) (uint64, error) { return 0, nil }

type fakeTimelines struct {
	mu    sync.Mutex
	saved map[string]domain.Timeline
	saves int
}

func newFakeTimelines() *fakeTimelines {
	return &fakeTimelines{saved: map[string]domain.Timeline{}}
}

func (f *fakeTimelines) Save(_ context.Context, tl domain.Timeline) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved[tl.PositionID] = tl
	f.saves++
	return nil
}

func (f *fakeTimelines) Get(_ context.Context, id string) (domain.Timeline, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	tl, ok := f.saved[id]
	if !ok {
		return domain.Timeline{}, domain.ErrNotFound
	}
	return tl, nil
}

type fakeCache struct {
	fakeTimelines
	setErr error
}

func newFakeCache() *fakeCache {
	return &fakeCache{fakeTimelines: fakeTimelines{saved: map[string]domain.Timeline{}}}
}

func (f *fakeCache) Set(ctx context.Context, tl domain.Timeline) error {
	if f.setErr != nil {
		return f.setErr
	}
	return f.Save(ctx, tl)
}

func (f *fakeCache) Invalidate(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.saved, id)
	return nil
}

type fakeDelegates struct {
	byManager map[common.Address]domain.Delegate
}

func (f *fakeDelegates) Upsert(_ context.Context, d domain.Delegate) error {
	d.UpdatedAt = time.Unix(1, 0)
	f.byManager[d.Manager] = d
	return nil
}

func (f *fakeDelegates) Get(_ context.Context, m common.Address) (domain.Delegate, error) {
	d, ok := f.byManager[m]
	if !ok {
		return domain.Delegate{}, domain.ErrNotFound
	}
	return d, nil
}

func (f *fakeDelegates) List(context.Context) ([]domain.Delegate, error) {
	out := make([]domain.Delegate, 0, len(f.byManager))
	for _, d := range f.byManager {
		out = append(out, d)
	}
	return out, nil
}

type fakeLocks struct {
	mu   sync.Mutex
	held map[string]bool
}

func (f *fakeLocks) Acquire(_ context.Context, key string, _ time.Duration) (func(), error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.held[key] {
		return nil, domain.ErrLockHeld
	}
	f.held[key] = true
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.held, key)
	}, nil
}

type fakePrices struct {
	points []domain.PricePoint
}

func (f *fakePrices) Insert(_ context.Context, p domain.PricePoint) error {
	f.points = append(f.points, p)
	return nil
}

func (f *fakePrices) ListRange(_ context.Context, _ string, _, to time.Time) ([]domain.PricePoint, error) {
	var out []domain.PricePoint
	for _, p := range f.points {
		if !p.Timestamp.After(to) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakePrices) Latest(context.Context, string) (domain.PricePoint, error) {
	if len(f.points) == 0 {
		return domain.PricePoint{}, domain.ErrNotFound
	}
	return f.points[len(f.points)-1], nil
}

type fakePriceCache struct {
	price decimal.Decimal
	ts    time.Time
	set   bool
}

func (f *fakePriceCache) SetPrice(_ context.Context, _ string, p decimal.Decimal, ts time.Time) error {
	f.price, f.ts, f.set = p, ts, true
	return nil
}

func (f *fakePriceCache) GetPrice(context.Context, string) (decimal.Decimal, time.Time, error) {
	if !f.set {
		return decimal.Zero, time.Time{}, domain.ErrNotFound
	}
	return f.price, f.ts, nil
}

type fakeBus struct {
	mu        sync.Mutex
	published map[string][][]byte
}

func newFakeBus() *fakeBus { return &fakeBus{published: map[string][][]byte{}} }

func (f *fakeBus) Publish(_ context.Context, channel string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published[channel] = append(f.published[channel], payload)
	return nil
}

func (f *fakeBus) Subscribe(context.Context, string) (<-chan []byte, error) {
	return make(chan []byte), nil
}

func (f *fakeBus) StreamAppend(context.Context, string, []byte) error { return nil }

func (f *fakeBus) StreamRead(context.Context, string, string, int) ([]domain.StreamMessage, error) {
	return nil, nil
}

type fakeAudit struct {
	mu      sync.Mutex
	entries []domain.AuditEntry
}

func (f *fakeAudit) Log(_ context.Context, event string, detail map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, domain.AuditEntry{Event: event, Detail: detail})
	return nil
}

func (f *fakeAudit) List(context.Context, string, domain.ListOpts) ([]domain.AuditEntry, error) {
	return f.entries, nil
}

type fakeAlerts struct {
	mu     sync.Mutex
	events []string
}

func (f *fakeAlerts) Notify(_ context.Context, event, _, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return nil
}

type fakeFeed struct {
	point domain.PricePoint
	err   error
}

func (f *fakeFeed) LatestPrice(context.Context) (domain.PricePoint, error) {
	return f.point, f.err
}
