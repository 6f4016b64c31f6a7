package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/alanyoungcy/troveledger/internal/domain"
	"github.com/alanyoungcy/troveledger/internal/service"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func change(pos string, block uint64, logIndex uint32) domain.PositionEvent {
	return domain.PositionEvent{
		ID:         fmt.Sprintf("%s-%d-%d", pos, block, logIndex),
		PositionID: pos,
		Kind:       domain.OpAdjust,
		Timestamp:  time.Unix(int64(block)*12, 0).UTC(),
		Order:      domain.EventOrder{Block: block, LogIndex: logIndex},
	}
}

// fakeSource serves stored changes after a block, page by page.
type fakeSource struct {
	changes []domain.PositionEvent
	head    uint64
	calls   []uint64
}

func (f *fakeSource) FetchTroveChanges(_ context.Context, since uint64, first int) ([]domain.PositionEvent, error) {
	f.calls = append(f.calls, since)
	var out []domain.PositionEvent
	for _, c := range f.changes {
		if c.Order.Block > since && len(out) < first {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeSource) FetchLatestBlock(context.Context) (uint64, error) { return f.head, nil }

type memEvents struct {
	mu     sync.Mutex
	byID   map[string]domain.PositionEvent
	posErr error
}

func newMemEvents() *memEvents { return &memEvents{byID: map[string]domain.PositionEvent{}} }

func (m *memEvents) InsertBatch(_ context.Context, events []domain.PositionEvent) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, e := range events {
		if _, ok := m.byID[e.ID]; !ok {
			m.byID[e.ID] = e
			n++
		}
	}
	return n, nil
}

func (m *memEvents) ListByPosition(_ context.Context, id string) ([]domain.PositionEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.PositionEvent
	for _, e := range m.byID {
		if e.PositionID == id {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Order.Less(out[j].Order) })
	return out, nil
}

func (m *memEvents) ListPositionsSince(context.Context, uint64) ([]string, error) { return nil, nil }

func (m *memEvents) ListPositions(_ context.Context, opts domain.ListOpts) ([]string, error) {
	if m.posErr != nil {
		return nil, m.posErr
	}
	m.mu.Lock()
	seen := map[string]bool{}
	for _, e := range m.byID {
		seen[e.PositionID] = true
	}
	m.mu.Unlock()
	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	if opts.Offset >= len(ids) {
		return nil, nil
	}
	ids = ids[opts.Offset:]
	if opts.Limit > 0 && len(ids) > opts.Limit {
		ids = ids[:opts.Limit]
	}
	return ids, nil
}

func (m *memEvents) LastBlock(context.Context) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var last uint64
	for _, e := range m.byID {
		last = max(last, e.Order.Block)
	}
	return last, nil
}

// memStream is an in-memory SignalBus stream with sequential ids.
type memStream struct {
	mu      sync.Mutex
	entries map[string][]domain.StreamMessage
}

func newMemStream() *memStream { return &memStream{entries: map[string][]domain.StreamMessage{}} }

func (m *memStream) Publish(context.Context, string, []byte) error { return nil }

func (m *memStream) Subscribe(context.Context, string) (<-chan []byte, error) {
	return make(chan []byte), nil
}

func (m *memStream) StreamAppend(_ context.Context, stream string, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := fmt.Sprintf("%d-0", len(m.entries[stream])+1)
	m.entries[stream] = append(m.entries[stream], domain.StreamMessage{ID: id, Payload: payload})
	return nil
}

func (m *memStream) StreamRead(_ context.Context, stream, lastID string, count int) ([]domain.StreamMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var after int
	if lastID != "0" {
		_, _ = fmt.Sscanf(strings.TrimSuffix(lastID, "-0"), "%d", &after)
	}
	all := m.entries[stream]
	if after >= len(all) {
		return nil, nil
	}
	out := all[after:]
	if len(out) > count {
		out = out[:count]
	}
	return append([]domain.StreamMessage(nil), out...), nil
}

type recordingBatch struct {
	mu     sync.Mutex
	rounds [][]string
	fail   map[string]error
}

func (r *recordingBatch) RebuildAll(_ context.Context, ids []string) (service.RebuildReport, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rounds = append(r.rounds, ids)
	report := service.RebuildReport{Failed: map[string]error{}}
	for _, id := range ids {
		if err := r.fail[id]; err != nil {
			report.Failed[id] = err
			continue
		}
		report.Rebuilt++
	}
	return report, nil
}
