package pipeline

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/troveledger/internal/domain"
)

func TestScraperPagesFromStoredCursor(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	events := newMemEvents()
	_, err := events.InsertBatch(ctx, []domain.PositionEvent{change("a", 10, 0)})
	require.NoError(err)

	source := &fakeSource{head: 40, changes: []domain.PositionEvent{
		change("a", 10, 0),
		change("b", 11, 0),
		change("a", 12, 0),
		change("c", 13, 0),
		change("b", 14, 1),
	}}
	bus := newMemStream()

	ids, err := NewEventScraper(source, events, bus, 2, quietLogger()).Run(ctx)
	require.NoError(err)
	require.Equal([]string{"a", "b", "c"}, ids)
	require.Equal([]uint64{10, 12, 14}, source.calls)

	last, _ := events.LastBlock(ctx)
	require.Equal(uint64(14), last)

	entries := bus.entries[StreamTouched]
	require.Len(entries, 3)
	var first Touched
	require.NoError(json.Unmarshal(entries[0].Payload, &first))
	require.Equal(Touched{PositionID: "a", Block: 12}, first)
}

func TestScraperNothingNew(t *testing.T) {
	require := require.New(t)

	source := &fakeSource{}
	bus := newMemStream()
	ids, err := NewEventScraper(source, newMemEvents(), bus, 10, quietLogger()).Run(context.Background())
	require.NoError(err)
	require.Empty(ids)
	require.Empty(bus.entries[StreamTouched])
}
