package subgraph

import (
	"sort"

	"github.com/alanyoungcy/troveledger/internal/domain"
)

// sortEvents puts events in chain order. The indexer orders by block only.
func sortEvents(events []domain.PositionEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Order.Less(events[j].Order)
	})
}

// trimPartialBlock drops the events of the final block, which a full page
// may have cut short. It reports false when the page holds a single block
// and nothing would remain.
func trimPartialBlock(events []domain.PositionEvent) ([]domain.PositionEvent, bool) {
	last := events[len(events)-1].Order.Block
	i := len(events)
	for i > 0 && events[i-1].Order.Block == last {
		i--
	}
	if i == 0 {
		return nil, false
	}
	return events[:i], true
}
