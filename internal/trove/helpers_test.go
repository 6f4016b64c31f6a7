package trove

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/troveledger/internal/domain"
)

const testPosition = "0xabc-1"

var (
	t0   = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	year = 365 * 24 * time.Hour

	owner    = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	newOwner = common.HexToAddress("0x00000000000000000000000000000000000000b2")
	manager  = common.HexToAddress("0x00000000000000000000000000000000000000c3")
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func nd(s string) decimal.NullDecimal { return decimal.NewNullDecimal(d(s)) }

// event builds an event at block with zero deltas.
func event(kind domain.OperationKind, block uint64, ts time.Time) domain.PositionEvent {
	return domain.PositionEvent{
		ID:         fmt.Sprintf("%s-%d", testPosition, block),
		PositionID: testPosition,
		Kind:       kind,
		Timestamp:  ts,
		Order:      domain.EventOrder{Block: block},
	}
}

func openEvent(debt, coll, rate, price string) domain.PositionEvent {
	ev := event(domain.OpOpen, 100, t0)
	ev.Owner = owner
	ev.DebtChange = d(debt)
	ev.CollChange = d(coll)
	ev.InterestRate = nd(rate)
	ev.Price = nd(price)
	return ev
}
