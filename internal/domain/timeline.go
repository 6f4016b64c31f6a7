package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// Transition is the state-machine edge an event takes the position along.
type Transition string

const (
	TransitionOpened              Transition = "opened"
	TransitionAdjusted            Transition = "adjusted"
	TransitionRateChanged         Transition = "rate_changed"
	TransitionBatchJoined         Transition = "batch_joined"
	TransitionBatchLeft           Transition = "batch_left"
	TransitionBatchUpdated        Transition = "batch_updated"
	TransitionRedeemed            Transition = "redeemed"
	TransitionPartiallyLiquidated Transition = "partially_liquidated"
	TransitionLiquidationGain     Transition = "liquidation_gain"
	TransitionTransferred         Transition = "transferred"
	TransitionClosed              Transition = "closed"
	TransitionFullyLiquidated     Transition = "fully_liquidated"
)

// Label is the display name consumers show for the transition.
func (t Transition) Label() string {
	switch t {
	case TransitionOpened:
		return "Open"
	case TransitionAdjusted:
		return "Adjust"
	case TransitionRateChanged:
		return "Interest Rate Change"
	case TransitionBatchJoined:
		return "Join Delegate"
	case TransitionBatchLeft:
		return "Leave Delegate"
	case TransitionBatchUpdated:
		return "Delegate Update"
	case TransitionRedeemed:
		return "Redemption"
	case TransitionPartiallyLiquidated:
		return "Partial Liquidation"
	case TransitionLiquidationGain:
		return "Liquidation Gain"
	case TransitionTransferred:
		return "Transfer"
	case TransitionClosed:
		return "Close"
	case TransitionFullyLiquidated:
		return "Liquidation"
	default:
		return string(t)
	}
}

// EnrichedEvent is one event with the state that brackets it and the
// economics derived from it.
type EnrichedEvent struct {
	Event      PositionEvent    `json:"event"`
	Transition Transition       `json:"transition"`
	Before     PositionSnapshot `json:"before"`
	After      PositionSnapshot `json:"after"`

	// Accrual covers the interval from Before.LastUpdate to the event.
	Accrual InterestAccrual `json:"accrual"`

	Gain        *RedistributionGain     `json:"gain,omitempty"`
	Attribution *LiquidationAttribution `json:"attribution,omitempty"`
	Redemption  *RedemptionOutcome      `json:"redemption,omitempty"`

	DelegateName string `json:"delegate_name,omitempty"`
}

// Timeline is a reconstructed position history.
type Timeline struct {
	PositionID string          `json:"position_id"`
	Events     []EnrichedEvent `json:"events"`
	BuiltAt    time.Time       `json:"built_at"`
}

// Last returns the final snapshot, or the zero snapshot for an empty
// timeline.
func (t Timeline) Last() PositionSnapshot {
	if len(t.Events) == 0 {
		return PositionSnapshot{Status: PositionStatusNone}
	}
	return t.Events[len(t.Events)-1].After
}

// PriceContext supplies collateral prices in units of the debt asset.
type PriceContext interface {
	// PriceAt returns the price in force at ts, or ErrNoPrice.
	PriceAt(ts time.Time) (decimal.Decimal, error)
	// Current returns the latest price, or ErrNoPrice.
	Current() (decimal.Decimal, error)
}

// DelegateDirectory resolves batch manager addresses to display names.
// Implementations are preloaded reference data; lookups do no I/O.
type DelegateDirectory interface {
	Name(manager common.Address) (string, bool)
}
