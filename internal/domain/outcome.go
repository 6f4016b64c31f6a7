package domain

import "github.com/shopspring/decimal"

// ResolutionMethod is how a liquidation's debt was absorbed.
type ResolutionMethod string

const (
	ResolutionPoolAbsorption ResolutionMethod = "pool_absorption"
	ResolutionRedistribution ResolutionMethod = "redistribution"
	ResolutionMixed          ResolutionMethod = "mixed"
)

// LiquidationAttribution is one liquidated position's share of a system
// liquidation. CollSurplus is zero under pure redistribution.
type LiquidationAttribution struct {
	DebtCleared    decimal.Decimal  `json:"debt_cleared"`
	CollLiquidated decimal.Decimal  `json:"coll_liquidated"`
	Method         ResolutionMethod `json:"method"`

	// PoolShare is the fraction of the system liquidation absorbed by the
	// stability pool, in [0, 1].
	PoolShare         decimal.Decimal `json:"pool_share"`
	DebtOffsetByPool  decimal.Decimal `json:"debt_offset_by_pool"`
	CollSentToPool    decimal.Decimal `json:"coll_sent_to_pool"`
	DebtRedistributed decimal.Decimal `json:"debt_redistributed"`
	CollRedistributed decimal.Decimal `json:"coll_redistributed"`
	CollSurplus       decimal.Decimal `json:"coll_surplus"`
}

// RedistributionGain is debt and collateral a surviving position received
// from other positions' liquidations.
type RedistributionGain struct {
	PositionID string          `json:"position_id"`
	Debt       decimal.Decimal `json:"debt"`
	Coll       decimal.Decimal `json:"coll"`
}

// IsZero reports whether nothing was received.
func (g RedistributionGain) IsZero() bool {
	return g.Debt.IsZero() && g.Coll.IsZero()
}

// ZombieReason distinguishes the two zombie cases.
type ZombieReason string

const (
	ZombieNone         ZombieReason = ""
	ZombieBelowMinimum ZombieReason = "below_minimum"
	ZombieZeroDebt     ZombieReason = "zero_debt"
)

// ZombieClassification marks an open position whose debt is under the
// protocol minimum.
type ZombieClassification struct {
	Zombie bool         `json:"zombie"`
	Reason ZombieReason `json:"reason,omitempty"`
}

// Message is a human-readable description of the classification.
func (z ZombieClassification) Message() string {
	switch z.Reason {
	case ZombieBelowMinimum:
		return "debt below the minimum: no further redemptions until borrowed back above it"
	case ZombieZeroDebt:
		return "fully redeemed: zero debt with collateral remaining, borrow above the minimum to revive"
	default:
		return ""
	}
}

// RedemptionOutcome is the owner's economics of one redemption.
// OpportunityPL is only set when a current price was supplied and may
// diverge in sign from RealizedPL.
type RedemptionOutcome struct {
	DebtCleared              decimal.Decimal      `json:"debt_cleared"`
	CollateralRedeemed       decimal.Decimal      `json:"collateral_redeemed"`
	FeeRetained              decimal.Decimal      `json:"fee_retained"`
	CollateralTransferredOut decimal.Decimal      `json:"collateral_transferred_out"`
	PriceAtRedemption        decimal.Decimal      `json:"price_at_redemption"`
	RealizedPL               decimal.Decimal      `json:"realized_pl"`
	CurrentPrice             decimal.NullDecimal  `json:"current_price"`
	OpportunityPL            decimal.NullDecimal  `json:"opportunity_pl"`
	DebtAfter                decimal.Decimal      `json:"debt_after"`
	Zombie                   ZombieClassification `json:"zombie"`
}
