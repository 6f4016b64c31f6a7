package trove

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/troveledger/internal/decmath"
	"github.com/alanyoungcy/troveledger/internal/domain"
)

var one = decimal.NewFromInt(1)

// Attribute resolves one position's share of a system liquidation. pre is
// the position immediately before liquidation with interest and pending
// redistribution folded into Debt; its Debt and Coll are what was cleared.
//
// The pool share of the system liquidation decides the method. Surplus is
// the collateral left after covering the pool-absorbed debt plus penalty at
// pre.Price, scaled by the pool share, so pure redistribution never yields
// a surplus.
func Attribute(liq domain.SystemLiquidation, pre domain.PositionSnapshot, penalty decimal.Decimal) (domain.LiquidationAttribution, error) {
	total := liq.DebtOffsetByPool.Add(liq.DebtRedistributed)
	if liq.DebtOffsetByPool.IsNegative() || liq.DebtRedistributed.IsNegative() || !total.IsPositive() {
		return domain.LiquidationAttribution{}, fmt.Errorf("liquidation has no resolution: offset %s redistributed %s",
			liq.DebtOffsetByPool, liq.DebtRedistributed)
	}
	share := decmath.Div(liq.DebtOffsetByPool, total)

	attr := domain.LiquidationAttribution{
		DebtCleared:    pre.EntireDebt(),
		CollLiquidated: pre.Coll,
		PoolShare:      share,
		CollSurplus:    decimal.Zero,
	}
	switch {
	case liq.DebtRedistributed.IsZero():
		attr.Method = domain.ResolutionPoolAbsorption
	case liq.DebtOffsetByPool.IsZero():
		attr.Method = domain.ResolutionRedistribution
	default:
		attr.Method = domain.ResolutionMixed
	}

	if attr.Method == domain.ResolutionRedistribution {
		attr.DebtRedistributed = attr.DebtCleared
		attr.CollRedistributed = attr.CollLiquidated
		attr.DebtOffsetByPool = decimal.Zero
		attr.CollSentToPool = decimal.Zero
		attr.PoolShare = decimal.Zero
		return attr, nil
	}
	if !pre.Price.IsPositive() {
		return domain.LiquidationAttribution{}, fmt.Errorf("pool absorption needs a collateral price: %w", domain.ErrNoPrice)
	}

	attr.DebtOffsetByPool = attr.DebtCleared.Mul(share)
	attr.DebtRedistributed = attr.DebtCleared.Sub(attr.DebtOffsetByPool)

	poolColl := attr.CollLiquidated.Mul(share)
	needed := decmath.Div(attr.DebtOffsetByPool.Mul(one.Add(penalty)), pre.Price)
	if needed.GreaterThan(poolColl) {
		needed = poolColl
	}
	attr.CollSentToPool = needed
	attr.CollSurplus = poolColl.Sub(needed)
	attr.CollRedistributed = attr.CollLiquidated.Sub(poolColl)
	return attr, nil
}

// Receiver is a surviving position eligible for redistribution, weighted
// by its stake.
type Receiver struct {
	PositionID string
	Stake      decimal.Decimal
}

// Redistribute splits the redistributed debt and collateral of attr across
// receivers pro-rata by stake. The last receiver takes the remainder so the
// gains sum exactly to the redistributed amounts.
func Redistribute(attr domain.LiquidationAttribution, receivers []Receiver) ([]domain.RedistributionGain, error) {
	if len(receivers) == 0 {
		if attr.DebtRedistributed.IsZero() && attr.CollRedistributed.IsZero() {
			return nil, nil
		}
		return nil, &domain.InputConstraintError{Field: "receivers", Reason: "redistribution with no receivers"}
	}
	totalStake := decimal.Zero
	for _, r := range receivers {
		if r.Stake.IsNegative() {
			return nil, &domain.InputConstraintError{Field: "receivers", Reason: fmt.Sprintf("negative stake for %s", r.PositionID)}
		}
		totalStake = totalStake.Add(r.Stake)
	}
	if !totalStake.IsPositive() {
		return nil, &domain.InputConstraintError{Field: "receivers", Reason: "total stake is zero"}
	}

	gains := make([]domain.RedistributionGain, len(receivers))
	debtLeft, collLeft := attr.DebtRedistributed, attr.CollRedistributed
	for i, r := range receivers {
		g := domain.RedistributionGain{PositionID: r.PositionID}
		if i == len(receivers)-1 {
			g.Debt, g.Coll = debtLeft, collLeft
		} else {
			g.Debt = decmath.Div(attr.DebtRedistributed.Mul(r.Stake), totalStake)
			g.Coll = decmath.Div(attr.CollRedistributed.Mul(r.Stake), totalStake)
			debtLeft = debtLeft.Sub(g.Debt)
			collLeft = collLeft.Sub(g.Coll)
		}
		gains[i] = g
	}
	return gains, nil
}

// GainFromEvent is the redistribution gain an event applied to its
// position ahead of the operation's own deltas.
func GainFromEvent(ev domain.PositionEvent) domain.RedistributionGain {
	return domain.RedistributionGain{
		PositionID: ev.PositionID,
		Debt:       ev.RedistDebtGain,
		Coll:       ev.RedistCollGain,
	}
}
