// Package trove reconstructs a position's financial state from its event
// history. Everything here is pure: a reconstruction depends only on the
// events and prices passed in, so callers may run many positions
// concurrently without coordination.
package trove

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/troveledger/internal/decmath"
	"github.com/alanyoungcy/troveledger/internal/domain"
)

// Params are the protocol constants the engine depends on.
type Params struct {
	// MinDebt is the minimum debt of a healthy open position.
	MinDebt decimal.Decimal
	// PoolLiquidationPenalty is the fraction of pool-absorbed debt paid to
	// the stability pool on top of the debt, e.g. 0.05.
	PoolLiquidationPenalty decimal.Decimal
	// ResidualTolerance bounds the debt and collateral a terminal event may
	// leave behind before it is treated as an upstream data error. It is
	// applied to amounts truncated to whole wei.
	ResidualTolerance decimal.Decimal
}

// DefaultParams returns the mainnet constants with an exact residual check.
func DefaultParams() Params {
	return Params{
		MinDebt:                decimal.NewFromInt(2000),
		PoolLiquidationPenalty: decimal.RequireFromString("0.05"),
		ResidualTolerance:      decimal.Zero,
	}
}

// Reconstructor walks position histories.
type Reconstructor struct {
	params    Params
	delegates domain.DelegateDirectory
}

// NewReconstructor creates a Reconstructor. delegates may be nil.
func NewReconstructor(params Params, delegates domain.DelegateDirectory) *Reconstructor {
	return &Reconstructor{params: params, delegates: delegates}
}

// Params returns the constants this reconstructor runs with.
func (r *Reconstructor) Params() Params { return r.params }

// ReconstructPosition reconstructs with DefaultParams and no delegate names.
func ReconstructPosition(positionID string, events []domain.PositionEvent, prices domain.PriceContext) ([]domain.EnrichedEvent, error) {
	return NewReconstructor(DefaultParams(), nil).Reconstruct(positionID, events, prices)
}

// Reconstruct produces one EnrichedEvent per event. Events must be in
// strictly increasing chain order, start with an open and never follow a
// terminal event. The first inconsistency is returned as a
// *domain.DataIntegrityError and no partial timeline is returned.
func (r *Reconstructor) Reconstruct(positionID string, events []domain.PositionEvent, prices domain.PriceContext) ([]domain.EnrichedEvent, error) {
	out := make([]domain.EnrichedEvent, 0, len(events))
	before := domain.PositionSnapshot{Status: domain.PositionStatusNone}

	for i, ev := range events {
		if ev.PositionID != "" && ev.PositionID != positionID {
			return nil, integrity(positionID, ev, fmt.Sprintf("event belongs to position %s", ev.PositionID))
		}
		if i > 0 && !events[i-1].Order.Less(ev.Order) {
			return nil, integrity(positionID, ev, fmt.Sprintf("out of order: %s does not follow %s", ev.Order, events[i-1].Order))
		}
		if before.Status.Terminal() {
			return nil, integrity(positionID, ev, fmt.Sprintf("%s follows terminal state %s", ev.Kind, before.Status))
		}
		if before.Status == domain.PositionStatusNone && ev.Kind != domain.OpOpen {
			return nil, integrity(positionID, ev, fmt.Sprintf("history starts with %s instead of %s", ev.Kind, domain.OpOpen))
		}
		if before.Status != domain.PositionStatusNone && ev.Kind == domain.OpOpen {
			return nil, integrity(positionID, ev, "position opened twice")
		}
		if ev.Timestamp.Before(before.LastUpdate) {
			return nil, integrity(positionID, ev, "timestamp precedes previous event")
		}

		ee, err := r.apply(before, ev, prices)
		if err != nil {
			var die *domain.DataIntegrityError
			if errors.As(err, &die) || errors.Is(err, domain.ErrNoPrice) {
				return nil, fillIDs(err, positionID, ev)
			}
			return nil, integrity(positionID, ev, err.Error())
		}
		out = append(out, ee)
		before = ee.After
	}
	return out, nil
}

// apply derives one event's transition. The pre-state is before with
// accrual and pending redistribution gains folded in.
func (r *Reconstructor) apply(before domain.PositionSnapshot, ev domain.PositionEvent, prices domain.PriceContext) (domain.EnrichedEvent, error) {
	ee := domain.EnrichedEvent{Event: ev, Before: before}

	accrual := domain.InterestAccrual{
		AccruedInterest:      decimal.Zero,
		AccruedManagementFee: decimal.Zero,
		EntireDebt:           before.Debt,
	}
	if before.Open() {
		var err error
		accrual, err = Accrue(before.Debt, before.InterestRate, before.LastUpdate, ev.Timestamp, batchOf(before))
		if err != nil {
			return ee, err
		}
	}
	ee.Accrual = accrual

	price, err := r.priceFor(ev, before, prices)
	if err != nil {
		return ee, err
	}

	pre := before
	pre.Debt = accrual.EntireDebt.Add(ev.RedistDebtGain)
	pre.Coll = before.Coll.Add(ev.RedistCollGain)
	pre.AccruedInterest = decimal.Zero
	pre.AccruedManagementFee = decimal.Zero
	pre.Price = price

	if gain := GainFromEvent(ev); !gain.IsZero() {
		ee.Gain = &gain
	}

	after := pre
	after.LastUpdate = ev.Timestamp

	switch ev.Kind {
	case domain.OpOpen:
		after.Status = domain.PositionStatusActive
		after.Owner = ev.Owner
		if ev.InterestRate.Valid {
			after.InterestRate = ev.InterestRate.Decimal
		}
		if ev.BatchManager != (common.Address{}) {
			joinBatch(&after, ev)
		}
		ee.Transition = domain.TransitionOpened

	case domain.OpAdjust:
		ee.Transition = domain.TransitionAdjusted

	case domain.OpChangeRate:
		if ev.InterestRate.Valid {
			after.InterestRate = ev.InterestRate.Decimal
		}
		ee.Transition = domain.TransitionRateChanged

	case domain.OpJoinBatch:
		joinBatch(&after, ev)
		ee.Transition = domain.TransitionBatchJoined

	case domain.OpLeaveBatch:
		after.InBatch = false
		after.BatchManager = common.Address{}
		after.ManagementFee = decimal.Zero
		if ev.InterestRate.Valid {
			after.InterestRate = ev.InterestRate.Decimal
		}
		ee.Transition = domain.TransitionBatchLeft

	case domain.OpBatchManagerRateChange:
		if ev.InterestRate.Valid {
			after.InterestRate = ev.InterestRate.Decimal
		}
		ee.Transition = domain.TransitionBatchUpdated

	case domain.OpBatchManagerFeeChange:
		if ev.ManagementFee.Valid {
			after.ManagementFee = ev.ManagementFee.Decimal
		}
		ee.Transition = domain.TransitionBatchUpdated

	case domain.OpApplyPendingDebt:
		ee.Transition = domain.TransitionLiquidationGain

	case domain.OpTransfer:
		after.Owner = ev.Owner
		ee.Transition = domain.TransitionTransferred

	case domain.OpRedeem:
		var current decimal.NullDecimal
		if prices != nil {
			if p, err := prices.Current(); err == nil {
				current = decimal.NewNullDecimal(p)
			}
		}
		outcome, err := Evaluate(ev, pre, price, current, r.params.MinDebt)
		if err != nil {
			return ee, err
		}
		ee.Redemption = &outcome
		ee.Transition = domain.TransitionRedeemed

	case domain.OpClose:
		ee.Transition = domain.TransitionClosed

	case domain.OpLiquidate:
		if ev.Liquidation == nil {
			return ee, fmt.Errorf("liquidation without system totals")
		}

	default:
		return ee, fmt.Errorf("unknown operation %q", ev.Kind)
	}

	after.Debt = after.Debt.Add(ev.DebtChange).Add(ev.UpfrontFee)
	after.Coll = after.Coll.Add(ev.CollChange)

	switch ev.Kind {
	case domain.OpClose:
		if err := r.requireZeroResidual(after); err != nil {
			return ee, err
		}
		terminate(&after, domain.PositionStatusClosed)

	case domain.OpLiquidate:
		cleared := pre
		full := r.negligible(after.Coll)
		if full {
			if !r.negligible(after.Debt) {
				return ee, &domain.DataIntegrityError{Reason: fmt.Sprintf("liquidation seizes all collateral but leaves debt %s", after.Debt)}
			}
		} else {
			// Only the liquidated part is attributed.
			cleared.Debt = ev.DebtChange.Abs()
			cleared.Coll = ev.CollChange.Abs()
		}
		attr, err := Attribute(*ev.Liquidation, cleared, r.params.PoolLiquidationPenalty)
		if err != nil {
			return ee, err
		}
		ee.Attribution = &attr
		if full {
			terminate(&after, domain.PositionStatusLiquidated)
			ee.Transition = domain.TransitionFullyLiquidated
		} else {
			ee.Transition = domain.TransitionPartiallyLiquidated
		}
	}

	if after.Status == domain.PositionStatusActive {
		if err := r.requireNonNegative(&after); err != nil {
			return ee, err
		}
		zombie := domain.ZombieClassification{}
		switch {
		case ee.Redemption != nil:
			zombie = ee.Redemption.Zombie
		case before.Zombie:
			zombie = ClassifyZombie(after.Debt, r.params.MinDebt)
		}
		after.Zombie = zombie.Zombie
		after.ZombieReason = zombie.Reason
	}

	value(&after)
	if after.InBatch && r.delegates != nil {
		if name, ok := r.delegates.Name(after.BatchManager); ok {
			ee.DelegateName = name
		}
	}
	ee.After = after
	return ee, nil
}

// priceFor prefers the price recorded on the event, then the price
// context. Only redemptions and liquidations require a price; other events
// carry the previous price forward when none is known.
func (r *Reconstructor) priceFor(ev domain.PositionEvent, before domain.PositionSnapshot, prices domain.PriceContext) (decimal.Decimal, error) {
	if ev.Price.Valid && ev.Price.Decimal.IsPositive() {
		return ev.Price.Decimal, nil
	}
	if prices != nil {
		p, err := prices.PriceAt(ev.Timestamp)
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, domain.ErrNoPrice) {
			return decimal.Zero, err
		}
	}
	if ev.Kind == domain.OpRedeem || ev.Kind == domain.OpLiquidate {
		return decimal.Zero, fmt.Errorf("%s at %s: %w", ev.Kind, ev.Timestamp.UTC(), domain.ErrNoPrice)
	}
	return before.Price, nil
}

// negligible reports whether a residual amount is within the tolerance
// once digits below one wei are dropped. Accrual carries more fractional
// digits than any on-chain delta, so those digits are never a residual.
func (r *Reconstructor) negligible(d decimal.Decimal) bool {
	return decmath.WithinTolerance(decmath.Truncate(d), r.params.ResidualTolerance)
}

func (r *Reconstructor) requireZeroResidual(s domain.PositionSnapshot) error {
	if !r.negligible(s.Debt) || !r.negligible(s.Coll) {
		return &domain.DataIntegrityError{Reason: fmt.Sprintf("close leaves debt %s and collateral %s", s.Debt, s.Coll)}
	}
	return nil
}

// requireNonNegative clamps dust below the tolerance and rejects anything
// more negative.
func (r *Reconstructor) requireNonNegative(s *domain.PositionSnapshot) error {
	if s.Debt.IsNegative() {
		if !r.negligible(s.Debt) {
			return &domain.DataIntegrityError{Reason: fmt.Sprintf("negative debt %s", s.Debt)}
		}
		s.Debt = decimal.Zero
	}
	if s.Coll.IsNegative() {
		if !r.negligible(s.Coll) {
			return &domain.DataIntegrityError{Reason: fmt.Sprintf("negative collateral %s", s.Coll)}
		}
		s.Coll = decimal.Zero
	}
	return nil
}

func joinBatch(s *domain.PositionSnapshot, ev domain.PositionEvent) {
	s.InBatch = true
	s.BatchManager = ev.BatchManager
	if ev.ManagementFee.Valid {
		s.ManagementFee = ev.ManagementFee.Decimal
	}
	if ev.InterestRate.Valid {
		s.InterestRate = ev.InterestRate.Decimal
	}
}

// terminate forces the exact zero state of a closed or liquidated
// position.
func terminate(s *domain.PositionSnapshot, status domain.PositionStatus) {
	s.Status = status
	s.Debt = decimal.Zero
	s.Coll = decimal.Zero
	s.AccruedInterest = decimal.Zero
	s.AccruedManagementFee = decimal.Zero
	s.Zombie = false
	s.ZombieReason = domain.ZombieNone
}

// value derives the USD value and collateral ratio (percent) of s.
func value(s *domain.PositionSnapshot) {
	s.CollUSD = s.Coll.Mul(s.Price)
	s.CollRatio = decmath.NewRatio(s.CollUSD, s.EntireDebt()).Percent()
}

func integrity(positionID string, ev domain.PositionEvent, reason string) error {
	return &domain.DataIntegrityError{PositionID: positionID, EventID: ev.ID, Reason: reason}
}

// fillIDs stamps the position and event onto an error raised below
// Reconstruct.
func fillIDs(err error, positionID string, ev domain.PositionEvent) error {
	var die *domain.DataIntegrityError
	if errors.As(err, &die) {
		return integrity(positionID, ev, die.Reason)
	}
	return fmt.Errorf("trove: position %s event %s: %w", positionID, ev.ID, err)
}
