package trove

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/troveledger/internal/domain"
)

// Evaluate computes the owner's economics of a redemption. pre is the
// position just before the redemption with accrued interest folded into
// Debt. The event's CollChange is the collateral that left the position;
// the redemption fee stays in the position as collateral.
//
//	realized    = debtCleared - transferredOut * priceAtRedemption
//	opportunity = debtCleared - transferredOut * currentPrice
func Evaluate(ev domain.PositionEvent, pre domain.PositionSnapshot, priceAtRedemption decimal.Decimal, current decimal.NullDecimal, minDebt decimal.Decimal) (domain.RedemptionOutcome, error) {
	if ev.DebtChange.IsPositive() {
		return domain.RedemptionOutcome{}, fmt.Errorf("redemption increases debt by %s", ev.DebtChange)
	}
	if ev.CollChange.IsPositive() {
		return domain.RedemptionOutcome{}, fmt.Errorf("redemption increases collateral by %s", ev.CollChange)
	}
	if ev.RedemptionFee.IsNegative() {
		return domain.RedemptionOutcome{}, fmt.Errorf("negative redemption fee %s", ev.RedemptionFee)
	}

	debtCleared := ev.DebtChange.Neg()
	out := domain.RedemptionOutcome{
		DebtCleared:              debtCleared,
		FeeRetained:              ev.RedemptionFee,
		CollateralTransferredOut: decimal.Zero,
		PriceAtRedemption:        priceAtRedemption,
	}
	if !ev.CollChange.IsZero() {
		out.CollateralTransferredOut = ev.CollChange.Neg()
		out.CollateralRedeemed = out.CollateralTransferredOut.Add(ev.RedemptionFee)
	} else {
		out.CollateralRedeemed = ev.RedemptionFee
	}

	out.RealizedPL = debtCleared.Sub(out.CollateralTransferredOut.Mul(priceAtRedemption))
	if current.Valid {
		out.CurrentPrice = current
		out.OpportunityPL = decimal.NewNullDecimal(debtCleared.Sub(out.CollateralTransferredOut.Mul(current.Decimal)))
	}

	out.DebtAfter = pre.EntireDebt().Sub(debtCleared)
	if out.DebtAfter.IsNegative() {
		return domain.RedemptionOutcome{}, fmt.Errorf("redemption clears %s against debt %s", debtCleared, pre.EntireDebt())
	}
	out.Zombie = ClassifyZombie(out.DebtAfter, minDebt)
	return out, nil
}

// ClassifyZombie marks debt strictly below minDebt as a zombie, with zero
// debt reported as its own reason.
func ClassifyZombie(debt, minDebt decimal.Decimal) domain.ZombieClassification {
	switch {
	case debt.IsNegative():
		return domain.ZombieClassification{}
	case debt.IsZero():
		return domain.ZombieClassification{Zombie: true, Reason: domain.ZombieZeroDebt}
	case debt.LessThan(minDebt):
		return domain.ZombieClassification{Zombie: true, Reason: domain.ZombieBelowMinimum}
	default:
		return domain.ZombieClassification{}
	}
}
