package trove

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/troveledger/internal/decmath"
	"github.com/alanyoungcy/troveledger/internal/domain"
)

// LiveState projects an open position's last snapshot to asOf. The
// recorded Debt and LastUpdate are left untouched; accrued interest and fee
// are reported alongside, and the ratio is taken over the entire debt at
// currentPrice when one is supplied. Closed and liquidated snapshots are
// returned unchanged.
func LiveState(positionID string, last domain.PositionSnapshot, asOf time.Time, currentPrice decimal.NullDecimal) (domain.PositionSnapshot, error) {
	if !last.Open() {
		return last, nil
	}
	accrual, err := Accrue(last.Debt, last.InterestRate, last.LastUpdate, asOf, batchOf(last))
	if err != nil {
		return domain.PositionSnapshot{}, fmt.Errorf("trove: live state of %s: %w", positionID, err)
	}

	live := last
	live.AccruedInterest = accrual.AccruedInterest
	live.AccruedManagementFee = accrual.AccruedManagementFee
	if currentPrice.Valid && currentPrice.Decimal.IsPositive() {
		live.Price = currentPrice.Decimal
	}
	live.CollUSD = live.Coll.Mul(live.Price)
	live.CollRatio = decmath.NewRatio(live.CollUSD, live.EntireDebt()).Percent()
	return live, nil
}
