package trove

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/troveledger/internal/decmath"
	"github.com/alanyoungcy/troveledger/internal/domain"
)

// Accrue computes interest and delegate management fee on principal from
// lastUpdate to asOf. Both accrue pro-rata per second against the recorded
// principal. The fee is reported separately and is zero when batch is nil.
//
// asOf earlier than lastUpdate is an InputConstraintError.
func Accrue(principal, annualRatePct decimal.Decimal, lastUpdate, asOf time.Time, batch *domain.BatchInfo) (domain.InterestAccrual, error) {
	if asOf.Before(lastUpdate) {
		return domain.InterestAccrual{}, &domain.InputConstraintError{
			Field:  "as_of",
			Reason: fmt.Sprintf("%s is before last update %s", asOf.UTC().Format(time.RFC3339), lastUpdate.UTC().Format(time.RFC3339)),
		}
	}
	elapsed := asOf.Sub(lastUpdate)

	interest := decmath.ProRata(principal, annualRatePct, elapsed)
	fee := decimal.Zero
	if batch != nil {
		fee = decmath.ProRata(principal, batch.ManagementFee, elapsed)
	}
	return domain.InterestAccrual{
		AccruedInterest:      interest,
		AccruedManagementFee: fee,
		EntireDebt:           decmath.Sum(principal, interest, fee),
	}, nil
}

// batchOf returns the snapshot's delegate terms, or nil outside a batch.
func batchOf(s domain.PositionSnapshot) *domain.BatchInfo {
	if !s.InBatch {
		return nil
	}
	return &domain.BatchInfo{Manager: s.BatchManager, ManagementFee: s.ManagementFee}
}
