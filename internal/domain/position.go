package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/troveledger/internal/decmath"
)

// PositionStatus is the lifecycle state of a trove.
type PositionStatus string

const (
	PositionStatusNone       PositionStatus = "none"
	PositionStatusActive     PositionStatus = "active"
	PositionStatusClosed     PositionStatus = "closed"
	PositionStatusLiquidated PositionStatus = "liquidated"
)

// Terminal reports whether no further events may follow.
func (s PositionStatus) Terminal() bool {
	return s == PositionStatusClosed || s == PositionStatusLiquidated
}

// PositionSnapshot is the derived state of a position as of one instant.
// Debt is the recorded principal; accrued figures are filled in only by
// live queries and by the accrual that precedes each event.
type PositionSnapshot struct {
	Status PositionStatus `json:"status"`
	Owner  common.Address `json:"owner"`

	Debt                 decimal.Decimal `json:"debt"`
	AccruedInterest      decimal.Decimal `json:"accrued_interest"`
	AccruedManagementFee decimal.Decimal `json:"accrued_management_fee"`

	Coll      decimal.Decimal `json:"coll"`
	Price     decimal.Decimal `json:"price"`
	CollUSD   decimal.Decimal `json:"coll_usd"`
	CollRatio decmath.Ratio   `json:"coll_ratio"`

	// InterestRate and ManagementFee are annual percentages.
	InterestRate  decimal.Decimal `json:"interest_rate"`
	InBatch       bool            `json:"in_batch"`
	BatchManager  common.Address  `json:"batch_manager"`
	ManagementFee decimal.Decimal `json:"management_fee"`

	Zombie       bool         `json:"zombie"`
	ZombieReason ZombieReason `json:"zombie_reason,omitempty"`
	LastUpdate   time.Time    `json:"last_update"`
}

// EntireDebt is the recorded principal plus accrued interest and fee.
func (s PositionSnapshot) EntireDebt() decimal.Decimal {
	return decmath.Sum(s.Debt, s.AccruedInterest, s.AccruedManagementFee)
}

// ZombieStatus returns the zombie classification recorded on s.
func (s PositionSnapshot) ZombieStatus() ZombieClassification {
	return ZombieClassification{Zombie: s.Zombie, Reason: s.ZombieReason}
}

// Open reports whether the position can still receive events.
func (s PositionSnapshot) Open() bool {
	return s.Status == PositionStatusActive
}

// Equal compares two snapshots by value. Decimals with different exponents
// but the same value are equal.
func (s PositionSnapshot) Equal(o PositionSnapshot) bool {
	return s.Status == o.Status &&
		s.Owner == o.Owner &&
		s.Debt.Equal(o.Debt) &&
		s.AccruedInterest.Equal(o.AccruedInterest) &&
		s.AccruedManagementFee.Equal(o.AccruedManagementFee) &&
		s.Coll.Equal(o.Coll) &&
		s.Price.Equal(o.Price) &&
		s.CollUSD.Equal(o.CollUSD) &&
		s.CollRatio.Equal(o.CollRatio) &&
		s.InterestRate.Equal(o.InterestRate) &&
		s.InBatch == o.InBatch &&
		s.BatchManager == o.BatchManager &&
		s.ManagementFee.Equal(o.ManagementFee) &&
		s.Zombie == o.Zombie &&
		s.ZombieReason == o.ZombieReason &&
		s.LastUpdate.Equal(o.LastUpdate)
}

// BatchInfo is delegate membership with its annual management fee.
type BatchInfo struct {
	Manager       common.Address
	ManagementFee decimal.Decimal
}

// InterestAccrual is the growth of a position's debt over an interval.
// AccruedManagementFee is always set, and is zero outside a batch.
type InterestAccrual struct {
	AccruedInterest      decimal.Decimal `json:"accrued_interest"`
	AccruedManagementFee decimal.Decimal `json:"accrued_management_fee"`
	EntireDebt           decimal.Decimal `json:"entire_debt"`
}
