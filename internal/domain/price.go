package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PricePoint is an observed collateral price.
type PricePoint struct {
	Collateral string          `json:"collateral"`
	Price      decimal.Decimal `json:"price"`
	Timestamp  time.Time       `json:"timestamp"`
	Source     string          `json:"source"`
}
