// Package decmath provides the fixed-precision arithmetic used for every
// currency and token amount. Amounts are shopspring decimals, which are
// exact for addition, subtraction and multiplication. Division is carried
// out at DivisionPrecision fractional digits and only as the final step of a
// formula, so chained calculations never round between steps. Rounding to a
// display precision (round-half-even) happens only in Format.
package decmath

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	// Precision is the minimum number of fractional digits carried by any
	// amount, matching 18-decimal on-chain tokens.
	Precision = 18

	// DivisionPrecision is the number of fractional digits kept by the
	// terminal division of a formula.
	DivisionPrecision = 2 * Precision

	// SecondsPerYear is the 365-day year used for pro-rata accrual.
	SecondsPerYear = 365 * 24 * 60 * 60
)

var (
	hundred        = decimal.NewFromInt(100)
	secondsPerYear = decimal.NewFromInt(SecondsPerYear)
)

// Sum adds all values.
func Sum(values ...decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, v := range values {
		total = total.Add(v)
	}
	return total
}

// Percent returns pct percent of amount (Percent(200, 5) == 10).
func Percent(amount, pct decimal.Decimal) decimal.Decimal {
	return amount.Mul(pct).DivRound(hundred, DivisionPrecision)
}

// ProRata scales an annual percentage of amount to the elapsed time:
//
//	amount * annualPct/100 * seconds / SecondsPerYear
//
// The numerator is formed exactly and divided once.
func ProRata(amount, annualPct decimal.Decimal, elapsed time.Duration) decimal.Decimal {
	if elapsed <= 0 || amount.IsZero() || annualPct.IsZero() {
		return decimal.Zero
	}
	seconds := decimal.NewFromBigInt(big.NewInt(int64(elapsed/time.Second)), 0)
	if rem := elapsed % time.Second; rem != 0 {
		seconds = seconds.Add(decimal.New(int64(rem), -9))
	}
	numerator := amount.Mul(annualPct).Mul(seconds)
	return numerator.DivRound(hundred.Mul(secondsPerYear), DivisionPrecision)
}

// Div divides a by b at DivisionPrecision. b must be non-zero.
func Div(a, b decimal.Decimal) decimal.Decimal {
	return a.DivRound(b, DivisionPrecision)
}

// FromWei converts an 18-decimal on-chain integer amount to a decimal.
func FromWei(wei *big.Int) decimal.Decimal {
	if wei == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(wei, -Precision)
}

// ParseWei parses a base-10 integer string of 18-decimal units.
func ParseWei(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, nil
	}
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return decimal.Zero, fmt.Errorf("decmath: invalid wei amount %q", s)
	}
	return FromWei(n), nil
}

// Parse parses a decimal string, treating the empty string as zero.
func Parse(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("decmath: invalid decimal %q: %w", s, err)
	}
	return d, nil
}

// Format renders d with the given number of fractional digits using
// round-half-even. It is the only place amounts are rounded.
func Format(d decimal.Decimal, places int32) string {
	return d.StringFixedBank(places)
}

// Truncate drops digits beyond Precision, rounding toward zero. Amounts
// below one wei become zero.
func Truncate(d decimal.Decimal) decimal.Decimal {
	return d.Truncate(Precision)
}

// WithinTolerance reports whether |d| <= tol.
func WithinTolerance(d, tol decimal.Decimal) bool {
	return d.Abs().Cmp(tol.Abs()) <= 0
}
