package trove

import (
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/troveledger/internal/domain"
)

// PriceSeries answers historical price lookups from a set of observations.
// The price at t is the most recent observation at or before t.
type PriceSeries struct {
	points  []domain.PricePoint
	current decimal.NullDecimal
}

var _ domain.PriceContext = (*PriceSeries)(nil)

// NewPriceSeries copies and sorts points. When current is not valid the
// newest observation serves as the current price.
func NewPriceSeries(points []domain.PricePoint, current decimal.NullDecimal) *PriceSeries {
	sorted := make([]domain.PricePoint, len(points))
	copy(sorted, points)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})
	return &PriceSeries{points: sorted, current: current}
}

// PriceAt implements domain.PriceContext.
func (s *PriceSeries) PriceAt(ts time.Time) (decimal.Decimal, error) {
	i := sort.Search(len(s.points), func(i int) bool {
		return s.points[i].Timestamp.After(ts)
	})
	if i == 0 {
		return decimal.Zero, domain.ErrNoPrice
	}
	return s.points[i-1].Price, nil
}

// Current implements domain.PriceContext.
func (s *PriceSeries) Current() (decimal.Decimal, error) {
	if s.current.Valid {
		return s.current.Decimal, nil
	}
	if len(s.points) == 0 {
		return decimal.Zero, domain.ErrNoPrice
	}
	return s.points[len(s.points)-1].Price, nil
}

// StaticPrice is a PriceContext with one price for all time.
type StaticPrice decimal.Decimal

var _ domain.PriceContext = StaticPrice{}

func (p StaticPrice) PriceAt(time.Time) (decimal.Decimal, error) { return p.Current() }

func (p StaticPrice) Current() (decimal.Decimal, error) {
	d := decimal.Decimal(p)
	if !d.IsPositive() {
		return decimal.Zero, domain.ErrNoPrice
	}
	return d, nil
}

// DelegateNames is an in-memory DelegateDirectory.
type DelegateNames map[common.Address]string

var _ domain.DelegateDirectory = DelegateNames(nil)

func (n DelegateNames) Name(manager common.Address) (string, bool) {
	name, ok := n[manager]
	return name, ok
}
