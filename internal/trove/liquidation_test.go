package trove

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/troveledger/internal/decmath"
	"github.com/alanyoungcy/troveledger/internal/domain"
)

var penalty = d("0.05")

func TestAttributePoolAbsorption(t *testing.T) {
	require := require.New(t)

	pre := domain.PositionSnapshot{Debt: d("10000"), Coll: d("10"), Price: d("2000")}
	liq := domain.SystemLiquidation{DebtOffsetByPool: d("25000"), DebtRedistributed: decimal.Zero}

	attr, err := Attribute(liq, pre, penalty)
	require.NoError(err)
	require.Equal(domain.ResolutionPoolAbsorption, attr.Method)
	require.True(attr.PoolShare.Equal(d("1")))
	require.True(attr.DebtCleared.Equal(d("10000")))
	require.True(attr.CollLiquidated.Equal(d("10")))
	require.True(attr.CollSentToPool.Equal(d("5.25")))
	require.True(attr.CollSurplus.Equal(d("4.75")))
	require.True(attr.DebtRedistributed.IsZero())
	require.True(attr.CollRedistributed.IsZero())
}

func TestAttributeRedistributionHasNoSurplus(t *testing.T) {
	require := require.New(t)

	// A naive value difference would leave 99.5 collateral over.
	pre := domain.PositionSnapshot{Debt: d("1000"), Coll: d("100"), Price: d("2000")}
	liq := domain.SystemLiquidation{DebtOffsetByPool: decimal.Zero, DebtRedistributed: d("1000")}

	attr, err := Attribute(liq, pre, penalty)
	require.NoError(err)
	require.Equal(domain.ResolutionRedistribution, attr.Method)
	require.True(attr.CollSurplus.IsZero())
	require.True(attr.DebtRedistributed.Equal(d("1000")))
	require.True(attr.CollRedistributed.Equal(d("100")))
	require.True(attr.PoolShare.IsZero())
}

func TestAttributeRedistributionNeedsNoPrice(t *testing.T) {
	require := require.New(t)

	pre := domain.PositionSnapshot{Debt: d("1000"), Coll: d("1")}
	liq := domain.SystemLiquidation{DebtRedistributed: d("1000")}

	attr, err := Attribute(liq, pre, penalty)
	require.NoError(err)
	require.True(attr.CollSurplus.IsZero())
}

func TestAttributeMixedScalesSurplusByPoolShare(t *testing.T) {
	require := require.New(t)

	pre := domain.PositionSnapshot{Debt: d("10000"), Coll: d("10"), Price: d("2000")}
	liq := domain.SystemLiquidation{DebtOffsetByPool: d("600"), DebtRedistributed: d("400")}

	attr, err := Attribute(liq, pre, penalty)
	require.NoError(err)
	require.Equal(domain.ResolutionMixed, attr.Method)
	require.True(attr.PoolShare.Equal(d("0.6")))
	require.True(attr.DebtOffsetByPool.Equal(d("6000")))
	require.True(attr.DebtRedistributed.Equal(d("4000")))
	require.True(attr.CollSentToPool.Equal(d("3.15")))
	require.True(attr.CollSurplus.Equal(d("2.85")))
	require.True(attr.CollRedistributed.Equal(d("4")))

	total := decmath.Sum(attr.CollSentToPool, attr.CollSurplus, attr.CollRedistributed)
	require.True(total.Equal(attr.CollLiquidated))
}

func TestAttributeSurplusNeverNegative(t *testing.T) {
	require := require.New(t)

	// Underwater: collateral worth less than debt plus penalty.
	pre := domain.PositionSnapshot{Debt: d("10000"), Coll: d("5"), Price: d("1900")}
	liq := domain.SystemLiquidation{DebtOffsetByPool: d("10000")}

	attr, err := Attribute(liq, pre, penalty)
	require.NoError(err)
	require.True(attr.CollSurplus.IsZero())
	require.True(attr.CollSentToPool.Equal(d("5")))
}

func TestAttributeErrors(t *testing.T) {
	require := require.New(t)

	pre := domain.PositionSnapshot{Debt: d("10000"), Coll: d("10")}
	_, err := Attribute(domain.SystemLiquidation{}, pre, penalty)
	require.Error(err)

	_, err = Attribute(domain.SystemLiquidation{DebtOffsetByPool: d("1")}, pre, penalty)
	require.True(errors.Is(err, domain.ErrNoPrice))
}

func TestRedistributionAcrossThreeReceivers(t *testing.T) {
	require := require.New(t)

	pre := domain.PositionSnapshot{Debt: d("9000.5"), Coll: d("7.3"), Price: d("1500")}
	liq := domain.SystemLiquidation{DebtRedistributed: d("9000.5")}

	attr, err := Attribute(liq, pre, penalty)
	require.NoError(err)

	gains, err := Redistribute(attr, []Receiver{
		{PositionID: "a", Stake: d("1")},
		{PositionID: "b", Stake: d("2")},
		{PositionID: "c", Stake: d("4")},
	})
	require.NoError(err)
	require.Len(gains, 3)

	debt, coll := decimal.Zero, decimal.Zero
	for _, g := range gains {
		require.True(g.Debt.IsPositive())
		debt = debt.Add(g.Debt)
		coll = coll.Add(g.Coll)
	}
	require.True(debt.Equal(pre.Debt), "debt sums to %s", debt)
	require.True(coll.Equal(pre.Coll), "coll sums to %s", coll)
	require.True(attr.DebtCleared.Equal(pre.Debt))
	require.True(attr.CollLiquidated.Equal(pre.Coll))
	require.True(attr.CollSurplus.IsZero())

	// Larger stakes receive more.
	require.True(gains[2].Debt.GreaterThan(gains[1].Debt))
	require.True(gains[1].Debt.GreaterThan(gains[0].Debt))
}

func TestRedistributeRejectsEmptyStake(t *testing.T) {
	require := require.New(t)

	attr := domain.LiquidationAttribution{DebtRedistributed: d("100"), CollRedistributed: d("1")}
	_, err := Redistribute(attr, nil)
	require.True(errors.Is(err, domain.ErrInputConstraint))

	_, err = Redistribute(attr, []Receiver{{PositionID: "a", Stake: decimal.Zero}})
	require.True(errors.Is(err, domain.ErrInputConstraint))

	gains, err := Redistribute(domain.LiquidationAttribution{DebtRedistributed: decimal.Zero, CollRedistributed: decimal.Zero}, nil)
	require.NoError(err)
	require.Empty(gains)
}
