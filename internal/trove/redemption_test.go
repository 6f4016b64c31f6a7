package trove

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/troveledger/internal/domain"
)

var minDebt = d("2000")

func redemption(debtCleared, collOut, fee string) domain.PositionEvent {
	ev := event(domain.OpRedeem, 200, t0)
	ev.DebtChange = d(debtCleared).Neg()
	ev.CollChange = d(collOut).Neg()
	ev.RedemptionFee = d(fee)
	return ev
}

func TestEvaluateRealizedAndOpportunityDiverge(t *testing.T) {
	require := require.New(t)

	pre := domain.PositionSnapshot{Debt: d("40000"), Coll: d("20")}
	out, err := Evaluate(redemption("27802", "6.08", "0"), pre, d("2700"), nd("3000"), minDebt)
	require.NoError(err)

	require.True(out.RealizedPL.Equal(d("11386")), "realized %s", out.RealizedPL)
	require.True(out.OpportunityPL.Valid)
	require.True(out.OpportunityPL.Decimal.Equal(d("9562")), "opportunity %s", out.OpportunityPL.Decimal)
	require.False(out.RealizedPL.Equal(out.OpportunityPL.Decimal))
	require.True(out.CollateralTransferredOut.Equal(d("6.08")))
	require.True(out.DebtAfter.Equal(d("12198")))
	require.False(out.Zombie.Zombie)
}

func TestEvaluatePLCanDivergeInSign(t *testing.T) {
	require := require.New(t)

	pre := domain.PositionSnapshot{Debt: d("30000"), Coll: d("10")}
	out, err := Evaluate(redemption("10000", "4", "0"), pre, d("2400"), nd("2600"), minDebt)
	require.NoError(err)
	require.True(out.RealizedPL.Equal(d("400")))
	require.True(out.OpportunityPL.Decimal.Equal(d("-400")))
}

func TestEvaluateFeeStaysInPosition(t *testing.T) {
	require := require.New(t)

	pre := domain.PositionSnapshot{Debt: d("40000"), Coll: d("20")}
	out, err := Evaluate(redemption("18000", "6", "0.08"), pre, d("3000"), decimal.NullDecimal{}, minDebt)
	require.NoError(err)
	require.True(out.CollateralRedeemed.Equal(d("6.08")))
	require.True(out.CollateralTransferredOut.Equal(d("6")))
	require.True(out.FeeRetained.Equal(d("0.08")))
	require.True(out.RealizedPL.IsZero())
	require.False(out.OpportunityPL.Valid)
}

func TestEvaluateZeroCollateralChange(t *testing.T) {
	require := require.New(t)

	pre := domain.PositionSnapshot{Debt: d("1500"), Coll: d("3"), Zombie: true}
	out, err := Evaluate(redemption("500", "0", "0"), pre, d("2500"), nd("2600"), minDebt)
	require.NoError(err)
	require.True(out.CollateralTransferredOut.IsZero())
	require.True(out.RealizedPL.Equal(d("500")))
	require.True(out.OpportunityPL.Decimal.Equal(d("500")))
	require.True(out.DebtAfter.Equal(d("1000")))
	require.True(out.Zombie.Zombie)
}

func TestEvaluateZombieClassification(t *testing.T) {
	require := require.New(t)

	pre := domain.PositionSnapshot{Debt: d("29302"), Coll: d("12")}
	below, err := Evaluate(redemption("27802", "6.08", "0"), pre, d("2700"), decimal.NullDecimal{}, minDebt)
	require.NoError(err)
	require.True(below.DebtAfter.Equal(d("1500")))
	require.True(below.Zombie.Zombie)
	require.Equal(domain.ZombieBelowMinimum, below.Zombie.Reason)

	pre.Debt = d("27802")
	zero, err := Evaluate(redemption("27802", "6.08", "0"), pre, d("2700"), decimal.NullDecimal{}, minDebt)
	require.NoError(err)
	require.True(zero.DebtAfter.IsZero())
	require.True(zero.Zombie.Zombie)
	require.Equal(domain.ZombieZeroDebt, zero.Zombie.Reason)

	require.NotEqual(below.Zombie.Message(), zero.Zombie.Message())
	require.NotEmpty(zero.Zombie.Message())
}

func TestEvaluateRejectsOverRedemption(t *testing.T) {
	require := require.New(t)

	pre := domain.PositionSnapshot{Debt: d("1000"), Coll: d("1")}
	_, err := Evaluate(redemption("1500", "0.5", "0"), pre, d("2000"), decimal.NullDecimal{}, minDebt)
	require.Error(err)

	ev := redemption("100", "0.1", "0")
	ev.CollChange = d("0.1")
	_, err = Evaluate(ev, pre, d("2000"), decimal.NullDecimal{}, minDebt)
	require.Error(err)
}

func TestClassifyZombie(t *testing.T) {
	require := require.New(t)

	require.False(ClassifyZombie(d("2000"), minDebt).Zombie)
	require.False(ClassifyZombie(d("-1"), minDebt).Zombie)
	require.Equal(domain.ZombieBelowMinimum, ClassifyZombie(d("1999.99"), minDebt).Reason)
	require.Equal(domain.ZombieZeroDebt, ClassifyZombie(decimal.Zero, minDebt).Reason)
	require.Empty(ClassifyZombie(d("5000"), minDebt).Message())
}
