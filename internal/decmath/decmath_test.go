package decmath

import (
	"encoding/json"
	"math/big"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestProRataFullYear(t *testing.T) {
	require := require.New(t)

	got := ProRata(d("10000"), d("5"), 365*24*time.Hour)
	require.True(got.Equal(d("500")), "got %s", got)
}

func TestProRataZeroElapsed(t *testing.T) {
	require := require.New(t)

	require.True(ProRata(d("10000"), d("5"), 0).IsZero())
	require.True(ProRata(d("10000"), d("5"), -time.Hour).IsZero())
	require.True(ProRata(d("10000"), decimal.Zero, time.Hour).IsZero())
}

func TestProRataSubSecond(t *testing.T) {
	require := require.New(t)

	full := ProRata(d("31536000"), d("100"), time.Second)
	half := ProRata(d("31536000"), d("100"), 500*time.Millisecond)
	require.True(full.Equal(d("1")))
	require.True(half.Equal(d("0.5")))
}

func TestProRataNoIntermediateRounding(t *testing.T) {
	require := require.New(t)

	// One second of 1 wei at 1% must not collapse to zero.
	got := ProRata(d("0.000000000000000001"), d("1"), time.Second)
	require.True(got.IsPositive())
}

func TestPercentAndSum(t *testing.T) {
	require := require.New(t)

	require.True(Percent(d("200"), d("5")).Equal(d("10")))
	require.True(Sum(d("1.1"), d("2.2"), d("3.3")).Equal(d("6.6")))
	require.True(Sum().IsZero())
}

func TestFormatRoundsHalfEven(t *testing.T) {
	require := require.New(t)

	require.Equal("2.12", Format(d("2.125"), 2))
	require.Equal("2.14", Format(d("2.135"), 2))
	require.Equal("11386.00", Format(d("11386"), 2))
}

func TestFromWei(t *testing.T) {
	require := require.New(t)

	wei, _ := new(big.Int).SetString("1500000000000000000", 10)
	require.True(FromWei(wei).Equal(d("1.5")))
	require.True(FromWei(nil).IsZero())

	got, err := ParseWei("27802000000000000000000")
	require.NoError(err)
	require.True(got.Equal(d("27802")))

	_, err = ParseWei("12abc")
	require.Error(err)
}

func TestParse(t *testing.T) {
	require := require.New(t)

	got, err := Parse(" 0.05 ")
	require.NoError(err)
	require.True(got.Equal(d("0.05")))

	got, err = Parse("")
	require.NoError(err)
	require.True(got.IsZero())

	_, err = Parse("five")
	require.Error(err)
}

func TestWithinTolerance(t *testing.T) {
	require := require.New(t)

	require.True(WithinTolerance(d("0.0000001"), d("0.000001")))
	require.True(WithinTolerance(d("-0.000001"), d("0.000001")))
	require.False(WithinTolerance(d("0.01"), d("0.000001")))
	require.True(WithinTolerance(decimal.Zero, decimal.Zero))
}

func TestTruncateDropsSubWei(t *testing.T) {
	require := require.New(t)

	require.True(Truncate(d("0.000000000000000000415525114155251142")).IsZero())
	require.True(Truncate(d("-0.0000000000000000009")).IsZero())
	require.True(Truncate(d("1.0000000000000000019")).Equal(d("1.000000000000000001")))
	require.True(Truncate(d("-2.5")).Equal(d("-2.5")))
}

func TestRatio(t *testing.T) {
	require := require.New(t)

	undefined := NewRatio(d("100"), decimal.Zero)
	require.False(undefined.Defined)
	require.Equal(Undefined, undefined.Format(2))
	require.Equal(Undefined, undefined.Percent().String())

	r := NewRatio(d("1"), d("4")).Percent()
	require.True(r.Defined)
	require.Equal("25.00", r.Format(2))
	require.True(r.Equal(NewRatio(d("25"), d("1"))))
	require.False(r.Equal(undefined))
}

func TestRatioJSON(t *testing.T) {
	require := require.New(t)

	for _, in := range []Ratio{{}, NewRatio(d("3"), d("2"))} {
		b, err := json.Marshal(in)
		require.NoError(err)
		var out Ratio
		require.NoError(json.Unmarshal(b, &out))
		require.True(in.Equal(out), "round trip of %s", b)
	}
}
