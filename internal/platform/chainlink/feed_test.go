package chainlink

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/troveledger/internal/domain"
)

var aggregator = common.HexToAddress("0x5f4eC3Df9cbd43714FE2740f5E3616155c5b8419")

// fakeCaller answers decimals and latestRoundData from packed fixtures.
type fakeCaller struct {
	feed      *Feed
	decimals  uint8
	answer    *big.Int
	updatedAt int64
	calls     map[string]int
	down      bool
}

func (c *fakeCaller) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	if c.down {
		return nil, errors.New("rpc unavailable")
	}
	if msg.To == nil || *msg.To != aggregator {
		return nil, errors.New("wrong contract")
	}
	for name, m := range c.feed.abi.Methods {
		if !bytes.HasPrefix(msg.Data, m.ID) {
			continue
		}
		c.calls[name]++
		switch name {
		case "decimals":
			return m.Outputs.Pack(c.decimals)
		case "latestRoundData":
			return m.Outputs.Pack(big.NewInt(7), c.answer, big.NewInt(c.updatedAt-5), big.NewInt(c.updatedAt), big.NewInt(7))
		}
	}
	return nil, errors.New("unknown selector")
}

func newFake(t *testing.T, answer int64) (*Feed, *fakeCaller) {
	t.Helper()
	caller := &fakeCaller{decimals: 8, answer: big.NewInt(answer), updatedAt: 1735689600, calls: map[string]int{}}
	feed, err := NewFeed(caller, aggregator, "ETH")
	require.NoError(t, err)
	caller.feed = feed
	return feed, caller
}

func TestLatestPrice(t *testing.T) {
	require := require.New(t)

	feed, caller := newFake(t, 312345678901)
	p, err := feed.LatestPrice(context.Background())
	require.NoError(err)
	require.Equal("ETH", p.Collateral)
	require.True(p.Price.Equal(decimal.RequireFromString("3123.45678901")), "price %s", p.Price)
	require.Equal(int64(1735689600), p.Timestamp.Unix())
	require.Contains(p.Source, "chainlink:")

	_, err = feed.LatestPrice(context.Background())
	require.NoError(err)
	require.Equal(1, caller.calls["decimals"])
	require.Equal(2, caller.calls["latestRoundData"])
}

func TestLatestPriceRetriesDecimalsAfterOutage(t *testing.T) {
	require := require.New(t)

	feed, caller := newFake(t, 312345678901)
	caller.down = true
	_, err := feed.LatestPrice(context.Background())
	require.ErrorContains(err, "rpc unavailable")

	caller.down = false
	p, err := feed.LatestPrice(context.Background())
	require.NoError(err)
	require.True(p.Price.Equal(decimal.RequireFromString("3123.45678901")))
	require.Equal(1, caller.calls["decimals"])
}

func TestLatestPriceRejectsNonPositiveAnswer(t *testing.T) {
	require := require.New(t)

	feed, _ := newFake(t, 0)
	_, err := feed.LatestPrice(context.Background())
	require.True(errors.Is(err, domain.ErrNoPrice))
}

func TestDialRejectsBadAddress(t *testing.T) {
	_, _, err := Dial(context.Background(), "http://localhost:1", "nope", "ETH")
	require.Error(t, err)
}
