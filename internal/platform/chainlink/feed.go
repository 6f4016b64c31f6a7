// Package chainlink reads collateral prices from a Chainlink aggregator.
package chainlink

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/troveledger/internal/domain"
)

const aggregatorABI = `[
	{"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint8"}],"stateMutability":"view","type":"function"},
	{"inputs":[],"name":"latestRoundData","outputs":[
		{"name":"roundId","type":"uint80"},
		{"name":"answer","type":"int256"},
		{"name":"startedAt","type":"uint256"},
		{"name":"updatedAt","type":"uint256"},
		{"name":"answeredInRound","type":"uint80"}
	],"stateMutability":"view","type":"function"}
]`

// ContractCaller is the subset of *ethclient.Client the feed needs.
type ContractCaller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Feed reads the latest answer of one aggregator.
type Feed struct {
	caller     ContractCaller
	aggregator common.Address
	collateral string
	abi        abi.ABI

	mu       sync.Mutex
	loaded   bool
	decimals uint8
}

// NewFeed creates a feed over an existing caller.
func NewFeed(caller ContractCaller, aggregator common.Address, collateral string) (*Feed, error) {
	parsed, err := abi.JSON(strings.NewReader(aggregatorABI))
	if err != nil {
		return nil, fmt.Errorf("chainlink: parse abi: %w", err)
	}
	return &Feed{caller: caller, aggregator: aggregator, collateral: collateral, abi: parsed}, nil
}

// Dial connects to an Ethereum JSON-RPC endpoint and returns a feed plus a
// closer for the connection.
func Dial(ctx context.Context, rpcURL, aggregator, collateral string) (*Feed, func(), error) {
	if !common.IsHexAddress(aggregator) {
		return nil, nil, fmt.Errorf("chainlink: invalid aggregator address %q", aggregator)
	}
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, nil, fmt.Errorf("chainlink: dial: %w", err)
	}
	feed, err := NewFeed(client, common.HexToAddress(aggregator), collateral)
	if err != nil {
		client.Close()
		return nil, nil, err
	}
	return feed, client.Close, nil
}

// LatestPrice returns the aggregator's latest answer scaled by its
// decimals.
func (f *Feed) LatestPrice(ctx context.Context) (domain.PricePoint, error) {
	dec, err := f.loadDecimals(ctx)
	if err != nil {
		return domain.PricePoint{}, err
	}

	vals, err := f.call(ctx, "latestRoundData")
	if err != nil {
		return domain.PricePoint{}, err
	}
	if len(vals) != 5 {
		return domain.PricePoint{}, fmt.Errorf("chainlink: latestRoundData returned %d values", len(vals))
	}
	answer, ok := vals[1].(*big.Int)
	if !ok {
		return domain.PricePoint{}, fmt.Errorf("chainlink: unexpected answer type %T", vals[1])
	}
	updatedAt, ok := vals[3].(*big.Int)
	if !ok {
		return domain.PricePoint{}, fmt.Errorf("chainlink: unexpected updatedAt type %T", vals[3])
	}
	if answer.Sign() <= 0 {
		return domain.PricePoint{}, fmt.Errorf("chainlink: non-positive answer %s: %w", answer, domain.ErrNoPrice)
	}

	return domain.PricePoint{
		Collateral: f.collateral,
		Price:      decimal.NewFromBigInt(answer, -int32(dec)),
		Timestamp:  time.Unix(updatedAt.Int64(), 0).UTC(),
		Source:     "chainlink:" + f.aggregator.Hex(),
	}, nil
}

// loadDecimals reads the aggregator's decimals once. A failed read is not
// cached, so the next call retries.
func (f *Feed) loadDecimals(ctx context.Context) (uint8, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.loaded {
		return f.decimals, nil
	}

	vals, err := f.call(ctx, "decimals")
	if err != nil {
		return 0, err
	}
	d, ok := vals[0].(uint8)
	if !ok {
		return 0, fmt.Errorf("chainlink: unexpected decimals type %T", vals[0])
	}
	f.decimals, f.loaded = d, true
	return d, nil
}

func (f *Feed) call(ctx context.Context, method string) ([]any, error) {
	input, err := f.abi.Pack(method)
	if err != nil {
		return nil, fmt.Errorf("chainlink: pack %s: %w", method, err)
	}
	to := f.aggregator
	out, err := f.caller.CallContract(ctx, ethereum.CallMsg{To: &to, Data: input}, nil)
	if err != nil {
		return nil, fmt.Errorf("chainlink: call %s: %w", method, err)
	}
	vals, err := f.abi.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("chainlink: unpack %s: %w", method, err)
	}
	return vals, nil
}
