// Package subgraph queries the protocol's GraphQL indexer for trove
// operations.
package subgraph

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/troveledger/internal/decmath"
	"github.com/alanyoungcy/troveledger/internal/domain"
)

// Client is a GraphQL client for the trove subgraph.
type Client struct {
	graphqlURL string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a new subgraph client.
func NewClient(graphqlURL, apiKey string) *Client {
	return &Client{
		graphqlURL: graphqlURL,
		apiKey:     strings.TrimSpace(apiKey),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// graphqlRequest is the standard GraphQL request envelope.
type graphqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

// graphqlResponse is the standard GraphQL response envelope.
type graphqlResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

const troveChangesQuery = `
	query TroveChanges($since: BigInt!, $first: Int!) {
		troveChanges(
			first: $first
			orderBy: blockNumber
			orderDirection: asc
			where: { blockNumber_gt: $since }
		) {` + troveChangeFields + `}
	}
`

// blockChangesQuery pages through one block by id.
const blockChangesQuery = `
	query BlockChanges($block: BigInt!, $after: String!, $first: Int!) {
		troveChanges(
			first: $first
			orderBy: id
			orderDirection: asc
			where: { blockNumber: $block, id_gt: $after }
		) {` + troveChangeFields + `}
	}
`

const troveChangeFields = `
			id
			trove { id }
			operation
			timestamp
			blockNumber
			transactionIndex
			logIndex
			transactionHash
			owner
			debtChangeFromOperation
			collChangeFromOperation
			upfrontFee
			debtIncreaseFromRedist
			collIncreaseFromRedist
			redemptionFee
			interestRate
			batchManager
			managementFee
			price
			systemLiquidation { debtOffsetBySP debtRedistributed }
		`

// troveChange is the wire shape of one indexed operation. Amounts, rates
// and prices are 18-decimal integers; rates are fractions of 1e18.
type troveChange struct {
	ID    string `json:"id"`
	Trove struct {
		ID string `json:"id"`
	} `json:"trove"`
	Operation         string  `json:"operation"`
	Timestamp         string  `json:"timestamp"`
	BlockNumber       string  `json:"blockNumber"`
	TransactionIndex  string  `json:"transactionIndex"`
	LogIndex          string  `json:"logIndex"`
	TransactionHash   string  `json:"transactionHash"`
	Owner             string  `json:"owner"`
	DebtChange        string  `json:"debtChangeFromOperation"`
	CollChange        string  `json:"collChangeFromOperation"`
	UpfrontFee        string  `json:"upfrontFee"`
	DebtRedist        string  `json:"debtIncreaseFromRedist"`
	CollRedist        string  `json:"collIncreaseFromRedist"`
	RedemptionFee     string  `json:"redemptionFee"`
	InterestRate      *string `json:"interestRate"`
	BatchManager      *string `json:"batchManager"`
	ManagementFee     *string `json:"managementFee"`
	Price             *string `json:"price"`
	SystemLiquidation *struct {
		DebtOffsetBySP    string `json:"debtOffsetBySP"`
		DebtRedistributed string `json:"debtRedistributed"`
	} `json:"systemLiquidation"`
}

// FetchTroveChanges returns operations in blocks after sinceBlock, in
// chain order, and only ever whole blocks. When a full page ends partway
// through a block, that block's events are dropped so the caller can
// resume from the last complete block. When a full page holds a single
// block, the rest of that block is fetched, so the result may exceed
// first.
func (c *Client) FetchTroveChanges(ctx context.Context, sinceBlock uint64, first int) ([]domain.PositionEvent, error) {
	events, err := c.fetchChanges(ctx, troveChangesQuery, map[string]any{
		"since": strconv.FormatUint(sinceBlock, 10),
		"first": first,
	})
	if err != nil {
		return nil, err
	}
	sortEvents(events)

	if first <= 0 || len(events) < first {
		return events, nil
	}
	if trimmed, ok := trimPartialBlock(events); ok {
		return trimmed, nil
	}

	events, err = c.fetchBlock(ctx, events[0].Order.Block, first)
	if err != nil {
		return nil, err
	}
	sortEvents(events)
	return events, nil
}

// fetchBlock returns every operation of block, paging by id.
func (c *Client) fetchBlock(ctx context.Context, block uint64, first int) ([]domain.PositionEvent, error) {
	var (
		all   []domain.PositionEvent
		after string
	)
	for {
		page, err := c.fetchChanges(ctx, blockChangesQuery, map[string]any{
			"block": strconv.FormatUint(block, 10),
			"after": after,
			"first": first,
		})
		if err != nil {
			return nil, fmt.Errorf("subgraph: block %d: %w", block, err)
		}
		all = append(all, page...)
		if len(page) < first {
			return all, nil
		}
		next := page[len(page)-1].ID
		if next <= after {
			return nil, fmt.Errorf("subgraph: block %d: page after %q did not advance", block, after)
		}
		after = next
	}
}

func (c *Client) fetchChanges(ctx context.Context, query string, variables map[string]any) ([]domain.PositionEvent, error) {
	respData, err := c.doQuery(ctx, query, variables)
	if err != nil {
		return nil, fmt.Errorf("subgraph: fetch trove changes: %w", err)
	}

	var result struct {
		TroveChanges []troveChange `json:"troveChanges"`
	}
	if err := json.Unmarshal(respData, &result); err != nil {
		return nil, fmt.Errorf("subgraph: decode trove changes: %w", err)
	}

	events := make([]domain.PositionEvent, 0, len(result.TroveChanges))
	for _, tc := range result.TroveChanges {
		ev, err := tc.toEvent()
		if err != nil {
			return nil, fmt.Errorf("subgraph: trove change %s: %w", tc.ID, err)
		}
		events = append(events, ev)
	}
	return events, nil
}

// FetchLatestBlock returns the latest block number indexed by the
// subgraph, for monitoring indexing lag.
func (c *Client) FetchLatestBlock(ctx context.Context) (uint64, error) {
	query := `
		query LatestBlock {
			_meta {
				block {
					number
				}
			}
		}
	`

	respData, err := c.doQuery(ctx, query, nil)
	if err != nil {
		return 0, fmt.Errorf("subgraph: fetch latest block: %w", err)
	}

	var result struct {
		Meta struct {
			Block struct {
				Number uint64 `json:"number"`
			} `json:"block"`
		} `json:"_meta"`
	}

	if err := json.Unmarshal(respData, &result); err != nil {
		return 0, fmt.Errorf("subgraph: decode latest block: %w", err)
	}

	return result.Meta.Block.Number, nil
}

func (tc troveChange) toEvent() (domain.PositionEvent, error) {
	kind, err := domain.ParseOperationKind(tc.Operation)
	if err != nil {
		return domain.PositionEvent{}, err
	}
	ts, err := strconv.ParseInt(tc.Timestamp, 10, 64)
	if err != nil {
		return domain.PositionEvent{}, fmt.Errorf("timestamp %q: %w", tc.Timestamp, err)
	}
	block, err := strconv.ParseUint(tc.BlockNumber, 10, 64)
	if err != nil {
		return domain.PositionEvent{}, fmt.Errorf("block %q: %w", tc.BlockNumber, err)
	}
	txIndex, err := parseIndex(tc.TransactionIndex)
	if err != nil {
		return domain.PositionEvent{}, err
	}
	logIndex, err := parseIndex(tc.LogIndex)
	if err != nil {
		return domain.PositionEvent{}, err
	}

	ev := domain.PositionEvent{
		ID:         tc.ID,
		PositionID: tc.Trove.ID,
		Kind:       kind,
		Timestamp:  time.Unix(ts, 0).UTC(),
		Order:      domain.EventOrder{Block: block, TxIndex: txIndex, LogIndex: logIndex},
		TxHash:     tc.TransactionHash,
	}
	if tc.Owner != "" {
		ev.Owner = common.HexToAddress(tc.Owner)
	}
	if tc.BatchManager != nil && *tc.BatchManager != "" {
		ev.BatchManager = common.HexToAddress(*tc.BatchManager)
	}

	amounts := []struct {
		raw string
		dst *decimal.Decimal
	}{
		{tc.DebtChange, &ev.DebtChange},
		{tc.CollChange, &ev.CollChange},
		{tc.UpfrontFee, &ev.UpfrontFee},
		{tc.DebtRedist, &ev.RedistDebtGain},
		{tc.CollRedist, &ev.RedistCollGain},
		{tc.RedemptionFee, &ev.RedemptionFee},
	}
	for _, a := range amounts {
		if *a.dst, err = decmath.ParseWei(a.raw); err != nil {
			return domain.PositionEvent{}, err
		}
	}

	if ev.InterestRate, err = parseRate(tc.InterestRate); err != nil {
		return domain.PositionEvent{}, err
	}
	if ev.ManagementFee, err = parseRate(tc.ManagementFee); err != nil {
		return domain.PositionEvent{}, err
	}
	if tc.Price != nil && *tc.Price != "" {
		p, err := decmath.ParseWei(*tc.Price)
		if err != nil {
			return domain.PositionEvent{}, err
		}
		ev.Price = decimal.NewNullDecimal(p)
	}
	if sl := tc.SystemLiquidation; sl != nil {
		offset, err := decmath.ParseWei(sl.DebtOffsetBySP)
		if err != nil {
			return domain.PositionEvent{}, err
		}
		redist, err := decmath.ParseWei(sl.DebtRedistributed)
		if err != nil {
			return domain.PositionEvent{}, err
		}
		ev.Liquidation = &domain.SystemLiquidation{DebtOffsetByPool: offset, DebtRedistributed: redist}
	}
	return ev, nil
}

var hundred = decimal.NewFromInt(100)

// parseRate converts a 1e18-scaled fraction to an annual percentage.
func parseRate(raw *string) (decimal.NullDecimal, error) {
	if raw == nil || *raw == "" {
		return decimal.NullDecimal{}, nil
	}
	r, err := decmath.ParseWei(*raw)
	if err != nil {
		return decimal.NullDecimal{}, err
	}
	return decimal.NewNullDecimal(r.Mul(hundred)), nil
}

func parseIndex(s string) (uint32, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("index %q: %w", s, err)
	}
	return uint32(n), nil
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

// doQuery executes a GraphQL query against the subgraph endpoint and
// returns the raw "data" field from the response.
func (c *Client) doQuery(ctx context.Context, query string, variables map[string]any) (json.RawMessage, error) {
	reqBody := graphqlRequest{
		Query:     query,
		Variables: variables,
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal graphql request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.graphqlURL, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body))
	}

	var gqlResp graphqlResponse
	if err := json.Unmarshal(body, &gqlResp); err != nil {
		return nil, fmt.Errorf("decode graphql response: %w", err)
	}

	if len(gqlResp.Errors) > 0 {
		return nil, fmt.Errorf("graphql error: %s", gqlResp.Errors[0].Message)
	}

	return gqlResp.Data, nil
}
