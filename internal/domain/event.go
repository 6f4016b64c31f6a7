package domain

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// OperationKind is the on-chain operation that produced a PositionEvent.
type OperationKind string

const (
	OpOpen                   OperationKind = "openTrove"
	OpAdjust                 OperationKind = "adjustTrove"
	OpChangeRate             OperationKind = "adjustTroveInterestRate"
	OpJoinBatch              OperationKind = "setInterestBatchManager"
	OpLeaveBatch             OperationKind = "removeFromBatch"
	OpClose                  OperationKind = "closeTrove"
	OpLiquidate              OperationKind = "liquidate"
	OpRedeem                 OperationKind = "redeemCollateral"
	OpTransfer               OperationKind = "transferTrove"
	OpApplyPendingDebt       OperationKind = "applyPendingDebt"
	OpBatchManagerRateChange OperationKind = "setBatchManagerAnnualInterestRate"
	OpBatchManagerFeeChange  OperationKind = "setBatchManagementFee"
)

var operationKinds = map[OperationKind]struct{}{
	OpOpen: {}, OpAdjust: {}, OpChangeRate: {}, OpJoinBatch: {}, OpLeaveBatch: {},
	OpClose: {}, OpLiquidate: {}, OpRedeem: {}, OpTransfer: {}, OpApplyPendingDebt: {},
	OpBatchManagerRateChange: {}, OpBatchManagerFeeChange: {},
}

// ParseOperationKind validates an operation name from the indexer.
func ParseOperationKind(s string) (OperationKind, error) {
	k := OperationKind(s)
	if _, ok := operationKinds[k]; !ok {
		return "", &InputConstraintError{Field: "operation", Reason: fmt.Sprintf("unknown operation %q", s)}
	}
	return k, nil
}

// EventOrder is the canonical chain position of an event. Events for one
// position must be strictly increasing in this order.
type EventOrder struct {
	Block    uint64 `json:"block"`
	TxIndex  uint32 `json:"tx_index"`
	LogIndex uint32 `json:"log_index"`
}

// Less reports whether o sorts strictly before p.
func (o EventOrder) Less(p EventOrder) bool {
	if o.Block != p.Block {
		return o.Block < p.Block
	}
	if o.TxIndex != p.TxIndex {
		return o.TxIndex < p.TxIndex
	}
	return o.LogIndex < p.LogIndex
}

func (o EventOrder) String() string {
	return fmt.Sprintf("%d:%d:%d", o.Block, o.TxIndex, o.LogIndex)
}

// SystemLiquidation carries the system-wide split of a liquidation between
// the stability pool and redistribution to other positions.
type SystemLiquidation struct {
	DebtOffsetByPool  decimal.Decimal `json:"debt_offset_by_pool"`
	DebtRedistributed decimal.Decimal `json:"debt_redistributed"`
}

// PositionEvent is one recorded change to a position. Signed changes are
// the amounts the operation itself moved; redistribution gains and upfront
// fees are reported separately by the indexer.
type PositionEvent struct {
	ID         string          `json:"id"`
	PositionID string          `json:"position_id"`
	Kind       OperationKind   `json:"kind"`
	Timestamp  time.Time       `json:"timestamp"`
	Order      EventOrder      `json:"order"`
	TxHash     string          `json:"tx_hash,omitempty"`
	Owner      common.Address  `json:"owner"`
	DebtChange decimal.Decimal `json:"debt_change"`
	CollChange decimal.Decimal `json:"coll_change"`
	UpfrontFee decimal.Decimal `json:"upfront_fee"`

	RedistDebtGain decimal.Decimal `json:"redist_debt_gain"`
	RedistCollGain decimal.Decimal `json:"redist_coll_gain"`

	// RedemptionFee is collateral retained by the owner on a redemption.
	RedemptionFee decimal.Decimal `json:"redemption_fee"`

	// InterestRate is the annual percentage in force after the event, when
	// the operation sets one.
	InterestRate  decimal.NullDecimal `json:"interest_rate"`
	BatchManager  common.Address      `json:"batch_manager"`
	ManagementFee decimal.NullDecimal `json:"management_fee"`

	// Price is the collateral price the indexer observed at the event.
	Price decimal.NullDecimal `json:"price"`

	Liquidation *SystemLiquidation `json:"liquidation,omitempty"`
}
