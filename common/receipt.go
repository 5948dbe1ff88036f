package common

import (
	"math/big"

	ethCommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Receipt is the layer tagged receipt of a finalized transaction.  Fields that
// a node may omit are pointers, so that predicates can tell an absent field
// apart from a zero value.
type Receipt struct {
	Layer             Layer
	TxHash            ethCommon.Hash
	From              ethCommon.Address
	To                *ethCommon.Address
	Type              *TxType
	Status            *uint64
	GasUsed           *big.Int
	EffectiveGasPrice *big.Int
	BlockNumber       *big.Int
	// L1BatchNumber is the L1 batch that includes an L2 transaction.  Only
	// set on L2 receipts.
	L1BatchNumber *big.Int
	// L1BatchTxIndex is the index of an L2 transaction inside its L1 batch.
	L1BatchTxIndex *big.Int
}

// NewReceipt creates a Receipt from a go-ethereum receipt.  from is the
// sender of the transaction, which go-ethereum receipts do not carry.
func NewReceipt(layer Layer, r *types.Receipt, from ethCommon.Address,
	to *ethCommon.Address) *Receipt {
	if r == nil {
		return nil
	}
	txType := TxType(r.Type)
	status := r.Status
	receipt := &Receipt{
		Layer:   layer,
		TxHash:  r.TxHash,
		From:    from,
		To:      to,
		Type:    &txType,
		Status:  &status,
		GasUsed: new(big.Int).SetUint64(r.GasUsed),
	}
	if r.EffectiveGasPrice != nil {
		receipt.EffectiveGasPrice = new(big.Int).Set(r.EffectiveGasPrice)
	}
	if r.BlockNumber != nil {
		receipt.BlockNumber = new(big.Int).Set(r.BlockNumber)
	}
	return receipt
}

// Successful returns true if the receipt has a successful status
func (r *Receipt) Successful() bool {
	return r != nil && r.Status != nil && *r.Status == types.ReceiptStatusSuccessful
}

// Fee returns gasUsed * effectiveGasPrice, or nil if any of the fields is
// missing
func (r *Receipt) Fee() *big.Int {
	if r == nil || r.GasUsed == nil || r.EffectiveGasPrice == nil {
		return nil
	}
	return new(big.Int).Mul(r.GasUsed, r.EffectiveGasPrice)
}

// Settlement is the result of awaiting an operation up to the milestone that
// makes its effect observable
type Settlement struct {
	Kind OpKind
	// Receipt is the receipt of the transaction signed by the initiator: the
	// L1 receipt of a deposit, the L2 receipt of a withdrawal.
	Receipt *Receipt
	// DestinationReceipt is the receipt of the effect on the other layer,
	// when the layer exposes one (deposits).
	DestinationReceipt *Receipt
	// BaseCost is the destination layer execution cost quoted before
	// submitting a deposit.  Nil for other operations.
	BaseCost *big.Int
}

// Initiator returns the account that signed and paid for the operation
func (s *Settlement) Initiator() ethCommon.Address {
	if s == nil || s.Receipt == nil {
		return ethCommon.Address{}
	}
	return s.Receipt.From
}
