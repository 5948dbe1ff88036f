package common

import (
	"fmt"

	"github.com/ethereum/go-ethereum/core/types"
)

// TxType is the type code of a transaction envelope as exposed in receipts.
// The values must be kept bit exact.
type TxType uint8

const (
	// TxTypeLegacy represents a legacy (pre typed envelope) transaction
	TxTypeLegacy TxType = types.LegacyTxType
	// TxTypeAccessList represents an access list transaction.  The rollup
	// rejects this type.
	TxTypeAccessList TxType = types.AccessListTxType
	// TxTypeDynamicFee represents a fee market transaction
	TxTypeDynamicFee TxType = types.DynamicFeeTxType
	// TxTypeEIP712 represents the rollup native transaction signed as typed
	// structured data
	TxTypeEIP712 TxType = 0x71
)

// String returns a human readable name of the TxType
func (t TxType) String() string {
	switch t {
	case TxTypeLegacy:
		return "Legacy"
	case TxTypeAccessList:
		return "AccessList"
	case TxTypeDynamicFee:
		return "DynamicFee"
	case TxTypeEIP712:
		return "EIP712"
	default:
		return fmt.Sprintf("TxType(0x%x)", uint8(t))
	}
}

// Known returns true if t is one of the recognized type codes
func (t TxType) Known() bool {
	switch t {
	case TxTypeLegacy, TxTypeAccessList, TxTypeDynamicFee, TxTypeEIP712:
		return true
	}
	return false
}

// OpKind is the kind of operation whose settlement is awaited
type OpKind int

const (
	// OpL2Tx is a transaction submitted to and settled on L2
	OpL2Tx OpKind = iota + 1
	// OpL1Tx is a transaction submitted to and settled on L1
	OpL1Tx
	// OpDeposit moves value from L1 to L2
	OpDeposit
	// OpWithdrawal moves value from L2 to L1.  It is settled once the L1
	// message is available for finalization.
	OpWithdrawal
)

// String returns the name of the OpKind
func (k OpKind) String() string {
	switch k {
	case OpL2Tx:
		return "l2tx"
	case OpL1Tx:
		return "l1tx"
	case OpDeposit:
		return "deposit"
	case OpWithdrawal:
		return "withdrawal"
	default:
		return fmt.Sprintf("OpKind(%d)", int(k))
	}
}

// CrossLayer returns true for operations that settle on both layers
func (k OpKind) CrossLayer() bool {
	return k == OpDeposit || k == OpWithdrawal
}

// SourceLayer returns the layer where the initiator signs and pays for the
// operation
func (k OpKind) SourceLayer() Layer {
	switch k {
	case OpL1Tx, OpDeposit:
		return LayerL1
	default:
		return LayerL2
	}
}
