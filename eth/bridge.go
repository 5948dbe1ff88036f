package eth

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	ethCommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/hermeznetwork/tracerr"
)

const mailboxABIJSON = `[
{"inputs":[{"name":"_contractL2","type":"address"},{"name":"_l2Value","type":"uint256"},{"name":"_calldata","type":"bytes"},{"name":"_l2GasLimit","type":"uint256"},{"name":"_l2GasPerPubdataByteLimit","type":"uint256"},{"name":"_factoryDeps","type":"bytes[]"},{"name":"_refundRecipient","type":"address"}],"name":"requestL2Transaction","outputs":[{"name":"canonicalTxHash","type":"bytes32"}],"stateMutability":"payable","type":"function"},
{"inputs":[{"name":"_gasPrice","type":"uint256"},{"name":"_l2GasLimit","type":"uint256"},{"name":"_l2GasPerPubdataByteLimit","type":"uint256"}],"name":"l2TransactionBaseCost","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
{"inputs":[{"name":"_l2BatchNumber","type":"uint256"},{"name":"_l2MessageIndex","type":"uint256"},{"name":"_l2TxNumberInBatch","type":"uint16"},{"name":"_message","type":"bytes"},{"name":"_merkleProof","type":"bytes32[]"}],"name":"finalizeEthWithdrawal","outputs":[],"stateMutability":"nonpayable","type":"function"}
]`

const l2BaseTokenABIJSON = `[
{"inputs":[{"name":"_l1Receiver","type":"address"}],"name":"withdraw","outputs":[],"stateMutability":"payable","type":"function"}
]`

const l1MessengerABIJSON = `[
{"anonymous":false,"inputs":[{"indexed":true,"name":"_sender","type":"address"},{"indexed":true,"name":"_hash","type":"bytes32"},{"indexed":false,"name":"_message","type":"bytes"}],"name":"L1MessageSent","type":"event"}
]`

var (
	mailboxABI     = mustParseABI(mailboxABIJSON)
	l2BaseTokenABI = mustParseABI(l2BaseTokenABIJSON)
	l1MessengerABI = mustParseABI(l1MessengerABIJSON)

	// L2BaseTokenAddress is the system contract holding the native balances
	// on L2
	L2BaseTokenAddress = ethCommon.HexToAddress("0x000000000000000000000000000000000000800a")
	// L1MessengerAddress is the system contract that emits the L2 to L1
	// messages
	L1MessengerAddress = ethCommon.HexToAddress("0x0000000000000000000000000000000000008008")
)

// ErrDepositHashNotFound is returned when the L1 receipt of a deposit has no
// priority request log
var ErrDepositHashNotFound = fmt.Errorf("L2 hash of deposit not found in L1 receipt")

// ErrWithdrawalMessageNotFound is returned when the L2 receipt of a
// withdrawal has no L1 message log
var ErrWithdrawalMessageNotFound = fmt.Errorf("withdrawal message not found in L2 receipt")

// Bridge moves the native token between the layers through the L1 mailbox
// and the L2 base token contract
type Bridge struct {
	l1      *EthereumClient
	l2      *EthereumClient
	mailbox ethCommon.Address
}

// NewBridge creates a Bridge
func NewBridge(l1, l2 *EthereumClient, mailbox ethCommon.Address) *Bridge {
	return &Bridge{l1: l1, l2: l2, mailbox: mailbox}
}

// Mailbox returns the address of the L1 mailbox contract
func (b *Bridge) Mailbox() ethCommon.Address {
	return b.mailbox
}

// BaseCost quotes the L2 execution cost charged on L1 for a deposit
func (b *Bridge) BaseCost(ctx context.Context, req BaseCostRequest) (*big.Int, error) {
	contract := bind.NewBoundContract(b.mailbox, mailboxABI, b.l1.client, b.l1.client, b.l1.client)
	var out []interface{}
	if err := contract.Call(&bind.CallOpts{Context: ctx}, &out, "l2TransactionBaseCost",
		orZero(req.GasPrice), orZero(req.GasLimit), orZero(req.GasPerPubdataByte)); err != nil {
		return nil, tracerr.Wrap(err)
	}
	if len(out) != 1 {
		return nil, tracerr.Wrap(fmt.Errorf("l2TransactionBaseCost returned %d values", len(out)))
	}
	cost, ok := out[0].(*big.Int)
	if !ok {
		return nil, tracerr.Wrap(fmt.Errorf("l2TransactionBaseCost returned %T", out[0]))
	}
	return cost, nil
}

// RequestL2TransactionData returns the calldata of a mailbox deposit of
// l2Value to `to`
func RequestL2TransactionData(to ethCommon.Address, l2Value, l2GasLimit,
	gasPerPubdata *big.Int, refundRecipient ethCommon.Address) ([]byte, error) {
	data, err := mailboxABI.Pack("requestL2Transaction", to, orZero(l2Value), []byte{},
		orZero(l2GasLimit), orZero(gasPerPubdata), [][]byte{}, refundRecipient)
	if err != nil {
		return nil, tracerr.Wrap(err)
	}
	return data, nil
}

// WithdrawData returns the calldata of an L2 base token withdrawal to
// l1Receiver
func WithdrawData(l1Receiver ethCommon.Address) ([]byte, error) {
	data, err := l2BaseTokenABI.Pack("withdraw", l1Receiver)
	if err != nil {
		return nil, tracerr.Wrap(err)
	}
	return data, nil
}

// FinalizeEthWithdrawalData returns the calldata that releases a withdrawal
// on L1
func FinalizeEthWithdrawalData(batch, messageIndex *big.Int, txNumberInBatch uint16,
	message []byte, proof []ethCommon.Hash) ([]byte, error) {
	merkleProof := make([][32]byte, len(proof))
	for i := range proof {
		merkleProof[i] = proof[i]
	}
	data, err := mailboxABI.Pack("finalizeEthWithdrawal", batch, messageIndex, txNumberInBatch,
		message, merkleProof)
	if err != nil {
		return nil, tracerr.Wrap(err)
	}
	return data, nil
}

// DepositL2Hash returns the hash of the L2 transaction created by a deposit.
// The mailbox emits a priority request log whose second data word is the
// canonical L2 hash.
func DepositL2Hash(mailbox ethCommon.Address, logs []*types.Log) (ethCommon.Hash, error) {
	for _, l := range logs {
		if l.Address != mailbox || len(l.Data) < 64 { //nolint:gomnd
			continue
		}
		return ethCommon.BytesToHash(l.Data[32:64]), nil
	}
	return ethCommon.Hash{}, tracerr.Wrap(ErrDepositHashNotFound)
}

// WithdrawalMessage returns the L2 to L1 message emitted by a withdrawal
func WithdrawalMessage(logs []*types.Log) ([]byte, error) {
	event := l1MessengerABI.Events["L1MessageSent"]
	for _, l := range logs {
		if l.Address != L1MessengerAddress || len(l.Topics) == 0 || l.Topics[0] != event.ID {
			continue
		}
		values, err := l1MessengerABI.Unpack("L1MessageSent", l.Data)
		if err != nil {
			return nil, tracerr.Wrap(err)
		}
		if len(values) == 1 {
			if message, ok := values[0].([]byte); ok {
				return message, nil
			}
		}
	}
	return nil, tracerr.Wrap(ErrWithdrawalMessageNotFound)
}

// L2ToL1LogProof is the inclusion proof of a withdrawal message
type L2ToL1LogProof struct {
	Proof []ethCommon.Hash `json:"proof"`
	ID    uint64           `json:"id"`
	Root  ethCommon.Hash   `json:"root"`
}

// LogProof returns the proof of the L2 to L1 message of txHash, or nil if
// the batch that includes it is not committed yet
func (b *Bridge) LogProof(ctx context.Context, txHash ethCommon.Hash) (*L2ToL1LogProof, error) {
	var proof *L2ToL1LogProof
	if err := b.l2.Call(ctx, &proof, "zks_getL2ToL1LogProof", txHash); err != nil {
		return nil, tracerr.Wrap(err)
	}
	return proof, nil
}

type batchDetails struct {
	ExecuteTxHash *ethCommon.Hash `json:"executeTxHash"`
}

// BatchExecuted returns true once the L1 batch has been executed on L1, so
// its withdrawals can be finalized
func (b *Bridge) BatchExecuted(ctx context.Context, batch *big.Int) (bool, error) {
	var details *batchDetails
	if err := b.l2.Call(ctx, &details, "zks_getL1BatchDetails", batch.Uint64()); err != nil {
		return false, tracerr.Wrap(err)
	}
	return details != nil && details.ExecuteTxHash != nil &&
		*details.ExecuteTxHash != (ethCommon.Hash{}), nil
}
