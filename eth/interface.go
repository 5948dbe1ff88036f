package eth

import (
	"context"
	"math/big"

	ethCommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/hermeznetwork/txverifier/common"
	"github.com/hermeznetwork/txverifier/operation"
)

// BalanceReader reads balances of any account on either layer
type BalanceReader interface {
	BalanceOf(ctx context.Context, layer common.Layer, token ethCommon.Address,
		account ethCommon.Address) (*big.Int, error)
}

// WalletInterface is the signing account used to submit the transactions
// whose outcome is verified.  Every submission returns as soon as the
// transaction is accepted by a node (or rejected, in which case the node
// message is returned verbatim); settlement is awaited through the returned
// Handle.
type WalletInterface interface {
	Address() ethCommon.Address
	GetBalance(ctx context.Context, token ethCommon.Address, layer common.Layer) (*big.Int, error)
	GetBalanceL1(ctx context.Context, token ethCommon.Address) (*big.Int, error)
	SendTransaction(ctx context.Context, req TxRequest) (*operation.Handle, error)
	Transfer(ctx context.Context, req TransferRequest) (*operation.Handle, error)
	Deposit(ctx context.Context, req DepositRequest) (*operation.Handle, error)
	Withdraw(ctx context.Context, req WithdrawRequest) (*operation.Handle, error)
	FinalizeWithdrawal(ctx context.Context, withdrawalHash ethCommon.Hash) (*common.Receipt, error)
	EstimateGas(ctx context.Context, req CallRequest) (uint64, error)
	GetBaseCost(ctx context.Context, req BaseCostRequest) (*big.Int, error)
}

// AccountFactory creates fresh accounts with no balance on either layer
type AccountFactory interface {
	NewWallet(ctx context.Context) (WalletInterface, error)
}

// TxRequest is a raw transaction submitted on L2.  Fields left to zero are
// filled by the wallet (nonce, gas limit, gas price or fee caps).
type TxRequest struct {
	Type     common.TxType
	To       ethCommon.Address
	Value    *big.Int
	Data     []byte
	GasLimit uint64
	// GasPrice is used by legacy and access list transactions
	GasPrice *big.Int
	// GasFeeCap and GasTipCap are used by fee market and EIP712
	// transactions
	GasFeeCap *big.Int
	GasTipCap *big.Int
	// AccessList is sent when not nil, even if empty
	AccessList *types.AccessList
}

// TransferRequest moves Amount of Token to To on L2
type TransferRequest struct {
	To     ethCommon.Address
	Amount *big.Int
	Token  ethCommon.Address
}

// DepositRequest moves Amount of Token from L1 to To on L2.  A zero To
// deposits to the wallet itself.
type DepositRequest struct {
	Token             ethCommon.Address
	Amount            *big.Int
	To                ethCommon.Address
	GasPerPubdataByte *big.Int
	L2GasLimit        *big.Int
	// GasPrice overrides the L1 gas price used for the transaction and the
	// base cost quote
	GasPrice *big.Int
}

// WithdrawRequest moves Amount of Token from L2 to To on L1.  A zero To
// withdraws to the wallet itself.
type WithdrawRequest struct {
	Token  ethCommon.Address
	Amount *big.Int
	To     ethCommon.Address
}

// CallRequest is a transaction used to estimate gas on L2
type CallRequest struct {
	From  ethCommon.Address
	To    ethCommon.Address
	Value *big.Int
	Data  []byte
}

// BaseCostRequest are the parameters of the L2 execution cost of a deposit
type BaseCostRequest struct {
	GasLimit          *big.Int
	GasPerPubdataByte *big.Int
	GasPrice          *big.Int
}
