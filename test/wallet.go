package test

import (
	"context"
	"math/big"

	ethCommon "github.com/ethereum/go-ethereum/common"
	"github.com/hermeznetwork/tracerr"
	"github.com/hermeznetwork/txverifier/common"
	"github.com/hermeznetwork/txverifier/eth"
	"github.com/hermeznetwork/txverifier/operation"
)

// Wallet is an account of the test Client.  It needs no key: every
// transaction is accepted as signed by its address.
type Wallet struct {
	c       *Client
	address ethCommon.Address
}

// Address returns the address of the wallet
func (w *Wallet) Address() ethCommon.Address {
	return w.address
}

// GetBalance returns the balance of the wallet on a layer
func (w *Wallet) GetBalance(ctx context.Context, token ethCommon.Address,
	layer common.Layer) (*big.Int, error) {
	return w.c.BalanceOf(ctx, layer, token, w.address)
}

// GetBalanceL1 returns the balance of the wallet on L1
func (w *Wallet) GetBalanceL1(ctx context.Context, token ethCommon.Address) (*big.Int, error) {
	return w.GetBalance(ctx, token, common.LayerL1)
}

// SendTransaction submits a raw L2 transaction
func (w *Wallet) SendTransaction(ctx context.Context, req eth.TxRequest) (*operation.Handle, error) {
	return w.c.sendL2(w.address, req)
}

// Transfer moves native or ERC20 tokens on L2
func (w *Wallet) Transfer(ctx context.Context, req eth.TransferRequest) (*operation.Handle, error) {
	if common.IsNativeToken(req.Token) {
		return w.SendTransaction(ctx, eth.TxRequest{Type: common.TxTypeDynamicFee, To: req.To,
			Value: req.Amount})
	}
	data, err := eth.ERC20TransferData(req.To, req.Amount)
	if err != nil {
		return nil, tracerr.Wrap(err)
	}
	return w.SendTransaction(ctx, eth.TxRequest{Type: common.TxTypeDynamicFee, To: req.Token,
		Data: data})
}

// Deposit moves the native token from L1 to L2
func (w *Wallet) Deposit(ctx context.Context, req eth.DepositRequest) (*operation.Handle, error) {
	return w.c.deposit(w.address, req)
}

// Withdraw moves the native token from L2 to L1
func (w *Wallet) Withdraw(ctx context.Context, req eth.WithdrawRequest) (*operation.Handle, error) {
	return w.c.withdraw(w.address, req)
}

// FinalizeWithdrawal releases a finalizable withdrawal on L1, paying the fee
// of the finalization from this wallet
func (w *Wallet) FinalizeWithdrawal(ctx context.Context,
	withdrawalHash ethCommon.Hash) (*common.Receipt, error) {
	h, err := w.c.finalizeWithdrawal(w.address, withdrawalHash)
	if err != nil {
		return nil, tracerr.Wrap(err)
	}
	return h.WaitL1Commit(ctx)
}

// EstimateGas returns the gas an L2 transaction would use
func (w *Wallet) EstimateGas(ctx context.Context, req eth.CallRequest) (uint64, error) {
	return w.c.estimateGas(req), nil
}

// GetBaseCost quotes the L2 execution cost of a deposit.  A nil gas price
// is replaced by the L1 gas price.
func (w *Wallet) GetBaseCost(ctx context.Context, req eth.BaseCostRequest) (*big.Int, error) {
	if req.GasPrice == nil {
		w.c.rw.RLock()
		req.GasPrice = new(big.Int).Set(w.c.l1.gasPrice)
		w.c.rw.RUnlock()
	}
	return BaseCost(req)
}
