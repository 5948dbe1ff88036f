package scenario

import (
	"context"
	"math/big"

	"github.com/hermeznetwork/tracerr"
	"github.com/hermeznetwork/txverifier/common"
	"github.com/hermeznetwork/txverifier/eth"
	"github.com/hermeznetwork/txverifier/fee"
	"github.com/hermeznetwork/txverifier/harness"
	"github.com/hermeznetwork/txverifier/log"
	v "github.com/hermeznetwork/txverifier/verifier"
)

func bridgeAmount(env *harness.Env) (*big.Int, error) {
	amount := env.Deposit.Amount
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrSkipped
	}
	return amount, nil
}

// deposit moves the native token of the main wallet from L1 to itself on L2.
// The L1 balance decreases by the amount plus the L1 fee and the L2 base
// cost, and the L2 balance increases by the amount.
func deposit(ctx context.Context, env *harness.Env) (*common.Verdict, error) {
	amount, err := bridgeAmount(env)
	if err != nil {
		return nil, err
	}
	main := env.Main.Address()
	// The quote and the deposit use the same L1 gas price
	gasPrice, err := env.L1GasPrice(ctx)
	if err != nil {
		return nil, err
	}
	quote, err := fee.QuoteBaseCost(ctx, env.Main, eth.BaseCostRequest{
		GasLimit:          env.Deposit.L2GasLimit,
		GasPerPubdataByte: env.Deposit.GasPerPubdataByte,
		GasPrice:          gasPrice,
	})
	if err != nil {
		return nil, err
	}
	log.Debugw("Deposit base cost", "quote", quote, "amount", amount, "gasPrice", gasPrice)
	submit := func(ctx context.Context) (v.Pending, error) {
		return submitted(env.Main.Deposit(ctx, eth.DepositRequest{
			Token:             common.NativeTokenAddress,
			Amount:            amount,
			To:                main,
			GasPerPubdataByte: env.Deposit.GasPerPubdataByte,
			L2GasLimit:        env.Deposit.L2GasLimit,
			GasPrice:          gasPrice,
		}))
	}
	return env.Verifier.ToBeAccepted(ctx, submit,
		v.Expectations(
			v.ShouldChangeETHBalances([]v.Change{v.Delta(main, new(big.Int).Neg(amount))}, v.OnL1()),
			v.ShouldChangeETHBalances([]v.Change{v.Delta(main, amount)}),
		),
		v.IsSuccessful(),
		v.OnLayerReceipt(common.LayerL1),
		v.HasFrom(main),
	)
}

// withdrawal moves the native token of the main wallet from L2 to itself on
// L1.  The L2 balance decreases when the withdrawal is applied, and the L1
// balance only increases once the withdrawal is finalized.
func withdrawal(ctx context.Context, env *harness.Env) (*common.Verdict, error) {
	amount, err := bridgeAmount(env)
	if err != nil {
		return nil, err
	}
	main := env.Main.Address()
	var withdrawn *common.Settlement
	submit := func(ctx context.Context) (v.Pending, error) {
		h, err := env.Main.Withdraw(ctx, eth.WithdrawRequest{
			Token:  common.NativeTokenAddress,
			Amount: amount,
			To:     main,
		})
		if err != nil {
			return nil, err
		}
		return pendingFunc(func(ctx context.Context) (*common.Settlement, error) {
			s, err := h.Wait(ctx)
			withdrawn = s
			return s, err
		}), nil
	}
	applied, err := env.Verifier.ToBeAccepted(ctx, submit,
		v.Expectations(
			v.ShouldChangeETHBalances([]v.Change{v.Delta(main, new(big.Int).Neg(amount))}),
			v.ShouldChangeETHBalances([]v.Change{v.Delta(main, big.NewInt(0))}, v.OnL1()),
		),
		v.IsSuccessful(),
		v.OnLayerReceipt(common.LayerL2),
		v.InL1Batch(),
	)
	if err != nil {
		return nil, err
	}
	if withdrawn == nil || withdrawn.Receipt == nil {
		return nil, tracerr.New("withdrawal settled without receipt")
	}

	// Finalizing releases on L1 the value burnt on L2, so the balances of
	// L1 alone do not add up to zero
	finalizer := v.New(env.Oracle, env.Reconciler)
	hash := withdrawn.Receipt.TxHash
	submit = func(ctx context.Context) (v.Pending, error) {
		r, err := env.Main.FinalizeWithdrawal(ctx, hash)
		if err != nil {
			return nil, err
		}
		return settled{&common.Settlement{Kind: common.OpL1Tx, Receipt: r}}, nil
	}
	finalized, err := finalizer.ToBeAccepted(ctx, submit,
		v.ShouldChangeETHBalances([]v.Change{v.Delta(main, amount)}, v.OnL1()),
		v.IsSuccessful(),
		v.OnLayerReceipt(common.LayerL1),
	)
	if err != nil {
		return nil, err
	}
	return merge(applied, finalized), nil
}

// pendingFunc adapts a function to verifier.Pending
type pendingFunc func(ctx context.Context) (*common.Settlement, error)

func (f pendingFunc) Wait(ctx context.Context) (*common.Settlement, error) {
	return f(ctx)
}
