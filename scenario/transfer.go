package scenario

import (
	"context"
	"math/big"

	ethCommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/hermeznetwork/tracerr"
	"github.com/hermeznetwork/txverifier/common"
	"github.com/hermeznetwork/txverifier/eth"
	"github.com/hermeznetwork/txverifier/harness"
	"github.com/hermeznetwork/txverifier/operation"
	v "github.com/hermeznetwork/txverifier/verifier"
)

// Amounts moved by the transfer scenarios
var (
	transferAmount = big.NewInt(200)
	selfAmount     = big.NewInt(300)
	tokenAmount    = big.NewInt(100)
)

func submitted(h *operation.Handle, err error) (v.Pending, error) {
	if err != nil {
		return nil, err
	}
	return h, nil
}

// pair creates a funded sender and an empty receiver
func pair(ctx context.Context, env *harness.Env) (eth.WalletInterface, eth.WalletInterface, error) {
	from, err := env.NewAccount(ctx, env.FundAmount)
	if err != nil {
		return nil, nil, tracerr.Wrap(err)
	}
	to, err := env.NewAccount(ctx, nil)
	if err != nil {
		return nil, nil, tracerr.Wrap(err)
	}
	return from, to, nil
}

// transferOfType sends value on L2 with a transaction of type txType
func transferOfType(txType common.TxType) func(context.Context, *harness.Env) (*common.Verdict, error) {
	return func(ctx context.Context, env *harness.Env) (*common.Verdict, error) {
		from, to, err := pair(ctx, env)
		if err != nil {
			return nil, tracerr.Wrap(err)
		}
		submit := func(ctx context.Context) (v.Pending, error) {
			return submitted(from.SendTransaction(ctx, eth.TxRequest{
				Type:  txType,
				To:    to.Address(),
				Value: transferAmount,
			}))
		}
		return env.Verifier.ToBeAccepted(ctx, submit,
			v.ShouldChangeETHBalances([]v.Change{
				v.Delta(from.Address(), new(big.Int).Neg(transferAmount)),
				v.Delta(to.Address(), transferAmount),
			}),
			v.IsSuccessful(),
			v.HasType(txType),
			v.HasFrom(from.Address()),
			v.HasTo(to.Address()),
			v.OnLayerReceipt(common.LayerL2),
		)
	}
}

// accessListRejected sends a transaction of the access list type, which the
// rollup does not support, with an access list that has no storage keys
func accessListRejected(ctx context.Context, env *harness.Env) (*common.Verdict, error) {
	from, to, err := pair(ctx, env)
	if err != nil {
		return nil, tracerr.Wrap(err)
	}
	accessList := types.AccessList{{Address: to.Address(), StorageKeys: []ethCommon.Hash{}}}
	submit := func(ctx context.Context) (v.Pending, error) {
		return submitted(from.SendTransaction(ctx, eth.TxRequest{
			Type:       common.TxTypeAccessList,
			To:         to.Address(),
			Value:      transferAmount,
			AccessList: &accessList,
		}))
	}
	return v.ToBeRejected(ctx, submit, "access lists are not supported")
}

// insufficientFunds sends the whole balance of an account, leaving nothing
// for the fee
func insufficientFunds(ctx context.Context, env *harness.Env) (*common.Verdict, error) {
	from, to, err := pair(ctx, env)
	if err != nil {
		return nil, tracerr.Wrap(err)
	}
	balance, err := env.Oracle.Query(ctx, from.Address(), common.LayerL2, common.NativeTokenAddress)
	if err != nil {
		return nil, err
	}
	// The gas limit of a small transfer is used, so that the node does not
	// fail to estimate the transaction
	gasLimit, err := from.EstimateGas(ctx, eth.CallRequest{
		From:  from.Address(),
		To:    to.Address(),
		Value: big.NewInt(1),
	})
	if err != nil {
		return nil, &common.QueryError{Op: "estimate gas", Err: err}
	}
	submit := func(ctx context.Context) (v.Pending, error) {
		return submitted(from.SendTransaction(ctx, eth.TxRequest{
			Type:     common.TxTypeDynamicFee,
			To:       to.Address(),
			Value:    balance,
			GasLimit: gasLimit,
		}))
	}
	return v.ToBeRejected(ctx, submit, "insufficient funds for gas + value.")
}

// zeroValueTransfer checks a transfer of no value, where only the fee is
// paid, expressed first as a zero delta that excludes the fee and then as a
// delta equal to minus the fee
func zeroValueTransfer(ctx context.Context, env *harness.Env) (*common.Verdict, error) {
	from, to, err := pair(ctx, env)
	if err != nil {
		return nil, tracerr.Wrap(err)
	}
	var first *operation.Handle
	submit := func(ctx context.Context) (v.Pending, error) {
		h, err := from.SendTransaction(ctx, eth.TxRequest{
			Type:  common.TxTypeDynamicFee,
			To:    to.Address(),
			Value: big.NewInt(0),
		})
		first = h
		return submitted(h, err)
	}
	excluded, err := env.Verifier.ToBeAccepted(ctx, submit,
		v.Expectations(
			v.ShouldOnlyTakeFee(from.Address()),
			v.ShouldChangeETHBalances([]v.Change{v.Delta(to.Address(), big.NewInt(0))}),
		),
		v.IsSuccessful(),
	)
	if err != nil {
		return nil, err
	}

	// The second transfer pays the gas and price of the first one
	settlement, err := first.Wait(ctx)
	if err != nil {
		return nil, tracerr.Wrap(err)
	}
	gasUsed, price := settlement.Receipt.GasUsed, settlement.Receipt.EffectiveGasPrice
	if gasUsed == nil || price == nil {
		return nil, &common.QueryError{Op: "receipt",
			Err: tracerr.New("missing gasUsed or effectiveGasPrice")}
	}
	fee := new(big.Int).Mul(gasUsed, price)
	submit = func(ctx context.Context) (v.Pending, error) {
		return submitted(from.SendTransaction(ctx, eth.TxRequest{
			Type:     common.TxTypeLegacy,
			To:       to.Address(),
			Value:    big.NewInt(0),
			GasLimit: gasUsed.Uint64(),
			GasPrice: price,
		}))
	}
	included, err := env.Verifier.ToBeAccepted(ctx, submit,
		v.ShouldChangeETHBalances([]v.Change{
			v.Delta(from.Address(), new(big.Int).Neg(fee)),
			v.Delta(to.Address(), big.NewInt(0)),
		}, v.NoAutoFee()),
		v.IsSuccessful(),
		v.HasType(common.TxTypeLegacy),
	)
	if err != nil {
		return nil, err
	}
	return merge(excluded, included), nil
}

// selfTransfer sends value to the sender itself, which only pays the fee
func selfTransfer(ctx context.Context, env *harness.Env) (*common.Verdict, error) {
	from, err := env.NewAccount(ctx, env.FundAmount)
	if err != nil {
		return nil, tracerr.Wrap(err)
	}
	submit := func(ctx context.Context) (v.Pending, error) {
		return submitted(from.Transfer(ctx, eth.TransferRequest{
			To:     from.Address(),
			Amount: selfAmount,
			Token:  common.NativeTokenAddress,
		}))
	}
	return env.Verifier.ToBeAccepted(ctx, submit,
		v.ShouldOnlyTakeFee(from.Address()),
		v.IsSuccessful(),
		v.HasFrom(from.Address()),
		v.HasTo(from.Address()),
	)
}

// erc20Transfer moves every configured token between two fresh accounts.
// The sender gets the tokens from the main wallet.
func erc20Transfer(ctx context.Context, env *harness.Env) (*common.Verdict, error) {
	var verdicts []*common.Verdict
	for _, token := range env.Tokens {
		address := token.On(common.LayerL2)
		if common.IsNativeToken(address) {
			continue
		}
		from, to, err := pair(ctx, env)
		if err != nil {
			return nil, tracerr.Wrap(err)
		}
		h, err := env.Main.Transfer(ctx, eth.TransferRequest{To: from.Address(),
			Amount: tokenAmount, Token: address})
		if err != nil {
			return nil, tracerr.Wrap(err)
		}
		if _, err := h.Wait(ctx); err != nil {
			return nil, tracerr.Wrap(err)
		}
		submit := func(ctx context.Context) (v.Pending, error) {
			return submitted(from.Transfer(ctx, eth.TransferRequest{
				To:     to.Address(),
				Amount: tokenAmount,
				Token:  address,
			}))
		}
		verdict, err := env.Verifier.ToBeAccepted(ctx, submit,
			v.Expectations(
				v.ShouldChangeTokenBalances(address, []v.Change{
					v.Delta(from.Address(), new(big.Int).Neg(tokenAmount)),
					v.Delta(to.Address(), tokenAmount),
				}),
				v.ShouldOnlyTakeFee(from.Address()),
			),
			v.IsSuccessful(),
			v.HasTo(address),
		)
		if err != nil {
			return nil, err
		}
		verdicts = append(verdicts, verdict)
	}
	if len(verdicts) == 0 {
		return nil, ErrSkipped
	}
	return merge(verdicts...), nil
}
