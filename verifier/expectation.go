package verifier

import (
	"math/big"

	ethCommon "github.com/ethereum/go-ethereum/common"
	"github.com/hermeznetwork/txverifier/common"
)

// Change is the expected balance change of an account
type Change struct {
	Account ethCommon.Address
	Amount  *big.Int
}

// Delta returns a Change of amount for account
func Delta(account ethCommon.Address, amount *big.Int) Change {
	return Change{Account: account, Amount: amount}
}

type changeOptions struct {
	layer   common.Layer
	autoFee bool
}

// ChangeOption configures the expectations built by the ShouldChange
// functions
type ChangeOption func(*changeOptions)

// OnL1 checks the balances on L1 instead of L2
func OnL1() ChangeOption {
	return func(o *changeOptions) {
		o.layer = common.LayerL1
	}
}

// OnLayer checks the balances on layer
func OnLayer(layer common.Layer) ChangeOption {
	return func(o *changeOptions) {
		o.layer = layer
	}
}

// NoAutoFee compares the raw balance change, fees included
func NoAutoFee() ChangeOption {
	return func(o *changeOptions) {
		o.autoFee = false
	}
}

func newChangeOptions(opts []ChangeOption) changeOptions {
	o := changeOptions{layer: common.LayerL2, autoFee: true}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func build(token ethCommon.Address, changes []Change, o changeOptions) []common.ExpectedDelta {
	deltas := make([]common.ExpectedDelta, len(changes))
	for i, c := range changes {
		amount := big.NewInt(0)
		if c.Amount != nil {
			amount.Set(c.Amount)
		}
		deltas[i] = common.ExpectedDelta{
			BalanceKey: common.BalanceKey{Account: c.Account, Layer: o.layer, Token: token},
			Amount:     amount,
			ExcludeFee: o.autoFee,
		}
	}
	return deltas
}

// ShouldChangeETHBalances expects the native balances of the accounts to
// change by the given amounts, on L2 unless OnL1 is given.  By default the
// fee paid by each account is excluded, so the amounts are the transferred
// values.
func ShouldChangeETHBalances(changes []Change, opts ...ChangeOption) []common.ExpectedDelta {
	return build(common.NativeTokenAddress, changes, newChangeOptions(opts))
}

// ShouldChangeTokenBalances expects the token balances of the accounts to
// change by the given amounts.  Fees are never paid in a non native token, so
// fee exclusion has no effect on them.
func ShouldChangeTokenBalances(token ethCommon.Address, changes []Change,
	opts ...ChangeOption) []common.ExpectedDelta {
	return build(token, changes, newChangeOptions(opts))
}

// ShouldOnlyTakeFee expects the native balance of account to decrease by the
// fee of the operation only
func ShouldOnlyTakeFee(account ethCommon.Address, opts ...ChangeOption) []common.ExpectedDelta {
	o := newChangeOptions(opts)
	o.autoFee = true
	return build(common.NativeTokenAddress, []Change{{Account: account, Amount: big.NewInt(0)}}, o)
}

// Expectations concatenates groups of expectations
func Expectations(groups ...[]common.ExpectedDelta) []common.ExpectedDelta {
	var all []common.ExpectedDelta
	for _, g := range groups {
		all = append(all, g...)
	}
	return all
}
