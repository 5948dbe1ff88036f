/*
Package fee computes the native token cost an operation charged to an account
on a layer, so that it can be separated from the transferred value.

  - Same layer transaction: gasUsed * effectiveGasPrice, charged to the sender
    on the layer of the transaction only.
  - Deposit: on L1 the initiator pays the L1 fee plus the L2 base cost quoted
    before submission.  Nothing is charged on L2.
  - Withdrawal: on L2 the initiator pays the L2 fee.  The L1 finalization is a
    separate transaction whose fee is paid by whoever submits it, so nothing
    is charged on L1 here.
*/
package fee

import (
	"context"
	"fmt"
	"math/big"

	ethCommon "github.com/ethereum/go-ethereum/common"
	"github.com/hermeznetwork/txverifier/common"
	"github.com/hermeznetwork/txverifier/eth"
	"github.com/hermeznetwork/txverifier/log"
)

// Reconciler computes fees from settlements
type Reconciler struct{}

// New creates a Reconciler
func New() *Reconciler {
	return &Reconciler{}
}

func malformed(layer common.Layer, format string, args ...interface{}) error {
	return &common.QueryError{Op: fmt.Sprintf("receipt on %s", layer),
		Err: fmt.Errorf("malformed receipt: "+format, args...)}
}

// receiptFee returns the fee of a receipt that must exist on layer
func receiptFee(r *common.Receipt, layer common.Layer) (*big.Int, error) {
	if r == nil {
		return nil, malformed(layer, "missing")
	}
	if r.Layer != layer {
		return nil, malformed(layer, "receipt is from %s", r.Layer)
	}
	fee := r.Fee()
	if fee == nil {
		return nil, malformed(layer, "missing gasUsed or effectiveGasPrice")
	}
	if fee.Sign() < 0 {
		return nil, malformed(layer, "negative fee %s", fee)
	}
	return fee, nil
}

// ComputeCost returns the cost charged to account on layer by the settled
// operation.  The result is never negative.  A receipt missing the gas
// fields is reported as a *common.QueryError.
func (r *Reconciler) ComputeCost(account ethCommon.Address, layer common.Layer,
	s *common.Settlement) (*big.Int, error) {
	if s == nil {
		return nil, &common.QueryError{Op: "settlement", Err: fmt.Errorf("missing settlement")}
	}
	zero := big.NewInt(0)
	source := s.Kind.SourceLayer()
	if layer != source {
		return zero, nil
	}
	if s.Receipt == nil {
		return nil, malformed(layer, "missing")
	}
	if s.Receipt.From != account {
		return zero, nil
	}
	fee, err := receiptFee(s.Receipt, source)
	if err != nil {
		return nil, err
	}
	if s.Kind == common.OpDeposit {
		if s.BaseCost == nil {
			return nil, &common.QueryError{Op: "base cost",
				Err: fmt.Errorf("deposit %s has no base cost quote", s.Receipt.TxHash.Hex())}
		}
		fee.Add(fee, s.BaseCost)
	}
	log.Debugw("Fee", "operation", s.Kind, "layer", layer, "account", account.Hex(), "fee", fee)
	return fee, nil
}

// QuoteBaseCost requests the L2 base cost of a deposit before it is
// submitted.  A failed quote is returned as a *common.QueryError.
func QuoteBaseCost(ctx context.Context, wallet eth.WalletInterface,
	req eth.BaseCostRequest) (*big.Int, error) {
	cost, err := wallet.GetBaseCost(ctx, req)
	if err != nil {
		return nil, &common.QueryError{Op: "base cost", Err: err}
	}
	if cost == nil || cost.Sign() < 0 {
		return nil, &common.QueryError{Op: "base cost", Err: fmt.Errorf("invalid quote %v", cost)}
	}
	return cost, nil
}
