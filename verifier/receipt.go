package verifier

import (
	"fmt"

	ethCommon "github.com/ethereum/go-ethereum/common"
	"github.com/hermeznetwork/txverifier/common"
)

// ReceiptExpectation is a predicate over the receipt of a settled operation
// and the message reported when it does not hold
type ReceiptExpectation struct {
	Predicate      func(r *common.Receipt) bool
	FailureMessage string
}

// Expect creates a ReceiptExpectation
func Expect(predicate func(r *common.Receipt) bool, failureMessage string) ReceiptExpectation {
	return ReceiptExpectation{Predicate: predicate, FailureMessage: failureMessage}
}

// Evaluate returns true if the predicate holds for r.  A missing receipt, a
// missing predicate or a panicking predicate count as a failure.
func (e ReceiptExpectation) Evaluate(r *common.Receipt) (ok bool) {
	if e.Predicate == nil || r == nil {
		return false
	}
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	return e.Predicate(r)
}

// HasType expects the receipt to have the type code t
func HasType(t common.TxType) ReceiptExpectation {
	return Expect(func(r *common.Receipt) bool {
		return r.Type != nil && *r.Type == t
	}, fmt.Sprintf("receipt type should be %d (%s)", uint8(t), t))
}

// IsSuccessful expects a successful status
func IsSuccessful() ReceiptExpectation {
	return Expect(func(r *common.Receipt) bool {
		return r.Successful()
	}, "receipt status should be successful")
}

// HasFrom expects the transaction to be sent by from
func HasFrom(from ethCommon.Address) ReceiptExpectation {
	return Expect(func(r *common.Receipt) bool {
		return r.From == from
	}, fmt.Sprintf("receipt sender should be %s", from.Hex()))
}

// HasTo expects the transaction to be sent to `to`
func HasTo(to ethCommon.Address) ReceiptExpectation {
	return Expect(func(r *common.Receipt) bool {
		return r.To != nil && *r.To == to
	}, fmt.Sprintf("receipt recipient should be %s", to.Hex()))
}

// OnLayerReceipt expects the receipt to come from layer
func OnLayerReceipt(layer common.Layer) ReceiptExpectation {
	return Expect(func(r *common.Receipt) bool {
		return r.Layer == layer
	}, fmt.Sprintf("receipt should be from %s", layer))
}

// InL1Batch expects an L2 receipt to carry its L1 batch number and index
func InL1Batch() ReceiptExpectation {
	return Expect(func(r *common.Receipt) bool {
		return r.L1BatchNumber != nil && r.L1BatchTxIndex != nil
	}, "receipt should be included in an L1 batch")
}
