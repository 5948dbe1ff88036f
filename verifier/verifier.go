/*
Package verifier asserts the outcome of a single operation.

ToBeAccepted brackets the operation between two balance snapshots:

 1. snapshot every balance named by the expectations
 2. submit the operation (the verifier calls the Submission, so the snapshot
    always happens before the submission)
 3. wait for the operation to settle
 4. snapshot the same balances again
 5. compare after - before with every expectation, adding back the fee paid
    by the account when the expectation excludes it
 6. evaluate every receipt predicate

Every violated expectation is reported, not only the first one.  A failed
balance read aborts the verification with a *common.QueryError, and a rejected
operation with a *common.OperationFailedError; both are returned as errors,
distinct from a failed Verdict.

ToBeRejected submits an operation expected to fail and checks that the
rejection message contains a substring.
*/
package verifier

import (
	"context"
	"math/big"
	"strings"
	"time"

	ethCommon "github.com/ethereum/go-ethereum/common"
	"github.com/hermeznetwork/tracerr"
	"github.com/hermeznetwork/txverifier/common"
	"github.com/hermeznetwork/txverifier/log"
	"github.com/hermeznetwork/txverifier/metric"
)

// Pending is a submitted operation whose settlement can be awaited
type Pending interface {
	Wait(ctx context.Context) (*common.Settlement, error)
}

// Submission submits an operation.  It returns an error if the operation is
// rejected on submission.
type Submission func(ctx context.Context) (Pending, error)

// Snapshotter reads a set of balances at a single logical instant
type Snapshotter interface {
	Snapshot(ctx context.Context, keys []common.BalanceKey) (*common.Snapshot, error)
}

// CostComputer returns the fee paid by an account on a layer for a settled
// operation
type CostComputer interface {
	ComputeCost(account ethCommon.Address, layer common.Layer,
		s *common.Settlement) (*big.Int, error)
}

const (
	checkAccept = "accept"
	checkReject = "reject"
)

// OutcomeVerifier verifies the effects of operations expected to succeed.  It
// keeps no state between verifications, so it can be shared by concurrent
// verifications on disjoint accounts.
type OutcomeVerifier struct {
	oracle       Snapshotter
	reconciler   CostComputer
	conservation bool
}

// Option configures an OutcomeVerifier
type Option func(*OutcomeVerifier)

// WithConservation enables the zero sum check: for same layer operations,
// the fee adjusted deltas of all the declared balances of a token on a layer
// must add up to zero.
func WithConservation() Option {
	return func(v *OutcomeVerifier) {
		v.conservation = true
	}
}

// New creates an OutcomeVerifier
func New(oracle Snapshotter, reconciler CostComputer, opts ...Option) *OutcomeVerifier {
	v := &OutcomeVerifier{oracle: oracle, reconciler: reconciler}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

func keysOf(balances []common.ExpectedDelta) []common.BalanceKey {
	keys := make([]common.BalanceKey, len(balances))
	for i := range balances {
		keys[i] = balances[i].BalanceKey
	}
	return common.UniqueKeys(keys)
}

func (v *OutcomeVerifier) snapshot(ctx context.Context,
	keys []common.BalanceKey) (*common.Snapshot, error) {
	if len(keys) == 0 {
		return common.NewSnapshot(nil), nil
	}
	return v.oracle.Snapshot(ctx, keys)
}

// settle submits the operation and waits for its settlement
func settle(ctx context.Context, submit Submission) (*common.Settlement, error) {
	pending, err := submit(ctx)
	if err != nil {
		return nil, &common.OperationFailedError{Err: err}
	}
	if pending == nil {
		return nil, &common.OperationFailedError{Err: common.ErrNoPendingOperation}
	}
	start := time.Now()
	settlement, err := pending.Wait(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, tracerr.Wrap(ctx.Err())
		}
		return nil, &common.OperationFailedError{Err: err}
	}
	metric.MeasureDuration(metric.SettlementDuration, start, settlement.Kind.String())
	return settlement, nil
}

// ToBeAccepted submits an operation and verifies its effects.  It returns
// the Verdict, or an error if the verification could not be completed: a
// *common.QueryError when a balance could not be read or a receipt is
// malformed, a *common.OperationFailedError when the operation was rejected.
func (v *OutcomeVerifier) ToBeAccepted(ctx context.Context, submit Submission,
	balances []common.ExpectedDelta, receipts ...ReceiptExpectation) (*common.Verdict, error) {
	verdict, err := v.toBeAccepted(ctx, submit, balances, receipts)
	if err != nil {
		result := metric.ResultInconclusive
		if _, ok := err.(*common.OperationFailedError); ok {
			result = metric.ResultOperationFailed
		}
		metric.Verifications.WithLabelValues(checkAccept, result).Inc()
		metric.CollectError(err)
		log.Warnw("Verification not completed", "result", result, "err", err)
		return nil, err
	}
	record(checkAccept, verdict)
	return verdict, nil
}

func (v *OutcomeVerifier) toBeAccepted(ctx context.Context, submit Submission,
	balances []common.ExpectedDelta, receipts []ReceiptExpectation) (*common.Verdict, error) {
	keys := keysOf(balances)
	before, err := v.snapshot(ctx, keys)
	if err != nil {
		return nil, err
	}
	settlement, err := settle(ctx, submit)
	if err != nil {
		return nil, err
	}
	after, err := v.snapshot(ctx, keys)
	if err != nil {
		return nil, err
	}
	deltas, err := before.Delta(after)
	if err != nil {
		return nil, &common.QueryError{Op: "snapshot", Err: err}
	}

	fees := newFeeCache(v.reconciler, settlement)
	verdict := &common.Verdict{}
	for _, expected := range balances {
		verdict.Checks++
		actual := new(big.Int).Set(deltas[expected.BalanceKey])
		var fee *big.Int
		if expected.ExcludeFee && common.IsNativeToken(expected.Token) {
			if fee, err = fees.get(expected.BalanceKey); err != nil {
				return nil, err
			}
			actual.Add(actual, fee)
		}
		amount := big.NewInt(0)
		if expected.Amount != nil {
			amount.Set(expected.Amount)
		}
		if actual.Cmp(amount) != 0 {
			key := expected.BalanceKey
			verdict.Add(common.Violation{
				Kind:     common.ViolationBalance,
				Key:      &key,
				Expected: amount,
				Actual:   actual,
				Fee:      fee,
			})
		}
	}

	if v.conservation && !settlement.Kind.CrossLayer() {
		if err := checkConservation(verdict, keys, deltas, fees); err != nil {
			return nil, err
		}
	}

	for _, expectation := range receipts {
		verdict.Checks++
		if !expectation.Evaluate(settlement.Receipt) {
			verdict.Add(common.Violation{
				Kind:    common.ViolationReceipt,
				Message: expectation.FailureMessage,
			})
		}
	}
	return verdict, nil
}

// checkConservation adds a violation for every (layer, token) whose declared
// balances do not add up to zero once the fees are added back
func checkConservation(verdict *common.Verdict, keys []common.BalanceKey,
	deltas map[common.BalanceKey]*big.Int, fees *feeCache) error {
	type group struct {
		layer common.Layer
		token ethCommon.Address
	}
	sums := make(map[group]*big.Int)
	var order []group
	for _, key := range keys {
		g := group{layer: key.Layer, token: key.Token}
		sum, ok := sums[g]
		if !ok {
			sum = big.NewInt(0)
			sums[g] = sum
			order = append(order, g)
		}
		sum.Add(sum, deltas[key])
		if common.IsNativeToken(key.Token) {
			fee, err := fees.get(key)
			if err != nil {
				return err
			}
			sum.Add(sum, fee)
		}
	}
	for _, g := range order {
		verdict.Checks++
		if sums[g].Sign() != 0 {
			verdict.Add(common.Violation{
				Kind:     common.ViolationConservation,
				Key:      &common.BalanceKey{Layer: g.layer, Token: g.token},
				Expected: big.NewInt(0),
				Actual:   sums[g],
			})
		}
	}
	return nil
}

// ToBeRejected submits an operation expected to be rejected, and verifies
// that the rejection message contains substring (case sensitive).  The
// rejection may happen on submission or while settling.  A single
// submission is made.
func ToBeRejected(ctx context.Context, submit Submission, substring string) (*common.Verdict, error) {
	verdict := &common.Verdict{Rejection: true, Checks: 1}
	var reason error
	pending, err := submit(ctx)
	if err != nil {
		reason = err
	} else if pending == nil {
		metric.Verifications.WithLabelValues(checkReject, metric.ResultInconclusive).Inc()
		return nil, tracerr.Wrap(common.ErrNoPendingOperation)
	} else if _, err := pending.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			metric.Verifications.WithLabelValues(checkReject, metric.ResultInconclusive).Inc()
			return nil, tracerr.Wrap(ctx.Err())
		}
		reason = err
	}

	switch {
	case reason == nil:
		verdict.Add(common.Violation{
			Kind:              common.ViolationRejection,
			ExpectedSubstring: substring,
			ActualMessage:     common.ErrNoRejection.Error(),
		})
	case !strings.Contains(reason.Error(), substring):
		verdict.Add(common.Violation{
			Kind:              common.ViolationRejection,
			ExpectedSubstring: substring,
			ActualMessage:     reason.Error(),
		})
	default:
		log.Debugw("Rejected as expected", "reason", reason.Error())
	}
	record(checkReject, verdict)
	return verdict, nil
}

func record(check string, verdict *common.Verdict) {
	if verdict.Passed() {
		metric.Verifications.WithLabelValues(check, metric.ResultPass).Inc()
		log.Debugw("Verification passed", "check", check, "checks", verdict.Checks)
		return
	}
	metric.Verifications.WithLabelValues(check, metric.ResultFail).Inc()
	for _, violation := range verdict.Violations {
		metric.Violations.WithLabelValues(string(violation.Kind)).Inc()
	}
	log.Warnw("Verification failed", "check", check, "verdict", verdict.String())
}

// feeCache computes the fee of each balance at most once per verification
type feeCache struct {
	reconciler CostComputer
	settlement *common.Settlement
	fees       map[common.BalanceKey]*big.Int
}

func newFeeCache(reconciler CostComputer, settlement *common.Settlement) *feeCache {
	return &feeCache{
		reconciler: reconciler,
		settlement: settlement,
		fees:       make(map[common.BalanceKey]*big.Int),
	}
}

func (c *feeCache) get(key common.BalanceKey) (*big.Int, error) {
	if fee, ok := c.fees[key]; ok {
		return new(big.Int).Set(fee), nil
	}
	fee, err := c.reconciler.ComputeCost(key.Account, key.Layer, c.settlement)
	if err != nil {
		return nil, err
	}
	c.fees[key] = fee
	return new(big.Int).Set(fee), nil
}
