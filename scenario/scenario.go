/*
Package scenario contains the built-in checks of the transaction verifier.
Every scenario submits one or more operations through the Env and returns the
Verdict of their verification.  Scenarios that need a withdrawal to become
finalizable on L1 are skipped in fast mode.
*/
package scenario

import (
	"context"
	"errors"
	"time"

	"github.com/hermeznetwork/txverifier/common"
	"github.com/hermeznetwork/txverifier/harness"
	"github.com/hermeznetwork/txverifier/log"
	"github.com/hermeznetwork/txverifier/metric"
	"github.com/hermeznetwork/txverifier/verifier"
)

// ErrSkipped is returned by a scenario that can not run in the Env
var ErrSkipped = errors.New("scenario skipped")

// Outcome of a scenario
const (
	OutcomePass            = metric.ResultPass
	OutcomeFail            = metric.ResultFail
	OutcomeInconclusive    = metric.ResultInconclusive
	OutcomeOperationFailed = metric.ResultOperationFailed
	OutcomeSkipped         = "skipped"
	OutcomeError           = "error"
)

// Scenario is a named check
type Scenario struct {
	Name string
	// NeedsFinalization is set for scenarios that wait for a withdrawal to
	// be finalizable on L1
	NeedsFinalization bool
	Run               func(ctx context.Context, env *harness.Env) (*common.Verdict, error)
}

// Result is the result of running a scenario
type Result struct {
	Name     string
	Verdict  *common.Verdict
	Err      error
	Skipped  bool
	Duration time.Duration
}

// Outcome classifies the result
func (r *Result) Outcome() string {
	switch {
	case r.Skipped:
		return OutcomeSkipped
	case r.Err != nil:
		var qerr *common.QueryError
		var ferr *common.OperationFailedError
		if errors.As(r.Err, &qerr) {
			return OutcomeInconclusive
		}
		if errors.As(r.Err, &ferr) {
			return OutcomeOperationFailed
		}
		return OutcomeError
	case r.Verdict == nil || !r.Verdict.Passed():
		return OutcomeFail
	default:
		return OutcomePass
	}
}

// Passed returns true if the scenario passed or was skipped
func (r *Result) Passed() bool {
	outcome := r.Outcome()
	return outcome == OutcomePass || outcome == OutcomeSkipped
}

// All returns every built-in scenario, in run order
func All() []Scenario {
	return []Scenario{
		{Name: "transfer-legacy", Run: transferOfType(common.TxTypeLegacy)},
		{Name: "transfer-eip1559", Run: transferOfType(common.TxTypeDynamicFee)},
		{Name: "transfer-eip712", Run: transferOfType(common.TxTypeEIP712)},
		{Name: "access-list-rejected", Run: accessListRejected},
		{Name: "insufficient-funds", Run: insufficientFunds},
		{Name: "zero-value-transfer", Run: zeroValueTransfer},
		{Name: "self-transfer", Run: selfTransfer},
		{Name: "erc20-transfer", Run: erc20Transfer},
		{Name: "deposit", Run: deposit},
		{Name: "withdrawal", NeedsFinalization: true, Run: withdrawal},
	}
}

// Names returns the names of every built-in scenario
func Names() []string {
	all := All()
	names := make([]string, len(all))
	for i, s := range all {
		names[i] = s.Name
	}
	return names
}

func selected(name string, names []string) bool {
	if len(names) == 0 {
		return true
	}
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}

// Run runs the scenarios named in names, or all of them if names is empty,
// one after the other
func Run(ctx context.Context, env *harness.Env, names []string) []Result {
	var results []Result
	for _, s := range All() {
		if !selected(s.Name, names) {
			continue
		}
		result := RunScenario(ctx, env, s)
		results = append(results, result)
		if ctx.Err() != nil {
			break
		}
	}
	return results
}

// RunScenario runs a single scenario
func RunScenario(ctx context.Context, env *harness.Env, s Scenario) Result {
	result := Result{Name: s.Name}
	if s.NeedsFinalization && env.SkipFinalization() {
		result.Skipped = true
	} else {
		start := time.Now()
		verdict, err := s.Run(ctx, env)
		result.Duration = time.Since(start)
		if errors.Is(err, ErrSkipped) {
			result.Skipped = true
		} else {
			result.Verdict, result.Err = verdict, err
		}
	}
	outcome := result.Outcome()
	metric.Scenarios.WithLabelValues(s.Name, outcome).Inc()
	l := log.With("scenario", s.Name, "outcome", outcome)
	switch outcome {
	case OutcomePass, OutcomeSkipped:
		l.Infow("Scenario", "duration", result.Duration)
	case OutcomeFail:
		l.Warnw("Scenario", "verdict", result.Verdict)
	default:
		l.Errorw("Scenario", "err", result.Err)
	}
	return result
}

// merge combines the verdicts of the verifications of a scenario
func merge(verdicts ...*common.Verdict) *common.Verdict {
	merged := &common.Verdict{}
	for _, v := range verdicts {
		merged.Rejection = merged.Rejection || v.Rejection
		merged.Checks += v.Checks
		merged.Violations = append(merged.Violations, v.Violations...)
	}
	return merged
}

// settled is a Pending already settled
type settled struct {
	s *common.Settlement
}

func (p settled) Wait(ctx context.Context) (*common.Settlement, error) {
	return p.s, nil
}

var _ verifier.Pending = settled{}
