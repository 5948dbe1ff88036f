package reportdb

import (
	"math/big"

	"github.com/hermeznetwork/txverifier/common"
)

// Violation is a stored violation of a verdict
type Violation struct {
	RunID    string   `meddler:"run_id"`
	Scenario string   `meddler:"scenario"`
	Position int      `meddler:"position"`
	Kind     string   `meddler:"kind"`
	Layer    *string  `meddler:"layer"`
	Account  *string  `meddler:"account"`
	Token    *string  `meddler:"token"`
	Expected *big.Int `meddler:"expected,bigintnull"`
	Actual   *big.Int `meddler:"actual,bigintnull"`
	Fee      *big.Int `meddler:"fee,bigintnull"`
	Message  string   `meddler:"message"`
}

func strPtr(s string) *string {
	return &s
}

func newViolation(runID, name string, position int, v common.Violation) Violation {
	violation := Violation{
		RunID:    runID,
		Scenario: name,
		Position: position,
		Kind:     string(v.Kind),
		Expected: v.Expected,
		Actual:   v.Actual,
		Fee:      v.Fee,
		Message:  v.String(),
	}
	if v.Key != nil {
		violation.Layer = strPtr(v.Key.Layer.String())
		violation.Token = strPtr(v.Key.Token.Hex())
		if v.Kind == common.ViolationBalance {
			violation.Account = strPtr(v.Key.Account.Hex())
		}
	}
	return violation
}
