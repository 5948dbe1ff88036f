package common

import (
	"fmt"
	"math/big"
	"strings"
)

// ViolationKind classifies a Violation
type ViolationKind string

const (
	// ViolationBalance is a balance delta that did not match
	ViolationBalance ViolationKind = "balance"
	// ViolationReceipt is a receipt predicate that returned false
	ViolationReceipt ViolationKind = "receipt"
	// ViolationConservation is a non zero sum of deltas for a same layer
	// transfer
	ViolationConservation ViolationKind = "conservation"
	// ViolationRejection is a missing or unexpected rejection
	ViolationRejection ViolationKind = "rejection"
)

// Violation is a single expectation that did not hold
type Violation struct {
	Kind ViolationKind
	// Key is set for balance and conservation violations
	Key *BalanceKey
	// Expected and Actual are set for balance and conservation violations.
	// Actual is the observed delta after fee adjustment.
	Expected *big.Int
	Actual   *big.Int
	// Fee is the fee added back to the observed delta, if any
	Fee *big.Int
	// Message is the failure message of a receipt predicate
	Message string
	// ExpectedSubstring and ActualMessage are set for rejection violations
	ExpectedSubstring string
	ActualMessage     string
}

// String returns a human readable description of the Violation
func (v Violation) String() string {
	switch v.Kind {
	case ViolationBalance:
		s := fmt.Sprintf("balance %s: expected delta %s, actual %s", v.Key, v.Expected, v.Actual)
		if v.Fee != nil && v.Fee.Sign() != 0 {
			s += fmt.Sprintf(" (fee %s excluded)", v.Fee)
		}
		return s
	case ViolationConservation:
		return fmt.Sprintf("conservation %s/%s: deltas sum to %s, expected %s",
			v.Key.Layer, v.Key.Token.Hex(), v.Actual, v.Expected)
	case ViolationReceipt:
		return fmt.Sprintf("receipt: %s", v.Message)
	case ViolationRejection:
		return fmt.Sprintf("rejection: expected message containing %q, got %q",
			v.ExpectedSubstring, v.ActualMessage)
	default:
		return fmt.Sprintf("%s: %s", v.Kind, v.Message)
	}
}

// Verdict is the result of a verification: pass if there are no violations,
// otherwise fail listing every violation in order.  Expectations not listed
// held.
type Verdict struct {
	Rejection  bool
	Checks     int
	Violations []Violation
}

// Passed returns true if no expectation was violated
func (v *Verdict) Passed() bool {
	return len(v.Violations) == 0
}

// Add appends a violation
func (v *Verdict) Add(violation Violation) {
	v.Violations = append(v.Violations, violation)
}

// Err returns nil if the verdict passed, or a *MismatchError
func (v *Verdict) Err() error {
	if v.Passed() {
		return nil
	}
	violations := make([]Violation, len(v.Violations))
	copy(violations, v.Violations)
	return &MismatchError{Rejection: v.Rejection, Violations: violations}
}

// String returns a summary of the verdict
func (v *Verdict) String() string {
	if v.Passed() {
		return fmt.Sprintf("pass (%d checks)", v.Checks)
	}
	msgs := make([]string, len(v.Violations))
	for i, violation := range v.Violations {
		msgs[i] = violation.String()
	}
	return fmt.Sprintf("fail (%d of %d checks): %s", len(v.Violations), v.Checks,
		strings.Join(msgs, "; "))
}
