package common

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrAssertionMismatch is matched by the error of a failed accept
	// verdict: one or more balance or receipt expectations did not hold
	ErrAssertionMismatch = errors.New("assertion mismatch")
	// ErrRejectionMismatch is matched by the error of a failed reject
	// verdict: no rejection occurred, or the reason did not match
	ErrRejectionMismatch = errors.New("rejection mismatch")
	// ErrNoRejection is the actual message reported when an operation
	// expected to be rejected succeeded
	ErrNoRejection = errors.New("expected rejection, got success")
	// ErrNoPendingOperation is reported when a submission returned neither
	// an operation nor an error
	ErrNoPendingOperation = errors.New("no pending operation")
)

// QueryError is returned when a balance or receipt read failed.  A
// verification aborted by a QueryError is inconclusive, which is different
// from a failed verdict.
type QueryError struct {
	Key *BalanceKey
	Op  string
	Err error
}

// Error implements the error interface
func (e *QueryError) Error() string {
	if e.Key != nil {
		return fmt.Sprintf("query %s %s: %v", e.Op, e.Key, e.Err)
	}
	return fmt.Sprintf("query %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error
func (e *QueryError) Unwrap() error {
	return e.Err
}

// OperationFailedError is returned when an operation expected to succeed was
// rejected.  It carries the rejection reason.
type OperationFailedError struct {
	Err error
}

// Error implements the error interface
func (e *OperationFailedError) Error() string {
	return fmt.Sprintf("operation failed: %v", e.Err)
}

// Unwrap returns the underlying error
func (e *OperationFailedError) Unwrap() error {
	return e.Err
}

// MismatchError lists every violation of a failed verdict
type MismatchError struct {
	Rejection  bool
	Violations []Violation
}

// Error implements the error interface
func (e *MismatchError) Error() string {
	kind := ErrAssertionMismatch
	if e.Rejection {
		kind = ErrRejectionMismatch
	}
	msgs := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		msgs[i] = v.String()
	}
	return fmt.Sprintf("%v: %d violation(s): %s", kind, len(e.Violations),
		strings.Join(msgs, "; "))
}

// Is matches ErrAssertionMismatch or ErrRejectionMismatch
func (e *MismatchError) Is(target error) bool {
	if e.Rejection {
		return target == ErrRejectionMismatch
	}
	return target == ErrAssertionMismatch
}
