// Package invariants defines the precondition-violation error category shared
// by every succinct structure.
//
// Violations detected while building or loading a structure are returned as
// errors wrapping ErrPrecondition. Violations detected in the middle of a
// lookup cannot be recovered by the caller and are raised with Violation,
// which panics with an error wrapping ErrPrecondition.
package invariants

import (
	"github.com/pkg/errors"
)

// ErrPrecondition is the cause of every precondition violation.
var ErrPrecondition = errors.New("precondition violation")

// Errorf returns an error wrapping ErrPrecondition.
func Errorf(format string, args ...interface{}) error {
	return errors.Wrapf(ErrPrecondition, format, args...)
}

// Violation panics with an error wrapping ErrPrecondition.
func Violation(format string, args ...interface{}) {
	panic(Errorf(format, args...))
}

// CheckIndex panics if i is not a valid index into an array of length n.
func CheckIndex(i, n uint64) {
	if i >= n {
		Violation("index %d out of range [0, %d)", i, n)
	}
}

// IsViolation reports whether a recovered panic value is a precondition
// violation.
func IsViolation(r interface{}) bool {
	err, ok := r.(error)
	return ok && errors.Is(err, ErrPrecondition)
}
