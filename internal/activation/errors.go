package activation

import (
	"errors"
	"fmt"
)

// Sentinel errors for capture-integrity checks.
var (
	// ErrFinishBeforeStart is returned when a finish timestamp precedes start.
	ErrFinishBeforeStart = errors.New("finish precedes start")

	// ErrNestingViolation is returned when a child call is not contained in
	// its parent's [start, finish] interval.
	ErrNestingViolation = errors.New("child activation outlives parent")

	// ErrEmptyStack is returned by Stack.Return with no active call.
	ErrEmptyStack = errors.New("no active call")
)

// SliceOp identifies the operation that found the slice stack unbalanced.
type SliceOp string

const (
	// SliceOpPop is a pop on an empty slice stack.
	SliceOpPop SliceOp = "pop"

	// SliceOpFinalize is markers left on the stack when the call finished.
	SliceOpFinalize SliceOp = "finalize"
)

// SliceStackError reports an unbalanced slice stack on an activation.
// The activation's other data is unaffected and can still be persisted.
type SliceStackError struct {
	// Activation is the name of the affected call.
	Activation string

	// Line is the call-site line of the affected call.
	Line int

	// Op is the operation that detected the imbalance.
	Op SliceOp

	// Remaining is the number of markers left (SliceOpFinalize only).
	Remaining int
}

// Error implements the error interface.
func (e *SliceStackError) Error() string {
	if e.Op == SliceOpFinalize {
		return fmt.Sprintf("slice stack integrity: %d marker(s) left on %s (line %d)", e.Remaining, e.Activation, e.Line)
	}
	return fmt.Sprintf("slice stack integrity: pop on empty stack in %s (line %d)", e.Activation, e.Line)
}

// IsSliceStackError returns true if err is or wraps a *SliceStackError.
func IsSliceStackError(err error) bool {
	var se *SliceStackError
	return errors.As(err, &se)
}
