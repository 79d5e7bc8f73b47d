package activation

import (
	"errors"
	"fmt"

	"github.com/roach88/provcap/internal/ir"
)

// Stack tracks the chain of active calls on one goroutine and builds the
// activation tree as calls enter and return.
//
// Thread-safety: a Stack must only be used by the goroutine that owns it.
type Stack struct {
	clock  Clock
	frames []*Activation
	roots  []*Activation
}

// NewStack creates an empty stack stamping events with clock.
func NewStack(clock Clock) *Stack {
	return &Stack{clock: clock}
}

// Enter starts a call to name at line. With no active call the new
// activation becomes a root; otherwise it is appended to the caller's
// children.
func (s *Stack) Enter(name string, line int) *Activation {
	act := New(name, line)
	act.RecordStart(s.clock.Now())
	if parent := s.Current(); parent != nil {
		parent.PushChild(act)
	} else {
		s.roots = append(s.roots, act)
	}
	s.frames = append(s.frames, act)
	return act
}

// Return finishes the innermost call with value and pops it.
//
// The activation is popped even when an integrity check fails, so a capture
// can continue and persist what it has. The returned error may wrap
// ErrFinishBeforeStart, ErrNestingViolation, or a *SliceStackError.
func (s *Stack) Return(value ir.Value) (*Activation, error) {
	n := len(s.frames)
	if n == 0 {
		return nil, ErrEmptyStack
	}
	act := s.frames[n-1]
	s.frames = s.frames[:n-1]

	var errs []error
	if err := act.RecordFinish(s.clock.Now(), value); err != nil {
		errs = append(errs, err)
	}
	if err := act.Finalize(); err != nil {
		errs = append(errs, err)
	}
	if act.Finished() {
		for _, child := range act.FunctionActivations {
			if child.Pending() || child.Finish > act.Finish {
				errs = append(errs, fmt.Errorf("%s in %s: %w", child.Name, act.Name, ErrNestingViolation))
				break
			}
		}
	}
	return act, errors.Join(errs...)
}

// Current returns the innermost active call, or nil.
func (s *Stack) Current() *Activation {
	if len(s.frames) == 0 {
		return nil
	}
	return s.frames[len(s.frames)-1]
}

// Root returns the first top-level activation, or nil.
func (s *Stack) Root() *Activation {
	if len(s.roots) == 0 {
		return nil
	}
	return s.roots[0]
}

// Roots returns every top-level activation in call order.
func (s *Stack) Roots() []*Activation {
	return s.roots
}

// Depth returns the number of active calls.
func (s *Stack) Depth() int {
	return len(s.frames)
}
