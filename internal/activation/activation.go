package activation

import (
	"fmt"
	"time"

	"github.com/roach88/provcap/internal/ir"
)

// DefinitionPoint is where a variable was last written.
type DefinitionPoint struct {
	// Line is the source line of the write.
	Line int

	// Lasti is the execution position of the write within the line.
	Lasti int

	// Call is the activation whose return value produced the write, or nil
	// when the value did not come from a call.
	Call *Activation
}

// SliceMarker records the line about to execute while its sub-expressions
// (and the calls inside them) are evaluated.
type SliceMarker struct {
	Line  int
	Lasti int
}

// FileAccess records one open of a file during the call.
type FileAccess struct {
	// Name is the path as the program passed it.
	Name string

	// Mode is the open mode ("r", "w", "a+", ...).
	Mode string

	// Buffering is the buffering argument, as text.
	Buffering string

	// Timestamp is when the access happened, relative to trial start.
	Timestamp time.Duration

	// ContentHashBefore is the digest of the file when it was opened.
	// Empty when the file did not exist or was not snapshotted.
	ContentHashBefore string

	// ContentHashAfter is the digest at trial end. Filled at persist time
	// when the capture layer leaves it empty.
	ContentHashAfter string
}

// Activation is one function call observed during capture.
type Activation struct {
	Name string
	Line int

	// Start and Finish are elapsed times since trial start. Finish is only
	// meaningful once Finished reports true.
	Start  time.Duration
	Finish time.Duration

	ReturnValue ir.Value

	// Arguments are the bound parameters by name.
	Arguments ir.Object

	// Args, Kwargs and Starargs are the call-site positional, keyword and
	// unpacked arguments.
	Args     ir.Array
	Kwargs   ir.Object
	Starargs ir.Array

	// Globals is the snapshot of global bindings visible at call time.
	Globals ir.Object

	// Context maps a variable name to its most recent writer.
	Context map[string]DefinitionPoint

	SliceStack []SliceMarker

	// Lasti is the current execution position within the call. -1 before
	// the first instruction.
	Lasti int

	// FunctionActivations are the calls made from this call, in call order.
	FunctionActivations []*Activation

	// FileAccesses are the file opens attributed to this call, in order.
	FileAccesses []*FileAccess

	finished bool
}

// New returns an empty activation for a call to name at line.
func New(name string, line int) *Activation {
	return &Activation{
		Name:                name,
		Line:                line,
		Arguments:           ir.Object{},
		Args:                ir.Array{},
		Kwargs:              ir.Object{},
		Starargs:            ir.Array{},
		Globals:             ir.Object{},
		Context:             map[string]DefinitionPoint{},
		SliceStack:          []SliceMarker{},
		Lasti:               -1,
		FunctionActivations: []*Activation{},
		FileAccesses:        []*FileAccess{},
	}
}

// RecordStart sets the start timestamp.
func (a *Activation) RecordStart(ts time.Duration) {
	a.Start = ts
}

// RecordFinish sets the finish timestamp and return value. A finish before
// start is refused and leaves the activation pending.
func (a *Activation) RecordFinish(ts time.Duration, value ir.Value) error {
	if ts < a.Start {
		return fmt.Errorf("%s (line %d): finish %v < start %v: %w", a.Name, a.Line, ts, a.Start, ErrFinishBeforeStart)
	}
	if value == nil {
		value = ir.Null{}
	}
	a.Finish = ts
	a.ReturnValue = value
	a.finished = true
	return nil
}

// Finished reports whether RecordFinish has succeeded.
func (a *Activation) Finished() bool {
	return a.finished
}

// Pending reports whether the call has not returned. Downstream consumers
// treat pending activations as incomplete, not as errors.
func (a *Activation) Pending() bool {
	return !a.finished
}

// PushChild appends a call made from this one.
func (a *Activation) PushChild(child *Activation) {
	a.FunctionActivations = append(a.FunctionActivations, child)
}

// RecordFileAccess appends a file access.
func (a *Activation) RecordFileAccess(access *FileAccess) {
	a.FileAccesses = append(a.FileAccesses, access)
}

// SetArgument binds a parameter value.
func (a *Activation) SetArgument(name string, value ir.Value) {
	a.Arguments[name] = orNull(value)
}

// SetGlobal records a global binding visible at call time.
func (a *Activation) SetGlobal(name string, value ir.Value) {
	a.Globals[name] = orNull(value)
}

// AddArg appends a positional call-site argument.
func (a *Activation) AddArg(value ir.Value) {
	a.Args = append(a.Args, orNull(value))
}

// AddKwarg records a keyword call-site argument.
func (a *Activation) AddKwarg(name string, value ir.Value) {
	a.Kwargs[name] = orNull(value)
}

// AddStararg appends an unpacked call-site argument.
func (a *Activation) AddStararg(value ir.Value) {
	a.Starargs = append(a.Starargs, orNull(value))
}

// BindContext records point as the most recent writer of variable.
// Last write wins.
func (a *Activation) BindContext(variable string, point DefinitionPoint) {
	a.Context[variable] = point
}

// Lookup returns the most recent writer of variable in this call.
func (a *Activation) Lookup(variable string) (DefinitionPoint, bool) {
	p, ok := a.Context[variable]
	return p, ok
}

// PushSliceMarker pushes a marker when evaluation of a line's
// sub-expressions begins.
func (a *Activation) PushSliceMarker(m SliceMarker) {
	a.SliceStack = append(a.SliceStack, m)
}

// PopSliceMarker pops the most recent marker. Popping an empty stack
// returns a *SliceStackError.
func (a *Activation) PopSliceMarker() (SliceMarker, error) {
	n := len(a.SliceStack)
	if n == 0 {
		return SliceMarker{}, &SliceStackError{Activation: a.Name, Line: a.Line, Op: SliceOpPop}
	}
	m := a.SliceStack[n-1]
	a.SliceStack = a.SliceStack[:n-1]
	return m, nil
}

// CurrentSliceMarker returns the top marker without popping it.
func (a *Activation) CurrentSliceMarker() (SliceMarker, bool) {
	if len(a.SliceStack) == 0 {
		return SliceMarker{}, false
	}
	return a.SliceStack[len(a.SliceStack)-1], true
}

// Finalize checks that the slice stack is balanced. Markers left behind are
// reported as a *SliceStackError; they are kept so the data can still be
// inspected and persisted.
func (a *Activation) Finalize() error {
	if n := len(a.SliceStack); n > 0 {
		return &SliceStackError{Activation: a.Name, Line: a.Line, Op: SliceOpFinalize, Remaining: n}
	}
	return nil
}

// Walk visits the tree rooted at a depth-first in call order. Returning
// false from fn skips the visited activation's children.
func (a *Activation) Walk(fn func(act *Activation, depth int) bool) {
	a.walk(fn, 0)
}

func (a *Activation) walk(fn func(*Activation, int) bool, depth int) {
	if !fn(a, depth) {
		return
	}
	for _, child := range a.FunctionActivations {
		child.walk(fn, depth+1)
	}
}

// Count returns the number of activations in the tree rooted at a.
func (a *Activation) Count() int {
	n := 0
	a.Walk(func(*Activation, int) bool {
		n++
		return true
	})
	return n
}

// CheckNesting verifies that every finished child lies within its parent's
// [start, finish] interval, recursively. Pending activations are skipped.
func (a *Activation) CheckNesting() error {
	for _, child := range a.FunctionActivations {
		if child.Start < a.Start {
			return fmt.Errorf("%s starts at %v before %s at %v: %w", child.Name, child.Start, a.Name, a.Start, ErrNestingViolation)
		}
		if a.finished && child.finished && child.Finish > a.Finish {
			return fmt.Errorf("%s finishes at %v after %s at %v: %w", child.Name, child.Finish, a.Name, a.Finish, ErrNestingViolation)
		}
		if a.finished && child.Pending() {
			return fmt.Errorf("%s still running when %s returned: %w", child.Name, a.Name, ErrNestingViolation)
		}
		if err := child.CheckNesting(); err != nil {
			return err
		}
	}
	return nil
}

func orNull(v ir.Value) ir.Value {
	if v == nil {
		return ir.Null{}
	}
	return v
}
