package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/roach88/provcap/internal/activation"
	"github.com/roach88/provcap/internal/content"
	"github.com/roach88/provcap/internal/ir"
	"github.com/roach88/provcap/internal/store"
	"github.com/roach88/provcap/internal/testutil"
)

// fixtureStart is the wall-clock start of every fixture trial.
var fixtureStart = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// errCrashed unwinds recording at a pending call.
var errCrashed = errors.New("pending call")

// Recording is a fixture played into a store.
type Recording struct {
	Trial *store.Trial

	// Root is the tree as captured, before persistence.
	Root *activation.Activation

	// Warnings are capture integrity problems (unbalanced slice stacks,
	// nesting violations). They do not stop the recording.
	Warnings []string
}

// recorder plays one fixture.
type recorder struct {
	base    string
	clock   *testutil.DeterministicClock
	stack   *activation.Stack
	content *content.Store
	logger  *slog.Logger
	warn    []string
}

// Record writes the fixture's files under the store's base path, plays the
// call tree and saves the trial.
func Record(ctx context.Context, st *store.Store, fx *Fixture, logger *slog.Logger) (*Recording, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cs, err := st.Content()
	if err != nil {
		return nil, err
	}
	base := st.Layout().BasePath

	for _, name := range sortedKeys(fx.Files) {
		path := filepath.Join(base, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("fixture file %s: %w", name, err)
		}
		if err := os.WriteFile(path, []byte(fx.Files[name]), 0o644); err != nil {
			return nil, fmt.Errorf("fixture file %s: %w", name, err)
		}
	}

	step := time.Duration(fx.StepMS) * time.Millisecond
	if step <= 0 {
		step = time.Millisecond
	}
	clock := testutil.NewDeterministicClock(step)
	r := &recorder{
		base:    base,
		clock:   clock,
		stack:   activation.NewStack(clock),
		content: cs,
		logger:  logger,
	}

	root, err := r.play(fx.Root)
	if err != nil && !errors.Is(err, errCrashed) {
		return nil, err
	}

	trial, err := st.SaveTrial(ctx, store.TrialRecord{
		ID:      fx.TrialIDOrDefault(),
		Script:  fx.Script,
		Command: fx.Command,
		Start:   fixtureStart,
		Root:    root,
	})
	if err != nil {
		return nil, err
	}

	logger.Info("fixture recorded",
		"fixture", fx.Name,
		"trial", trial.ID,
		"status", trial.Status,
		"calls", root.Count())
	return &Recording{Trial: trial, Root: root, Warnings: r.warn}, nil
}

// play enters call, performs its file accesses and child calls, then
// returns from it. A pending call unwinds with errCrashed, leaving it and
// its callers unfinished.
func (r *recorder) play(call Call) (*activation.Activation, error) {
	act := r.stack.Enter(call.Name, call.Line)

	if err := r.bindValues(act, call); err != nil {
		return act, err
	}

	for _, op := range call.Files {
		access, err := r.open(op)
		if err != nil {
			return act, err
		}
		act.RecordFileAccess(access)
	}

	for _, child := range call.Calls {
		childAct, err := r.play(child)
		if err != nil {
			return act, err
		}
		if child.Assign != "" {
			act.BindContext(child.Assign, activation.DefinitionPoint{
				Line:  child.Line,
				Lasti: childAct.Lasti,
				Call:  childAct,
			})
		}
	}

	for _, b := range call.Context {
		act.BindContext(b.Name, activation.DefinitionPoint{Line: b.Line, Lasti: b.Lasti})
	}
	for _, m := range call.SliceMarkers {
		act.PushSliceMarker(activation.SliceMarker{Line: m.Line, Lasti: m.Lasti})
	}

	if call.Pending {
		return act, errCrashed
	}

	ret, err := ir.FromAny(call.Returns)
	if err != nil {
		return act, fmt.Errorf("call %s returns: %w", call.Name, err)
	}
	if _, err := r.stack.Return(ret); err != nil {
		r.warn = append(r.warn, err.Error())
		r.logger.Warn("capture integrity", "call", call.Name, "error", err)
	}
	return act, nil
}

func (r *recorder) bindValues(act *activation.Activation, call Call) error {
	for _, name := range sortedKeys(call.Arguments) {
		v, err := ir.FromAny(call.Arguments[name])
		if err != nil {
			return fmt.Errorf("call %s argument %s: %w", call.Name, name, err)
		}
		act.SetArgument(name, v)
	}
	for _, name := range sortedKeys(call.Globals) {
		v, err := ir.FromAny(call.Globals[name])
		if err != nil {
			return fmt.Errorf("call %s global %s: %w", call.Name, name, err)
		}
		act.SetGlobal(name, v)
	}
	for _, name := range sortedKeys(call.Kwargs) {
		v, err := ir.FromAny(call.Kwargs[name])
		if err != nil {
			return fmt.Errorf("call %s kwarg %s: %w", call.Name, name, err)
		}
		act.AddKwarg(name, v)
	}
	for i, a := range call.Args {
		v, err := ir.FromAny(a)
		if err != nil {
			return fmt.Errorf("call %s arg %d: %w", call.Name, i, err)
		}
		act.AddArg(v)
	}
	for i, a := range call.Starargs {
		v, err := ir.FromAny(a)
		if err != nil {
			return fmt.Errorf("call %s stararg %d: %w", call.Name, i, err)
		}
		act.AddStararg(v)
	}
	return nil
}

// open snapshots the file as it is now, then applies the op's write.
func (r *recorder) open(op FileOp) (*activation.FileAccess, error) {
	path := filepath.Join(r.base, op.Name)
	before, err := r.content.StoreFile(path)
	if err != nil {
		return nil, fmt.Errorf("snapshot %s: %w", op.Name, err)
	}
	if op.Write != nil {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
		if err := os.WriteFile(path, []byte(*op.Write), 0o644); err != nil {
			return nil, fmt.Errorf("write %s: %w", op.Name, err)
		}
	}
	return &activation.FileAccess{
		Name:              op.Name,
		Mode:              op.Mode,
		Buffering:         op.Buffering,
		Timestamp:         r.clock.Now(),
		ContentHashBefore: before,
	}, nil
}

// Run records the fixture into a fresh store rooted at dir, reads the trial
// back and evaluates the fixture's assertions.
func Run(ctx context.Context, fx *Fixture, dir string) (*Result, error) {
	st, err := store.Open(ctx, dir, store.Options{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)), // Suppress logs in tests
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	rec, err := Record(ctx, st, fx, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		return nil, err
	}

	root, err := st.LoadActivationTree(ctx, rec.Trial.ID)
	if err != nil {
		return nil, err
	}

	result := NewResult(rec.Trial, root)
	result.Warnings = rec.Warnings
	snap, err := takeSnapshot(st, fx.Name, rec.Trial, root)
	if err != nil {
		return nil, err
	}
	result.Snapshot = snap

	for i, a := range fx.Assertions {
		if err := evaluate(ctx, st, result, a); err != nil {
			result.AddError(fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return result, nil
}
