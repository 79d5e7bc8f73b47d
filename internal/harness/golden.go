package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/provcap/internal/activation"
	"github.com/roach88/provcap/internal/ir"
	"github.com/roach88/provcap/internal/store"
)

// TraceSnapshot is the persisted trial rendered for golden comparison.
// File snapshots are shown by content rather than digest so snapshots do
// not depend on the hash function.
type TraceSnapshot struct {
	Fixture string
	TrialID string
	Status  string
	Calls   []map[string]any
}

func takeSnapshot(st *store.Store, name string, trial *store.Trial, root *activation.Activation) (*TraceSnapshot, error) {
	cs, err := st.Content()
	if err != nil {
		return nil, err
	}
	blob := func(digest string) (any, error) {
		if digest == "" {
			return nil, nil
		}
		data, err := cs.Retrieve(digest)
		if err != nil {
			return nil, err
		}
		return string(data), nil
	}

	snap := &TraceSnapshot{Fixture: name, TrialID: trial.ID, Status: trial.Status, Calls: []map[string]any{}}
	if root == nil {
		return snap, nil
	}

	var walkErr error
	root.Walk(func(a *activation.Activation, depth int) bool {
		call := map[string]any{
			"name":     a.Name,
			"line":     a.Line,
			"depth":    depth,
			"start_ns": int64(a.Start),
		}
		if a.Pending() {
			call["finish_ns"] = nil
			call["returns"] = nil
		} else {
			call["finish_ns"] = int64(a.Finish)
			call["returns"] = a.ReturnValue
		}
		if len(a.Arguments) > 0 {
			call["arguments"] = a.Arguments
		}
		if len(a.FileAccesses) > 0 {
			files := make([]any, 0, len(a.FileAccesses))
			for _, fa := range a.FileAccesses {
				before, err := blob(fa.ContentHashBefore)
				if err != nil {
					walkErr = err
					return false
				}
				after, err := blob(fa.ContentHashAfter)
				if err != nil {
					walkErr = err
					return false
				}
				files = append(files, map[string]any{
					"name":         fa.Name,
					"mode":         fa.Mode,
					"timestamp_ns": int64(fa.Timestamp),
					"before":       before,
					"after":        after,
				})
			}
			call["files"] = files
		}
		if len(a.Context) > 0 {
			ctx := map[string]any{}
			for name, point := range a.Context {
				if point.Call != nil {
					ctx[name] = point.Call.Name
				} else {
					ctx[name] = nil
				}
			}
			call["context"] = ctx
		}
		snap.Calls = append(snap.Calls, call)
		return true
	})
	if walkErr != nil {
		return nil, walkErr
	}
	return snap, nil
}

// MarshalCanonical renders the snapshot as canonical JSON.
func (s *TraceSnapshot) MarshalCanonical() ([]byte, error) {
	calls := make([]any, len(s.Calls))
	for i, c := range s.Calls {
		calls[i] = c
	}
	return ir.MarshalCanonical(map[string]any{
		"fixture":  s.Fixture,
		"trial_id": s.TrialID,
		"status":   s.Status,
		"calls":    calls,
	})
}

// RunWithGolden runs the fixture in a temp directory and compares its
// snapshot against testdata/golden/{fixture.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, fx *Fixture) (*Result, error) {
	t.Helper()

	result, err := Run(t.Context(), fx, t.TempDir())
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, fx.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an existing result's snapshot against a golden file.
func AssertGolden(t *testing.T, name string, result *Result) error {
	t.Helper()

	data, err := result.Snapshot.MarshalCanonical()
	if err != nil {
		return err
	}
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, data)
	return nil
}
