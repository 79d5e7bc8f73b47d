package harness

import (
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/provcap/internal/ir"
	"github.com/roach88/provcap/internal/store"
)

func loadTestdata(t *testing.T, name string) *Fixture {
	t.Helper()
	fx, err := LoadFixture(filepath.Join("testdata", "fixtures", name+".yaml"))
	require.NoError(t, err)
	return fx
}

func TestRun_Pipeline(t *testing.T) {
	fx := loadTestdata(t, "pipeline")

	result, err := Run(t.Context(), fx, t.TempDir())
	require.NoError(t, err)

	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Empty(t, result.Warnings)
	assert.Equal(t, store.StatusFinished, result.Trial.Status)
	assert.Equal(t, []string{"main", "load", "clean", "plot"}, result.CallNames())

	clean := result.Root.FunctionActivations[1]
	assert.Equal(t, ir.Object{"strict": ir.Bool(true)}, clean.Kwargs)
	assert.Equal(t, ir.Object{"DEBUG": ir.Bool(false)}, result.Root.Globals)
}

func TestRun_Crash(t *testing.T) {
	fx := loadTestdata(t, "crash")

	result, err := Run(t.Context(), fx, t.TempDir())
	require.NoError(t, err)

	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Equal(t, store.StatusUnfinished, result.Trial.Status)
	assert.Nil(t, result.Trial.Finish)
	assert.True(t, result.Root.Pending())

	// setup left a slice marker behind
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "setup")
}

func TestRun_FailingAssertions(t *testing.T) {
	fx, err := ParseFixture([]byte(`
name: failing
description: "every assertion is wrong"
script: main.sh
root:
  name: main
  line: 1
  calls:
    - { name: f, line: 2, returns: 1 }
  returns: 0
`))
	require.NoError(t, err)

	// CheckFixture would reject the unknown names, so append directly.
	fx.Assertions = []Assertion{
		{Type: AssertCallOrder, Calls: []string{"main", "g"}},
		{Type: AssertCallCount, Name: "f", Count: 2},
		{Type: AssertReturns, Name: "f", Value: 2},
		{Type: AssertReturns, Name: "missing", Value: 2},
		{Type: AssertFileSnapshot, File: "none.txt"},
		{Type: AssertStatus, Status: store.StatusUnfinished},
		{Type: AssertQuery, SQL: "SELECT COUNT(*) AS n FROM trial", Expect: map[string]any{"n": 5}},
		{Type: "trace_contains"},
	}

	result, err := Run(t.Context(), fx, t.TempDir())
	require.NoError(t, err)

	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 8)
	assert.Contains(t, result.Errors[0], "call_order")
	assert.Contains(t, result.Errors[2], "expected: 2")
	assert.Contains(t, result.Errors[3], "not found")
	assert.Contains(t, result.Errors[6], "n=1")
	assert.Contains(t, result.Errors[7], `unknown assertion type "trace_contains"`)
}

func TestRun_QueryOnMissingColumn(t *testing.T) {
	fx, err := ParseFixture([]byte(`
name: column
description: "query names a column the row lacks"
script: main.sh
root: { name: main, line: 1 }
assertions:
  - { type: query, sql: "SELECT script FROM trial", expect: { status: finished } }
  - { type: query, sql: "SELECT script FROM trial", expect: { script: main.sh } }
`))
	require.NoError(t, err)

	result, err := Run(t.Context(), fx, t.TempDir())
	require.NoError(t, err)

	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "assertions[0]")
}

func TestRun_FloatReturnIsAnError(t *testing.T) {
	// Bypasses the schema, which would reject the float up front.
	fx := &Fixture{
		Name:        "float",
		Description: "d",
		Script:      "s.sh",
		Root:        Call{Name: "main", Line: 1, Returns: 1.5},
	}
	_, err := Run(t.Context(), fx, t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "call main returns")
}

func TestRecord_IntoExistingStore(t *testing.T) {
	dir := t.TempDir()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	st, err := store.Open(t.Context(), dir, store.Options{Logger: logger})
	require.NoError(t, err)
	defer st.Close()

	first := loadTestdata(t, "pipeline")
	first.TrialID = "first"
	rec, err := Record(t.Context(), st, first, logger)
	require.NoError(t, err)
	assert.Nil(t, rec.Trial.ParentID)
	assert.Equal(t, 4, rec.Root.Count())

	second := loadTestdata(t, "crash")
	second.TrialID = "second"
	rec, err = Record(t.Context(), st, second, logger)
	require.NoError(t, err)

	// the second trial descends from the latest one
	require.NotNil(t, rec.Trial.ParentID)
	assert.Equal(t, "first", *rec.Trial.ParentID)

	trials, err := st.Trials(t.Context())
	require.NoError(t, err)
	assert.Len(t, trials, 2)
}

func TestRecord_FileTimestampsFollowClock(t *testing.T) {
	dir := t.TempDir()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	st, err := store.Open(t.Context(), dir, store.Options{Logger: logger})
	require.NoError(t, err)
	defer st.Close()

	rec, err := Record(t.Context(), st, loadTestdata(t, "pipeline"), logger)
	require.NoError(t, err)

	load := rec.Root.FunctionActivations[0]
	require.Len(t, load.FileAccesses, 1)
	access := load.FileAccesses[0]
	assert.Greater(t, access.Timestamp, load.Start)
	assert.Less(t, access.Timestamp, load.Finish)
	assert.NotEmpty(t, access.ContentHashBefore)
}
