package cli

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/provcap/internal/layout"
	"github.com/roach88/provcap/internal/store"
)

func TestInit_CreatesStore(t *testing.T) {
	dir := t.TempDir()

	out, _, err := execute(t, "init", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "Initialized provenance store in "+dir)
	assert.Contains(t, out, "Wrote default provcap.yaml")

	assert.DirExists(t, filepath.Join(dir, layout.ProvenanceDirName, layout.ContentDirName))
	assert.FileExists(t, filepath.Join(dir, layout.ProvenanceDirName, layout.DatabaseFileName))
	assert.FileExists(t, filepath.Join(dir, "provcap.yaml"))

	out, _, err = execute(t, "init", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "Provenance store already exists in "+dir)
	assert.NotContains(t, out, "Wrote default")
}

func TestInit_JSONNoConfig(t *testing.T) {
	dir := t.TempDir()

	out, _, err := execute(t, "--format", "json", "--dir", dir, "init", "--no-config")
	require.NoError(t, err)

	var result InitResult
	resp := decodeResponse(t, out, &result)
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, result.Created)
	assert.False(t, result.ConfigWritten)
	assert.Equal(t, dir, result.Base)
	assert.NoFileExists(t, filepath.Join(dir, "provcap.yaml"))
}

func TestStatus_NoProvenance(t *testing.T) {
	dir := t.TempDir()

	_, _, err := execute(t, "status", dir)
	require.Error(t, err)
	assert.ErrorIs(t, err, store.ErrNoProvenance)
	assert.Equal(t, "there is no provenance store in the current directory", err.Error())
	assert.Equal(t, ExitFailure, GetExitCode(err))

	// status never creates anything
	assert.NoDirExists(t, filepath.Join(dir, layout.ProvenanceDirName))
}

func TestStatus_NoProvenanceJSON(t *testing.T) {
	out, _, err := execute(t, "--format", "json", "--dir", t.TempDir(), "trials")
	require.Error(t, err)

	resp := decodeResponse(t, out, nil)
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeNoProvenance, resp.Error.Code)
}

func TestStatus_AfterRecord(t *testing.T) {
	dir := t.TempDir()
	recordFixture(t, dir, "pipeline", "first")

	out, _, err := execute(t, "status", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "Trials:   1")
	assert.Contains(t, out, "Latest:   first (finished)")
	assert.Contains(t, out, "Hash:     blake3")

	out, _, err = execute(t, "--format", "json", "status", dir)
	require.NoError(t, err)
	var result StatusResult
	decodeResponse(t, out, &result)
	assert.Equal(t, 1, result.Trials)
	assert.Equal(t, "first", result.Latest)
	assert.Empty(t, result.Parent)
}

func TestRecord_Pipeline(t *testing.T) {
	dir := t.TempDir()

	out, _, err := execute(t, "--dir", dir, "record", fixturePath("pipeline"))
	require.NoError(t, err)
	assert.Contains(t, out, "Recorded trial fixture-pipeline (finished, 4 calls)")
	assert.NotContains(t, out, "Warning")

	// fixture files land in the base path
	data, err := os.ReadFile(filepath.Join(dir, "out.txt"))
	require.NoError(t, err)
	assert.Equal(t, "1,2\n", string(data))
}

func TestRecord_CrashJSON(t *testing.T) {
	dir := t.TempDir()

	out, _, err := execute(t, "--dir", dir, "--format", "json", "record", fixturePath("crash"), "--trial", "c1")
	require.NoError(t, err)

	var result RecordResult
	decodeResponse(t, out, &result)
	assert.Equal(t, "crash", result.Fixture)
	assert.Equal(t, "c1", result.Trial)
	assert.Equal(t, store.StatusUnfinished, result.Status)
	assert.Equal(t, 3, result.Calls)
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "slice stack")
}

func TestRecord_InvalidFixture(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("name: bad\n"), 0o644))

	_, _, err := execute(t, "--dir", dir, "record", path)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "failed to load fixture")

	// nothing recorded, nothing created
	assert.NoDirExists(t, filepath.Join(dir, layout.ProvenanceDirName))
}

func TestRecord_DuplicateTrialID(t *testing.T) {
	dir := t.TempDir()
	recordFixture(t, dir, "pipeline", "same")

	_, _, err := execute(t, "--dir", dir, "record", fixturePath("pipeline"), "--trial", "same")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestTrials(t *testing.T) {
	dir := t.TempDir()

	_, _, err := execute(t, "--dir", dir, "init")
	require.NoError(t, err)
	out, _, err := execute(t, "--dir", dir, "trials")
	require.NoError(t, err)
	assert.Equal(t, "No trials recorded\n", out)

	recordFixture(t, dir, "pipeline", "first")
	recordFixture(t, dir, "crash", "second")

	out, _, err = execute(t, "--dir", dir, "trials")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "ID"))
	assert.Contains(t, lines[1], "first")
	assert.Contains(t, lines[1], "finished")
	assert.Contains(t, lines[2], "second")
	assert.Contains(t, lines[2], "unfinished")

	out, _, err = execute(t, "--dir", dir, "--format", "json", "trials")
	require.NoError(t, err)
	var rows []map[string]any
	decodeResponse(t, out, &rows)
	require.Len(t, rows, 2)
	assert.Equal(t, "first", rows[0]["id"])
	assert.Equal(t, "first", rows[1]["parent_id"])
	assert.Nil(t, rows[1]["finish"])
}

func TestShow_Tree(t *testing.T) {
	dir := t.TempDir()
	recordFixture(t, dir, "pipeline", "first")

	out, _, err := execute(t, "--dir", dir, "show", "first")
	require.NoError(t, err)
	assert.Contains(t, out, "Trial first (finished)")
	assert.Contains(t, out, "Script: analysis.sh")
	assert.Contains(t, out, "main() line 1 -> 0 [9ms]\n")
	assert.Contains(t, out, "\n  load(path=in.csv) line 3 -> rows [2ms]\n")
	assert.Contains(t, out, "\n  clean(data=rows) line 4 -> [1,2] [1ms]\n")
	assert.Contains(t, out, "\n  plot(data=[1,2]) line 5 -> null [2ms]\n")
	assert.NotContains(t, out, "file in.csv")
}

func TestShow_LatestVerbose(t *testing.T) {
	dir := t.TempDir()
	recordFixture(t, dir, "pipeline", "first")
	recordFixture(t, dir, "crash", "second")

	out, _, err := execute(t, "--dir", dir, "--verbose", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "Trial second (unfinished)")
	assert.Contains(t, out, "Parent: first")
	assert.Contains(t, out, "main() line 1 unfinished")
	assert.Contains(t, out, "  worker() line 3 unfinished")

	out, _, err = execute(t, "--dir", dir, "--verbose", "show", "first")
	require.NoError(t, err)
	assert.Contains(t, out, "file in.csv (r)")
	assert.Contains(t, out, "file out.txt (w) - -> ")
}

func TestShow_JSON(t *testing.T) {
	dir := t.TempDir()
	recordFixture(t, dir, "pipeline", "first")

	out, _, err := execute(t, "--dir", dir, "--format", "json", "show", "first")
	require.NoError(t, err)

	// returns is an interface, so decode the tree loosely
	var loose struct {
		Trial map[string]any `json:"trial"`
		Root  map[string]any `json:"root"`
	}
	decodeResponse(t, out, &loose)

	assert.Equal(t, "first", loose.Trial["id"])
	assert.Equal(t, "main", loose.Root["name"])
	assert.EqualValues(t, 0, loose.Root["returns"])
	assert.Equal(t, []any{"cleaned", "data", "n"}, loose.Root["context"])
	calls, ok := loose.Root["calls"].([]any)
	require.True(t, ok)
	require.Len(t, calls, 3)
	plot := calls[2].(map[string]any)
	assert.Equal(t, "plot", plot["name"])
	files := plot["files"].([]any)
	require.Len(t, files, 1)
	assert.NotContains(t, files[0].(map[string]any), "before")
	assert.NotEmpty(t, files[0].(map[string]any)["after"])
}

func TestShow_UnknownTrial(t *testing.T) {
	dir := t.TempDir()
	recordFixture(t, dir, "pipeline", "first")

	_, _, err := execute(t, "--dir", dir, "show", "nope")
	require.Error(t, err)
	assert.ErrorIs(t, err, store.ErrTrialNotFound)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}

func TestShow_NoTrials(t *testing.T) {
	dir := t.TempDir()
	_, _, err := execute(t, "init", dir)
	require.NoError(t, err)

	_, _, err = execute(t, "--dir", dir, "show")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}

func TestQuery_Text(t *testing.T) {
	dir := t.TempDir()
	recordFixture(t, dir, "pipeline", "first")

	out, _, err := execute(t, "--dir", dir, "query", "SELECT id, name FROM function_activation ORDER BY id")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 5)
	assert.Equal(t, []string{"id", "name"}, strings.Fields(lines[0]))
	assert.Equal(t, []string{"1", "main"}, strings.Fields(lines[1]))
	assert.Equal(t, []string{"4", "plot"}, strings.Fields(lines[4]))

	out, _, err = execute(t, "--dir", dir, "query", "SELECT id FROM trial WHERE id = 'none'")
	require.NoError(t, err)
	assert.Equal(t, "(no rows)\n", out)
}

func TestQuery_JSONKeepsColumnOrder(t *testing.T) {
	dir := t.TempDir()
	recordFixture(t, dir, "pipeline", "first")

	out, _, err := execute(t, "--dir", dir, "--format", "json", "query",
		"SELECT status, id, parent_id FROM trial")
	require.NoError(t, err)
	assert.Equal(t, `{"status":"ok","data":[{"status":"finished","id":"first","parent_id":null}]}`+"\n", out)

	out, _, err = execute(t, "--dir", dir, "--format", "json", "query", "SELECT id FROM trial WHERE 0")
	require.NoError(t, err)
	assert.Equal(t, `{"status":"ok","data":[]}`+"\n", out)
}

func TestQuery_BadSQL(t *testing.T) {
	dir := t.TempDir()
	_, _, err := execute(t, "init", dir)
	require.NoError(t, err)

	_, _, err = execute(t, "--dir", dir, "query", "SELEC nothing")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "query failed")
}

func TestCat(t *testing.T) {
	dir := t.TempDir()
	recordFixture(t, dir, "pipeline", "first")

	st, err := store.OpenExisting(t.Context(), dir, store.Options{})
	require.NoError(t, err)
	rows, err := st.QueryAll(t.Context(), "SELECT content_hash_after FROM file_access WHERE name = 'out.txt'")
	require.NoError(t, err)
	require.NoError(t, st.Close())
	require.Len(t, rows, 1)
	digest, _ := rows[0].Get("content_hash_after")

	out, _, err := execute(t, "--dir", dir, "cat", digest.(string))
	require.NoError(t, err)
	assert.Equal(t, "1,2\n", out)

	out, _, err = execute(t, "--dir", dir, "--format", "json", "cat", digest.(string))
	require.NoError(t, err)
	var result CatResult
	decodeResponse(t, out, &result)
	assert.Equal(t, 4, result.Size)
	assert.Equal(t, "1,2\n", result.Content)
}

func TestCat_Missing(t *testing.T) {
	dir := t.TempDir()
	_, _, err := execute(t, "init", dir)
	require.NoError(t, err)

	tests := []struct {
		name   string
		digest string
	}{
		{"unknown", strings.Repeat("ab", 32)},
		{"invalid", "../db.sqlite"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := execute(t, "--dir", dir, "cat", tt.digest)
			require.Error(t, err)
			assert.Equal(t, ExitFailure, GetExitCode(err))
		})
	}
}

func TestCheckout(t *testing.T) {
	dir := t.TempDir()
	recordFixture(t, dir, "pipeline", "first")
	recordFixture(t, dir, "crash", "second")

	out, _, err := execute(t, "--dir", dir, "checkout", "first")
	require.NoError(t, err)
	assert.Equal(t, "Next trial will descend from first\n", out)

	// without the checkout the next parent would be "second"
	out, _, err = execute(t, "--dir", dir, "record", fixturePath("pipeline"), "--trial", "third")
	require.NoError(t, err)
	assert.Contains(t, out, "Parent: first")

	out, _, err = execute(t, "--dir", dir, "--format", "json", "status")
	require.NoError(t, err)
	var result StatusResult
	decodeResponse(t, out, &result)
	assert.Equal(t, "first", result.Parent)
}

func TestCheckout_UnknownTrial(t *testing.T) {
	dir := t.TempDir()
	_, _, err := execute(t, "init", dir)
	require.NoError(t, err)

	_, _, err = execute(t, "--dir", dir, "checkout", "ghost")
	require.Error(t, err)
	assert.ErrorIs(t, err, store.ErrTrialNotFound)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.NoFileExists(t, filepath.Join(dir, layout.ProvenanceDirName, layout.ParentConfigName))
}
