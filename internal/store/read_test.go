package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrials_OrderedByStart(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	empty, err := s.Trials(ctx)
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)

	// Saved out of start order.
	_, err = s.SaveTrial(ctx, TrialRecord{ID: "late", Script: "a.sh", Start: fixedStart().Add(time.Hour)})
	require.NoError(t, err)
	_, err = s.SaveTrial(ctx, TrialRecord{ID: "early", Script: "a.sh", Start: fixedStart()})
	require.NoError(t, err)

	trials, err := s.Trials(ctx)
	require.NoError(t, err)
	require.Len(t, trials, 2)
	assert.Equal(t, "early", trials[0].ID)
	assert.Equal(t, "late", trials[1].ID)

	latest, err := s.LatestTrial(ctx)
	require.NoError(t, err)
	assert.Equal(t, "late", latest.ID)
}

func TestLatestTrial_AcrossOffsets(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	east := time.FixedZone("UTC+5", 5*60*60)

	// 12:00+05:00 is 07:00 UTC, three hours before "later".
	_, err := s.SaveTrial(ctx, TrialRecord{ID: "earlier", Script: "a.sh", Start: time.Date(2024, 3, 1, 12, 0, 0, 0, east)})
	require.NoError(t, err)
	_, err = s.SaveTrial(ctx, TrialRecord{ID: "later", Script: "a.sh", Start: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)})
	require.NoError(t, err)

	latest, err := s.LatestTrial(ctx)
	require.NoError(t, err)
	assert.Equal(t, "later", latest.ID)

	earlier, err := s.LoadTrial(ctx, "earlier")
	require.NoError(t, err)
	assert.True(t, time.Date(2024, 3, 1, 7, 0, 0, 0, time.UTC).Equal(earlier.Start))
}

func TestLoadTrial(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	saved, err := s.SaveTrial(ctx, TrialRecord{Script: "a.sh", Command: "sh a.sh", Start: fixedStart(), Root: buildTree(t)})
	require.NoError(t, err)

	got, err := s.LoadTrial(ctx, saved.ID)
	require.NoError(t, err)
	assert.Equal(t, saved.ID, got.ID)
	assert.Equal(t, "a.sh", got.Script)
	assert.Equal(t, "sh a.sh", got.Command)
	assert.Equal(t, StatusFinished, got.Status)
	assert.True(t, saved.Start.Equal(got.Start))
	assert.Equal(t, "1", got.SchemaVersion)

	root, err := got.Activations(ctx)
	require.NoError(t, err)
	require.NotNil(t, root)
	assert.Equal(t, "main", root.Name)
	assert.Equal(t, 4, root.Count())
}

func TestLoadTrial_NotFound(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	_, err := s.LoadTrial(ctx, "nope")
	assert.ErrorIs(t, err, ErrTrialNotFound)
	_, err = s.LoadActivationTree(ctx, "nope")
	assert.ErrorIs(t, err, ErrTrialNotFound)
	_, err = s.LatestTrial(ctx)
	assert.ErrorIs(t, err, ErrTrialNotFound)
}

func TestTrialActivations_Detached(t *testing.T) {
	var trial Trial
	_, err := trial.Activations(context.Background())
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestQuery_OverSavedTrial(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	writeFile(t, s, "in.csv", "a,b\n")
	trial, err := s.SaveTrial(ctx, TrialRecord{Script: "a.sh", Start: fixedStart(), Root: buildTree(t)})
	require.NoError(t, err)

	rows, err := s.QueryAll(ctx, "SELECT id, name, caller_id FROM function_activation WHERE trial_id = ? ORDER BY id", trial.ID)
	require.NoError(t, err)
	require.Len(t, rows, 4)

	var got []string
	for _, r := range rows {
		got = append(got, r.String())
	}
	assert.Equal(t, []string{
		"id=1 name=main caller_id=<nil>",
		"id=2 name=load caller_id=1",
		"id=3 name=clean caller_id=1",
		"id=4 name=plot caller_id=1",
	}, got)
}
