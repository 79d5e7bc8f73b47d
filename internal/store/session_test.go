package store

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func countTrials(t *testing.T, s *Session) int64 {
	t.Helper()
	var n int64
	require.NoError(t, s.DB().Model(&Trial{}).Count(&n).Error)
	return n
}

func newTrial(id string) *Trial {
	return &Trial{
		ID:            id,
		Script:        "script.sh",
		Start:         fixedStart(),
		Status:        StatusRunning,
		SchemaVersion: "1",
		ToolVersion:   "test",
	}
}

func TestSession_SameThreadSameSession(t *testing.T) {
	s := openTestStore(t)

	a1, err := s.Session("thread-a")
	require.NoError(t, err)
	a2, err := s.Session("thread-a")
	require.NoError(t, err)
	b, err := s.Session("thread-b")
	require.NoError(t, err)

	assert.Same(t, a1, a2)
	assert.NotSame(t, a1, b)
	assert.Equal(t, ThreadID("thread-a"), a1.ID())
	assert.Equal(t, SessionConfig{AutoFlush: false, ExpireOnCommit: false}, a1.Config())
}

func TestSession_ConcurrentLookupCreatesOnce(t *testing.T) {
	s := openTestStore(t)

	const n = 32
	got := make([]*Session, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sess, err := s.Session("shared")
			assert.NoError(t, err)
			got[i] = sess
		}(i)
	}
	wg.Wait()

	for _, sess := range got {
		assert.Same(t, got[0], sess)
	}
	assert.Equal(t, 1, s.broker.Sessions())
}

func TestSession_PendingInvisibleUntilCommit(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	a, err := s.Session("thread-a")
	require.NoError(t, err)
	b, err := s.Session("thread-b")
	require.NoError(t, err)

	require.NoError(t, a.Add(ctx, newTrial("t1")))
	assert.Equal(t, 1, a.Pending())
	assert.Equal(t, int64(0), countTrials(t, b))
	assert.Equal(t, int64(0), countTrials(t, a), "autoflush is off")

	require.NoError(t, a.Commit(ctx))
	assert.Equal(t, 0, a.Pending())
	assert.Equal(t, int64(1), countTrials(t, b))
}

func TestSession_Rollback(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	a, err := s.Session("thread-a")
	require.NoError(t, err)

	require.NoError(t, a.Add(ctx, newTrial("t1"), newTrial("t2")))
	a.Rollback()
	require.NoError(t, a.Commit(ctx))

	assert.Equal(t, 0, a.Pending())
	assert.Equal(t, int64(0), countTrials(t, a))
}

func TestSession_CommitIsAtomic(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	a, err := s.Session("thread-a")
	require.NoError(t, err)

	// Duplicate primary key fails the second insert.
	require.NoError(t, a.Add(ctx, newTrial("dup"), newTrial("dup")))
	err = a.Commit(ctx)

	require.Error(t, err)
	assert.Equal(t, 2, a.Pending(), "failed commit keeps records pending")
	assert.Equal(t, int64(0), countTrials(t, a), "nothing written")
}

func TestSession_RecordsValidAfterCommit(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	a, err := s.Session("thread-a")
	require.NoError(t, err)

	trial := newTrial("t1")
	act := &FunctionActivation{TrialID: "t1", ID: 1, Name: "main", Line: 1, ReturnValue: "null", SliceStack: "[]"}
	val := &ObjectValue{TrialID: "t1", FunctionActivationID: 1, Kind: KindArgument, Name: "x", Value: "1"}
	require.NoError(t, a.Add(ctx, trial, act, val))
	require.NoError(t, a.Commit(ctx))

	assert.Equal(t, "script.sh", trial.Script)
	assert.Equal(t, "main", act.Name)
	assert.NotZero(t, val.ID, "generated key filled in")
}

func TestSession_ExpireOnCommitReloads(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	sess := newSession("expire", s.broker.engine, SessionConfig{ExpireOnCommit: true})

	trial := newTrial("t1")
	require.NoError(t, sess.Add(ctx, trial))
	require.NoError(t, sess.Commit(ctx))

	assert.Equal(t, "script.sh", trial.Script)
	assert.True(t, fixedStart().Equal(trial.Start))
}

func TestSession_AutoFlush(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	sess := newSession("flush", s.broker.engine, SessionConfig{AutoFlush: true})
	other, err := s.Session("other")
	require.NoError(t, err)

	require.NoError(t, sess.Add(ctx, newTrial("t1")))

	assert.Equal(t, 0, sess.Pending())
	assert.Equal(t, int64(1), countTrials(t, other))
}

func TestSession_ConcurrentCommits(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	const n = 8
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := NewThreadID()
			sess, err := s.Session(id)
			if !assert.NoError(t, err) {
				return
			}
			assert.NoError(t, sess.Add(ctx, newTrial(string(id))))
			assert.NoError(t, sess.Commit(ctx))
		}(i)
	}
	wg.Wait()

	sess, err := s.Session("reader")
	require.NoError(t, err)
	assert.Equal(t, int64(n), countTrials(t, sess))
}

// rollbackDuringCreate rolls sess back from inside its first insert.
func rollbackDuringCreate(t *testing.T, s *Store, sess *Session) {
	t.Helper()
	var once sync.Once
	err := s.broker.engine.Callback().Create().Before("gorm:create").
		Register("provcap:rollback", func(*gorm.DB) {
			once.Do(sess.Rollback)
		})
	require.NoError(t, err)
}

func TestSession_RollbackDuringCommit(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	a, err := s.Session("thread-a")
	require.NoError(t, err)
	rollbackDuringCreate(t, s, a)

	require.NoError(t, a.Add(ctx, newTrial("t1")))
	require.NotPanics(t, func() { require.NoError(t, a.Commit(ctx)) })

	assert.Equal(t, 0, a.Pending())
	assert.Equal(t, int64(1), countTrials(t, a))

	// The session stays usable.
	require.NoError(t, a.Add(ctx, newTrial("t2")))
	assert.Equal(t, 1, a.Pending())
	a.Rollback()
	require.NoError(t, s.Close())
}

func TestSession_FailedCommitAfterRollbackStaysEmpty(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	a, err := s.Session("thread-a")
	require.NoError(t, err)
	rollbackDuringCreate(t, s, a)

	require.NoError(t, a.Add(ctx, newTrial("dup"), newTrial("dup")))
	require.Error(t, a.Commit(ctx))

	assert.Equal(t, 0, a.Pending(), "rolled back records are not restored")
	assert.Equal(t, int64(0), countTrials(t, a))
}
