package store

import (
	"context"
	"fmt"
	"sync"

	"gorm.io/gorm"
)

// SessionConfig controls how a Session synchronizes with the database.
type SessionConfig struct {
	// AutoFlush writes each record as soon as it is added.
	AutoFlush bool

	// ExpireOnCommit reloads committed records from the database, so later
	// reads observe database state rather than in-memory state.
	ExpireOnCommit bool
}

// Session is one thread's unit of work against the ORM engine.
//
// Records added to a Session stay pending until Commit, which inserts them
// in add order inside one transaction. Sessions are created and owned by a
// Broker; use Broker.Session or Store.Session to obtain one.
type Session struct {
	id  ThreadID
	db  *gorm.DB
	cfg SessionConfig

	mu      sync.Mutex
	pending []any
	gen     uint64 // bumped by Rollback
}

func newSession(id ThreadID, engine *gorm.DB, cfg SessionConfig) *Session {
	return &Session{
		id:  id,
		db:  engine.Session(&gorm.Session{NewDB: true}),
		cfg: cfg,
	}
}

// ID returns the thread id the session belongs to.
func (s *Session) ID() ThreadID {
	return s.id
}

// Config returns the session configuration.
func (s *Session) Config() SessionConfig {
	return s.cfg
}

// DB returns the session's gorm handle for reads.
func (s *Session) DB() *gorm.DB {
	return s.db
}

// Add queues records for the next Commit. Each record must be a pointer to a
// model. With AutoFlush, records are written immediately instead.
func (s *Session) Add(ctx context.Context, records ...any) error {
	if s.cfg.AutoFlush {
		return s.write(ctx, records)
	}
	s.mu.Lock()
	s.pending = append(s.pending, records...)
	s.mu.Unlock()
	return nil
}

// Pending returns the number of records waiting for Commit.
func (s *Session) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Commit inserts all pending records in one transaction. On failure nothing
// is written and the records stay pending, unless Rollback ran during the
// commit. Records added during the commit wait for the next one.
func (s *Session) Commit(ctx context.Context) error {
	s.mu.Lock()
	records := s.pending
	s.pending = nil
	gen := s.gen
	s.mu.Unlock()

	if len(records) == 0 {
		return nil
	}
	err := s.write(ctx, records)
	if err == nil {
		return nil
	}

	s.mu.Lock()
	if s.gen == gen {
		s.pending = append(records, s.pending...)
	}
	s.mu.Unlock()
	return err
}

// Rollback drops pending records, including those of an in-flight Commit
// should it fail.
func (s *Session) Rollback() {
	s.mu.Lock()
	s.pending = nil
	s.gen++
	s.mu.Unlock()
}

func (s *Session) write(ctx context.Context, records []any) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i, rec := range records {
			if err := tx.Create(rec).Error; err != nil {
				return fmt.Errorf("record %d (%T): %w", i, rec, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	if s.cfg.ExpireOnCommit {
		for _, rec := range records {
			if err := s.db.WithContext(ctx).First(rec).Error; err != nil {
				return fmt.Errorf("refresh %T: %w", rec, err)
			}
		}
	}
	return nil
}
