package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/roach88/provcap/internal/layout"
)

//go:embed schema.sql
var schemaSQL string

// DefaultBusyTimeout is how long a connection waits on a locked database.
const DefaultBusyTimeout = 5 * time.Second

// pathLocks serializes the "is the database new" decision and schema
// initialization per database path within the process.
var pathLocks sync.Map // map[string]*sync.Mutex

func lockPath(path string) func() {
	v, _ := pathLocks.LoadOrStore(path, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// Broker owns the database handles of one provenance repository and hands
// out one Session per capturing thread.
type Broker struct {
	raw     *sql.DB
	engine  *gorm.DB
	created bool
	log     *slog.Logger

	mu       sync.RWMutex
	sessions map[ThreadID]*Session
}

// openBroker ensures the repository directories exist, opens both database
// handles and runs the schema script when the database file is new.
func openBroker(ctx context.Context, l layout.Layout, busyTimeout time.Duration, log *slog.Logger) (*Broker, error) {
	if err := l.EnsureDirectories(); err != nil {
		return nil, err
	}
	if busyTimeout <= 0 {
		busyTimeout = DefaultBusyTimeout
	}

	unlock := lockPath(l.DatabasePath)
	defer unlock()

	exists, err := l.DatabaseExists()
	if err != nil {
		return nil, err
	}
	newDB := !exists

	raw, err := openRaw(ctx, l.DatabasePath, busyTimeout)
	if err != nil {
		return nil, err
	}

	if newDB {
		log.Info("creating provenance database", "path", l.DatabasePath)
		if _, err := raw.ExecContext(ctx, schemaSQL); err != nil {
			raw.Close()
			// A leftover file would read as initialized on the next connect.
			if rmErr := removeDatabase(l.DatabasePath); rmErr != nil {
				log.Error("failed to remove uninitialized database", "path", l.DatabasePath, "error", rmErr)
			}
			return nil, fmt.Errorf("failed to execute schema: %w", err)
		}
	}

	engine, err := openEngine(l.DatabasePath, busyTimeout, log)
	if err != nil {
		raw.Close()
		return nil, err
	}

	return &Broker{
		raw:      raw,
		engine:   engine,
		created:  newDB,
		log:      log,
		sessions: make(map[ThreadID]*Session),
	}, nil
}

// dsn builds a connection string that applies the pragmas on every
// connection the pool opens.
func dsn(path string, busyTimeout time.Duration) string {
	return fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=%d&_foreign_keys=on",
		path, busyTimeout.Milliseconds())
}

// openRaw opens the database/sql handle used for schema bootstrap and
// queries. The file is created by the first connection.
func openRaw(ctx context.Context, path string, busyTimeout time.Duration) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", dsn(path, busyTimeout))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxIdleConns(2)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// removeDatabase deletes the database file and its WAL companions.
func removeDatabase(path string) error {
	var errs []error
	for _, p := range []string{path, path + "-wal", path + "-shm", path + "-journal"} {
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// openEngine opens the gorm engine behind Sessions.
func openEngine(path string, busyTimeout time.Duration, log *slog.Logger) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(dsn(path, busyTimeout)), &gorm.Config{
		Logger:                 newGormLogger(log),
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open orm engine: %w", err)
	}

	// SQLite only supports one writer at a time
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql db: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	return db, nil
}

// Created reports whether this broker initialized the schema.
func (b *Broker) Created() bool {
	return b.created
}

// Session returns the Session for id, creating it on first use.
func (b *Broker) Session(id ThreadID) *Session {
	b.mu.RLock()
	s, ok := b.sessions[id]
	b.mu.RUnlock()
	if ok {
		return s
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if s, ok := b.sessions[id]; ok {
		return s
	}
	s = newSession(id, b.engine, SessionConfig{AutoFlush: false, ExpireOnCommit: false})
	b.sessions[id] = s
	b.log.Debug("session created", "thread", string(id))
	return s
}

// Sessions returns the number of sessions handed out.
func (b *Broker) Sessions() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.sessions)
}

// Close closes both database handles. Pending session records are dropped.
func (b *Broker) Close() error {
	b.mu.Lock()
	for _, s := range b.sessions {
		s.Rollback()
	}
	b.sessions = make(map[ThreadID]*Session)
	b.mu.Unlock()

	var firstErr error
	if sqlDB, err := b.engine.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			firstErr = err
		}
	}
	if err := b.raw.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
