package store

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/provcap/internal/content"
	"github.com/roach88/provcap/internal/layout"
)

// Options configures a Store. The zero value is usable.
type Options struct {
	// Hasher names content digests. Defaults to content.Blake3.
	Hasher content.Hasher

	// Compress stores content blobs zstd-compressed.
	Compress bool

	// BusyTimeout is how long a connection waits on a locked database.
	// Defaults to DefaultBusyTimeout.
	BusyTimeout time.Duration

	// SnapshotExclude are doublestar patterns, relative to the base path,
	// of files SaveTrial does not snapshot.
	SnapshotExclude []string

	// IDs generates trial ids. Defaults to UUIDv7Generator.
	IDs IDGenerator

	// Logger receives store logging. Defaults to slog.Default().
	Logger *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.Hasher == nil {
		o.Hasher = content.Blake3
	}
	if o.BusyTimeout <= 0 {
		o.BusyTimeout = DefaultBusyTimeout
	}
	if o.IDs == nil {
		o.IDs = UUIDv7Generator{}
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// Store is the provenance store of one base path.
//
// A Store starts unconnected: only path resolution and HasProvenance are
// available. Connect or ConnectExisting moves it to connected, after which
// it stays connected until Close.
type Store struct {
	opts Options

	mu      sync.RWMutex
	layout  layout.Layout
	broker  *Broker
	content *content.Store
}

// New returns an unconnected store rooted at path (the working directory
// when empty). It does not touch the filesystem beyond resolving path.
func New(path string, opts Options) (*Store, error) {
	base, err := layout.Resolve(path)
	if err != nil {
		return nil, err
	}
	return &Store{opts: opts.withDefaults(), layout: layout.New(base)}, nil
}

// Open is New followed by Connect.
func Open(ctx context.Context, path string, opts Options) (*Store, error) {
	s, err := New(path, opts)
	if err != nil {
		return nil, err
	}
	if err := s.Connect(ctx, ""); err != nil {
		return nil, err
	}
	return s, nil
}

// OpenExisting is New followed by ConnectExisting.
func OpenExisting(ctx context.Context, path string, opts Options) (*Store, error) {
	s, err := New(path, opts)
	if err != nil {
		return nil, err
	}
	if err := s.ConnectExisting(ctx, ""); err != nil {
		return nil, err
	}
	return s, nil
}

// HasProvenance reports whether path (the working directory when empty)
// contains a provenance directory.
func HasProvenance(path string) bool {
	return layout.HasProvenance(path)
}

// HasProvenance reports whether the store's base path contains a
// provenance directory.
func (s *Store) HasProvenance() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.layout.HasProvenance()
}

// Layout returns the repository paths.
func (s *Store) Layout() layout.Layout {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.layout
}

// Connect creates the repository directories if needed and opens the
// database, initializing the schema when the database file is new. A
// non-empty path re-roots an unconnected store first. Connecting a connected
// store to its own base is a no-op; any other base is ErrAlreadyConnected.
func (s *Store) Connect(ctx context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, err := s.target(path)
	if err != nil {
		return err
	}
	if s.broker != nil {
		return nil
	}
	s.layout = l
	return s.connectLocked(ctx)
}

// ConnectExisting connects only if the provenance directory already exists.
// Otherwise it returns ErrNoProvenance without writing to the filesystem and
// leaves the store's base unchanged.
func (s *Store) ConnectExisting(ctx context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, err := s.target(path)
	if err != nil {
		return err
	}
	if s.broker != nil {
		return nil
	}
	if !l.HasProvenance() {
		return ErrNoProvenance
	}
	s.layout = l
	return s.connectLocked(ctx)
}

// target resolves the layout a connect call asks for. A connected store
// only accepts its own base. Callers hold s.mu.
func (s *Store) target(path string) (layout.Layout, error) {
	if path == "" {
		return s.layout, nil
	}
	base, err := layout.Resolve(path)
	if err != nil {
		return layout.Layout{}, fmt.Errorf("connect: %w", err)
	}
	if s.broker != nil && base != s.layout.BasePath {
		return layout.Layout{}, fmt.Errorf("connect %s: %w (connected to %s)", base, ErrAlreadyConnected, s.layout.BasePath)
	}
	return layout.New(base), nil
}

// connectLocked opens the broker and content store for s.layout. Callers
// hold s.mu.
func (s *Store) connectLocked(ctx context.Context) error {
	broker, err := openBroker(ctx, s.layout, s.opts.BusyTimeout, s.opts.Logger)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	cs, err := content.New(s.layout.ContentPath, content.Options{
		Hasher:   s.opts.Hasher,
		Compress: s.opts.Compress,
		Logger:   s.opts.Logger,
	})
	if err != nil {
		broker.Close()
		return fmt.Errorf("connect: %w", err)
	}

	s.broker = broker
	s.content = cs
	return nil
}

// Connected reports whether the store has open database handles.
func (s *Store) Connected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.broker != nil
}

// Created reports whether the last connect initialized the schema.
func (s *Store) Created() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.broker != nil && s.broker.Created()
}

// Session returns the Session of thread id.
func (s *Store) Session(id ThreadID) (*Session, error) {
	b, err := s.getBroker()
	if err != nil {
		return nil, err
	}
	return b.Session(id), nil
}

// Content returns the content store.
func (s *Store) Content() (*content.Store, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.content == nil {
		return nil, ErrNotConnected
	}
	return s.content, nil
}

// Close closes the database handles and the content store. The store
// returns to unconnected and may be connected again.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.broker == nil {
		return nil
	}
	err := s.broker.Close()
	if cerr := s.content.Close(); cerr != nil && err == nil {
		err = cerr
	}
	s.broker = nil
	s.content = nil
	return err
}

func (s *Store) getBroker() (*Broker, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.broker == nil {
		return nil, ErrNotConnected
	}
	return s.broker, nil
}
