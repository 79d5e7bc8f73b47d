package store

import "github.com/google/uuid"

// ThreadID identifies a capturing goroutine. Sessions are keyed by it.
type ThreadID string

// NewThreadID returns a fresh, time-sortable thread id.
func NewThreadID() ThreadID {
	return ThreadID(uuid.Must(uuid.NewV7()).String())
}

// IDGenerator produces trial ids.
type IDGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 trial ids.
//
// Thread-safety: UUIDv7Generator is stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// Generate creates a new UUIDv7 as a hyphenated string.
// Panics if UUID generation fails (should never happen in practice).
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}
