package testutil

import (
	"fmt"
	"sync"
)

// SequenceIDs generates "<prefix>-1", "<prefix>-2", ... for tests.
//
// Trial and thread ids produced this way are stable across runs, which keeps
// golden output byte-identical.
//
// Thread-safety: SequenceIDs is safe for concurrent use via internal mutex.
type SequenceIDs struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSequenceIDs creates a generator. If prefix is empty, "id" is used.
func NewSequenceIDs(prefix string) *SequenceIDs {
	if prefix == "" {
		prefix = "id"
	}
	return &SequenceIDs{prefix: prefix}
}

// Generate returns the next id.
func (g *SequenceIDs) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%d", g.prefix, g.n)
}
