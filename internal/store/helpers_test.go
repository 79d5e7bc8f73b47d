package store

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/provcap/internal/testutil"
)

// testOptions returns options with deterministic ids and a silent logger.
func testOptions() Options {
	return Options{
		IDs:    testutil.NewSequenceIDs("trial"),
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

// openTestStore connects a store rooted at a fresh temp dir.
func openTestStore(t *testing.T) *Store {
	t.Helper()
	return openTestStoreWith(t, testOptions())
}

func openTestStoreWith(t *testing.T, opts Options) *Store {
	t.Helper()
	s, err := Open(context.Background(), t.TempDir(), opts)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// writeFile writes data under the store's base path.
func writeFile(t *testing.T, s *Store, name, data string) string {
	t.Helper()
	path := filepath.Join(s.Layout().BasePath, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))
	return path
}

// syncBuffer is a goroutine-safe log sink.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func fixedStart() time.Time {
	return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
}
