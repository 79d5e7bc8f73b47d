// Package content implements the content-addressable store for file snapshots.
//
// Blobs are written under the repository content directory, named by the
// digest of their uncompressed bytes. Identical contents are stored once and
// writes are idempotent, so concurrent writers of the same bytes are harmless.
// Two different contents sharing a digest are assumed not to occur; no
// collision detection is attempted.
package content

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
)

// ErrNotFound is returned by Retrieve when no blob has the requested digest.
var ErrNotFound = errors.New("content not found")

// ErrInvalidDigest is returned for digests that are not lowercase hex.
var ErrInvalidDigest = errors.New("invalid digest")

// zstdMagic starts every zstd frame.
var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

// Options configures a Store.
type Options struct {
	// Hasher names blobs. Defaults to Blake3.
	Hasher Hasher

	// Compress writes new blobs zstd-compressed. Reads handle both forms.
	Compress bool

	// Logger receives debug messages. Defaults to slog.Default().
	Logger *slog.Logger
}

// Store is a content-addressable blob directory.
// Safe for concurrent use.
type Store struct {
	dir      string
	hasher   Hasher
	compress bool
	enc      *zstd.Encoder
	dec      *zstd.Decoder
	logger   *slog.Logger
}

// New returns a store rooted at dir. The directory must exist before the
// first Store call (layout.EnsureDirectories creates it).
func New(dir string, opts Options) (*Store, error) {
	if opts.Hasher == nil {
		opts.Hasher = Blake3
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("creating zstd decoder: %w", err)
	}

	s := &Store{
		dir:      dir,
		hasher:   opts.Hasher,
		compress: opts.Compress,
		dec:      dec,
		logger:   opts.Logger,
	}

	if opts.Compress {
		enc, err := zstd.NewWriter(nil)
		if err != nil {
			dec.Close()
			return nil, fmt.Errorf("creating zstd encoder: %w", err)
		}
		s.enc = enc
	}

	return s, nil
}

// Close releases the compression resources.
func (s *Store) Close() error {
	s.dec.Close()
	if s.enc != nil {
		return s.enc.Close()
	}
	return nil
}

// Dir returns the blob directory.
func (s *Store) Dir() string {
	return s.dir
}

// Hasher returns the hasher naming blobs in this store.
func (s *Store) Hasher() Hasher {
	return s.hasher
}

// Digest computes the digest data would be stored under, without writing.
func (s *Store) Digest(data []byte) string {
	return s.hasher.Sum(data)
}

// Path returns the blob path for digest.
func (s *Store) Path(digest string) string {
	return filepath.Join(s.dir, digest)
}

// Has reports whether a blob with digest exists.
func (s *Store) Has(digest string) bool {
	if !validDigest(digest) {
		return false
	}
	_, err := os.Stat(s.Path(digest))
	return err == nil
}

// Store writes data and returns its digest. If a blob with the same digest
// already exists nothing is written.
func (s *Store) Store(data []byte) (string, error) {
	digest := s.hasher.Sum(data)
	finalPath := s.Path(digest)

	if _, err := os.Stat(finalPath); err == nil {
		return digest, nil
	}

	payload := data
	if s.enc != nil {
		payload = s.enc.EncodeAll(data, make([]byte, 0, len(data)/2))
	}

	// Write to a unique temp file first, then rename into place.
	tmp, err := os.CreateTemp(s.dir, digest+".*.tmp")
	if err != nil {
		return "", fmt.Errorf("writing tmp blob: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return "", fmt.Errorf("writing tmp blob: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("writing tmp blob: %w", err)
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("atomic rename: %w", err)
	}

	s.logger.Debug("content stored", "digest", digest, "bytes", len(data), "compressed", s.enc != nil)
	return digest, nil
}

// StoreFile snapshots the file at path. A missing file yields an empty
// digest and no error: the access happened but there was nothing to keep.
func (s *Store) StoreFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("snapshot %s: %w", path, err)
	}
	return s.Store(data)
}

// Retrieve reads back the bytes stored under digest.
// Returns an error wrapping ErrNotFound when there is no such blob.
func (s *Store) Retrieve(digest string) ([]byte, error) {
	if !validDigest(digest) {
		return nil, fmt.Errorf("retrieve %q: %w", digest, ErrInvalidDigest)
	}

	raw, err := os.ReadFile(s.Path(digest))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("retrieve %s: %w", digest, ErrNotFound)
		}
		return nil, fmt.Errorf("retrieve %s: %w", digest, err)
	}

	if bytes.HasPrefix(raw, zstdMagic) {
		// An uncompressed blob may start with the magic number by chance;
		// only trust the decoded form when it matches the digest.
		if decoded, err := s.dec.DecodeAll(raw, nil); err == nil && s.hasher.Sum(decoded) == digest {
			return decoded, nil
		}
	}
	return raw, nil
}
