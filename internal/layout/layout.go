// Package layout resolves the on-disk structure of a provenance repository.
//
// Given a base execution path, a repository lives at:
//
//	<base>/.provenance/                     provenance directory
//	<base>/.provenance/content/             content-addressed file snapshots
//	<base>/.provenance/.parent_config.json  parent trial reference
//	<base>/.provenance/db.sqlite            provenance database
//
// The provenance directory's existence is the only witness that a base path
// has provenance.
package layout

import (
	"fmt"
	"os"
	"path/filepath"
)

// Names of the repository entries relative to the base path.
const (
	ProvenanceDirName = ".provenance"
	ContentDirName    = "content"
	ParentConfigName  = ".parent_config.json"
	DatabaseFileName  = "db.sqlite"
)

// getwd is overridden in tests.
var getwd = os.Getwd

// Layout holds the paths derived from one base path.
type Layout struct {
	BasePath         string
	ProvenancePath   string
	ContentPath      string
	ParentConfigPath string
	DatabasePath     string
}

// New derives the repository paths for base. The derivation is pure: nothing
// is read from or written to disk.
func New(base string) Layout {
	prov := filepath.Join(base, ProvenanceDirName)
	return Layout{
		BasePath:         base,
		ProvenancePath:   prov,
		ContentPath:      filepath.Join(prov, ContentDirName),
		ParentConfigPath: filepath.Join(prov, ParentConfigName),
		DatabasePath:     filepath.Join(prov, DatabaseFileName),
	}
}

// Resolve returns the absolute base path for path, using the working
// directory when path is empty.
func Resolve(path string) (string, error) {
	if path == "" {
		cwd, err := getwd()
		if err != nil {
			return "", fmt.Errorf("resolve base path: %w", err)
		}
		return cwd, nil
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve base path: %w", err)
	}
	return abs, nil
}

// HasProvenance reports whether the provenance directory exists.
func (l Layout) HasProvenance() bool {
	return isDir(l.ProvenancePath)
}

// EnsureDirectories creates the content directory and any missing parents.
// Calling it again once the directories exist is a no-op.
func (l Layout) EnsureDirectories() error {
	if err := os.MkdirAll(l.ContentPath, 0o755); err != nil {
		return fmt.Errorf("create content directory: %w", err)
	}
	return nil
}

// DatabaseExists reports whether the database file is already present.
func (l Layout) DatabaseExists() (bool, error) {
	_, err := os.Stat(l.DatabasePath)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, fmt.Errorf("stat database: %w", err)
}

// HasProvenance reports whether path (the working directory when empty) has
// a provenance directory. It has no side effects.
func HasProvenance(path string) bool {
	base, err := Resolve(path)
	if err != nil {
		return false
	}
	return New(base).HasProvenance()
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
