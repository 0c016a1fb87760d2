// Package objstore implements the content-addressed immutable byte
// store: a flat directory keyed by the hashid of its contents.
package objstore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/cantrip-vcs/minigit/internal/hashid"
)

// ErrNotFound is returned by Get when the requested id has never been stored.
var ErrNotFound = errors.New("object not found")

// Store is a flat, content-addressed directory of immutable objects.
type Store struct {
	dir string
}

// Open returns a Store rooted at dir, creating dir if it does not exist.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("objstore: create %s: %w", dir, err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the root directory backing the store.
func (s *Store) Dir() string { return s.dir }

func (s *Store) path(id string) string {
	return filepath.Join(s.dir, id)
}

// Put stores bytes under their content id. Writing the same bytes twice
// is a no-op on the second call (at-most-once write for any id); storing
// different bytes that happen to hash to an existing id is treated as
// correct-by-content and is not re-validated against the existing file.
func (s *Store) Put(data []byte) (string, error) {
	id := hashid.SumBytes(data)
	if s.Has(id) {
		return id, nil
	}

	tmp, err := os.CreateTemp(s.dir, "tmp-*")
	if err != nil {
		return "", fmt.Errorf("objstore: create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", fmt.Errorf("objstore: write %s: %w", id, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("objstore: close %s: %w", id, err)
	}

	// Atomic create-if-absent: renaming into place is atomic on POSIX
	// filesystems, and the Has check above already made concurrent
	// identical-content writers a benign race (same bytes, same id).
	if err := os.Rename(tmpName, s.path(id)); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("objstore: place %s: %w", id, err)
	}
	return id, nil
}

// Get retrieves the bytes stored under id, or ErrNotFound.
func (s *Store) Get(id string) ([]byte, error) {
	data, err := os.ReadFile(s.path(id)) //nolint:gosec // id is hex-validated by callers that accept external input
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("objstore: read %s: %w", id, err)
	}
	return data, nil
}

// Has reports whether id is present in the store.
func (s *Store) Has(id string) bool {
	_, err := os.Stat(s.path(id))
	return err == nil
}
