package store

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	"github.com/quarry-search/quarry/internal/errors"
)

// IndexLock guards an index directory against concurrent writers across
// processes. Readers do not take the lock; SQLite WAL and Bleve handle
// concurrent reads themselves.
type IndexLock struct {
	path   string
	flock  *flock.Flock
	locked bool
}

// NewIndexLock creates a lock for dir. The lock file lives at
// <dir>/.quarry.lock.
func NewIndexLock(dir string) *IndexLock {
	path := filepath.Join(dir, ".quarry.lock")
	return &IndexLock{path: path, flock: flock.New(path)}
}

// Acquire takes the exclusive lock without blocking. A lock held by another
// process returns ErrCodeIndexLocked.
func (l *IndexLock) Acquire() error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("create lock directory: %w", err)
	}

	acquired, err := l.flock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !acquired {
		return errors.New(errors.ErrCodeIndexLocked, "index is locked by another process", nil).
			WithDetail("path", l.path).
			WithSuggestion("wait for the other quarry process to finish")
	}

	l.locked = true
	return nil
}

// Release drops the lock. Safe to call when not held.
func (l *IndexLock) Release() error {
	if !l.locked {
		return nil
	}
	l.locked = false
	if err := l.flock.Unlock(); err != nil {
		return fmt.Errorf("release lock: %w", err)
	}
	return nil
}

// Path returns the lock file location.
func (l *IndexLock) Path() string {
	return l.path
}
