package index

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// RepoLock is the per-repo advisory write lock (SPEC_FULL §4.9): at most one
// initial_sync may run against a store_id at a time. Readers never take it —
// the store's own consistency guarantees cover concurrent Search.
//
// Grounded on internal/embed/lock.go's FileLock, retargeted at
// <data_dir>/<store_id>.lock instead of a model download directory.
type RepoLock struct {
	path   string
	flock  *flock.Flock
	locked bool
}

// NewRepoLock returns the lock for storeID under dataDir.
func NewRepoLock(dataDir, storeID string) *RepoLock {
	path := filepath.Join(dataDir, storeID+".lock")
	return &RepoLock{path: path, flock: flock.New(path)}
}

// Lock blocks until the exclusive lock is acquired, creating the lock file's
// directory if needed.
func (l *RepoLock) Lock() error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("create lock directory: %w", err)
	}
	if err := l.flock.Lock(); err != nil {
		return fmt.Errorf("acquire index lock: %w", err)
	}
	l.locked = true
	return nil
}

// TryLock attempts to acquire the lock without blocking.
func (l *RepoLock) TryLock() (bool, error) {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return false, fmt.Errorf("create lock directory: %w", err)
	}
	acquired, err := l.flock.TryLock()
	if err != nil {
		return false, fmt.Errorf("acquire index lock: %w", err)
	}
	if acquired {
		l.locked = true
	}
	return acquired, nil
}

// Unlock releases the lock. Safe to call when not locked.
func (l *RepoLock) Unlock() error {
	if !l.locked {
		return nil
	}
	if err := l.flock.Unlock(); err != nil {
		return fmt.Errorf("release index lock: %w", err)
	}
	l.locked = false
	return nil
}

// Path returns the lock file's path.
func (l *RepoLock) Path() string {
	return l.path
}
