// Package buildlock provides a cross-process exclusive lock over one
// project's .codexlens data directory, adapted from the teacher's
// internal/embed.FileLock (there guarding concurrent embedding-model
// downloads). Here it guards against two codexlens processes (e.g. a
// `build` and a `watch`) writing to the same SQLite stores at once —
// WAL mode plus SetMaxOpenConns(1) serializes writers within one
// process, but says nothing about a second process.
package buildlock

import (
	"path/filepath"

	"github.com/gofrs/flock"

	"github.com/codexlens/codexlens/internal/cerrors"
)

// Lock is an exclusive, cross-process file lock scoped to a data directory.
type Lock struct {
	path   string
	fl     *flock.Flock
	locked bool
}

// New creates a Lock for dataDir. The lock file lives at
// <dataDir>/.build.lock and is created on first acquisition.
func New(dataDir string) *Lock {
	path := filepath.Join(dataDir, ".build.lock")
	return &Lock{path: path, fl: flock.New(path)}
}

// TryAcquire attempts to take the lock without blocking. ok is false if
// another process already holds it.
func (l *Lock) TryAcquire() (ok bool, err error) {
	acquired, err := l.fl.TryLock()
	if err != nil {
		return false, cerrors.StorageBusyError("acquire build lock", err)
	}
	l.locked = acquired
	return acquired, nil
}

// Release drops the lock; safe to call even if never acquired.
func (l *Lock) Release() error {
	if !l.locked {
		return nil
	}
	l.locked = false
	if err := l.fl.Unlock(); err != nil {
		return cerrors.StorageError("release build lock", err)
	}
	return nil
}

// Path returns the lock file's path, for diagnostics.
func (l *Lock) Path() string { return l.path }
