package hub

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// dirLock guards a data directory against concurrent hub processes. The
// record store and the lexical indexes are single-writer; two processes
// mutating the same directory would corrupt the ANN artifacts.
type dirLock struct {
	path   string
	flock  *flock.Flock
	locked bool
}

// newDirLock creates a lock for the given data directory. The lock file
// lives at <dir>/.hub.lock.
func newDirLock(dir string) *dirLock {
	lockPath := filepath.Join(dir, ".hub.lock")
	return &dirLock{
		path:  lockPath,
		flock: flock.New(lockPath),
	}
}

// TryLock attempts to acquire the lock without blocking. Returns false when
// another process holds it.
func (l *dirLock) TryLock() (bool, error) {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return false, fmt.Errorf("failed to create lock directory: %w", err)
	}
	acquired, err := l.flock.TryLock()
	if err != nil {
		return false, fmt.Errorf("failed to acquire lock: %w", err)
	}
	if acquired {
		l.locked = true
	}
	return acquired, nil
}

// Unlock releases the lock. Safe to call on an unlocked dirLock.
func (l *dirLock) Unlock() error {
	if !l.locked {
		return nil
	}
	if err := l.flock.Unlock(); err != nil {
		l.locked = false
		return fmt.Errorf("failed to release lock: %w", err)
	}
	l.locked = false
	return nil
}
