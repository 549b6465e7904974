package coordination

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

// Lock is a named advisory lock shared across processes via a file under a
// shared directory: path = dir/md5(name).lock. A Lock is "the file exists
// and its recorded owner is alive", not an OS-level advisory lock —
// gofrs/flock is used only to serialize the create-or-reclaim critical
// section between racing processes, not as the mutual-exclusion primitive
// itself.
type Lock struct {
	name  string
	path  string
	guard *flock.Flock
}

// NewLock returns a Lock named name, stored under dir (created if needed).
// Matches spec §4.11's path convention: dir is typically
// "${home}/.context/locks" and the file is "${md5(name)}.lock".
func NewLock(dir, name string) *Lock {
	sum := md5.Sum([]byte(name))
	base := hex.EncodeToString(sum[:]) + ".lock"
	path := filepath.Join(dir, base)
	return &Lock{
		name:  name,
		path:  path,
		guard: flock.New(path + ".guard"),
	}
}

// TryAcquire attempts to claim the lock without blocking. It succeeds if
// the lock file does not exist, or exists but its owner is stale (dead PID
// or older than opts.Timeout, DefaultLockTimeout when zero).
func (l *Lock) TryAcquire(opts Options) (bool, error) {
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = DefaultLockTimeout
	}

	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return false, fmt.Errorf("coordination: create lock dir: %w", err)
	}

	locked, err := l.guard.TryLock()
	if err != nil {
		return false, fmt.Errorf("coordination: guard lock: %w", err)
	}
	if !locked {
		// Another local goroutine/process is mid-reclaim; treat as busy
		// for this attempt rather than blocking.
		return false, nil
	}
	defer l.guard.Unlock()

	owner, err := readOwner(l.path)
	if err != nil {
		return false, fmt.Errorf("coordination: read lock: %w", err)
	}
	if owner != nil && !isStale(owner, timeout) {
		return false, nil
	}
	if owner != nil {
		_ = os.Remove(l.path)
	}

	if err := writeOwnerAtomic(l.path, currentOwner()); err != nil {
		if os.IsExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("coordination: claim lock: %w", err)
	}
	return true, nil
}

// Release removes the lock file, but only if the current process is the
// recorded owner (verified by re-reading the file per spec §4.11).
func (l *Lock) Release() error {
	owned, err := owns(l.path)
	if err != nil {
		return fmt.Errorf("coordination: verify owner: %w", err)
	}
	if !owned {
		return nil
	}
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("coordination: release lock: %w", err)
	}
	return nil
}

// WithLock acquires the lock, runs fn, and releases it unconditionally
// afterward. It returns ErrBusy if the lock could not be acquired.
func (l *Lock) WithLock(fn func() error, opts Options) error {
	acquired, err := l.TryAcquire(opts)
	if err != nil {
		return err
	}
	if !acquired {
		return ErrBusy
	}
	defer l.Release()
	return fn()
}

// Path returns the lock file's path, for diagnostics.
func (l *Lock) Path() string { return l.path }

// waitingBackoff is the fixed interval the blocking acquire loops in this
// package wait between attempts.
const waitingBackoff = 50 * time.Millisecond
