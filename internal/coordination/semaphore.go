package coordination

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// Semaphore is a counting semaphore over N slot files (slot-0..slot-{N-1})
// under dir, using the same atomic-create-or-reclaim staleness scheme as
// Lock (spec §4.11).
type Semaphore struct {
	dir   string
	n     int
	guard *flock.Flock
}

// NewSemaphore returns a Semaphore with n slots, stored under dir.
func NewSemaphore(dir string, n int) *Semaphore {
	return &Semaphore{dir: dir, n: n, guard: flock.New(filepath.Join(dir, ".semaphore.guard"))}
}

func (s *Semaphore) slotPath(i int) string {
	return filepath.Join(s.dir, fmt.Sprintf("slot-%d", i))
}

// TryAcquire scans slot-0..slot-{N-1} and claims the first free or stale
// slot, returning its index. ok is false if every slot is held by a live
// owner.
func (s *Semaphore) TryAcquire(opts Options) (slotID int, ok bool, err error) {
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = DefaultSemaphoreTimeout
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return 0, false, fmt.Errorf("coordination: create semaphore dir: %w", err)
	}

	locked, err := s.guard.TryLock()
	if err != nil {
		return 0, false, fmt.Errorf("coordination: guard lock: %w", err)
	}
	if !locked {
		return 0, false, nil
	}
	defer s.guard.Unlock()

	for i := 0; i < s.n; i++ {
		path := s.slotPath(i)
		owner, err := readOwner(path)
		if err != nil {
			return 0, false, fmt.Errorf("coordination: read slot %d: %w", i, err)
		}
		if owner != nil && !isStale(owner, timeout) {
			continue
		}
		if owner != nil {
			_ = os.Remove(path)
		}
		if err := writeOwnerAtomic(path, currentOwner()); err != nil {
			if os.IsExist(err) {
				continue
			}
			return 0, false, fmt.Errorf("coordination: claim slot %d: %w", i, err)
		}
		return i, true, nil
	}
	return 0, false, nil
}

// Release removes slot slotID's file, but only if the current process
// owns it.
func (s *Semaphore) Release(slotID int) error {
	path := s.slotPath(slotID)
	owned, err := owns(path)
	if err != nil {
		return fmt.Errorf("coordination: verify slot owner: %w", err)
	}
	if !owned {
		return nil
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("coordination: release slot %d: %w", slotID, err)
	}
	return nil
}

// WithSlot acquires a free slot, runs fn, and releases the slot
// unconditionally afterward. Returns ErrBusy if every slot is held.
func (s *Semaphore) WithSlot(fn func() error, opts Options) error {
	slotID, ok, err := s.TryAcquire(opts)
	if err != nil {
		return err
	}
	if !ok {
		return ErrBusy
	}
	defer s.Release(slotID)
	return fn()
}
