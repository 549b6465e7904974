package coordination

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLockTryAcquireAndRelease(t *testing.T) {
	dir := t.TempDir()
	l := NewLock(dir, "repo-index")

	ok, err := l.TryAcquire(Options{})
	require.NoError(t, err)
	require.True(t, ok)

	ok2, err := l.TryAcquire(Options{})
	require.NoError(t, err)
	require.False(t, ok2, "second acquire by the same process' lock handle should see it already held")

	require.NoError(t, l.Release())

	ok3, err := l.TryAcquire(Options{})
	require.NoError(t, err)
	require.True(t, ok3, "lock should be free again after release")
}

func TestLockReleaseIsNoOpWithoutOwnership(t *testing.T) {
	dir := t.TempDir()
	l := NewLock(dir, "repo-index")

	writeForeignOwner(t, l.Path(), ownerInfo{PID: 999999, StartTime: time.Now(), Hostname: "otherhost"})

	require.NoError(t, l.Release())
	_, err := os.Stat(l.Path())
	require.NoError(t, err, "release must not remove a lock file owned by a different process")
}

func TestLockReclaimsStaleOwner(t *testing.T) {
	dir := t.TempDir()
	l := NewLock(dir, "repo-index")

	hostname, _ := os.Hostname()
	writeForeignOwner(t, l.Path(), ownerInfo{PID: os.Getpid(), StartTime: time.Now().Add(-time.Hour), Hostname: hostname})

	ok, err := l.TryAcquire(Options{Timeout: time.Minute})
	require.NoError(t, err)
	require.True(t, ok, "an owner older than the timeout must be reclaimed")
}

func TestLockReclaimsDeadPID(t *testing.T) {
	dir := t.TempDir()
	l := NewLock(dir, "repo-index")

	hostname, _ := os.Hostname()
	writeForeignOwner(t, l.Path(), ownerInfo{PID: deadPID(), StartTime: time.Now(), Hostname: hostname})

	ok, err := l.TryAcquire(Options{})
	require.NoError(t, err)
	require.True(t, ok, "a dead same-host PID must be reclaimed regardless of age")
}

func TestLockWithLockReturnsErrBusyWhenHeld(t *testing.T) {
	dir := t.TempDir()
	l := NewLock(dir, "repo-index")

	hostname, _ := os.Hostname()
	writeForeignOwner(t, l.Path(), ownerInfo{PID: os.Getpid(), StartTime: time.Now(), Hostname: hostname})

	ran := false
	err := l.WithLock(func() error {
		ran = true
		return nil
	}, Options{})
	require.ErrorIs(t, err, ErrBusy)
	require.False(t, ran)
}

func TestLockAcquireBlocksUntilReleased(t *testing.T) {
	dir := t.TempDir()
	held := NewLock(dir, "repo-index")
	ok, err := held.TryAcquire(Options{})
	require.NoError(t, err)
	require.True(t, ok)

	waiter := NewLock(dir, "repo-index")
	done := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		done <- waiter.Acquire(ctx, Options{})
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, held.Release())

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Acquire did not unblock after release")
	}
}

func TestLockAcquireRespectsContextCancellation(t *testing.T) {
	dir := t.TempDir()
	l := NewLock(dir, "repo-index")
	hostname, _ := os.Hostname()
	writeForeignOwner(t, l.Path(), ownerInfo{PID: os.Getpid(), StartTime: time.Now(), Hostname: hostname})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := l.Acquire(ctx, Options{})
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSemaphoreAcquiresDistinctSlots(t *testing.T) {
	dir := t.TempDir()
	sem := NewSemaphore(dir, 2)

	slot1, ok1, err := sem.TryAcquire(Options{})
	require.NoError(t, err)
	require.True(t, ok1)

	slot2, ok2, err := sem.TryAcquire(Options{})
	require.NoError(t, err)
	require.True(t, ok2)
	require.NotEqual(t, slot1, slot2)

	_, ok3, err := sem.TryAcquire(Options{})
	require.NoError(t, err)
	require.False(t, ok3, "a semaphore with n=2 must refuse a third concurrent holder")

	require.NoError(t, sem.Release(slot1))

	slot4, ok4, err := sem.TryAcquire(Options{})
	require.NoError(t, err)
	require.True(t, ok4)
	require.Equal(t, slot1, slot4, "the freed slot should be reused")
}

func TestSemaphoreReclaimsStaleSlot(t *testing.T) {
	dir := t.TempDir()
	sem := NewSemaphore(dir, 1)

	hostname, _ := os.Hostname()
	writeForeignOwner(t, sem.slotPath(0), ownerInfo{PID: os.Getpid(), StartTime: time.Now().Add(-3 * time.Hour), Hostname: hostname})

	slot, ok, err := sem.TryAcquire(Options{Timeout: time.Hour})
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 0, slot)
}

func TestSemaphoreReleaseIsNoOpWithoutOwnership(t *testing.T) {
	dir := t.TempDir()
	sem := NewSemaphore(dir, 1)
	writeForeignOwner(t, sem.slotPath(0), ownerInfo{PID: 999999, StartTime: time.Now(), Hostname: "otherhost"})

	require.NoError(t, sem.Release(0))
	_, err := os.Stat(sem.slotPath(0))
	require.NoError(t, err)
}

func TestSemaphoreWithSlotReturnsErrBusyWhenFull(t *testing.T) {
	dir := t.TempDir()
	sem := NewSemaphore(dir, 1)
	hostname, _ := os.Hostname()
	writeForeignOwner(t, sem.slotPath(0), ownerInfo{PID: os.Getpid(), StartTime: time.Now(), Hostname: hostname})

	err := sem.WithSlot(func() error { return nil }, Options{})
	require.ErrorIs(t, err, ErrBusy)
}

func TestRegistryReleaseAllReleasesTrackedLocksAndSlots(t *testing.T) {
	dir := t.TempDir()
	l := NewLock(dir, "repo-index")
	ok, err := l.TryAcquire(Options{})
	require.NoError(t, err)
	require.True(t, ok)

	sem := NewSemaphore(dir, 1)
	slotID, ok, err := sem.TryAcquire(Options{})
	require.NoError(t, err)
	require.True(t, ok)

	reg := NewRegistry()
	reg.TrackLock(l)
	reg.TrackSlot(sem, slotID)

	reg.ReleaseAll()

	_, err = os.Stat(l.Path())
	require.True(t, os.IsNotExist(err))
	_, err = os.Stat(sem.slotPath(slotID))
	require.True(t, os.IsNotExist(err))
}

func writeForeignOwner(t *testing.T, path string, owner ownerInfo) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	data, err := json.Marshal(owner)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))
}

// deadPID returns a PID very unlikely to be alive: a large value unlikely
// to have been recycled and assigned during the test run.
func deadPID() int {
	return 1 << 30
}
