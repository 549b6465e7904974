package coordination

import (
	"encoding/json"
	"errors"
	"os"
	"syscall"
	"time"
)

var processStartTime = time.Now()

// currentOwner builds the ownerInfo this process would write into a
// lock/slot file it acquires.
func currentOwner() ownerInfo {
	hostname, _ := os.Hostname()
	return ownerInfo{
		PID:       os.Getpid(),
		StartTime: processStartTime,
		Hostname:  hostname,
	}
}

// readOwner parses the owner metadata at path. A missing file is not an
// error — it means the lock/slot is free.
func readOwner(path string) (*ownerInfo, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var info ownerInfo
	if err := json.Unmarshal(data, &info); err != nil {
		// An unparseable file is treated as stale rather than fatal: a
		// partially-written file from a crash mid-write should not wedge
		// the lock forever.
		return nil, nil
	}
	return &info, nil
}

// isStale reports whether owner no longer holds a valid claim: its PID is
// not alive on this host, or its age exceeds timeout.
func isStale(owner *ownerInfo, timeout time.Duration) bool {
	if owner == nil {
		return true
	}
	hostname, _ := os.Hostname()
	if owner.Hostname == hostname && !isAlive(owner.PID) {
		return true
	}
	return time.Since(owner.StartTime) > timeout
}

// isAlive reports whether pid is running on this host, using signal 0
// (no-op existence probe) per the standard Unix liveness idiom.
func isAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = process.Signal(syscall.Signal(0))
	return err == nil
}

// writeOwnerAtomic atomically creates path with owner's JSON content,
// failing with os.ErrExist if path already exists — the same primitive
// both Lock and Semaphore use to claim a file.
func writeOwnerAtomic(path string, owner ownerInfo) error {
	data, err := json.Marshal(owner)
	if err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.Write(data)
	return err
}

// owns reports whether the owner recorded at path is the current process.
func owns(path string) (bool, error) {
	owner, err := readOwner(path)
	if err != nil {
		return false, err
	}
	if owner == nil {
		return false, nil
	}
	hostname, _ := os.Hostname()
	return owner.PID == os.Getpid() && owner.Hostname == hostname, nil
}
