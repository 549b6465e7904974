// Package coordination implements the Cross-Process Coordinator (C11): an
// advisory Lock and a counting Semaphore, both backed by atomically-created
// files carrying owner metadata, with PID-liveness-based staleness reclaim,
// per spec §4.11.
package coordination

import "time"

// DefaultLockTimeout and DefaultSemaphoreTimeout match spec §4.11's
// staleness windows.
const (
	DefaultLockTimeout      = 30 * time.Minute
	DefaultSemaphoreTimeout = 2 * time.Hour
)

// ownerInfo is the JSON content of a lock/slot file: enough to test
// liveness (PID on this host) and staleness (age against a timeout).
type ownerInfo struct {
	PID       int       `json:"pid"`
	StartTime time.Time `json:"start_time"`
	Hostname  string    `json:"hostname"`
}

// Options configures a single try_acquire/release/with_lock call.
type Options struct {
	// Timeout overrides the default staleness window for this call.
	Timeout time.Duration
}
