package coordination

import (
	"context"
	"errors"
	"time"
)

// ErrBusy is returned by WithLock/WithSlot when the lock or a semaphore
// slot could not be acquired.
var ErrBusy = errors.New("coordination: busy")

// Acquire blocks, retrying TryAcquire on a fixed backoff, until it
// succeeds or ctx is cancelled.
func (l *Lock) Acquire(ctx context.Context, opts Options) error {
	for {
		acquired, err := l.TryAcquire(opts)
		if err != nil {
			return err
		}
		if acquired {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(waitingBackoff):
		}
	}
}
