package interview

import (
	"context"
	"fmt"

	"github.com/harunnryd/interviewer/pkg/errorsx"
)

// SessionLock lets exactly one stage agent drive the spoken session.
// It is not reentrant: an agent holding it blocks on a second Acquire.
// Blocked acquirers are served in arrival order.
type SessionLock struct {
	slot chan struct{}
}

func NewSessionLock() *SessionLock {
	return &SessionLock{slot: make(chan struct{}, 1)}
}

// Acquire blocks until the lock is free or ctx is done.
func (l *SessionLock) Acquire(ctx context.Context) error {
	select {
	case l.slot <- struct{}{}:
		return nil
	case <-ctx.Done():
		return errorsx.Wrap(fmt.Errorf("acquire session lock: %w", ctx.Err()), errorsx.ReasonLockAcquire)
	}
}

// TryAcquire takes the lock only if nobody holds it.
func (l *SessionLock) TryAcquire() bool {
	select {
	case l.slot <- struct{}{}:
		return true
	default:
		return false
	}
}

// Release frees the lock and reports whether it was held.
// Callers track ownership themselves; releasing an unheld lock is a bug.
func (l *SessionLock) Release() bool {
	select {
	case <-l.slot:
		return true
	default:
		return false
	}
}

// Held reports whether some agent currently owns the lock.
func (l *SessionLock) Held() bool {
	return len(l.slot) == 1
}
