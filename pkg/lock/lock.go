package lock

import (
	"context"
	"sync"
)

// Lock is an advisory single-holder lock with a FIFO waiter queue.
// Waiters acquire in arrival order; Execute guarantees release on both
// normal and error exit paths.
type Lock struct {
	mu      sync.Mutex
	held    bool
	waiters []chan struct{}
}

// NewLock creates an unheld lock
func NewLock() *Lock {
	return &Lock{}
}

// Acquire suspends until the holder releases or ctx is done
func (l *Lock) Acquire(ctx context.Context) error {
	l.mu.Lock()
	if !l.held {
		l.held = true
		l.mu.Unlock()
		return nil
	}
	grant := make(chan struct{})
	l.waiters = append(l.waiters, grant)
	l.mu.Unlock()

	select {
	case <-grant:
		return nil
	case <-ctx.Done():
		l.mu.Lock()
		for i, w := range l.waiters {
			if w == grant {
				l.waiters = append(l.waiters[:i], l.waiters[i+1:]...)
				l.mu.Unlock()
				return ctx.Err()
			}
		}
		l.mu.Unlock()
		// The grant raced the cancellation; we own the lock now and
		// must hand it on.
		l.Release()
		return ctx.Err()
	}
}

// Release hands the lock to the oldest waiter, or marks it free
func (l *Lock) Release() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.waiters) > 0 {
		grant := l.waiters[0]
		l.waiters = l.waiters[1:]
		close(grant)
		return
	}
	l.held = false
}

// Execute runs fn while holding the lock
func (l *Lock) Execute(ctx context.Context, fn func() error) error {
	if err := l.Acquire(ctx); err != nil {
		return err
	}
	defer l.Release()
	return fn()
}

// Held reports whether the lock is currently held
func (l *Lock) Held() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.held
}

// Waiters returns the current queue length
func (l *Lock) Waiters() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.waiters)
}
