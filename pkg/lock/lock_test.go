package lock

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestLockFIFOOrder verifies waiters acquire exactly once, in arrival order
func TestLockFIFOOrder(t *testing.T) {
	l := NewLock()
	ctx := context.Background()

	require.NoError(t, l.Acquire(ctx))

	const waiters = 5
	var mu sync.Mutex
	var order []int
	ready := make(chan struct{}, waiters)
	done := make(chan struct{})

	var wg sync.WaitGroup
	for i := 0; i < waiters; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ready <- struct{}{}
			require.NoError(t, l.Acquire(ctx))
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			l.Release()
		}(i)
		// let each goroutine enqueue before starting the next
		<-ready
		waitForWaiters(t, l, i+1)
	}

	go func() {
		wg.Wait()
		close(done)
	}()

	l.Release()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("waiters did not drain")
	}

	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
	assert.False(t, l.Held())
	assert.Zero(t, l.Waiters())
}

func waitForWaiters(t *testing.T, l *Lock, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for l.Waiters() < n {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d waiters, have %d", n, l.Waiters())
		}
		time.Sleep(time.Millisecond)
	}
}

// TestLockExecuteReleasesOnError verifies release on the error exit path
func TestLockExecuteReleasesOnError(t *testing.T) {
	l := NewLock()
	ctx := context.Background()

	err := l.Execute(ctx, func() error {
		return fmt.Errorf("boom")
	})
	assert.Error(t, err)
	assert.False(t, l.Held())

	// lock is usable afterwards
	require.NoError(t, l.Acquire(ctx))
	l.Release()
}

func TestLockAcquireCanceled(t *testing.T) {
	l := NewLock()
	require.NoError(t, l.Acquire(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := l.Acquire(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Zero(t, l.Waiters())

	l.Release()
	assert.False(t, l.Held())
}

// TestMultiLockGC verifies empty queues are collected on release
func TestMultiLockGC(t *testing.T) {
	m := NewMultiLock()
	ctx := context.Background()

	require.NoError(t, m.Acquire(ctx, "a"))
	require.NoError(t, m.Acquire(ctx, "b"))
	assert.Equal(t, 2, m.Len())

	m.Release("a")
	assert.Equal(t, 1, m.Len())
	m.Release("b")
	assert.Zero(t, m.Len())
}

func TestMultiLockIndependentKeys(t *testing.T) {
	m := NewMultiLock()
	ctx := context.Background()

	require.NoError(t, m.Acquire(ctx, "a"))

	// a different key must not block
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = m.Execute(ctx, "b", func() error { return nil })
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("independent key blocked")
	}
	m.Release("a")
}

// TestFileLockMarkerRemovedOnError verifies the marker file is gone
// after Execute even when the function failed.
func TestFileLockMarkerRemovedOnError(t *testing.T) {
	dir := t.TempDir()
	f := NewFileLock(dir, "table/name")

	err := f.Execute(context.Background(), func() error {
		_, statErr := os.Stat(f.Path())
		require.NoError(t, statErr)
		return fmt.Errorf("boom")
	})
	assert.Error(t, err)

	_, statErr := os.Stat(f.Path())
	assert.True(t, os.IsNotExist(statErr))
}

func TestFileLockEncodesKey(t *testing.T) {
	f := NewFileLock("/tmp/locks", "users/42")
	assert.Contains(t, f.Path(), "users%2F42.lock")
}

func TestFileLockBlocksSecondHolder(t *testing.T) {
	dir := t.TempDir()
	a := NewFileLock(dir, "k")
	b := NewFileLock(dir, "k")

	require.NoError(t, a.Acquire(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	assert.Error(t, b.Acquire(ctx))

	require.NoError(t, a.Release())
	require.NoError(t, b.Acquire(context.Background()))
	require.NoError(t, b.Release())
}
