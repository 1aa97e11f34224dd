// Package keylock serializes work per key while letting different keys run in parallel.
package keylock

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// Locker hands out one FIFO lock per key. Entries are dropped once no caller holds or waits on them.
type Locker struct {
	mu      sync.Mutex
	entries map[string]*entry
}

type entry struct {
	sem  *semaphore.Weighted
	refs int
}

func New() *Locker {
	return &Locker{entries: map[string]*entry{}}
}

// Acquire blocks until the key is free or ctx is done. Waiters are served in arrival order.
// The returned release func must be called exactly once.
func (l *Locker) Acquire(ctx context.Context, key string) (func(), error) {
	e := l.ref(key)
	if err := e.sem.Acquire(ctx, 1); err != nil {
		l.unref(key)
		return nil, err
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			e.sem.Release(1)
			l.unref(key)
		})
	}, nil
}

// WaitObserver is notified when an acquisition has waited longer than the warn threshold.
type WaitObserver func(key string, waited time.Duration)

// AcquireWithWarn behaves like Acquire but calls onSlow once if the wait exceeds warnAfter.
// The caller keeps waiting after the warning; only ctx abandons the wait.
func (l *Locker) AcquireWithWarn(ctx context.Context, key string, warnAfter time.Duration, onSlow WaitObserver) (func(), time.Duration, error) {
	start := time.Now()
	if warnAfter <= 0 || onSlow == nil {
		release, err := l.Acquire(ctx, key)
		return release, time.Since(start), err
	}
	done := make(chan struct{})
	defer close(done)
	go func() {
		t := time.NewTimer(warnAfter)
		defer t.Stop()
		select {
		case <-t.C:
			onSlow(key, time.Since(start))
		case <-done:
		}
	}()
	release, err := l.Acquire(ctx, key)
	return release, time.Since(start), err
}

// Len reports how many keys currently have holders or waiters.
func (l *Locker) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

func (l *Locker) ref(key string) *entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[key]
	if !ok {
		e = &entry{sem: semaphore.NewWeighted(1)}
		l.entries[key] = e
	}
	e.refs++
	return e
}

func (l *Locker) unref(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[key]
	if !ok {
		return
	}
	e.refs--
	if e.refs <= 0 {
		delete(l.entries, key)
	}
}
