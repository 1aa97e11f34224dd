package keylock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestSameKeyIsSerialized(t *testing.T) {
	l := New()
	var inside int32
	var maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := l.Acquire(context.Background(), "user-1")
			if err != nil {
				t.Errorf("Acquire: %v", err)
				return
			}
			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxInside)
				if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
			release()
		}()
	}
	wg.Wait()
	if maxInside != 1 {
		t.Fatalf("max concurrent holders: want 1 got %d", maxInside)
	}
	if l.Len() != 0 {
		t.Fatalf("entries leaked: %d", l.Len())
	}
}

func TestDifferentKeysRunInParallel(t *testing.T) {
	l := New()
	relA, err := l.Acquire(context.Background(), "a")
	if err != nil {
		t.Fatalf("Acquire a: %v", err)
	}
	defer relA()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	relB, err := l.Acquire(ctx, "b")
	if err != nil {
		t.Fatalf("Acquire b blocked by a: %v", err)
	}
	relB()
}

func TestAcquireHonorsContext(t *testing.T) {
	l := New()
	release, _ := l.Acquire(context.Background(), "k")
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := l.Acquire(ctx, "k"); err == nil {
		t.Fatalf("expected context error")
	}
	if l.Len() != 1 {
		t.Fatalf("abandoned waiter must drop its ref, entries=%d", l.Len())
	}
}

func TestAcquireWithWarnKeepsWaiting(t *testing.T) {
	l := New()
	release, _ := l.Acquire(context.Background(), "k")

	warned := make(chan time.Duration, 1)
	go func() {
		time.Sleep(60 * time.Millisecond)
		release()
	}()
	rel2, waited, err := l.AcquireWithWarn(context.Background(), "k", 10*time.Millisecond, func(_ string, d time.Duration) {
		warned <- d
	})
	if err != nil {
		t.Fatalf("AcquireWithWarn: %v", err)
	}
	defer rel2()
	select {
	case <-warned:
	case <-time.After(time.Second):
		t.Fatalf("expected slow-wait warning")
	}
	if waited < 50*time.Millisecond {
		t.Fatalf("waited too little: %v", waited)
	}
}
