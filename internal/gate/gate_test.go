package gate

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestGate_MutualExclusion(t *testing.T) {
	g := New("clipboard")

	var (
		active  atomic.Int32
		maxSeen atomic.Int32
		wg      sync.WaitGroup
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			release, err := g.Acquire(context.Background(), fmt.Sprintf("w%d", id))
			if err != nil {
				t.Errorf("Acquire() error = %v", err)
				return
			}
			n := active.Add(1)
			if n > maxSeen.Load() {
				maxSeen.Store(n)
			}
			time.Sleep(time.Millisecond)
			active.Add(-1)
			release()
		}(i)
	}
	wg.Wait()

	if maxSeen.Load() != 1 {
		t.Errorf("max concurrent holders = %d, want 1", maxSeen.Load())
	}
	if _, held := g.Holder(); held {
		t.Error("gate still held after all releases")
	}
}

func TestGate_HolderAndIdempotentRelease(t *testing.T) {
	g := New("clipboard")

	release, err := g.Acquire(context.Background(), "1")
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if h, ok := g.Holder(); !ok || h != "1" {
		t.Errorf("Holder() = %q, %v; want 1, true", h, ok)
	}
	if _, ok := g.TryAcquire("2"); ok {
		t.Error("TryAcquire() succeeded while held")
	}

	release()
	release()

	second, ok := g.TryAcquire("2")
	if !ok {
		t.Fatal("TryAcquire() failed after release")
	}
	if h, _ := g.Holder(); h != "2" {
		t.Errorf("Holder() = %q, want 2", h)
	}
	second()
}

func TestGate_AcquireHonoursCancellation(t *testing.T) {
	g := New("clipboard")
	release, _ := g.Acquire(context.Background(), "1")
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, err := g.Acquire(ctx, "2"); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Acquire() error = %v, want DeadlineExceeded", err)
	}
	if h, _ := g.Holder(); h != "1" {
		t.Errorf("Holder() = %q after failed acquire, want 1", h)
	}
}

func TestGate_WaitFree(t *testing.T) {
	g := New("clipboard")

	if err := g.WaitFree(context.Background()); err != nil {
		t.Fatalf("WaitFree() on free gate = %v", err)
	}

	release, _ := g.Acquire(context.Background(), "1")
	done := make(chan error, 1)
	go func() { done <- g.WaitFree(context.Background()) }()

	select {
	case <-done:
		t.Fatal("WaitFree() returned while gate held")
	case <-time.After(20 * time.Millisecond):
	}

	release()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("WaitFree() = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("WaitFree() not woken by release")
	}
}
