package jobs

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestPoolCapsConcurrency(t *testing.T) {
	pool := NewPool(nil)
	defer pool.Stop()

	var running, peak atomic.Int32
	release := make(chan struct{})
	var wg sync.WaitGroup

	job := func(ctx context.Context) {
		n := running.Add(1)
		for {
			old := peak.Load()
			if n <= old || peak.CompareAndSwap(old, n) {
				break
			}
		}
		<-release
		running.Add(-1)
	}

	ctx := context.Background()
	for i := 0; i < MaxWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			pool.Submit(ctx, "job", job)
		}()
	}

	// Give the two workers time to occupy their slots.
	deadline := time.Now().Add(time.Second)
	for running.Load() != MaxWorkers && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	if err := pool.TrySubmit(ctx, "extra", job); err != ErrPoolBusy {
		t.Errorf("TrySubmit with full pool = %v, want ErrPoolBusy", err)
	}

	close(release)
	wg.Wait()

	if got := peak.Load(); got > MaxWorkers {
		t.Errorf("peak concurrency %d exceeds cap %d", got, MaxWorkers)
	}
}

func TestTrySubmitAfterSlotFrees(t *testing.T) {
	pool := NewPool(nil)
	defer pool.Stop()

	done := make(chan struct{})
	if err := pool.TrySubmit(context.Background(), "first", func(ctx context.Context) {
		close(done)
	}); err != nil {
		t.Fatalf("TrySubmit: %v", err)
	}
	<-done

	// The slot is released asynchronously; poll briefly.
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if err := pool.TrySubmit(context.Background(), "second", func(ctx context.Context) {}); err == nil {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("slot never freed")
}

func TestStoppedPoolRejectsWork(t *testing.T) {
	pool := NewPool(nil)
	pool.Stop()

	if err := pool.TrySubmit(context.Background(), "late", func(ctx context.Context) {}); err != ErrStopped {
		t.Errorf("TrySubmit after Stop = %v, want ErrStopped", err)
	}
	if err := pool.Submit(context.Background(), "late", func(ctx context.Context) {}); err != ErrStopped {
		t.Errorf("Submit after Stop = %v, want ErrStopped", err)
	}
}

func TestPanickingJobFreesSlot(t *testing.T) {
	pool := NewPool(nil)
	defer pool.Stop()

	if err := pool.TrySubmit(context.Background(), "bad", func(ctx context.Context) {
		panic("boom")
	}); err != nil {
		t.Fatalf("TrySubmit: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if err := pool.TrySubmit(context.Background(), "after", func(ctx context.Context) {}); err == nil {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("slot leaked after panic")
}
