package rategate

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestGate_SingleFlight(t *testing.T) {
	g := New(WithMinInterval(time.Millisecond))

	release, err := g.Acquire(context.Background())
	if err != nil {
		t.Fatalf("first Acquire: %v", err)
	}
	if !g.InFlight() {
		t.Fatal("gate should be held")
	}

	// Second caller must observably wait until the first releases.
	var secondHeld atomic.Bool
	done := make(chan struct{})
	go func() {
		defer close(done)
		r2, err := g.Acquire(context.Background())
		if err != nil {
			t.Errorf("second Acquire: %v", err)
			return
		}
		secondHeld.Store(true)
		r2()
	}()

	time.Sleep(50 * time.Millisecond)
	if secondHeld.Load() {
		t.Fatal("second caller acquired while the first still held the gate")
	}

	release()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("second caller never acquired after release")
	}
}

func TestGate_SpacingMeasuredFromCompletion(t *testing.T) {
	g := New(WithMinInterval(150 * time.Millisecond))

	release, err := g.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	// Hold the gate a while before releasing; the interval counts from here.
	time.Sleep(50 * time.Millisecond)
	completed := time.Now()
	release()

	if _, err := g.Acquire(context.Background()); err != nil {
		t.Fatalf("second Acquire: %v", err)
	}
	if elapsed := time.Since(completed); elapsed < 150*time.Millisecond {
		t.Errorf("second call admitted %v after completion, want ≥150ms", elapsed)
	}
}

func TestGate_CooldownBlocksAllCallers(t *testing.T) {
	g := New(WithMinInterval(time.Millisecond))

	start := time.Now()
	g.ReportThrottled(200 * time.Millisecond)

	if rem := g.CooldownRemaining(); rem <= 0 {
		t.Fatal("expected a positive cooldown remaining")
	}

	release, err := g.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer release()

	if elapsed := time.Since(start); elapsed < 200*time.Millisecond {
		t.Errorf("acquired %v after throttle report, want ≥200ms", elapsed)
	}
	if rem := g.CooldownRemaining(); rem != 0 {
		t.Errorf("cooldown remaining after expiry = %v, want 0", rem)
	}
}

func TestGate_DefaultCooldownApplied(t *testing.T) {
	g := New(WithDefaultCooldown(100 * time.Millisecond))

	g.ReportThrottled(0)

	rem := g.CooldownRemaining()
	if rem <= 0 || rem > 100*time.Millisecond {
		t.Errorf("remaining = %v, want within (0, 100ms]", rem)
	}
}

func TestGate_CancelledWaiterLeavesOthersIntact(t *testing.T) {
	g := New(WithMinInterval(time.Millisecond))

	release, err := g.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	// First waiter is cancelled while blocked.
	ctx, cancel := context.WithCancel(context.Background())
	cancelled := make(chan error, 1)
	go func() {
		_, err := g.Acquire(ctx)
		cancelled <- err
	}()

	// Second waiter stays.
	acquired := make(chan struct{})
	go func() {
		r, err := g.Acquire(context.Background())
		if err != nil {
			t.Errorf("surviving waiter: %v", err)
			return
		}
		close(acquired)
		r()
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-cancelled:
		if err != context.Canceled {
			t.Errorf("cancelled waiter returned %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("cancelled waiter never returned")
	}

	release()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("surviving waiter never acquired after the cancellation of another")
	}
}

func TestGate_ReleaseIdempotent(t *testing.T) {
	g := New(WithMinInterval(time.Millisecond))

	release, err := g.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	release()
	release() // no panic, no double-stamp

	if g.InFlight() {
		t.Error("gate still held after release")
	}
}

func TestGate_ConcurrentCallersNeverOverlap(t *testing.T) {
	g := New(WithMinInterval(time.Millisecond))

	var inFlight atomic.Int32
	var maxSeen atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := g.Acquire(context.Background())
			if err != nil {
				t.Errorf("Acquire: %v", err)
				return
			}
			n := inFlight.Add(1)
			if n > maxSeen.Load() {
				maxSeen.Store(n)
			}
			time.Sleep(5 * time.Millisecond)
			inFlight.Add(-1)
			release()
		}()
	}
	wg.Wait()

	if maxSeen.Load() != 1 {
		t.Errorf("max concurrent holders = %d, want 1", maxSeen.Load())
	}
}
