package resilience

import (
	"errors"
	"testing"
	"time"
)

var errBoom = errors.New("boom")

func TestBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	b := NewBreaker(3, time.Minute)

	for i := 0; i < 3; i++ {
		if err := b.Do(func() error { return errBoom }); !errors.Is(err, errBoom) {
			t.Fatalf("call %d: err = %v, want errBoom", i, err)
		}
	}
	if got := b.State(); got != "open" {
		t.Fatalf("state = %s, want open", got)
	}

	if err := b.Do(func() error { return nil }); !errors.Is(err, ErrOpen) {
		t.Fatalf("open breaker ran the call: %v", err)
	}
}

func TestBreaker_SuccessResetsFailureCount(t *testing.T) {
	b := NewBreaker(2, time.Minute)

	b.Do(func() error { return errBoom })
	b.Do(func() error { return nil })
	b.Do(func() error { return errBoom })

	if got := b.State(); got != "closed" {
		t.Errorf("state = %s, want closed after interleaved success", got)
	}
}

func TestBreaker_ProbeAfterResetTimeout(t *testing.T) {
	clock := time.Now()
	b := NewBreaker(1, 30*time.Second)
	b.now = func() time.Time { return clock }

	b.Do(func() error { return errBoom })
	if got := b.State(); got != "open" {
		t.Fatalf("state = %s, want open", got)
	}

	// Before the timeout the breaker stays shut.
	if err := b.Do(func() error { return nil }); !errors.Is(err, ErrOpen) {
		t.Fatalf("breaker admitted a call early: %v", err)
	}

	clock = clock.Add(31 * time.Second)

	t.Run("failed probe reopens", func(t *testing.T) {
		if err := b.Do(func() error { return errBoom }); !errors.Is(err, errBoom) {
			t.Fatalf("probe err = %v", err)
		}
		if got := b.State(); got != "open" {
			t.Errorf("state = %s, want open after failed probe", got)
		}
	})

	clock = clock.Add(31 * time.Second)

	t.Run("successful probe closes", func(t *testing.T) {
		if err := b.Do(func() error { return nil }); err != nil {
			t.Fatalf("probe err = %v", err)
		}
		if got := b.State(); got != "closed" {
			t.Errorf("state = %s, want closed after successful probe", got)
		}
	})
}

func TestBreaker_SingleProbeAtATime(t *testing.T) {
	clock := time.Now()
	b := NewBreaker(1, time.Second)
	b.now = func() time.Time { return clock }

	b.Do(func() error { return errBoom })
	clock = clock.Add(2 * time.Second)

	started := make(chan struct{})
	release := make(chan struct{})
	go b.Do(func() error {
		close(started)
		<-release
		return nil
	})
	<-started

	// A second caller during the probe is rejected.
	if err := b.Do(func() error { return nil }); !errors.Is(err, ErrOpen) {
		t.Errorf("concurrent probe admitted: %v", err)
	}
	close(release)
}
