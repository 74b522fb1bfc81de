// Package rategate guards the external analysis endpoint with a single
// global admission gate.
//
// The gate enforces three conditions before any caller may start a call:
//
//  1. Single-flight: at most one call is in flight across all callers.
//  2. Spacing: at least MinInterval has elapsed since the previous call
//     completed (measured from completion, not start, so a slow call cannot
//     understate real spacing).
//  3. Cooldown: any window opened by a throttling response has expired.
//
// Both call sites — the periodic live-assessment pulse and the one-shot
// final analysis — funnel through the same Gate instance, which is how the
// "at most one in-flight call, globally" invariant holds. The Gate is an
// injected dependency, never a package-level global.
//
// All methods are safe for concurrent use.
package rategate

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const (
	// DefaultMinInterval is the minimum spacing between the completion of
	// one call and the start of the next.
	DefaultMinInterval = 2 * time.Second

	// DefaultCooldown is applied after a throttling response that carries
	// no retry hint of its own.
	DefaultCooldown = 15 * time.Second
)

// Option is a functional option for a [Gate].
type Option func(*Gate)

// WithMinInterval overrides the completion-to-start spacing.
// Non-positive values are ignored.
func WithMinInterval(d time.Duration) Option {
	return func(g *Gate) {
		if d > 0 {
			g.minInterval = d
		}
	}
}

// WithDefaultCooldown overrides the cooldown applied when a throttling
// report carries no duration. Non-positive values are ignored.
func WithDefaultCooldown(d time.Duration) Option {
	return func(g *Gate) {
		if d > 0 {
			g.defaultCooldown = d
		}
	}
}

// Gate is the admission coordinator. The zero value is not usable; create
// one with [New].
type Gate struct {
	minInterval     time.Duration
	defaultCooldown time.Duration

	mu            sync.Mutex
	inFlight      bool
	lastCompleted time.Time
	cooldownUntil time.Time

	// wake is closed and replaced whenever gate state changes in a way
	// that could unblock waiters. Waiters grab the current channel under
	// mu, block on it, and re-check all three conditions on wakeup. A
	// cancelled waiter simply stops re-checking — there is no queue entry
	// to corrupt.
	wake chan struct{}
}

// New creates a Gate with the supplied options.
func New(opts ...Option) *Gate {
	g := &Gate{
		minInterval:     DefaultMinInterval,
		defaultCooldown: DefaultCooldown,
		wake:            make(chan struct{}),
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Acquire blocks until the caller may start a call, then returns a release
// handle. The caller must invoke release exactly once when the call
// finishes, in every outcome — success, failure, or cancellation of the
// call itself. Releasing stamps the completion instant that the next
// caller's spacing is measured from. The returned handle is idempotent;
// extra invocations are no-ops.
//
// If ctx is cancelled while waiting, Acquire returns ctx.Err() without ever
// having held the lock, and other waiters are unaffected.
func (g *Gate) Acquire(ctx context.Context) (release func(), err error) {
	for {
		g.mu.Lock()

		if !g.inFlight {
			wait := g.blockedFor(time.Now())
			if wait <= 0 {
				g.inFlight = true
				g.mu.Unlock()
				return g.releaseFunc(), nil
			}

			// Gate is free but time-blocked: sleep out the shorter of the
			// remaining window or the next state change.
			wake := g.wake
			g.mu.Unlock()

			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			case <-timer.C:
			case <-wake:
				timer.Stop()
			}
			continue
		}

		// A call is in flight; wait for its release.
		wake := g.wake
		g.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-wake:
		}
	}
}

// ReportThrottled records that the endpoint returned a throttling response.
// Subsequent Acquire calls block until the cooldown passes, regardless of
// which caller reports or acquires. A non-positive cooldown applies the
// gate's default.
func (g *Gate) ReportThrottled(cooldown time.Duration) {
	if cooldown <= 0 {
		cooldown = g.defaultCooldown
	}

	g.mu.Lock()
	g.cooldownUntil = time.Now().Add(cooldown)
	g.broadcast()
	g.mu.Unlock()

	slog.Warn("analysis endpoint throttled, cooling down", "cooldown", cooldown)
}

// CooldownRemaining returns how much of an active cooldown window is left,
// or zero when none is active. Used to surface a retry-after countdown.
func (g *Gate) CooldownRemaining() time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()
	if rem := time.Until(g.cooldownUntil); rem > 0 {
		return rem
	}
	return 0
}

// InFlight reports whether a call currently holds the gate.
func (g *Gate) InFlight() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.inFlight
}

// blockedFor returns how long the gate is time-blocked from now: the
// remainder of the spacing interval or the cooldown window, whichever ends
// later. Must be called with g.mu held.
func (g *Gate) blockedFor(now time.Time) time.Duration {
	var until time.Time
	if !g.lastCompleted.IsZero() {
		until = g.lastCompleted.Add(g.minInterval)
	}
	if g.cooldownUntil.After(until) {
		until = g.cooldownUntil
	}
	return until.Sub(now)
}

// releaseFunc builds the idempotent release handle for the current holder.
func (g *Gate) releaseFunc() func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			g.inFlight = false
			g.lastCompleted = time.Now()
			g.broadcast()
			g.mu.Unlock()
		})
	}
}

// broadcast wakes every waiter so it re-checks the gate conditions.
// Must be called with g.mu held.
func (g *Gate) broadcast() {
	close(g.wake)
	g.wake = make(chan struct{})
}
