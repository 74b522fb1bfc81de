// Package resilience provides failover across redundant remote backends.
//
// A [Group] holds an ordered list of same-typed providers, each guarded by a
// small three-state circuit breaker. Calls go to the first entry whose
// breaker admits them; a failing primary is skipped in favour of healthy
// fallbacks until its reset timeout lets a probe through. Throttle
// rejections and context cancellation are treated as verdicts about the
// request, not the backend, and never trigger failover.
package resilience

import (
	"errors"
	"sync"
	"time"
)

// ErrOpen is returned by [Breaker.Do] when the breaker is rejecting calls.
var ErrOpen = errors.New("resilience: breaker open")

const (
	defaultMaxFailures  = 5
	defaultResetTimeout = 30 * time.Second
)

type breakerState int

const (
	stateClosed breakerState = iota
	stateOpen
	stateHalfOpen
)

func (s breakerState) String() string {
	switch s {
	case stateClosed:
		return "closed"
	case stateOpen:
		return "open"
	case stateHalfOpen:
		return "half-open"
	}
	return "unknown"
}

// Breaker is a minimal circuit breaker: maxFailures consecutive failures
// open it, and after resetTimeout a single probe call decides whether it
// closes again. Safe for concurrent use.
type Breaker struct {
	maxFailures  int
	resetTimeout time.Duration
	now          func() time.Time

	mu       sync.Mutex
	state    breakerState
	failures int
	openedAt time.Time
	probing  bool
}

// NewBreaker creates a closed Breaker. Non-positive arguments select the
// defaults of 5 failures and a 30s reset timeout.
func NewBreaker(maxFailures int, resetTimeout time.Duration) *Breaker {
	if maxFailures <= 0 {
		maxFailures = defaultMaxFailures
	}
	if resetTimeout <= 0 {
		resetTimeout = defaultResetTimeout
	}
	return &Breaker{
		maxFailures:  maxFailures,
		resetTimeout: resetTimeout,
		now:          time.Now,
	}
}

// Do runs fn if the breaker admits the call, recording the outcome.
// Returns [ErrOpen] without running fn when the breaker is open or another
// probe is already in flight.
func (b *Breaker) Do(fn func() error) error {
	if err := b.admit(); err != nil {
		return err
	}
	err := fn()
	b.record(err == nil)
	return err
}

// admit decides whether a call may proceed, moving an expired open breaker
// into the half-open probe state.
func (b *Breaker) admit() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case stateClosed:
		return nil
	case stateOpen:
		if b.now().Sub(b.openedAt) < b.resetTimeout {
			return ErrOpen
		}
		b.state = stateHalfOpen
		b.probing = true
		return nil
	case stateHalfOpen:
		if b.probing {
			return ErrOpen
		}
		b.probing = true
		return nil
	}
	return ErrOpen
}

func (b *Breaker) record(success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == stateHalfOpen {
		b.probing = false
		if success {
			b.state = stateClosed
			b.failures = 0
		} else {
			b.state = stateOpen
			b.openedAt = b.now()
		}
		return
	}

	if success {
		b.failures = 0
		return
	}
	b.failures++
	if b.failures >= b.maxFailures {
		b.state = stateOpen
		b.openedAt = b.now()
	}
}

// State returns the breaker's current state name, for logs and tests.
func (b *Breaker) State() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state.String()
}
