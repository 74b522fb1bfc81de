package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// ErrAllFailed is returned by [Do] when every entry failed or was rejected
// by its breaker. It wraps the last underlying error.
var ErrAllFailed = errors.New("resilience: all backends failed")

// GroupConfig tunes the per-entry breakers and error classification of a
// [Group].
type GroupConfig struct {
	// MaxFailures is the consecutive-failure count that opens an entry's
	// breaker. Non-positive selects the default.
	MaxFailures int

	// ResetTimeout is how long an opened entry is skipped before a probe
	// call is allowed. Non-positive selects the default.
	ResetTimeout time.Duration

	// Permanent classifies errors that describe the request rather than the
	// backend: such errors return immediately, do not count against the
	// breaker, and do not trigger failover. Nil classifies nothing.
	Permanent func(error) bool

	// Logger routes skip/failover logging. Nil uses slog.Default.
	Logger *slog.Logger
}

type entry[T any] struct {
	name    string
	value   T
	breaker *Breaker
}

// Group is an ordered set of interchangeable backends, each behind its own
// breaker. Entries are added at wiring time; [Do] walks them in order.
// Add is not safe to call concurrently with Do.
type Group[T any] struct {
	cfg     GroupConfig
	log     *slog.Logger
	entries []entry[T]
}

// NewGroup creates an empty Group.
func NewGroup[T any](cfg GroupConfig) *Group[T] {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Group[T]{cfg: cfg, log: log}
}

// Add appends a backend. Entries are tried in the order they were added.
func (g *Group[T]) Add(name string, value T) {
	g.entries = append(g.entries, entry[T]{
		name:    name,
		value:   value,
		breaker: NewBreaker(g.cfg.MaxFailures, g.cfg.ResetTimeout),
	})
}

// Len returns the number of registered backends.
func (g *Group[T]) Len() int { return len(g.entries) }

// Do tries fn against each backend in order until one succeeds. Entries with
// open breakers are skipped. A context error or an error the group's
// Permanent classifier accepts is returned as-is with no further attempts.
// This is a package-level function because Go does not support type
// parameters on methods.
func Do[T, R any](ctx context.Context, g *Group[T], fn func(T) (R, error)) (R, error) {
	var (
		zero    R
		lastErr error
	)
	if len(g.entries) == 0 {
		return zero, fmt.Errorf("%w: no backends registered", ErrAllFailed)
	}

	for i := range g.entries {
		e := &g.entries[i]

		var (
			result    R
			permanent error
		)
		err := e.breaker.Do(func() error {
			r, callErr := fn(e.value)
			if callErr == nil {
				result = r
				return nil
			}
			if ctx.Err() != nil || (g.cfg.Permanent != nil && g.cfg.Permanent(callErr)) {
				// The backend answered; the request itself is the problem.
				permanent = callErr
				return nil
			}
			return callErr
		})
		if permanent != nil {
			return zero, permanent
		}
		if err == nil {
			return result, nil
		}

		lastErr = err
		if errors.Is(err, ErrOpen) {
			g.log.Debug("skipping backend, breaker open", "backend", e.name)
		} else {
			g.log.Warn("backend failed, trying next", "backend", e.name, "err", err)
		}
	}
	return zero, fmt.Errorf("%w: %v", ErrAllFailed, lastErr)
}
