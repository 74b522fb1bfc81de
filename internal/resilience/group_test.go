package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

// stub counts calls and returns a scripted error sequence, then nil.
type stub struct {
	calls int
	errs  []error
}

func (s *stub) call() (string, error) {
	s.calls++
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		if err != nil {
			return "", err
		}
	}
	return "ok", nil
}

func newTestGroup(cfg GroupConfig, backends ...*stub) *Group[*stub] {
	g := NewGroup[*stub](cfg)
	for i, b := range backends {
		g.Add(string(rune('a'+i)), b)
	}
	return g
}

func TestDo_PrimaryPreferred(t *testing.T) {
	primary, secondary := &stub{}, &stub{}
	g := newTestGroup(GroupConfig{}, primary, secondary)

	got, err := Do(context.Background(), g, func(s *stub) (string, error) { return s.call() })
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if got != "ok" || primary.calls != 1 || secondary.calls != 0 {
		t.Errorf("primary=%d secondary=%d, want only the primary called", primary.calls, secondary.calls)
	}
}

func TestDo_FailsOverToSecondary(t *testing.T) {
	primary := &stub{errs: []error{errBoom}}
	secondary := &stub{}
	g := newTestGroup(GroupConfig{}, primary, secondary)

	got, err := Do(context.Background(), g, func(s *stub) (string, error) { return s.call() })
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if got != "ok" || secondary.calls != 1 {
		t.Errorf("secondary calls = %d, want 1", secondary.calls)
	}
}

func TestDo_AllFailed(t *testing.T) {
	g := newTestGroup(GroupConfig{},
		&stub{errs: []error{errBoom}},
		&stub{errs: []error{errBoom}},
	)

	_, err := Do(context.Background(), g, func(s *stub) (string, error) { return s.call() })
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
}

func TestDo_NoBackends(t *testing.T) {
	g := NewGroup[*stub](GroupConfig{})
	if _, err := Do(context.Background(), g, func(s *stub) (string, error) { return s.call() }); !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
}

func TestDo_PermanentErrorSkipsFailover(t *testing.T) {
	errRejected := errors.New("rejected")
	primary := &stub{errs: []error{errRejected}}
	secondary := &stub{}
	g := newTestGroup(GroupConfig{
		Permanent: func(err error) bool { return errors.Is(err, errRejected) },
	}, primary, secondary)

	_, err := Do(context.Background(), g, func(s *stub) (string, error) { return s.call() })
	if !errors.Is(err, errRejected) {
		t.Fatalf("err = %v, want the permanent error unwrapped", err)
	}
	if secondary.calls != 0 {
		t.Error("permanent error must not reach the fallback")
	}

	// The rejection also must not count toward opening the breaker.
	if got := g.entries[0].breaker.State(); got != "closed" {
		t.Errorf("breaker state = %s, want closed", got)
	}
}

func TestDo_ContextErrorStopsTheWalk(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	primary := &stub{}
	secondary := &stub{}
	g := newTestGroup(GroupConfig{}, primary, secondary)

	_, err := Do(ctx, g, func(s *stub) (string, error) {
		s.calls++
		cancel()
		return "", ctx.Err()
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if secondary.calls != 0 {
		t.Error("cancelled request must not fail over")
	}
}

func TestDo_SkipsOpenBreaker(t *testing.T) {
	primary := &stub{errs: []error{errBoom, errBoom}}
	secondary := &stub{}
	g := newTestGroup(GroupConfig{MaxFailures: 2, ResetTimeout: time.Hour}, primary, secondary)

	for i := 0; i < 3; i++ {
		if _, err := Do(context.Background(), g, func(s *stub) (string, error) { return s.call() }); err != nil {
			t.Fatalf("Do %d: %v", i, err)
		}
	}

	// Two failures opened the primary's breaker; the third round must not
	// have touched it.
	if primary.calls != 2 {
		t.Errorf("primary calls = %d, want 2", primary.calls)
	}
	if secondary.calls != 3 {
		t.Errorf("secondary calls = %d, want 3", secondary.calls)
	}
}
