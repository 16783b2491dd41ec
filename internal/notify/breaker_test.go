package notify

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestGuardedChannel_OpensAfterThreshold(t *testing.T) {
	sig := fixtureSignal(t)
	inner := &recordingChannel{name: "redis", enabled: true, err: errors.New("connection refused")}
	g := NewGuardedChannel(inner, BreakerConfig{FailureThreshold: 2, Cooldown: time.Minute})

	clock := time.Date(2026, 1, 7, 12, 0, 0, 0, time.UTC)
	g.now = func() time.Time { return clock }
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := g.Publish(ctx, sig); err == nil || errors.Is(err, ErrBreakerOpen) {
			t.Fatalf("attempt %d: err = %v, want inner error", i, err)
		}
	}
	if g.State() != BreakerOpen {
		t.Fatalf("state = %s, want open", g.State())
	}

	if err := g.Publish(ctx, sig); !errors.Is(err, ErrBreakerOpen) {
		t.Errorf("err = %v, want ErrBreakerOpen", err)
	}
	if len(inner.got) != 2 {
		t.Errorf("inner called %d times, want 2", len(inner.got))
	}

	// trial after cooldown succeeds and closes the breaker
	clock = clock.Add(2 * time.Minute)
	inner.err = nil
	if err := g.Publish(ctx, sig); err != nil {
		t.Fatalf("trial: %v", err)
	}
	if g.State() != BreakerClosed {
		t.Errorf("state = %s, want closed", g.State())
	}

	st := g.Stats()
	if st.Delivered != 1 || st.Failed != 2 || st.Rejected != 1 {
		t.Errorf("stats = %+v", st)
	}
}

func TestGuardedChannel_FailedTrialReopens(t *testing.T) {
	sig := fixtureSignal(t)
	inner := &recordingChannel{name: "redis", enabled: true, err: errors.New("timeout")}
	g := NewGuardedChannel(inner, BreakerConfig{FailureThreshold: 1, Cooldown: time.Second})

	clock := time.Date(2026, 1, 7, 12, 0, 0, 0, time.UTC)
	g.now = func() time.Time { return clock }
	ctx := context.Background()

	g.Publish(ctx, sig)
	clock = clock.Add(2 * time.Second)
	g.Publish(ctx, sig)
	if g.State() != BreakerOpen {
		t.Errorf("state = %s, want open after failed trial", g.State())
	}
	if err := g.Publish(ctx, sig); !errors.Is(err, ErrBreakerOpen) {
		t.Errorf("err = %v, want ErrBreakerOpen", err)
	}
	if st := g.Stats(); st.State != BreakerOpen || st.Failed != 2 || st.Rejected != 1 {
		t.Errorf("stats = %+v", st)
	}
}

func TestGuardedChannel_InMultiNotifier(t *testing.T) {
	sig := fixtureSignal(t)
	down := NewGuardedChannel(&recordingChannel{name: "redis", enabled: true, err: errors.New("down")}, BreakerConfig{FailureThreshold: 1})
	up := &recordingChannel{name: "terminal", enabled: true}
	mn := NewMultiNotifier(0, up, down)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if err := mn.Publish(ctx, sig); err == nil {
			t.Errorf("publish %d: want error while redis is down", i)
		}
	}
	if len(up.got) != 3 {
		t.Errorf("terminal got %d signals, want 3", len(up.got))
	}
	if down.Stats().Rejected != 2 {
		t.Errorf("rejected = %d, want 2", down.Stats().Rejected)
	}
}
