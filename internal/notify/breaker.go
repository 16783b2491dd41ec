package notify

import (
	"context"
	"errors"
	"sync"
	"time"
)

// BreakerState is the state of a guarded channel.
type BreakerState string

const (
	BreakerClosed   BreakerState = "closed"    // delivering
	BreakerOpen     BreakerState = "open"      // rejecting until the cooldown passes
	BreakerHalfOpen BreakerState = "half_open" // one trial delivery allowed
)

// ErrBreakerOpen is returned while a guarded channel is rejecting signals.
var ErrBreakerOpen = errors.New("channel breaker is open")

// BreakerConfig configures a guarded channel.
type BreakerConfig struct {
	FailureThreshold int           // consecutive failures that open the breaker
	Cooldown         time.Duration // time spent open before a trial delivery
}

// DefaultBreakerConfig returns the breaker settings used for network channels.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{FailureThreshold: 3, Cooldown: time.Minute}
}

// BreakerStats counts deliveries through a guarded channel.
type BreakerStats struct {
	State     BreakerState
	Delivered int64
	Failed    int64
	Rejected  int64
	OpenedAt  time.Time
}

// GuardedChannel wraps a channel with a circuit breaker. Once the inner channel
// has failed FailureThreshold times in a row, signals are rejected without
// contacting it until Cooldown has passed. Rejected signals surface as publish
// errors, so the watcher keeps them pending.
type GuardedChannel struct {
	inner  Channel
	config BreakerConfig
	now    func() time.Time

	mu       sync.Mutex
	state    BreakerState
	failures int
	stats    BreakerStats
}

// NewGuardedChannel wraps inner with a breaker.
func NewGuardedChannel(inner Channel, cfg BreakerConfig) *GuardedChannel {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = DefaultBreakerConfig().FailureThreshold
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = DefaultBreakerConfig().Cooldown
	}
	return &GuardedChannel{inner: inner, config: cfg, now: time.Now, state: BreakerClosed}
}

func (g *GuardedChannel) Name() string    { return g.inner.Name() }
func (g *GuardedChannel) IsEnabled() bool { return g.inner.IsEnabled() }

// Publish delivers s through the inner channel unless the breaker is open.
func (g *GuardedChannel) Publish(ctx context.Context, s Signal) error {
	if err := g.allow(); err != nil {
		return err
	}
	err := g.inner.Publish(ctx, s)
	g.record(err)
	return err
}

func (g *GuardedChannel) allow() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	switch g.state {
	case BreakerOpen:
		if g.now().Sub(g.stats.OpenedAt) < g.config.Cooldown {
			g.stats.Rejected++
			return ErrBreakerOpen
		}
		g.state = BreakerHalfOpen
	case BreakerHalfOpen:
		// a trial is already in flight
		g.stats.Rejected++
		return ErrBreakerOpen
	}
	return nil
}

func (g *GuardedChannel) record(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err == nil {
		g.stats.Delivered++
		g.state = BreakerClosed
		g.failures = 0
		return
	}

	g.stats.Failed++
	g.failures++
	if g.state == BreakerHalfOpen || g.failures >= g.config.FailureThreshold {
		g.state = BreakerOpen
		g.stats.OpenedAt = g.now()
		g.failures = 0
	}
}

// State returns the current breaker state.
func (g *GuardedChannel) State() BreakerState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Stats returns delivery counters.
func (g *GuardedChannel) Stats() BreakerStats {
	g.mu.Lock()
	defer g.mu.Unlock()
	s := g.stats
	s.State = g.state
	return s
}
