// Package notify publishes detected flag patterns as signals to downstream consumers.
package notify

import (
	"context"
	"sync"
	"time"

	"flag-scanner/internal/analysis/patterns"
	apperrors "flag-scanner/internal/errors"
	"flag-scanner/internal/logging"
)

// Signal is one detected pattern handed to consumers.
type Signal struct {
	ID          string               `json:"id"`
	RunID       string               `json:"run_id"`
	Symbol      string               `json:"symbol"`
	Pattern     patterns.FlagPattern `json:"pattern"`
	TargetPrice float64              `json:"target_price"`
	EmittedAt   time.Time            `json:"emitted_at"`
}

// NewSignal builds a signal for a pattern found on symbol.
func NewSignal(id, runID, symbol string, p patterns.FlagPattern, now time.Time) Signal {
	return Signal{
		ID:          id,
		RunID:       runID,
		Symbol:      symbol,
		Pattern:     p,
		TargetPrice: p.TargetPrice(),
		EmittedAt:   now.UTC(),
	}
}

// Key identifies the formation behind a signal across runs.
func (s Signal) Key() string {
	return s.Symbol + "|" + s.Pattern.Key()
}

// Channel defines one signal delivery channel.
type Channel interface {
	Name() string
	Publish(ctx context.Context, s Signal) error
	IsEnabled() bool
}

// MultiNotifier sends signals to multiple channels.
type MultiNotifier struct {
	channels   []Channel
	minQuality int
	mu         sync.RWMutex
}

// NewMultiNotifier creates a notifier that drops signals below minQuality.
func NewMultiNotifier(minQuality int, channels ...Channel) *MultiNotifier {
	return &MultiNotifier{channels: channels, minQuality: minQuality}
}

// AddChannel adds a delivery channel.
func (mn *MultiNotifier) AddChannel(ch Channel) {
	mn.mu.Lock()
	defer mn.mu.Unlock()
	mn.channels = append(mn.channels, ch)
}

// Channels returns the names of the enabled channels.
func (mn *MultiNotifier) Channels() []string {
	mn.mu.RLock()
	defer mn.mu.RUnlock()
	var names []string
	for _, ch := range mn.channels {
		if ch.IsEnabled() {
			names = append(names, ch.Name())
		}
	}
	return names
}

func (mn *MultiNotifier) shouldSend(s Signal) bool {
	return s.Pattern.QualityScore >= mn.minQuality
}

// Publish sends a signal to every enabled channel. One failing channel does not
// stop the others; failures are joined into one error matching ErrPublishFailed.
func (mn *MultiNotifier) Publish(ctx context.Context, s Signal) error {
	_, err := mn.Deliver(ctx, s, nil)
	return err
}

// Deliver sends a signal to every enabled channel not named in skip and returns
// the names of the channels that accepted it.
func (mn *MultiNotifier) Deliver(ctx context.Context, s Signal, skip []string) ([]string, error) {
	if !mn.shouldSend(s) {
		return nil, nil
	}
	if s.EmittedAt.IsZero() {
		s.EmittedAt = time.Now().UTC()
	}

	mn.mu.RLock()
	channels := mn.channels
	mn.mu.RUnlock()

	done := make(map[string]bool, len(skip))
	for _, name := range skip {
		done[name] = true
	}

	logger := logging.FromContext(ctx)
	var sent []string
	var errs []error
	for _, ch := range channels {
		if !ch.IsEnabled() || done[ch.Name()] {
			continue
		}
		err := ch.Publish(ctx, s)
		logging.LogSignal(logger, ch.Name(), s.Key(), err)
		if err != nil {
			errs = append(errs, apperrors.NewPublishError(ch.Name(), s.Key(), err))
			continue
		}
		sent = append(sent, ch.Name())
	}
	return sent, apperrors.Join(errs...)
}
