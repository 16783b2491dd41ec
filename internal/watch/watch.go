// Package watch runs scheduled latest-mode scans over a watchlist and publishes new flags.
package watch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"flag-scanner/internal/analysis/screener"
	apperrors "flag-scanner/internal/errors"
	"flag-scanner/internal/logging"
	"flag-scanner/internal/notify"
	"flag-scanner/internal/store"
)

// Options configures a watcher.
type Options struct {
	Spec       string // cron spec, standard five fields or a descriptor such as "@every 15m"
	Watchlist  string
	Timeframes []string
}

// Report summarises one watch run.
type Report struct {
	RunID     string
	Started   time.Time
	Duration  time.Duration
	Jobs      int
	Failed    int
	Found     int
	New       int
	Published int
}

// Watcher owns the cron schedule and the scan-persist-publish cycle.
type Watcher struct {
	cron      *cron.Cron
	store     store.DataStore
	screener  *screener.Screener
	provider  screener.BarProvider
	notifier  *notify.MultiNotifier
	freshness *store.FreshnessTracker
	opts      Options
	logger    zerolog.Logger

	mu  sync.Mutex
	ctx context.Context
	now func() time.Time
}

// New creates a watcher. scr should be configured for latest-mode scans.
func New(ds store.DataStore, scr *screener.Screener, provider screener.BarProvider, notifier *notify.MultiNotifier, opts Options, logger zerolog.Logger) *Watcher {
	if opts.Watchlist == "" {
		opts.Watchlist = store.DefaultWatchlist
	}
	if len(opts.Timeframes) == 0 {
		opts.Timeframes = []string{"1h"}
	}
	logger = logging.WithOperation(logger, "watch")
	return &Watcher{
		cron: cron.New(cron.WithChain(
			cron.Recover(cron.PrintfLogger(&logger)),
			cron.SkipIfStillRunning(cron.PrintfLogger(&logger)),
		)),
		store:     ds,
		screener:  scr,
		provider:  provider,
		notifier:  notifier,
		freshness: store.NewFreshnessTracker(ds, nil),
		opts:      opts,
		logger:    logger,
		ctx:       context.Background(),
		now:       time.Now,
	}
}

// Register schedules the scan job.
func (w *Watcher) Register() error {
	if _, err := w.cron.AddFunc(w.opts.Spec, w.tick); err != nil {
		return apperrors.Wrapf(apperrors.ErrConfigInvalid, "register watch job %q: %v", w.opts.Spec, err)
	}
	return nil
}

// Start starts the scheduler. Runs use ctx until Stop.
func (w *Watcher) Start(ctx context.Context) {
	w.mu.Lock()
	w.ctx = ctx
	w.mu.Unlock()
	w.cron.Start()
	w.logger.Info().Str("spec", w.opts.Spec).Str("watchlist", w.opts.Watchlist).Strs("timeframes", w.opts.Timeframes).Msg("Watcher started")
}

// Stop stops the scheduler and waits for a running scan to finish.
func (w *Watcher) Stop() {
	<-w.cron.Stop().Done()
	w.logger.Info().Msg("Watcher stopped")
}

// Next returns the next scheduled run time, or zero if nothing is scheduled.
func (w *Watcher) Next() time.Time {
	entries := w.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

func (w *Watcher) tick() {
	w.mu.Lock()
	ctx := w.ctx
	w.mu.Unlock()
	if _, err := w.RunOnce(ctx); err != nil {
		w.logger.Error().Err(err).Msg("Watch run failed")
	}
}

// RunOnce scans the watchlist, stores new patterns and publishes every stored
// pattern not yet delivered. Patterns already seen in earlier runs are not re-sent.
func (w *Watcher) RunOnce(ctx context.Context) (*Report, error) {
	report := &Report{RunID: uuid.NewString(), Started: w.now()}
	logger := logging.WithRunID(w.logger, report.RunID)
	ctx = logging.WithLogger(ctx, logger)

	symbols, err := w.store.GetWatchlist(ctx, w.opts.Watchlist)
	if err != nil {
		return nil, err
	}
	if len(symbols) == 0 {
		return report, apperrors.Wrapf(apperrors.ErrDataNotFound, "watchlist %s is empty", w.opts.Watchlist)
	}

	jobs := screener.Jobs(symbols, w.opts.Timeframes)
	report.Jobs = len(jobs)

	results, err := w.screener.Scan(ctx, jobs, nil, w.provider)
	if err != nil {
		return nil, err
	}

	for _, res := range results {
		if res.Error != nil {
			report.Failed++
			logger.Warn().Err(res.Error).Str("symbol", res.Symbol).Str("timeframe", res.Timeframe).Msg("Scan failed")
			continue
		}
		report.Found += len(res.Patterns)
		inserted, err := w.store.SavePatterns(ctx, res.Symbol, report.RunID, res.Patterns)
		if err != nil {
			return nil, fmt.Errorf("failed to save patterns for %s: %w", res.Symbol, err)
		}
		report.New += len(inserted)
		for _, rec := range inserted {
			logging.LogPattern(logger, rec.Symbol, rec.Timeframe, rec.Direction, rec.T1Index, rec.T4Index, rec.QualityScore)
		}
	}

	published, err := w.publishPending(ctx, report.RunID)
	report.Published = published
	if err != nil {
		return report, err
	}

	if err := w.freshness.MarkSynced(store.SyncTypeScan); err != nil {
		logger.Warn().Err(err).Msg("Failed to record scan time")
	}

	report.Duration = time.Since(report.Started)
	logger.Info().
		Int("jobs", report.Jobs).
		Int("failed", report.Failed).
		Int("found", report.Found).
		Int("new", report.New).
		Int("published", report.Published).
		Dur("duration", report.Duration).
		Msg("Watch run completed")
	return report, nil
}

// publishPending delivers stored patterns that have not been published yet.
// Delivery is tracked per channel: a channel that failed is retried on the next
// run, and channels that already accepted the pattern are skipped.
func (w *Watcher) publishPending(ctx context.Context, runID string) (int, error) {
	if w.notifier == nil {
		return 0, nil
	}
	pending, err := w.store.GetPatterns(ctx, store.PatternFilter{Unpublished: true})
	if err != nil {
		return 0, err
	}

	var delivered []string
	var errs []error
	for _, rec := range pending {
		done, err := w.store.GetDeliveries(ctx, rec.ID)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		sig := notify.NewSignal(rec.ID, runID, rec.Symbol, rec.Pattern(), w.now())
		sent, perr := w.notifier.Deliver(ctx, sig, done)
		for _, name := range sent {
			if err := w.store.MarkDelivered(ctx, rec.ID, name); err != nil {
				errs = append(errs, err)
			}
		}
		if perr != nil {
			errs = append(errs, perr)
			continue
		}
		delivered = append(delivered, rec.ID)
	}

	if err := w.store.MarkPublished(ctx, delivered); err != nil {
		errs = append(errs, err)
	}
	return len(delivered), apperrors.Join(errs...)
}
