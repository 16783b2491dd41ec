package patterns

import (
	"fmt"
	"strings"

	"flag-scanner/internal/analysis"
	"flag-scanner/internal/models"
)

// ScanType selects between historical and live scanning.
type ScanType string

const (
	// ScanAll returns every surviving historical pattern.
	ScanAll ScanType = "all"
	// ScanLatest keeps only patterns whose T4 is within FreshnessBars of the last bar.
	ScanLatest ScanType = "latest"
)

// ParseScanType parses "all" or "latest". The empty string means ScanAll.
func ParseScanType(s string) (ScanType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", string(ScanAll):
		return ScanAll, nil
	case string(ScanLatest):
		return ScanLatest, nil
	}
	return "", fmt.Errorf("unknown scan type %q (want all or latest)", s)
}

type scanOptions struct {
	cfg        Config
	scanType   ScanType
	minPole    float64
	hasMinPole bool
	directions []analysis.PatternDirection
}

// Option customises a Scan call.
type Option func(*scanOptions)

// WithConfig replaces the search limits. Zero fields keep their defaults.
func WithConfig(cfg Config) Option {
	return func(o *scanOptions) { o.cfg = cfg.withDefaults() }
}

// WithWindow sets the extremum half-window.
func WithWindow(w int) Option {
	return func(o *scanOptions) {
		if w > 0 {
			o.cfg.Window = w
		}
	}
}

// WithScanType selects all or latest mode.
func WithScanType(t ScanType) Option {
	return func(o *scanOptions) { o.scanType = t }
}

// WithMinPolePercent overrides the timeframe's minimum pole height.
func WithMinPolePercent(pct float64) Option {
	return func(o *scanOptions) {
		o.minPole = pct
		o.hasMinPole = true
	}
}

// WithDirections limits the search to the given directions.
func WithDirections(dirs ...analysis.PatternDirection) Option {
	return func(o *scanOptions) { o.directions = dirs }
}

// Scan finds flag patterns in bars, which must be ordered by ascending time.
// Series shorter than Config.MinBars yield no patterns. Both directions are searched
// unless WithDirections says otherwise, and the merged candidates are deduplicated.
// The result is ordered by descending quality score and is identical for identical input.
func Scan(bars []models.Bar, timeframe string, opts ...Option) []FlagPattern {
	o := scanOptions{
		cfg:        DefaultConfig(),
		scanType:   ScanAll,
		directions: []analysis.PatternDirection{analysis.PatternBullish, analysis.PatternBearish},
	}
	for _, opt := range opts {
		opt(&o)
	}
	cfg := o.cfg

	if len(bars) < cfg.MinBars {
		return nil
	}

	p := newSearchParams(cfg, timeframe)
	if o.hasMinPole {
		p.minPole = o.minPole
	}

	highs, lows := FindExtrema(bars, cfg.Window)
	var candidates []FlagPattern
	seen := make(map[analysis.PatternDirection]bool, 2)
	for _, dir := range o.directions {
		if seen[dir] {
			continue
		}
		seen[dir] = true
		candidates = append(candidates, search(bars, highs, lows, sideFor(dir), p)...)
	}

	return finalize(candidates, len(bars), cfg, o.scanType)
}

// finalize deduplicates candidates and, in latest mode, then drops stale survivors.
// A stale pattern can therefore shadow a fresh near-duplicate with a lower score.
func finalize(candidates []FlagPattern, n int, cfg Config, scanType ScanType) []FlagPattern {
	found := Deduplicate(candidates, cfg.DedupDistance)
	if scanType == ScanLatest {
		found = FilterFresh(found, n, cfg.FreshnessBars)
	}
	return found
}

// FilterFresh drops patterns whose T4 lags the last of n bars by more than maxLag bars.
func FilterFresh(in []FlagPattern, n, maxLag int) []FlagPattern {
	var out []FlagPattern
	for _, p := range in {
		if (n-1)-p.T4.Index <= maxLag {
			out = append(out, p)
		}
	}
	return out
}

// FlagDetector exposes the flag engine through the generic detector interface.
type FlagDetector struct {
	timeframe string
	opts      []Option
}

// NewFlagDetector creates a detector for bars of the given timeframe.
func NewFlagDetector(timeframe string, opts ...Option) *FlagDetector {
	return &FlagDetector{timeframe: timeframe, opts: opts}
}

func (d *FlagDetector) Name() string {
	return "FlagDetector"
}

// Detect runs Scan and summarises each flag.
func (d *FlagDetector) Detect(bars []models.Bar) ([]analysis.Pattern, error) {
	flags := Scan(bars, d.timeframe, d.opts...)
	if len(flags) == 0 {
		return nil, nil
	}
	out := make([]analysis.Pattern, 0, len(flags))
	for _, f := range flags {
		out = append(out, Summarize(f, bars))
	}
	return out, nil
}

// Summarize converts a flag into a generic pattern summary. The pattern counts as
// complete once the last close has broken the extended T1-T3 line.
func Summarize(f FlagPattern, bars []models.Bar) analysis.Pattern {
	name := "Bull Flag"
	if f.Direction == analysis.PatternBearish {
		name = "Bear Flag"
	}
	return analysis.Pattern{
		Name:        name,
		Type:        analysis.PatternTypeChart,
		Direction:   f.Direction,
		StartIndex:  f.T0.Index,
		EndIndex:    f.T4.Index,
		Strength:    float64(f.QualityScore) / 100,
		TargetPrice: f.TargetPrice(),
		Completion:  completion(f, bars),
	}
}

func completion(f FlagPattern, bars []models.Bar) float64 {
	if len(bars) == 0 || f.T3.Index == f.T1.Index {
		return 0
	}
	last := len(bars) - 1
	breakout := lineAt(f.T1, f.T3, last)
	if sideFor(f.Direction).beyond(bars[last].Close, breakout) {
		return 1.0
	}
	return 0.8
}
