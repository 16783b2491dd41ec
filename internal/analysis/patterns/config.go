package patterns

import (
	"strings"

	"flag-scanner/internal/models"
)

// Tolerance and pole thresholds used when a timeframe has no explicit entry.
const (
	DefaultTolerancePercent = 0.003
	DefaultMinPolePercent   = 3.0
)

// Config holds the search limits. It is passed by value through the whole call chain.
// Zero fields fall back to DefaultConfig values.
type Config struct {
	Window         int     // extremum half-window
	MinBars        int     // shortest series that is scanned at all
	MaxT3Span      int     // bars from T1 to T3
	MaxT4Span      int     // bars from T3 to T4
	PoleLookback   int     // bars before T1 searched for T0
	MinPrePoleBars int     // floor of the pre-pole lookback
	PrePoleRetrace float64 // fraction of the pole the pre-pole extreme must stay away from T1
	T3Overshoot    float64 // early reject when T3 overshoots T1 by this fraction
	FreshnessBars  int     // latest mode: max lag of T4 behind the last bar
	DedupDistance  int     // T1 and T4 index distance below which two patterns are the same
	ChannelBuffer  float64 // relative slack when testing bars against channel lines

	// Per-timeframe overrides of the built-in tables.
	Tolerance      map[string]float64
	MinPolePercent map[string]float64
}

// DefaultConfig returns the stock search limits.
func DefaultConfig() Config {
	return Config{
		Window:         3,
		MinBars:        50,
		MaxT3Span:      60,
		MaxT4Span:      30,
		PoleLookback:   50,
		MinPrePoleBars: 5,
		PrePoleRetrace: 0.3,
		T3Overshoot:    0.05,
		FreshnessBars:  3,
		DedupDistance:  5,
		ChannelBuffer:  0.0005,
	}
}

// withDefaults fills zero valued fields from DefaultConfig.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Window <= 0 {
		c.Window = d.Window
	}
	if c.MinBars <= 0 {
		c.MinBars = d.MinBars
	}
	if c.MaxT3Span <= 0 {
		c.MaxT3Span = d.MaxT3Span
	}
	if c.MaxT4Span <= 0 {
		c.MaxT4Span = d.MaxT4Span
	}
	if c.PoleLookback <= 0 {
		c.PoleLookback = d.PoleLookback
	}
	if c.MinPrePoleBars <= 0 {
		c.MinPrePoleBars = d.MinPrePoleBars
	}
	if c.PrePoleRetrace <= 0 {
		c.PrePoleRetrace = d.PrePoleRetrace
	}
	if c.T3Overshoot <= 0 {
		c.T3Overshoot = d.T3Overshoot
	}
	if c.FreshnessBars <= 0 {
		c.FreshnessBars = d.FreshnessBars
	}
	if c.DedupDistance <= 0 {
		c.DedupDistance = d.DedupDistance
	}
	if c.ChannelBuffer <= 0 {
		c.ChannelBuffer = d.ChannelBuffer
	}
	return c
}

// TolerancePercentFor returns the override for tf if present, else TolerancePercent(tf).
func (c Config) TolerancePercentFor(tf string) float64 {
	if v, ok := c.Tolerance[tf]; ok && v >= 0 {
		return v
	}
	return TolerancePercent(tf)
}

// MinPolePercentFor returns the override for tf if present, else MinPolePercent(tf).
func (c Config) MinPolePercentFor(tf string) float64 {
	if v, ok := c.MinPolePercent[tf]; ok && v >= 0 {
		return v
	}
	return MinPolePercent(tf)
}

// TolerancePercent is the relative slack applied to every price bound for a timeframe.
// Unlisted labels fall back on their unit suffix, then on DefaultTolerancePercent.
func TolerancePercent(tf string) float64 {
	switch tf {
	case models.Timeframe5m:
		return 0.001
	case models.Timeframe1h:
		return 0.003
	case models.Timeframe1d, models.Timeframe1w:
		return 0.005
	}
	switch {
	case strings.HasSuffix(tf, "m"):
		return 0.001
	case strings.HasSuffix(tf, "h"):
		return 0.003
	case strings.HasSuffix(tf, "d"), strings.HasSuffix(tf, "w"):
		return 0.005
	}
	return DefaultTolerancePercent
}

// MinPolePercent is the smallest pole, as a percentage of the T0 price, for a timeframe.
func MinPolePercent(tf string) float64 {
	switch tf {
	case models.Timeframe5m:
		return 1.0
	case models.Timeframe1h:
		return 3.0
	case models.Timeframe1d:
		return 5.0
	}
	return DefaultMinPolePercent
}
