package patterns

import (
	"flag-scanner/internal/analysis"
	"flag-scanner/internal/models"
)

// side carries everything that differs between a bull flag and a bear flag.
// A bull flag's pole rises: T1 and T3 sit on bar highs, T0, T2 and T4 on bar lows.
// A bear flag is the mirror image. sign is +1 for bull and -1 for bear, so
// sign*(a-b) > 0 reads as "a is further in the pole direction than b".
type side struct {
	dir    analysis.PatternDirection
	sign   float64
	peak   func(models.Bar) float64 // price used for T1 and T3
	trough func(models.Bar) float64 // price used for T0, T2 and T4
}

var (
	bullSide = side{
		dir:    analysis.PatternBullish,
		sign:   1,
		peak:   func(b models.Bar) float64 { return b.High },
		trough: func(b models.Bar) float64 { return b.Low },
	}
	bearSide = side{
		dir:    analysis.PatternBearish,
		sign:   -1,
		peak:   func(b models.Bar) float64 { return b.Low },
		trough: func(b models.Bar) float64 { return b.High },
	}
)

func sideFor(dir analysis.PatternDirection) side {
	if dir == analysis.PatternBearish {
		return bearSide
	}
	return bullSide
}

func (s side) bullish() bool { return s.sign > 0 }

// peaks picks the extremum list T1 and T3 are drawn from.
func (s side) peaks(highs, lows []int) []int {
	if s.bullish() {
		return highs
	}
	return lows
}

// troughs picks the extremum list T4 is drawn from.
func (s side) troughs(highs, lows []int) []int {
	if s.bullish() {
		return lows
	}
	return highs
}

// beyond reports whether a lies strictly further in the pole direction than b.
func (s side) beyond(a, b float64) bool { return s.sign*(a-b) > 0 }

// atOrBeyond is beyond with equality allowed.
func (s side) atOrBeyond(a, b float64) bool { return s.sign*(a-b) >= 0 }

// deepestTrough returns the index in [from, to] whose trough price lies furthest
// against the pole direction. The earliest bar wins ties. from must be <= to.
func (s side) deepestTrough(bars []models.Bar, from, to int) int {
	best := from
	for i := from + 1; i <= to; i++ {
		if s.beyond(s.trough(bars[best]), s.trough(bars[i])) {
			best = i
		}
	}
	return best
}

// furthestPeak returns the index in [from, to] whose peak price lies furthest
// in the pole direction. from must be <= to.
func (s side) furthestPeak(bars []models.Bar, from, to int) int {
	best := from
	for i := from + 1; i <= to; i++ {
		if s.beyond(s.peak(bars[i]), s.peak(bars[best])) {
			best = i
		}
	}
	return best
}

// interval orders a bound on the retracement side and a bound on the pole side
// into a (lo, hi) price interval.
func (s side) interval(retraceSide, poleSide float64) (lo, hi float64) {
	if s.bullish() {
		return retraceSide, poleSide
	}
	return poleSide, retraceSide
}

func peakAnchor(s side, bars []models.Bar, i int) AnchorPoint {
	return AnchorPoint{Index: i, Price: s.peak(bars[i]), Time: bars[i].Time}
}

func troughAnchor(s side, bars []models.Bar, i int) AnchorPoint {
	return AnchorPoint{Index: i, Price: s.trough(bars[i]), Time: bars[i].Time}
}
