package patterns

import (
	"sort"

	"flag-scanner/internal/models"
)

// searchParams is the resolved, per-call input of a candidate search.
type searchParams struct {
	cfg       Config
	timeframe string
	tolerance float64
	minPole   float64 // percent of the T0 price
}

func newSearchParams(cfg Config, timeframe string) searchParams {
	return searchParams{
		cfg:       cfg,
		timeframe: timeframe,
		tolerance: cfg.TolerancePercentFor(timeframe),
		minPole:   cfg.MinPolePercentFor(timeframe),
	}
}

// pole is a T0 -> T1 impulse that passed the pole rules.
type pole struct {
	t0, t1 AnchorPoint
	height float64
}

// search enumerates T0..T4 candidates for one direction and returns every candidate
// that passes the level, slope and channel rules, scored but not deduplicated.
func search(bars []models.Bar, highs, lows []int, s side, p searchParams) []FlagPattern {
	peaks := s.peaks(highs, lows)
	troughs := s.troughs(highs, lows)
	cfg := p.cfg

	var out []FlagPattern
	for n, i1 := range peaks {
		pl, ok := findPole(bars, s, i1, p)
		if !ok {
			continue
		}
		limit := pl.t1.Price * (1 + s.sign*cfg.T3Overshoot)

		for _, i3 := range peaks[n+1:] {
			if i3-i1 > cfg.MaxT3Span {
				break
			}
			if i3-i1 < 2 {
				continue
			}
			t3 := peakAnchor(s, bars, i3)
			if s.beyond(t3.Price, limit) {
				continue
			}
			t2 := troughAnchor(s, bars, s.deepestTrough(bars, i1+1, i3-1))

			for k := sort.SearchInts(troughs, i3+1); k < len(troughs); k++ {
				i4 := troughs[k]
				if i4-i3 > cfg.MaxT4Span {
					break
				}
				anchors := [5]AnchorPoint{pl.t0, pl.t1, t2, t3, troughAnchor(s, bars, i4)}
				if !accept(bars, s, anchors, p) {
					continue
				}
				out = append(out, FlagPattern{
					Direction:    s.dir,
					Timeframe:    p.timeframe,
					T0:           anchors[0],
					T1:           anchors[1],
					T2:           anchors[2],
					T3:           anchors[3],
					T4:           anchors[4],
					PoleHeight:   pl.height,
					QualityScore: score(s, anchors),
				})
			}
		}
	}
	return out
}

// findPole locates T0 for a T1 candidate and applies the pole rules:
// T1 must be the unique pole extreme, the pole must be tall enough, and the market
// must not already have traded near the T1 level shortly before T0.
func findPole(bars []models.Bar, s side, i1 int, p searchParams) (pole, bool) {
	cfg := p.cfg
	if i1 < 1 {
		return pole{}, false
	}
	from := i1 - cfg.PoleLookback
	if from < 0 {
		from = 0
	}
	i0 := s.deepestTrough(bars, from, i1-1)
	t0 := troughAnchor(s, bars, i0)
	t1 := peakAnchor(s, bars, i1)
	if t0.Price <= 0 {
		return pole{}, false
	}

	for i := i0 + 1; i < i1; i++ {
		if s.atOrBeyond(s.peak(bars[i]), t1.Price) {
			return pole{}, false
		}
	}

	height := s.sign * (t1.Price - t0.Price)
	if height <= 0 {
		return pole{}, false
	}
	if height/t0.Price*100 < p.minPole {
		return pole{}, false
	}

	lookback := i1 - i0
	if lookback < cfg.MinPrePoleBars {
		lookback = cfg.MinPrePoleBars
	}
	if i0 > 0 {
		start := i0 - lookback
		if start < 0 {
			start = 0
		}
		j := s.furthestPeak(bars, start, i0-1)
		if s.atOrBeyond(s.peak(bars[j]), t1.Price-s.sign*cfg.PrePoleRetrace*height) {
			return pole{}, false
		}
	}

	return pole{t0: t0, t1: t1, height: height}, true
}

// accept reports whether a fully anchored candidate passes every rule.
func accept(bars []models.Bar, s side, a [5]AnchorPoint, p searchParams) bool {
	prices := Prices{a[0].Price, a[1].Price, a[2].Price, a[3].Price, a[4].Price}
	if len(checkLevels(s, prices, p.tolerance)) > 0 {
		return false
	}
	if len(checkSlopes(s, a)) > 0 {
		return false
	}
	return len(checkChannel(s, bars, a, p.cfg.ChannelBuffer)) == 0
}
