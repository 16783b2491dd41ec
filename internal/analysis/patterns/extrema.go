package patterns

import (
	"flag-scanner/internal/models"
)

// FindExtrema returns the ascending indices of local highs and local lows.
//
// Index i is a high when bars[i].High equals the maximum High over [i-w, i+w], and a low
// when bars[i].Low equals the minimum Low over the same window. The first and last w bars
// are never extrema. A bar may be both. Flat tops yield one high per tied bar.
func FindExtrema(bars []models.Bar, w int) (highs, lows []int) {
	n := len(bars)
	if w <= 0 || n < 2*w+1 {
		return nil, nil
	}

	for i := w; i < n-w; i++ {
		isHigh, isLow := true, true
		for j := i - w; j <= i+w; j++ {
			if bars[j].High > bars[i].High {
				isHigh = false
			}
			if bars[j].Low < bars[i].Low {
				isLow = false
			}
			if !isHigh && !isLow {
				break
			}
		}
		if isHigh {
			highs = append(highs, i)
		}
		if isLow {
			lows = append(lows, i)
		}
	}

	return highs, lows
}

// Extrema merges FindExtrema's output into a single ascending list. A bar that is both a
// high and a low appears twice, high first.
func Extrema(bars []models.Bar, w int) []Extremum {
	highs, lows := FindExtrema(bars, w)
	out := make([]Extremum, 0, len(highs)+len(lows))
	h, l := 0, 0
	for h < len(highs) || l < len(lows) {
		if l >= len(lows) || (h < len(highs) && highs[h] <= lows[l]) {
			out = append(out, Extremum{Index: highs[h], Kind: High})
			h++
			continue
		}
		out = append(out, Extremum{Index: lows[l], Kind: Low})
		l++
	}
	return out
}
