// Package testutil builds deterministic bar series for tests.
package testutil

import (
	"time"

	"flag-scanner/internal/models"
)

// Start is the time of the first fixture bar.
var Start = time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)

// BullFlagBars builds 60 hourly bars containing one clean bull flag:
// T0=20 (low 98), T1=30 (high 120), T2=36 (low 112), T3=42 (high 118), T4=48 (low 110).
func BullFlagBars() []models.Bar {
	type knot struct {
		idx   int
		price float64
	}
	flag := []knot{{30, 119.5}, {36, 112.5}, {42, 117.5}, {48, 110.5}}

	bars := make([]models.Bar, 60)
	for i := range bars {
		var lo, hi float64
		switch {
		case i < 20:
			lo, hi = 99, 100.5
		case i == 20:
			lo, hi = 98, 99.5
		case i < 30:
			lo = 98 + 2.1*float64(i-20)
			hi = lo + 1
		case i <= 48:
			var c float64
			for k := 0; k+1 < len(flag); k++ {
				a, b := flag[k], flag[k+1]
				if i >= a.idx && i <= b.idx {
					c = a.price + (b.price-a.price)*float64(i-a.idx)/float64(b.idx-a.idx)
					break
				}
			}
			lo, hi = c-0.5, c+0.5
		default:
			c := 110.5 + 1.2*float64(i-48)
			lo, hi = c-0.5, c+0.5
		}
		mid := (lo + hi) / 2
		bars[i] = models.Bar{
			Time:   Start.Add(time.Duration(i) * time.Hour),
			Open:   mid - 0.1,
			High:   hi,
			Low:    lo,
			Close:  mid + 0.1,
			Volume: 1000 + int64(i),
		}
	}
	return bars
}

// MirrorBars reflects prices around 125 so a bull flag becomes a bear flag.
func MirrorBars(in []models.Bar) []models.Bar {
	out := make([]models.Bar, len(in))
	for i, b := range in {
		out[i] = models.Bar{
			Time:   b.Time,
			Open:   250 - b.Open,
			High:   250 - b.Low,
			Low:    250 - b.High,
			Close:  250 - b.Close,
			Volume: b.Volume,
		}
	}
	return out
}

// FlatBars builds n hourly bars that never form a pattern.
func FlatBars(n int) []models.Bar {
	bars := make([]models.Bar, n)
	for i := range bars {
		bars[i] = models.Bar{
			Time:   Start.Add(time.Duration(i) * time.Hour),
			Open:   100,
			High:   100.2,
			Low:    99.8,
			Close:  100,
			Volume: 500,
		}
	}
	return bars
}
