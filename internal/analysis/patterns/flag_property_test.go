package patterns

import (
	"math"
	"reflect"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"flag-scanner/internal/analysis"
	"flag-scanner/internal/models"
)

// Properties of the flag scanner over random walks:
// 1. Scanning twice yields identical output
// 2. Every emitted pattern keeps T0 < T1 < T2 < T3 < T4, a positive pole and a score in [0, 100]
// 3. No two emitted patterns are within the dedup distance of each other
// 4. Latest mode equals all mode filtered by freshness
// 5. Widening the tolerance never loses a candidate

// walkGen generates a random walk of steps in [-1.5, 1.5] starting at 100.
func walkGen(minLen, maxLen int) gopter.Gen {
	return gen.IntRange(minLen, maxLen).FlatMap(func(v interface{}) gopter.Gen {
		return gen.SliceOfN(v.(int), gen.Float64Range(-1.5, 1.5))
	}, reflect.TypeOf([]float64{}))
}

func barsFromWalk(steps []float64) []models.Bar {
	bars := make([]models.Bar, len(steps))
	price := 100.0
	for i, s := range steps {
		open := price
		price = math.Max(1, price+s)
		spread := 0.2 + math.Abs(s)/2
		bars[i] = models.Bar{
			Time:   fixtureStart.Add(time.Duration(i) * time.Hour),
			Open:   open,
			High:   math.Max(open, price) + spread,
			Low:    math.Max(0.5, math.Min(open, price)-spread),
			Close:  price,
			Volume: 1000,
		}
	}
	return bars
}

// permissive lowers the pole threshold so random walks produce candidates.
var permissive = Config{MinPolePercent: map[string]float64{"1h": 0.5}}

func newProperties() *gopter.Properties {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())
	parameters.MaxShrinkCount = 0
	return gopter.NewProperties(parameters)
}

func TestProperty_ScanIdempotent(t *testing.T) {
	properties := newProperties()

	properties.Property("identical input yields identical output", prop.ForAll(
		func(steps []float64) bool {
			bars := barsFromWalk(steps)
			first := Scan(bars, "1h", WithConfig(permissive))
			second := Scan(bars, "1h", WithConfig(permissive))
			return reflect.DeepEqual(first, second)
		},
		walkGen(50, 200),
	))

	properties.TestingRun(t)
}

func TestProperty_EmittedPatternInvariants(t *testing.T) {
	properties := newProperties()

	properties.Property("emitted patterns satisfy ordering, pole and score invariants", prop.ForAll(
		func(steps []float64) bool {
			bars := barsFromWalk(steps)
			for _, p := range Scan(bars, "1h", WithConfig(permissive)) {
				a := p.Anchors()
				for i := 1; i < len(a); i++ {
					if a[i-1].Index >= a[i].Index {
						return false
					}
				}
				if p.PoleHeight <= 0 || !approxEqual(p.PoleHeight, math.Abs(p.T1.Price-p.T0.Price)) {
					return false
				}
				if p.QualityScore < 0 || p.QualityScore > 100 {
					return false
				}
				if p.Direction != analysis.PatternBullish && p.Direction != analysis.PatternBearish {
					return false
				}
				// T1 is the pole extreme: no bar between T0 and T1 reaches it
				s := sideFor(p.Direction)
				for i := p.T0.Index + 1; i < p.T1.Index; i++ {
					if s.atOrBeyond(s.peak(bars[i]), p.T1.Price) {
						return false
					}
				}
				if len(checkLevels(s, p.Prices(), TolerancePercent("1h"))) > 0 {
					return false
				}
			}
			return true
		},
		walkGen(50, 200),
	))

	properties.TestingRun(t)
}

func TestProperty_NoNearDuplicates(t *testing.T) {
	properties := newProperties()

	properties.Property("no two patterns share a formation", prop.ForAll(
		func(steps []float64) bool {
			found := Scan(barsFromWalk(steps), "1h", WithConfig(permissive))
			for i := range found {
				for j := i + 1; j < len(found); j++ {
					if abs(found[i].T1.Index-found[j].T1.Index) < 5 && abs(found[i].T4.Index-found[j].T4.Index) < 5 {
						return false
					}
					if found[i].QualityScore < found[j].QualityScore {
						return false
					}
				}
			}
			return true
		},
		walkGen(50, 200),
	))

	properties.TestingRun(t)
}

func TestProperty_LatestIsFreshSubsetOfAll(t *testing.T) {
	properties := newProperties()

	properties.Property("latest mode equals all mode filtered by freshness", prop.ForAll(
		func(steps []float64) bool {
			bars := barsFromWalk(steps)
			all := Scan(bars, "1h", WithConfig(permissive))
			latest := Scan(bars, "1h", WithConfig(permissive), WithScanType(ScanLatest))
			want := FilterFresh(all, len(bars), 3)
			if len(want) == 0 && len(latest) == 0 {
				return true
			}
			return reflect.DeepEqual(latest, want)
		},
		walkGen(50, 200),
	))

	properties.TestingRun(t)
}

func TestProperty_ShortSeriesYieldNothing(t *testing.T) {
	properties := newProperties()

	properties.Property("fewer than 50 bars yields no patterns", prop.ForAll(
		func(steps []float64) bool {
			return len(Scan(barsFromWalk(steps), "1h", WithConfig(permissive))) == 0
		},
		walkGen(0, 49),
	))

	properties.TestingRun(t)
}

func TestProperty_ToleranceMonotonic(t *testing.T) {
	properties := newProperties()

	properties.Property("a wider tolerance keeps every candidate a tighter one accepts", prop.ForAll(
		func(steps []float64, tight, extra float64) bool {
			bars := barsFromWalk(steps)
			cfg := DefaultConfig()
			highs, lows := FindExtrema(bars, cfg.Window)

			for _, s := range []side{bullSide, bearSide} {
				narrow := search(bars, highs, lows, s, searchParams{cfg: cfg, timeframe: "1h", tolerance: tight, minPole: 0.5})
				wide := search(bars, highs, lows, s, searchParams{cfg: cfg, timeframe: "1h", tolerance: tight + extra, minPole: 0.5})
				keys := make(map[[5]int]bool, len(wide))
				for _, p := range wide {
					keys[[5]int{p.T0.Index, p.T1.Index, p.T2.Index, p.T3.Index, p.T4.Index}] = true
				}
				for _, p := range narrow {
					if !keys[[5]int{p.T0.Index, p.T1.Index, p.T2.Index, p.T3.Index, p.T4.Index}] {
						return false
					}
				}
			}
			return true
		},
		walkGen(50, 150),
		gen.Float64Range(0, 0.01),
		gen.Float64Range(0, 0.05),
	))

	properties.Property("a wider tolerance never adds level violations", prop.ForAll(
		func(p0, p1, p2, p3, p4, tight, extra float64) bool {
			prices := Prices{p0, p1, p2, p3, p4}
			for _, s := range []side{bullSide, bearSide} {
				narrow := checkLevels(s, prices, tight)
				wide := checkLevels(s, prices, tight+extra)
				rules := make(map[Rule]bool, len(narrow))
				for _, v := range narrow {
					rules[v.Rule] = true
				}
				for _, v := range wide {
					if !rules[v.Rule] {
						return false
					}
				}
			}
			return true
		},
		gen.Float64Range(50, 150),
		gen.Float64Range(50, 150),
		gen.Float64Range(50, 150),
		gen.Float64Range(50, 150),
		gen.Float64Range(50, 150),
		gen.Float64Range(0, 0.01),
		gen.Float64Range(0, 0.05),
	))

	properties.TestingRun(t)
}

func TestProperty_ExtremaBoundaryExclusion(t *testing.T) {
	properties := newProperties()

	properties.Property("extrema never fall in the first or last w bars", prop.ForAll(
		func(steps []float64, w int) bool {
			bars := barsFromWalk(steps)
			highs, lows := FindExtrema(bars, w)
			for _, xs := range [][]int{highs, lows} {
				for k, i := range xs {
					if i < w || i >= len(bars)-w {
						return false
					}
					if k > 0 && xs[k-1] >= i {
						return false
					}
				}
			}
			return true
		},
		walkGen(0, 120),
		gen.IntRange(1, 6),
	))

	properties.TestingRun(t)
}
