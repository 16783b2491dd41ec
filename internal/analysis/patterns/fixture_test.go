package patterns

import (
	"math"
	"time"

	"flag-scanner/internal/models"
	"flag-scanner/internal/testutil"
)

var fixtureStart = testutil.Start

func bullFlagBars() []models.Bar { return testutil.BullFlagBars() }

func mirrorBars(in []models.Bar) []models.Bar { return testutil.MirrorBars(in) }

func anchorsAt(idx [5]int, prices [5]float64) [5]AnchorPoint {
	var a [5]AnchorPoint
	for i := range a {
		a[i] = AnchorPoint{Index: idx[i], Price: prices[i], Time: fixtureStart.Add(time.Duration(idx[i]) * time.Hour)}
	}
	return a
}

func approxEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func hasRule(vs []Violation, r Rule) bool {
	for _, v := range vs {
		if v.Rule == r {
			return true
		}
	}
	return false
}
