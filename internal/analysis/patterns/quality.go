package patterns

import (
	"math"

	"flag-scanner/internal/analysis"
)

const degenerateScore = 30

// Score rates a validated flag from 0 to 100:
// up to 50 for parallel channel lines, up to 30 for lines sloping against the pole,
// and 10 each for T3 short of T1 and T4 continuing the correction past T3.
// The score only ranks patterns; it never decides acceptance.
func Score(dir analysis.PatternDirection, anchors [5]AnchorPoint) int {
	return score(sideFor(dir), anchors)
}

func score(s side, a [5]AnchorPoint) int {
	t1, t2, t3, t4 := a[1], a[2], a[3], a[4]
	if t1.Index == t3.Index || t2.Index == t4.Index {
		return degenerateScore
	}
	s13 := slope(t1, t3)
	s24 := slope(t2, t4)

	parallel := 50.0
	if avg := (math.Abs(s13) + math.Abs(s24)) / 2; avg > 1e-9 {
		parallel = 50 * math.Max(0, 1-math.Abs(s13-s24)/avg)
	}

	// against the pole means down for a bull flag and up for a bear flag
	var direction float64
	switch against := btoi(s.sign*s13 < 0) + btoi(s.sign*s24 < 0); against {
	case 2:
		direction = 30
	case 1:
		direction = 15
	}

	var points float64
	if s.beyond(t1.Price, t3.Price) {
		points += 10
	}
	if s.beyond(t3.Price, t4.Price) {
		points += 10
	}

	total := int(math.Round(parallel + direction + points))
	if total < 0 {
		return 0
	}
	if total > 100 {
		return 100
	}
	return total
}

func btoi(b bool) int {
	if b {
		return 1
	}
	return 0
}
