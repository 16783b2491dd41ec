package patterns

import (
	"math"

	"flag-scanner/internal/analysis"
)

// Fibonacci levels used by the level rules.
const (
	poleRetraceLimit = 0.62 // T2 and T4 may not retrace more than this share of the pole
	halfRetrace      = 0.5
	maxAdverseSlope  = 0.05 // both lines sloping with the pole steeper than this reject the channel
)

// CheckLevels evaluates the Fibonacci retracement rules for T2, T3 and T4 using the
// tolerance table for timeframe.
func CheckLevels(dir analysis.PatternDirection, p Prices, timeframe string) []Violation {
	return checkLevels(sideFor(dir), p, TolerancePercent(timeframe))
}

// CheckSlopes evaluates the channel-line rules: the T1-T3 and T2-T4 lines may not
// diverge, may not both point in the pole direction, and may not cross between T1 and T4.
func CheckSlopes(dir analysis.PatternDirection, anchors [5]AnchorPoint) []Violation {
	return checkSlopes(sideFor(dir), anchors)
}

// ValidateGeometry runs the level rules and the slope rules.
func ValidateGeometry(dir analysis.PatternDirection, anchors [5]AnchorPoint, timeframe string) []Violation {
	s := sideFor(dir)
	prices := Prices{anchors[0].Price, anchors[1].Price, anchors[2].Price, anchors[3].Price, anchors[4].Price}
	v := checkLevels(s, prices, TolerancePercent(timeframe))
	return append(v, checkSlopes(s, anchors)...)
}

// checkLevels works for both directions because every bound is the same expression;
// only which side of the price axis it limits flips.
//
//	retrace = T1 - 0.62*(T1-T0)  limits T2 and T4 on the retracement side
//	fib50   = T2 + 0.5*(T1-T2)   T3 must come back at least this far
//	mid34   = T3 - 0.5*(T3-T2)   T4 must correct at least this far from T3
//	T1                           T3 may not exceed the pole extreme
func checkLevels(s side, p Prices, tol float64) []Violation {
	t0, t1, t2, t3, t4 := p[0], p[1], p[2], p[3], p[4]
	var out []Violation

	retrace := t1 - poleRetraceLimit*(t1-t0)
	if s.bullish() {
		if below(t2, retrace, tol) {
			out = append(out, violationf(RuleT2Lower, "T2 %.4f below 62%% retracement %.4f", t2, retrace))
		}
	} else if above(t2, retrace, tol) {
		out = append(out, violationf(RuleT2Upper, "T2 %.4f above 62%% retracement %.4f", t2, retrace))
	}

	fib50 := t2 + halfRetrace*(t1-t2)
	lo, hi := s.interval(fib50, t1)
	if below(t3, lo, tol) {
		out = append(out, violationf(RuleT3Lower, "T3 %.4f below %.4f", t3, lo))
	}
	if above(t3, hi, tol) {
		out = append(out, violationf(RuleT3Upper, "T3 %.4f above %.4f", t3, hi))
	}

	mid34 := t3 - halfRetrace*(t3-t2)
	lo, hi = s.interval(retrace, mid34)
	if below(t4, lo, tol) {
		out = append(out, violationf(RuleT4Lower, "T4 %.4f below %.4f", t4, lo))
	}
	if above(t4, hi, tol) {
		out = append(out, violationf(RuleT4Upper, "T4 %.4f above %.4f", t4, hi))
	}

	return out
}

func below(x, bound, tol float64) bool { return x < bound-math.Abs(bound)*tol }

func above(x, bound, tol float64) bool { return x > bound+math.Abs(bound)*tol }

func checkSlopes(s side, a [5]AnchorPoint) []Violation {
	t1, t2, t3, t4 := a[1], a[2], a[3], a[4]
	if t3.Index == t1.Index || t4.Index == t2.Index {
		return nil
	}
	s13 := slope(t1, t3)
	s24 := slope(t2, t4)

	var out []Violation
	if s.sign*(s13-s24) > 0 {
		out = append(out, violationf(RuleDivergence, "T1-T3 slope %.5f diverges from T2-T4 slope %.5f", s13, s24))
	}
	if s.sign*s13 > maxAdverseSlope && s.sign*s24 > maxAdverseSlope {
		out = append(out, violationf(RuleChannelSlope, "channel slopes %.5f and %.5f follow the pole", s13, s24))
	}
	if s13 != s24 {
		x := (t2.Price - t1.Price + s13*float64(t1.Index) - s24*float64(t2.Index)) / (s13 - s24)
		if x > float64(t1.Index) && x <= float64(t4.Index) {
			out = append(out, violationf(RuleEarlyConvergence, "channel lines cross at bar %.1f before T4 %d", x, t4.Index))
		}
	}
	return out
}

func slope(a, b AnchorPoint) float64 {
	return (b.Price - a.Price) / float64(b.Index-a.Index)
}
