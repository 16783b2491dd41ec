package patterns

import (
	"flag-scanner/internal/analysis"
	"flag-scanner/internal/models"
)

type lineRole int

const (
	resistance lineRole = iota // no High may rise above the line
	support                    // no Low may fall below the line
)

// CheckChannel tests every bar between the anchors against the two channel lines.
// For a bull flag T1-T3 is resistance and T2-T4 support; a bear flag swaps them.
// The T1-T3 line is also extended over (T3, T4].
func CheckChannel(dir analysis.PatternDirection, bars []models.Bar, anchors [5]AnchorPoint) []Violation {
	return checkChannel(sideFor(dir), bars, anchors, DefaultConfig().ChannelBuffer)
}

func checkChannel(s side, bars []models.Bar, a [5]AnchorPoint, buffer float64) []Violation {
	t1, t2, t3, t4 := a[1], a[2], a[3], a[4]
	outer, inner := resistance, support
	outerRule, innerRule := RuleUpperLine, RuleLowerLine
	if !s.bullish() {
		outer, inner = support, resistance
		outerRule, innerRule = RuleLowerLine, RuleUpperLine
	}

	var out []Violation
	if i, ok := firstBreach(bars, t1, t3, t1.Index+1, t3.Index-1, outer, buffer); ok {
		out = append(out, violationf(outerRule, "bar %d crosses the T1-T3 line", i))
	}
	if i, ok := firstBreach(bars, t2, t4, t2.Index+1, t4.Index-1, inner, buffer); ok {
		out = append(out, violationf(innerRule, "bar %d crosses the T2-T4 line", i))
	}
	if i, ok := firstBreach(bars, t1, t3, t3.Index+1, t4.Index, outer, buffer); ok {
		out = append(out, violationf(RuleExtension, "bar %d crosses the extended T1-T3 line", i))
	}
	return out
}

// firstBreach scans bars[from..to] against the line through a and b.
func firstBreach(bars []models.Bar, a, b AnchorPoint, from, to int, role lineRole, buffer float64) (int, bool) {
	if b.Index == a.Index {
		return 0, false
	}
	if to >= len(bars) {
		to = len(bars) - 1
	}
	for i := from; i <= to; i++ {
		line := lineAt(a, b, i)
		switch role {
		case resistance:
			if bars[i].High > line+line*buffer {
				return i, true
			}
		case support:
			if bars[i].Low < line-line*buffer {
				return i, true
			}
		}
	}
	return 0, false
}

// lineAt is the price of the line through a and b at bar index i.
func lineAt(a, b AnchorPoint, i int) float64 {
	return a.Price + (b.Price-a.Price)*float64(i-a.Index)/float64(b.Index-a.Index)
}
