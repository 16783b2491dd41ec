package patterns

import (
	"testing"

	"flag-scanner/internal/analysis"
)

func candidate(dir analysis.PatternDirection, t1, t4, quality int) FlagPattern {
	return FlagPattern{
		Direction:    dir,
		Timeframe:    "1h",
		T1:           AnchorPoint{Index: t1},
		T4:           AnchorPoint{Index: t4},
		QualityScore: quality,
	}
}

func TestDeduplicate(t *testing.T) {
	in := []FlagPattern{
		candidate(analysis.PatternBullish, 10, 30, 60),
		candidate(analysis.PatternBullish, 12, 33, 90), // same formation as the first, better
		candidate(analysis.PatternBearish, 14, 34, 70), // still within 5 of the winner
		candidate(analysis.PatternBullish, 10, 38, 50), // T4 five bars from the winner: distinct
		candidate(analysis.PatternBullish, 40, 60, 80),
	}

	got := Deduplicate(in, 5)
	if len(got) != 3 {
		t.Fatalf("got %d patterns, want 3: %+v", len(got), got)
	}
	want := []struct{ t1, t4, q int }{{12, 33, 90}, {40, 60, 80}, {10, 38, 50}}
	for i, w := range want {
		if got[i].T1.Index != w.t1 || got[i].T4.Index != w.t4 || got[i].QualityScore != w.q {
			t.Errorf("pattern %d = (%d,%d,%d), want (%d,%d,%d)",
				i, got[i].T1.Index, got[i].T4.Index, got[i].QualityScore, w.t1, w.t4, w.q)
		}
	}
}

func TestDeduplicate_OrderIndependent(t *testing.T) {
	a := candidate(analysis.PatternBullish, 10, 30, 70)
	b := candidate(analysis.PatternBearish, 11, 31, 70)

	first := Deduplicate([]FlagPattern{a, b}, 5)
	second := Deduplicate([]FlagPattern{b, a}, 5)
	if len(first) != 1 || len(second) != 1 {
		t.Fatalf("expected one survivor, got %d and %d", len(first), len(second))
	}
	if first[0].Direction != second[0].Direction || first[0].T1.Index != 10 {
		t.Errorf("survivor depends on input order: %+v vs %+v", first[0], second[0])
	}
}

func TestDeduplicate_DoesNotMutateInput(t *testing.T) {
	in := []FlagPattern{
		candidate(analysis.PatternBullish, 10, 30, 10),
		candidate(analysis.PatternBullish, 50, 70, 90),
	}
	Deduplicate(in, 5)
	if in[0].QualityScore != 10 || in[1].QualityScore != 90 {
		t.Errorf("input reordered: %+v", in)
	}
	if got := Deduplicate(nil, 5); got != nil {
		t.Errorf("Deduplicate(nil) = %v", got)
	}
}
