package patterns

import "sort"

// Deduplicate keeps the best pattern of every cluster of near-identical formations.
// Two patterns belong to the same formation when both their T1 indices and their T4
// indices are less than distance bars apart. Candidates are visited by descending
// quality score and accepted greedily. Ties are broken by T1 index, T4 index and
// direction so the result does not depend on the input order.
func Deduplicate(in []FlagPattern, distance int) []FlagPattern {
	if len(in) == 0 {
		return nil
	}
	sorted := make([]FlagPattern, len(in))
	copy(sorted, in)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.QualityScore != b.QualityScore {
			return a.QualityScore > b.QualityScore
		}
		if a.T1.Index != b.T1.Index {
			return a.T1.Index < b.T1.Index
		}
		if a.T4.Index != b.T4.Index {
			return a.T4.Index < b.T4.Index
		}
		return a.Direction < b.Direction
	})

	kept := make([]FlagPattern, 0, len(sorted))
	for _, c := range sorted {
		dup := false
		for _, k := range kept {
			if abs(c.T1.Index-k.T1.Index) < distance && abs(c.T4.Index-k.T4.Index) < distance {
				dup = true
				break
			}
		}
		if !dup {
			kept = append(kept, c)
		}
	}
	return kept
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
