// Package drift compares reference and new-data distributions using a
// population-stability-index statistic per feature.
package drift

import (
	"math"
	"sort"
)

const proportionFloor = 1e-6

// PSI computes the population stability index between a reference and an
// actual distribution. Bins are equal-frequency over the reference,
// collapsing when the reference has few distinct values.
//
// Returns 0.0 when either input is empty or the reference is too
// degenerate to bin (fewer than 3 distinct cut points).
func PSI(reference, actual []float64, bins int) float64 {
	reference = dropNonFinite(reference)
	actual = dropNonFinite(actual)
	if len(reference) == 0 || len(actual) == 0 {
		return 0.0
	}
	if bins <= 0 {
		bins = 10
	}

	cuts := quantileCuts(reference, bins)
	if len(cuts) < 3 {
		return 0.0
	}

	refCounts := histogram(reference, cuts)
	actCounts := histogram(actual, cuts)

	refTotal := sum(refCounts)
	actTotal := sum(actCounts)
	if refTotal == 0 {
		refTotal = 1
	}
	if actTotal == 0 {
		actTotal = 1
	}

	psi := 0.0
	for i := range refCounts {
		refPct := clampProportion(float64(refCounts[i]) / float64(refTotal))
		actPct := clampProportion(float64(actCounts[i]) / float64(actTotal))
		psi += (actPct - refPct) * math.Log(actPct/refPct)
	}
	return psi
}

// quantileCuts returns the distinct equal-frequency bin edges of v.
func quantileCuts(v []float64, bins int) []float64 {
	sorted := append([]float64(nil), v...)
	sort.Float64s(sorted)

	cuts := make([]float64, 0, bins+1)
	for i := 0; i <= bins; i++ {
		q := quantileSorted(sorted, float64(i)/float64(bins))
		if len(cuts) == 0 || q != cuts[len(cuts)-1] {
			cuts = append(cuts, q)
		}
	}
	return cuts
}

// quantileSorted is the linear-interpolation quantile of a sorted slice.
func quantileSorted(sorted []float64, q float64) float64 {
	n := len(sorted)
	if n == 1 {
		return sorted[0]
	}
	pos := q * float64(n-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

// histogram counts values per bin over the given edges. Values outside
// the edge range are dropped; the last bin includes its upper edge.
func histogram(v []float64, edges []float64) []int {
	counts := make([]int, len(edges)-1)
	for _, x := range v {
		if x < edges[0] || x > edges[len(edges)-1] {
			continue
		}
		// Bins are right-exclusive except the last, which includes
		// its upper edge.
		idx := sort.Search(len(edges), func(i int) bool { return edges[i] > x }) - 1
		if idx >= len(counts) {
			idx = len(counts) - 1
		}
		if idx < 0 {
			idx = 0
		}
		counts[idx]++
	}
	return counts
}

func clampProportion(p float64) float64 {
	if p < proportionFloor {
		return proportionFloor
	}
	if p > 1 {
		return 1
	}
	return p
}

func dropNonFinite(v []float64) []float64 {
	out := v[:0:0]
	for _, x := range v {
		if !math.IsNaN(x) && !math.IsInf(x, 0) {
			out = append(out, x)
		}
	}
	return out
}

func sum(v []int) int {
	total := 0
	for _, x := range v {
		total += x
	}
	return total
}
