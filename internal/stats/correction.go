package stats

import (
	"math"
	"sort"
)

// BenjaminiHochberg returns false-discovery-rate adjusted p-values in the
// order of the input. NaN entries are left as NaN and do not count toward
// the number of hypotheses.
func BenjaminiHochberg(pValues []float64) []float64 {
	adjusted := make([]float64, len(pValues))
	idx := make([]int, 0, len(pValues))
	for i, p := range pValues {
		if math.IsNaN(p) {
			adjusted[i] = math.NaN()
			continue
		}
		idx = append(idx, i)
	}

	sort.SliceStable(idx, func(a, b int) bool {
		return pValues[idx[a]] < pValues[idx[b]]
	})

	m := float64(len(idx))
	running := 1.0
	for rank := len(idx); rank >= 1; rank-- {
		i := idx[rank-1]
		v := pValues[i] * m / float64(rank)
		if v < running {
			running = v
		}
		adjusted[i] = running
	}

	return adjusted
}
