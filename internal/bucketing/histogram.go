package bucketing

import "math"

// DefaultHistogramBins is the bin count used when Histogram is given n < 1.
const DefaultHistogramBins = 20

// Bin is one equal-width histogram bucket over [Lower, Upper).
type Bin struct {
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
	Count int     `json:"count"`
	Best  bool    `json:"best"`
}

// Histogram bins the finite scores into n equal-width bins and marks the bin
// holding BestScore. The last bin is closed on the right.
func (r *Result) Histogram(n int) []Bin {
	if n < 1 {
		n = DefaultHistogramBins
	}

	lo, hi := math.Inf(1), math.Inf(-1)
	for _, s := range r.AllScores {
		if math.IsInf(s, 0) || math.IsNaN(s) {
			continue
		}
		lo = math.Min(lo, s)
		hi = math.Max(hi, s)
	}
	if lo > hi {
		return nil
	}

	width := (hi - lo) / float64(n)
	bins := make([]Bin, n)
	for i := range bins {
		bins[i].Lower = lo + float64(i)*width
		bins[i].Upper = lo + float64(i+1)*width
	}
	bins[n-1].Upper = hi

	binOf := func(s float64) int {
		if width == 0 {
			return 0
		}
		i := int((s - lo) / width)
		if i >= n {
			i = n - 1
		}
		return i
	}

	for _, s := range r.AllScores {
		if math.IsInf(s, 0) || math.IsNaN(s) {
			continue
		}
		bins[binOf(s)].Count++
	}
	if !math.IsInf(r.BestScore, 0) && !math.IsNaN(r.BestScore) && len(r.TopSeeds) > 0 {
		bins[binOf(r.BestScore)].Best = true
	}
	return bins
}
