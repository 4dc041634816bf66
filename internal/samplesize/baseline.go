package samplesize

import (
	"fmt"

	"github.com/gkobilansky/abgoat/internal/stats"
)

// Baseline holds the historical statistics a plan is built from.
type Baseline struct {
	N        int     `json:"n"`
	Mean     float64 `json:"mean"`
	Variance float64 `json:"variance"`
}

// EstimateBaseline summarizes historical values for planning. Mean metrics
// use the sample mean and unbiased variance; proportion metrics use the share
// of positive values and p(1-p).
func EstimateBaseline(values []float64, metricType MetricType) (Baseline, error) {
	if len(values) < 2 {
		return Baseline{}, fmt.Errorf("%w: need at least 2 values, got %d", stats.ErrInsufficientData, len(values))
	}

	switch metricType {
	case Binary:
		positive := 0
		for _, v := range values {
			if v > 0 {
				positive++
			}
		}
		rate := float64(positive) / float64(len(values))
		return Baseline{N: len(values), Mean: rate, Variance: rate * (1 - rate)}, nil
	case Continuous:
		return Baseline{N: len(values), Mean: stats.Mean(values), Variance: stats.Variance(values)}, nil
	}
	return Baseline{}, fmt.Errorf("%w: cannot estimate a baseline for %q from a single column", ErrInvalidParams, metricType)
}

// EstimateRatioBaseline returns the ratio of means plus the numerator and
// denominator variances and covariance used by ratio plans.
func EstimateRatioBaseline(numerator, denominator []float64) (ratio, varX, varY, cov float64, err error) {
	if len(numerator) != len(denominator) {
		return 0, 0, 0, 0, fmt.Errorf("%w: numerator has %d values, denominator %d", stats.ErrInsufficientData, len(numerator), len(denominator))
	}
	if len(numerator) < 2 {
		return 0, 0, 0, 0, fmt.Errorf("%w: need at least 2 values, got %d", stats.ErrInsufficientData, len(numerator))
	}
	my := stats.Mean(denominator)
	if my == 0 {
		return 0, 0, 0, 0, fmt.Errorf("%w: denominator mean is zero", stats.ErrDomain)
	}
	return stats.Mean(numerator) / my, stats.Variance(numerator), stats.Variance(denominator), stats.Covariance(numerator, denominator), nil
}
