package stats

import (
	"fmt"
	"math"
)

// ProportionTest performs a two-proportion z-test on 0/1 observations.
// Each group's rate is the mean of its values. Values outside [0, 1] are
// rejected with ErrDomain.
func ProportionTest(control, treatment []float64, opts Options) (*TestResult, error) {
	if err := checkSamples(control, treatment); err != nil {
		return nil, err
	}
	if err := checkUnitInterval("control", control); err != nil {
		return nil, err
	}
	if err := checkUnitInterval("treatment", treatment); err != nil {
		return nil, err
	}
	return proportionTest(mean(control), len(control), mean(treatment), len(treatment), opts)
}

// ProportionTestCounts is ProportionTest for callers holding aggregated
// conversion counts instead of raw observations.
func ProportionTestCounts(controlConv, controlN, treatmentConv, treatmentN int, opts Options) (*TestResult, error) {
	// Handle edge cases
	if controlN < 2 || treatmentN < 2 {
		return nil, fmt.Errorf("%w: need at least 2 trials per group, got %d and %d", ErrInsufficientData, controlN, treatmentN)
	}
	if controlConv < 0 || controlConv > controlN || treatmentConv < 0 || treatmentConv > treatmentN {
		return nil, fmt.Errorf("%w: conversions must be between 0 and the number of trials", ErrDomain)
	}

	pA := float64(controlConv) / float64(controlN)
	pB := float64(treatmentConv) / float64(treatmentN)

	return proportionTest(pA, controlN, pB, treatmentN, opts)
}

func checkUnitInterval(group string, values []float64) error {
	for i, v := range values {
		if !(v >= 0 && v <= 1) {
			return fmt.Errorf("%w: %s observation %d is %v, proportion data must be in [0, 1]", ErrDomain, group, i, v)
		}
	}
	return nil
}

func proportionTest(pA float64, nA int, pB float64, nB int, opts Options) (*TestResult, error) {
	opts, err := opts.normalize()
	if err != nil {
		return nil, err
	}

	// Each group contributes its own binomial variance p(1-p)/n.
	se := math.Sqrt(pA*(1-pA)/float64(nA) + pB*(1-pB)/float64(nB))

	r := newResult(MethodProportion, opts, nA, nB, pA, pB)
	r.DegreesOfFreedom = math.Inf(1)
	if err := complete(r, se, normalReference{}, opts); err != nil {
		return nil, err
	}
	return r, nil
}
