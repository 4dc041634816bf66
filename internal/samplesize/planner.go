// Package samplesize plans the number of experiment units and days needed to
// detect a range of minimum detectable effects.
package samplesize

import (
	"errors"
	"fmt"
	"math"

	"github.com/gkobilansky/abgoat/internal/stats"
)

// ErrInvalidParams is returned when planner inputs fail validation.
var ErrInvalidParams = errors.New("invalid sample size parameters")

// MetricType selects the sample size formula.
type MetricType string

const (
	Continuous MetricType = "mean"
	Binary     MetricType = "proportion"
	Ratio      MetricType = "ratio"
)

// ParseMetricType accepts the metric type names used across the CLI and API.
func ParseMetricType(s string) (MetricType, error) {
	switch s {
	case "mean", "continuous":
		return Continuous, nil
	case "proportion", "binary":
		return Binary, nil
	case "ratio":
		return Ratio, nil
	}
	return "", fmt.Errorf("%w: unknown metric type %q", ErrInvalidParams, s)
}

// Params describes one planning request. MDE values are relative to the
// baseline (0.05 means a 5% lift).
type Params struct {
	MetricType MetricType `json:"metric_type" yaml:"metric_type"`
	Alpha      float64    `json:"alpha" yaml:"alpha"`
	Power      float64    `json:"power" yaml:"power"`
	OneSided   bool       `json:"one_sided" yaml:"one_sided"`

	Baseline float64 `json:"baseline" yaml:"baseline"`
	Variance float64 `json:"variance" yaml:"variance"` // continuous metrics only

	// Ratio metrics: variance of numerator and denominator and their covariance.
	NumeratorVariance   float64 `json:"numerator_variance" yaml:"numerator_variance"`
	DenominatorVariance float64 `json:"denominator_variance" yaml:"denominator_variance"`
	Covariance          float64 `json:"covariance" yaml:"covariance"`

	MDEStart float64 `json:"mde_start" yaml:"mde_start"`
	MDEEnd   float64 `json:"mde_end" yaml:"mde_end"`
	MDEStep  float64 `json:"mde_step" yaml:"mde_step"`

	K            float64 `json:"k" yaml:"k"` // treatment:control traffic ratio
	GroupNum     int     `json:"group_num" yaml:"group_num"`
	DailyTraffic float64 `json:"daily_traffic" yaml:"daily_traffic"`
	SampleRatio  float64 `json:"sample_ratio" yaml:"sample_ratio"`
}

// Row is the plan for a single MDE value.
type Row struct {
	MDE                 float64 `json:"mde"`
	ControlSampleSize   int     `json:"control_sample_size"`
	TreatmentSampleSize int     `json:"treatment_sample_size"`
	TotalSampleSize     int     `json:"total_sample_size"`
	ExperimentDays      int     `json:"experiment_days"`
}

// Validate checks every parameter before any arithmetic is done.
func (p Params) Validate() error {
	invalid := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s", ErrInvalidParams, fmt.Sprintf(format, args...))
	}

	if !(p.Alpha > 0 && p.Alpha < 1) {
		return invalid("alpha must be in (0, 1), got %v", p.Alpha)
	}
	if !(p.Power > 0 && p.Power < 1) {
		return invalid("power must be in (0, 1), got %v", p.Power)
	}

	switch p.MetricType {
	case Continuous:
		if !(p.Baseline > 0) {
			return invalid("baseline must be positive, got %v", p.Baseline)
		}
		if !(p.Variance > 0) {
			return invalid("variance must be positive for continuous metrics, got %v", p.Variance)
		}
	case Binary:
		if !(p.Baseline > 0 && p.Baseline < 1) {
			return invalid("baseline rate must be in (0, 1), got %v", p.Baseline)
		}
	case Ratio:
		if !(p.Baseline > 0) {
			return invalid("baseline ratio must be positive, got %v", p.Baseline)
		}
		if !(p.NumeratorVariance > 0 && p.DenominatorVariance > 0) {
			return invalid("numerator and denominator variances must be positive")
		}
		if !(p.ratioVariance() > 0) {
			return invalid("ratio variance is not positive")
		}
	default:
		return invalid("unknown metric type %q", p.MetricType)
	}

	if !(p.MDEStart > 0) {
		return invalid("mde start must be positive, got %v", p.MDEStart)
	}
	if p.MDEEnd < p.MDEStart {
		return invalid("mde end %v is before start %v", p.MDEEnd, p.MDEStart)
	}
	if !(p.MDEStep > 0) {
		return invalid("mde step must be positive, got %v", p.MDEStep)
	}
	if !(p.K > 0) {
		return invalid("k must be positive, got %v", p.K)
	}
	if p.GroupNum < 2 {
		return invalid("group count must be at least 2, got %d", p.GroupNum)
	}
	if !(p.DailyTraffic > 0) {
		return invalid("daily traffic must be positive, got %v", p.DailyTraffic)
	}
	if !(p.SampleRatio > 0 && p.SampleRatio <= 1) {
		return invalid("sample ratio must be in (0, 1], got %v", p.SampleRatio)
	}

	if p.MetricType == Binary {
		for _, mde := range p.sweep() {
			if err := checkShiftedRate(p.Baseline, mde); err != nil {
				return err
			}
		}
	}

	return nil
}

// sweep lists the MDE values of [MDEStart, MDEEnd) as start + i*step.
func (p Params) sweep() []float64 {
	var out []float64
	for i := 0; ; i++ {
		mde := p.MDEStart + float64(i)*p.MDEStep
		if mde >= p.MDEEnd-1e-12 {
			return out
		}
		out = append(out, mde)
	}
}

// checkShiftedRate rejects lifts that push a conversion rate to 100% or more.
func checkShiftedRate(rate, mde float64) error {
	if rate*(1+mde) >= 1 {
		return fmt.Errorf("%w: baseline rate %v with mde %v reaches a treatment rate of %v, must stay below 1",
			ErrInvalidParams, rate, mde, rate*(1+mde))
	}
	return nil
}

// Plan returns one Row per MDE in [MDEStart, MDEEnd) stepped by MDEStep.
func Plan(p Params) ([]Row, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	zAlpha, err := CriticalValue(p.Alpha, !p.OneSided)
	if err != nil {
		return nil, err
	}
	zBeta, err := stats.NormalInverseCDF(p.Power)
	if err != nil {
		return nil, err
	}
	zz := (zAlpha + zBeta) * (zAlpha + zBeta)

	var rows []Row
	for _, mde := range p.sweep() {
		var control int
		switch p.MetricType {
		case Binary:
			control = binarySampleSize(p.Baseline, mde, p.K, zz)
		case Ratio:
			control = continuousSampleSize(p.Baseline, p.ratioVariance(), mde, p.K, zz)
		default:
			control = continuousSampleSize(p.Baseline, p.Variance, mde, p.K, zz)
		}

		treatment := int(math.Ceil(float64(control) * p.K))
		total := control + treatment*(p.GroupNum-1)
		days := int(math.Ceil(float64(total) / (p.DailyTraffic * p.SampleRatio)))

		rows = append(rows, Row{
			MDE:                 math.Round(mde*1000) / 1000,
			ControlSampleSize:   control,
			TreatmentSampleSize: treatment,
			TotalSampleSize:     total,
			ExperimentDays:      days,
		})
	}

	return rows, nil
}

// CriticalValue returns z_alpha, two-sided by default.
func CriticalValue(alpha float64, twoSided bool) (float64, error) {
	if twoSided {
		return stats.NormalInverseCDF(1 - alpha/2)
	}
	return stats.NormalInverseCDF(1 - alpha)
}

// ContinuousSampleSize is the control-arm size for a continuous metric:
// (1 + 1/k)(z_a + z_b)^2 * variance / (mde * baseline)^2.
func ContinuousSampleSize(baseline, variance, mde, k, alpha, power float64, twoSided bool) (int, error) {
	p := Params{
		MetricType: Continuous, Alpha: alpha, Power: power, OneSided: !twoSided,
		Baseline: baseline, Variance: variance,
		MDEStart: mde, MDEEnd: mde, MDEStep: 1, K: k, GroupNum: 2, DailyTraffic: 1, SampleRatio: 1,
	}
	zz, err := p.zz()
	if err != nil {
		return 0, err
	}
	return continuousSampleSize(baseline, variance, mde, k, zz), nil
}

// BinarySampleSize is the control-arm size for a conversion-rate metric.
func BinarySampleSize(baselineRate, mde, k, alpha, power float64, twoSided bool) (int, error) {
	p := Params{
		MetricType: Binary, Alpha: alpha, Power: power, OneSided: !twoSided,
		Baseline: baselineRate,
		MDEStart: mde, MDEEnd: mde, MDEStep: 1, K: k, GroupNum: 2, DailyTraffic: 1, SampleRatio: 1,
	}
	zz, err := p.zz()
	if err != nil {
		return 0, err
	}
	if err := checkShiftedRate(baselineRate, mde); err != nil {
		return 0, err
	}
	return binarySampleSize(baselineRate, mde, k, zz), nil
}

func (p Params) zz() (float64, error) {
	if err := p.Validate(); err != nil {
		return 0, err
	}
	zAlpha, err := CriticalValue(p.Alpha, !p.OneSided)
	if err != nil {
		return 0, err
	}
	zBeta, err := stats.NormalInverseCDF(p.Power)
	if err != nil {
		return 0, err
	}
	return (zAlpha + zBeta) * (zAlpha + zBeta), nil
}

// ratioVariance is the linearized variance of X - R*Y for ratio metrics.
func (p Params) ratioVariance() float64 {
	r := p.Baseline
	return p.NumeratorVariance + r*r*p.DenominatorVariance - 2*r*p.Covariance
}

func continuousSampleSize(baseline, variance, mde, k, zz float64) int {
	effect := mde * baseline
	return int(math.Ceil((1 + 1/k) * zz * variance / (effect * effect)))
}

func binarySampleSize(rate, mde, k, zz float64) int {
	delta := rate * mde
	pooled := rate * (1 - rate)
	shifted := (rate + delta) * (1 - rate - delta)
	return int(math.Ceil((shifted/k + pooled) * zz / (delta * delta)))
}
