package samplesize_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gkobilansky/abgoat/internal/samplesize"
	"github.com/gkobilansky/abgoat/internal/stats"
)

func continuousParams() samplesize.Params {
	return samplesize.Params{
		MetricType:   samplesize.Continuous,
		Alpha:        0.05,
		Power:        0.8,
		Baseline:     10,
		Variance:     4,
		MDEStart:     0.1,
		MDEEnd:       0.3,
		MDEStep:      0.05,
		K:            1,
		GroupNum:     2,
		DailyTraffic: 10,
		SampleRatio:  1,
	}
}

func TestPlan_Continuous(t *testing.T) {
	rows, err := samplesize.Plan(continuousParams())
	require.NoError(t, err)
	require.Len(t, rows, 4)

	first := rows[0]
	assert.Equal(t, 0.1, first.MDE)
	assert.Equal(t, 63, first.ControlSampleSize)
	assert.Equal(t, 63, first.TreatmentSampleSize)
	assert.Equal(t, 126, first.TotalSampleSize)
	assert.Equal(t, 13, first.ExperimentDays)

	assert.Equal(t, []float64{0.1, 0.15, 0.2, 0.25}, []float64{rows[0].MDE, rows[1].MDE, rows[2].MDE, rows[3].MDE})
}

func TestPlan_LargerMDENeedsFewerUnits(t *testing.T) {
	for _, mt := range []samplesize.MetricType{samplesize.Continuous, samplesize.Binary} {
		p := continuousParams()
		p.MetricType = mt
		p.Baseline = 0.1
		p.MDEStart, p.MDEEnd, p.MDEStep = 0.05, 0.5, 0.05

		rows, err := samplesize.Plan(p)
		require.NoError(t, err)
		require.NotEmpty(t, rows)

		for i := 1; i < len(rows); i++ {
			assert.Less(t, rows[i].ControlSampleSize, rows[i-1].ControlSampleSize, "%s mde=%v", mt, rows[i].MDE)
		}
	}
}

func TestPlan_Binary(t *testing.T) {
	p := continuousParams()
	p.MetricType = samplesize.Binary
	p.Baseline = 0.1
	p.MDEStart, p.MDEEnd, p.MDEStep = 0.1, 0.11, 0.01

	rows, err := samplesize.Plan(p)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 14749, rows[0].ControlSampleSize)
}

func TestPlan_Ratio(t *testing.T) {
	p := continuousParams()
	p.MetricType = samplesize.Ratio
	p.Baseline = 2
	p.NumeratorVariance = 9
	p.DenominatorVariance = 1
	p.Covariance = 1
	p.MDEStart, p.MDEEnd, p.MDEStep = 0.05, 0.06, 0.01

	rows, err := samplesize.Plan(p)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 14128, rows[0].ControlSampleSize)
}

func TestPlan_TrafficSplitAndGroups(t *testing.T) {
	p := continuousParams()
	p.K = 0.5
	p.GroupNum = 3
	p.MDEEnd = 0.11

	rows, err := samplesize.Plan(p)
	require.NoError(t, err)
	require.Len(t, rows, 1)

	r := rows[0]
	// (1 + 1/0.5) * zz * 4 / 1 = 94.19 -> 95, treatment ceil(95 * 0.5) = 48.
	assert.Equal(t, 95, r.ControlSampleSize)
	assert.Equal(t, 48, r.TreatmentSampleSize)
	assert.Equal(t, 95+2*48, r.TotalSampleSize)
}

func TestPlan_EmptySweep(t *testing.T) {
	p := continuousParams()
	p.MDEEnd = p.MDEStart

	rows, err := samplesize.Plan(p)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestPlan_SampleRatioStretchesDuration(t *testing.T) {
	full := continuousParams()
	half := continuousParams()
	half.SampleRatio = 0.5

	a, err := samplesize.Plan(full)
	require.NoError(t, err)
	b, err := samplesize.Plan(half)
	require.NoError(t, err)

	assert.Equal(t, a[0].TotalSampleSize, b[0].TotalSampleSize)
	assert.Equal(t, 26, b[0].ExperimentDays)
}

func TestPlan_OneSidedNeedsFewerUnits(t *testing.T) {
	p := continuousParams()
	p.OneSided = true

	rows, err := samplesize.Plan(p)
	require.NoError(t, err)
	assert.Equal(t, 50, rows[0].ControlSampleSize)
}

func TestPlan_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*samplesize.Params)
	}{
		{"zero baseline", func(p *samplesize.Params) { p.Baseline = 0 }},
		{"negative variance", func(p *samplesize.Params) { p.Variance = -1 }},
		{"proportion baseline above one", func(p *samplesize.Params) { p.MetricType = samplesize.Binary; p.Baseline = 1.2 }},
		{"end before start", func(p *samplesize.Params) { p.MDEEnd = 0.05 }},
		{"zero step", func(p *samplesize.Params) { p.MDEStep = 0 }},
		{"alpha zero", func(p *samplesize.Params) { p.Alpha = 0 }},
		{"power one", func(p *samplesize.Params) { p.Power = 1 }},
		{"single group", func(p *samplesize.Params) { p.GroupNum = 1 }},
		{"zero k", func(p *samplesize.Params) { p.K = 0 }},
		{"no traffic", func(p *samplesize.Params) { p.DailyTraffic = 0 }},
		{"sample ratio above one", func(p *samplesize.Params) { p.SampleRatio = 1.5 }},
		{"unknown metric", func(p *samplesize.Params) { p.MetricType = "median" }},
		{"ratio without variances", func(p *samplesize.Params) { p.MetricType = samplesize.Ratio }},
		{"proportion lift reaches one", func(p *samplesize.Params) {
			p.MetricType = samplesize.Binary
			p.Baseline = 0.9
			p.MDEStart, p.MDEEnd, p.MDEStep = 0.3, 0.6, 0.1
		}},
		{"proportion lift reaches one late in sweep", func(p *samplesize.Params) {
			p.MetricType = samplesize.Binary
			p.Baseline = 0.8
			p.MDEStart, p.MDEEnd, p.MDEStep = 0.1, 0.4, 0.1
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := continuousParams()
			tt.mutate(&p)
			_, err := samplesize.Plan(p)
			assert.ErrorIs(t, err, samplesize.ErrInvalidParams)
		})
	}
}

func TestSinglePointHelpers(t *testing.T) {
	n, err := samplesize.ContinuousSampleSize(10, 4, 0.1, 1, 0.05, 0.8, true)
	require.NoError(t, err)
	assert.Equal(t, 63, n)

	n, err = samplesize.BinarySampleSize(0.1, 0.1, 1, 0.05, 0.8, true)
	require.NoError(t, err)
	assert.Equal(t, 14749, n)

	_, err = samplesize.BinarySampleSize(0, 0.1, 1, 0.05, 0.8, true)
	assert.ErrorIs(t, err, samplesize.ErrInvalidParams)

	_, err = samplesize.BinarySampleSize(0.9, 0.2, 1, 0.05, 0.8, true)
	assert.ErrorIs(t, err, samplesize.ErrInvalidParams)
}

func TestPlan_BinarySweepEndsBelowFullConversion(t *testing.T) {
	p := continuousParams()
	p.MetricType = samplesize.Binary
	p.Baseline = 0.5
	// 1.0 is excluded from the sweep, so 0.5*(1+0.9) is the largest rate.
	p.MDEStart, p.MDEEnd, p.MDEStep = 0.8, 1.0, 0.1

	rows, err := samplesize.Plan(p)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	for _, r := range rows {
		assert.Positive(t, r.ControlSampleSize)
		assert.Positive(t, r.ExperimentDays)
	}
}

func TestParseMetricType(t *testing.T) {
	mt, err := samplesize.ParseMetricType("binary")
	require.NoError(t, err)
	assert.Equal(t, samplesize.Binary, mt)

	_, err = samplesize.ParseMetricType("median")
	assert.ErrorIs(t, err, samplesize.ErrInvalidParams)
}

func TestEstimateBaseline(t *testing.T) {
	b, err := samplesize.EstimateBaseline([]float64{2, 4, 4, 4, 5, 5, 7, 9}, samplesize.Continuous)
	require.NoError(t, err)
	assert.Equal(t, 8, b.N)
	assert.InDelta(t, 5, b.Mean, 1e-12)
	assert.InDelta(t, 32.0/7.0, b.Variance, 1e-12)

	b, err = samplesize.EstimateBaseline([]float64{0, 1, 0, 3}, samplesize.Binary)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, b.Mean, 1e-12)
	assert.InDelta(t, 0.25, b.Variance, 1e-12)

	_, err = samplesize.EstimateBaseline([]float64{1}, samplesize.Continuous)
	assert.ErrorIs(t, err, stats.ErrInsufficientData)
}

func TestEstimateRatioBaseline(t *testing.T) {
	r, vx, vy, cov, err := samplesize.EstimateRatioBaseline([]float64{2, 4, 6}, []float64{1, 2, 3})
	require.NoError(t, err)
	assert.InDelta(t, 2, r, 1e-12)
	assert.InDelta(t, 4, vx, 1e-12)
	assert.InDelta(t, 1, vy, 1e-12)
	assert.InDelta(t, 2, cov, 1e-12)

	_, _, _, _, err = samplesize.EstimateRatioBaseline([]float64{1, 2}, []float64{0, 0})
	assert.ErrorIs(t, err, stats.ErrDomain)
}
