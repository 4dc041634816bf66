package stats

import (
	"errors"
	"fmt"
	"math"
)

// ErrInsufficientData is returned when a group has fewer than two usable
// observations, so no variance can be estimated.
var ErrInsufficientData = errors.New("insufficient data")

// Alternative selects the alternative hypothesis of a test.
type Alternative string

const (
	TwoSided Alternative = "two-sided"
	Greater  Alternative = "greater" // treatment > control
	Less     Alternative = "less"    // treatment < control
)

// Labels reported by TestResult.Label.
const (
	LabelSignificant    = "significant"
	LabelNotSignificant = "not significant"
)

// Method names recorded on a TestResult.
const (
	MethodWelch      = "welch-t"
	MethodProportion = "two-proportion-z"
	MethodRatio      = "delta-ratio-t"
)

// Options configures a single test invocation.
type Options struct {
	Alpha       float64
	Alternative Alternative
}

// DefaultOptions returns a two-sided test at alpha = 0.05.
func DefaultOptions() Options {
	return Options{Alpha: 0.05, Alternative: TwoSided}
}

func (o Options) normalize() (Options, error) {
	if !(o.Alpha > 0 && o.Alpha < 1) {
		return o, fmt.Errorf("%w: alpha must be in (0, 1), got %v", ErrDomain, o.Alpha)
	}
	switch o.Alternative {
	case "":
		o.Alternative = TwoSided
	case TwoSided, Greater, Less:
	default:
		return o, fmt.Errorf("%w: unknown alternative %q", ErrDomain, o.Alternative)
	}
	return o, nil
}

// TestResult is the outcome of a two-sample comparison. Difference is
// treatment minus control. RelativeDifference is NaN when the control mean
// is zero.
type TestResult struct {
	Method             string      `json:"method"`
	Alternative        Alternative `json:"alternative"`
	Alpha              float64     `json:"alpha"`
	ControlN           int         `json:"control_n"`
	TreatmentN         int         `json:"treatment_n"`
	ControlMean        float64     `json:"control_mean"`
	TreatmentMean      float64     `json:"treatment_mean"`
	Difference         float64     `json:"difference"`
	RelativeDifference float64     `json:"relative_difference"`
	Statistic          float64     `json:"statistic"`
	DegreesOfFreedom   float64     `json:"degrees_of_freedom"`
	StandardError      float64     `json:"standard_error"`
	PValue             float64     `json:"p_value"`
	Significant        bool        `json:"significant"`
	CILower            float64     `json:"ci_lower"`
	CIUpper            float64     `json:"ci_upper"`
}

// Label returns "significant" or "not significant".
func (r *TestResult) Label() string {
	if r.Significant {
		return LabelSignificant
	}
	return LabelNotSignificant
}

// reference is the null distribution of a test statistic.
type reference interface {
	cdf(x float64) (float64, error)
	quantile(p float64) (float64, error)
}

type normalReference struct{}

func (normalReference) cdf(x float64) (float64, error)      { return NormalCDF(x), nil }
func (normalReference) quantile(p float64) (float64, error) { return NormalInverseCDF(p) }

type studentReference struct{ df float64 }

func (s studentReference) cdf(x float64) (float64, error)      { return TCDF(x, s.df) }
func (s studentReference) quantile(p float64) (float64, error) { return TInverseCDF(p, s.df) }

// MeanTest runs Welch's unequal-variance t-test.
func MeanTest(control, treatment []float64, opts Options) (*TestResult, error) {
	opts, err := opts.normalize()
	if err != nil {
		return nil, err
	}
	if err := checkSamples(control, treatment); err != nil {
		return nil, err
	}

	n1, n2 := float64(len(control)), float64(len(treatment))
	m1, m2 := mean(control), mean(treatment)
	v1, v2 := variance(control), variance(treatment)

	se := math.Sqrt(v1/n1 + v2/n2)
	df := welchDF(v1/n1, v2/n2, n1, n2)
	if se == 0 {
		df = n1 + n2 - 2
	}

	r := newResult(MethodWelch, opts, len(control), len(treatment), m1, m2)
	r.DegreesOfFreedom = df
	if err := complete(r, se, studentReference{df: df}, opts); err != nil {
		return nil, err
	}
	return r, nil
}

// WelchStatistic returns only the Welch t statistic of treatment against
// control. A zero standard error yields 0 for equal means and ±Inf otherwise.
func WelchStatistic(control, treatment []float64) (float64, error) {
	if err := checkSamples(control, treatment); err != nil {
		return 0, err
	}
	diff := mean(treatment) - mean(control)
	se := math.Sqrt(variance(control)/float64(len(control)) + variance(treatment)/float64(len(treatment)))
	return ratioOrInf(diff, se), nil
}

// RatioTest compares sum(x)/sum(y) between groups, estimating the variance of
// each ratio with the delta method.
func RatioTest(controlX, controlY, treatmentX, treatmentY []float64, opts Options) (*TestResult, error) {
	opts, err := opts.normalize()
	if err != nil {
		return nil, err
	}
	c, err := newRatioSample(controlX, controlY)
	if err != nil {
		return nil, fmt.Errorf("control: %w", err)
	}
	t, err := newRatioSample(treatmentX, treatmentY)
	if err != nil {
		return nil, fmt.Errorf("treatment: %w", err)
	}

	se := math.Sqrt(c.variance + t.variance)
	df := welchDF(c.variance, t.variance, float64(c.n), float64(t.n))
	if se == 0 {
		df = float64(c.n + t.n - 2)
	}

	r := newResult(MethodRatio, opts, c.n, t.n, c.ratio, t.ratio)
	r.DegreesOfFreedom = df
	if err := complete(r, se, studentReference{df: df}, opts); err != nil {
		return nil, err
	}
	return r, nil
}

// DeltaStatistic returns only the delta-method t statistic of a ratio metric.
func DeltaStatistic(controlX, controlY, treatmentX, treatmentY []float64) (float64, error) {
	c, err := newRatioSample(controlX, controlY)
	if err != nil {
		return 0, fmt.Errorf("control: %w", err)
	}
	t, err := newRatioSample(treatmentX, treatmentY)
	if err != nil {
		return 0, fmt.Errorf("treatment: %w", err)
	}
	return ratioOrInf(t.ratio-c.ratio, math.Sqrt(c.variance+t.variance)), nil
}

type ratioSample struct {
	n        int
	ratio    float64
	variance float64 // variance of the ratio estimator, already divided by n
}

func newRatioSample(x, y []float64) (ratioSample, error) {
	if len(x) != len(y) {
		return ratioSample{}, fmt.Errorf("%w: numerator has %d values, denominator %d", ErrInsufficientData, len(x), len(y))
	}
	if len(x) < 2 {
		return ratioSample{}, fmt.Errorf("%w: need at least 2 observations, got %d", ErrInsufficientData, len(x))
	}

	n := float64(len(x))
	mx, my := mean(x), mean(y)
	if my == 0 {
		return ratioSample{}, fmt.Errorf("%w: denominator mean is zero", ErrDomain)
	}

	vx := variance(x) / n
	vy := variance(y) / n
	cov := covariance(x, y) / n

	v := vx/(my*my) + (mx*mx)/(my*my*my*my)*vy - 2*mx/(my*my*my)*cov
	// Mathematically non-negative; cancellation can leave a tiny negative.
	if v < 0 {
		v = 0
	}

	return ratioSample{n: len(x), ratio: sum(x) / sum(y), variance: v}, nil
}

func newResult(method string, opts Options, n1, n2 int, controlMean, treatmentMean float64) *TestResult {
	diff := treatmentMean - controlMean
	rel := math.NaN()
	if controlMean != 0 {
		rel = diff / controlMean
	}
	return &TestResult{
		Method:             method,
		Alternative:        opts.Alternative,
		Alpha:              opts.Alpha,
		ControlN:           n1,
		TreatmentN:         n2,
		ControlMean:        controlMean,
		TreatmentMean:      treatmentMean,
		Difference:         diff,
		RelativeDifference: rel,
	}
}

// complete fills in the statistic, p-value, significance and confidence
// interval from the standard error of the difference.
func complete(r *TestResult, se float64, ref reference, opts Options) error {
	diff := r.Difference
	r.StandardError = se

	if se == 0 {
		r.Statistic = ratioOrInf(diff, se)
		r.PValue = 1
		if diff != 0 {
			r.PValue = 0
		}
		r.CILower, r.CIUpper = diff, diff
		r.Significant = r.PValue < opts.Alpha
		return nil
	}

	stat := diff / se
	r.Statistic = stat

	cdf, err := ref.cdf(stat)
	if err != nil {
		return err
	}
	switch opts.Alternative {
	case Greater:
		r.PValue = 1 - cdf
	case Less:
		r.PValue = cdf
	default:
		upper := cdf
		if stat > 0 {
			upper = 1 - cdf
		}
		r.PValue = math.Min(1, 2*upper)
	}
	r.Significant = r.PValue < opts.Alpha

	if opts.Alternative == TwoSided {
		q, err := ref.quantile(1 - opts.Alpha/2)
		if err != nil {
			return err
		}
		lo, hi := diff-q*se, diff+q*se
		if lo > hi {
			lo, hi = hi, lo
		}
		r.CILower, r.CIUpper = lo, hi
		return nil
	}

	q, err := ref.quantile(1 - opts.Alpha)
	if err != nil {
		return err
	}
	if opts.Alternative == Greater {
		r.CILower, r.CIUpper = diff-q*se, math.Inf(1)
	} else {
		r.CILower, r.CIUpper = math.Inf(-1), diff+q*se
	}
	return nil
}

// welchDF is the Welch-Satterthwaite approximation, given each group's
// variance of the mean.
func welchDF(a, b, n1, n2 float64) float64 {
	return (a + b) * (a + b) / (a*a/(n1-1) + b*b/(n2-1))
}

func ratioOrInf(diff, se float64) float64 {
	if se != 0 {
		return diff / se
	}
	switch {
	case diff > 0:
		return math.Inf(1)
	case diff < 0:
		return math.Inf(-1)
	}
	return 0
}

func checkSamples(control, treatment []float64) error {
	if len(control) < 2 {
		return fmt.Errorf("%w: control has %d observations, need at least 2", ErrInsufficientData, len(control))
	}
	if len(treatment) < 2 {
		return fmt.Errorf("%w: treatment has %d observations, need at least 2", ErrInsufficientData, len(treatment))
	}
	return nil
}

func sum(xs []float64) float64 {
	s := 0.0
	for _, x := range xs {
		s += x
	}
	return s
}

func mean(xs []float64) float64 {
	return sum(xs) / float64(len(xs))
}

// variance is the unbiased (n-1) sample variance.
func variance(xs []float64) float64 {
	m := mean(xs)
	ss := 0.0
	for _, x := range xs {
		ss += (x - m) * (x - m)
	}
	return ss / float64(len(xs)-1)
}

func covariance(x, y []float64) float64 {
	mx, my := mean(x), mean(y)
	s := 0.0
	for i := range x {
		s += (x[i] - mx) * (y[i] - my)
	}
	return s / float64(len(x)-1)
}

// Mean returns the arithmetic mean, or NaN for an empty slice.
func Mean(xs []float64) float64 {
	if len(xs) == 0 {
		return math.NaN()
	}
	return mean(xs)
}

// Variance returns the unbiased sample variance, or NaN with fewer than two values.
func Variance(xs []float64) float64 {
	if len(xs) < 2 {
		return math.NaN()
	}
	return variance(xs)
}

// Covariance returns the unbiased sample covariance of paired slices.
func Covariance(x, y []float64) float64 {
	if len(x) < 2 || len(x) != len(y) {
		return math.NaN()
	}
	return covariance(x, y)
}
