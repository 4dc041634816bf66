// Package analysis runs the significance tests of every treatment group
// against the control group for a set of metrics.
package analysis

import (
	"errors"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/gkobilansky/abgoat/internal/bucketing"
	"github.com/gkobilansky/abgoat/internal/dataset"
	"github.com/gkobilansky/abgoat/internal/stats"
)

// Options configures a Run.
type Options struct {
	Test stats.Options
	// Correct applies Benjamini-Hochberg adjustment across all comparisons.
	Correct bool
	// GroupColumn, when set, reads each row's group from that column instead
	// of hashing the id with the seed.
	GroupColumn string
	Hasher      bucketing.Hasher
	Logger      *zap.Logger
}

// ArmSummary describes one metric within one group.
type ArmSummary struct {
	Metric string   `json:"metric"`
	Group  string   `json:"group"`
	N      int      `json:"n"`
	Mean   *float64 `json:"mean"`
	// Wilson interval of the conversion rate, proportion metrics only.
	Successes int      `json:"successes,omitempty"`
	RateLower *float64 `json:"rate_lower,omitempty"`
	RateUpper *float64 `json:"rate_upper,omitempty"`
}

// Comparison is one treatment group tested against control on one metric.
// Error is set, and Result nil, when the test could not run.
type Comparison struct {
	Metric         string             `json:"metric"`
	MetricType     dataset.MetricType `json:"metric_type"`
	Control        string             `json:"control"`
	Treatment      string             `json:"treatment"`
	Result         *stats.TestResult  `json:"result,omitempty"`
	AdjustedPValue *float64           `json:"adjusted_p_value,omitempty"`
	Significant    bool               `json:"significant"`
	Error          string             `json:"error,omitempty"`
}

// Report is the output of Run.
type Report struct {
	Seed        string         `json:"seed,omitempty"`
	Groups      map[string]int `json:"groups"`
	Arms        []ArmSummary   `json:"arms"`
	Comparisons []Comparison   `json:"comparisons"`
	Corrected   bool           `json:"corrected"`
}

// Failed returns the comparisons that could not be computed.
func (r *Report) Failed() []Comparison {
	var out []Comparison
	for _, c := range r.Comparisons {
		if c.Error != "" {
			out = append(out, c)
		}
	}
	return out
}

// Run partitions rows into groups and tests every treatment group against the
// control (the first group) on each metric. A metric that fails for one
// comparison is recorded on that comparison and does not stop the others.
func Run(rows []dataset.Row, idColumn, seed string, p bucketing.Proportions, metrics []dataset.Metric, opts Options) (*Report, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Test.Alpha == 0 {
		opts.Test = stats.DefaultOptions()
	}

	if err := p.Validate(); err != nil {
		return nil, err
	}
	if len(metrics) == 0 {
		return nil, fmt.Errorf("%w: no metrics", bucketing.ErrInvalidInput)
	}
	for _, m := range metrics {
		if err := m.Validate(rows); err != nil {
			return nil, fmt.Errorf("%w: %v", bucketing.ErrInvalidInput, err)
		}
	}

	groups, err := partition(rows, idColumn, seed, p, opts)
	if err != nil {
		return nil, err
	}

	report := &Report{Seed: seed, Groups: groups.Counts(), Corrected: opts.Correct}
	if opts.GroupColumn != "" {
		report.Seed = ""
	}
	control := p.Control()

	for _, m := range metrics {
		for _, g := range p {
			report.Arms = append(report.Arms, summarize(m, g.Name, groups[g.Name], opts.Test.Alpha))
		}

		for _, g := range p[1:] {
			c := Comparison{Metric: m.Name, MetricType: m.Type, Control: control, Treatment: g.Name}
			res, err := compare(m, groups[control], groups[g.Name], opts.Test)
			if err != nil {
				logger.Warn("comparison failed",
					zap.String("metric", m.Name),
					zap.String("treatment", g.Name),
					zap.Error(err))
				c.Error = err.Error()
			} else {
				c.Result = res
				c.Significant = res.Significant
			}
			report.Comparisons = append(report.Comparisons, c)
		}
	}

	if opts.Correct {
		correct(report, opts.Test.Alpha)
	}

	logger.Info("analysis complete",
		zap.Int("rows", len(rows)),
		zap.Int("comparisons", len(report.Comparisons)),
		zap.Int("failed", len(report.Failed())))

	return report, nil
}

func partition(rows []dataset.Row, idColumn, seed string, p bucketing.Proportions, opts Options) (bucketing.Assignment, error) {
	if opts.GroupColumn == "" {
		if idColumn == "" {
			return nil, fmt.Errorf("%w: id column is required", bucketing.ErrInvalidInput)
		}
		return bucketing.AssignRows(opts.Hasher, seed, idColumn, rows, p), nil
	}

	out := make(bucketing.Assignment, len(p))
	for _, g := range p {
		out[g.Name] = nil
	}
	for _, r := range rows {
		name := r.ID(opts.GroupColumn)
		if _, ok := out[name]; ok {
			out[name] = append(out[name], r)
		}
	}
	return out, nil
}

func compare(m dataset.Metric, control, treatment []dataset.Row, opts stats.Options) (*stats.TestResult, error) {
	switch m.Type {
	case dataset.MetricRatio:
		cx, cy := dataset.Pairs(control, m.Numerator, m.Denominator)
		tx, ty := dataset.Pairs(treatment, m.Numerator, m.Denominator)
		return stats.RatioTest(cx, cy, tx, ty, opts)
	case dataset.MetricProportion:
		return stats.ProportionTest(indicators(dataset.Floats(control, m.Column)), indicators(dataset.Floats(treatment, m.Column)), opts)
	case dataset.MetricMean, "":
		return stats.MeanTest(dataset.Floats(control, m.Column), dataset.Floats(treatment, m.Column), opts)
	}
	return nil, fmt.Errorf("%w: unknown metric type %q", stats.ErrDomain, m.Type)
}

// indicators maps values to 1 when positive and 0 otherwise.
func indicators(values []float64) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		if v > 0 {
			out[i] = 1
		}
	}
	return out
}

func summarize(m dataset.Metric, group string, rows []dataset.Row, alpha float64) ArmSummary {
	s := ArmSummary{Metric: m.Name, Group: group}
	switch m.Type {
	case dataset.MetricRatio:
		xs, ys := dataset.Pairs(rows, m.Numerator, m.Denominator)
		s.N = len(xs)
		s.Mean = stats.Finite(ratioOfSums(xs, ys))
	case dataset.MetricProportion:
		values := indicators(dataset.Floats(rows, m.Column))
		s.N = len(values)
		s.Mean = stats.Finite(stats.Mean(values))
		for _, v := range values {
			s.Successes += int(v)
		}
		if lo, hi, err := stats.WilsonInterval(s.Successes, s.N, 1-alpha); err == nil && s.N > 0 {
			s.RateLower, s.RateUpper = &lo, &hi
		}
	default:
		values := dataset.Floats(rows, m.Column)
		s.N = len(values)
		s.Mean = stats.Finite(stats.Mean(values))
	}
	return s
}

func ratioOfSums(xs, ys []float64) float64 {
	var sx, sy float64
	for i := range xs {
		sx += xs[i]
		sy += ys[i]
	}
	if sy == 0 {
		return math.NaN()
	}
	return sx / sy
}

func correct(r *Report, alpha float64) {
	raw := make([]float64, len(r.Comparisons))
	for i, c := range r.Comparisons {
		raw[i] = math.NaN()
		if c.Result != nil {
			raw[i] = c.Result.PValue
		}
	}
	adjusted := stats.BenjaminiHochberg(raw)
	for i := range r.Comparisons {
		if math.IsNaN(adjusted[i]) {
			continue
		}
		v := adjusted[i]
		r.Comparisons[i].AdjustedPValue = &v
		r.Comparisons[i].Significant = v < alpha
	}
}

// IsInputError reports whether err comes from bad caller input rather than
// an internal failure.
func IsInputError(err error) bool {
	return errors.Is(err, bucketing.ErrInvalidInput) ||
		errors.Is(err, bucketing.ErrProportionSum) ||
		errors.Is(err, stats.ErrDomain) ||
		errors.Is(err, stats.ErrInsufficientData)
}
