package dataset

import (
	"fmt"
	"strings"
)

// MetricType selects which test a metric is analyzed with.
type MetricType string

const (
	MetricMean       MetricType = "mean"
	MetricProportion MetricType = "proportion"
	MetricRatio      MetricType = "ratio"
)

// Metric names the column (or numerator/denominator pair) a test runs on.
type Metric struct {
	Name        string     `json:"name" yaml:"name"`
	Type        MetricType `json:"type" yaml:"type"`
	Column      string     `json:"column,omitempty" yaml:"column,omitempty"`
	Numerator   string     `json:"numerator,omitempty" yaml:"numerator,omitempty"`
	Denominator string     `json:"denominator,omitempty" yaml:"denominator,omitempty"`
}

// ParseMetric turns "col" into a mean metric and "num/den" into a ratio
// metric. A ":proportion" or ":mean" suffix overrides the type of a
// single-column metric.
func ParseMetric(s string) (Metric, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Metric{}, fmt.Errorf("metric: empty name")
	}

	if num, den, ok := strings.Cut(s, "/"); ok {
		num, den = strings.TrimSpace(num), strings.TrimSpace(den)
		if num == "" || den == "" || strings.Contains(den, "/") {
			return Metric{}, fmt.Errorf("metric: invalid ratio %q", s)
		}
		return Metric{Name: num + "/" + den, Type: MetricRatio, Numerator: num, Denominator: den}, nil
	}

	col, typ, hasType := strings.Cut(s, ":")
	col = strings.TrimSpace(col)
	if col == "" {
		return Metric{}, fmt.Errorf("metric: invalid metric %q", s)
	}
	m := Metric{Name: col, Type: MetricMean, Column: col}
	if hasType {
		switch MetricType(strings.TrimSpace(typ)) {
		case MetricMean:
		case MetricProportion:
			m.Type = MetricProportion
		default:
			return Metric{}, fmt.Errorf("metric: unknown type %q in %q", typ, s)
		}
	}
	return m, nil
}

// ParseMetrics parses each entry with ParseMetric.
func ParseMetrics(specs []string) ([]Metric, error) {
	out := make([]Metric, 0, len(specs))
	for _, s := range specs {
		m, err := ParseMetric(s)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

// Columns returns the columns the metric reads.
func (m Metric) Columns() []string {
	if m.Type == MetricRatio {
		return []string{m.Numerator, m.Denominator}
	}
	return []string{m.Column}
}

// Validate checks that every column the metric reads exists in rows.
func (m Metric) Validate(rows []Row) error {
	if len(rows) == 0 {
		return nil
	}
	for _, c := range m.Columns() {
		if _, ok := rows[0].Get(c); !ok {
			return fmt.Errorf("metric %s: column %q not found", m.Name, c)
		}
	}
	return nil
}
