package bucketing

import (
	"fmt"
	"math"

	"github.com/gkobilansky/abgoat/internal/dataset"
	"github.com/gkobilansky/abgoat/internal/stats"
)

// column holds one metric's values per row. Rows without a usable value are
// marked invalid and left out of every group.
type column struct {
	metric dataset.Metric
	x, y   []float64
	valid  []bool
}

type preparedInput struct {
	ids     []string
	columns []column
	groups  Proportions
	index   map[string]int
}

func prepare(in SearchInput) *preparedInput {
	p := &preparedInput{
		ids:    make([]string, len(in.Rows)),
		groups: in.Proportions,
		index:  make(map[string]int, len(in.Proportions)),
	}
	for i, g := range in.Proportions {
		p.index[g.Name] = i
	}
	for i, r := range in.Rows {
		p.ids[i] = r.ID(in.IDColumn)
	}

	for _, m := range in.Metrics {
		c := column{
			metric: m,
			x:      make([]float64, len(in.Rows)),
			y:      make([]float64, len(in.Rows)),
			valid:  make([]bool, len(in.Rows)),
		}
		for i, r := range in.Rows {
			if m.Type == dataset.MetricRatio {
				xv, xok := r.Get(m.Numerator)
				yv, yok := r.Get(m.Denominator)
				if xok && yok && xv.IsNum && yv.IsNum {
					c.x[i], c.y[i], c.valid[i] = xv.Num, yv.Num, true
				}
				continue
			}
			if v, ok := r.Get(m.Column); ok && v.IsNum {
				c.x[i], c.valid[i] = v.Num, true
			}
		}
		p.columns = append(p.columns, c)
	}
	return p
}

// minGroupValues is the smallest group the balance statistics can score.
const minGroupValues = 2

// score assigns every row under seed and returns the largest absolute
// statistic across metrics.
func (p *preparedInput) score(h Hasher, seed string) (float64, error) {
	assigned := make([]int, len(p.ids))
	for i, id := range p.ids {
		assigned[i] = p.index[p.groups.groupFor(h.Bucket(seed, id))]
	}

	worst := 0.0
	for _, c := range p.columns {
		xs := make([][]float64, len(p.groups))
		ys := make([][]float64, len(p.groups))
		for i, g := range assigned {
			if !c.valid[i] {
				continue
			}
			xs[g] = append(xs[g], c.x[i])
			ys[g] = append(ys[g], c.y[i])
		}

		other := -1
		for g := 1; g < len(xs); g++ {
			if len(xs[g]) >= minGroupValues {
				other = g
				break
			}
		}
		if len(xs[0]) < minGroupValues || other < 0 {
			return 0, fmt.Errorf("metric %s: %w: fewer than %d values on a side", c.metric.Name, stats.ErrInsufficientData, minGroupValues)
		}

		var stat float64
		var err error
		if c.metric.Type == dataset.MetricRatio {
			stat, err = stats.DeltaStatistic(xs[0], ys[0], xs[other], ys[other])
		} else {
			stat, err = stats.WelchStatistic(xs[0], xs[other])
		}
		if err != nil {
			return 0, fmt.Errorf("metric %s: %w", c.metric.Name, err)
		}
		worst = math.Max(worst, math.Abs(stat))
	}
	return worst, nil
}
