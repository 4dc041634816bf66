package dataset

// Floats returns the numeric values of column, skipping rows where it is
// missing or unparseable.
func Floats(rows []Row, column string) []float64 {
	out := make([]float64, 0, len(rows))
	for _, r := range rows {
		if v, ok := r.Get(column); ok && v.IsNum {
			out = append(out, v.Num)
		}
	}
	return out
}

// Pairs returns aligned x and y values from rows where both are numeric.
func Pairs(rows []Row, x, y string) (xs, ys []float64) {
	xs = make([]float64, 0, len(rows))
	ys = make([]float64, 0, len(rows))
	for _, r := range rows {
		xv, ok := r.Get(x)
		if !ok || !xv.IsNum {
			continue
		}
		yv, ok := r.Get(y)
		if !ok || !yv.IsNum {
			continue
		}
		xs = append(xs, xv.Num)
		ys = append(ys, yv.Num)
	}
	return xs, ys
}

// NumericColumns returns, in header order, the columns whose non-empty values
// all parse as numbers. Columns named in exclude are skipped.
func NumericColumns(rows []Row, exclude ...string) []string {
	if len(rows) == 0 {
		return nil
	}
	skip := make(map[string]bool, len(exclude))
	for _, e := range exclude {
		skip[e] = true
	}

	var out []string
	for _, c := range rows[0].Columns() {
		if skip[c] {
			continue
		}
		numeric, seen := true, false
		for _, r := range rows {
			v, ok := r.Get(c)
			if !ok || v.Text == "" {
				continue
			}
			if !v.IsNum {
				numeric = false
				break
			}
			seen = true
		}
		if numeric && seen {
			out = append(out, c)
		}
	}
	return out
}
