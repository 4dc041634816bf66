// Package dataset loads experiment rows and extracts the numeric samples the
// statistical tests operate on.
package dataset

import (
	"math"
	"strconv"
	"strings"
)

// Value is a single cell. IsNum reports whether Num holds a parsed number;
// Text always keeps the raw cell content.
type Value struct {
	Text  string
	Num   float64
	IsNum bool
}

// ParseValue parses s as a finite number where possible.
func ParseValue(s string) Value {
	v := Value{Text: s}
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return v
	}
	f, err := strconv.ParseFloat(trimmed, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return v
	}
	v.Num = f
	v.IsNum = true
	return v
}

// Number wraps f as a numeric value.
func Number(f float64) Value {
	return Value{Text: strconv.FormatFloat(f, 'g', -1, 64), Num: f, IsNum: !math.IsNaN(f) && !math.IsInf(f, 0)}
}

// Text wraps s without attempting to parse it.
func Text(s string) Value {
	return Value{Text: s}
}

// String returns the raw text of the value.
func (v Value) String() string {
	return v.Text
}

// Row is an ordered set of column values.
type Row struct {
	columns []string
	values  map[string]Value
}

// NewRow returns an empty row.
func NewRow() Row {
	return Row{values: make(map[string]Value)}
}

// Get returns the value for column and whether it is present.
func (r Row) Get(column string) (Value, bool) {
	v, ok := r.values[column]
	return v, ok
}

// Set stores v under column, appending the column if it is new.
func (r *Row) Set(column string, v Value) {
	if r.values == nil {
		r.values = make(map[string]Value)
	}
	if _, ok := r.values[column]; !ok {
		r.columns = append(r.columns, column)
	}
	r.values[column] = v
}

// Columns returns the column names in insertion order.
func (r Row) Columns() []string {
	out := make([]string, len(r.columns))
	copy(out, r.columns)
	return out
}

// Len returns the number of columns.
func (r Row) Len() int {
	return len(r.columns)
}

// ID returns the text of column, trimmed. Missing columns yield "".
func (r Row) ID(column string) string {
	v, ok := r.values[column]
	if !ok {
		return ""
	}
	return strings.TrimSpace(v.Text)
}
