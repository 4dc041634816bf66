package dataset

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadCSV(t *testing.T) {
	tests := []struct {
		name     string
		csv      string
		wantRows int
		wantCols []string
		wantErr  string
	}{
		{
			name:     "happy path",
			csv:      "user_id,revenue,sessions\nu1,10.5,3\nu2,0,1\nu3,,2\n",
			wantRows: 3,
			wantCols: []string{"user_id", "revenue", "sessions"},
		},
		{
			name:     "headers only",
			csv:      "user_id,revenue\n",
			wantRows: 0,
			wantCols: nil,
		},
		{
			name:     "byte order mark and padded header",
			csv:      "\ufeffuser_id, revenue\nu1,1\n",
			wantRows: 1,
			wantCols: []string{"user_id", "revenue"},
		},
		{
			name:    "mismatched column count",
			csv:     "user_id,revenue\nu1,1\nu2\n",
			wantErr: "wrong number of fields",
		},
		{
			name:    "empty input",
			csv:     "",
			wantErr: "no header row",
		},
		{
			name:    "duplicate header",
			csv:     "a,a\n1,2\n",
			wantErr: "duplicate header",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rows, err := LoadCSV(strings.NewReader(tt.csv))
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Len(t, rows, tt.wantRows)
			if tt.wantCols != nil {
				assert.Equal(t, tt.wantCols, rows[0].Columns())
			}
		})
	}
}

func TestLoadCSVFile(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "data.csv")
	require.NoError(t, os.WriteFile(p, []byte("id,x\na,1\nb,oops\n"), 0o644))

	rows, err := LoadCSVFile(p)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	v, ok := rows[0].Get("x")
	require.True(t, ok)
	assert.True(t, v.IsNum)
	assert.Equal(t, 1.0, v.Num)

	v, ok = rows[1].Get("x")
	require.True(t, ok)
	assert.False(t, v.IsNum)
	assert.Equal(t, "oops", v.Text)

	_, err = LoadCSVFile(filepath.Join(dir, "missing.csv"))
	assert.Error(t, err)
}

func TestParseValue(t *testing.T) {
	assert.True(t, ParseValue(" 3.5 ").IsNum)
	assert.True(t, ParseValue("-1e3").IsNum)
	assert.False(t, ParseValue("").IsNum)
	assert.False(t, ParseValue("NaN").IsNum)
	assert.False(t, ParseValue("Inf").IsNum)
	assert.False(t, ParseValue("abc").IsNum)
	assert.Equal(t, "abc", ParseValue("abc").Text)
}

func TestRow_KeepsColumnOrder(t *testing.T) {
	r := NewRow()
	r.Set("b", Number(1))
	r.Set("a", Text("x"))
	r.Set("b", Number(2))

	assert.Equal(t, []string{"b", "a"}, r.Columns())
	v, _ := r.Get("b")
	assert.Equal(t, 2.0, v.Num)
	assert.Equal(t, 2, r.Len())

	var zero Row
	zero.Set("id", Text(" u1 "))
	assert.Equal(t, "u1", zero.ID("id"))
	assert.Equal(t, "", zero.ID("missing"))
}

func TestFloatsAndPairs(t *testing.T) {
	rows, err := LoadCSV(strings.NewReader("id,x,y\na,1,2\nb,,3\nc,4,oops\nd,5,6\n"))
	require.NoError(t, err)

	assert.Equal(t, []float64{1, 4, 5}, Floats(rows, "x"))
	assert.Empty(t, Floats(rows, "missing"))

	xs, ys := Pairs(rows, "x", "y")
	assert.Equal(t, []float64{1, 5}, xs)
	assert.Equal(t, []float64{2, 6}, ys)
}

func TestNumericColumns(t *testing.T) {
	rows, err := LoadCSV(strings.NewReader("id,x,label,y\n1,1,a,\n2,2,b,3\n"))
	require.NoError(t, err)

	assert.Equal(t, []string{"x", "y"}, NumericColumns(rows, "id"))
	assert.Equal(t, []string{"id", "x", "y"}, NumericColumns(rows))
	assert.Nil(t, NumericColumns(nil))
}

func TestParseMetric(t *testing.T) {
	tests := []struct {
		in      string
		want    Metric
		wantErr bool
	}{
		{in: "revenue", want: Metric{Name: "revenue", Type: MetricMean, Column: "revenue"}},
		{in: "converted:proportion", want: Metric{Name: "converted", Type: MetricProportion, Column: "converted"}},
		{in: "revenue / sessions", want: Metric{Name: "revenue/sessions", Type: MetricRatio, Numerator: "revenue", Denominator: "sessions"}},
		{in: "", wantErr: true},
		{in: "a/", wantErr: true},
		{in: "a/b/c", wantErr: true},
		{in: "a:median", wantErr: true},
	}

	for _, tt := range tests {
		got, err := ParseMetric(tt.in)
		if tt.wantErr {
			assert.Error(t, err, "input %q", tt.in)
			continue
		}
		require.NoError(t, err, "input %q", tt.in)
		assert.Equal(t, tt.want, got)
	}
}

func TestMetric_Validate(t *testing.T) {
	rows, err := LoadCSV(strings.NewReader("id,clicks,views\n1,2,3\n"))
	require.NoError(t, err)

	m, _ := ParseMetric("clicks/views")
	assert.NoError(t, m.Validate(rows))

	m, _ = ParseMetric("revenue")
	assert.ErrorContains(t, m.Validate(rows), "revenue")
}

func TestWriteCSV(t *testing.T) {
	rows, err := LoadCSV(strings.NewReader("id,x\na,1\nb,2\n"))
	require.NoError(t, err)
	rows[0].Set("group", Text("control"))

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, []string{"id", "x", "group"}, rows))
	assert.Equal(t, "id,x,group\na,1,control\nb,2,\n", buf.String())
}
