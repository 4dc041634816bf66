package cli

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/gkobilansky/abgoat/internal/analysis"
	"github.com/gkobilansky/abgoat/internal/stats"
)

// printReport renders an analysis report as two tables: per-arm summaries
// and the comparisons against control.
func printReport(out io.Writer, r *analysis.Report) error {
	names := make([]string, 0, len(r.Groups))
	for name := range r.Groups {
		names = append(names, name)
	}
	sort.Strings(names)
	counts := make([]string, len(names))
	for i, name := range names {
		counts[i] = fmt.Sprintf("%s=%s", name, formatNumber(r.Groups[name]))
	}
	if r.Seed != "" {
		fmt.Fprintf(out, "SEED: %s\n", r.Seed)
	}
	fmt.Fprintf(out, "GROUPS: %s\n\n", strings.Join(counts, " "))

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "METRIC\tGROUP\tN\tMEAN\tRATE CI")
	for _, a := range r.Arms {
		ci := ""
		if a.RateLower != nil && a.RateUpper != nil {
			ci = fmt.Sprintf("[%.1f%%, %.1f%%]", *a.RateLower*100, *a.RateUpper*100)
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n", a.Metric, a.Group, a.N, formatScore(a.Mean), ci)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Fprintln(out)

	w = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	header := "METRIC\tTREATMENT\tDIFF\tREL\tP-VALUE"
	if r.Corrected {
		header += "\tADJ P"
	}
	fmt.Fprintln(w, header+"\tCI\tRESULT")
	for _, c := range r.Comparisons {
		if c.Result == nil {
			fmt.Fprintf(w, "%s\t%s\t-\t-\t-", c.Metric, c.Treatment)
			if r.Corrected {
				fmt.Fprint(w, "\t-")
			}
			fmt.Fprintf(w, "\t-\terror: %s\n", c.Error)
			continue
		}

		res := c.Result
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s", c.Metric, c.Treatment,
			formatFloat(res.Difference), formatRelative(res.RelativeDifference), formatPValue(res.PValue))
		if r.Corrected {
			adj := "-"
			if c.AdjustedPValue != nil {
				adj = formatPValue(*c.AdjustedPValue)
			}
			fmt.Fprintf(w, "\t%s", adj)
		}
		label := stats.LabelNotSignificant
		if c.Significant {
			label = stats.LabelSignificant
		}
		fmt.Fprintf(w, "\t[%s, %s]\t%s\n", formatFloat(res.CILower), formatFloat(res.CIUpper), label)
	}
	return w.Flush()
}

// printTestResult renders a single comparison.
func printTestResult(out io.Writer, res *stats.TestResult) {
	fmt.Fprintf(out, "METHOD: %s (%s, alpha %g)\n", res.Method, res.Alternative, res.Alpha)
	fmt.Fprintf(out, "CONTROL:   n=%s mean=%s\n", formatNumber(res.ControlN), formatFloat(res.ControlMean))
	fmt.Fprintf(out, "TREATMENT: n=%s mean=%s\n", formatNumber(res.TreatmentN), formatFloat(res.TreatmentMean))
	fmt.Fprintf(out, "DIFFERENCE: %s (%s)\n", formatFloat(res.Difference), formatRelative(res.RelativeDifference))
	fmt.Fprintf(out, "STATISTIC: %s  P-VALUE: %s\n", formatFloat(res.Statistic), formatPValue(res.PValue))
	fmt.Fprintf(out, "CI: [%s, %s]\n", formatFloat(res.CILower), formatFloat(res.CIUpper))
	fmt.Fprintf(out, "RESULT: %s\n", res.Label())
}

func formatRelative(v float64) string {
	s := formatFloat(v * 100)
	if s == "N/A" {
		return s
	}
	return s + "%"
}

func formatPValue(p float64) string {
	if p < 0.0001 {
		return "<0.0001"
	}
	return fmt.Sprintf("%.4f", p)
}
