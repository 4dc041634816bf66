package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gkobilansky/abgoat/internal/analysis"
	"github.com/gkobilansky/abgoat/internal/bucketing"
	"github.com/gkobilansky/abgoat/internal/dataset"
	"github.com/gkobilansky/abgoat/internal/stats"
)

// fileGroupColumn tags rows loaded from --control-data and --treatment-data.
const fileGroupColumn = "__abgoat_group"

func init() {
	rootCmd.AddCommand(newTestCmd())
}

type testFlags struct {
	dataPath      string
	groupColumn   string
	control       string
	controlData   string
	treatmentData string
	counts        string
	metrics       []string
	alpha         float64
	alternative   string
	correct       bool
	format        string
}

func newTestCmd() *cobra.Command {
	var f testFlags

	cmd := &cobra.Command{
		Use:   "test",
		Short: "Test metric differences between experiment groups",
		Long: `Run significance tests of every treatment group against control.

Groups come from a column of one CSV, from two CSV files, or from aggregate
conversion counts.

Examples:
  abgoat test --data results.csv --group-column variant --metric revenue --metric converted:proportion
  abgoat test --control-data a.csv --treatment-data b.csv --metric clicks/views
  abgoat test --counts 120/1000,150/1000`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkFormat(f.format, "table", "json"); err != nil {
				return err
			}
			if !cmd.Flags().Changed("alpha") {
				f.alpha = cfg.Test.Alpha
			}
			if !cmd.Flags().Changed("alternative") {
				f.alternative = cfg.Test.Alternative
			}
			if !cmd.Flags().Changed("correct") && cfg.Test.Correct != nil {
				f.correct = *cfg.Test.Correct
			}
			opts := stats.Options{Alpha: f.alpha, Alternative: stats.Alternative(f.alternative)}
			out := cmd.OutOrStdout()

			if f.counts != "" {
				res, err := testCounts(f.counts, opts)
				if err != nil {
					return err
				}
				if f.format == "json" {
					return writeJSONOutput(out, res)
				}
				printTestResult(out, res)
				return nil
			}

			rows, p, groupColumn, err := testGroups(f)
			if err != nil {
				return err
			}
			metrics, err := dataset.ParseMetrics(f.metrics)
			if err != nil {
				return err
			}

			report, err := analysis.Run(rows, "", "", p, metrics, analysis.Options{
				Test:        opts,
				Correct:     f.correct,
				GroupColumn: groupColumn,
				Logger:      logger,
			})
			if err != nil {
				return err
			}
			if f.format == "json" {
				return writeJSONOutput(out, report)
			}
			return printReport(out, report)
		},
	}

	cmd.Flags().StringVar(&f.dataPath, "data", "", "CSV with one row per unit")
	cmd.Flags().StringVar(&f.groupColumn, "group-column", "variant", "column holding each row's group")
	cmd.Flags().StringVar(&f.control, "control", "control", "name of the control group")
	cmd.Flags().StringVar(&f.controlData, "control-data", "", "CSV of control rows")
	cmd.Flags().StringVar(&f.treatmentData, "treatment-data", "", "CSV of treatment rows")
	cmd.Flags().StringVar(&f.counts, "counts", "", "conversion counts as control/treatment pairs, e.g. 120/1000,150/1000")
	cmd.Flags().StringArrayVarP(&f.metrics, "metric", "m", nil, "metric to test (repeatable): col, col:proportion or num/den")
	cmd.Flags().Float64Var(&f.alpha, "alpha", 0.05, "significance level")
	cmd.Flags().StringVar(&f.alternative, "alternative", "two-sided", "two-sided, greater or less")
	cmd.Flags().BoolVar(&f.correct, "correct", false, "apply Benjamini-Hochberg correction across comparisons")
	cmd.Flags().StringVarP(&f.format, "format", "f", "table", "output format (table or json)")

	return cmd
}

// testGroups loads the rows and derives the groups to compare. The control
// group is always first.
func testGroups(f testFlags) ([]dataset.Row, bucketing.Proportions, string, error) {
	if f.controlData != "" || f.treatmentData != "" {
		if f.controlData == "" || f.treatmentData == "" {
			return nil, nil, "", fmt.Errorf("--control-data and --treatment-data must be used together")
		}
		var rows []dataset.Row
		for _, part := range []struct{ path, group string }{
			{f.controlData, "control"},
			{f.treatmentData, "treatment"},
		} {
			loaded, err := loadData(part.path)
			if err != nil {
				return nil, nil, "", err
			}
			for i := range loaded {
				loaded[i].Set(fileGroupColumn, dataset.Text(part.group))
			}
			rows = append(rows, loaded...)
		}
		return rows, bucketing.Proportions{{Name: "control", Percent: 50}, {Name: "treatment", Percent: 50}}, fileGroupColumn, nil
	}

	rows, err := loadData(f.dataPath)
	if err != nil {
		return nil, nil, "", err
	}
	p, err := groupsFromColumn(rows, f.groupColumn, f.control)
	if err != nil {
		return nil, nil, "", err
	}
	return rows, p, f.groupColumn, nil
}

// groupsFromColumn lists the distinct values of column, control first and
// the rest in order of appearance. Percentages only satisfy validation;
// rows are not hashed.
func groupsFromColumn(rows []dataset.Row, column, control string) (bucketing.Proportions, error) {
	if _, ok := rows[0].Get(column); !ok {
		return nil, fmt.Errorf("group column %q not found", column)
	}

	names := []string{control}
	seen := map[string]bool{control: true}
	foundControl := false
	for _, r := range rows {
		name := r.ID(column)
		if name == control {
			foundControl = true
		}
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		names = append(names, name)
	}
	if !foundControl {
		return nil, fmt.Errorf("no rows in control group %q", control)
	}
	if len(names) < 2 {
		return nil, fmt.Errorf("need at least one group besides %q", control)
	}

	p := bucketing.EvenSplit(len(names))
	for i := range p {
		p[i].Name = names[i]
	}
	return p, nil
}

// testCounts parses "c/n,c/n" and runs a two-proportion test.
func testCounts(spec string, opts stats.Options) (*stats.TestResult, error) {
	parts := strings.Split(spec, ",")
	if len(parts) != 2 {
		return nil, fmt.Errorf("--counts needs exactly two conversions/total pairs, got %q", spec)
	}
	var conv, n [2]int
	for i, part := range parts {
		c, t, ok := strings.Cut(strings.TrimSpace(part), "/")
		if !ok {
			return nil, fmt.Errorf("invalid count %q: expected conversions/total", part)
		}
		var err error
		if conv[i], err = strconv.Atoi(strings.TrimSpace(c)); err != nil {
			return nil, fmt.Errorf("invalid conversions in %q: %w", part, err)
		}
		if n[i], err = strconv.Atoi(strings.TrimSpace(t)); err != nil {
			return nil, fmt.Errorf("invalid total in %q: %w", part, err)
		}
	}
	return stats.ProportionTestCounts(conv[0], n[0], conv[1], n[1], opts)
}
