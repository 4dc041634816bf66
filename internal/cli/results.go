package cli

import (
	"github.com/spf13/cobra"

	"github.com/gkobilansky/abgoat/internal/analysis"
	"github.com/gkobilansky/abgoat/internal/dataset"
	"github.com/gkobilansky/abgoat/internal/stats"
	"github.com/gkobilansky/abgoat/internal/store"
)

func init() {
	rootCmd.AddCommand(newResultsCmd())
}

func newResultsCmd() *cobra.Command {
	var (
		dataPath    string
		metrics     []string
		alpha       float64
		alternative string
		correct     bool
		format      string
	)

	cmd := &cobra.Command{
		Use:   "results <experiment>",
		Short: "Show test results for a registered experiment",
		Long: `Assign outcome data with the experiment's seed and test every treatment
group against control. Uses the experiment's metrics unless --metric is given.

Example:
  abgoat results checkout --data outcomes.csv --correct`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkFormat(format, "table", "json"); err != nil {
				return err
			}
			if !cmd.Flags().Changed("alpha") {
				alpha = cfg.Test.Alpha
			}
			if !cmd.Flags().Changed("alternative") {
				alternative = cfg.Test.Alternative
			}
			if !cmd.Flags().Changed("correct") && cfg.Test.Correct != nil {
				correct = *cfg.Test.Correct
			}

			return withStore(func(s *store.SQLiteStore) error {
				exp, err := getExperiment(cmd, s, args[0])
				if err != nil {
					return err
				}
				hasher, err := resolveHasher(exp.Hasher)
				if err != nil {
					return err
				}
				rows, err := loadData(dataPath)
				if err != nil {
					return err
				}

				specs := metrics
				if len(specs) == 0 {
					specs = exp.Metrics
				}
				parsed, err := dataset.ParseMetrics(specs)
				if err != nil {
					return err
				}

				report, err := analysis.Run(rows, exp.IDColumn, exp.Seed, exp.Proportions, parsed, analysis.Options{
					Test:    stats.Options{Alpha: alpha, Alternative: stats.Alternative(alternative)},
					Correct: correct,
					Hasher:  hasher,
					Logger:  logger,
				})
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				if format == "json" {
					return writeJSONOutput(out, report)
				}
				return printReport(out, report)
			})
		},
	}

	cmd.Flags().StringVar(&dataPath, "data", "", "CSV of outcome data keyed by the experiment's id column (required)")
	cmd.Flags().StringArrayVarP(&metrics, "metric", "m", nil, "metric to test (repeatable, default: the experiment's metrics)")
	cmd.Flags().Float64Var(&alpha, "alpha", 0.05, "significance level")
	cmd.Flags().StringVar(&alternative, "alternative", "two-sided", "two-sided, greater or less")
	cmd.Flags().BoolVar(&correct, "correct", false, "apply Benjamini-Hochberg correction across comparisons")
	cmd.Flags().StringVarP(&format, "format", "f", "table", "output format (table or json)")
	cmd.MarkFlagRequired("data")

	return cmd
}
