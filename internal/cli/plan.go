package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/gkobilansky/abgoat/internal/dataset"
	"github.com/gkobilansky/abgoat/internal/samplesize"
)

func init() {
	rootCmd.AddCommand(newPlanCmd())
}

func newPlanCmd() *cobra.Command {
	var (
		metricType string
		p          samplesize.Params
		dataPath   string
		metricSpec string
		format     string
	)

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Plan sample size and duration over a range of MDEs",
		Long: `Plan how many units and days an experiment needs to detect each minimum
detectable effect (relative lift) in a range.

The baseline can be given directly or estimated from historical data.

Examples:
  abgoat plan --type mean --baseline 10 --variance 4 --traffic 5000
  abgoat plan --type proportion --baseline 0.12 --mde-start 0.05 --mde-end 0.3 --mde-step 0.05 --traffic 2000
  abgoat plan --data history.csv --metric revenue/sessions --traffic 5000`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkFormat(format, "table", "json"); err != nil {
				return err
			}

			defaultFloat(cmd, "alpha", &p.Alpha, cfg.Test.Alpha)
			defaultFloat(cmd, "power", &p.Power, cfg.Plan.Power)
			defaultFloat(cmd, "k", &p.K, cfg.Plan.K)
			defaultFloat(cmd, "sample-ratio", &p.SampleRatio, cfg.Plan.SampleRatio)
			if !cmd.Flags().Changed("groups") {
				p.GroupNum = cfg.Plan.GroupNum
			}

			if dataPath != "" {
				if err := estimateBaseline(&p, dataPath, metricSpec, metricType); err != nil {
					return err
				}
			} else {
				mt, err := resolveMetricType(metricType)
				if err != nil {
					return err
				}
				p.MetricType = mt
			}

			rows, err := samplesize.Plan(p)
			if err != nil {
				return err
			}
			logger.Debug("planned sample sizes",
				zap.String("metric_type", string(p.MetricType)),
				zap.Int("rows", len(rows)))

			out := cmd.OutOrStdout()
			if format == "json" {
				if rows == nil {
					rows = []samplesize.Row{}
				}
				return writeJSONOutput(out, map[string]any{"params": p, "rows": rows})
			}

			if len(rows) == 0 {
				fmt.Fprintln(out, "No MDE values in range.")
				return nil
			}
			fmt.Fprintf(out, "METRIC: %s  BASELINE: %s  ALPHA: %g  POWER: %g\n\n", p.MetricType, formatFloat(p.Baseline), p.Alpha, p.Power)
			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "MDE\tCONTROL\tTREATMENT\tTOTAL\tDAYS")
			for _, r := range rows {
				fmt.Fprintf(w, "%.1f%%\t%s\t%s\t%s\t%d\n",
					r.MDE*100,
					formatNumber(r.ControlSampleSize),
					formatNumber(r.TreatmentSampleSize),
					formatNumber(r.TotalSampleSize),
					r.ExperimentDays,
				)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVarP(&metricType, "type", "t", "", "metric type: mean, proportion or ratio (prompted when omitted)")
	cmd.Flags().Float64Var(&p.Baseline, "baseline", 0, "baseline mean, rate or ratio")
	cmd.Flags().Float64Var(&p.Variance, "variance", 0, "baseline variance (mean metrics)")
	cmd.Flags().Float64Var(&p.NumeratorVariance, "numerator-variance", 0, "numerator variance (ratio metrics)")
	cmd.Flags().Float64Var(&p.DenominatorVariance, "denominator-variance", 0, "denominator variance (ratio metrics)")
	cmd.Flags().Float64Var(&p.Covariance, "covariance", 0, "numerator/denominator covariance (ratio metrics)")
	cmd.Flags().Float64Var(&p.MDEStart, "mde-start", 0.01, "first relative MDE")
	cmd.Flags().Float64Var(&p.MDEEnd, "mde-end", 0.11, "end of the MDE range (exclusive)")
	cmd.Flags().Float64Var(&p.MDEStep, "mde-step", 0.01, "MDE step")
	cmd.Flags().Float64Var(&p.Alpha, "alpha", 0, "significance level (default from config, 0.05)")
	cmd.Flags().Float64Var(&p.Power, "power", 0, "statistical power (default from config, 0.8)")
	cmd.Flags().BoolVar(&p.OneSided, "one-sided", false, "use a one-sided critical value")
	cmd.Flags().Float64Var(&p.K, "k", 0, "treatment:control traffic ratio (default from config, 1)")
	cmd.Flags().IntVar(&p.GroupNum, "groups", 0, "number of groups including control (default from config, 2)")
	cmd.Flags().Float64Var(&p.DailyTraffic, "traffic", 0, "eligible units per day (required)")
	cmd.Flags().Float64Var(&p.SampleRatio, "sample-ratio", 0, "share of traffic in the experiment (default from config, 1)")
	cmd.Flags().StringVar(&dataPath, "data", "", "CSV of historical data to estimate the baseline from")
	cmd.Flags().StringVar(&metricSpec, "metric", "", "metric to estimate, e.g. revenue, converted:proportion or clicks/views")
	cmd.Flags().StringVarP(&format, "format", "f", "table", "output format (table or json)")
	cmd.MarkFlagRequired("traffic")

	return cmd
}

// defaultFloat applies a config default to a flag the user did not set.
func defaultFloat(cmd *cobra.Command, name string, dst *float64, value float64) {
	if !cmd.Flags().Changed(name) {
		*dst = value
	}
}

func resolveMetricType(s string) (samplesize.MetricType, error) {
	if s != "" {
		return samplesize.ParseMetricType(s)
	}
	if !isTerminal() {
		return "", fmt.Errorf("--type is required (mean, proportion or ratio)")
	}

	types := []samplesize.MetricType{samplesize.Continuous, samplesize.Binary, samplesize.Ratio}
	idx, err := promptSelect("Metric type", []string{
		"Mean (continuous, e.g. revenue per user)",
		"Proportion (binary, e.g. conversion)",
		"Ratio (e.g. clicks per view)",
	})
	if err != nil {
		return "", err
	}
	return types[idx], nil
}

// estimateBaseline fills the baseline fields of p from a CSV column. The
// metric spec decides the type unless --type says otherwise.
func estimateBaseline(p *samplesize.Params, path, spec, typeFlag string) error {
	if spec == "" {
		return fmt.Errorf("--metric is required with --data")
	}
	m, err := dataset.ParseMetric(spec)
	if err != nil {
		return err
	}
	rows, err := loadData(path)
	if err != nil {
		return err
	}
	if err := m.Validate(rows); err != nil {
		return err
	}

	if m.Type == dataset.MetricRatio {
		p.MetricType = samplesize.Ratio
		r, vx, vy, cov, err := samplesize.EstimateRatioBaseline(dataset.Pairs(rows, m.Numerator, m.Denominator))
		if err != nil {
			return err
		}
		p.Baseline, p.NumeratorVariance, p.DenominatorVariance, p.Covariance = r, vx, vy, cov
	} else {
		p.MetricType = samplesize.Continuous
		if m.Type == dataset.MetricProportion {
			p.MetricType = samplesize.Binary
		}
		if typeFlag != "" {
			if p.MetricType, err = samplesize.ParseMetricType(typeFlag); err != nil {
				return err
			}
		}
		b, err := samplesize.EstimateBaseline(dataset.Floats(rows, m.Column), p.MetricType)
		if err != nil {
			return err
		}
		p.Baseline, p.Variance = b.Mean, b.Variance
	}

	logger.Info("estimated baseline",
		zap.String("metric", m.Name),
		zap.Float64("baseline", p.Baseline),
		zap.Int("rows", len(rows)))
	return nil
}
