package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/gkobilansky/abgoat/internal/bucketing"
	"github.com/gkobilansky/abgoat/internal/dataset"
	"github.com/gkobilansky/abgoat/internal/stats"
	"github.com/gkobilansky/abgoat/internal/store"
)

func init() {
	rootCmd.AddCommand(newRerandomizeCmd())
}

func newRerandomizeCmd() *cobra.Command {
	var (
		dataPath    string
		idColumn    string
		metrics     []string
		proportions string
		groups      int
		iterations  int
		workers     int
		topK        int
		hasherName  string
		bins        int
		save        string
		quiet       bool
		format      string
	)

	cmd := &cobra.Command{
		Use:   "rerandomize",
		Short: "Search for the seed that best balances pre-experiment metrics",
		Long: `Try many random assignment seeds over historical data and keep the one whose
groups are most alike on the given metrics (smallest worst-case t statistic).

With --save the winning seed is registered under a name, so 'assign' and
'results' reproduce the same assignment later.

Examples:
  abgoat rerandomize --data users.csv --id-column user_id --metric revenue --metric sessions
  abgoat rerandomize --data users.csv --id-column user_id --metric clicks/views --proportions control:50,treatment:50 --save checkout`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkFormat(format, "table", "json"); err != nil {
				return err
			}
			if !cmd.Flags().Changed("iterations") {
				iterations = cfg.Search.Iterations
			}
			if !cmd.Flags().Changed("workers") {
				workers = cfg.Search.Workers
			}
			if !cmd.Flags().Changed("top") {
				topK = cfg.Search.TopK
			}
			if !cmd.Flags().Changed("hasher") {
				hasherName = cfg.Search.Hasher
			}
			if !cmd.Flags().Changed("bins") {
				bins = cfg.Search.HistogramBins
			}

			rows, err := loadData(dataPath)
			if err != nil {
				return err
			}
			parsed, err := dataset.ParseMetrics(metrics)
			if err != nil {
				return err
			}
			p, err := resolveProportions(proportions, groups)
			if err != nil {
				return err
			}
			hasher, err := resolveHasher(hasherName)
			if err != nil {
				return err
			}

			searcher := &bucketing.Searcher{
				Hasher:        hasher,
				Logger:        logger,
				Workers:       workers,
				ProgressEvery: cfg.Search.ProgressEvery,
				TopK:          topK,
			}

			var onProgress bucketing.ProgressFunc
			if !quiet && format == "table" {
				errOut := cmd.ErrOrStderr()
				onProgress = func(pct float64) {
					fmt.Fprintf(errOut, "\rSearching seeds... %3.0f%%", pct)
					if pct >= 100 {
						fmt.Fprintln(errOut)
					}
				}
			}

			res, err := searcher.Search(cmd.Context(), bucketing.SearchInput{
				Rows:        rows,
				IDColumn:    idColumn,
				Metrics:     parsed,
				Proportions: p,
				Iterations:  iterations,
			}, onProgress)
			if err != nil {
				return err
			}

			var exp *store.Experiment
			if save != "" {
				err := withStore(func(s *store.SQLiteStore) error {
					exp, err = saveExperiment(cmd, s, save, idColumn, metrics, bucketing.HasherName(hasher), p, iterations, res)
					return err
				})
				if err != nil {
					return err
				}
			}

			out := cmd.OutOrStdout()
			histogram := res.Histogram(bins)
			if format == "json" {
				return writeJSONOutput(out, map[string]any{
					"result":     res,
					"histogram":  histogram,
					"experiment": exp,
				})
			}

			printSearchResult(out, res, p, histogram)
			if exp != nil {
				fmt.Fprintf(out, "\nSaved as experiment '%s'.\n", exp.Name)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&dataPath, "data", "", "CSV of pre-experiment data (required)")
	cmd.Flags().StringVar(&idColumn, "id-column", "id", "column holding the unit id")
	cmd.Flags().StringArrayVarP(&metrics, "metric", "m", nil, "metric to balance (repeatable): col, col:proportion or num/den")
	cmd.Flags().StringVarP(&proportions, "proportions", "p", "", "group split, e.g. control:50,treatment:50 (default: even split)")
	cmd.Flags().IntVar(&groups, "groups", 2, "number of groups for an even split")
	cmd.Flags().IntVarP(&iterations, "iterations", "n", 1000, "number of seeds to try")
	cmd.Flags().IntVarP(&workers, "workers", "w", 1, "seeds evaluated concurrently")
	cmd.Flags().IntVar(&topK, "top", 3, "number of best seeds to keep")
	cmd.Flags().StringVar(&hasherName, "hasher", "rolling", "bucket hash: rolling or sha1")
	cmd.Flags().IntVar(&bins, "bins", 20, "histogram bins")
	cmd.Flags().StringVar(&save, "save", "", "register the best seed under this experiment name")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "do not print progress")
	cmd.Flags().StringVarP(&format, "format", "f", "table", "output format (table or json)")
	cmd.MarkFlagRequired("data")
	cmd.MarkFlagRequired("metric")

	return cmd
}

// saveExperiment registers the best seed, replacing the seed of an existing
// experiment with the same name.
func saveExperiment(cmd *cobra.Command, s store.Store, name, idColumn string, metrics []string, hasher string, p bucketing.Proportions, iterations int, res *bucketing.Result) (*store.Experiment, error) {
	ctx := cmd.Context()
	exp, err := s.CreateExperiment(ctx, &store.Experiment{
		Name:        name,
		IDColumn:    idColumn,
		Seed:        res.BestSeed,
		Hasher:      hasher,
		Proportions: p,
		Metrics:     metrics,
		Iterations:  iterations,
		BestScore:   stats.Finite(res.BestScore),
	})
	if errors.Is(err, store.ErrAlreadyExists) {
		existing, getErr := s.GetExperiment(ctx, name)
		if getErr != nil {
			return nil, fmt.Errorf("failed to get experiment: %w", getErr)
		}
		if !existing.SameGroups(p) {
			return nil, fmt.Errorf("experiment '%s' uses groups %s; delete it or pick another name", name, existing.Proportions)
		}
		logger.Info("replacing seed of existing experiment", zap.String("experiment", name))
		if err := s.UpdateExperimentSeed(ctx, name, res.BestSeed, res.BestScore, iterations); err != nil {
			return nil, fmt.Errorf("failed to update experiment: %w", err)
		}
		exp, err = s.GetExperiment(ctx, name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to save experiment: %w", err)
	}

	if err := s.RecordCandidates(ctx, name, store.CandidatesFrom(res)); err != nil {
		return nil, fmt.Errorf("failed to record candidates: %w", err)
	}
	return exp, nil
}

func printSearchResult(out io.Writer, res *bucketing.Result, p bucketing.Proportions, histogram []bucketing.Bin) {
	fmt.Fprintf(out, "BEST SEED: %s\n", res.BestSeed)
	fmt.Fprintf(out, "BEST SCORE: %s (max |t| across metrics)\n", formatFloat(res.BestScore))
	fmt.Fprintf(out, "GROUPS: %s\n", p)
	fmt.Fprintf(out, "EVALUATED: %s  SKIPPED: %s\n\n", formatNumber(res.Evaluated), formatNumber(res.Skipped))

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RANK\tSEED\tSCORE")
	for i, c := range res.TopSeeds {
		fmt.Fprintf(w, "%d\t%s\t%s\n", i+1, c.Seed, formatFloat(c.Score))
	}
	w.Flush()

	if len(histogram) == 0 {
		return
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, "SCORE DISTRIBUTION")
	printHistogram(out, histogram)
}

// printHistogram draws one bar per bin, scaled to the tallest bin.
func printHistogram(out io.Writer, bins []bucketing.Bin) {
	const width = 40
	maxCount := 0
	for _, b := range bins {
		maxCount = max(maxCount, b.Count)
	}
	for _, b := range bins {
		bar := 0
		if maxCount > 0 {
			bar = b.Count * width / maxCount
		}
		marker := ""
		if b.Best {
			marker = " <- best"
		}
		fmt.Fprintf(out, "[%7.4f, %7.4f) %5d %s%s\n", b.Lower, b.Upper, b.Count, strings.Repeat("#", bar), marker)
	}
}
