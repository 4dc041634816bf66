package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gkobilansky/abgoat/internal/bucketing"
	"github.com/gkobilansky/abgoat/internal/dataset"
	"github.com/gkobilansky/abgoat/internal/store"
)

func init() {
	rootCmd.AddCommand(newCreateCmd())
}

func newCreateCmd() *cobra.Command {
	var (
		seed        string
		idColumn    string
		proportions string
		groups      int
		metrics     []string
		hasherName  string
	)

	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Register an experiment with a known seed",
		Long: `Register an experiment without running a seed search, for example to
reproduce an assignment made elsewhere. A random seed is used when --seed is
omitted.

Examples:
  abgoat create checkout --seed rr123 --proportions control:50,treatment:50
  abgoat create pricing --groups 3 --metric revenue --id-column account_id`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := strings.TrimSpace(args[0])
			if name == "" {
				return fmt.Errorf("experiment name cannot be empty")
			}

			p, err := resolveProportions(proportions, groups)
			if err != nil {
				return err
			}
			if _, err := dataset.ParseMetrics(metrics); err != nil {
				return err
			}
			if _, err := resolveHasher(hasherName); err != nil {
				return err
			}
			if seed == "" {
				seed = bucketing.NewSeed()
			}

			return withStore(func(s *store.SQLiteStore) error {
				exp, err := s.CreateExperiment(cmd.Context(), &store.Experiment{
					Name:        name,
					IDColumn:    idColumn,
					Seed:        seed,
					Hasher:      hasherName,
					Proportions: p,
					Metrics:     metrics,
				})
				if err != nil {
					if errors.Is(err, store.ErrAlreadyExists) {
						return fmt.Errorf("experiment '%s' already exists", name)
					}
					return fmt.Errorf("failed to create experiment: %w", err)
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Created experiment '%s' with seed %s:\n", exp.Name, exp.Seed)
				for _, g := range exp.Proportions {
					fmt.Fprintf(out, "  %s: %d%%\n", g.Name, g.Percent)
				}
				if len(exp.Metrics) > 0 {
					fmt.Fprintf(out, "  Metrics: %s\n", strings.Join(exp.Metrics, ", "))
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&seed, "seed", "", "assignment seed (default: random)")
	cmd.Flags().StringVar(&idColumn, "id-column", "id", "column holding the unit id")
	cmd.Flags().StringVarP(&proportions, "proportions", "p", "", "group split, e.g. control:50,treatment:50 (default: even split)")
	cmd.Flags().IntVar(&groups, "groups", 2, "number of groups for an even split")
	cmd.Flags().StringArrayVarP(&metrics, "metric", "m", nil, "metric analyzed by 'results' (repeatable)")
	cmd.Flags().StringVar(&hasherName, "hasher", "rolling", "bucket hash: rolling or sha1")

	return cmd
}
