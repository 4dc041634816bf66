package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/gkobilansky/abgoat/internal/store"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List all experiments",
	Long:  `List all registered experiments with their seed, state and groups.`,
	RunE:  runList,
}

func init() {
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	return withStore(func(s *store.SQLiteStore) error {
		experiments, err := s.ListExperiments(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to list experiments: %w", err)
		}

		out := cmd.OutOrStdout()
		if len(experiments) == 0 {
			fmt.Fprintln(out, "No experiments yet.")
			fmt.Fprintln(out)
			fmt.Fprintln(out, "Register one by saving a seed search:")
			fmt.Fprintln(out, "  abgoat rerandomize --data users.csv --metric revenue --save NAME")
			return nil
		}

		// Print table
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tSTATE\tSEED\tGROUPS\tMETRICS\tSCORE\tITERATIONS\tCREATED")

		for _, exp := range experiments {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
				exp.Name,
				strings.ToUpper(string(exp.State)),
				exp.Seed,
				exp.Proportions,
				strings.Join(exp.Metrics, ","),
				formatScore(exp.BestScore),
				formatNumber(exp.Iterations),
				exp.CreatedAt.Format("2006-01-02"),
			)
		}

		return w.Flush()
	})
}
