package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/gkobilansky/abgoat/internal/store"
)

func init() {
	rootCmd.AddCommand(newAssignCmd())
}

func newAssignCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "assign <experiment> <id>...",
		Short: "Show the group of one or more unit ids",
		Long: `Show the bucket and group each id is assigned to under an experiment's seed.

Example:
  abgoat assign checkout user_1 user_2`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(func(s *store.SQLiteStore) error {
				exp, err := getExperiment(cmd, s, args[0])
				if err != nil {
					return err
				}
				hasher, err := resolveHasher(exp.Hasher)
				if err != nil {
					return err
				}

				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tBUCKET\tGROUP")
				for _, id := range args[1:] {
					fmt.Fprintf(w, "%s\t%d\t%s\n", id, hasher.Bucket(exp.Seed, id), exp.Proportions.Assign(hasher, exp.Seed, id))
				}
				return w.Flush()
			})
		},
	}
}
