package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gkobilansky/abgoat/internal/store"
)

func init() {
	rootCmd.AddCommand(newStateCmd())
	rootCmd.AddCommand(newDeleteCmd())
}

func newStateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "state <experiment> <draft|running|paused|completed>",
		Short: "Change the state of an experiment",
		Long: `Move an experiment through its lifecycle. A completed experiment cannot
be reopened.

Example:
  abgoat state checkout running`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			state, ok := store.ParseState(args[1])
			if !ok {
				return fmt.Errorf("invalid state %q (use draft, running, paused or completed)", args[1])
			}

			return withStore(func(s *store.SQLiteStore) error {
				exp, err := getExperiment(cmd, s, name)
				if err != nil {
					return err
				}
				if !store.CanTransition(exp.State, state) {
					return fmt.Errorf("experiment '%s' is completed and cannot be reopened", name)
				}

				if err := s.UpdateExperimentState(cmd.Context(), name, state); err != nil {
					return fmt.Errorf("failed to update state: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Experiment '%s' is now %s.\n", name, state)
				return nil
			})
		},
	}
}

func newDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <experiment>",
		Short: "Delete an experiment and its saved candidates",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(func(s *store.SQLiteStore) error {
				if err := s.DeleteExperiment(cmd.Context(), args[0]); err != nil {
					if errors.Is(err, store.ErrNotFound) {
						return fmt.Errorf("experiment '%s' not found", args[0])
					}
					return fmt.Errorf("failed to delete experiment: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted experiment '%s'.\n", args[0])
				return nil
			})
		},
	}
}
