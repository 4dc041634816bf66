package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"

	"github.com/gkobilansky/abgoat/internal/bucketing"
	"github.com/gkobilansky/abgoat/internal/dataset"
	"github.com/gkobilansky/abgoat/internal/store"
)

// withStore opens the database, executes the function, and handles cleanup.
func withStore(fn func(*store.SQLiteStore) error) error {
	s, err := store.Open(dbPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer s.Close()

	return fn(s)
}

// getExperiment wraps ErrNotFound in a message naming the experiment.
func getExperiment(cmd *cobra.Command, s store.Store, name string) (*store.Experiment, error) {
	exp, err := s.GetExperiment(cmd.Context(), name)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("experiment '%s' not found", name)
		}
		return nil, fmt.Errorf("failed to get experiment: %w", err)
	}
	return exp, nil
}

func loadData(path string) ([]dataset.Row, error) {
	if path == "" {
		return nil, fmt.Errorf("--data is required")
	}
	rows, err := dataset.LoadCSVFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", path, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%s has no data rows", path)
	}
	return rows, nil
}

// resolveProportions parses --proportions, or splits evenly across --groups.
func resolveProportions(spec string, groups int) (bucketing.Proportions, error) {
	if spec != "" {
		return bucketing.ParseProportions(spec)
	}
	if groups < 2 {
		return nil, fmt.Errorf("need at least 2 groups, got %d", groups)
	}
	return bucketing.EvenSplit(groups), nil
}

func resolveHasher(name string) (bucketing.Hasher, error) {
	h, ok := bucketing.HasherByName(name)
	if !ok {
		return nil, fmt.Errorf("unknown hasher %q (use rolling or sha1)", name)
	}
	return h, nil
}

func writeJSONOutput(w io.Writer, v any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

func checkFormat(format string, allowed ...string) error {
	for _, a := range allowed {
		if format == a {
			return nil
		}
	}
	return fmt.Errorf("invalid format %q", format)
}

func formatNumber(n int) string {
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}
	if n < 1000000 {
		return fmt.Sprintf("%d,%03d", n/1000, n%1000)
	}
	return fmt.Sprintf("%d,%03d,%03d", n/1000000, (n/1000)%1000, n%1000)
}

func formatFloat(v float64) string {
	switch {
	case math.IsNaN(v):
		return "N/A"
	case math.IsInf(v, 1):
		return "+Inf"
	case math.IsInf(v, -1):
		return "-Inf"
	}
	return fmt.Sprintf("%.4f", v)
}

func formatScore(v *float64) string {
	if v == nil {
		return "-"
	}
	return formatFloat(*v)
}

func isTerminal() bool {
	fi, err := os.Stdin.Stat()
	return err == nil && fi.Mode()&os.ModeCharDevice != 0
}

// promptSelect asks the user to pick one of items. Interrupting exits quietly.
func promptSelect(label string, items []string) (int, error) {
	prompt := promptui.Select{
		Label: label,
		Items: items,
		Size:  len(items),
	}

	idx, _, err := prompt.Run()
	if err != nil {
		if err == promptui.ErrInterrupt {
			os.Exit(0)
		}
		return 0, err
	}
	return idx, nil
}
