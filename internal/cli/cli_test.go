package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runCmd executes a freshly built command and captures its output.
func runCmd(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

// useTempDB points the commands at a fresh database for the test.
func useTempDB(t *testing.T) {
	t.Helper()
	old := dbPath
	dbPath = filepath.Join(t.TempDir(), "abgoat.db")
	t.Cleanup(func() { dbPath = old })
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func usersCSV(n int) string {
	var b strings.Builder
	b.WriteString("user_id,revenue,clicks,views\n")
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "u%d,%d,%d,%d\n", i, 10+(i*7)%13, 1+i%5, 5+i%3)
	}
	return b.String()
}

func variantCSV() string {
	var b strings.Builder
	b.WriteString("id,variant,revenue,converted\n")
	for i := 0; i < 40; i++ {
		fmt.Fprintf(&b, "c%d,control,%d,%d\n", i, 10+i%3, boolInt(i%4 == 0))
		fmt.Fprintf(&b, "t%d,treatment,%d,%d\n", i, 20+i%3, boolInt(i%2 == 0))
	}
	return b.String()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func TestPlanCommand(t *testing.T) {
	out, err := runCmd(t, newPlanCmd(),
		"--type", "mean", "--baseline", "10", "--variance", "4",
		"--mde-start", "0.1", "--mde-end", "0.2", "--mde-step", "0.05", "--traffic", "10")
	require.NoError(t, err)

	assert.Contains(t, out, "MDE")
	assert.Contains(t, out, "10.0%")
	assert.Contains(t, out, "63")
	assert.Contains(t, out, "15.0%")
}

func TestPlanCommand_JSONFromData(t *testing.T) {
	data := writeFile(t, "history.csv", usersCSV(100))

	out, err := runCmd(t, newPlanCmd(), "--data", data, "--metric", "clicks/views", "--traffic", "1000", "--format", "json")
	require.NoError(t, err)

	var resp struct {
		Params struct {
			MetricType string  `json:"metric_type"`
			Baseline   float64 `json:"baseline"`
		} `json:"params"`
		Rows []struct {
			ControlSampleSize int `json:"control_sample_size"`
		} `json:"rows"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ratio", resp.Params.MetricType)
	assert.Greater(t, resp.Params.Baseline, 0.0)
	require.Len(t, resp.Rows, 10)
	assert.Greater(t, resp.Rows[0].ControlSampleSize, resp.Rows[9].ControlSampleSize)
}

func TestPlanCommand_InvalidParams(t *testing.T) {
	_, err := runCmd(t, newPlanCmd(), "--type", "proportion", "--baseline", "2", "--traffic", "10")
	assert.Error(t, err)

	_, err = runCmd(t, newPlanCmd(), "--type", "mean", "--baseline", "10", "--variance", "4", "--traffic", "10", "--format", "xml")
	assert.ErrorContains(t, err, "invalid format")
}

func TestTestCommand_GroupColumn(t *testing.T) {
	data := writeFile(t, "results.csv", variantCSV())

	out, err := runCmd(t, newTestCmd(), "--data", data, "--metric", "revenue", "--metric", "converted:proportion", "--correct")
	require.NoError(t, err)

	assert.Contains(t, out, "GROUPS: control=40 treatment=40")
	assert.Contains(t, out, "ADJ P")
	assert.Contains(t, out, "revenue")
	assert.Contains(t, out, "significant")
}

func TestTestCommand_Files(t *testing.T) {
	control := writeFile(t, "a.csv", "revenue\n10\n11\n12\n10\n11\n")
	treatment := writeFile(t, "b.csv", "revenue\n20\n21\n22\n20\n21\n")

	out, err := runCmd(t, newTestCmd(), "--control-data", control, "--treatment-data", treatment, "--metric", "revenue", "--format", "json")
	require.NoError(t, err)

	var report struct {
		Comparisons []struct {
			Treatment   string `json:"treatment"`
			Significant bool   `json:"significant"`
		} `json:"comparisons"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	require.Len(t, report.Comparisons, 1)
	assert.Equal(t, "treatment", report.Comparisons[0].Treatment)
	assert.True(t, report.Comparisons[0].Significant)

	_, err = runCmd(t, newTestCmd(), "--control-data", control, "--metric", "revenue")
	assert.ErrorContains(t, err, "must be used together")
}

func TestTestCommand_Counts(t *testing.T) {
	out, err := runCmd(t, newTestCmd(), "--counts", "100/1000, 150/1000")
	require.NoError(t, err)
	assert.Contains(t, out, "two-proportion-z")
	assert.Contains(t, out, "RESULT: significant")

	_, err = runCmd(t, newTestCmd(), "--counts", "100/1000")
	assert.Error(t, err)
	_, err = runCmd(t, newTestCmd(), "--counts", "a/1000,1/2")
	assert.Error(t, err)
}

func TestGroupsFromColumn(t *testing.T) {
	rows, err := loadData(writeFile(t, "g.csv", "id,arm\n1,b\n2,control\n3,a\n4,b\n"))
	require.NoError(t, err)

	p, err := groupsFromColumn(rows, "arm", "control")
	require.NoError(t, err)
	assert.Equal(t, []string{"control", "b", "a"}, p.Names())
	require.NoError(t, p.Validate())

	_, err = groupsFromColumn(rows, "arm", "baseline")
	assert.ErrorContains(t, err, "no rows in control group")

	_, err = groupsFromColumn(rows, "missing", "control")
	assert.ErrorContains(t, err, "not found")
}

func TestRegistryWorkflow(t *testing.T) {
	useTempDB(t)
	data := writeFile(t, "users.csv", usersCSV(200))

	// Search and save.
	out, err := runCmd(t, newRerandomizeCmd(),
		"--data", data, "--id-column", "user_id",
		"--metric", "revenue", "--metric", "clicks/views",
		"--proportions", "control:50,treatment:50",
		"--iterations", "20", "--workers", "4", "--quiet",
		"--save", "checkout")
	require.NoError(t, err)
	assert.Contains(t, out, "BEST SEED: rr")
	assert.Contains(t, out, "SCORE DISTRIBUTION")
	assert.Contains(t, out, "<- best")
	assert.Contains(t, out, "Saved as experiment 'checkout'.")

	// List shows it.
	listOut, err := runCmd(t, &cobra.Command{RunE: runList})
	require.NoError(t, err)
	assert.Contains(t, listOut, "checkout")
	assert.Contains(t, listOut, "DRAFT")

	// Assign is stable and matches export.
	assignOut, err := runCmd(t, newAssignCmd(), "checkout", "u1", "u2")
	require.NoError(t, err)
	again, err := runCmd(t, newAssignCmd(), "checkout", "u1", "u2")
	require.NoError(t, err)
	assert.Equal(t, assignOut, again)

	exportOut, err := runCmd(t, newExportCmd(), "checkout", "--data", data)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(exportOut), "\n")
	require.Len(t, lines, 201)
	assert.Equal(t, "user_id,revenue,clicks,views,group", lines[0])
	u1Group := lines[2][strings.LastIndex(lines[2], ",")+1:]
	assert.Contains(t, assignOut, u1Group)

	jsonOut, err := runCmd(t, newExportCmd(), "checkout", "--data", data, "--format", "json")
	require.NoError(t, err)
	var exported jsonExport
	require.NoError(t, json.Unmarshal([]byte(jsonOut), &exported))
	assert.Equal(t, "checkout", exported.Experiment)
	assert.Len(t, exported.Rows, 200)
	assert.Equal(t, 10.0, exported.Rows[0]["revenue"])

	// Results reuse the stored metrics.
	resultsOut, err := runCmd(t, newResultsCmd(), "checkout", "--data", data)
	require.NoError(t, err)
	assert.Contains(t, resultsOut, "SEED: rr")
	assert.Contains(t, resultsOut, "clicks/views")

	// Saving again replaces the seed in place.
	_, err = runCmd(t, newRerandomizeCmd(),
		"--data", data, "--id-column", "user_id", "--metric", "revenue",
		"--proportions", "control:50,treatment:50",
		"--iterations", "5", "--quiet", "--save", "checkout")
	require.NoError(t, err)

	// A different split cannot be saved over it.
	_, err = runCmd(t, newRerandomizeCmd(),
		"--data", data, "--id-column", "user_id", "--metric", "revenue",
		"--groups", "3", "--iterations", "5", "--quiet", "--save", "checkout")
	assert.ErrorContains(t, err, "uses groups")

	// Lifecycle.
	out, err = runCmd(t, newStateCmd(), "checkout", "completed")
	require.NoError(t, err)
	assert.Contains(t, out, "now completed")
	_, err = runCmd(t, newStateCmd(), "checkout", "running")
	assert.ErrorContains(t, err, "cannot be reopened")
	_, err = runCmd(t, newStateCmd(), "checkout", "exploded")
	assert.ErrorContains(t, err, "invalid state")

	_, err = runCmd(t, newDeleteCmd(), "checkout")
	require.NoError(t, err)
	_, err = runCmd(t, newAssignCmd(), "checkout", "u1")
	assert.ErrorContains(t, err, "not found")
}

func TestCreateCommand(t *testing.T) {
	useTempDB(t)

	out, err := runCmd(t, newCreateCmd(), "pricing", "--seed", "rr123", "--groups", "3", "--metric", "revenue")
	require.NoError(t, err)
	assert.Contains(t, out, "Created experiment 'pricing' with seed rr123")
	assert.Contains(t, out, "control: 34%")
	assert.Contains(t, out, "treatment_2: 33%")

	_, err = runCmd(t, newCreateCmd(), "pricing")
	assert.ErrorContains(t, err, "already exists")

	_, err = runCmd(t, newCreateCmd(), "bad", "--proportions", "a:60,b:60")
	assert.Error(t, err)
}

func TestRerandomizeCommand_JSON(t *testing.T) {
	data := writeFile(t, "users.csv", usersCSV(100))

	out, err := runCmd(t, newRerandomizeCmd(), "--data", data, "--id-column", "user_id", "--metric", "revenue", "--iterations", "10", "--format", "json")
	require.NoError(t, err)

	var resp struct {
		Result struct {
			BestSeed  string    `json:"best_seed"`
			AllScores []float64 `json:"all_scores"`
		} `json:"result"`
		Histogram  []map[string]any `json:"histogram"`
		Experiment any              `json:"experiment"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Len(t, resp.Result.AllScores, 10)
	assert.Len(t, resp.Histogram, 20)
	assert.Nil(t, resp.Experiment)
}

func TestTokenCommand(t *testing.T) {
	useTempDB(t)

	_, err := runCmd(t, tokenCmdForTest())
	assert.ErrorContains(t, err, "no server running")

	require.NoError(t, os.WriteFile(getTokenFilePath(), []byte("abc123\n"), 0o600))
	out, err := runCmd(t, tokenCmdForTest())
	require.NoError(t, err)
	assert.Contains(t, out, "/login?token=abc123")
	assert.Contains(t, out, "Bearer abc123")
}

func tokenCmdForTest() *cobra.Command {
	return &cobra.Command{RunE: runToken}
}

func TestFormatHelpers(t *testing.T) {
	assert.Equal(t, "1,234", formatNumber(1234))
	assert.Equal(t, "1,234,567", formatNumber(1234567))
	assert.Equal(t, "N/A", formatFloat(math.NaN()))
	assert.Equal(t, "<0.0001", formatPValue(1e-9))
	assert.Equal(t, "-", formatScore(nil))
}
