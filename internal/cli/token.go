package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Show the login URL with the server's access token",
	Long: `Show the login URL carrying the running server's access token.

The token authorizes registry writes over HTTP: saving seeds, changing state
and deleting experiments. Use this when you've scrolled past the startup
message.

Example:
  abgoat token`,
	RunE: runToken,
}

func init() {
	rootCmd.AddCommand(tokenCmd)
}

func runToken(cmd *cobra.Command, args []string) error {
	tokenFile := getTokenFilePath()

	data, err := os.ReadFile(tokenFile)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("no server running. Start with: abgoat serve")
		}
		return fmt.Errorf("failed to read token file: %w", err)
	}

	token := strings.TrimSpace(string(data))
	if token == "" {
		return fmt.Errorf("token file is empty. Restart the server with: abgoat serve")
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Login: http://localhost:%d/login?token=%s\n", cfg.Server.Port, token)
	fmt.Fprintln(out)
	fmt.Fprintf(out, "API clients can send: Authorization: Bearer %s\n", token)
	return nil
}

// getTokenFilePath returns the path to the token file
func getTokenFilePath() string {
	// Store token file alongside the database
	dir := filepath.Dir(dbPath)
	return filepath.Join(dir, ".abgoat-token")
}
