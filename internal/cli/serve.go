package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/gkobilansky/abgoat/internal/server"
	"github.com/gkobilansky/abgoat/internal/store"
)

var port int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	Long: `Start the abgoat HTTP API server.

The server provides:
  - Sample size, significance, rerandomization and analysis endpoints
  - The experiment registry and an assignment lookup
  - Prometheus metrics at /metrics and a health check at /health

Example:
  abgoat serve --port 8080`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVarP(&port, "port", "p", 0, "port to listen on (default from config or ABG_PORT, 8080)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	if !cmd.Flags().Changed("port") {
		port = cfg.Server.Port
	}
	hasher, err := resolveHasher(cfg.Search.Hasher)
	if err != nil {
		return err
	}

	// Open database
	s, err := store.Open(dbPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer s.Close()

	srv := server.New(s, port, server.Options{
		Logger:        logger,
		Token:         cfg.Server.Token,
		TokenFile:     getTokenFilePath(),
		Hasher:        hasher,
		Workers:       cfg.Search.Workers,
		TopK:          cfg.Search.TopK,
		Iterations:    cfg.Search.Iterations,
		HistogramBins: cfg.Search.HistogramBins,
	})

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return srv.ListenAndServe(ctx, true)
}
