package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/gkobilansky/abgoat/internal/config"
)

var (
	dbPath     string
	configPath string
	logLevel   string

	// Populated by the root pre-run. The defaults keep commands usable when
	// they are executed on their own in tests.
	cfg    = config.New()
	logger = zap.NewNop()
)

var rootCmd = &cobra.Command{
	Use:   "abgoat",
	Short: "abgoat - A/B experiment statistics from the command line",
	Long: `abgoat plans, balances and analyzes A/B experiments.

Size an experiment with 'plan', pick a balanced assignment seed with
'rerandomize', look up assignments with 'assign' and test the outcome with
'test' or 'results'. Experiments are kept in an embedded SQLite registry.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", getEnvOrDefault(config.EnvDBPath, config.DefaultDBPath), "database path")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default: abgoat.yaml in this or a parent directory)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", getEnvOrDefault(config.EnvLogLevel, config.DefaultLogLevel), "log level (debug, info, warn, error)")
}

// setup loads configuration and builds the logger. Flags win over the config
// file, which wins over defaults.
func setup(cmd *cobra.Command, args []string) error {
	var err error
	if configPath != "" {
		cfg, err = config.LoadFile(configPath)
	} else {
		cfg, err = config.Load(".")
	}
	if err != nil {
		return err
	}

	if !cmd.Flags().Changed("db") {
		dbPath = cfg.Store.Path
	}
	if !cmd.Flags().Changed("log-level") {
		logLevel = cfg.Log.Level
	}

	logger, err = newLogger(logLevel)
	if err != nil {
		return err
	}
	if cfg.Path != "" {
		logger.Debug("loaded config", zap.String("path", cfg.Path))
	}
	return nil
}

// newLogger builds a console logger on stderr so command output on stdout
// stays machine readable.
func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	zc := zap.NewProductionConfig()
	zc.Level = lvl
	zc.Encoding = "console"
	zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zc.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	zc.OutputPaths = []string{"stderr"}
	zc.DisableStacktrace = true
	return zc.Build()
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
