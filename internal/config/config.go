// Package config loads abgoat.yaml and applies environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

// FileName is the configuration file looked up from the working directory.
const FileName = "abgoat.yaml"

// Default values. New() is the only place they are applied.
const (
	DefaultDBPath   = "abgoat.db"
	DefaultPort     = 8080
	DefaultLogLevel = "info"

	DefaultAlpha       = 0.05
	DefaultAlternative = "two-sided"

	DefaultPower       = 0.8
	DefaultK           = 1.0
	DefaultGroupNum    = 2
	DefaultSampleRatio = 1.0

	DefaultIterations    = 1000
	DefaultWorkers       = 1
	DefaultProgressEvery = 100
	DefaultTopK          = 3
	DefaultHasher        = "rolling"
	DefaultHistogramBins = 20
)

// Environment variables that override file values.
const (
	EnvDBPath   = "ABG_DB_PATH"
	EnvPort     = "ABG_PORT"
	EnvLogLevel = "ABG_LOG_LEVEL"
	EnvToken    = "ABG_TOKEN"
)

// StoreConfig holds the experiment registry location.
type StoreConfig struct {
	Path string `yaml:"path,omitempty"`
}

// ServerConfig holds HTTP API settings.
type ServerConfig struct {
	Port  int    `yaml:"port,omitempty"`
	Token string `yaml:"token,omitempty"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level string `yaml:"level,omitempty"`
}

// TestConfig holds significance test defaults.
type TestConfig struct {
	Alpha       float64 `yaml:"alpha,omitempty"`
	Alternative string  `yaml:"alternative,omitempty"`
	Correct     *bool   `yaml:"correct,omitempty"`
}

// PlanConfig holds sample size planner defaults.
type PlanConfig struct {
	Power       float64 `yaml:"power,omitempty"`
	K           float64 `yaml:"k,omitempty"`
	GroupNum    int     `yaml:"group_num,omitempty"`
	SampleRatio float64 `yaml:"sample_ratio,omitempty"`
}

// SearchConfig holds rerandomization defaults.
type SearchConfig struct {
	Iterations    int    `yaml:"iterations,omitempty"`
	Workers       int    `yaml:"workers,omitempty"`
	ProgressEvery int    `yaml:"progress_every,omitempty"`
	TopK          int    `yaml:"top_k,omitempty"`
	Hasher        string `yaml:"hasher,omitempty"`
	HistogramBins int    `yaml:"histogram_bins,omitempty"`
}

// Config is the top-level configuration loaded from abgoat.yaml.
type Config struct {
	Store  StoreConfig  `yaml:"store,omitempty"`
	Server ServerConfig `yaml:"server,omitempty"`
	Log    LogConfig    `yaml:"log,omitempty"`
	Test   TestConfig   `yaml:"test,omitempty"`
	Plan   PlanConfig   `yaml:"plan,omitempty"`
	Search SearchConfig `yaml:"search,omitempty"`

	// Path is the file the config was read from, empty for defaults.
	Path string `yaml:"-"`
}

// New returns a Config with every default populated.
func New() *Config {
	return &Config{
		Store:  StoreConfig{Path: DefaultDBPath},
		Server: ServerConfig{Port: DefaultPort},
		Log:    LogConfig{Level: DefaultLogLevel},
		Test: TestConfig{
			Alpha:       DefaultAlpha,
			Alternative: DefaultAlternative,
			Correct:     boolPtr(false),
		},
		Plan: PlanConfig{
			Power:       DefaultPower,
			K:           DefaultK,
			GroupNum:    DefaultGroupNum,
			SampleRatio: DefaultSampleRatio,
		},
		Search: SearchConfig{
			Iterations:    DefaultIterations,
			Workers:       DefaultWorkers,
			ProgressEvery: DefaultProgressEvery,
			TopK:          DefaultTopK,
			Hasher:        DefaultHasher,
			HistogramBins: DefaultHistogramBins,
		},
	}
}

// Load finds abgoat.yaml by walking up from startDir, merges it onto the
// defaults and applies environment overrides. A missing file is not an error.
func Load(startDir string) (*Config, error) {
	cfg := New()

	path, data, err := findConfigFile(startDir)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("loading %s: %w", FileName, err)
	default:
		if err := cfg.merge(data); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
		cfg.Path = path
	}

	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile reads an explicit config file. Unlike Load, the file must exist.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}
	cfg := New()
	if err := cfg.merge(data); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	cfg.Path = path
	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overlays the ABG_* environment variables read through getenv.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	if v := getenv(EnvDBPath); v != "" {
		c.Store.Path = v
	}
	if v := getenv(EnvPort); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil || port <= 0 || port > 65535 {
			return fmt.Errorf("%s: invalid port %q", EnvPort, v)
		}
		c.Server.Port = port
	}
	if v := getenv(EnvLogLevel); v != "" {
		c.Log.Level = v
	}
	if v := getenv(EnvToken); v != "" {
		c.Server.Token = v
	}
	return nil
}

func (c *Config) merge(data []byte) error {
	var file Config
	if err := yaml.Unmarshal(data, &file); err != nil {
		return err
	}
	mergeConfig(c, &file)
	return nil
}

// findConfigFile walks up from dir looking for abgoat.yaml (max 10 levels).
func findConfigFile(dir string) (string, []byte, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return "", nil, fmt.Errorf("resolving path %q: %w", dir, err)
	}
	dir = absDir

	for i := 0; i < 10; i++ {
		p := filepath.Join(dir, FileName)
		data, err := os.ReadFile(p)
		if err == nil {
			return p, data, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return "", nil, fmt.Errorf("reading %q: %w", p, err)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", nil, os.ErrNotExist
}

// mergeConfig overlays non-zero values from src onto dst.
func mergeConfig(dst, src *Config) {
	if src.Store.Path != "" {
		dst.Store.Path = src.Store.Path
	}

	if src.Server.Port != 0 {
		dst.Server.Port = src.Server.Port
	}
	if src.Server.Token != "" {
		dst.Server.Token = src.Server.Token
	}

	if src.Log.Level != "" {
		dst.Log.Level = src.Log.Level
	}

	if src.Test.Alpha != 0 {
		dst.Test.Alpha = src.Test.Alpha
	}
	if src.Test.Alternative != "" {
		dst.Test.Alternative = src.Test.Alternative
	}
	if src.Test.Correct != nil {
		dst.Test.Correct = src.Test.Correct
	}

	if src.Plan.Power != 0 {
		dst.Plan.Power = src.Plan.Power
	}
	if src.Plan.K != 0 {
		dst.Plan.K = src.Plan.K
	}
	if src.Plan.GroupNum != 0 {
		dst.Plan.GroupNum = src.Plan.GroupNum
	}
	if src.Plan.SampleRatio != 0 {
		dst.Plan.SampleRatio = src.Plan.SampleRatio
	}

	if src.Search.Iterations != 0 {
		dst.Search.Iterations = src.Search.Iterations
	}
	if src.Search.Workers != 0 {
		dst.Search.Workers = src.Search.Workers
	}
	if src.Search.ProgressEvery != 0 {
		dst.Search.ProgressEvery = src.Search.ProgressEvery
	}
	if src.Search.TopK != 0 {
		dst.Search.TopK = src.Search.TopK
	}
	if src.Search.Hasher != "" {
		dst.Search.Hasher = src.Search.Hasher
	}
	if src.Search.HistogramBins != 0 {
		dst.Search.HistogramBins = src.Search.HistogramBins
	}
}

func boolPtr(b bool) *bool {
	return &b
}
