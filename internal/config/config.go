package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all settings for a work graph build.
type Config struct {
	// Loader database (where the sync layer staged raw rows)
	Loader LoaderConfig `yaml:"loader" mapstructure:"loader"`

	// Sink configuration (where derived edges/links/scores go)
	Sink SinkConfig `yaml:"sink" mapstructure:"sink"`

	// Optional Neo4j mirror for the edge set
	Neo4j Neo4jConfig `yaml:"neo4j" mapstructure:"neo4j"`

	// Edge ledger (new vs. re-discovered edge tracking)
	Ledger LedgerConfig `yaml:"ledger" mapstructure:"ledger"`

	// Build settings
	Build BuildConfig `yaml:"build" mapstructure:"build"`

	// Path to the scoring config YAML (empty = built-in defaults)
	ScoringPath string `yaml:"scoring_path" mapstructure:"scoring_path"`
}

type LoaderConfig struct {
	DSN string `yaml:"dsn" mapstructure:"dsn"`
}

type SinkConfig struct {
	Type      string `yaml:"type" mapstructure:"type"` // "postgres", "sqlite"
	DSN       string `yaml:"dsn" mapstructure:"dsn"`
	LocalPath string `yaml:"local_path" mapstructure:"local_path"`
}

type Neo4jConfig struct {
	URI      string `yaml:"uri" mapstructure:"uri"`
	User     string `yaml:"user" mapstructure:"user"`
	Password string `yaml:"password" mapstructure:"password"`
}

type LedgerConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

type BuildConfig struct {
	HeuristicDaysWindow int           `yaml:"heuristic_days_window" mapstructure:"heuristic_days_window"`
	HeuristicConfidence float64       `yaml:"heuristic_confidence" mapstructure:"heuristic_confidence"`
	Workers             int           `yaml:"workers" mapstructure:"workers"`
	Timeout             time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// Default returns default configuration.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	return &Config{
		Sink: SinkConfig{
			Type:      "sqlite",
			LocalPath: filepath.Join(homeDir, ".workgraph", "local.db"),
		},
		Ledger: LedgerConfig{
			Path: filepath.Join(homeDir, ".workgraph", "ledger.db"),
		},
		Build: BuildConfig{
			HeuristicDaysWindow: 7,
			HeuristicConfidence: 0.3,
			Workers:             4,
			Timeout:             30 * time.Minute,
		},
	}
}

// Load loads configuration from file, environment, and .env files.
func Load(path string) (*Config, error) {
	loadEnvFiles()

	v := viper.New()
	v.SetConfigType("yaml")

	cfg := Default()
	v.SetDefault("loader", cfg.Loader)
	v.SetDefault("sink", cfg.Sink)
	v.SetDefault("neo4j", cfg.Neo4j)
	v.SetDefault("ledger", cfg.Ledger)
	v.SetDefault("build", cfg.Build)
	v.SetDefault("scoring_path", cfg.ScoringPath)

	v.SetEnvPrefix("WORKGRAPH")
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".workgraph")
		v.AddConfigPath(".")
		homeDir, _ := os.UserHomeDir()
		v.AddConfigPath(filepath.Join(homeDir, ".workgraph"))
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// Config file not found is OK, use defaults
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyEnvOverrides(cfg)

	return cfg, nil
}

// loadEnvFiles loads .env files in order of precedence.
func loadEnvFiles() {
	envFiles := []string{
		".env.local",
		".env",
	}
	for _, file := range envFiles {
		if _, err := os.Stat(file); err == nil {
			godotenv.Load(file)
		}
	}

	homeDir, _ := os.UserHomeDir()
	homeEnvFile := filepath.Join(homeDir, ".workgraph", ".env")
	if _, err := os.Stat(homeEnvFile); err == nil {
		godotenv.Load(homeEnvFile)
	}
}

// applyEnvOverrides applies well-known environment variables on top of the
// file-based configuration.
func applyEnvOverrides(cfg *Config) {
	if dsn := os.Getenv("WORKGRAPH_LOADER_DSN"); dsn != "" {
		cfg.Loader.DSN = dsn
	}
	if dsn := os.Getenv("WORKGRAPH_SINK_DSN"); dsn != "" {
		cfg.Sink.DSN = dsn
		cfg.Sink.Type = "postgres"
	}
	if uri := os.Getenv("NEO4J_URI"); uri != "" {
		cfg.Neo4j.URI = uri
	}
	if user := os.Getenv("NEO4J_USER"); user != "" {
		cfg.Neo4j.User = user
	}
	if pass := os.Getenv("NEO4J_PASSWORD"); pass != "" {
		cfg.Neo4j.Password = pass
	}
	if window := os.Getenv("WORKGRAPH_HEURISTIC_WINDOW"); window != "" {
		if days, err := strconv.Atoi(window); err == nil {
			cfg.Build.HeuristicDaysWindow = days
		}
	}
	if conf := os.Getenv("WORKGRAPH_HEURISTIC_CONFIDENCE"); conf != "" {
		if val, err := strconv.ParseFloat(conf, 64); err == nil {
			cfg.Build.HeuristicConfidence = val
		}
	}
}
