// Package config holds the ambient runtime configuration (storage backend,
// data directory, logging) and the analysis option set (SPEC_FULL.md §6.2),
// loaded with viper + godotenv in the same style as the teacher repo.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/coderisk/coupler/internal/models"
)

// Config holds the ambient settings needed to run the CLI: where
// per-repository state lives and which relational backend to use. It is
// deliberately small — the teacher's GitHub/API/Budget/Sync sub-configs
// belonged to out-of-scope collaborators (LLM calls, GitHub sync) and are
// dropped rather than carried forward unused.
type Config struct {
	// DataDir is $DATA_DIR from spec.md §6.1: the root under which every
	// repository's mirror, store, and columnar tables live.
	DataDir string `yaml:"data_dir"`

	// Storage selects and configures the relational store (C8).
	Storage StorageConfig `yaml:"storage"`

	// LogDir is where per-run extraction logs are written (§6.1).
	LogDir string `yaml:"log_dir"`

	// Verbose toggles debug-level logging.
	Verbose bool `yaml:"-"`
}

// StorageConfig selects between the two relational backends implemented in
// internal/storage. SQLite is the default "embedded store" spec.md §4.8
// describes; Postgres is offered as a pluggable alternative for larger
// deployments, reusing the unified schema verbatim.
type StorageConfig struct {
	Type        string `yaml:"type"` // "sqlite" (default) or "postgres"
	SQLitePath  string `yaml:"sqlite_path"`
	PostgresDSN string `yaml:"postgres_dsn"`
}

// Default returns the documented default configuration.
func Default() *Config {
	home, _ := os.UserHomeDir()
	dataDir := filepath.Join(home, ".coupler")
	return &Config{
		DataDir: dataDir,
		Storage: StorageConfig{
			Type:       "sqlite",
			SQLitePath: filepath.Join(dataDir, "coupler.sqlite"),
		},
		LogDir: filepath.Join(dataDir, "logs"),
	}
}

// Load reads configuration from an explicit path, or from the standard
// search locations (./.coupler/config.yaml, ./config.yaml,
// ~/.coupler/config.yaml) if
// path is empty, layering environment variable overrides (CODERISK_*-style
// prefix, here COUPLER_*) on top, exactly as the teacher's config.Load does.
func Load(path string) (*Config, error) {
	loadEnvFiles()

	v := viper.New()
	v.SetConfigType("yaml")

	cfg := Default()
	v.SetDefault("data_dir", cfg.DataDir)
	v.SetDefault("storage", cfg.Storage)
	v.SetDefault("log_dir", cfg.LogDir)

	v.SetEnvPrefix("COUPLER")
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".coupler")
		v.AddConfigPath(".")
		home, _ := os.UserHomeDir()
		v.AddConfigPath(filepath.Join(home, ".coupler"))
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if dsn := os.Getenv("COUPLER_POSTGRES_DSN"); dsn != "" {
		cfg.Storage.Type = "postgres"
		cfg.Storage.PostgresDSN = dsn
	}

	return cfg, nil
}

func loadEnvFiles() {
	for _, f := range []string{".env.local", ".env"} {
		if _, err := os.Stat(f); err == nil {
			_ = godotenv.Load(f)
		}
	}
	home, _ := os.UserHomeDir()
	homeEnv := filepath.Join(home, ".coupler", ".env")
	if _, err := os.Stat(homeEnv); err == nil {
		_ = godotenv.Load(homeEnv)
	}
}

// Save writes the configuration back to path, creating parent directories
// as needed.
func (c *Config) Save(path string) error {
	v := viper.New()
	v.SetConfigType("yaml")
	v.Set("data_dir", c.DataDir)
	v.Set("storage", c.Storage)
	v.Set("log_dir", c.LogDir)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// RepoDir returns the per-repository root described in spec.md §6.1.
func (c *Config) RepoDir(repoID string) string {
	return filepath.Join(c.DataDir, "repos", repoID)
}

// DecodeAnalysisOptions unmarshals raw (typically parsed YAML/JSON) option
// keys into an AnalysisOptions record, starting from the documented
// defaults and rejecting unknown keys — per SPEC_FULL.md §9's design note
// that configuration drift must be caught at validation time, not
// silently accepted.
func DecodeAnalysisOptions(raw map[string]interface{}) (models.AnalysisOptions, error) {
	opts := models.DefaultAnalysisOptions()

	dec, err := mapstructureDecoder(&opts)
	if err != nil {
		return opts, err
	}
	if err := dec.Decode(raw); err != nil {
		return opts, fmt.Errorf("decode analysis options: %w", err)
	}
	return opts, nil
}
