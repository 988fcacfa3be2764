// Package config provides configuration management for the heap dump
// retention analyzer CLI.
package config

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all configuration for a single analysis run. Values come
// from (in increasing priority) built-in defaults, an optional config
// file, and HEAPDOM_-prefixed environment variables; CLI flags are applied
// on top by the caller.
type Config struct {
	Analysis  AnalysisConfig  `mapstructure:"analysis"`
	History   HistoryConfig   `mapstructure:"history"`
	Archive   ArchiveConfig   `mapstructure:"archive"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Log       LogConfig       `mapstructure:"log"`
}

// AnalysisConfig controls the retention-analysis pipeline itself.
type AnalysisConfig struct {
	StrictMode bool   `mapstructure:"strict_mode"`
	TopN       int    `mapstructure:"top_n"`
	MaxWorker  int    `mapstructure:"max_worker"`
	OutputDir  string `mapstructure:"output_dir"`
}

// HistoryConfig controls the optional local run-history store.
type HistoryConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	DBPath  string `mapstructure:"db_path"`
}

// ArchiveConfig controls the optional Tencent COS artifact upload.
type ArchiveConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	SecretID  string `mapstructure:"secret_id"`
	SecretKey string `mapstructure:"secret_key"`
	Domain    string `mapstructure:"domain"`
	Scheme    string `mapstructure:"scheme"`
}

// TelemetryConfig controls OpenTelemetry tracing of pipeline phases.
type TelemetryConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	ServiceName  string `mapstructure:"service_name"`
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
	OTLPInsecure bool   `mapstructure:"otlp_insecure"`
}

// LogConfig controls structured logging output.
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// Load reads configuration from the given file path, falling back to
// defaults and environment variable overrides if the file is absent.
// An empty configPath searches standard locations; a missing file in
// either case is tolerated.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("heapdom")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/heapdom")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// no config file, defaults + env stand
		} else if os.IsNotExist(err) {
			// explicit path doesn't exist, defaults + env stand
		} else {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix("HEAPDOM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// LoadFromReader loads configuration from raw bytes (useful for testing).
func LoadFromReader(configType string, content []byte) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigType(configType)
	if err := v.ReadConfig(bytes.NewReader(content)); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("analysis.strict_mode", true)
	v.SetDefault("analysis.top_n", 0)
	v.SetDefault("analysis.max_worker", 4)
	v.SetDefault("analysis.output_dir", "./heapdom-out")

	v.SetDefault("history.enabled", false)
	v.SetDefault("history.db_path", "./heapdom-history.db")

	v.SetDefault("archive.enabled", false)
	v.SetDefault("archive.domain", "myqcloud.com")
	v.SetDefault("archive.scheme", "https")

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.service_name", "heapdom-retain")

	v.SetDefault("log.level", "info")
}

// Validate checks configuration invariants that Load cannot express as
// simple defaults.
func (c *Config) Validate() error {
	if c.Analysis.MaxWorker < 1 {
		return fmt.Errorf("analysis.max_worker must be at least 1")
	}
	if c.Analysis.TopN < 0 {
		return fmt.Errorf("analysis.top_n must be non-negative")
	}
	if c.Archive.Enabled && c.Archive.Bucket == "" {
		return fmt.Errorf("archive.bucket is required when archive.enabled is true")
	}
	return nil
}
