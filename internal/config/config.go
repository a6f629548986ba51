// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

const (
	// DefaultConfigDir is the default configuration directory
	DefaultConfigDir = ".chronicle/configs"
	// DefaultConfigFile is the default configuration filename
	DefaultConfigFile = "config.json"
)

// Load reads configuration from ~/.chronicle/configs/config.json
func Load() (*Config, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get user home directory: %w", err)
	}

	configPath := filepath.Join(homeDir, DefaultConfigDir)

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("json")
	v.AddConfigPath(configPath)

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found, use defaults
			return loadFromDefaults(v)
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// LoadFromPath loads configuration from a specific path
func LoadFromPath(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// DefaultConfig returns a config built purely from defaults
func DefaultConfig() *Config {
	v := viper.New()
	setDefaults(v)
	cfg, _ := loadFromDefaults(v)
	return cfg
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	homeDir, _ := os.UserHomeDir()

	// Server defaults
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8080)

	// Database defaults
	v.SetDefault("database.type", "sqlite")
	v.SetDefault("database.sqlite_path", filepath.Join(homeDir, ".chronicle/db/chronicle.db"))

	// Gateway defaults
	v.SetDefault("gateway.base_url", "https://api.openai.com")
	v.SetDefault("gateway.model", "gpt-4o-mini")
	v.SetDefault("gateway.api_key_env", "CHRONICLE_GATEWAY_API_KEY")
	v.SetDefault("gateway.timeout_seconds", 30)
	v.SetDefault("gateway.job_timeout_seconds", 120)
	v.SetDefault("gateway.max_retries", 2)

	// Job cadences: sweeper hourly, resonance daily at 08:00, report
	// Monday mornings, archive nightly.
	v.SetDefault("jobs.enabled", true)
	v.SetDefault("jobs.sweeper_spec", "@hourly")
	v.SetDefault("jobs.resonance_spec", "0 8 * * *")
	v.SetDefault("jobs.report_spec", "0 9 * * 1")
	v.SetDefault("jobs.archive_spec", "0 3 * * *")

	// Report defaults
	v.SetDefault("report.min_entries", 5)

	// Biography defaults
	v.SetDefault("biography.cache_ttl_hours", 24)
	v.SetDefault("biography.recent_limit", 50)

	// Archive defaults
	v.SetDefault("archive.enabled", false)
	v.SetDefault("archive.path", filepath.Join(homeDir, ".chronicle/archive"))

	// Logging defaults
	v.SetDefault("logging.mode", "dev")
}

// loadFromDefaults creates a config from default values
func loadFromDefaults(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal default config: %w", err)
	}
	return &cfg, nil
}

// validate checks if the configuration is valid
func validate(cfg *Config) error {
	if cfg.Database.Type != "sqlite" && cfg.Database.Type != "postgres" {
		return fmt.Errorf("database.type must be 'sqlite' or 'postgres', got '%s'", cfg.Database.Type)
	}
	if cfg.Database.Type == "sqlite" && cfg.Database.SQLitePath == "" {
		return fmt.Errorf("database.sqlite_path is required when database.type is 'sqlite'")
	}
	if cfg.Database.Type == "postgres" && cfg.Database.PostgresDSN == "" {
		return fmt.Errorf("database.postgres_dsn is required when database.type is 'postgres'")
	}
	if cfg.Server.Port < 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 0 and 65535, got %d", cfg.Server.Port)
	}
	if cfg.Gateway.TimeoutSeconds <= 0 {
		return fmt.Errorf("gateway.timeout_seconds must be positive, got %d", cfg.Gateway.TimeoutSeconds)
	}
	if cfg.Gateway.JobTimeoutSeconds <= 0 {
		return fmt.Errorf("gateway.job_timeout_seconds must be positive, got %d", cfg.Gateway.JobTimeoutSeconds)
	}
	if cfg.Gateway.MaxRetries < 0 {
		return fmt.Errorf("gateway.max_retries must not be negative, got %d", cfg.Gateway.MaxRetries)
	}
	if cfg.Report.MinEntries < 1 {
		return fmt.Errorf("report.min_entries must be at least 1, got %d", cfg.Report.MinEntries)
	}
	if cfg.Biography.CacheTTLHours <= 0 {
		return fmt.Errorf("biography.cache_ttl_hours must be positive, got %d", cfg.Biography.CacheTTLHours)
	}
	if cfg.Archive.Enabled && cfg.Archive.Path == "" {
		return fmt.Errorf("archive.path is required when archive.enabled is true")
	}
	return nil
}

// ApplyEnvOverrides applies environment variable overrides to the config
func ApplyEnvOverrides(cfg *Config) {
	if v := os.Getenv("CHRONICLE_DB_TYPE"); v != "" {
		cfg.Database.Type = v
	}
	if v := os.Getenv("CHRONICLE_DB_PATH"); v != "" {
		cfg.Database.SQLitePath = v
	}
	if v := os.Getenv("CHRONICLE_DB_DSN"); v != "" {
		cfg.Database.PostgresDSN = v
	}
	if v := os.Getenv("CHRONICLE_GATEWAY_BASE_URL"); v != "" {
		cfg.Gateway.BaseURL = v
	}
	if v := os.Getenv("CHRONICLE_GATEWAY_MODEL"); v != "" {
		cfg.Gateway.Model = v
	}
	if v := os.Getenv("CHRONICLE_ENCRYPTION_KEY"); v != "" {
		cfg.Security.EncryptionKey = v
	}
	if v := os.Getenv("CHRONICLE_LOG_MODE"); v != "" {
		cfg.Logging.Mode = v
	}
}
