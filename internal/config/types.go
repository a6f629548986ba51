// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package config

// Config represents the complete application configuration
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Gateway   GatewayConfig   `mapstructure:"gateway"`
	Jobs      JobsConfig      `mapstructure:"jobs"`
	Report    ReportConfig    `mapstructure:"report"`
	Biography BiographyConfig `mapstructure:"biography"`
	Archive   ArchiveConfig   `mapstructure:"archive"`
	Security  SecurityConfig  `mapstructure:"security"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Type        string `mapstructure:"type"` // "sqlite" or "postgres"
	SQLitePath  string `mapstructure:"sqlite_path"`
	PostgresDSN string `mapstructure:"postgres_dsn"`
}

// GatewayConfig holds extraction gateway settings. The API key itself is
// taken from APIKeyEnv or from the encrypted credential row, never from
// the config file.
type GatewayConfig struct {
	BaseURL            string `mapstructure:"base_url"`
	Model              string `mapstructure:"model"`
	APIKeyEnv          string `mapstructure:"api_key_env"`
	TimeoutSeconds     int    `mapstructure:"timeout_seconds"`      // synchronous request path
	JobTimeoutSeconds  int    `mapstructure:"job_timeout_seconds"`  // background jobs
	MaxRetries         int    `mapstructure:"max_retries"`
}

// JobsConfig holds cron specs for the scheduled jobs
type JobsConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	SweeperSpec   string `mapstructure:"sweeper_spec"`
	ResonanceSpec string `mapstructure:"resonance_spec"`
	ReportSpec    string `mapstructure:"report_spec"`
	ArchiveSpec   string `mapstructure:"archive_spec"`
}

// ReportConfig holds weekly report settings
type ReportConfig struct {
	MinEntries int `mapstructure:"min_entries"`
}

// BiographyConfig holds biography composer settings
type BiographyConfig struct {
	CacheTTLHours int `mapstructure:"cache_ttl_hours"`
	RecentLimit   int `mapstructure:"recent_limit"`
}

// ArchiveConfig holds markdown archive settings
type ArchiveConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// SecurityConfig holds security-related settings
type SecurityConfig struct {
	EncryptionKey string `mapstructure:"encryption_key"` // For gateway API key at rest
}

// LoggingConfig holds logger settings
type LoggingConfig struct {
	Mode string `mapstructure:"mode"` // "dev" or "prod"
}
