// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.NotNil(t, cfg)

	assert.Equal(t, "sqlite", cfg.Database.Type)
	assert.Equal(t, "localhost", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 30, cfg.Gateway.TimeoutSeconds)
	assert.Equal(t, 120, cfg.Gateway.JobTimeoutSeconds)
	assert.Equal(t, 5, cfg.Report.MinEntries)
	assert.Equal(t, 24, cfg.Biography.CacheTTLHours)
	assert.Equal(t, "@hourly", cfg.Jobs.SweeperSpec)
	assert.True(t, cfg.Jobs.Enabled)
	assert.False(t, cfg.Archive.Enabled)
}

func TestLoadFromPath(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "config.json")

	content := `{
		"server": {"host": "0.0.0.0", "port": 9090},
		"database": {"type": "sqlite", "sqlite_path": "/tmp/chronicle-test.db"},
		"gateway": {"model": "gpt-4o", "timeout_seconds": 15},
		"report": {"min_entries": 3}
	}`
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0644))

	cfg, err := LoadFromPath(configPath)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "/tmp/chronicle-test.db", cfg.Database.SQLitePath)
	assert.Equal(t, "gpt-4o", cfg.Gateway.Model)
	assert.Equal(t, 15, cfg.Gateway.TimeoutSeconds)
	// Defaults still apply where the file is silent
	assert.Equal(t, 120, cfg.Gateway.JobTimeoutSeconds)
	assert.Equal(t, 3, cfg.Report.MinEntries)
}

func TestLoadFromPath_MissingFile(t *testing.T) {
	_, err := LoadFromPath("/nonexistent/config.json")
	assert.Error(t, err)
}

func TestValidate_BadDatabaseType(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "config.json")

	content := `{"database": {"type": "mysql"}}`
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0644))

	_, err := LoadFromPath(configPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database.type")
}

func TestValidate_PostgresRequiresDSN(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "config.json")

	content := `{"database": {"type": "postgres"}}`
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0644))

	_, err := LoadFromPath(configPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres_dsn")
}

func TestValidate_BadTimeout(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "config.json")

	content := `{"gateway": {"timeout_seconds": -1}}`
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0644))

	_, err := LoadFromPath(configPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timeout_seconds")
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := DefaultConfig()

	t.Setenv("CHRONICLE_DB_TYPE", "postgres")
	t.Setenv("CHRONICLE_DB_DSN", "host=localhost user=chronicle")
	t.Setenv("CHRONICLE_GATEWAY_MODEL", "gpt-4o")
	t.Setenv("CHRONICLE_LOG_MODE", "prod")

	ApplyEnvOverrides(cfg)

	assert.Equal(t, "postgres", cfg.Database.Type)
	assert.Equal(t, "host=localhost user=chronicle", cfg.Database.PostgresDSN)
	assert.Equal(t, "gpt-4o", cfg.Gateway.Model)
	assert.Equal(t, "prod", cfg.Logging.Mode)
}
