// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package database

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func TestConnect_SQLite(t *testing.T) {
	tempDir := t.TempDir()
	dbPath := filepath.Join(tempDir, "test.db")

	cfg := &Config{
		Type:       "sqlite",
		SQLitePath: dbPath,
		LogLevel:   logger.Silent,
	}

	db, err := Connect(cfg)
	require.NoError(t, err)
	require.NotNil(t, db)

	err = Ping(db)
	assert.NoError(t, err)

	err = Close(db)
	assert.NoError(t, err)
}

func TestConnect_InvalidType(t *testing.T) {
	cfg := &Config{
		Type:     "mysql",
		LogLevel: logger.Silent,
	}

	db, err := Connect(cfg)
	assert.Error(t, err)
	assert.Nil(t, db)
	assert.Contains(t, err.Error(), "unsupported database type")
}

func TestEnsureSQLiteDir(t *testing.T) {
	tempDir := t.TempDir()
	dbPath := filepath.Join(tempDir, "subdir", "another", "test.db")

	err := ensureSQLiteDir(dbPath)
	require.NoError(t, err)

	dir := filepath.Dir(dbPath)
	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestMigrate(t *testing.T) {
	db := openTestDB(t)

	for _, table := range []string{
		"chronicle_raw_entries",
		"chronicle_entities",
		"chronicle_people",
		"chronicle_life_events",
		"chronicle_insights",
		"chronicle_weekly_reports",
		"chronicle_persona",
		"chronicle_job_runs",
		"chronicle_job_leases",
		"chronicle_gateway_credentials",
	} {
		assert.True(t, db.Migrator().HasTable(table), "missing table %s", table)
	}
}

func TestRawEntry_BeforeCreateAssignsID(t *testing.T) {
	db := openTestDB(t)

	entry := &RawEntry{Text: "hello", TextHash: "abc", Source: "test"}
	require.NoError(t, db.Create(entry).Error)
	assert.NotEmpty(t, entry.ID)

	var loaded RawEntry
	require.NoError(t, db.First(&loaded, "id = ?", entry.ID).Error)
	assert.Equal(t, "hello", loaded.Text)
}

func TestStringList_RoundTrip(t *testing.T) {
	db := openTestDB(t)

	entity := &ExtractedEntity{
		EntryID:         "e1",
		Category:        "journal",
		Title:           "A day",
		PeopleMentioned: StringList{"Alice", "Bob"},
		CreatedAt:       time.Now(),
	}
	require.NoError(t, db.Create(entity).Error)

	var loaded ExtractedEntity
	require.NoError(t, db.First(&loaded, "id = ?", entity.ID).Error)
	assert.Equal(t, StringList{"Alice", "Bob"}, loaded.PeopleMentioned)
}

func TestPersonaSummary_SingletonKeyUnique(t *testing.T) {
	db := openTestDB(t)

	require.NoError(t, db.Create(&PersonaSummary{Biography: "first"}).Error)
	err := db.Create(&PersonaSummary{Biography: "second"}).Error
	assert.Error(t, err, "second persona row with the same singleton key must be rejected")
}

// openTestDB opens a migrated per-test SQLite database
func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := Connect(&Config{Type: "sqlite", SQLitePath: dbPath, LogLevel: logger.Silent})
	require.NoError(t, err)
	t.Cleanup(func() { _ = Close(db) })
	require.NoError(t, Migrate(db))
	return db
}
