// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package database

import (
	"fmt"

	"gorm.io/gorm"
)

// AllModels returns all database models for migration
func AllModels() []interface{} {
	return []interface{}{
		&RawEntry{},
		&ExtractedEntity{},
		&PersonRecord{},
		&LifeEvent{},
		&Insight{},
		&WeeklyReport{},
		&PersonaSummary{},
		&JobRun{},
		&JobLease{},
		&GatewayCredential{},
	}
}

// Migrate runs database migrations for all models. Schema ownership lives
// here, outside the request path: handlers never alter tables.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(AllModels()...); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return CreateIndexes(db)
}

// CreateIndexes creates composite indexes the sweeper's grouping passes
// lean on.
func CreateIndexes(db *gorm.DB) error {
	indexes := []struct {
		name string
		sql  string
	}{
		{"idx_entities_title_category", "CREATE INDEX IF NOT EXISTS idx_entities_title_category ON chronicle_entities(title, category)"},
		{"idx_life_events_identity", "CREATE INDEX IF NOT EXISTS idx_life_events_identity ON chronicle_life_events(title_key, event_date)"},
		{"idx_insights_event_fired", "CREATE INDEX IF NOT EXISTS idx_insights_event_fired ON chronicle_insights(event_id, fired_on, type)"},
	}

	for _, idx := range indexes {
		if err := db.Exec(idx.sql).Error; err != nil {
			return fmt.Errorf("failed to create index %s: %w", idx.name, err)
		}
	}
	return nil
}

// DropAllTables drops all tables (use with caution!)
func DropAllTables(db *gorm.DB) error {
	for _, model := range AllModels() {
		if err := db.Migrator().DropTable(model); err != nil {
			return fmt.Errorf("failed to drop table: %w", err)
		}
	}
	return nil
}
