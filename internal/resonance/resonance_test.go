// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package resonance

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/jhelvik/chronicle-mcp/internal/database"
	"github.com/jhelvik/chronicle-mcp/internal/logger"
)

func setupDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.Connect(&database.Config{
		Type:       "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "test.db"),
		LogLevel:   gormlogger.Silent,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close(db) })
	require.NoError(t, database.Migrate(db))
	return db
}

func seedEvent(t *testing.T, db *gorm.DB, title string, date time.Time) *database.LifeEvent {
	t.Helper()
	event := &database.LifeEvent{
		Title:     title,
		TitleKey:  title,
		EventDate: &date,
	}
	require.NoError(t, db.Create(event).Error)
	return event
}

func TestMatchWindow(t *testing.T) {
	today := time.Date(2026, 8, 29, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		eventDate time.Time
		wantYears int
		wantMatch bool
	}{
		{"exactly one year ago", today.AddDate(-1, 0, 0), 1, true},
		{"one year ago plus two days", today.AddDate(-1, 0, 0).AddDate(0, 0, -2), 1, true},
		{"one year ago minus three days", today.AddDate(-1, 0, 0).AddDate(0, 0, 3), 1, true},
		{"one year ago minus four days", today.AddDate(-1, 0, 0).AddDate(0, 0, 4), 0, false},
		{"400 days ago", today.AddDate(0, 0, -400), 0, false},
		{"five years ago", today.AddDate(-5, 0, 0), 5, true},
		{"six months ago", today.AddDate(0, -6, 0), 0, false},
		{"today", today, 0, false},
		{"in the future", today.AddDate(0, 1, 0), 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			years, ok := matchWindow(tt.eventDate, today)
			assert.Equal(t, tt.wantMatch, ok)
			assert.Equal(t, tt.wantYears, years)
		})
	}
}

func TestRunFiresOncePerEventPerDay(t *testing.T) {
	db := setupDB(t)
	d := New(db, logger.NewNop())

	today := time.Date(2026, 8, 29, 0, 0, 0, 0, time.UTC)
	event := seedEvent(t, db, "Moved to Oslo", today.AddDate(-2, 0, 0))
	seedEvent(t, db, "Started guitar", today.AddDate(0, -3, 0)) // no match

	result, err := d.RunOn(context.Background(), today)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Scanned)
	assert.Equal(t, 1, result.Candidates)
	assert.Equal(t, 1, result.Fired)

	// Same day again: dedup on (event_id, fired_on), nothing inserted
	again, err := d.RunOn(context.Background(), today)
	require.NoError(t, err)
	assert.Equal(t, 0, again.Fired)
	assert.Equal(t, 1, again.Skipped)

	var insights []database.Insight
	require.NoError(t, db.Where("event_id = ?", event.ID).Find(&insights).Error)
	require.Len(t, insights, 1)
	assert.Equal(t, database.InsightAnniversary, insights[0].Type)
	assert.Equal(t, 1.0, insights[0].Confidence)
	assert.Equal(t, today.Format(time.DateOnly), insights[0].FiredOn)
	assert.Contains(t, insights[0].Text, "Moved to Oslo")
	assert.Contains(t, insights[0].Text, "2 years ago")
}

func TestRunRefiresOnLaterWindowDays(t *testing.T) {
	db := setupDB(t)
	d := New(db, logger.NewNop())

	today := time.Date(2026, 8, 29, 0, 0, 0, 0, time.UTC)
	event := seedEvent(t, db, "First marathon", today.AddDate(-1, 0, 0))

	_, err := d.RunOn(context.Background(), today)
	require.NoError(t, err)

	// Next day is still inside the window, so the event fires again
	// under a new fired_on key
	next, err := d.RunOn(context.Background(), today.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Equal(t, 1, next.Fired)

	var count int64
	require.NoError(t, db.Model(&database.Insight{}).
		Where("event_id = ?", event.ID).Count(&count).Error)
	assert.EqualValues(t, 2, count)
}

func TestRunIgnoresUndatedEvents(t *testing.T) {
	db := setupDB(t)
	d := New(db, logger.NewNop())

	require.NoError(t, db.Create(&database.LifeEvent{Title: "Undated", TitleKey: "undated"}).Error)

	result, err := d.RunOn(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, 0, result.Scanned)
	assert.Equal(t, 0, result.Fired)
}
