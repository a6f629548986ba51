// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package merge

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/jhelvik/chronicle-mcp/internal/database"
	"github.com/jhelvik/chronicle-mcp/internal/gateway"
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

func TestCanonicalName(t *testing.T) {
	assert.Equal(t, "alice", CanonicalName("Alice"))
	assert.Equal(t, "alice", CanonicalName("  ALICE  "))
	assert.Equal(t, "mary jane", CanonicalName("Mary Jane"))
	assert.Equal(t, "", CanonicalName("   "))
}

func TestSentimentScore(t *testing.T) {
	assert.Equal(t, 7.0, SentimentScore("positive"))
	assert.Equal(t, 7.0, SentimentScore(" Positive "))
	assert.Equal(t, 3.0, SentimentScore("negative"))
	assert.Equal(t, 5.0, SentimentScore("neutral"))
	assert.Equal(t, 5.0, SentimentScore(""))
	assert.Equal(t, 5.0, SentimentScore("ambivalent"))
}

func TestParseDate(t *testing.T) {
	d := ParseDate("2025-04-12")
	require.NotNil(t, d)
	assert.Equal(t, 2025, d.Year())

	assert.Nil(t, ParseDate(""))
	assert.Nil(t, ParseDate("next Tuesday"))
	assert.Nil(t, ParseDate("12/04/2025"))
}

func TestUpsertPerson_NewThenMention(t *testing.T) {
	db := setupDB(t)
	m := NewMerger(db, logger.NewNop())
	ctx := context.Background()

	require.NoError(t, m.UpsertPerson(ctx, gateway.PersonMention{
		Name: "Alice", Relationship: "friend", Sentiment: "positive",
	}))

	var person database.PersonRecord
	require.NoError(t, db.First(&person, "canonical_name = ?", "alice").Error)
	assert.Equal(t, 1, person.MentionCount)
	assert.Equal(t, 7.0, person.SentimentAvg)
	assert.Equal(t, "friend", person.Relationship)
	assert.Equal(t, "Alice", person.DisplayName)

	// Second mention with different casing merges into the same record
	require.NoError(t, m.UpsertPerson(ctx, gateway.PersonMention{
		Name: " ALICE ", Sentiment: "negative",
	}))

	var count int64
	db.Model(&database.PersonRecord{}).Count(&count)
	assert.Equal(t, int64(1), count)

	require.NoError(t, db.First(&person, "canonical_name = ?", "alice").Error)
	assert.Equal(t, 2, person.MentionCount)
	assert.Equal(t, 3.0, person.SentimentAvg)
	// Empty relationship in the new mention keeps the stored one
	assert.Equal(t, "friend", person.Relationship)
}

func TestApply_WritesAllSections(t *testing.T) {
	db := setupDB(t)
	m := NewMerger(db, logger.NewNop())
	ctx := context.Background()

	entry := &database.RawEntry{Text: "long day", TextHash: "h1", Source: "journal"}
	require.NoError(t, db.Create(entry).Error)

	result := &gateway.ExtractionResult{
		Category:    "journal",
		Title:       "A long day",
		Summary:     "Worked late, dinner with Alice.",
		MoodScore:   6,
		EnergyScore: 4,
		People: []gateway.PersonMention{
			{Name: "Alice", Sentiment: "positive"},
		},
		LifeEvents: []gateway.LifeEventDetail{
			{Title: "Started new job", EventDate: "2026-08-01", Category: "career"},
		},
		Insights: []gateway.InsightDetail{
			{Text: "Tends to overwork on Mondays", Confidence: 0.7},
		},
		PersonaUpdates: &gateway.PersonaUpdate{RecentFocus: "career change"},
	}

	require.NoError(t, m.Apply(ctx, entry.ID, result))

	var entity database.ExtractedEntity
	require.NoError(t, db.First(&entity, "entry_id = ?", entry.ID).Error)
	assert.Equal(t, "A long day", entity.Title)
	assert.Equal(t, database.StringList{"Alice"}, entity.PeopleMentioned)

	var event database.LifeEvent
	require.NoError(t, db.First(&event, "title_key = ?", "started new job").Error)
	assert.Equal(t, database.StringList{entry.ID}, event.SourceEntryIDs)
	require.NotNil(t, event.EventDate)

	var insight database.Insight
	require.NoError(t, db.First(&insight, "type = ?", database.InsightObservation).Error)
	assert.Equal(t, "Tends to overwork on Mondays", insight.Text)

	var persona database.PersonaSummary
	require.NoError(t, db.First(&persona, "singleton_key = ?", database.PersonaSingletonKey).Error)
	assert.Equal(t, "career change", persona.RecentFocus)
}

func TestApply_TaskFields(t *testing.T) {
	db := setupDB(t)
	m := NewMerger(db, logger.NewNop())

	entry := &database.RawEntry{Text: "todo", TextHash: "h2", Source: "note"}
	require.NoError(t, db.Create(entry).Error)

	result := &gateway.ExtractionResult{
		Category:    "note",
		IsTask:      true,
		TaskTitle:   "Renew passport",
		TaskDueDate: "2026-10-01",
	}
	require.NoError(t, m.Apply(context.Background(), entry.ID, result))

	var entity database.ExtractedEntity
	require.NoError(t, db.First(&entity, "entry_id = ?", entry.ID).Error)
	assert.True(t, entity.IsTask)
	assert.Equal(t, "Renew passport", entity.Title)
	assert.Equal(t, database.TaskStatusPending, entity.TaskStatus)
	require.NotNil(t, entity.TaskDue)
	assert.Equal(t, "2026-10-01", entity.TaskDue.Format("2006-01-02"))
}

func TestApplyChat_ShouldExtractFalseWritesNothing(t *testing.T) {
	db := setupDB(t)
	m := NewMerger(db, logger.NewNop())

	require.NoError(t, m.ApplyChat(context.Background(), "entry-1",
		&gateway.ChatExtraction{ShouldExtract: false}))

	var count int64
	db.Model(&database.ExtractedEntity{}).Count(&count)
	assert.Equal(t, int64(0), count)
}

func TestApplyChat_WritesEntityAndPeople(t *testing.T) {
	db := setupDB(t)
	m := NewMerger(db, logger.NewNop())

	entry := &database.RawEntry{Text: "chat", TextHash: "h3", Source: "chat"}
	require.NoError(t, db.Create(entry).Error)

	chat := &gateway.ChatExtraction{
		ShouldExtract: true,
		MoodScore:     4,
		IsTask:        true,
		TaskTitle:     "Call the dentist",
		TaskDueDate:   "2026-09-01",
		PeopleMentioned: []gateway.PersonMention{
			{Name: "Bob", Sentiment: "neutral"},
		},
		Insights: []gateway.InsightDetail{
			{Text: "Anxious about appointments", Confidence: 0.6},
		},
	}
	require.NoError(t, m.ApplyChat(context.Background(), entry.ID, chat))

	var entity database.ExtractedEntity
	require.NoError(t, db.First(&entity, "entry_id = ?", entry.ID).Error)
	assert.Equal(t, "chat", entity.Category)
	assert.True(t, entity.IsTask)
	assert.Equal(t, "Call the dentist", entity.Title)

	var person database.PersonRecord
	require.NoError(t, db.First(&person, "canonical_name = ?", "bob").Error)
	assert.Equal(t, 1, person.MentionCount)

	var insight database.Insight
	require.NoError(t, db.First(&insight, "type = ?", database.InsightChatObservation).Error)
	assert.Equal(t, "Anxious about appointments", insight.Text)
}

func TestAppendLifeEvent_BlankTitleSkipped(t *testing.T) {
	db := setupDB(t)
	m := NewMerger(db, logger.NewNop())

	require.NoError(t, m.AppendLifeEvent(context.Background(), "e1",
		gateway.LifeEventDetail{Title: "   "}))

	var count int64
	db.Model(&database.LifeEvent{}).Count(&count)
	assert.Equal(t, int64(0), count)
}

func TestUpdatePersona_PreservesExistingFields(t *testing.T) {
	db := setupDB(t)
	m := NewMerger(db, logger.NewNop())
	ctx := context.Background()

	require.NoError(t, m.UpdatePersona(ctx, &gateway.PersonaUpdate{
		CoreValues: "curiosity", RecentFocus: "running",
	}))
	require.NoError(t, m.UpdatePersona(ctx, &gateway.PersonaUpdate{
		RecentFocus: "recovery",
	}))

	var persona database.PersonaSummary
	require.NoError(t, db.First(&persona, "singleton_key = ?", database.PersonaSingletonKey).Error)
	assert.Equal(t, "curiosity", persona.CoreValues, "empty update field must not clear the stored value")
	assert.Equal(t, "recovery", persona.RecentFocus)

	var count int64
	db.Model(&database.PersonaSummary{}).Count(&count)
	assert.Equal(t, int64(1), count)
}
