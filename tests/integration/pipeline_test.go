// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package integration exercises the full capture -> extract -> merge ->
// consolidate pipeline against a real sqlite store, with the extraction
// gateway stubbed out.
package integration

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/jhelvik/chronicle-mcp/internal/biography"
	"github.com/jhelvik/chronicle-mcp/internal/database"
	"github.com/jhelvik/chronicle-mcp/internal/gateway"
	"github.com/jhelvik/chronicle-mcp/internal/ingest"
	"github.com/jhelvik/chronicle-mcp/internal/jobs"
	"github.com/jhelvik/chronicle-mcp/internal/logger"
	"github.com/jhelvik/chronicle-mcp/internal/merge"
	"github.com/jhelvik/chronicle-mcp/internal/report"
	"github.com/jhelvik/chronicle-mcp/internal/resonance"
	"github.com/jhelvik/chronicle-mcp/internal/sweeper"
)

// scriptedGateway returns a fixed extraction per call and canned prose
type scriptedGateway struct {
	results []*gateway.ExtractionResult
	next    int
}

func (s *scriptedGateway) ExtractEntry(ctx context.Context, text string, meta gateway.Meta) (*gateway.ExtractionResult, error) {
	if s.next >= len(s.results) {
		return nil, errors.New("no scripted result left")
	}
	r := s.results[s.next]
	s.next++
	return r, nil
}

func (s *scriptedGateway) ExtractChat(ctx context.Context, text string) (*gateway.ChatExtraction, error) {
	return &gateway.ChatExtraction{ShouldExtract: false}, nil
}

func (s *scriptedGateway) SummarizeWeek(ctx context.Context, req gateway.WeeklySummaryRequest) (json.RawMessage, error) {
	return json.RawMessage(`{"highlights":["a full week"]}`), nil
}

func (s *scriptedGateway) ComposeBiography(ctx context.Context, req gateway.BiographyRequest) (string, error) {
	return "A life, consolidated.", nil
}

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

func TestPipelineEndToEnd(t *testing.T) {
	db := setupDB(t)
	log := logger.NewNop()
	ctx := context.Background()

	// Three entries mention the same person with varying casing and the
	// same life event twice; the write path keeps them loose and the
	// sweep reconciles.
	eventDate := "2025-06-01"
	gw := &scriptedGateway{results: []*gateway.ExtractionResult{
		{
			Category: "personal", Title: "Dinner with Alice",
			People: []gateway.PersonMention{{Name: "Alice", Relationship: "sister", Sentiment: "positive"}},
			LifeEvents: []gateway.LifeEventDetail{{
				Title: "Moved to Oslo", EventDate: eventDate, Category: "relocation",
			}},
		},
		{
			Category: "personal", Title: "Call with alice",
			People: []gateway.PersonMention{{Name: "alice ", Sentiment: "neutral"}},
		},
		{
			Category: "personal", Title: "Postcard from ALICE",
			People: []gateway.PersonMention{{Name: "ALICE", Sentiment: "positive"}},
			LifeEvents: []gateway.LifeEventDetail{{
				Title: "moved to oslo", EventDate: eventDate, Category: "relocation",
			}},
		},
	}}

	merger := merge.NewMerger(db, log)
	ingestor := ingest.NewIngestor(db, gw, merger, log, ingest.Options{})

	for _, text := range []string{
		"Had dinner with Alice tonight.",
		"Long call with Alice about the move.",
		"Got a postcard from Alice!",
	} {
		_, err := ingestor.Ingest(ctx, text, "journal")
		require.NoError(t, err)
	}

	// Synchronous people upsert already resolved the casing variants
	var people []database.PersonRecord
	require.NoError(t, db.Find(&people).Error)
	require.Len(t, people, 1)
	assert.Equal(t, "alice", people[0].CanonicalName)
	assert.Equal(t, 3, people[0].MentionCount)
	assert.Equal(t, "sister", people[0].Relationship)

	// Life events were appended unconditionally: two rows for one event
	var eventCount int64
	require.NoError(t, db.Model(&database.LifeEvent{}).Count(&eventCount).Error)
	assert.EqualValues(t, 2, eventCount)

	// Consolidation collapses the duplicate event
	runner := jobs.NewRunner(db, log)
	sw := sweeper.New(db, log)
	require.NoError(t, runner.Run(ctx, jobs.JobConsolidation, func(ctx context.Context) (string, error) {
		return sw.Run(ctx).Summary(), nil
	}))

	var events []database.LifeEvent
	require.NoError(t, db.Find(&events).Error)
	require.Len(t, events, 1)
	assert.Equal(t, "moved to oslo", events[0].TitleKey)

	// The run is audited
	var run database.JobRun
	require.NoError(t, db.Where("job_name = ?", jobs.JobConsolidation).First(&run).Error)
	assert.Equal(t, database.JobStatusCompleted, run.Status)

	// A year later the move resonates as an anniversary, exactly once
	detector := resonance.New(db, log)
	anniversary := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	result, err := detector.RunOn(ctx, anniversary)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Fired)
	result, err = detector.RunOn(ctx, anniversary)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Fired)

	var insight database.Insight
	require.NoError(t, db.Where("type = ?", database.InsightAnniversary).First(&insight).Error)
	assert.Equal(t, events[0].ID, insight.EventID)
	assert.Contains(t, insight.Text, "1 year")

	// A second sweep over the settled state removes nothing
	second := sw.Run(ctx)
	assert.Zero(t, second.Total())
}

func TestWeeklyReportAndBiographyOverPipeline(t *testing.T) {
	db := setupDB(t)
	log := logger.NewNop()
	ctx := context.Background()

	gw := &scriptedGateway{}
	composer := biography.New(db, gw, log, biography.Options{})
	builder := report.New(db, gw, composer, log, report.Options{})

	weekStart := time.Date(2026, 8, 17, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		require.NoError(t, db.Create(&database.RawEntry{
			Text:      "a day worth noting",
			TextHash:  ingest.HashText("a day worth noting") + string(rune('a'+i)),
			Source:    "journal",
			CreatedAt: weekStart.Add(time.Duration(i*24) * time.Hour),
		}).Error)
	}

	outcome, err := builder.BuildWeek(ctx, weekStart)
	require.NoError(t, err)
	assert.Equal(t, report.StatusCreated, outcome.Status)

	// The post-report refresh already populated the biography cache
	text, valid, err := composer.Cached(ctx)
	require.NoError(t, err)
	assert.True(t, valid)
	assert.Equal(t, "A life, consolidated.", text)

	// Re-running the week is a no-op
	again, err := builder.BuildWeek(ctx, weekStart)
	require.NoError(t, err)
	assert.Equal(t, report.StatusAlreadyExists, again.Status)
}
