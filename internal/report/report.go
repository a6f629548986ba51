// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package report builds the weekly digest. A report is written once per
// week window; re-building an existing week is a success that writes
// nothing.
package report

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/jhelvik/chronicle-mcp/internal/database"
	"github.com/jhelvik/chronicle-mcp/internal/faults"
	"github.com/jhelvik/chronicle-mcp/internal/gateway"
	"github.com/jhelvik/chronicle-mcp/internal/logger"
)

// Outcome status values
const (
	StatusCreated          = "created"
	StatusAlreadyExists    = "already_exists"
	StatusInsufficientData = "insufficient_data"
)

// defaultMinEntries is the smallest window worth summarizing
const defaultMinEntries = 5

// digestSnippet bounds how much of each entry feeds the digest
const digestSnippet = 200

// Outcome describes one builder invocation
type Outcome struct {
	WeekStart string `json:"week_start"`
	WeekEnd   string `json:"week_end"`
	Status    string `json:"status"`
	Entries   int    `json:"entries"`
	ReportID  string `json:"report_id,omitempty"`
}

// Summary renders a one-line human summary for the job audit record
func (o *Outcome) Summary() string {
	return fmt.Sprintf("week %s: %s (%d entries)", o.WeekStart, o.Status, o.Entries)
}

// Refresher is the best-effort post-report hook, satisfied by the
// biography composer
type Refresher interface {
	Refresh(ctx context.Context) (string, error)
}

// Options tunes the builder
type Options struct {
	// MinEntries is the insufficient-data threshold
	MinEntries int
}

// Builder assembles weekly reports
type Builder struct {
	db        *gorm.DB
	extractor gateway.Extractor
	refresher Refresher
	log       *logger.Logger
	opts      Options
}

// New creates a builder. refresher may be nil.
func New(db *gorm.DB, extractor gateway.Extractor, refresher Refresher, log *logger.Logger, opts Options) *Builder {
	if opts.MinEntries <= 0 {
		opts.MinEntries = defaultMinEntries
	}
	return &Builder{
		db:        db,
		extractor: extractor,
		refresher: refresher,
		log:       log.With("component", "report"),
		opts:      opts,
	}
}

// Run builds the report for the most recent completed week
func (b *Builder) Run(ctx context.Context) (*Outcome, error) {
	return b.BuildWeek(ctx, PreviousWeekStart(time.Now()))
}

// BuildWeek builds the report for the week starting at weekStart (taken at
// day granularity, conventionally a Monday).
func (b *Builder) BuildWeek(ctx context.Context, weekStart time.Time) (*Outcome, error) {
	start := dateOnly(weekStart)
	end := start.AddDate(0, 0, 7)
	outcome := &Outcome{
		WeekStart: start.Format(time.DateOnly),
		WeekEnd:   end.AddDate(0, 0, -1).Format(time.DateOnly),
	}

	// Idempotency gate: one report per week_start, ever
	var existing database.WeeklyReport
	err := b.db.WithContext(ctx).
		Where("week_start = ?", outcome.WeekStart).
		First(&existing).Error
	if err == nil {
		outcome.Status = StatusAlreadyExists
		outcome.ReportID = existing.ID
		return outcome, nil
	}
	if err != gorm.ErrRecordNotFound {
		return nil, &faults.PersistenceError{Store: "weekly_reports", Err: err}
	}

	var entries []database.RawEntry
	err = b.db.WithContext(ctx).
		Where("deleted = ? AND created_at >= ? AND created_at < ?", false, start, end).
		Order("created_at ASC").
		Find(&entries).Error
	if err != nil {
		return nil, &faults.PersistenceError{Store: "raw_entries", Err: err}
	}
	outcome.Entries = len(entries)

	if len(entries) < b.opts.MinEntries {
		outcome.Status = StatusInsufficientData
		b.log.Info("report skipped, not enough entries",
			"week_start", outcome.WeekStart, "entries", len(entries), "min", b.opts.MinEntries)
		return outcome, nil
	}

	req := gateway.WeeklySummaryRequest{
		WeekStart:       outcome.WeekStart,
		WeekEnd:         outcome.WeekEnd,
		EntriesDigest:   entriesDigest(entries),
		PreviousReport:  b.previousReport(ctx, outcome.WeekStart),
		PersonaSnapshot: b.personaSnapshot(ctx),
	}
	payload, err := b.extractor.SummarizeWeek(ctx, req)
	if err != nil {
		return nil, err
	}

	row := &database.WeeklyReport{
		WeekStart:  outcome.WeekStart,
		WeekEnd:    outcome.WeekEnd,
		ReportJSON: string(payload),
	}
	if err := b.db.WithContext(ctx).Create(row).Error; err != nil {
		return nil, &faults.PersistenceError{Store: "weekly_reports", Err: err}
	}
	outcome.Status = StatusCreated
	outcome.ReportID = row.ID

	notice := &database.Insight{
		Text:       fmt.Sprintf("Your weekly report for the week of %s is ready", outcome.WeekStart),
		Type:       database.InsightWeeklyReport,
		Confidence: 1.0,
	}
	if err := b.db.WithContext(ctx).Create(notice).Error; err != nil {
		b.log.Warn("failed to write report notification insight", "error", err)
	}

	// The report is already committed; a failed biography refresh only
	// gets logged
	if b.refresher != nil {
		if _, err := b.refresher.Refresh(ctx); err != nil {
			b.log.Warn("post-report biography refresh failed", "error", err)
		}
	}

	b.log.Info("weekly report created",
		"week_start", outcome.WeekStart, "entries", outcome.Entries, "report_id", row.ID)
	return outcome, nil
}

// previousReport returns the payload of the most recent report before
// weekStart, empty if there is none. Failures degrade to "no continuity"
// rather than failing the build.
func (b *Builder) previousReport(ctx context.Context, weekStart string) string {
	var prev database.WeeklyReport
	err := b.db.WithContext(ctx).
		Where("week_start < ?", weekStart).
		Order("week_start DESC").
		First(&prev).Error
	if err != nil {
		if err != gorm.ErrRecordNotFound {
			b.log.Warn("failed to load previous report", "error", err)
		}
		return ""
	}
	return prev.ReportJSON
}

func (b *Builder) personaSnapshot(ctx context.Context) string {
	var persona database.PersonaSummary
	err := b.db.WithContext(ctx).
		Where("singleton_key = ?", database.PersonaSingletonKey).
		First(&persona).Error
	if err != nil {
		if err != gorm.ErrRecordNotFound {
			b.log.Warn("failed to load persona snapshot", "error", err)
		}
		return ""
	}
	var parts []string
	if persona.CoreValues != "" {
		parts = append(parts, "Core values: "+persona.CoreValues)
	}
	if persona.RecentFocus != "" {
		parts = append(parts, "Recent focus: "+persona.RecentFocus)
	}
	if persona.RelationshipsSummary != "" {
		parts = append(parts, "Relationships: "+persona.RelationshipsSummary)
	}
	return strings.Join(parts, "\n")
}

func entriesDigest(entries []database.RawEntry) string {
	var b strings.Builder
	for _, e := range entries {
		text := strings.TrimSpace(e.Text)
		if len(text) > digestSnippet {
			text = text[:digestSnippet] + "..."
		}
		fmt.Fprintf(&b, "- %s [%s]: %s\n", e.CreatedAt.Format(time.DateOnly), e.Source, text)
	}
	return strings.TrimSpace(b.String())
}

// PreviousWeekStart returns the Monday of the most recent completed week
func PreviousWeekStart(now time.Time) time.Time {
	today := dateOnly(now)
	// Monday of the current week, then back one week
	offset := (int(today.Weekday()) + 6) % 7
	return today.AddDate(0, 0, -offset-7)
}

func dateOnly(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
