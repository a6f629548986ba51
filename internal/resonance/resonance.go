// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package resonance detects anniversary recurrences of past life events.
// The date arithmetic is computed locally; the external gateway is never
// consulted for a decision that is deterministic.
package resonance

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/jhelvik/chronicle-mcp/internal/database"
	"github.com/jhelvik/chronicle-mcp/internal/logger"
)

// windowDays is the half-width of the match window around each
// anniversary date
const windowDays = 3

// Result carries the outcome of one detector run
type Result struct {
	Scanned    int `json:"scanned"`
	Candidates int `json:"candidates"`
	Fired      int `json:"fired"`
	Skipped    int `json:"skipped"`
}

// Summary renders a one-line human summary for the job audit record
func (r *Result) Summary() string {
	return fmt.Sprintf("scanned %d events, %d candidates, fired %d, skipped %d already-fired",
		r.Scanned, r.Candidates, r.Fired, r.Skipped)
}

// Detector is the daily anniversary job
type Detector struct {
	db  *gorm.DB
	log *logger.Logger
}

// New creates a detector
func New(db *gorm.DB, log *logger.Logger) *Detector {
	return &Detector{db: db, log: log.With("component", "resonance")}
}

// Run scans the timeline against the current date
func (d *Detector) Run(ctx context.Context) (*Result, error) {
	return d.RunOn(ctx, time.Now())
}

// RunOn scans the timeline against an explicit reference date. Re-running
// on the same day is safe: an anniversary insight is keyed by
// (event_id, fired_on) and is written at most once per event per day. The
// same event fires again on later days inside the window, and again in
// later years; the dedup is per day, not one-shot.
func (d *Detector) RunOn(ctx context.Context, now time.Time) (*Result, error) {
	today := dateOnly(now)
	firedOn := today.Format(time.DateOnly)
	result := &Result{}

	var events []database.LifeEvent
	if err := d.db.WithContext(ctx).
		Where("event_date IS NOT NULL").
		Find(&events).Error; err != nil {
		return nil, fmt.Errorf("failed to load life events: %w", err)
	}
	result.Scanned = len(events)

	for _, event := range events {
		yearsAgo, ok := matchWindow(*event.EventDate, today)
		if !ok {
			continue
		}
		result.Candidates++

		var existing int64
		err := d.db.WithContext(ctx).Model(&database.Insight{}).
			Where("type = ? AND event_id = ? AND fired_on = ?",
				database.InsightAnniversary, event.ID, firedOn).
			Count(&existing).Error
		if err != nil {
			return result, fmt.Errorf("failed to check prior resonance: %w", err)
		}
		if existing > 0 {
			result.Skipped++
			continue
		}

		insight := &database.Insight{
			Text:       renderText(&event, yearsAgo),
			Type:       database.InsightAnniversary,
			Confidence: 1.0,
			EventID:    event.ID,
			FiredOn:    firedOn,
		}
		if err := d.db.WithContext(ctx).Create(insight).Error; err != nil {
			return result, fmt.Errorf("failed to write resonance insight: %w", err)
		}
		result.Fired++
		d.log.Info("resonance fired",
			"event_id", event.ID, "title", event.Title, "years_ago", yearsAgo)
	}

	return result, nil
}

// matchWindow reports whether any k-year anniversary of eventDate falls
// within the window around today, and if so for which k >= 1
func matchWindow(eventDate, today time.Time) (int, bool) {
	eventDate = dateOnly(eventDate)
	if !eventDate.Before(today) {
		return 0, false
	}
	// Only the k bracketing today's year distance can land in a ±3-day
	// window; checking k and k+1 covers the year boundary.
	approx := today.Year() - eventDate.Year()
	for _, k := range []int{approx - 1, approx, approx + 1} {
		if k < 1 {
			continue
		}
		anniversary := eventDate.AddDate(k, 0, 0)
		diff := daysBetween(anniversary, today)
		if diff >= -windowDays && diff <= windowDays {
			return k, true
		}
	}
	return 0, false
}

// daysBetween returns b - a in whole days, both taken at day granularity
func daysBetween(a, b time.Time) int {
	return int(dateOnly(b).Sub(dateOnly(a)).Hours() / 24)
}

func dateOnly(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func renderText(event *database.LifeEvent, yearsAgo int) string {
	unit := "years"
	if yearsAgo == 1 {
		unit = "year"
	}
	return fmt.Sprintf("Around this time %d %s ago: %s (%s)",
		yearsAgo, unit, event.Title, event.EventDate.Format(time.DateOnly))
}
