// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package sweeper restores the dedup and referential invariants that the
// write path deliberately leaves loose. Every pass is an idempotent
// grouping over one store: running it twice over unchanged data deletes
// nothing the second time. There are no locks; a row missed because it was
// in flight is caught by the next scheduled run.
package sweeper

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/jhelvik/chronicle-mcp/internal/database"
	"github.com/jhelvik/chronicle-mcp/internal/logger"
)

// Result carries the per-table removed-row counts of one sweep
type Result struct {
	LifeEvents int `json:"life_events"`
	People     int `json:"people"`
	Entities   int `json:"entities"`
	RawEntries int `json:"raw_entries"`
	Insights   int `json:"insights"`
	Orphans    int `json:"orphans"`
	Failures   int `json:"failures"`
}

// Total returns the total number of rows removed
func (r *Result) Total() int {
	return r.LifeEvents + r.People + r.Entities + r.RawEntries + r.Insights + r.Orphans
}

// Summary renders a one-line human summary for the job audit record
func (r *Result) Summary() string {
	return fmt.Sprintf("removed %d rows (life_events=%d people=%d entities=%d raw_entries=%d insights=%d orphans=%d), %d pass failures",
		r.Total(), r.LifeEvents, r.People, r.Entities, r.RawEntries, r.Insights, r.Orphans, r.Failures)
}

// Sweeper is the consolidation batch job
type Sweeper struct {
	db  *gorm.DB
	log *logger.Logger
}

// New creates a sweeper
func New(db *gorm.DB, log *logger.Logger) *Sweeper {
	return &Sweeper{db: db, log: log.With("component", "sweeper")}
}

// Run executes all passes in order. A failing pass is logged and counted,
// and the remaining passes still run.
func (s *Sweeper) Run(ctx context.Context) *Result {
	result := &Result{}

	passes := []struct {
		name string
		fn   func(context.Context) (int, error)
		dst  *int
	}{
		{"life_events", s.dedupLifeEvents, &result.LifeEvents},
		{"people", s.dedupPeople, &result.People},
		{"entities", s.dedupEntities, &result.Entities},
		{"raw_entries", s.dedupRawEntries, &result.RawEntries},
		{"insights", s.dedupInsights, &result.Insights},
		{"orphans", s.sweepOrphans, &result.Orphans},
	}

	for _, pass := range passes {
		removed, err := pass.fn(ctx)
		if err != nil {
			result.Failures++
			s.log.Error("sweep pass failed", "pass", pass.name, "error", err)
			continue
		}
		*pass.dst = removed
		if removed > 0 {
			s.log.Info("sweep pass removed rows", "pass", pass.name, "removed", removed)
		}
	}

	return result
}

// dedupLifeEvents keeps the newest event per (title_key, event_date).
// Including the date in the identity keeps two distinct events that
// coincidentally share a title (two "Promotion"s in different years)
// from merging.
func (s *Sweeper) dedupLifeEvents(ctx context.Context) (int, error) {
	var events []database.LifeEvent
	if err := s.db.WithContext(ctx).
		Order("created_at DESC").
		Find(&events).Error; err != nil {
		return 0, fmt.Errorf("failed to load life events: %w", err)
	}

	seen := make(map[string]bool)
	var losers []string
	for _, e := range events {
		key := e.TitleKey
		if e.EventDate != nil {
			key += "|" + e.EventDate.Format(time.DateOnly)
		}
		if seen[key] {
			losers = append(losers, e.ID)
			continue
		}
		seen[key] = true
	}

	return s.deleteByID(ctx, &database.LifeEvent{}, losers)
}

// dedupPeople keeps the most-recently-mentioned record per canonical name
// and folds each loser's mention_count into the survivor before deleting
// it, so no mention is lost in the merge.
func (s *Sweeper) dedupPeople(ctx context.Context) (int, error) {
	var people []database.PersonRecord
	if err := s.db.WithContext(ctx).
		Order("last_mentioned DESC").
		Find(&people).Error; err != nil {
		return 0, fmt.Errorf("failed to load people: %w", err)
	}

	survivors := make(map[string]*database.PersonRecord)
	folded := make(map[string]int)
	var losers []string
	for idx := range people {
		p := &people[idx]
		if survivor, ok := survivors[p.CanonicalName]; ok {
			folded[survivor.ID] += p.MentionCount
			losers = append(losers, p.ID)
			continue
		}
		survivors[p.CanonicalName] = p
	}

	for survivorID, extra := range folded {
		err := s.db.WithContext(ctx).Model(&database.PersonRecord{}).
			Where("id = ?", survivorID).
			Update("mention_count", gorm.Expr("mention_count + ?", extra)).Error
		if err != nil {
			return 0, fmt.Errorf("failed to fold mention counts: %w", err)
		}
	}

	return s.deleteByID(ctx, &database.PersonRecord{}, losers)
}

// dedupEntities keeps the newest entity per (title, category)
func (s *Sweeper) dedupEntities(ctx context.Context) (int, error) {
	var entities []database.ExtractedEntity
	if err := s.db.WithContext(ctx).
		Order("created_at DESC").
		Find(&entities).Error; err != nil {
		return 0, fmt.Errorf("failed to load entities: %w", err)
	}

	seen := make(map[string]bool)
	var losers []string
	for _, e := range entities {
		key := e.Title + "|" + e.Category
		if seen[key] {
			losers = append(losers, e.ID)
			continue
		}
		seen[key] = true
	}

	return s.deleteByID(ctx, &database.ExtractedEntity{}, losers)
}

// dedupRawEntries keeps the newest entry per text hash. Derived entities
// of a deleted entry are deleted in the same pass: the stores are not
// referentially enforced by the database, the cascade is explicit here.
func (s *Sweeper) dedupRawEntries(ctx context.Context) (int, error) {
	var entries []database.RawEntry
	if err := s.db.WithContext(ctx).
		Order("created_at DESC").
		Find(&entries).Error; err != nil {
		return 0, fmt.Errorf("failed to load raw entries: %w", err)
	}

	seen := make(map[string]bool)
	var losers []string
	for _, e := range entries {
		if seen[e.TextHash] {
			losers = append(losers, e.ID)
			continue
		}
		seen[e.TextHash] = true
	}

	if len(losers) == 0 {
		return 0, nil
	}

	if err := s.db.WithContext(ctx).
		Where("entry_id IN ?", losers).
		Delete(&database.ExtractedEntity{}).Error; err != nil {
		return 0, fmt.Errorf("failed to cascade entity deletes: %w", err)
	}

	return s.deleteByID(ctx, &database.RawEntry{}, losers)
}

// dedupInsights keeps the newest insight per exact trimmed text
func (s *Sweeper) dedupInsights(ctx context.Context) (int, error) {
	var insights []database.Insight
	if err := s.db.WithContext(ctx).
		Order("created_at DESC").
		Find(&insights).Error; err != nil {
		return 0, fmt.Errorf("failed to load insights: %w", err)
	}

	seen := make(map[string]bool)
	var losers []string
	for _, i := range insights {
		key := strings.TrimSpace(i.Text)
		if seen[key] {
			losers = append(losers, i.ID)
			continue
		}
		seen[key] = true
	}

	return s.deleteByID(ctx, &database.Insight{}, losers)
}

// sweepOrphans removes entities whose entry no longer exists
func (s *Sweeper) sweepOrphans(ctx context.Context) (int, error) {
	result := s.db.WithContext(ctx).
		Where("entry_id NOT IN (?)", s.db.Model(&database.RawEntry{}).Select("id")).
		Delete(&database.ExtractedEntity{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to delete orphans: %w", result.Error)
	}
	return int(result.RowsAffected), nil
}

// deleteByID deletes rows in batches and returns the count removed
func (s *Sweeper) deleteByID(ctx context.Context, model interface{}, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	const batch = 200
	removed := 0
	for start := 0; start < len(ids); start += batch {
		end := start + batch
		if end > len(ids) {
			end = len(ids)
		}
		result := s.db.WithContext(ctx).Where("id IN ?", ids[start:end]).Delete(model)
		if result.Error != nil {
			return removed, fmt.Errorf("failed to delete rows: %w", result.Error)
		}
		removed += int(result.RowsAffected)
	}
	return removed, nil
}
