// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package biography maintains the single cached life narrative. Reads
// never regenerate; a stale cache is reported as absent and the caller
// decides when to pay for a refresh.
package biography

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/jhelvik/chronicle-mcp/internal/database"
	"github.com/jhelvik/chronicle-mcp/internal/faults"
	"github.com/jhelvik/chronicle-mcp/internal/gateway"
	"github.com/jhelvik/chronicle-mcp/internal/logger"
)

// Options tunes the composer
type Options struct {
	// CacheTTL is how long a generated narrative counts as current
	CacheTTL time.Duration
	// RecentLimit bounds how many recent entities feed a regeneration
	RecentLimit int
}

func (o *Options) withDefaults() {
	if o.CacheTTL <= 0 {
		o.CacheTTL = 24 * time.Hour
	}
	if o.RecentLimit <= 0 {
		o.RecentLimit = 50
	}
}

// Composer regenerates and serves the persona narrative
type Composer struct {
	db        *gorm.DB
	extractor gateway.Extractor
	log       *logger.Logger
	opts      Options
}

// New creates a composer
func New(db *gorm.DB, extractor gateway.Extractor, log *logger.Logger, opts Options) *Composer {
	opts.withDefaults()
	return &Composer{
		db:        db,
		extractor: extractor,
		log:       log.With("component", "biography"),
		opts:      opts,
	}
}

// Cached returns the narrative if one exists and its generation timestamp
// is within the TTL. It never triggers regeneration.
func (c *Composer) Cached(ctx context.Context) (string, bool, error) {
	var persona database.PersonaSummary
	err := c.db.WithContext(ctx).
		Where("singleton_key = ?", database.PersonaSingletonKey).
		First(&persona).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return "", false, nil
		}
		return "", false, &faults.PersistenceError{Store: "persona", Err: err}
	}
	if persona.Biography == "" || persona.BiographyGeneratedAt == nil {
		return "", false, nil
	}
	if time.Since(*persona.BiographyGeneratedAt) >= c.opts.CacheTTL {
		return "", false, nil
	}
	return persona.Biography, true, nil
}

// Refresh gathers the consolidated state, asks the gateway for prose, and
// writes it back into the singleton persona row.
func (c *Composer) Refresh(ctx context.Context) (string, error) {
	req, err := c.gather(ctx)
	if err != nil {
		return "", err
	}

	text, err := c.extractor.ComposeBiography(ctx, *req)
	if err != nil {
		return "", err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", &faults.MalformedResultError{Reason: "gateway returned an empty narrative"}
	}

	now := time.Now()
	row := &database.PersonaSummary{
		SingletonKey:         database.PersonaSingletonKey,
		Biography:            text,
		BiographyGeneratedAt: &now,
	}
	err = c.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "singleton_key"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"biography":              text,
			"biography_generated_at": now,
			"updated_at":             now,
		}),
	}).Create(row).Error
	if err != nil {
		return "", &faults.PersistenceError{Store: "persona", Err: err}
	}

	c.log.Info("biography regenerated", "chars", len(text))
	return text, nil
}

// gather assembles the regeneration request: the persona row, a bounded
// recent slice of entities, the whole people directory, and the whole
// dated timeline.
func (c *Composer) gather(ctx context.Context) (*gateway.BiographyRequest, error) {
	req := &gateway.BiographyRequest{}

	var persona database.PersonaSummary
	err := c.db.WithContext(ctx).
		Where("singleton_key = ?", database.PersonaSingletonKey).
		First(&persona).Error
	if err != nil && err != gorm.ErrRecordNotFound {
		return nil, &faults.PersistenceError{Store: "persona", Err: err}
	}
	if err == nil {
		req.PersonaSnapshot = personaSnapshot(&persona)
	}

	var entities []database.ExtractedEntity
	err = c.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(c.opts.RecentLimit).
		Find(&entities).Error
	if err != nil {
		return nil, &faults.PersistenceError{Store: "entities", Err: err}
	}
	req.RecentEntities = entitiesDigest(entities)

	var people []database.PersonRecord
	if err := c.db.WithContext(ctx).Order("mention_count DESC").Find(&people).Error; err != nil {
		return nil, &faults.PersistenceError{Store: "people", Err: err}
	}
	req.PeopleDirectory = peopleDigest(people)

	var events []database.LifeEvent
	err = c.db.WithContext(ctx).
		Where("event_date IS NOT NULL").
		Order("event_date ASC").
		Find(&events).Error
	if err != nil {
		return nil, &faults.PersistenceError{Store: "life_events", Err: err}
	}
	req.Timeline = timelineDigest(events)

	return req, nil
}

func personaSnapshot(p *database.PersonaSummary) string {
	var b strings.Builder
	if p.CoreValues != "" {
		fmt.Fprintf(&b, "Core values: %s\n", p.CoreValues)
	}
	if p.RecentFocus != "" {
		fmt.Fprintf(&b, "Recent focus: %s\n", p.RecentFocus)
	}
	if p.RelationshipsSummary != "" {
		fmt.Fprintf(&b, "Relationships: %s\n", p.RelationshipsSummary)
	}
	return strings.TrimSpace(b.String())
}

func entitiesDigest(entities []database.ExtractedEntity) string {
	var b strings.Builder
	for _, e := range entities {
		fmt.Fprintf(&b, "- [%s] %s", e.Category, e.Title)
		if e.Content != "" {
			fmt.Fprintf(&b, ": %s", e.Content)
		}
		b.WriteByte('\n')
	}
	return strings.TrimSpace(b.String())
}

func peopleDigest(people []database.PersonRecord) string {
	var b strings.Builder
	for _, p := range people {
		fmt.Fprintf(&b, "- %s", p.DisplayName)
		if p.Relationship != "" {
			fmt.Fprintf(&b, " (%s)", p.Relationship)
		}
		fmt.Fprintf(&b, ", mentioned %d times\n", p.MentionCount)
	}
	return strings.TrimSpace(b.String())
}

func timelineDigest(events []database.LifeEvent) string {
	var b strings.Builder
	for _, e := range events {
		fmt.Fprintf(&b, "- %s: %s", e.EventDate.Format(time.DateOnly), e.Title)
		if e.Description != "" {
			fmt.Fprintf(&b, " - %s", e.Description)
		}
		b.WriteByte('\n')
	}
	return strings.TrimSpace(b.String())
}
