// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package merge applies one extraction result to the derived stores.
// Identity resolution is synchronous only where it is cheap: people are
// upserted atomically by canonical name, everything else is appended and
// left to the consolidation sweeper. A failed derived write is reported
// upward without rolling back writes that already committed.
package merge

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/jhelvik/chronicle-mcp/internal/database"
	"github.com/jhelvik/chronicle-mcp/internal/faults"
	"github.com/jhelvik/chronicle-mcp/internal/gateway"
	"github.com/jhelvik/chronicle-mcp/internal/logger"
)

// Sentiment bucket scores. This is a fixed mapping applied to the newest
// mention, not a running average.
const (
	SentimentPositive = 7.0
	SentimentNeutral  = 5.0
	SentimentNegative = 3.0
)

// Merger writes extraction results into the derived stores
type Merger struct {
	db  *gorm.DB
	log *logger.Logger
}

// NewMerger creates a merger
func NewMerger(db *gorm.DB, log *logger.Logger) *Merger {
	return &Merger{db: db, log: log.With("component", "merger")}
}

// WithTx returns a merger bound to the given transaction. Used by the
// ingestor's reprocess path so delete-then-insert of an entry's derived
// entity commits as one unit.
func (m *Merger) WithTx(tx *gorm.DB) *Merger {
	return &Merger{db: tx, log: m.log}
}

// CanonicalName returns the identity key for a person name: trimmed and
// case-folded.
func CanonicalName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// TitleKey returns the identity key for a life-event title
func TitleKey(title string) string {
	return strings.ToLower(strings.TrimSpace(title))
}

// SentimentScore maps a sentiment label to its bucket score. Unknown
// labels count as neutral.
func SentimentScore(sentiment string) float64 {
	switch strings.ToLower(strings.TrimSpace(sentiment)) {
	case "positive":
		return SentimentPositive
	case "negative":
		return SentimentNegative
	default:
		return SentimentNeutral
	}
}

// ParseDate parses a YYYY-MM-DD string, returning nil when absent or
// unparseable. Bad dates from the gateway degrade to "undated", they do
// not fail the merge.
func ParseDate(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return nil
	}
	return &t
}

// Apply writes one full-form extraction result for the given entry. Each
// section is written independently; errors are collected and joined so a
// failing store does not block the others.
func (m *Merger) Apply(ctx context.Context, entryID string, result *gateway.ExtractionResult) error {
	var errs []error

	if err := m.writeEntity(ctx, entryID, result); err != nil {
		errs = append(errs, err)
	}
	for _, person := range result.People {
		if err := m.UpsertPerson(ctx, person); err != nil {
			errs = append(errs, err)
		}
	}
	for _, event := range result.LifeEvents {
		if err := m.AppendLifeEvent(ctx, entryID, event); err != nil {
			errs = append(errs, err)
		}
	}
	for _, insight := range result.Insights {
		if err := m.AppendInsight(ctx, insight, database.InsightObservation); err != nil {
			errs = append(errs, err)
		}
	}
	if result.PersonaUpdates != nil {
		if err := m.UpdatePersona(ctx, result.PersonaUpdates); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// ApplyChat writes one short-form chat extraction for the given entry.
// When the gateway reports nothing worth extracting, nothing is written.
func (m *Merger) ApplyChat(ctx context.Context, entryID string, chat *gateway.ChatExtraction) error {
	if !chat.ShouldExtract {
		m.log.Debug("chat extraction skipped", "entry_id", entryID)
		return nil
	}

	var errs []error

	entity := &database.ExtractedEntity{
		EntryID:   entryID,
		Category:  "chat",
		Title:     chatTitle(chat),
		MoodScore: chat.MoodScore,
		IsTask:    chat.IsTask,
		CreatedAt: time.Now(),
	}
	if chat.IsTask {
		entity.TaskStatus = database.TaskStatusPending
		entity.TaskDue = ParseDate(chat.TaskDueDate)
	}
	for _, p := range chat.PeopleMentioned {
		entity.PeopleMentioned = append(entity.PeopleMentioned, strings.TrimSpace(p.Name))
	}
	if err := m.db.WithContext(ctx).Create(entity).Error; err != nil {
		errs = append(errs, &faults.PersistenceError{Store: "entities", Err: err})
	}

	for _, person := range chat.PeopleMentioned {
		if err := m.UpsertPerson(ctx, person); err != nil {
			errs = append(errs, err)
		}
	}
	for _, insight := range chat.Insights {
		if err := m.AppendInsight(ctx, insight, database.InsightChatObservation); err != nil {
			errs = append(errs, err)
		}
	}
	if chat.LifeEventDetected != nil {
		if err := m.AppendLifeEvent(ctx, entryID, *chat.LifeEventDetected); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// writeEntity inserts the one ExtractedEntity derived directly from the
// result. No cross-row lookups here.
func (m *Merger) writeEntity(ctx context.Context, entryID string, result *gateway.ExtractionResult) error {
	entity := &database.ExtractedEntity{
		EntryID:     entryID,
		Category:    result.Category,
		Title:       result.Title,
		Content:     result.Summary,
		MoodScore:   result.MoodScore,
		EnergyScore: result.EnergyScore,
		IsTask:      result.IsTask,
		CreatedAt:   time.Now(),
	}
	if result.IsTask {
		if result.TaskTitle != "" {
			entity.Title = result.TaskTitle
		}
		entity.TaskStatus = database.TaskStatusPending
		entity.TaskDue = ParseDate(result.TaskDueDate)
	}
	for _, p := range result.People {
		entity.PeopleMentioned = append(entity.PeopleMentioned, strings.TrimSpace(p.Name))
	}

	if err := m.db.WithContext(ctx).Create(entity).Error; err != nil {
		return &faults.PersistenceError{Store: "entities", Err: err}
	}
	return nil
}

// UpsertPerson inserts or merges a person by canonical name in one
// conditional upsert, so concurrent mentions of a new person cannot
// double-insert. Sentiment takes the bucket score of this mention.
func (m *Merger) UpsertPerson(ctx context.Context, mention gateway.PersonMention) error {
	canonical := CanonicalName(mention.Name)
	if canonical == "" {
		return nil
	}

	now := time.Now()
	score := SentimentScore(mention.Sentiment)
	relationship := strings.TrimSpace(mention.Relationship)

	person := &database.PersonRecord{
		CanonicalName:  canonical,
		DisplayName:    strings.TrimSpace(mention.Name),
		Relationship:   relationship,
		MentionCount:   1,
		SentimentAvg:   score,
		FirstMentioned: now,
		LastMentioned:  now,
		Tags:           mention.Tags,
	}

	err := m.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "canonical_name"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"mention_count":  gorm.Expr("mention_count + 1"),
			"last_mentioned": now,
			"sentiment_avg":  score,
			"relationship":   gorm.Expr("CASE WHEN ? <> '' THEN ? ELSE relationship END", relationship, relationship),
			"updated_at":     now,
		}),
	}).Create(person).Error
	if err != nil {
		return &faults.PersistenceError{Store: "people", Err: err}
	}
	return nil
}

// AppendLifeEvent appends unconditionally. Duplicate suppression is the
// sweeper's job; the merger cannot see the whole table economically on
// every write.
func (m *Merger) AppendLifeEvent(ctx context.Context, entryID string, detail gateway.LifeEventDetail) error {
	title := strings.TrimSpace(detail.Title)
	if title == "" {
		return nil
	}

	event := &database.LifeEvent{
		EventDate:      ParseDate(detail.EventDate),
		Title:          title,
		TitleKey:       TitleKey(title),
		Description:    detail.Description,
		Significance:   detail.Significance,
		Category:       detail.Category,
		Emotions:       detail.Emotions,
		PeopleInvolved: detail.PeopleInvolved,
		SourceEntryIDs: database.StringList{entryID},
		CreatedAt:      time.Now(),
	}
	if err := m.db.WithContext(ctx).Create(event).Error; err != nil {
		return &faults.PersistenceError{Store: "life_events", Err: err}
	}
	return nil
}

// AppendInsight appends unconditionally; exact-text dedup is deferred to
// the sweeper.
func (m *Merger) AppendInsight(ctx context.Context, detail gateway.InsightDetail, defaultType string) error {
	text := strings.TrimSpace(detail.Text)
	if text == "" {
		return nil
	}

	insightType := detail.Type
	if insightType == "" {
		insightType = defaultType
	}

	insight := &database.Insight{
		Text:       text,
		Type:       insightType,
		Confidence: detail.Confidence,
		CreatedAt:  time.Now(),
	}
	if err := m.db.WithContext(ctx).Create(insight).Error; err != nil {
		return &faults.PersistenceError{Store: "insights", Err: err}
	}
	return nil
}

// UpdatePersona amends the singleton persona row, inserting it if absent.
// Empty update fields leave the stored value alone.
func (m *Merger) UpdatePersona(ctx context.Context, update *gateway.PersonaUpdate) error {
	now := time.Now()
	persona := &database.PersonaSummary{
		SingletonKey:         database.PersonaSingletonKey,
		CoreValues:           update.CoreValues,
		RecentFocus:          update.RecentFocus,
		RelationshipsSummary: update.RelationshipsSummary,
		UpdatedAt:            now,
	}

	err := m.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "singleton_key"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"core_values":           gorm.Expr("CASE WHEN ? <> '' THEN ? ELSE core_values END", update.CoreValues, update.CoreValues),
			"recent_focus":          gorm.Expr("CASE WHEN ? <> '' THEN ? ELSE recent_focus END", update.RecentFocus, update.RecentFocus),
			"relationships_summary": gorm.Expr("CASE WHEN ? <> '' THEN ? ELSE relationships_summary END", update.RelationshipsSummary, update.RelationshipsSummary),
			"updated_at":            now,
		}),
	}).Create(persona).Error
	if err != nil {
		return &faults.PersistenceError{Store: "persona", Err: err}
	}
	return nil
}

// chatTitle derives a short entity title for a chat extraction
func chatTitle(chat *gateway.ChatExtraction) string {
	if chat.IsTask && chat.TaskTitle != "" {
		return chat.TaskTitle
	}
	if len(chat.Insights) > 0 {
		return firstWords(chat.Insights[0].Text, 8)
	}
	return "Chat message"
}

// firstWords truncates text to at most n words
func firstWords(text string, n int) string {
	words := strings.Fields(text)
	if len(words) <= n {
		return strings.Join(words, " ")
	}
	return strings.Join(words[:n], " ")
}
