// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package gateway defines the contract with the external text-understanding
// service. The service is opaque: given text and context it returns a
// structured result or fails. Everything downstream is written to tolerate
// its unreliability: absent sections mean "nothing found", never an error.
package gateway

import (
	"context"
	"encoding/json"
)

// Meta is the context metadata sent alongside the text
type Meta struct {
	Source    string `json:"source,omitempty"`
	EntryDate string `json:"entry_date,omitempty"` // YYYY-MM-DD
}

// PersonMention is one person surfaced by extraction. Sentiment is one of
// "positive", "neutral", "negative".
type PersonMention struct {
	Name         string   `json:"name"`
	Relationship string   `json:"relationship,omitempty"`
	Sentiment    string   `json:"sentiment,omitempty"`
	Tags         []string `json:"tags,omitempty"`
}

// LifeEventDetail is one dated occurrence surfaced by extraction
type LifeEventDetail struct {
	Title          string   `json:"title"`
	Description    string   `json:"description,omitempty"`
	Significance   string   `json:"significance,omitempty"`
	Category       string   `json:"category,omitempty"`
	EventDate      string   `json:"event_date,omitempty"` // YYYY-MM-DD
	Emotions       []string `json:"emotions,omitempty"`
	PeopleInvolved []string `json:"people_involved,omitempty"`
}

// InsightDetail is one derived observation surfaced by extraction
type InsightDetail struct {
	Text       string  `json:"text"`
	Type       string  `json:"type,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
}

// PersonaUpdate carries narrative field updates for the persona row
type PersonaUpdate struct {
	CoreValues           string `json:"core_values,omitempty"`
	RecentFocus          string `json:"recent_focus,omitempty"`
	RelationshipsSummary string `json:"relationships_summary,omitempty"`
}

// ExtractionResult is the full-form response for long input (journal
// entries, documents). All sections are optional.
type ExtractionResult struct {
	Category       string            `json:"category,omitempty"`
	Title          string            `json:"title,omitempty"`
	Summary        string            `json:"summary,omitempty"`
	MoodScore      float64           `json:"mood_score,omitempty"`
	EnergyScore    float64           `json:"energy_score,omitempty"`
	IsTask         bool              `json:"is_task,omitempty"`
	TaskTitle      string            `json:"task_title,omitempty"`
	TaskDueDate    string            `json:"task_due_date,omitempty"` // YYYY-MM-DD
	PersonaUpdates *PersonaUpdate    `json:"persona_updates,omitempty"`
	People         []PersonMention   `json:"people,omitempty"`
	LifeEvents     []LifeEventDetail `json:"life_events,omitempty"`
	Insights       []InsightDetail   `json:"insights,omitempty"`
}

// ChatExtraction is the short-form response for chat messages
type ChatExtraction struct {
	ShouldExtract     bool             `json:"should_extract"`
	Insights          []InsightDetail  `json:"insights,omitempty"`
	PeopleMentioned   []PersonMention  `json:"people_mentioned,omitempty"`
	MoodScore         float64          `json:"mood_score,omitempty"`
	IsTask            bool             `json:"is_task,omitempty"`
	TaskTitle         string           `json:"task_title,omitempty"`
	TaskDueDate       string           `json:"task_due_date,omitempty"`
	LifeEventDetected *LifeEventDetail `json:"life_event_detected,omitempty"`
}

// WeeklySummaryRequest carries the material for one report window
type WeeklySummaryRequest struct {
	WeekStart       string `json:"week_start"`
	WeekEnd         string `json:"week_end"`
	EntriesDigest   string `json:"entries_digest"`
	PreviousReport  string `json:"previous_report,omitempty"`
	PersonaSnapshot string `json:"persona_snapshot,omitempty"`
}

// BiographyRequest carries the material for one narrative regeneration
type BiographyRequest struct {
	PersonaSnapshot string `json:"persona_snapshot,omitempty"`
	RecentEntities  string `json:"recent_entities,omitempty"`
	PeopleDirectory string `json:"people_directory,omitempty"`
	Timeline        string `json:"timeline,omitempty"`
}

// Extractor is the pipeline's view of the text-understanding service.
// Implementations must honor ctx deadlines; callers pick the timeout
// appropriate to their path (synchronous request vs. background job).
type Extractor interface {
	// ExtractEntry interprets long-form input (journal entry, document text)
	ExtractEntry(ctx context.Context, text string, meta Meta) (*ExtractionResult, error)
	// ExtractChat interprets a short chat message
	ExtractChat(ctx context.Context, text string) (*ChatExtraction, error)
	// SummarizeWeek produces the structured weekly report payload
	SummarizeWeek(ctx context.Context, req WeeklySummaryRequest) (json.RawMessage, error)
	// ComposeBiography produces the narrative prose for the persona
	ComposeBiography(ctx context.Context, req BiographyRequest) (string, error)
}
