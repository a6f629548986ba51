// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package database

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// StringList is a JSON-encoded list of strings stored in a text column.
type StringList []string

// Value implements driver.Valuer
func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	data, err := json.Marshal([]string(l))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal string list: %w", err)
	}
	return string(data), nil
}

// Scan implements sql.Scanner
func (l *StringList) Scan(value interface{}) error {
	if value == nil {
		*l = nil
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case string:
		data = []byte(v)
	case []byte:
		data = v
	default:
		return fmt.Errorf("cannot scan %T into StringList", value)
	}
	if len(data) == 0 {
		*l = nil
		return nil
	}
	return json.Unmarshal(data, (*[]string)(l))
}

// Task status values for ExtractedEntity
const (
	TaskStatusPending   = "pending"
	TaskStatusDone      = "done"
	TaskStatusCancelled = "cancelled"
)

// Insight type values
const (
	InsightChatObservation = "chat_observation"
	InsightAnniversary     = "anniversary"
	InsightObservation     = "observation"
	InsightDocumentUpload  = "document_upload"
	InsightWeeklyReport    = "weekly_report"
	InsightBiographyGap    = "biography_gap"
)

// JobRun status values
const (
	JobStatusRunning   = "running"
	JobStatusCompleted = "completed"
	JobStatusFailed    = "failed"
)

// PersonaSingletonKey is the well-known key of the single persona row.
const PersonaSingletonKey = "current"

// RawEntry is the immutable record of one piece of raw user input.
// Text is captured before any extraction is attempted; TextHash is the
// SHA-256 of the trimmed text and is the exact-duplicate grouping key.
type RawEntry struct {
	ID        string    `gorm:"primaryKey" json:"id"`
	Text      string    `gorm:"type:text;not null" json:"text"`
	TextHash  string    `gorm:"index;not null" json:"text_hash"`
	Source    string    `gorm:"index" json:"source"`
	Deleted   bool      `gorm:"index;default:false" json:"deleted"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName specifies the table name for RawEntry
func (RawEntry) TableName() string { return "chronicle_raw_entries" }

// BeforeCreate assigns a UUID if none is set
func (e *RawEntry) BeforeCreate(tx *gorm.DB) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	return nil
}

// ExtractedEntity is the structured interpretation of one RawEntry as
// returned by the extraction gateway. EntryID is a weak reference: the
// sweeper removes entities whose entry no longer exists.
type ExtractedEntity struct {
	ID              string     `gorm:"primaryKey" json:"id"`
	EntryID         string     `gorm:"index;not null" json:"entry_id"`
	Category        string     `gorm:"index" json:"category"`
	Title           string     `gorm:"index" json:"title"`
	Content         string     `gorm:"type:text" json:"content"`
	MoodScore       float64    `json:"mood_score"`
	EnergyScore     float64    `json:"energy_score"`
	IsTask          bool       `gorm:"index;default:false" json:"is_task"`
	TaskStatus      string     `json:"task_status,omitempty"`
	TaskDue         *time.Time `json:"task_due,omitempty"`
	PeopleMentioned StringList `gorm:"type:text" json:"people_mentioned"`
	CreatedAt       time.Time  `json:"created_at"`
}

// TableName specifies the table name for ExtractedEntity
func (ExtractedEntity) TableName() string { return "chronicle_entities" }

// BeforeCreate assigns a UUID if none is set
func (e *ExtractedEntity) BeforeCreate(tx *gorm.DB) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	return nil
}

// PersonRecord is a directory entry for a person mentioned across entries.
// CanonicalName is the trimmed, case-folded identity key.
type PersonRecord struct {
	ID             string     `gorm:"primaryKey" json:"id"`
	CanonicalName  string     `gorm:"uniqueIndex;not null" json:"canonical_name"`
	DisplayName    string     `gorm:"not null" json:"display_name"`
	Relationship   string     `json:"relationship"`
	MentionCount   int        `gorm:"default:1" json:"mention_count"`
	SentimentAvg   float64    `json:"sentiment_avg"`
	FirstMentioned time.Time  `json:"first_mentioned"`
	LastMentioned  time.Time  `gorm:"index" json:"last_mentioned"`
	Tags           StringList `gorm:"type:text" json:"tags"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// TableName specifies the table name for PersonRecord
func (PersonRecord) TableName() string { return "chronicle_people" }

// BeforeCreate assigns a UUID if none is set
func (p *PersonRecord) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return nil
}

// LifeEvent is a dated, significant occurrence in the user's timeline.
// TitleKey is the case-folded trimmed title; the dedup identity is
// (TitleKey, EventDate) so that two same-title events in different years
// stay distinct.
type LifeEvent struct {
	ID             string     `gorm:"primaryKey" json:"id"`
	EventDate      *time.Time `gorm:"index" json:"event_date,omitempty"`
	Title          string     `gorm:"not null" json:"title"`
	TitleKey       string     `gorm:"index;not null" json:"title_key"`
	Description    string     `gorm:"type:text" json:"description"`
	Significance   string     `json:"significance"`
	Category       string     `gorm:"index" json:"category"`
	Emotions       StringList `gorm:"type:text" json:"emotions"`
	PeopleInvolved StringList `gorm:"type:text" json:"people_involved"`
	SourceEntryIDs StringList `gorm:"type:text" json:"source_entry_ids"`
	CreatedAt      time.Time  `gorm:"index" json:"created_at"`
}

// TableName specifies the table name for LifeEvent
func (LifeEvent) TableName() string { return "chronicle_life_events" }

// BeforeCreate assigns a UUID if none is set
func (e *LifeEvent) BeforeCreate(tx *gorm.DB) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	return nil
}

// Insight is a short derived observation. Anniversary insights carry an
// EventID/FiredOn provenance pair so the same-day dedup check is a direct
// key lookup rather than a substring match on rendered text.
type Insight struct {
	ID         string    `gorm:"primaryKey" json:"id"`
	Text       string    `gorm:"type:text;not null" json:"text"`
	Type       string    `gorm:"index;not null" json:"type"`
	Confidence float64   `json:"confidence"`
	Status     string    `gorm:"default:active" json:"status"`
	EventID    string    `gorm:"index" json:"event_id,omitempty"`
	FiredOn    string    `gorm:"index" json:"fired_on,omitempty"` // YYYY-MM-DD
	CreatedAt  time.Time `gorm:"index" json:"created_at"`
}

// TableName specifies the table name for Insight
func (Insight) TableName() string { return "chronicle_insights" }

// BeforeCreate assigns a UUID if none is set
func (i *Insight) BeforeCreate(tx *gorm.DB) error {
	if i.ID == "" {
		i.ID = uuid.NewString()
	}
	return nil
}

// WeeklyReport is a structured digest over one calendar week. WeekStart is
// unique: a report is written once per window and never rewritten except
// for the read flag.
type WeeklyReport struct {
	ID         string    `gorm:"primaryKey" json:"id"`
	WeekStart  string    `gorm:"uniqueIndex;not null" json:"week_start"` // YYYY-MM-DD
	WeekEnd    string    `gorm:"not null" json:"week_end"`
	ReportJSON string    `gorm:"type:text" json:"report_json"`
	IsRead     bool      `gorm:"default:false" json:"is_read"`
	CreatedAt  time.Time `json:"created_at"`
}

// TableName specifies the table name for WeeklyReport
func (WeeklyReport) TableName() string { return "chronicle_weekly_reports" }

// BeforeCreate assigns a UUID if none is set
func (r *WeeklyReport) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return nil
}

// PersonaSummary is the single evolving profile document for the user.
// SingletonKey is always PersonaSingletonKey; its unique index makes "the"
// persona row unambiguous under concurrent writers.
type PersonaSummary struct {
	ID                   string     `gorm:"primaryKey" json:"id"`
	SingletonKey         string     `gorm:"uniqueIndex;not null" json:"-"`
	CoreValues           string     `gorm:"type:text" json:"core_values"`
	RecentFocus          string     `gorm:"type:text" json:"recent_focus"`
	RelationshipsSummary string     `gorm:"type:text" json:"relationships_summary"`
	Biography            string     `gorm:"type:text" json:"biography"`
	BiographyGeneratedAt *time.Time `json:"biography_generated_at,omitempty"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

// TableName specifies the table name for PersonaSummary
func (PersonaSummary) TableName() string { return "chronicle_persona" }

// BeforeCreate assigns a UUID and the singleton key if none is set
func (p *PersonaSummary) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.SingletonKey == "" {
		p.SingletonKey = PersonaSingletonKey
	}
	return nil
}

// JobRun is the audit record for one scheduled or on-demand job execution.
type JobRun struct {
	ID          string     `gorm:"primaryKey" json:"id"`
	JobName     string     `gorm:"index;not null" json:"job_name"`
	Status      string     `gorm:"index;not null" json:"status"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Summary     string     `gorm:"type:text" json:"summary,omitempty"`
	Error       string     `gorm:"type:text" json:"error,omitempty"`
}

// TableName specifies the table name for JobRun
func (JobRun) TableName() string { return "chronicle_job_runs" }

// BeforeCreate assigns a UUID if none is set
func (j *JobRun) BeforeCreate(tx *gorm.DB) error {
	if j.ID == "" {
		j.ID = uuid.NewString()
	}
	return nil
}

// JobLease is a best-effort single-flight guard per job name. Overlapping
// runs are harmless by design; the lease only avoids pointless duplicate
// work when an on-demand trigger coincides with a scheduled run.
type JobLease struct {
	JobName    string    `gorm:"primaryKey" json:"job_name"`
	HeldBy     string    `json:"held_by"`
	AcquiredAt time.Time `json:"acquired_at"`
	ExpiresAt  time.Time `gorm:"index" json:"expires_at"`
}

// TableName specifies the table name for JobLease
func (JobLease) TableName() string { return "chronicle_job_leases" }

// GatewayCredential stores the extraction gateway API key encrypted at
// rest with AES-256-GCM.
type GatewayCredential struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	Provider        string    `gorm:"uniqueIndex;not null" json:"provider"`
	APIKeyEncrypted string    `gorm:"type:text;not null" json:"-"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// TableName specifies the table name for GatewayCredential
func (GatewayCredential) TableName() string { return "chronicle_gateway_credentials" }
