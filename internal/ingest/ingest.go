// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package ingest owns the write path for raw user input. Capture is
// two-phase: the raw entry always commits before extraction is attempted,
// so the original input survives any gateway failure.
package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/jhelvik/chronicle-mcp/internal/database"
	"github.com/jhelvik/chronicle-mcp/internal/faults"
	"github.com/jhelvik/chronicle-mcp/internal/gateway"
	"github.com/jhelvik/chronicle-mcp/internal/logger"
	"github.com/jhelvik/chronicle-mcp/internal/merge"
)

// Options configures the ingestor's gateway timeouts
type Options struct {
	SyncTimeout time.Duration // synchronous request path
	JobTimeout  time.Duration // background extraction
}

// Ingestor persists raw entries and drives extraction + merge
type Ingestor struct {
	db        *gorm.DB
	extractor gateway.Extractor
	merger    *merge.Merger
	log       *logger.Logger
	opts      Options
}

// NewIngestor creates an ingestor
func NewIngestor(db *gorm.DB, extractor gateway.Extractor, merger *merge.Merger, log *logger.Logger, opts Options) *Ingestor {
	if opts.SyncTimeout <= 0 {
		opts.SyncTimeout = 30 * time.Second
	}
	if opts.JobTimeout <= 0 {
		opts.JobTimeout = 2 * time.Minute
	}
	return &Ingestor{
		db:        db,
		extractor: extractor,
		merger:    merger,
		log:       log.With("component", "ingestor"),
		opts:      opts,
	}
}

// HashText returns the exact-duplicate grouping key for entry text
func HashText(text string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(text)))
	return hex.EncodeToString(sum[:])
}

// Ingest captures one piece of input and synchronously enriches it. The
// returned entry is always persisted once validation passes; extraction or
// merge failures are logged and never undo the capture.
func (i *Ingestor) Ingest(ctx context.Context, text, source string) (*database.RawEntry, error) {
	if strings.TrimSpace(text) == "" {
		return nil, faults.NewValidation("entry text must not be empty")
	}

	entry := &database.RawEntry{
		Text:     text,
		TextHash: HashText(text),
		Source:   source,
	}
	if err := i.db.WithContext(ctx).Create(entry).Error; err != nil {
		return nil, &faults.PersistenceError{Store: "raw_entries", Err: err}
	}

	if err := i.extractAndMerge(ctx, entry.ID, text, source, i.opts.SyncTimeout); err != nil {
		i.log.Warn("extraction failed, raw entry kept without derived data",
			"entry_id", entry.ID, "error", err)
	}
	return entry, nil
}

// Reprocess re-runs extraction for an existing entry, replacing its prior
// derived entity rather than duplicating it. When text is non-empty it
// also replaces the stored text.
func (i *Ingestor) Reprocess(ctx context.Context, entryID, text string) error {
	var entry database.RawEntry
	if err := i.db.WithContext(ctx).First(&entry, "id = ?", entryID).Error; err != nil {
		return faults.NewValidation("entry %s not found", entryID)
	}

	if strings.TrimSpace(text) != "" && text != entry.Text {
		entry.Text = text
		entry.TextHash = HashText(text)
		if err := i.db.WithContext(ctx).Save(&entry).Error; err != nil {
			return &faults.PersistenceError{Store: "raw_entries", Err: err}
		}
	}

	extractCtx, cancel := context.WithTimeout(ctx, i.opts.SyncTimeout)
	defer cancel()

	result, err := i.extractor.ExtractEntry(extractCtx, entry.Text, gateway.Meta{
		Source:    entry.Source,
		EntryDate: entry.CreatedAt.Format(time.DateOnly),
	})
	if err != nil {
		return err
	}

	// Delete-then-insert in one transaction so the entry never carries two
	// derived entities.
	return i.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("entry_id = ?", entry.ID).Delete(&database.ExtractedEntity{}).Error; err != nil {
			return &faults.PersistenceError{Store: "entities", Err: err}
		}
		return i.merger.WithTx(tx).Apply(ctx, entry.ID, result)
	})
}

// ExtractEntry runs extraction + merge for an already-persisted entry.
// This is the operation behind the background extraction trigger; it is
// safe to call independently of the ingestion response.
func (i *Ingestor) ExtractEntry(ctx context.Context, entryID, text string) error {
	var entry database.RawEntry
	if err := i.db.WithContext(ctx).First(&entry, "id = ?", entryID).Error; err != nil {
		return faults.NewValidation("entry %s not found", entryID)
	}
	if strings.TrimSpace(text) == "" {
		text = entry.Text
	}
	return i.extractAndMerge(ctx, entry.ID, text, entry.Source, i.opts.JobTimeout)
}

// ExtractInBackground fires extraction on a goroutine. The caller's
// response does not wait for it; failures are logged and repaired by
// reprocessing, never retried here.
func (i *Ingestor) ExtractInBackground(entryID, text string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), i.opts.JobTimeout)
		defer cancel()
		if err := i.ExtractEntry(ctx, entryID, text); err != nil {
			i.log.Warn("background extraction failed", "entry_id", entryID, "error", err)
		}
	}()
}

// ProcessChat captures a chat message and enriches it in the background.
// The caller gets the persisted entry back before the merge completes;
// derived-store visibility is eventual.
func (i *Ingestor) ProcessChat(ctx context.Context, text string) (*database.RawEntry, error) {
	if strings.TrimSpace(text) == "" {
		return nil, faults.NewValidation("chat text must not be empty")
	}

	entry := &database.RawEntry{
		Text:     text,
		TextHash: HashText(text),
		Source:   "chat",
	}
	if err := i.db.WithContext(ctx).Create(entry).Error; err != nil {
		return nil, &faults.PersistenceError{Store: "raw_entries", Err: err}
	}

	go func() {
		bgCtx, cancel := context.WithTimeout(context.Background(), i.opts.JobTimeout)
		defer cancel()
		chat, err := i.extractor.ExtractChat(bgCtx, text)
		if err != nil {
			i.log.Warn("chat extraction failed, raw entry kept", "entry_id", entry.ID, "error", err)
			return
		}
		if err := i.merger.ApplyChat(bgCtx, entry.ID, chat); err != nil {
			i.log.Warn("chat merge incomplete", "entry_id", entry.ID, "error", err)
		}
	}()

	return entry, nil
}

// SoftDelete marks an entry deleted without removing it. Hard deletion of
// duplicate text is the sweeper's decision.
func (i *Ingestor) SoftDelete(ctx context.Context, entryID string) error {
	result := i.db.WithContext(ctx).Model(&database.RawEntry{}).
		Where("id = ?", entryID).
		Update("deleted", true)
	if result.Error != nil {
		return &faults.PersistenceError{Store: "raw_entries", Err: result.Error}
	}
	if result.RowsAffected == 0 {
		return faults.NewValidation("entry %s not found", entryID)
	}
	return nil
}

// extractAndMerge is the shared phase-2 body: one gateway call bounded by
// the given timeout, then one merge pass.
func (i *Ingestor) extractAndMerge(ctx context.Context, entryID, text, source string, timeout time.Duration) error {
	extractCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result, err := i.extractor.ExtractEntry(extractCtx, text, gateway.Meta{Source: source})
	if err != nil {
		return err
	}
	return i.merger.Apply(ctx, entryID, result)
}
