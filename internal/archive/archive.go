// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package archive exports the stores into a local git-backed markdown
// tree, one file per entry, person, life event and report, with YAML
// frontmatter. The archive is a plain-text mirror the user can read and
// diff without the server; it is never read back.
package archive

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"gorm.io/gorm"

	"github.com/jhelvik/chronicle-mcp/internal/database"
	"github.com/jhelvik/chronicle-mcp/internal/logger"
)

const (
	commitAuthor = "Chronicle"
	commitEmail  = "archive@chronicle.local"
)

// Result describes one snapshot run
type Result struct {
	Files     int  `json:"files"`
	Committed bool `json:"committed"`
}

// Summary renders a one-line human summary for the job audit record
func (r *Result) Summary() string {
	if !r.Committed {
		return fmt.Sprintf("wrote %d files, no changes to commit", r.Files)
	}
	return fmt.Sprintf("wrote %d files, committed snapshot", r.Files)
}

// Archiver writes markdown snapshots
type Archiver struct {
	db   *gorm.DB
	path string
	log  *logger.Logger
}

// New creates an archiver rooted at path
func New(db *gorm.DB, path string, log *logger.Logger) *Archiver {
	return &Archiver{db: db, path: path, log: log.With("component", "archive")}
}

// Run writes the full snapshot and commits it if anything changed
func (a *Archiver) Run(ctx context.Context) (*Result, error) {
	repo, err := a.ensureRepo()
	if err != nil {
		return nil, err
	}

	result := &Result{}

	written, err := a.writeEntries(ctx)
	if err != nil {
		return result, err
	}
	result.Files += written

	written, err = a.writePeople(ctx)
	if err != nil {
		return result, err
	}
	result.Files += written

	written, err = a.writeTimeline(ctx)
	if err != nil {
		return result, err
	}
	result.Files += written

	written, err = a.writeReports(ctx)
	if err != nil {
		return result, err
	}
	result.Files += written

	written, err = a.writeBiography(ctx)
	if err != nil {
		return result, err
	}
	result.Files += written

	committed, err := a.commitAll(repo)
	if err != nil {
		return result, err
	}
	result.Committed = committed

	a.log.Info("archive snapshot done", "files", result.Files, "committed", committed)
	return result, nil
}

func (a *Archiver) ensureRepo() (*git.Repository, error) {
	if err := os.MkdirAll(a.path, 0755); err != nil {
		return nil, fmt.Errorf("failed to create archive directory: %w", err)
	}
	repo, err := git.PlainOpen(a.path)
	if err == git.ErrRepositoryNotExists {
		repo, err = git.PlainInit(a.path, false)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open archive repository: %w", err)
	}
	return repo, nil
}

func (a *Archiver) writeEntries(ctx context.Context) (int, error) {
	var entries []database.RawEntry
	err := a.db.WithContext(ctx).
		Where("deleted = ?", false).
		Order("created_at ASC").
		Find(&entries).Error
	if err != nil {
		return 0, fmt.Errorf("failed to load entries: %w", err)
	}

	written := 0
	for _, e := range entries {
		doc := Document{
			Frontmatter: map[string]interface{}{
				"source":  e.Source,
				"created": e.CreatedAt.Format(time.RFC3339),
			},
			Body: e.Text,
		}
		name := e.CreatedAt.Format(time.DateOnly) + "-" + shortID(e.ID) + ".md"
		if err := a.writeDoc(filepath.Join("entries", name), &doc); err != nil {
			return written, err
		}
		written++
	}
	return written, nil
}

// shortID keeps archive filenames stable and readable; the date prefix
// carries the ordering, the id fragment the uniqueness.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func (a *Archiver) writePeople(ctx context.Context) (int, error) {
	var people []database.PersonRecord
	if err := a.db.WithContext(ctx).Order("canonical_name ASC").Find(&people).Error; err != nil {
		return 0, fmt.Errorf("failed to load people: %w", err)
	}

	written := 0
	for _, p := range people {
		doc := Document{
			Frontmatter: map[string]interface{}{
				"name":            p.DisplayName,
				"relationship":    p.Relationship,
				"mention_count":   p.MentionCount,
				"sentiment_avg":   p.SentimentAvg,
				"first_mentioned": p.FirstMentioned.Format(time.DateOnly),
				"last_mentioned":  p.LastMentioned.Format(time.DateOnly),
				"tags":            []string(p.Tags),
			},
			Body: fmt.Sprintf("# %s\n\nMentioned %d times.", p.DisplayName, p.MentionCount),
		}
		if err := a.writeDoc(filepath.Join("people", Slug(p.CanonicalName)+".md"), &doc); err != nil {
			return written, err
		}
		written++
	}
	return written, nil
}

func (a *Archiver) writeTimeline(ctx context.Context) (int, error) {
	var events []database.LifeEvent
	err := a.db.WithContext(ctx).
		Where("event_date IS NOT NULL").
		Order("event_date ASC").
		Find(&events).Error
	if err != nil {
		return 0, fmt.Errorf("failed to load life events: %w", err)
	}

	written := 0
	for _, e := range events {
		doc := Document{
			Frontmatter: map[string]interface{}{
				"title":        e.Title,
				"date":         e.EventDate.Format(time.DateOnly),
				"category":     e.Category,
				"significance": e.Significance,
				"emotions":     []string(e.Emotions),
				"people":       []string(e.PeopleInvolved),
			},
			Body: fmt.Sprintf("# %s\n\n%s", e.Title, e.Description),
		}
		name := DatedSlug(e.Title, *e.EventDate) + ".md"
		if err := a.writeDoc(filepath.Join("timeline", name), &doc); err != nil {
			return written, err
		}
		written++
	}
	return written, nil
}

func (a *Archiver) writeReports(ctx context.Context) (int, error) {
	var reports []database.WeeklyReport
	if err := a.db.WithContext(ctx).Order("week_start ASC").Find(&reports).Error; err != nil {
		return 0, fmt.Errorf("failed to load reports: %w", err)
	}

	written := 0
	for _, r := range reports {
		doc := Document{
			Frontmatter: map[string]interface{}{
				"week_start": r.WeekStart,
				"week_end":   r.WeekEnd,
			},
			Body: fmt.Sprintf("# Week of %s\n\n```json\n%s\n```", r.WeekStart, r.ReportJSON),
		}
		if err := a.writeDoc(filepath.Join("reports", r.WeekStart+".md"), &doc); err != nil {
			return written, err
		}
		written++
	}
	return written, nil
}

func (a *Archiver) writeBiography(ctx context.Context) (int, error) {
	var persona database.PersonaSummary
	err := a.db.WithContext(ctx).
		Where("singleton_key = ?", database.PersonaSingletonKey).
		First(&persona).Error
	if err == gorm.ErrRecordNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to load persona: %w", err)
	}
	if strings.TrimSpace(persona.Biography) == "" {
		return 0, nil
	}

	fm := map[string]interface{}{}
	if persona.BiographyGeneratedAt != nil {
		fm["generated_at"] = persona.BiographyGeneratedAt.Format(time.RFC3339)
	}
	doc := Document{Frontmatter: fm, Body: persona.Biography}
	if err := a.writeDoc("biography.md", &doc); err != nil {
		return 0, err
	}
	return 1, nil
}

func (a *Archiver) writeDoc(relPath string, doc *Document) error {
	full := filepath.Join(a.path, relPath)
	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		return fmt.Errorf("failed to create archive subdirectory: %w", err)
	}
	content, err := doc.Render()
	if err != nil {
		return fmt.Errorf("failed to render %s: %w", relPath, err)
	}
	if err := os.WriteFile(full, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", relPath, err)
	}
	return nil
}

// commitAll stages everything and commits when the worktree is dirty. An
// unchanged snapshot produces no commit.
func (a *Archiver) commitAll(repo *git.Repository) (bool, error) {
	worktree, err := repo.Worktree()
	if err != nil {
		return false, fmt.Errorf("failed to get worktree: %w", err)
	}
	if err := worktree.AddWithOptions(&git.AddOptions{All: true}); err != nil {
		return false, fmt.Errorf("failed to stage archive: %w", err)
	}
	status, err := worktree.Status()
	if err != nil {
		return false, fmt.Errorf("failed to get status: %w", err)
	}
	if status.IsClean() {
		return false, nil
	}

	message := "snapshot " + time.Now().Format(time.DateOnly)
	_, err = worktree.Commit(message, &git.CommitOptions{
		Author: &object.Signature{
			Name:  commitAuthor,
			Email: commitEmail,
			When:  time.Now(),
		},
	})
	if err != nil {
		return false, fmt.Errorf("failed to commit archive: %w", err)
	}
	return true, nil
}
