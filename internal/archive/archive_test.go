// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package archive

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/jhelvik/chronicle-mcp/internal/database"
	"github.com/jhelvik/chronicle-mcp/internal/logger"
)

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

func TestSlug(t *testing.T) {
	assert.Equal(t, "moved-to-oslo", Slug("Moved to Oslo"))
	assert.Equal(t, "alices-30th", Slug("Alice's 30th!"))
	assert.Equal(t, "a-b", Slug("  a -- b  "))
	assert.Equal(t, "untitled", Slug("???"))

	date := time.Date(2020, 5, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "2020-05-01-moved-to-oslo", DatedSlug("Moved to Oslo", date))
}

func TestDocumentRoundTrip(t *testing.T) {
	doc := &Document{
		Frontmatter: map[string]interface{}{"title": "Moved to Oslo", "category": "relocation"},
		Body:        "# Moved to Oslo\n\nBig change.",
	}
	rendered, err := doc.Render()
	require.NoError(t, err)

	parsed, err := Parse(rendered)
	require.NoError(t, err)
	assert.Equal(t, "Moved to Oslo", parsed.Frontmatter["title"])
	assert.Equal(t, "relocation", parsed.Frontmatter["category"])
	assert.Equal(t, "# Moved to Oslo\n\nBig change.", parsed.Body)
}

func TestParseUnclosedFrontmatter(t *testing.T) {
	_, err := Parse("---\ntitle: x\nno closing fence")
	assert.Error(t, err)
}

func TestRunWritesSnapshotAndCommits(t *testing.T) {
	db := setupDB(t)
	dir := t.TempDir()

	moved := time.Date(2020, 5, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, db.Create(&database.RawEntry{
		ID: "0a1b2c3d-0000-0000-0000-000000000000", Text: "Packed the last box today.",
		TextHash: "h1", Source: "journal", CreatedAt: moved,
	}).Error)
	require.NoError(t, db.Create(&database.LifeEvent{
		Title: "Moved to Oslo", TitleKey: "moved to oslo", EventDate: &moved,
		Description: "Big change.", Category: "relocation",
	}).Error)
	require.NoError(t, db.Create(&database.PersonRecord{
		CanonicalName: "alice", DisplayName: "Alice", Relationship: "sister",
		MentionCount: 4, FirstMentioned: moved, LastMentioned: time.Now(),
	}).Error)
	require.NoError(t, db.Create(&database.WeeklyReport{
		WeekStart: "2026-08-17", WeekEnd: "2026-08-23", ReportJSON: `{"highlights":[]}`,
	}).Error)
	generated := time.Now()
	require.NoError(t, db.Create(&database.PersonaSummary{
		Biography: "A life in motion.", BiographyGeneratedAt: &generated,
	}).Error)

	a := New(db, dir, logger.NewNop())
	result, err := a.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, result.Files)
	assert.True(t, result.Committed)

	entry, err := os.ReadFile(filepath.Join(dir, "entries", "2020-05-01-0a1b2c3d.md"))
	require.NoError(t, err)
	assert.Contains(t, string(entry), "Packed the last box today.")

	content, err := os.ReadFile(filepath.Join(dir, "timeline", "2020-05-01-moved-to-oslo.md"))
	require.NoError(t, err)
	doc, err := Parse(string(content))
	require.NoError(t, err)
	assert.Equal(t, "Moved to Oslo", doc.Frontmatter["title"])
	assert.Equal(t, "2020-05-01", doc.Frontmatter["date"])

	_, err = os.Stat(filepath.Join(dir, "people", "alice.md"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "reports", "2026-08-17.md"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "biography.md"))
	assert.NoError(t, err)

	repo, err := gogit.PlainOpen(dir)
	require.NoError(t, err)
	head, err := repo.Head()
	require.NoError(t, err)
	commit, err := repo.CommitObject(head.Hash())
	require.NoError(t, err)
	assert.Contains(t, commit.Message, "snapshot")
}

func TestRunUnchangedSnapshotDoesNotCommit(t *testing.T) {
	db := setupDB(t)
	dir := t.TempDir()

	require.NoError(t, db.Create(&database.PersonRecord{
		CanonicalName: "alice", DisplayName: "Alice",
		MentionCount: 1, FirstMentioned: time.Now(), LastMentioned: time.Now(),
	}).Error)

	a := New(db, dir, logger.NewNop())

	first, err := a.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, first.Committed)

	second, err := a.Run(context.Background())
	require.NoError(t, err)
	assert.False(t, second.Committed, "identical snapshot must not create a commit")
}

func TestRunEmptyStoreStillInitializesRepo(t *testing.T) {
	db := setupDB(t)
	dir := filepath.Join(t.TempDir(), "archive")

	a := New(db, dir, logger.NewNop())
	result, err := a.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, result.Files)
	assert.False(t, result.Committed)

	_, err = gogit.PlainOpen(dir)
	assert.NoError(t, err)
}
