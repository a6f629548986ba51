// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package archive

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

var (
	// slugKeepRegex matches characters that should be dropped from slugs
	slugKeepRegex = regexp.MustCompile(`[^a-z0-9\s-]`)
	// multiSpaceRegex matches runs of spaces/dashes
	multiSpaceRegex = regexp.MustCompile(`[\s-]+`)
)

// Document is one archive file: YAML frontmatter plus a markdown body
type Document struct {
	Frontmatter map[string]interface{}
	Body        string
}

// Render produces the file content
func (d *Document) Render() (string, error) {
	var buf bytes.Buffer
	buf.WriteString("---\n")
	if len(d.Frontmatter) > 0 {
		data, err := yaml.Marshal(d.Frontmatter)
		if err != nil {
			return "", fmt.Errorf("failed to marshal frontmatter: %w", err)
		}
		buf.Write(data)
	}
	buf.WriteString("---\n\n")
	buf.WriteString(strings.TrimSpace(d.Body))
	buf.WriteString("\n")
	return buf.String(), nil
}

// Parse reads a rendered document back. Used by tests and by anyone
// inspecting an archive programmatically.
func Parse(content string) (*Document, error) {
	frontmatter, body, err := splitFrontmatter(content)
	if err != nil {
		return nil, err
	}
	doc := &Document{Body: strings.TrimSpace(body)}
	if frontmatter != "" {
		if err := yaml.Unmarshal([]byte(frontmatter), &doc.Frontmatter); err != nil {
			return nil, fmt.Errorf("failed to parse frontmatter: %w", err)
		}
	}
	return doc, nil
}

func splitFrontmatter(content string) (string, string, error) {
	content = strings.TrimSpace(content)
	if !strings.HasPrefix(content, "---") {
		return "", content, nil
	}

	lines := strings.Split(content, "\n")
	closingIndex := -1
	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == "---" {
			closingIndex = i
			break
		}
	}
	if closingIndex == -1 {
		return "", content, fmt.Errorf("frontmatter not properly closed")
	}

	frontmatter := strings.Join(lines[1:closingIndex], "\n")
	body := ""
	if closingIndex+1 < len(lines) {
		body = strings.Join(lines[closingIndex+1:], "\n")
	}
	return frontmatter, body, nil
}

// Slug creates a filesystem-safe name from a title
func Slug(title string) string {
	slug := strings.ToLower(title)
	slug = slugKeepRegex.ReplaceAllString(slug, "")
	slug = multiSpaceRegex.ReplaceAllString(slug, "-")
	slug = strings.Trim(slug, "-")
	if slug == "" {
		slug = "untitled"
	}
	return slug
}

// DatedSlug prefixes the slug with the date so the timeline directory
// sorts chronologically
func DatedSlug(title string, date time.Time) string {
	return date.Format(time.DateOnly) + "-" + Slug(title)
}
