// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package gateway

import (
	"testing"

	"github.com/jhelvik/chronicle-mcp/internal/faults"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeExtractionResult_Plain(t *testing.T) {
	raw := `{"category": "journal", "title": "Hike with Alice", "mood_score": 7.5,
		"people": [{"name": "Alice", "sentiment": "positive"}],
		"life_events": [{"title": "First marathon", "event_date": "2025-04-12"}]}`

	result, err := DecodeExtractionResult(raw)
	require.NoError(t, err)

	assert.Equal(t, "journal", result.Category)
	assert.Equal(t, "Hike with Alice", result.Title)
	assert.Equal(t, 7.5, result.MoodScore)
	require.Len(t, result.People, 1)
	assert.Equal(t, "Alice", result.People[0].Name)
	require.Len(t, result.LifeEvents, 1)
	assert.Equal(t, "2025-04-12", result.LifeEvents[0].EventDate)
}

func TestDecodeExtractionResult_MarkdownFenced(t *testing.T) {
	raw := "Here is the result:\n```json\n{\"category\": \"note\", \"title\": \"Groceries\"}\n```\n"

	result, err := DecodeExtractionResult(raw)
	require.NoError(t, err)
	assert.Equal(t, "note", result.Category)
	assert.Equal(t, "Groceries", result.Title)
}

func TestDecodeExtractionResult_SurroundingProse(t *testing.T) {
	raw := `Sure! {"category": "chat", "insights": [{"text": "Prefers mornings", "confidence": 0.8}]} Hope that helps.`

	result, err := DecodeExtractionResult(raw)
	require.NoError(t, err)
	require.Len(t, result.Insights, 1)
	assert.Equal(t, "Prefers mornings", result.Insights[0].Text)
}

func TestDecodeExtractionResult_BracesInsideStrings(t *testing.T) {
	raw := `{"title": "Notes on {braces} and \"quotes\"", "category": "note"}`

	result, err := DecodeExtractionResult(raw)
	require.NoError(t, err)
	assert.Equal(t, `Notes on {braces} and "quotes"`, result.Title)
}

func TestDecodeExtractionResult_EmptySections(t *testing.T) {
	// Absent sections imply nothing found, never an error
	result, err := DecodeExtractionResult(`{}`)
	require.NoError(t, err)
	assert.Empty(t, result.People)
	assert.Empty(t, result.LifeEvents)
	assert.Empty(t, result.Insights)
	assert.Nil(t, result.PersonaUpdates)
}

func TestDecodeExtractionResult_Malformed(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"no JSON at all", "I could not process that."},
		{"truncated object", `{"category": "journal", "people": [`},
		{"schema violation", `{"mood_score": "very high"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeExtractionResult(tt.raw)
			require.Error(t, err)
			assert.True(t, faults.IsMalformedResult(err))

			var me *faults.MalformedResultError
			require.ErrorAs(t, err, &me)
			assert.Equal(t, tt.raw, me.RawPayload, "raw payload must be kept for diagnosis")
		})
	}
}

func TestDecodeChatExtraction(t *testing.T) {
	raw := `{"should_extract": true, "mood_score": 4,
		"people_mentioned": [{"name": "Bob", "sentiment": "negative"}],
		"is_task": true, "task_title": "Call the dentist", "task_due_date": "2026-09-01"}`

	result, err := DecodeChatExtraction(raw)
	require.NoError(t, err)
	assert.True(t, result.ShouldExtract)
	assert.True(t, result.IsTask)
	assert.Equal(t, "Call the dentist", result.TaskTitle)
	require.Len(t, result.PeopleMentioned, 1)
	assert.Equal(t, "Bob", result.PeopleMentioned[0].Name)
}

func TestDecodeChatExtraction_ShouldNotExtract(t *testing.T) {
	result, err := DecodeChatExtraction(`{"should_extract": false}`)
	require.NoError(t, err)
	assert.False(t, result.ShouldExtract)
}

func TestDecodeReportPayload(t *testing.T) {
	payload, err := DecodeReportPayload("```json\n{\"headline\": \"A steady week\"}\n```")
	require.NoError(t, err)
	assert.JSONEq(t, `{"headline": "A steady week"}`, string(payload))

	_, err = DecodeReportPayload("no structure here")
	assert.True(t, faults.IsMalformedResult(err))
}
