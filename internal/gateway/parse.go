// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package gateway

import (
	"encoding/json"
	"strings"

	"github.com/jhelvik/chronicle-mcp/internal/faults"
)

// extractJSONObject pulls the first top-level JSON object out of a model
// response. Models wrap payloads in markdown fences or prose often enough
// that decoding the body verbatim is the exception, not the rule.
func extractJSONObject(raw string) (string, bool) {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if idx := strings.LastIndex(s, "```"); idx >= 0 {
			s = s[:idx]
		}
		s = strings.TrimSpace(s)
	}

	start := strings.Index(s, "{")
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if escaped {
			escaped = false
			continue
		}
		switch c {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 {
					return s[start : i+1], true
				}
			}
		}
	}
	return "", false
}

// DecodeExtractionResult decodes a full-form extraction payload. A payload
// that cannot be reduced to the expected schema yields a
// MalformedResultError carrying the raw text for diagnosis.
func DecodeExtractionResult(raw string) (*ExtractionResult, error) {
	obj, ok := extractJSONObject(raw)
	if !ok {
		return nil, &faults.MalformedResultError{Reason: "no JSON object in response", RawPayload: raw}
	}

	var result ExtractionResult
	if err := json.Unmarshal([]byte(obj), &result); err != nil {
		return nil, &faults.MalformedResultError{Reason: err.Error(), RawPayload: raw}
	}
	return &result, nil
}

// DecodeChatExtraction decodes a short-form chat extraction payload
func DecodeChatExtraction(raw string) (*ChatExtraction, error) {
	obj, ok := extractJSONObject(raw)
	if !ok {
		return nil, &faults.MalformedResultError{Reason: "no JSON object in response", RawPayload: raw}
	}

	var result ChatExtraction
	if err := json.Unmarshal([]byte(obj), &result); err != nil {
		return nil, &faults.MalformedResultError{Reason: err.Error(), RawPayload: raw}
	}
	return &result, nil
}

// DecodeReportPayload validates that a summarization payload is a JSON
// object and returns it compacted for storage.
func DecodeReportPayload(raw string) (json.RawMessage, error) {
	obj, ok := extractJSONObject(raw)
	if !ok {
		return nil, &faults.MalformedResultError{Reason: "no JSON object in response", RawPayload: raw}
	}
	if !json.Valid([]byte(obj)) {
		return nil, &faults.MalformedResultError{Reason: "invalid JSON object", RawPayload: raw}
	}
	return json.RawMessage(obj), nil
}
