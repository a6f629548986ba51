// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/jhelvik/chronicle-mcp/internal/faults"
	"github.com/jhelvik/chronicle-mcp/internal/logger"
)

// Client talks to an OpenAI-compatible chat completions endpoint. It is
// one implementation of Extractor; tests substitute their own.
type Client struct {
	log        *logger.Logger
	baseURL    string
	apiKey     string
	model      string
	maxRetries int
	httpClient *http.Client
}

// ClientOptions configures a gateway client
type ClientOptions struct {
	BaseURL    string
	APIKey     string
	Model      string
	MaxRetries int
}

// NewClient creates a gateway client. Timeouts are owned by the caller's
// context, not the transport: the same client serves the synchronous
// request path and background jobs.
func NewClient(log *logger.Logger, opts ClientOptions) (*Client, error) {
	if opts.APIKey == "" {
		return nil, fmt.Errorf("gateway API key is required")
	}
	baseURL := strings.TrimSuffix(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.openai.com"
	}
	model := opts.Model
	if model == "" {
		model = "gpt-4o-mini"
	}
	maxRetries := opts.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}

	return &Client{
		log:        log.With("component", "gateway"),
		baseURL:    baseURL,
		apiKey:     opts.APIKey,
		model:      model,
		maxRetries: maxRetries,
		httpClient: &http.Client{},
	}, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	ResponseFormat *struct {
		Type string `json:"type"`
	} `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

type httpStatusError struct {
	StatusCode int
	Body       string
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("gateway http %d: %s", e.StatusCode, e.Body)
}

func isRetryable(err error) bool {
	var statusErr *httpStatusError
	if errors.As(err, &statusErr) {
		code := statusErr.StatusCode
		return code == 408 || code == 429 || (code >= 500 && code <= 599)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return false
}

// complete runs one chat completion with capped retries. The caller's ctx
// bounds the whole attempt sequence; once it expires no retry is made.
func (c *Client) complete(ctx context.Context, system, user string, wantJSON bool) (string, error) {
	req := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
	}
	if wantJSON {
		req.ResponseFormat = &struct {
			Type string `json:"type"`
		}{Type: "json_object"}
	}

	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", &faults.ExternalServiceError{Service: "gateway", Err: ctx.Err()}
			case <-time.After(time.Duration(attempt) * 500 * time.Millisecond):
			}
			c.log.Debug("retrying gateway call", "attempt", attempt)
		}

		content, err := c.doRequest(ctx, body)
		if err == nil {
			return content, nil
		}
		lastErr = err
		if ctx.Err() != nil || !isRetryable(err) {
			break
		}
	}
	return "", &faults.ExternalServiceError{Service: "gateway", Err: lastErr}
}

func (c *Client) doRequest(ctx context.Context, body []byte) (string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", &httpStatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(respBody))}
	}

	var parsed chatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", &faults.MalformedResultError{Reason: err.Error(), RawPayload: string(respBody)}
	}
	if parsed.Error != nil {
		return "", &httpStatusError{StatusCode: resp.StatusCode, Body: parsed.Error.Message}
	}
	if len(parsed.Choices) == 0 {
		return "", &faults.MalformedResultError{Reason: "no choices in response", RawPayload: string(respBody)}
	}
	return parsed.Choices[0].Message.Content, nil
}

const extractSystemPrompt = `You analyze one piece of personal input (journal entry, note, or document text) and respond with a single JSON object. Optional fields: category, title, summary, mood_score (0-10), energy_score (0-10), is_task, task_title, task_due_date (YYYY-MM-DD), persona_updates {core_values, recent_focus, relationships_summary}, people [{name, relationship, sentiment (positive|neutral|negative), tags}], life_events [{title, description, significance, category, event_date (YYYY-MM-DD), emotions, people_involved}], insights [{text, type, confidence}]. Omit anything not present in the input.`

// ExtractEntry implements Extractor
func (c *Client) ExtractEntry(ctx context.Context, text string, meta Meta) (*ExtractionResult, error) {
	user := text
	if meta.Source != "" || meta.EntryDate != "" {
		metaJSON, _ := json.Marshal(meta)
		user = fmt.Sprintf("Context: %s\n\n%s", metaJSON, text)
	}

	content, err := c.complete(ctx, extractSystemPrompt, user, true)
	if err != nil {
		return nil, err
	}
	return DecodeExtractionResult(content)
}

const chatSystemPrompt = `You analyze one short chat message from the user and respond with a single JSON object: {should_extract, insights [{text, type, confidence}], people_mentioned [{name, relationship, sentiment}], mood_score (0-10), is_task, task_title, task_due_date (YYYY-MM-DD), life_event_detected {title, description, event_date}}. Set should_extract to false for small talk with nothing worth remembering.`

// ExtractChat implements Extractor
func (c *Client) ExtractChat(ctx context.Context, text string) (*ChatExtraction, error) {
	content, err := c.complete(ctx, chatSystemPrompt, text, true)
	if err != nil {
		return nil, err
	}
	return DecodeChatExtraction(content)
}

const summarizeSystemPrompt = `You write a structured weekly reflection from a digest of the week's entries, the previous week's report, and a persona snapshot. Respond with a single JSON object: {headline, summary, highlights [], challenges [], people [], mood_trend, suggestions []}.`

// SummarizeWeek implements Extractor
func (c *Client) SummarizeWeek(ctx context.Context, req WeeklySummaryRequest) (json.RawMessage, error) {
	reqJSON, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal summary request: %w", err)
	}

	content, err := c.complete(ctx, summarizeSystemPrompt, string(reqJSON), true)
	if err != nil {
		return nil, err
	}
	return DecodeReportPayload(content)
}

const biographySystemPrompt = `You write a warm, factual third-person biography of the user from their persona snapshot, people directory, life-event timeline, and recent entries. Respond with prose only, no JSON, no headings.`

// ComposeBiography implements Extractor
func (c *Client) ComposeBiography(ctx context.Context, req BiographyRequest) (string, error) {
	reqJSON, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("failed to marshal biography request: %w", err)
	}

	content, err := c.complete(ctx, biographySystemPrompt, string(reqJSON), false)
	if err != nil {
		return "", err
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return "", &faults.MalformedResultError{Reason: "empty biography response"}
	}
	return content, nil
}
