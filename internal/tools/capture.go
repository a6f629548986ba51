// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package tools

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/jhelvik/chronicle-mcp/internal/faults"
)

// NewCaptureTool creates the chronicle_capture tool definition
func NewCaptureTool() mcp.Tool {
	return mcp.NewTool("chronicle_capture",
		mcp.WithDescription("Capture a journal entry, note or document text. The raw text is stored immediately; people, life events and insights are extracted from it afterwards. Use chat=true for short conversational messages where extraction may be skipped entirely."),
		mcp.WithString("text",
			mcp.Required(),
			mcp.Description("The raw text to capture"),
		),
		mcp.WithString("source",
			mcp.Description("Where the text came from: journal, chat, document, api. Defaults to journal."),
		),
		mcp.WithBoolean("chat",
			mcp.Description("Treat as a short-form chat message (extraction decides whether anything is worth keeping)"),
		),
	)
}

// CaptureHandler handles the chronicle_capture tool
func CaptureHandler(tc *ToolContext) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		text, err := request.RequireString("text")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		source := request.GetString("source", "journal")
		chat := request.GetBool("chat", false)

		if chat {
			entry, err := tc.Ingestor.ProcessChat(ctx, text)
			if err != nil {
				return captureError(err), nil
			}
			return jsonResult(map[string]interface{}{
				"id":     entry.ID,
				"source": entry.Source,
				"note":   "captured; extraction continues in the background",
			})
		}

		entry, err := tc.Ingestor.Ingest(ctx, text, source)
		if err != nil {
			return captureError(err), nil
		}
		return jsonResult(map[string]interface{}{
			"id":     entry.ID,
			"source": entry.Source,
		})
	}
}

func captureError(err error) *mcp.CallToolResult {
	if faults.IsValidation(err) {
		return mcp.NewToolResultError(err.Error())
	}
	return mcp.NewToolResultError(fmt.Sprintf("capture failed: %v", err))
}
