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

// NewReprocessTool creates the chronicle_reprocess tool definition
func NewReprocessTool() mcp.Tool {
	return mcp.NewTool("chronicle_reprocess",
		mcp.WithDescription("Re-run extraction for an existing entry, replacing its derived data. Optionally supply corrected text, which also replaces the stored text."),
		mcp.WithString("id",
			mcp.Required(),
			mcp.Description("The entry id to reprocess"),
		),
		mcp.WithString("text",
			mcp.Description("Corrected text. If omitted, the stored text is re-extracted."),
		),
	)
}

// ReprocessHandler handles the chronicle_reprocess tool
func ReprocessHandler(tc *ToolContext) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := request.RequireString("id")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		text := request.GetString("text", "")

		if err := tc.Ingestor.Reprocess(ctx, id, text); err != nil {
			if faults.IsValidation(err) {
				return mcp.NewToolResultError(err.Error()), nil
			}
			return mcp.NewToolResultError(fmt.Sprintf("reprocess failed: %v", err)), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("entry %s reprocessed", id)), nil
	}
}

// NewForgetTool creates the chronicle_forget tool definition
func NewForgetTool() mcp.Tool {
	return mcp.NewTool("chronicle_forget",
		mcp.WithDescription("Soft-delete a captured entry. The entry is hidden, not destroyed; derived data is cleaned up by the next consolidation run."),
		mcp.WithString("id",
			mcp.Required(),
			mcp.Description("The entry id to forget"),
		),
	)
}

// ForgetHandler handles the chronicle_forget tool
func ForgetHandler(tc *ToolContext) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := request.RequireString("id")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if err := tc.Ingestor.SoftDelete(ctx, id); err != nil {
			if faults.IsValidation(err) {
				return mcp.NewToolResultError(err.Error()), nil
			}
			return mcp.NewToolResultError(fmt.Sprintf("forget failed: %v", err)), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("entry %s forgotten", id)), nil
	}
}
