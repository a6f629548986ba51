// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package tools

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

// NewBiographyTool creates the chronicle_biography tool definition
func NewBiographyTool() mcp.Tool {
	return mcp.NewTool("chronicle_biography",
		mcp.WithDescription("Read the generated life narrative. Serves the cached version when it is less than a day old; pass refresh=true to force regeneration from the current state."),
		mcp.WithBoolean("refresh",
			mcp.Description("Regenerate the narrative even if a fresh cached one exists"),
		),
	)
}

// BiographyHandler handles the chronicle_biography tool
func BiographyHandler(tc *ToolContext) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		refresh := request.GetBool("refresh", false)

		if !refresh {
			text, valid, err := tc.Biography.Cached(ctx)
			if err != nil {
				return mcp.NewToolResultError(fmt.Sprintf("failed to read biography: %v", err)), nil
			}
			if valid {
				return mcp.NewToolResultText(text), nil
			}
		}

		text, err := tc.Biography.Refresh(ctx)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to regenerate biography: %v", err)), nil
		}
		return mcp.NewToolResultText(text), nil
	}
}
