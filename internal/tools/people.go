// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package tools

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/jhelvik/chronicle-mcp/internal/database"
	"github.com/jhelvik/chronicle-mcp/internal/merge"
)

// NewPeopleTool creates the chronicle_people tool definition
func NewPeopleTool() mcp.Tool {
	return mcp.NewTool("chronicle_people",
		mcp.WithDescription("Look up the people directory: who has been mentioned, how often, with what relationship and sentiment. Without a name, lists the most-mentioned people."),
		mcp.WithString("name",
			mcp.Description("A person's name to look up (case-insensitive)"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of people to return (default 25)"),
		),
	)
}

// PeopleHandler handles the chronicle_people tool
func PeopleHandler(tc *ToolContext) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		name := request.GetString("name", "")
		limit := request.GetInt("limit", defaultListLimit)

		query := tc.DB.WithContext(ctx).Model(&database.PersonRecord{})
		if name != "" {
			query = query.Where("canonical_name LIKE ?", "%"+merge.CanonicalName(name)+"%")
		}

		var people []database.PersonRecord
		err := query.Order("mention_count DESC").Limit(limit).Find(&people).Error
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to load people: %v", err)), nil
		}
		if len(people) == 0 {
			return mcp.NewToolResultText("no people found"), nil
		}
		return jsonResult(people)
	}
}
