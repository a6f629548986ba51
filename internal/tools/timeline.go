// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package tools

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/jhelvik/chronicle-mcp/internal/database"
)

// NewTimelineTool creates the chronicle_timeline tool definition
func NewTimelineTool() mcp.Tool {
	return mcp.NewTool("chronicle_timeline",
		mcp.WithDescription("Browse the life-event timeline, most recent first. Filter by category (career, relationship, relocation, health, ...) if needed."),
		mcp.WithString("category",
			mcp.Description("Restrict to one event category"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of events to return (default 25)"),
		),
	)
}

// TimelineHandler handles the chronicle_timeline tool
func TimelineHandler(tc *ToolContext) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		category := request.GetString("category", "")
		limit := request.GetInt("limit", defaultListLimit)

		query := tc.DB.WithContext(ctx).Model(&database.LifeEvent{}).
			Where("event_date IS NOT NULL")
		if category != "" {
			query = query.Where("category = ?", category)
		}

		var events []database.LifeEvent
		err := query.Order("event_date DESC").Limit(limit).Find(&events).Error
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to load timeline: %v", err)), nil
		}
		if len(events) == 0 {
			return mcp.NewToolResultText("no dated life events recorded yet"), nil
		}
		return jsonResult(events)
	}
}

// NewInsightsTool creates the chronicle_insights tool definition
func NewInsightsTool() mcp.Tool {
	return mcp.NewTool("chronicle_insights",
		mcp.WithDescription("List recent derived insights: observations, anniversaries, weekly report notices."),
		mcp.WithString("type",
			mcp.Description("Restrict to one insight type: observation, anniversary, chat_observation, weekly_report"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of insights to return (default 25)"),
		),
	)
}

// InsightsHandler handles the chronicle_insights tool
func InsightsHandler(tc *ToolContext) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		insightType := request.GetString("type", "")
		limit := request.GetInt("limit", defaultListLimit)

		query := tc.DB.WithContext(ctx).Model(&database.Insight{})
		if insightType != "" {
			query = query.Where("type = ?", insightType)
		}

		var insights []database.Insight
		err := query.Order("created_at DESC").Limit(limit).Find(&insights).Error
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to load insights: %v", err)), nil
		}
		if len(insights) == 0 {
			return mcp.NewToolResultText("no insights yet"), nil
		}
		return jsonResult(insights)
	}
}
