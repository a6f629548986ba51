// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"gorm.io/gorm"

	"github.com/jhelvik/chronicle-mcp/internal/database"
)

// NewReportsTool creates the chronicle_reports tool definition
func NewReportsTool() mcp.Tool {
	return mcp.NewTool("chronicle_reports",
		mcp.WithDescription("Read weekly reports. Without arguments, returns the latest report. Pass week_start (YYYY-MM-DD, a Monday) for a specific week. Reading a report marks it read."),
		mcp.WithString("week_start",
			mcp.Description("The Monday of the wanted week, YYYY-MM-DD"),
		),
		mcp.WithBoolean("list",
			mcp.Description("List available report weeks instead of reading one"),
		),
	)
}

// ReportsHandler handles the chronicle_reports tool
func ReportsHandler(tc *ToolContext) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if request.GetBool("list", false) {
			var reports []database.WeeklyReport
			err := tc.DB.WithContext(ctx).
				Select("id", "week_start", "week_end", "is_read", "created_at").
				Order("week_start DESC").
				Limit(defaultListLimit).
				Find(&reports).Error
			if err != nil {
				return mcp.NewToolResultError(fmt.Sprintf("failed to list reports: %v", err)), nil
			}
			if len(reports) == 0 {
				return mcp.NewToolResultText("no weekly reports yet"), nil
			}
			return jsonResult(reports)
		}

		query := tc.DB.WithContext(ctx).Model(&database.WeeklyReport{})
		if weekStart := request.GetString("week_start", ""); weekStart != "" {
			query = query.Where("week_start = ?", weekStart)
		}

		var rep database.WeeklyReport
		err := query.Order("week_start DESC").First(&rep).Error
		if err == gorm.ErrRecordNotFound {
			return mcp.NewToolResultText("no matching weekly report"), nil
		}
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to load report: %v", err)), nil
		}

		if !rep.IsRead {
			err := tc.DB.WithContext(ctx).Model(&database.WeeklyReport{}).
				Where("id = ?", rep.ID).
				Update("is_read", true).Error
			if err != nil {
				tc.Log.Warn("failed to mark report read", "report_id", rep.ID, "error", err)
			}
		}

		return jsonResult(map[string]interface{}{
			"week_start": rep.WeekStart,
			"week_end":   rep.WeekEnd,
			"report":     json.RawMessage(rep.ReportJSON),
		})
	}
}
