// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package tools

import (
	"context"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/jhelvik/chronicle-mcp/internal/jobs"
	"github.com/jhelvik/chronicle-mcp/internal/resonance"
	"github.com/jhelvik/chronicle-mcp/internal/sweeper"
)

// NewConsolidateTool creates the chronicle_consolidate tool definition
func NewConsolidateTool() mcp.Tool {
	return mcp.NewTool("chronicle_consolidate",
		mcp.WithDescription("Run the consolidation sweep now: merge duplicate people, collapse duplicate entries and events, remove orphaned data. Returns per-table removed-row counts. Also checks today's anniversaries."),
	)
}

// ConsolidateHandler handles the chronicle_consolidate tool
func ConsolidateHandler(tc *ToolContext) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var sweepResult *sweeper.Result
		err := tc.Jobs.Run(ctx, jobs.JobConsolidation, func(ctx context.Context) (string, error) {
			sweepResult = tc.Sweeper.Run(ctx)
			return sweepResult.Summary(), nil
		})
		if errors.Is(err, jobs.ErrLeaseHeld) {
			return mcp.NewToolResultText("a consolidation run is already in progress"), nil
		}
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("consolidation failed: %v", err)), nil
		}

		var resonanceResult *resonance.Result
		err = tc.Jobs.Run(ctx, jobs.JobResonance, func(ctx context.Context) (string, error) {
			var runErr error
			resonanceResult, runErr = tc.Detector.Run(ctx)
			if runErr != nil {
				return "", runErr
			}
			return resonanceResult.Summary(), nil
		})
		if err != nil && !errors.Is(err, jobs.ErrLeaseHeld) {
			tc.Log.Warn("resonance check after consolidation failed", "error", err)
		}

		out := map[string]interface{}{
			"removed": sweepResult,
			"total":   sweepResult.Total(),
		}
		if resonanceResult != nil {
			out["anniversaries_fired"] = resonanceResult.Fired
		}
		return jsonResult(out)
	}
}
