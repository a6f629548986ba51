// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package tools exposes the pipeline over MCP. Each tool expresses a
// user intent (capture this, who do I know, what happened) rather than a
// storage operation.
package tools

import (
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"
	"gorm.io/gorm"

	"github.com/jhelvik/chronicle-mcp/internal/biography"
	"github.com/jhelvik/chronicle-mcp/internal/ingest"
	"github.com/jhelvik/chronicle-mcp/internal/jobs"
	"github.com/jhelvik/chronicle-mcp/internal/logger"
	"github.com/jhelvik/chronicle-mcp/internal/report"
	"github.com/jhelvik/chronicle-mcp/internal/resonance"
	"github.com/jhelvik/chronicle-mcp/internal/sweeper"
)

// defaultListLimit caps list-style tool responses
const defaultListLimit = 25

// ToolContext holds shared dependencies for all tools
type ToolContext struct {
	DB        *gorm.DB
	Ingestor  *ingest.Ingestor
	Sweeper   *sweeper.Sweeper
	Detector  *resonance.Detector
	Reports   *report.Builder
	Biography *biography.Composer
	Jobs      *jobs.Runner
	Log       *logger.Logger
}

// jsonResult renders v as an indented JSON tool result
func jsonResult(v interface{}) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
