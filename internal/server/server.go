// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package server exposes the pipeline two ways: as an MCP server on
// stdio for assistant clients, and as a small HTTP API for scripts and
// schedulers. Both surfaces share one ToolContext.
package server

import (
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/jhelvik/chronicle-mcp/internal/logger"
	"github.com/jhelvik/chronicle-mcp/internal/tools"
)

// Server wraps the mcp-go server with the chronicle toolset
type Server struct {
	mcp *mcpserver.MCPServer
	tc  *tools.ToolContext
	log *logger.Logger
}

// New creates the MCP server and registers all tools
func New(tc *tools.ToolContext, version string, log *logger.Logger) *Server {
	mcp := mcpserver.NewMCPServer(
		"Chronicle",
		version,
		mcpserver.WithToolCapabilities(true),
	)

	// chronicle_capture: write path entry point
	mcp.AddTool(tools.NewCaptureTool(), tools.CaptureHandler(tc))
	// chronicle_reprocess: replace an entry's derived data
	mcp.AddTool(tools.NewReprocessTool(), tools.ReprocessHandler(tc))
	// chronicle_forget: soft-delete an entry
	mcp.AddTool(tools.NewForgetTool(), tools.ForgetHandler(tc))
	// chronicle_people: directory lookups
	mcp.AddTool(tools.NewPeopleTool(), tools.PeopleHandler(tc))
	// chronicle_timeline: life-event browsing
	mcp.AddTool(tools.NewTimelineTool(), tools.TimelineHandler(tc))
	// chronicle_insights: derived observations and anniversaries
	mcp.AddTool(tools.NewInsightsTool(), tools.InsightsHandler(tc))
	// chronicle_consolidate: on-demand sweep
	mcp.AddTool(tools.NewConsolidateTool(), tools.ConsolidateHandler(tc))
	// chronicle_biography: cached narrative, optional refresh
	mcp.AddTool(tools.NewBiographyTool(), tools.BiographyHandler(tc))
	// chronicle_reports: weekly report reads
	mcp.AddTool(tools.NewReportsTool(), tools.ReportsHandler(tc))

	return &Server{mcp: mcp, tc: tc, log: log.With("component", "server")}
}

// ServeStdio runs the MCP server over stdin/stdout. Stdout carries only
// JSON-RPC; all logging goes to stderr.
func (s *Server) ServeStdio() error {
	return mcpserver.ServeStdio(s.mcp)
}

// MCP returns the underlying mcp-go server
func (s *Server) MCP() *mcpserver.MCPServer {
	return s.mcp
}
