// Package mcpserver exposes the gateway's filesystem and session
// operations as MCP tools over stdio.
package mcpserver

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	fsgate "github.com/giantswarm/mcp-fsgate"
)

// BearerProvider supplies the bearer token attached to every tool call.
// The embedding process owns credential acquisition; the server only
// forwards what it is given.
type BearerProvider func() string

// MCPServer wraps the gateway behind an MCP tool surface
type MCPServer struct {
	gateway      *fsgate.Gateway
	bearer       BearerProvider
	mcpServer    *server.MCPServer
	logger       *slog.Logger
	connectionID string
}

// NewMCPServer creates an MCP server over the gateway
func NewMCPServer(gateway *fsgate.Gateway, bearer BearerProvider, logger *slog.Logger) (*MCPServer, error) {
	if gateway == nil {
		return nil, fmt.Errorf("gateway is required")
	}
	if bearer == nil {
		return nil, fmt.Errorf("bearer provider is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	mcpServer := server.NewMCPServer(
		"mcp-fsgate",
		"1.0.0",
		server.WithToolCapabilities(false),
	)

	s := &MCPServer{
		gateway:      gateway,
		bearer:       bearer,
		mcpServer:    mcpServer,
		logger:       logger,
		connectionID: gateway.NewConnectionID(),
	}

	s.registerTools()

	return s, nil
}

// Start serves MCP over stdio. Blocks until the client closes the
// connection or the context is cancelled.
func (s *MCPServer) Start(ctx context.Context) error {
	return server.ServeStdio(s.mcpServer)
}

// registerTools registers all MCP tools
func (s *MCPServer) registerTools() {
	listTool := mcp.NewTool("fs_list",
		mcp.WithDescription("List the entries of a directory inside the jailed filesystem"),
		mcp.WithString("path",
			mcp.Description("Directory path relative to the root (empty for the root itself)"),
		),
		mcp.WithString("backend",
			mcp.Description("Backend name, or 'auto' to pick the first available"),
		),
	)
	s.mcpServer.AddTool(listTool, s.handleList)

	readTool := mcp.NewTool("fs_read",
		mcp.WithDescription("Read a file from the jailed filesystem"),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("File path relative to the root"),
		),
		mcp.WithString("backend",
			mcp.Description("Backend name, or 'auto' to pick the first available"),
		),
	)
	s.mcpServer.AddTool(readTool, s.handleRead)

	writeTool := mcp.NewTool("fs_write",
		mcp.WithDescription("Write a file into the jailed filesystem, creating parents as needed"),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("File path relative to the root"),
		),
		mcp.WithString("content",
			mcp.Required(),
			mcp.Description("File content"),
		),
		mcp.WithString("backend",
			mcp.Description("Backend name, or 'auto' to pick the first available"),
		),
	)
	s.mcpServer.AddTool(writeTool, s.handleWrite)

	deleteTool := mcp.NewTool("fs_delete",
		mcp.WithDescription("Delete a file or directory inside the jailed filesystem"),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("Path relative to the root"),
		),
		mcp.WithString("backend",
			mcp.Description("Backend name, or 'auto' to pick the first available"),
		),
	)
	s.mcpServer.AddTool(deleteTool, s.handleDelete)

	statTool := mcp.NewTool("fs_stat",
		mcp.WithDescription("Stat a path inside the jailed filesystem"),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("Path relative to the root"),
		),
		mcp.WithString("backend",
			mcp.Description("Backend name, or 'auto' to pick the first available"),
		),
	)
	s.mcpServer.AddTool(statTool, s.handleStat)

	globTool := mcp.NewTool("fs_glob",
		mcp.WithDescription("Find files matching a glob pattern, evaluated relative to the search root"),
		mcp.WithString("pattern",
			mcp.Required(),
			mcp.Description("Doublestar glob pattern, e.g. '**/*.md'"),
		),
		mcp.WithString("path",
			mcp.Description("Search root relative to the backend root"),
		),
		mcp.WithNumber("max_results",
			mcp.Description("Result cap (default 200); the response marks truncation"),
		),
		mcp.WithBoolean("include_hidden",
			mcp.Description("Also match entries whose name starts with a dot"),
		),
		mcp.WithBoolean("exclude_directories",
			mcp.Description("Drop directory entries from the matches"),
		),
		mcp.WithString("backend",
			mcp.Description("Backend name, or 'auto' to pick the first available"),
		),
	)
	s.mcpServer.AddTool(globTool, s.handleGlob)

	sessionTool := mcp.NewTool("session_status",
		mcp.WithDescription("Resolve a session: arbitrate ownership and return its short alias"),
		mcp.WithString("session_id",
			mcp.Required(),
			mcp.Description("Durable session identifier"),
		),
	)
	s.mcpServer.AddTool(sessionTool, s.handleSessionStatus)
}
