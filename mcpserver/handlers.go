package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	fsgate "github.com/giantswarm/mcp-fsgate"
	"github.com/giantswarm/mcp-fsgate/vfs"
)

// toolError renders a gateway error as a tool result, keeping the
// classified code visible to the client
func toolError(err error) *mcp.CallToolResult {
	ge := fsgate.MapError(err)
	return mcp.NewToolResultError(fmt.Sprintf("%s: %s", ge.Code, ge.Description))
}

// toolJSON marshals v into a text result
func toolJSON(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to encode response: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func (s *MCPServer) handleList(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	dir := request.GetString("path", "")
	backend := request.GetString("backend", vfs.AutoBackend)

	entries, err := s.gateway.FSList(ctx, s.bearer(), backend, dir)
	if err != nil {
		return toolError(err), nil
	}
	return toolJSON(entries)
}

func (s *MCPServer) handleRead(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	filePath, err := request.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError("path argument is required"), nil
	}
	backend := request.GetString("backend", vfs.AutoBackend)

	data, err := s.gateway.FSRead(ctx, s.bearer(), backend, filePath)
	if err != nil {
		return toolError(err), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func (s *MCPServer) handleWrite(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	filePath, err := request.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError("path argument is required"), nil
	}
	content, err := request.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError("content argument is required"), nil
	}
	backend := request.GetString("backend", vfs.AutoBackend)

	if err := s.gateway.FSWrite(ctx, s.bearer(), backend, filePath, []byte(content)); err != nil {
		return toolError(err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("wrote %d bytes to %s", len(content), filePath)), nil
}

func (s *MCPServer) handleDelete(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	target, err := request.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError("path argument is required"), nil
	}
	backend := request.GetString("backend", vfs.AutoBackend)

	if err := s.gateway.FSDelete(ctx, s.bearer(), backend, target); err != nil {
		return toolError(err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("deleted %s", target)), nil
}

func (s *MCPServer) handleStat(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	target, err := request.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError("path argument is required"), nil
	}
	backend := request.GetString("backend", vfs.AutoBackend)

	info, err := s.gateway.FSStat(ctx, s.bearer(), backend, target)
	if err != nil {
		return toolError(err), nil
	}
	return toolJSON(info)
}

func (s *MCPServer) handleGlob(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	pattern, err := request.RequireString("pattern")
	if err != nil {
		return mcp.NewToolResultError("pattern argument is required"), nil
	}
	backend := request.GetString("backend", vfs.AutoBackend)

	opts := vfs.GlobOptions{
		Path:               request.GetString("path", ""),
		MaxResults:         request.GetInt("max_results", 0),
		IncludeHidden:      request.GetBool("include_hidden", false),
		ExcludeDirectories: request.GetBool("exclude_directories", false),
	}

	result, err := s.gateway.FSGlob(ctx, s.bearer(), backend, pattern, opts)
	if err != nil {
		return toolError(err), nil
	}
	return toolJSON(result)
}

func (s *MCPServer) handleSessionStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := request.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError("session_id argument is required"), nil
	}

	info, err := s.gateway.ResolveSession(ctx, s.bearer(), sessionID, s.connectionID)
	if err != nil {
		return toolError(err), nil
	}
	return toolJSON(info)
}
