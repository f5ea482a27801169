package mcpserver

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	fsgate "github.com/giantswarm/mcp-fsgate"
	"github.com/giantswarm/mcp-fsgate/storage/memory"
	"github.com/giantswarm/mcp-fsgate/vfs"
)

// newTestServer builds a gateway over a temp jail and an MCP server with
// a freshly issued bearer
func newTestServer(t *testing.T) *MCPServer {
	t.Helper()
	ctx := context.Background()

	g, err := fsgate.New(ctx, fsgate.Config{
		Store:      memory.New(),
		SessionDir: t.TempDir(),
		JailRoot:   t.TempDir(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = g.Close() })

	reg, err := g.RegisterClient(ctx, &fsgate.ClientRegistrationRequest{
		ClientName:   "mcp-test",
		RedirectURIs: []string{"http://localhost:9999/cb"},
	}, "127.0.0.1")
	require.NoError(t, err)

	code, err := g.IssueCode(ctx, reg.ClientID, "subject-1",
		"http://localhost:9999/cb", "", []string{"fs:read", "fs:write"})
	require.NoError(t, err)

	tokens, err := g.ExchangeCode(ctx, &fsgate.ExchangeRequest{
		Code:        code.Code,
		ClientID:    reg.ClientID,
		RedirectURI: "http://localhost:9999/cb",
	})
	require.NoError(t, err)

	s, err := NewMCPServer(g, func() string { return tokens.AccessToken }, nil)
	require.NoError(t, err)
	return s
}

func callRequest(name string, args map[string]any) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.Len(t, result.Content, 1)
	text, ok := mcp.AsTextContent(result.Content[0])
	require.True(t, ok, "expected text content")
	return text.Text
}

func TestFSToolRoundTrip(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	result, err := s.handleWrite(ctx, callRequest("fs_write", map[string]any{
		"path":    "docs/readme.md",
		"content": "hello",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError, resultText(t, result))

	result, err = s.handleRead(ctx, callRequest("fs_read", map[string]any{
		"path": "docs/readme.md",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)
	assert.Equal(t, "hello", resultText(t, result))

	result, err = s.handleStat(ctx, callRequest("fs_stat", map[string]any{
		"path": "docs/readme.md",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	var info vfs.FileInfo
	require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &info))
	assert.Equal(t, "docs/readme.md", info.Path)
	assert.EqualValues(t, 5, info.Size)

	result, err = s.handleDelete(ctx, callRequest("fs_delete", map[string]any{
		"path": "docs",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	result, err = s.handleRead(ctx, callRequest("fs_read", map[string]any{
		"path": "docs/readme.md",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "not_found")
}

func TestFSToolGlob(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	for _, p := range []string{"a.md", "sub/b.md", "sub/c.txt"} {
		result, err := s.handleWrite(ctx, callRequest("fs_write", map[string]any{
			"path": p, "content": "x",
		}))
		require.NoError(t, err)
		require.False(t, result.IsError)
	}

	result, err := s.handleGlob(ctx, callRequest("fs_glob", map[string]any{
		"pattern": "**/*.md",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	var globResult vfs.GlobResult
	require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &globResult))
	assert.Len(t, globResult.Matches, 2)
	assert.False(t, globResult.Truncated)
}

func TestFSToolBlocksEscape(t *testing.T) {
	s := newTestServer(t)

	result, err := s.handleRead(context.Background(), callRequest("fs_read", map[string]any{
		"path": "../../etc/passwd",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "security_violation")
}

func TestFSToolMissingArguments(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	result, err := s.handleRead(ctx, callRequest("fs_read", map[string]any{}))
	require.NoError(t, err)
	assert.True(t, result.IsError)

	result, err = s.handleWrite(ctx, callRequest("fs_write", map[string]any{
		"path": "only-path.txt",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestSessionStatusTool(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	result, err := s.handleSessionStatus(ctx, callRequest("session_status", map[string]any{
		"session_id": "ses_tool",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	var info fsgate.SessionInfo
	require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &info))
	assert.Equal(t, "ses_tool", info.SessionID)
	assert.Equal(t, "S0001", info.Alias)
	assert.Equal(t, "missing", info.Decision)

	// The same session resolves to the same alias on a second call
	result, err = s.handleSessionStatus(ctx, callRequest("session_status", map[string]any{
		"session_id": "ses_tool",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	var again fsgate.SessionInfo
	require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &again))
	assert.Equal(t, info.Alias, again.Alias)
	assert.Equal(t, "allow_touch", again.Decision)
}

func TestNewMCPServerValidation(t *testing.T) {
	_, err := NewMCPServer(nil, func() string { return "" }, nil)
	assert.Error(t, err)
}
