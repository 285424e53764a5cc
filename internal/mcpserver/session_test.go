package mcpserver

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newPipedSession connects a Session to an in-process MCP server the same
// way a subprocess would be connected: through a pair of byte streams.
func newPipedSession(t *testing.T) *Session {
	t.Helper()

	s := server.NewMCPServer("provider", "1.0.0", server.WithToolCapabilities(true))
	s.AddTool(mcp.NewTool("lookup",
		mcp.WithDescription("Look up a value"),
		mcp.WithString("q", mcp.Required()),
	), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		q, _ := req.GetArguments()["q"].(string)
		return mcp.NewToolResultText("result for " + q), nil
	})
	s.AddTool(mcp.NewTool("fail"), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return mcp.NewToolResultError("no such record"), nil
	})

	clientToServerR, clientToServerW := io.Pipe()
	serverToClientR, serverToClientW := io.Pipe()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		_ = server.NewStdioServer(s).Listen(ctx, clientToServerR, serverToClientW)
	}()

	session := NewSession("s1", serverToClientR, clientToServerW)
	t.Cleanup(func() {
		session.Close()
		cancel()
		serverToClientW.Close()
		clientToServerR.Close()
	})
	return session
}

func TestSession_InitializeAndCall(t *testing.T) {
	session := newPipedSession(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, session.Initialize(ctx))
	require.NoError(t, session.Initialize(ctx), "second initialize is a no-op")

	tools, err := session.ListTools(ctx)
	require.NoError(t, err)
	names := make([]string, 0, len(tools))
	for _, tool := range tools {
		names = append(names, tool.Name)
	}
	assert.ElementsMatch(t, []string{"lookup", "fail"}, names)

	out, err := session.CallTool(ctx, "lookup", map[string]interface{}{"q": "x"})
	require.NoError(t, err)
	assert.False(t, out.IsError)
	assert.Equal(t, "result for x", out.Text)
	assert.Contains(t, string(out.Content), "result for x")

	require.NoError(t, session.Ping(ctx))
}

func TestSession_ChildReportedError(t *testing.T) {
	session := newPipedSession(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, session.Initialize(ctx))

	out, err := session.CallTool(ctx, "fail", nil)
	require.NoError(t, err)
	assert.True(t, out.IsError)
	assert.Equal(t, "no such record", out.Text)
}

func TestSession_UseBeforeInitialize(t *testing.T) {
	session := newPipedSession(t)

	_, err := session.CallTool(context.Background(), "lookup", nil)
	assert.ErrorContains(t, err, "not initialized")
}

func TestSession_InitializeHonoursContext(t *testing.T) {
	// requests are read and discarded; nobody ever answers
	stdoutR, stdoutW := io.Pipe()
	stdinR, stdinW := io.Pipe()
	go io.Copy(io.Discard, stdinR)
	defer stdoutW.Close()
	session := NewSession("silent", stdoutR, stdinW)
	defer session.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	require.Error(t, session.Initialize(ctx))
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestSession_CloseIsIdempotent(t *testing.T) {
	session := newPipedSession(t)
	require.NoError(t, session.Close())
	require.NoError(t, session.Close())

	err := session.Initialize(context.Background())
	assert.ErrorContains(t, err, "closed")
}
