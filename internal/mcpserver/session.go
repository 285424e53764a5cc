// Package mcpserver speaks MCP to a tool-provider subprocess over its
// standard input and output.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	"toolhost/internal/api"
	"toolhost/pkg/logging"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"
)

// ClientName and ClientVersion identify toolhost in the initialize request.
var (
	ClientName    = "toolhost"
	ClientVersion = "dev"
)

// Session is an MCP client bound to an already running process. Closing the
// session closes the process's stdin; stopping the process is left to the
// supervisor.
type Session struct {
	serverID string
	client   *client.Client

	mu          sync.Mutex
	started     bool
	initialized bool
	closed      bool
}

// NewSession wraps the stdout (responses) and stdin (requests) of a process.
func NewSession(serverID string, stdout io.Reader, stdin io.WriteCloser) *Session {
	// stderr is captured by the process layer; the transport gets an empty
	// stream so Close has something to close.
	t := transport.NewIO(stdout, stdin, io.NopCloser(strings.NewReader("")))
	return &Session{
		serverID: serverID,
		client:   client.NewClient(t),
	}
}

func (s *Session) logContext() string {
	return "Session-" + s.serverID
}

// Initialize performs the MCP handshake. It is the readiness signal of a
// freshly started process.
func (s *Session) Initialize(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return fmt.Errorf("session for %s is closed", s.serverID)
	}
	if s.initialized {
		s.mu.Unlock()
		return nil
	}
	if !s.started {
		// The transport lives as long as the process, not as long as ctx.
		if err := s.client.Start(context.Background()); err != nil {
			s.mu.Unlock()
			return fmt.Errorf("failed to start MCP transport: %w", err)
		}
		s.started = true
	}
	s.mu.Unlock()

	// The handshake runs unlocked so Close can interrupt it.
	req := mcp.InitializeRequest{}
	req.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	req.Params.ClientInfo = mcp.Implementation{Name: ClientName, Version: ClientVersion}

	result, err := s.client.Initialize(ctx, req)
	if err != nil {
		return fmt.Errorf("failed to initialize MCP protocol: %w", err)
	}

	s.mu.Lock()
	s.initialized = true
	s.mu.Unlock()

	logging.Debug(s.logContext(), "Initialized %s %s (protocol %s)",
		result.ServerInfo.Name, result.ServerInfo.Version, result.ProtocolVersion)
	return nil
}

func (s *Session) ready() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("session for %s is closed", s.serverID)
	}
	if !s.initialized {
		return fmt.Errorf("session for %s is not initialized", s.serverID)
	}
	return nil
}

// ListTools returns the tools the process offers.
func (s *Session) ListTools(ctx context.Context) ([]api.ToolInfo, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}

	result, err := s.client.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, fmt.Errorf("failed to list tools: %w", err)
	}

	tools := make([]api.ToolInfo, 0, len(result.Tools))
	for _, tool := range result.Tools {
		tools = append(tools, api.ToolInfo{Name: tool.Name, Description: tool.Description})
	}
	return tools, nil
}

// CallTool performs one tools/call exchange. A result flagged isError is
// returned as output with IsError set, not as an error.
func (s *Session) CallTool(ctx context.Context, name string, args map[string]interface{}) (*api.ToolOutput, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}

	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args

	result, err := s.client.CallTool(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to call tool: %w", err)
	}
	return toToolOutput(result)
}

func toToolOutput(result *mcp.CallToolResult) (*api.ToolOutput, error) {
	var texts []string
	for _, content := range result.Content {
		if textContent, ok := mcp.AsTextContent(content); ok {
			texts = append(texts, textContent.Text)
		}
	}

	raw, err := json.Marshal(result.Content)
	if err != nil {
		return nil, fmt.Errorf("failed to encode tool result: %w", err)
	}

	return &api.ToolOutput{
		Text:    strings.Join(texts, "\n"),
		Content: raw,
		IsError: result.IsError,
	}, nil
}

// Ping checks that the process still answers requests.
func (s *Session) Ping(ctx context.Context) error {
	if err := s.ready(); err != nil {
		return err
	}
	return s.client.Ping(ctx)
}

// Close shuts the session down. It is safe to call more than once.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	if !s.started {
		return nil
	}
	return s.client.Close()
}
