package server

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"toolhost/internal/admin"
	"toolhost/internal/config"
	"toolhost/internal/gateway"
	"toolhost/pkg/logging"
)

const (
	serverName    = "toolhost"
	endpointPath  = "/mcp"
	shutdownGrace = 5 * time.Second
)

// Server serves the administrative and AI-layer tools over MCP.
type Server struct {
	admin   *admin.Service
	gateway *gateway.Gateway
	cfg     config.ServerConfig
	version string

	mcp *server.MCPServer

	mu         sync.Mutex
	streamable *server.StreamableHTTPServer
	errCh      chan error
}

// New creates a Server and registers its tools.
func New(adminSvc *admin.Service, gw *gateway.Gateway, cfg config.ServerConfig, version string) *Server {
	if version == "" {
		version = "dev"
	}
	s := &Server{
		admin:   adminSvc,
		gateway: gw,
		cfg:     cfg,
		version: version,
	}
	s.mcp = server.NewMCPServer(serverName, version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)
	for _, def := range s.tools() {
		s.mcp.AddTool(def.tool, wrap(def.tool.Name, def.handler))
	}
	return s
}

func wrap(name string, h toolHandler) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := req.GetArguments()
		if args == nil {
			args = map[string]interface{}{}
		}
		logging.Debug("Server", "Tool %s called", name)
		return h(ctx, args)
	}
}

// MCPServer returns the underlying MCP server.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

// Addr is the host:port the HTTP transport listens on.
func (s *Server) Addr() string {
	return fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
}

// Endpoint is the URL clients connect to.
func (s *Server) Endpoint() string {
	return Endpoint(s.cfg)
}

// Endpoint returns the streamable HTTP URL for cfg.
func Endpoint(cfg config.ServerConfig) string {
	host := cfg.Host
	if host == "" || host == "0.0.0.0" {
		host = "localhost"
	}
	return fmt.Sprintf("http://%s:%d%s", host, cfg.Port, endpointPath)
}

// Start serves the streamable HTTP transport in the background. Listen
// failures are reported on Errors.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.streamable != nil {
		return fmt.Errorf("server already started")
	}

	addr := s.Addr()
	logging.Info("Server", "Starting MCP server with streamable-http transport on %s", addr)
	s.streamable = server.NewStreamableHTTPServer(s.mcp, server.WithEndpointPath(endpointPath))
	s.errCh = make(chan error, 1)

	streamable, errCh := s.streamable, s.errCh
	go func() {
		if err := streamable.Start(addr); err != nil && err != http.ErrServerClosed {
			logging.Error("Server", err, "Streamable HTTP server error")
			errCh <- err
		}
		close(errCh)
	}()
	return nil
}

// Errors yields a listen error, if any, and is closed once the transport
// has stopped. It is nil before Start.
func (s *Server) Errors() <-chan error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errCh
}

// Stop shuts the HTTP transport down.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	streamable := s.streamable
	s.streamable = nil
	s.mu.Unlock()
	if streamable == nil {
		return nil
	}

	logging.Info("Server", "Stopping MCP server")
	shutdownCtx, cancel := context.WithTimeout(ctx, shutdownGrace)
	defer cancel()
	if err := streamable.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down streamable HTTP server: %w", err)
	}
	return nil
}

// ServeStdio serves the tools on in/out until ctx is cancelled or in is
// closed.
func (s *Server) ServeStdio(ctx context.Context, in io.Reader, out io.Writer) error {
	logging.Info("Server", "Serving MCP over stdio")
	return server.NewStdioServer(s.mcp).Listen(ctx, in, out)
}
