// Package gateway executes tool calls on behalf of the AI layer against
// running servers and keeps the audit log.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"toolhost/internal/api"
	"toolhost/internal/config"
	"toolhost/internal/supervisor"
	"toolhost/pkg/logging"

	"golang.org/x/sync/singleflight"
)

// ErrProcessExited is wrapped when a server exits while a call is pending.
var ErrProcessExited = errors.New("server process exited during the call")

// auditTimeout bounds audit writes, which outlive the caller's context.
const auditTimeout = 5 * time.Second

// Connector hands out connections to ready servers.
type Connector interface {
	Conn(id string) (*supervisor.Conn, bool)
}

// Gateway is the tool invocation gateway.
type Gateway struct {
	registry api.Registry
	conns    Connector
	timeout  time.Duration
	now      func() time.Time

	// catalogues coalesces concurrent tools/list requests per server.
	catalogues singleflight.Group
}

// New creates a Gateway. A non-positive timeout selects the default.
func New(registry api.Registry, conns Connector, timeout time.Duration) *Gateway {
	if timeout <= 0 {
		timeout = config.DefaultToolCallTimeout
	}
	return &Gateway{registry: registry, conns: conns, timeout: timeout, now: time.Now}
}

// ExecuteTool performs one tool call on a running server. Every call,
// including one against a server that is not running, leaves exactly one
// audit record. Failures never change the server's health.
func (g *Gateway) ExecuteTool(ctx context.Context, serverID, toolName string, params map[string]interface{}) (*api.ToolResult, error) {
	start := g.now()
	rec := api.ToolCallRecord{
		ServerID:   serverID,
		ToolName:   toolName,
		Parameters: params,
		Timestamp:  start,
	}

	conn, ok := g.conns.Conn(serverID)
	if !ok {
		err := &api.ToolExecutionError{ServerID: serverID, ToolName: toolName, Err: api.ErrServerNotRunning}
		g.fail(rec, start, api.ErrServerNotRunning.Error())
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	output, err := g.call(callCtx, conn, toolName, params)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			err = fmt.Errorf("no response within %s: %w", g.timeout, err)
		}
		g.fail(rec, start, err.Error())
		return nil, &api.ToolExecutionError{ServerID: serverID, ToolName: toolName, Err: err}
	}
	if output.IsError {
		rec.Response = output.Content
		g.fail(rec, start, output.Text)
		return nil, &api.ToolExecutionError{ServerID: serverID, ToolName: toolName, Message: output.Text}
	}

	elapsed := g.now().Sub(start)
	rec.Success = true
	rec.Response = output.Content
	rec.ExecutionTime = elapsed
	g.audit(rec)

	auditCtx, auditCancel := context.WithTimeout(context.Background(), auditTimeout)
	defer auditCancel()
	if err := g.registry.RecordUsage(auditCtx, serverID, g.now()); err != nil {
		logging.Error("Gateway", err, "Failed to record usage of server %s", serverID)
	}

	logging.Debug("Gateway", "Tool %s on %s succeeded in %s", toolName, serverID, elapsed)
	return &api.ToolResult{
		ServerID:      serverID,
		ToolName:      toolName,
		Text:          output.Text,
		Content:       output.Content,
		ExecutionTime: elapsed,
	}, nil
}

// call runs one exchange while holding the server's call slot. It gives up
// when ctx ends or the process exits.
func (g *Gateway) call(ctx context.Context, conn *supervisor.Conn, toolName string, params map[string]interface{}) (*api.ToolOutput, error) {
	if err := conn.Calls.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("waiting for a call slot: %w", err)
	}

	type outcome struct {
		output *api.ToolOutput
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		defer conn.Calls.Release(1)
		output, err := conn.Session.CallTool(ctx, toolName, params)
		done <- outcome{output, err}
	}()

	select {
	case res := <-done:
		return res.output, res.err
	case <-conn.Done:
		return nil, ErrProcessExited
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (g *Gateway) fail(rec api.ToolCallRecord, start time.Time, message string) {
	rec.Success = false
	rec.Error = message
	rec.ExecutionTime = g.now().Sub(start)
	g.audit(rec)
	logging.Warn("Gateway", "Tool %s on %s failed: %s", rec.ToolName, rec.ServerID, message)
}

func (g *Gateway) audit(rec api.ToolCallRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), auditTimeout)
	defer cancel()
	if err := g.registry.AppendToolCall(ctx, rec); err != nil {
		logging.Error("Gateway", err, "Failed to record call of %s on %s", rec.ToolName, rec.ServerID)
	}
}

// ListServers returns the owner's servers that are running and healthy,
// with the tools each one offers. A server whose catalogue cannot be read
// is left out.
func (g *Gateway) ListServers(ctx context.Context, ownerID string) ([]api.AvailableServer, error) {
	defs, err := g.registry.ListServers(ctx, api.ServerFilter{OwnerID: ownerID, EnabledOnly: true})
	if err != nil {
		return nil, fmt.Errorf("failed to list servers: %w", err)
	}

	out := []api.AvailableServer{}
	for _, def := range defs {
		if def.HealthStatus != api.HealthHealthy {
			continue
		}
		conn, ok := g.conns.Conn(def.ID)
		if !ok {
			continue
		}
		tools, err := g.tools(ctx, conn)
		if err != nil {
			logging.Warn("Gateway", "Skipping server %s: %v", def.ID, err)
			continue
		}
		out = append(out, api.AvailableServer{
			ID:          def.ID,
			Name:        def.Name,
			Description: def.Description,
			Tools:       tools,
		})
	}
	return out, nil
}

func (g *Gateway) tools(ctx context.Context, conn *supervisor.Conn) ([]api.ToolInfo, error) {
	v, err, _ := g.catalogues.Do(conn.ServerID, func() (interface{}, error) {
		listCtx, cancel := context.WithTimeout(ctx, g.timeout)
		defer cancel()
		return conn.Session.ListTools(listCtx)
	})
	if err != nil {
		return nil, err
	}
	return v.([]api.ToolInfo), nil
}

// ListToolCalls queries the audit log.
func (g *Gateway) ListToolCalls(ctx context.Context, query api.ToolCallQuery) ([]api.ToolCallRecord, error) {
	return g.registry.ListToolCalls(ctx, query)
}
