package server

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/semaphore"

	"toolhost/internal/admin"
	"toolhost/internal/api"
	"toolhost/internal/config"
	"toolhost/internal/gateway"
	"toolhost/internal/mcpserver"
	"toolhost/internal/registry/memory"
	"toolhost/internal/supervisor"
)

type fakeController struct {
	mu      sync.Mutex
	running map[string]bool
	calls   []string
}

func (f *fakeController) record(op, id string, running bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, op+" "+id)
	f.running[id] = running
}

func (f *fakeController) StartServer(_ context.Context, id string) error {
	f.record("start", id, true)
	return nil
}

func (f *fakeController) StopServer(_ context.Context, id string) error {
	f.record("stop", id, false)
	return nil
}

func (f *fakeController) RestartServer(_ context.Context, id string) error {
	f.record("restart", id, true)
	return nil
}

func (f *fakeController) RemoveServer(_ context.Context, id string) error {
	f.record("remove", id, false)
	return nil
}

func (f *fakeController) IsRunning(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running[id]
}

func (f *fakeController) Runtime(id string) (api.RuntimeInfo, bool) {
	if !f.IsRunning(id) {
		return api.RuntimeInfo{}, false
	}
	return api.RuntimeInfo{ServerID: id, PID: 7, Ready: true}, true
}

func (f *fakeController) Logs(string) []string { return []string{"one", "two", "three"} }

type echoSession struct{}

func (echoSession) Initialize(context.Context) error { return nil }
func (echoSession) Close() error                     { return nil }

func (echoSession) ListTools(context.Context) ([]api.ToolInfo, error) {
	return []api.ToolInfo{{Name: "echo", Description: "Echo the input"}}, nil
}

func (echoSession) CallTool(_ context.Context, name string, args map[string]interface{}) (*api.ToolOutput, error) {
	text, _ := args["text"].(string)
	if text == "" {
		return &api.ToolOutput{Text: "text is required", IsError: true}, nil
	}
	return &api.ToolOutput{Text: text}, nil
}

type connector map[string]*supervisor.Conn

func (c connector) Conn(id string) (*supervisor.Conn, bool) {
	conn, ok := c[id]
	return conn, ok
}

type harness struct {
	srv  *Server
	reg  *memory.Registry
	ctrl *fakeController
	exe  string
	// echo is a HEALTHY server owned by u1 with a live connection.
	echo api.ServerDefinition
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	exe, err := os.Executable()
	require.NoError(t, err)

	ctx := context.Background()
	reg := memory.New()
	echo, err := reg.CreateServer(ctx, api.ServerDefinition{Name: "echo", Command: exe, Enabled: true, OwnerID: "u1"})
	require.NoError(t, err)
	require.NoError(t, reg.UpdateHealth(ctx, echo.ID, api.HealthHealthy, time.Now()))

	conns := connector{echo.ID: {ServerID: echo.ID, Session: echoSession{}, Calls: semaphore.NewWeighted(1), Done: make(chan struct{})}}
	ctrl := &fakeController{running: map[string]bool{echo.ID: true}}
	srv := New(admin.NewService(reg, ctrl, "admin"), gateway.New(reg, conns, time.Second), config.ServerConfig{Host: "localhost", Port: 8095}, "test")
	return &harness{srv: srv, reg: reg, ctrl: ctrl, exe: exe, echo: echo}
}

func (h *harness) call(t *testing.T, name string, args map[string]interface{}) *mcp.CallToolResult {
	t.Helper()
	for _, def := range h.srv.tools() {
		if def.tool.Name == name {
			res, err := def.handler(context.Background(), args)
			require.NoError(t, err)
			require.NotNil(t, res)
			return res
		}
	}
	t.Fatalf("tool %s is not registered", name)
	return nil
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.Len(t, res.Content, 1)
	text, ok := mcp.AsTextContent(res.Content[0])
	require.True(t, ok)
	return text.Text
}

func decode(t *testing.T, res *mcp.CallToolResult, v interface{}) {
	t.Helper()
	require.False(t, res.IsError, resultText(t, res))
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), v))
}

func TestTools_Registered(t *testing.T) {
	h := newHarness(t)

	var names []string
	for _, def := range h.srv.tools() {
		names = append(names, def.tool.Name)
	}
	sort.Strings(names)
	assert.Equal(t, []string{
		"server_create", "server_disable", "server_enable", "server_get", "server_list",
		"server_logs", "server_remove", "server_restart", "server_start", "server_stats",
		"server_stop", "server_update", "tool_calls", "tool_execute", "tool_servers",
	}, names)
}

func TestServerCreateAndList(t *testing.T) {
	h := newHarness(t)

	var created api.ServerDefinition
	decode(t, h.call(t, "server_create", map[string]interface{}{
		"name":    "weather",
		"command": h.exe,
		"args":    []interface{}{"--id={{ .ServerID }}"},
		"env":     map[string]interface{}{"REGION": "eu"},
		"ownerId": "u2",
	}), &created)
	assert.Equal(t, "u2", created.OwnerID)
	assert.True(t, created.Enabled)
	assert.Equal(t, map[string]string{"REGION": "eu"}, created.Env)

	var views []admin.ServerView
	decode(t, h.call(t, "server_list", map[string]interface{}{"ownerId": "u2"}), &views)
	require.Len(t, views, 1)
	assert.Equal(t, created.ID, views[0].ID)
	assert.False(t, views[0].Running)

	decode(t, h.call(t, "server_list", map[string]interface{}{}), &views)
	assert.Len(t, views, 2)
}

func TestServerCreate_InvalidArguments(t *testing.T) {
	h := newHarness(t)

	tests := []struct {
		name string
		args map[string]interface{}
		want string
	}{
		{"missing name", map[string]interface{}{"command": h.exe}, "name is required"},
		{"missing command", map[string]interface{}{"name": "x"}, "command is required"},
		{"bad args", map[string]interface{}{"name": "x", "command": h.exe, "args": []interface{}{1}}, "args[0] must be a string"},
		{"bad env", map[string]interface{}{"name": "x", "command": h.exe, "env": "A=1"}, "env must be an object of strings"},
		{"unknown command", map[string]interface{}{"name": "x", "command": "definitely-not-a-real-binary-xyz"}, "definitely-not-a-real-binary-xyz"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := h.call(t, "server_create", tt.args)
			assert.True(t, res.IsError)
			assert.Contains(t, resultText(t, res), tt.want)
		})
	}
}

func TestServerGet_OtherOwnerIsForbidden(t *testing.T) {
	h := newHarness(t)

	res := h.call(t, "server_get", map[string]interface{}{"id": h.echo.ID, "ownerId": "u2"})
	assert.True(t, res.IsError)
	assert.Contains(t, resultText(t, res), api.ErrForbidden.Error())

	var view admin.ServerView
	decode(t, h.call(t, "server_get", map[string]interface{}{"id": h.echo.ID, "ownerId": "u1"}), &view)
	assert.True(t, view.Running)
	require.NotNil(t, view.Runtime)
	assert.Equal(t, 7, view.Runtime.PID)
}

func TestServerUpdate_LaunchChangeRestarts(t *testing.T) {
	h := newHarness(t)

	var def api.ServerDefinition
	decode(t, h.call(t, "server_update", map[string]interface{}{
		"id":   h.echo.ID,
		"args": []interface{}{"--verbose"},
	}), &def)
	assert.Equal(t, []string{"--verbose"}, def.Args)
	assert.Contains(t, h.ctrl.calls, "restart "+h.echo.ID)
}

func TestLifecycleTools(t *testing.T) {
	h := newHarness(t)
	id := h.echo.ID

	for _, tc := range []struct{ tool, text, call string }{
		{"server_stop", "stopped", "stop"},
		{"server_start", "started", "start"},
		{"server_restart", "restarted", "restart"},
	} {
		res := h.call(t, tc.tool, map[string]interface{}{"id": id})
		require.False(t, res.IsError, resultText(t, res))
		assert.Equal(t, "Server "+id+" "+tc.text, resultText(t, res))
		assert.Contains(t, h.ctrl.calls, tc.call+" "+id)
	}

	var def api.ServerDefinition
	decode(t, h.call(t, "server_disable", map[string]interface{}{"id": id}), &def)
	assert.False(t, def.Enabled)
	decode(t, h.call(t, "server_enable", map[string]interface{}{"id": id}), &def)
	assert.True(t, def.Enabled)

	res := h.call(t, "server_remove", map[string]interface{}{"id": id})
	assert.False(t, res.IsError, resultText(t, res))

	res = h.call(t, "server_start", map[string]interface{}{})
	assert.True(t, res.IsError)
	assert.Equal(t, "id is required", resultText(t, res))
}

func TestServerLogs(t *testing.T) {
	h := newHarness(t)

	var lines []string
	decode(t, h.call(t, "server_logs", map[string]interface{}{"id": h.echo.ID, "lines": float64(2)}), &lines)
	assert.Equal(t, []string{"two", "three"}, lines)
}

func TestToolExecute_AuditAndStats(t *testing.T) {
	h := newHarness(t)

	var result api.ToolResult
	decode(t, h.call(t, "tool_execute", map[string]interface{}{
		"serverId":   h.echo.ID,
		"toolName":   "echo",
		"parameters": map[string]interface{}{"text": "hi"},
	}), &result)
	assert.Equal(t, "hi", result.Text)

	res := h.call(t, "tool_execute", map[string]interface{}{"serverId": h.echo.ID, "toolName": "echo"})
	assert.True(t, res.IsError)
	assert.Contains(t, resultText(t, res), "text is required")

	res = h.call(t, "tool_execute", map[string]interface{}{"serverId": "missing", "toolName": "echo"})
	assert.True(t, res.IsError)
	assert.Contains(t, resultText(t, res), api.ErrServerNotRunning.Error())

	var records []api.ToolCallRecord
	decode(t, h.call(t, "tool_calls", map[string]interface{}{"serverId": h.echo.ID}), &records)
	require.Len(t, records, 2)
	assert.False(t, records[0].Success)
	assert.True(t, records[1].Success)

	decode(t, h.call(t, "tool_calls", map[string]interface{}{"limit": float64(1)}), &records)
	assert.Len(t, records, 1)

	res = h.call(t, "tool_calls", map[string]interface{}{"since": "yesterday"})
	assert.True(t, res.IsError)

	var stats api.ServerStats
	decode(t, h.call(t, "server_stats", map[string]interface{}{"id": h.echo.ID}), &stats)
	assert.Equal(t, int64(2), stats.TotalCalls)
	assert.Equal(t, int64(1), stats.SuccessfulCalls)
}

func TestToolExecute_OtherOwnerIsForbidden(t *testing.T) {
	h := newHarness(t)

	res := h.call(t, "tool_execute", map[string]interface{}{
		"serverId":   h.echo.ID,
		"toolName":   "echo",
		"parameters": map[string]interface{}{"text": "hi"},
		"ownerId":    "u2",
	})
	assert.True(t, res.IsError)
	assert.Contains(t, resultText(t, res), api.ErrForbidden.Error())

	var records []api.ToolCallRecord
	decode(t, h.call(t, "tool_calls", map[string]interface{}{"serverId": h.echo.ID}), &records)
	assert.Empty(t, records)

	var result api.ToolResult
	decode(t, h.call(t, "tool_execute", map[string]interface{}{
		"serverId":   h.echo.ID,
		"toolName":   "echo",
		"parameters": map[string]interface{}{"text": "hi"},
		"ownerId":    "u1",
	}), &result)
	assert.Equal(t, "hi", result.Text)
}

func TestToolServers(t *testing.T) {
	h := newHarness(t)

	var servers []api.AvailableServer
	decode(t, h.call(t, "tool_servers", map[string]interface{}{"ownerId": "u1"}), &servers)
	require.Len(t, servers, 1)
	assert.Equal(t, h.echo.ID, servers[0].ID)
	assert.Equal(t, []api.ToolInfo{{Name: "echo", Description: "Echo the input"}}, servers[0].Tools)

	decode(t, h.call(t, "tool_servers", map[string]interface{}{"ownerId": "u2"}), &servers)
	assert.Empty(t, servers)
}

func TestServeStdio(t *testing.T) {
	h := newHarness(t)

	clientToServerR, clientToServerW := io.Pipe()
	serverToClientR, serverToClientW := io.Pipe()
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		_ = h.srv.ServeStdio(ctx, clientToServerR, serverToClientW)
	}()

	session := mcpserver.NewSession("toolhost", serverToClientR, clientToServerW)
	t.Cleanup(func() {
		session.Close()
		cancel()
		serverToClientW.Close()
		clientToServerR.Close()
	})

	callCtx, callCancel := context.WithTimeout(ctx, 5*time.Second)
	defer callCancel()
	require.NoError(t, session.Initialize(callCtx))

	tools, err := session.ListTools(callCtx)
	require.NoError(t, err)
	assert.Len(t, tools, len(h.srv.tools()))

	out, err := session.CallTool(callCtx, "server_get", map[string]interface{}{"id": h.echo.ID})
	require.NoError(t, err)
	assert.False(t, out.IsError)
	assert.Contains(t, out.Text, `"name": "echo"`)
}

func TestEndpoint(t *testing.T) {
	assert.Equal(t, "http://localhost:8095/mcp", Endpoint(config.ServerConfig{Host: "0.0.0.0", Port: 8095}))
	assert.Equal(t, "http://127.0.0.1:9000/mcp", Endpoint(config.ServerConfig{Host: "127.0.0.1", Port: 9000}))
}

func TestStop_BeforeStartIsNoOp(t *testing.T) {
	h := newHarness(t)
	assert.NoError(t, h.srv.Stop(context.Background()))
	assert.Nil(t, h.srv.Errors())
}
