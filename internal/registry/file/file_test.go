package file

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"toolhost/internal/api"
	"toolhost/internal/registry/registrytest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTemp(t *testing.T) (*Registry, string) {
	t.Helper()
	dir := t.TempDir()
	reg, err := Open(dir)
	require.NoError(t, err)
	t.Cleanup(func() { reg.Close() })
	return reg, dir
}

func TestRegistry(t *testing.T) {
	registrytest.Run(t, func(t *testing.T) api.Registry {
		reg, _ := openTemp(t)
		return reg
	})
}

func TestReopenRestoresState(t *testing.T) {
	ctx := context.Background()
	reg, dir := openTemp(t)

	def, err := reg.CreateServer(ctx, api.ServerDefinition{
		Name:    "weather",
		Command: "weather-mcp",
		Args:    []string{"--stdio"},
		Env:     map[string]string{"TOKEN": "abc"},
		Enabled: true,
		OwnerID: "u1",
	})
	require.NoError(t, err)
	require.NoError(t, reg.UpdateHealth(ctx, def.ID, api.HealthHealthy, time.Now()))
	require.NoError(t, reg.AppendToolCall(ctx, api.ToolCallRecord{ServerID: def.ID, ToolName: "forecast", Success: true}))
	require.NoError(t, reg.Close())

	reopened, err := Open(dir)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.GetServer(ctx, def.ID)
	require.NoError(t, err)
	assert.Equal(t, "weather", got.Name)
	assert.Equal(t, []string{"--stdio"}, got.Args)
	assert.Equal(t, map[string]string{"TOKEN": "abc"}, got.Env)
	assert.Equal(t, api.HealthHealthy, got.HealthStatus)

	calls, err := reopened.ListToolCalls(ctx, api.ToolCallQuery{ServerID: def.ID})
	require.NoError(t, err)
	require.Len(t, calls, 1)
	assert.Equal(t, "forecast", calls[0].ToolName)
}

func TestOpenSkipsMalformedDocuments(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, entityServers), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, entityServers, "broken.yaml"), []byte("name: [unterminated"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, entityServers, "manual.yaml"), []byte("name: manual\ncommand: tool\nenabled: true\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, callsFile), []byte("{not json}\n\n"), 0o600))

	reg, err := Open(dir)
	require.NoError(t, err)
	defer reg.Close()

	def, err := reg.GetServer(context.Background(), "manual")
	require.NoError(t, err)
	assert.Equal(t, "manual", def.ID)
	assert.Equal(t, api.HealthUnknown, def.HealthStatus)
}

func TestWatchReloadsExternalEdits(t *testing.T) {
	ctx := context.Background()
	reg, dir := openTemp(t)
	require.NoError(t, reg.Watch())

	def, err := reg.CreateServer(ctx, api.ServerDefinition{ID: "ext", Name: "before", Command: "tool", OwnerID: "u1"})
	require.NoError(t, err)

	path := filepath.Join(dir, entityServers, def.ID+".yaml")
	edited := "id: ext\nname: after\ncommand: tool\nownerId: u1\nenabled: true\n"
	require.NoError(t, os.WriteFile(path, []byte(edited), 0o644))

	require.Eventually(t, func() bool {
		got, err := reg.GetServer(ctx, def.ID)
		return err == nil && got.Name == "after" && got.Enabled
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, os.Remove(path))
	require.Eventually(t, func() bool {
		_, err := reg.GetServer(ctx, def.ID)
		return api.IsNotFound(err)
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWatchRemovesBySanitizedFileName(t *testing.T) {
	ctx := context.Background()
	reg, dir := openTemp(t)
	require.NoError(t, reg.Watch())

	def, err := reg.CreateServer(ctx, api.ServerDefinition{ID: "team/echo tool", Name: "echo", Command: "tool", OwnerID: "u1"})
	require.NoError(t, err)
	_, err = reg.CreateServer(ctx, api.ServerDefinition{ID: "team_echo", Name: "other", Command: "tool", OwnerID: "u1"})
	require.NoError(t, err)

	path := filepath.Join(dir, entityServers, "team_echo_tool.yaml")
	require.FileExists(t, path)
	require.NoError(t, os.Remove(path))

	require.Eventually(t, func() bool {
		_, err := reg.GetServer(ctx, def.ID)
		return api.IsNotFound(err)
	}, 2*time.Second, 10*time.Millisecond)

	_, err = reg.GetServer(ctx, "team_echo")
	assert.NoError(t, err)
}
