// Package registrytest holds the behaviour every api.Registry driver must
// share. Driver tests call Run with a constructor for a fresh, empty store.
package registrytest

import (
	"context"
	"testing"
	"time"

	"toolhost/internal/api"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory returns an empty registry. Cleanup is the caller's business.
type Factory func(t *testing.T) api.Registry

// Run executes the shared registry test suite.
func Run(t *testing.T, newRegistry Factory) {
	t.Run("CreateAndGet", func(t *testing.T) { testCreateAndGet(t, newRegistry(t)) })
	t.Run("UpdateKeepsRuntimeFields", func(t *testing.T) { testUpdate(t, newRegistry(t)) })
	t.Run("ListFilters", func(t *testing.T) { testList(t, newRegistry(t)) })
	t.Run("SoftDelete", func(t *testing.T) { testSoftDelete(t, newRegistry(t)) })
	t.Run("HealthAndUsage", func(t *testing.T) { testHealthAndUsage(t, newRegistry(t)) })
	t.Run("ToolCalls", func(t *testing.T) { testToolCalls(t, newRegistry(t)) })
	t.Run("Stats", func(t *testing.T) { testStats(t, newRegistry(t)) })
}

func sample(name, owner string) api.ServerDefinition {
	return api.ServerDefinition{
		Name:        name,
		Description: "test server " + name,
		Command:     "/usr/bin/env",
		Args:        []string{"tool", "--stdio"},
		Env:         map[string]string{"API_KEY": "secret"},
		Enabled:     true,
		OwnerID:     owner,
	}
}

func testCreateAndGet(t *testing.T, reg api.Registry) {
	ctx := context.Background()

	created, err := reg.CreateServer(ctx, sample("weather", "u1"))
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, api.HealthUnknown, created.HealthStatus)
	assert.False(t, created.CreatedAt.IsZero())

	got, err := reg.GetServer(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "weather", got.Name)
	assert.Equal(t, []string{"tool", "--stdio"}, got.Args)
	assert.Equal(t, map[string]string{"API_KEY": "secret"}, got.Env)
	assert.True(t, got.Enabled)
	assert.Equal(t, "u1", got.OwnerID)

	// returned values are copies
	got.Args[0] = "changed"
	again, err := reg.GetServer(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "tool", again.Args[0])

	_, err = reg.GetServer(ctx, "does-not-exist")
	assert.True(t, api.IsNotFound(err), "got %v", err)

	withID := sample("fixed", "u1")
	withID.ID = "3f1c1a52-54c5-4b8e-9d1e-51a7f5c0a001"
	created, err = reg.CreateServer(ctx, withID)
	require.NoError(t, err)
	assert.Equal(t, withID.ID, created.ID)
	_, err = reg.CreateServer(ctx, withID)
	assert.Error(t, err, "duplicate ids are rejected")
}

func testUpdate(t *testing.T, reg api.Registry) {
	ctx := context.Background()

	created, err := reg.CreateServer(ctx, sample("weather", "u1"))
	require.NoError(t, err)
	require.NoError(t, reg.UpdateHealth(ctx, created.ID, api.HealthHealthy, time.Now()))
	require.NoError(t, reg.RecordUsage(ctx, created.ID, time.Now()))

	update := created
	update.Description = "updated"
	update.Args = []string{"--verbose"}
	update.Env = nil
	update.Enabled = false
	update.HealthStatus = api.HealthError
	update.TotalCalls = 99

	updated, err := reg.UpdateServer(ctx, update)
	require.NoError(t, err)
	assert.Equal(t, "updated", updated.Description)
	assert.Equal(t, []string{"--verbose"}, updated.Args)
	assert.Empty(t, updated.Env)
	assert.False(t, updated.Enabled)
	assert.Equal(t, api.HealthHealthy, updated.HealthStatus)
	assert.Equal(t, int64(1), updated.TotalCalls)
	assert.False(t, updated.UpdatedAt.Before(created.UpdatedAt))

	update.ID = "does-not-exist"
	_, err = reg.UpdateServer(ctx, update)
	assert.True(t, api.IsNotFound(err))
}

func testList(t *testing.T, reg api.Registry) {
	ctx := context.Background()

	a, err := reg.CreateServer(ctx, sample("a", "u1"))
	require.NoError(t, err)
	b := sample("b", "u1")
	b.Enabled = false
	_, err = reg.CreateServer(ctx, b)
	require.NoError(t, err)
	_, err = reg.CreateServer(ctx, sample("c", "u2"))
	require.NoError(t, err)
	d, err := reg.CreateServer(ctx, sample("d", "u1"))
	require.NoError(t, err)
	require.NoError(t, reg.SoftDeleteServer(ctx, d.ID))

	all, err := reg.ListServers(ctx, api.ServerFilter{})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b", "c"}, names(all))

	owned, err := reg.ListServers(ctx, api.ServerFilter{OwnerID: "u1"})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b"}, names(owned))

	enabled, err := reg.ListServers(ctx, api.ServerFilter{OwnerID: "u1", EnabledOnly: true})
	require.NoError(t, err)
	require.Len(t, enabled, 1)
	assert.Equal(t, a.ID, enabled[0].ID)

	withDeleted, err := reg.ListServers(ctx, api.ServerFilter{IncludeDeleted: true})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b", "c", "d"}, names(withDeleted))
}

func testSoftDelete(t *testing.T, reg api.Registry) {
	ctx := context.Background()

	created, err := reg.CreateServer(ctx, sample("weather", "u1"))
	require.NoError(t, err)
	require.NoError(t, reg.SoftDeleteServer(ctx, created.ID))

	_, err = reg.GetServer(ctx, created.ID)
	assert.True(t, api.IsNotFound(err))

	assert.True(t, api.IsNotFound(reg.SoftDeleteServer(ctx, created.ID)))
	assert.True(t, api.IsNotFound(reg.UpdateHealth(ctx, created.ID, api.HealthHealthy, time.Now())))

	listed, err := reg.ListServers(ctx, api.ServerFilter{IncludeDeleted: true})
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.True(t, listed[0].Deleted())
	assert.False(t, listed[0].Enabled)
}

func testHealthAndUsage(t *testing.T, reg api.Registry) {
	ctx := context.Background()

	created, err := reg.CreateServer(ctx, sample("weather", "u1"))
	require.NoError(t, err)

	checkedAt := time.Now().Add(-time.Minute).UTC().Truncate(time.Millisecond)
	require.NoError(t, reg.UpdateHealth(ctx, created.ID, api.HealthUnhealthy, checkedAt))

	usedAt := time.Now().UTC().Truncate(time.Millisecond)
	require.NoError(t, reg.RecordUsage(ctx, created.ID, usedAt))
	require.NoError(t, reg.RecordUsage(ctx, created.ID, usedAt))

	got, err := reg.GetServer(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, api.HealthUnhealthy, got.HealthStatus)
	require.NotNil(t, got.LastHealthCheck)
	assert.True(t, got.LastHealthCheck.Equal(checkedAt))
	require.NotNil(t, got.LastUsedAt)
	assert.True(t, got.LastUsedAt.Equal(usedAt))
	assert.Equal(t, int64(2), got.TotalCalls)

	assert.True(t, api.IsNotFound(reg.RecordUsage(ctx, "does-not-exist", usedAt)))
}

func testToolCalls(t *testing.T, reg api.Registry) {
	ctx := context.Background()

	server, err := reg.CreateServer(ctx, sample("weather", "u1"))
	require.NoError(t, err)
	other, err := reg.CreateServer(ctx, sample("other", "u1"))
	require.NoError(t, err)

	base := time.Now().Add(-time.Hour).UTC().Truncate(time.Millisecond)
	records := []api.ToolCallRecord{
		{ServerID: server.ID, ToolName: "forecast", Parameters: map[string]interface{}{"city": "Oslo"}, Success: true, ExecutionTime: 10 * time.Millisecond, Timestamp: base},
		{ServerID: server.ID, ToolName: "alerts", Error: "boom", Success: false, ExecutionTime: 30 * time.Millisecond, Timestamp: base.Add(time.Minute)},
		{ServerID: other.ID, ToolName: "forecast", Success: true, Timestamp: base.Add(2 * time.Minute)},
		{ServerID: server.ID, ToolName: "forecast", Response: []byte(`{"temp":3}`), Success: true, ExecutionTime: 20 * time.Millisecond, Timestamp: base.Add(3 * time.Minute)},
	}
	for _, rec := range records {
		require.NoError(t, reg.AppendToolCall(ctx, rec))
	}

	calls, err := reg.ListToolCalls(ctx, api.ToolCallQuery{ServerID: server.ID})
	require.NoError(t, err)
	require.Len(t, calls, 3)
	assert.True(t, calls[0].Timestamp.Equal(base.Add(3*time.Minute)), "newest first")
	assert.NotEmpty(t, calls[0].ID)
	assert.JSONEq(t, `{"temp":3}`, string(calls[0].Response))
	assert.Equal(t, "boom", calls[1].Error)
	assert.Equal(t, "Oslo", calls[2].Parameters["city"])

	limited, err := reg.ListToolCalls(ctx, api.ToolCallQuery{ToolName: "forecast", Limit: 2})
	require.NoError(t, err)
	require.Len(t, limited, 2)
	assert.Equal(t, server.ID, limited[0].ServerID)
	assert.Equal(t, other.ID, limited[1].ServerID)

	since, err := reg.ListToolCalls(ctx, api.ToolCallQuery{Since: base.Add(90 * time.Second)})
	require.NoError(t, err)
	assert.Len(t, since, 2)
}

func testStats(t *testing.T, reg api.Registry) {
	ctx := context.Background()

	server, err := reg.CreateServer(ctx, sample("weather", "u1"))
	require.NoError(t, err)

	empty, err := reg.ServerStats(ctx, server.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), empty.TotalCalls)
	assert.Nil(t, empty.LastCallAt)

	last := time.Now().UTC().Truncate(time.Millisecond)
	require.NoError(t, reg.AppendToolCall(ctx, api.ToolCallRecord{ServerID: server.ID, ToolName: "a", Success: true, ExecutionTime: 10 * time.Millisecond, Timestamp: last.Add(-time.Second)}))
	require.NoError(t, reg.AppendToolCall(ctx, api.ToolCallRecord{ServerID: server.ID, ToolName: "a", Success: false, ExecutionTime: 30 * time.Millisecond, Timestamp: last}))

	stats, err := reg.ServerStats(ctx, server.ID)
	require.NoError(t, err)
	assert.Equal(t, server.ID, stats.ServerID)
	assert.Equal(t, int64(2), stats.TotalCalls)
	assert.Equal(t, int64(1), stats.SuccessfulCalls)
	assert.Equal(t, int64(1), stats.FailedCalls)
	assert.Equal(t, 40*time.Millisecond, stats.TotalExecutionTime)
	assert.Equal(t, 20*time.Millisecond, stats.AverageExecutionTime)
	require.NotNil(t, stats.LastCallAt)
	assert.True(t, stats.LastCallAt.Equal(last))

	_, err = reg.ServerStats(ctx, "does-not-exist")
	assert.True(t, api.IsNotFound(err))
}

func names(defs []api.ServerDefinition) []string {
	out := make([]string, 0, len(defs))
	for _, def := range defs {
		out = append(out, def.Name)
	}
	return out
}
