package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"toolhost/internal/api"
)

func TestInitializeServices_WiresComponents(t *testing.T) {
	cfg := memoryConfig()
	cfg.Version = "1.2.3"

	services, err := InitializeServices(context.Background(), cfg)
	require.NoError(t, err)

	assert.NotNil(t, services.Supervisor)
	assert.NotNil(t, services.Monitor)
	assert.NotNil(t, services.Loader)
	assert.NotNil(t, services.Server)
	assert.Equal(t, "http://localhost:8095/mcp", services.Server.Endpoint())

	ctx := context.Background()
	def, err := services.Registry.CreateServer(ctx, api.ServerDefinition{Name: "x", Command: "x", Enabled: true, OwnerID: "u1"})
	require.NoError(t, err)

	view, err := services.Admin.Get(ctx, "u1", def.ID)
	require.NoError(t, err)
	assert.False(t, view.Running)

	servers, err := services.Gateway.ListServers(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, servers)
}

func TestInitializeServices_UnknownDriver(t *testing.T) {
	cfg := memoryConfig()
	cfg.Toolhost.Registry.Driver = "etcd"

	_, err := InitializeServices(context.Background(), cfg)
	assert.ErrorContains(t, err, "unknown registry driver")
}

func TestDriverName(t *testing.T) {
	assert.Equal(t, "file", driverName(""))
	assert.Equal(t, "postgres", driverName("postgres"))
}
