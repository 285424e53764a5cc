//go:build integration

package postgres

import (
	"context"
	"fmt"
	"testing"
	"time"

	"toolhost/internal/api"
	"toolhost/internal/registry/registrytest"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func startPostgres(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "toolhost",
				"POSTGRES_PASSWORD": "toolhost",
				"POSTGRES_DB":       "toolhost",
			},
			WaitingFor: wait.ForAll(
				wait.ForListeningPort("5432/tcp"),
				wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
			).WithDeadline(60 * time.Second),
		},
		Started: true,
	}
	container, err := testcontainers.GenericContainer(ctx, req)
	require.NoError(t, err)
	t.Cleanup(func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		container.Terminate(cleanupCtx)
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	return fmt.Sprintf("postgres://toolhost:toolhost@%s:%s/toolhost?sslmode=disable", host, port.Port())
}

func TestRegistry(t *testing.T) {
	dsn := startPostgres(t)
	ctx := context.Background()

	reg, err := Open(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { reg.Close() })
	require.NoError(t, reg.Init(ctx))
	require.NoError(t, reg.Init(ctx), "schema must be re-appliable")

	registrytest.Run(t, func(t *testing.T) api.Registry {
		_, err := reg.pool.Exec(ctx, `TRUNCATE toolhost.servers, toolhost.tool_calls`)
		require.NoError(t, err)
		return reg
	})
}
