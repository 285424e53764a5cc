package app

import (
	"context"
	"fmt"

	"toolhost/internal/admin"
	"toolhost/internal/api"
	"toolhost/internal/gateway"
	"toolhost/internal/health"
	"toolhost/internal/loader"
	"toolhost/internal/mcpserver"
	"toolhost/internal/process"
	"toolhost/internal/registry"
	"toolhost/internal/server"
	"toolhost/internal/supervisor"
	"toolhost/pkg/logging"
)

// Services holds every component of a running toolhost.
//
// Construction order follows the dependencies:
//  1. Registry (storage for definitions and the audit log)
//  2. Supervisor (exec launcher plus an MCP client session per process)
//  3. Health monitor and startup loader, both driving the supervisor
//  4. Admin service and gateway
//  5. MCP server exposing both
type Services struct {
	Registry   api.Registry
	Supervisor *supervisor.Supervisor
	Monitor    *health.Monitor
	Loader     *loader.Loader
	Admin      *admin.Service
	Gateway    *gateway.Gateway
	Server     *server.Server
}

// newSession speaks MCP to a spawned process over its stdio pipes.
func newSession(serverID string, proc process.Process) supervisor.Session {
	return mcpserver.NewSession(serverID, proc.Stdout(), proc.Stdin())
}

// InitializeServices creates all services. The registry is opened here and
// closed by the shutdown sequence; on error it is closed before returning.
func InitializeServices(ctx context.Context, cfg *Config) (*Services, error) {
	th := cfg.Toolhost

	reg, err := registry.Open(ctx, th.Registry)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s registry: %w", th.Registry.Driver, err)
	}
	logging.Info("Bootstrap", "Opened %s registry", driverName(th.Registry.Driver))

	sup := supervisor.New(reg,
		process.NewExecLauncher(th.Supervisor.LogLines),
		newSession,
		supervisor.OptionsFromConfig(th.Supervisor),
	)

	adminSvc := admin.NewService(reg, sup, th.DefaultOwner)
	gw := gateway.New(reg, sup, th.Supervisor.ToolCallTimeout)

	return &Services{
		Registry:   reg,
		Supervisor: sup,
		Monitor:    health.NewMonitor(sup, th.Health),
		Loader:     loader.New(reg, sup, th.Loader.Concurrency),
		Admin:      adminSvc,
		Gateway:    gw,
		Server:     server.New(adminSvc, gw, th.Server, cfg.Version),
	}, nil
}

func driverName(driver string) string {
	if driver == "" {
		return "file"
	}
	return driver
}
