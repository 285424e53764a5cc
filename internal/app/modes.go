package app

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"toolhost/internal/loader"
	"toolhost/pkg/logging"
)

// minShutdownTimeout bounds the whole shutdown sequence; it is raised to
// twice the stop grace period when that is longer.
const minShutdownTimeout = 30 * time.Second

// runServe runs the supervisor and its MCP endpoint until ctx ends, a
// termination signal arrives, or the endpoint fails.
func runServe(ctx context.Context, cfg *Config, services *Services) error {
	th := cfg.Toolhost

	ctx, stopSignals := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	// The event loop must outlive ctx so exits during shutdown are handled.
	services.Supervisor.Start(context.WithoutCancel(ctx))
	services.Monitor.Start(ctx)

	serveErr := make(chan error, 1)
	switch {
	case cfg.Stdio:
		go func() {
			serveErr <- services.Server.ServeStdio(ctx, os.Stdin, os.Stdout)
		}()
	case th.Server.Enabled:
		if err := services.Server.Start(ctx); err != nil {
			shutdown(th.Supervisor.StopGracePeriod, services)
			return err
		}
		logging.Info("App", "MCP endpoint listening on %s", services.Server.Endpoint())
		go func() {
			if err, ok := <-services.Server.Errors(); ok {
				serveErr <- err
			}
		}()
	default:
		logging.Warn("App", "MCP endpoint disabled; servers are supervised but not reachable")
	}

	if th.Loader.Enabled {
		runLoader(ctx, services.Loader)
	}

	notifySystemd(daemon.SdNotifyReady)
	logging.Info("App", "toolhost is running. Press Ctrl+C to stop.")

	var runErr error
	select {
	case <-ctx.Done():
		logging.Info("App", "Shutting down")
	case runErr = <-serveErr:
		if runErr != nil {
			logging.Error("App", runErr, "MCP endpoint failed")
		} else {
			logging.Info("App", "MCP session ended, shutting down")
		}
	}

	notifySystemd(daemon.SdNotifyStopping)
	if err := shutdown(th.Supervisor.StopGracePeriod, services); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

func runLoader(ctx context.Context, l *loader.Loader) {
	report, err := l.Load(ctx)
	if err != nil {
		logging.Error("App", err, "Startup loader failed")
		return
	}
	for id, err := range report.Errors {
		logging.Warn("App", "Server %s was not restarted: %v", id, err)
	}
	logging.Info("App", "Startup loader restarted %d of %d servers", report.Started, report.Attempted)
}

// shutdown stops the components in reverse dependency order. The first
// error is returned; later steps run regardless.
func shutdown(grace time.Duration, services *Services) error {
	timeout := minShutdownTimeout
	if 2*grace > timeout {
		timeout = 2 * grace
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var firstErr error
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if err := services.Server.Stop(ctx); err != nil {
		logging.Error("App", err, "Failed to stop the MCP endpoint")
		keep(err)
	}
	services.Monitor.Stop()
	if err := services.Supervisor.Shutdown(ctx); err != nil {
		logging.Error("App", err, "Failed to stop every supervised server")
		keep(err)
	}
	if err := services.Registry.Close(); err != nil {
		logging.Error("App", err, "Failed to close the registry")
		keep(err)
	}
	logging.Info("App", "Shutdown complete")
	return firstErr
}

// notifySystemd is a no-op outside a systemd notify unit.
func notifySystemd(state string) {
	sent, err := daemon.SdNotify(false, state)
	if err != nil {
		logging.Warn("App", "Failed to notify systemd (%s): %v", state, err)
		return
	}
	if sent {
		logging.Debug("App", "Notified systemd: %s", state)
	}
}
