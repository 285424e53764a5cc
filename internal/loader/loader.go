// Package loader brings back, at boot, the servers that were healthy when
// the previous run ended.
package loader

import (
	"context"
	"fmt"
	"sync"

	"toolhost/internal/api"
	"toolhost/internal/config"
	"toolhost/pkg/logging"

	"golang.org/x/sync/errgroup"
)

// Starter starts one server and waits until it is ready.
type Starter interface {
	StartServer(ctx context.Context, id string) error
}

// LoadReport counts the outcome of a load.
type LoadReport struct {
	Attempted int
	Started   int
	Failed    int
	Errors    map[string]error
}

// Loader auto-starts servers on boot.
type Loader struct {
	registry    api.Registry
	starter     Starter
	concurrency int
}

// New creates a Loader. A non-positive concurrency selects the default.
func New(registry api.Registry, starter Starter, concurrency int) *Loader {
	if concurrency <= 0 {
		concurrency = config.DefaultConcurrency
	}
	return &Loader{registry: registry, starter: starter, concurrency: concurrency}
}

// Load starts every enabled definition whose last known status is HEALTHY.
// A failing start is logged and counted; the others proceed. Only a failure
// to read the registry is returned as an error.
func (l *Loader) Load(ctx context.Context) (LoadReport, error) {
	defs, err := l.registry.ListServers(ctx, api.ServerFilter{EnabledOnly: true})
	if err != nil {
		return LoadReport{}, fmt.Errorf("failed to list servers: %w", err)
	}

	var (
		mu     sync.Mutex
		report = LoadReport{Errors: make(map[string]error)}
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.concurrency)
	for _, def := range defs {
		if def.HealthStatus != api.HealthHealthy {
			logging.Debug("Loader", "Skipping server %s (%s), last status %s", def.Name, def.ID, def.HealthStatus)
			continue
		}
		report.Attempted++
		g.Go(func() error {
			err := l.starter.StartServer(gctx, def.ID)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				report.Failed++
				report.Errors[def.ID] = err
				logging.Error("Loader", err, "Failed to start server %s (%s)", def.Name, def.ID)
				return nil
			}
			report.Started++
			return nil
		})
	}
	g.Wait()

	logging.Info("Loader", "Started %d of %d previously healthy servers (%d failed)",
		report.Started, report.Attempted, report.Failed)
	return report, nil
}
