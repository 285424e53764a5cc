// Package health runs the periodic liveness pass over supervised servers.
package health

import (
	"context"
	"fmt"
	"sync"
	"time"

	"toolhost/internal/api"
	"toolhost/internal/config"
	"toolhost/pkg/logging"

	"golang.org/x/sync/errgroup"
)

// Target is the part of the supervisor the monitor depends on.
type Target interface {
	SupervisedIDs() []string
	RefreshHealth(ctx context.Context, id string) (api.HealthStatus, error)
}

// PassResult summarises one monitoring pass.
type PassResult struct {
	Checked   int
	Healthy   int
	Unhealthy int
	Failed    int
}

// Monitor refreshes the persisted health of every ready server on a fixed
// interval.
type Monitor struct {
	target      Target
	interval    time.Duration
	timeout     time.Duration
	concurrency int

	mu      sync.Mutex
	cancel  context.CancelFunc
	stopped chan struct{}
}

// NewMonitor creates a Monitor. Zero settings fall back to the defaults.
func NewMonitor(target Target, cfg config.HealthConfig) *Monitor {
	interval := cfg.Interval
	if interval <= 0 {
		interval = config.DefaultHealthCheckInterval
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = config.DefaultConcurrency
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = config.DefaultHealthCheckTimeout
	}
	return &Monitor{target: target, interval: interval, timeout: timeout, concurrency: concurrency}
}

// Start launches the monitoring loop. It returns immediately; the loop
// ends when ctx is cancelled or Stop is called.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel != nil {
		return
	}

	ctx, m.cancel = context.WithCancel(ctx)
	m.stopped = make(chan struct{})
	go m.loop(ctx, m.stopped)
	logging.Info("HealthMonitor", "Checking supervised servers every %s", m.interval)
}

// Stop ends the loop and waits for the current pass to finish.
func (m *Monitor) Stop() {
	m.mu.Lock()
	cancel, stopped := m.cancel, m.stopped
	m.cancel, m.stopped = nil, nil
	m.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-stopped
}

func (m *Monitor) loop(ctx context.Context, stopped chan<- struct{}) {
	defer close(stopped)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.RunOnce(ctx)
		}
	}
}

// RunOnce checks every supervised server once. A failing or panicking
// check is logged and counted; it never stops the others.
func (m *Monitor) RunOnce(ctx context.Context) PassResult {
	ids := m.target.SupervisedIDs()

	var (
		mu     sync.Mutex
		result = PassResult{Checked: len(ids)}
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.concurrency)
	for _, id := range ids {
		g.Go(func() error {
			status, err := m.check(gctx, id)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				result.Failed++
			case status == api.HealthHealthy:
				result.Healthy++
			default:
				result.Unhealthy++
			}
			// never abort the pass
			return nil
		})
	}
	g.Wait()

	if result.Failed > 0 || result.Unhealthy > 0 {
		logging.Warn("HealthMonitor", "Pass checked %d servers: %d healthy, %d unhealthy, %d failed",
			result.Checked, result.Healthy, result.Unhealthy, result.Failed)
	} else {
		logging.Debug("HealthMonitor", "Pass checked %d servers, all healthy", result.Checked)
	}
	return result
}

func (m *Monitor) check(ctx context.Context, id string) (status api.HealthStatus, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("health check panicked: %v", r)
			logging.Error("HealthMonitor", err, "Checking server %s", id)
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	status, err = m.target.RefreshHealth(ctx, id)
	if err != nil {
		logging.Error("HealthMonitor", err, "Checking server %s", id)
		return "", err
	}
	if status != api.HealthHealthy {
		logging.Warn("HealthMonitor", "Server %s is %s", id, status)
	}
	return status, nil
}
