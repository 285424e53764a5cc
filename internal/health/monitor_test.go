package health

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"toolhost/internal/api"
	"toolhost/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTarget struct {
	ids []string

	mu       sync.Mutex
	statuses map[string]api.HealthStatus
	errs     map[string]error
	panics   map[string]bool
	checked  []string

	active    atomic.Int32
	maxActive atomic.Int32
	delay     time.Duration
	// stall makes these ids wait for their context to end.
	stall map[string]bool
}

func (f *fakeTarget) SupervisedIDs() []string { return f.ids }

func (f *fakeTarget) RefreshHealth(ctx context.Context, id string) (api.HealthStatus, error) {
	if f.stall[id] {
		<-ctx.Done()
		f.mu.Lock()
		f.checked = append(f.checked, id)
		f.mu.Unlock()
		return "", ctx.Err()
	}

	n := f.active.Add(1)
	defer f.active.Add(-1)
	for {
		peak := f.maxActive.Load()
		if n <= peak || f.maxActive.CompareAndSwap(peak, n) {
			break
		}
	}
	time.Sleep(f.delay)

	f.mu.Lock()
	f.checked = append(f.checked, id)
	status, err, panics := f.statuses[id], f.errs[id], f.panics[id]
	f.mu.Unlock()

	if panics {
		panic("session vanished")
	}
	if err != nil {
		return "", err
	}
	if status == "" {
		status = api.HealthHealthy
	}
	return status, nil
}

func (f *fakeTarget) checkedIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.checked...)
}

func TestRunOnce_IsolatesFailures(t *testing.T) {
	target := &fakeTarget{
		ids:      []string{"a", "b", "c", "d"},
		statuses: map[string]api.HealthStatus{"c": api.HealthUnhealthy},
		errs:     map[string]error{"a": errors.New("registry unavailable")},
		panics:   map[string]bool{"b": true},
	}
	m := NewMonitor(target, config.HealthConfig{Interval: time.Hour, Concurrency: 2})

	result := m.RunOnce(context.Background())

	assert.Equal(t, PassResult{Checked: 4, Healthy: 1, Unhealthy: 1, Failed: 2}, result)
	assert.ElementsMatch(t, []string{"a", "b", "c", "d"}, target.checkedIDs())
}

func TestRunOnce_BoundedConcurrency(t *testing.T) {
	target := &fakeTarget{
		ids:   []string{"a", "b", "c", "d", "e", "f", "g", "h"},
		delay: 20 * time.Millisecond,
	}
	m := NewMonitor(target, config.HealthConfig{Concurrency: 3})

	result := m.RunOnce(context.Background())

	assert.Equal(t, 8, result.Healthy)
	assert.LessOrEqual(t, target.maxActive.Load(), int32(3))
}

func TestRunOnce_StalledCheckTimesOut(t *testing.T) {
	target := &fakeTarget{
		ids:   []string{"a", "b", "c"},
		stall: map[string]bool{"b": true},
	}
	m := NewMonitor(target, config.HealthConfig{Concurrency: 1, Timeout: 30 * time.Millisecond})

	start := time.Now()
	result := m.RunOnce(context.Background())

	assert.Equal(t, PassResult{Checked: 3, Healthy: 2, Failed: 1}, result)
	assert.ElementsMatch(t, []string{"a", "b", "c"}, target.checkedIDs())
	assert.Less(t, time.Since(start), time.Second)
}

func TestRunOnce_NothingSupervised(t *testing.T) {
	m := NewMonitor(&fakeTarget{}, config.HealthConfig{})
	assert.Equal(t, PassResult{}, m.RunOnce(context.Background()))
}

func TestStartStop(t *testing.T) {
	target := &fakeTarget{ids: []string{"a"}}
	m := NewMonitor(target, config.HealthConfig{Interval: 10 * time.Millisecond})

	m.Start(context.Background())
	m.Start(context.Background())
	require.Eventually(t, func() bool { return len(target.checkedIDs()) >= 2 }, time.Second, 5*time.Millisecond)

	m.Stop()
	count := len(target.checkedIDs())
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, count, len(target.checkedIDs()))

	m.Stop()
}

func TestNewMonitor_Defaults(t *testing.T) {
	m := NewMonitor(&fakeTarget{}, config.HealthConfig{})
	assert.Equal(t, config.DefaultHealthCheckInterval, m.interval)
	assert.Equal(t, config.DefaultConcurrency, m.concurrency)
	assert.Equal(t, config.DefaultHealthCheckTimeout, m.timeout)
}
