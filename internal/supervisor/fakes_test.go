package supervisor

import (
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"toolhost/internal/api"
	"toolhost/internal/process"
	"toolhost/internal/registry/memory"

	"github.com/stretchr/testify/require"
)

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

// fakeProcess is a process.Process driven by the test.
type fakeProcess struct {
	pid       int
	startedAt time.Time
	events    chan process.Event
	done      chan struct{}
	once      sync.Once

	mu             sync.Mutex
	status         *process.ExitStatus
	terminateCalls []bool
	ignoreGraceful bool
	logs           []string
}

func newFakeProcess(pid int) *fakeProcess {
	p := &fakeProcess{
		pid:       pid,
		startedAt: time.Now(),
		events:    make(chan process.Event, 2),
		done:      make(chan struct{}),
	}
	p.events <- process.Event{Type: process.EventStarted, PID: pid, At: p.startedAt}
	return p
}

// exit ends the process with the given code or signal.
func (p *fakeProcess) exit(code int, signal string) {
	p.once.Do(func() {
		p.mu.Lock()
		p.status = &process.ExitStatus{Code: code, Signal: signal}
		p.mu.Unlock()
		close(p.done)
		p.events <- process.Event{Type: process.EventExited, PID: p.pid, ExitCode: code, Signal: signal, At: time.Now()}
		close(p.events)
	})
}

func (p *fakeProcess) PID() int                     { return p.pid }
func (p *fakeProcess) StartedAt() time.Time         { return p.startedAt }
func (p *fakeProcess) Stdin() io.WriteCloser        { return nopWriteCloser{io.Discard} }
func (p *fakeProcess) Stdout() io.ReadCloser        { return io.NopCloser(strings.NewReader("")) }
func (p *fakeProcess) Events() <-chan process.Event { return p.events }
func (p *fakeProcess) Done() <-chan struct{}        { return p.done }

func (p *fakeProcess) ExitStatus() (process.ExitStatus, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.status == nil {
		return process.ExitStatus{}, false
	}
	return *p.status, true
}

func (p *fakeProcess) Terminate(graceful bool) error {
	p.mu.Lock()
	p.terminateCalls = append(p.terminateCalls, graceful)
	ignore := p.ignoreGraceful
	p.mu.Unlock()

	if graceful && ignore {
		return nil
	}
	signal := "killed"
	if graceful {
		signal = "terminated"
	}
	go p.exit(-1, signal)
	return nil
}

func (p *fakeProcess) Logs() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.logs...)
}

func (p *fakeProcess) terminations() []bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]bool(nil), p.terminateCalls...)
}

// fakeLauncher hands out fakeProcesses.
type fakeLauncher struct {
	mu        sync.Mutex
	attempts  int
	processes []*fakeProcess
	specs     []process.Spec
	err       error
	configure func(*fakeProcess)

	// gate, when set, holds Launch until closed; entered is signalled
	// first.
	gate    chan struct{}
	entered chan struct{}
}

func (l *fakeLauncher) Launch(_ context.Context, spec process.Spec) (process.Process, error) {
	l.mu.Lock()
	gate, entered := l.gate, l.entered
	l.mu.Unlock()
	if gate != nil {
		entered <- struct{}{}
		<-gate
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.attempts++
	if l.err != nil {
		return nil, l.err
	}
	p := newFakeProcess(1000 + len(l.processes))
	if l.configure != nil {
		l.configure(p)
	}
	l.processes = append(l.processes, p)
	l.specs = append(l.specs, spec)
	return p, nil
}

func (l *fakeLauncher) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.processes)
}

func (l *fakeLauncher) attemptCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.attempts
}

func (l *fakeLauncher) process(i int) *fakeProcess {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.processes[i]
}

// hold makes the next launches wait for release.
func (l *fakeLauncher) hold() (entered <-chan struct{}, release func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.gate = make(chan struct{})
	l.entered = make(chan struct{}, 10)
	gate := l.gate
	return l.entered, func() { close(gate) }
}

func (l *fakeLauncher) setErr(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.err = err
}

// fakeSession answers the handshake according to its settings.
type fakeSession struct {
	initErr error
	hang    bool
	output  *api.ToolOutput
	callErr error

	mu     sync.Mutex
	closed bool
}

func (s *fakeSession) Initialize(ctx context.Context) error {
	if s.hang {
		<-ctx.Done()
		return ctx.Err()
	}
	return s.initErr
}

func (s *fakeSession) ListTools(context.Context) ([]api.ToolInfo, error) {
	return []api.ToolInfo{{Name: "lookup"}}, nil
}

func (s *fakeSession) CallTool(context.Context, string, map[string]interface{}) (*api.ToolOutput, error) {
	if s.callErr != nil {
		return nil, s.callErr
	}
	if s.output != nil {
		return s.output, nil
	}
	return &api.ToolOutput{Text: "ok"}, nil
}

func (s *fakeSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// recordingRegistry remembers every health write.
type recordingRegistry struct {
	*memory.Registry

	mu      sync.Mutex
	history map[string][]api.HealthStatus

	// hold, when set, parks HEALTHY writes until it is closed or the
	// write's context ends; held is signalled on entry.
	hold chan struct{}
	held chan struct{}
}

func newRecordingRegistry() *recordingRegistry {
	return &recordingRegistry{Registry: memory.New(), history: make(map[string][]api.HealthStatus)}
}

func (r *recordingRegistry) UpdateHealth(ctx context.Context, id string, status api.HealthStatus, at time.Time) error {
	r.mu.Lock()
	hold, held := r.hold, r.held
	r.mu.Unlock()
	if hold != nil && status == api.HealthHealthy {
		held <- struct{}{}
		select {
		case <-hold:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	r.mu.Lock()
	r.history[id] = append(r.history[id], status)
	r.mu.Unlock()
	return r.Registry.UpdateHealth(ctx, id, status, at)
}

// holdHealthy parks every following HEALTHY write until release.
func (r *recordingRegistry) holdHealthy() (held <-chan struct{}, release func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hold = make(chan struct{})
	r.held = make(chan struct{}, 10)
	hold := r.hold
	var once sync.Once
	return r.held, func() { once.Do(func() { close(hold) }) }
}

func (r *recordingRegistry) statuses(id string) []api.HealthStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]api.HealthStatus(nil), r.history[id]...)
}

type harness struct {
	t        *testing.T
	registry *recordingRegistry
	launcher *fakeLauncher
	sup      *Supervisor

	mu         sync.Mutex
	newSession func() *fakeSession
}

func testOptions() Options {
	return Options{
		StartupTimeout:  2 * time.Second,
		StopGracePeriod: 200 * time.Millisecond,
		RestartDelay:    20 * time.Millisecond,
	}
}

func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()

	h := &harness{
		t:          t,
		registry:   newRecordingRegistry(),
		launcher:   &fakeLauncher{},
		newSession: func() *fakeSession { return &fakeSession{} },
	}
	h.sup = New(h.registry, h.launcher, func(string, process.Process) Session {
		h.mu.Lock()
		defer h.mu.Unlock()
		return h.newSession()
	}, opts)

	ctx, cancel := context.WithCancel(context.Background())
	h.sup.Start(ctx)
	t.Cleanup(func() {
		h.sup.Shutdown(context.Background())
		cancel()
	})
	return h
}

func (h *harness) setSession(fn func() *fakeSession) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.newSession = fn
}

func (h *harness) createServer(enabled bool) api.ServerDefinition {
	h.t.Helper()
	def, err := h.registry.CreateServer(context.Background(), api.ServerDefinition{
		Name:    "demo",
		Command: "echo",
		Args:    []string{"hello"},
		Enabled: enabled,
		OwnerID: "u1",
	})
	require.NoError(h.t, err)
	return def
}

func (h *harness) status(id string) api.HealthStatus {
	h.t.Helper()
	def, err := h.registry.GetServer(context.Background(), id)
	require.NoError(h.t, err)
	return def.HealthStatus
}

func (h *harness) waitStatus(id string, want api.HealthStatus) {
	h.t.Helper()
	require.Eventually(h.t, func() bool {
		def, err := h.registry.GetServer(context.Background(), id)
		return err == nil && def.HealthStatus == want
	}, 2*time.Second, 5*time.Millisecond, "server %s never reached %s", id, want)
}
