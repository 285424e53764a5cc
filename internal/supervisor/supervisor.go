package supervisor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"toolhost/internal/api"
	"toolhost/internal/config"
	"toolhost/internal/process"
	"toolhost/internal/template"
	"toolhost/pkg/logging"

	"golang.org/x/sync/semaphore"
)

const (
	// killWait bounds the wait for a process to disappear after SIGKILL.
	killWait         = 5 * time.Second
	subscriberBuffer = 100
)

var (
	// timeAfterFunc schedules crash restarts; tests may replace it.
	timeAfterFunc = time.AfterFunc
	// statusWriteTimeout bounds registry writes of health transitions and
	// refreshes.
	statusWriteTimeout = 5 * time.Second
)

// ErrShuttingDown is returned by StartServer once Shutdown has begun.
var ErrShuttingDown = errors.New("supervisor is shutting down")

// ErrExitedDuringStartup is wrapped by StartServer when the process exited
// before it became ready.
var ErrExitedDuringStartup = errors.New("process exited during startup")

// Session is the request/response channel to a running process.
type Session interface {
	Initialize(ctx context.Context) error
	ListTools(ctx context.Context) ([]api.ToolInfo, error)
	CallTool(ctx context.Context, name string, args map[string]interface{}) (*api.ToolOutput, error)
	Close() error
}

// SessionFactory binds a Session to a freshly launched process.
type SessionFactory func(serverID string, proc process.Process) Session

// Options holds the lifecycle timings of a Supervisor.
type Options struct {
	StartupTimeout     time.Duration
	StopGracePeriod    time.Duration
	RestartDelay       time.Duration
	MaxRestarts        int
	CrashResetAfter    time.Duration
	Readiness          config.ReadinessMode
	ReadyDelay         time.Duration
	MaxConcurrentCalls int64
}

// OptionsFromConfig converts the supervisor section of config.yaml.
func OptionsFromConfig(cfg config.SupervisorConfig) Options {
	return Options{
		StartupTimeout:     cfg.StartupTimeout,
		StopGracePeriod:    cfg.StopGracePeriod,
		RestartDelay:       cfg.RestartDelay,
		MaxRestarts:        cfg.MaxRestarts,
		CrashResetAfter:    cfg.CrashResetAfter,
		Readiness:          cfg.Readiness,
		ReadyDelay:         cfg.ReadyDelay,
		MaxConcurrentCalls: cfg.MaxConcurrentCalls,
	}
}

func (o Options) withDefaults() Options {
	if o.StartupTimeout <= 0 {
		o.StartupTimeout = config.DefaultStartupTimeout
	}
	if o.StopGracePeriod <= 0 {
		o.StopGracePeriod = config.DefaultStopGracePeriod
	}
	if o.RestartDelay < 0 {
		o.RestartDelay = config.DefaultRestartDelay
	}
	if o.CrashResetAfter <= 0 {
		o.CrashResetAfter = config.DefaultCrashResetAfter
	}
	if o.Readiness == "" {
		o.Readiness = config.ReadinessHandshake
	}
	if o.MaxConcurrentCalls < 1 {
		o.MaxConcurrentCalls = 1
	}
	return o
}

// Supervisor owns the live tool-provider processes. At most one handle per
// server id exists at any time; every insert and removal of the handle map
// is a check-and-set under mu.
//
// Lock order: a handle's writeMu, then its mu, then Supervisor.mu. Registry
// writes never happen under a handle's mu.
type Supervisor struct {
	registry  api.Registry
	launcher  process.Launcher
	sessions  SessionFactory
	templates *template.Engine
	opts      Options
	now       func() time.Time

	mu       sync.Mutex
	handles  map[string]*handle
	restarts map[string]*restartTimer
	crashes  map[string]int
	statuses map[string]api.HealthStatus
	lastLogs map[string][]string
	closed   bool

	events      chan handleEvent
	done        chan struct{}
	wg          sync.WaitGroup
	loopStarted bool

	subMu       sync.Mutex
	subscribers []chan api.StateChange
}

type restartTimer struct {
	timer   *time.Timer
	attempt int
}

type handleEvent struct {
	h  *handle
	ev process.Event
}

// handle is the RuntimeProcessHandle of one server id.
type handle struct {
	serverID string
	calls    *semaphore.Weighted

	// writeMu orders the status writes of this process, so a HEALTHY write
	// cannot land after the terminal status of a crash or stop.
	writeMu sync.Mutex

	mu          sync.Mutex
	proc        process.Process
	session     Session
	cancelStart context.CancelFunc
	ready       bool
	stopping    bool
	exitHandled bool
	stopped     chan struct{}

	// launched is closed once the launching goroutine has attached its
	// process or disposed of it.
	launched   chan struct{}
	launchOnce sync.Once
}

func (h *handle) endLaunch() {
	h.launchOnce.Do(func() { close(h.launched) })
}

// New creates a Supervisor. Start must be called to run its event loop.
func New(registry api.Registry, launcher process.Launcher, sessions SessionFactory, opts Options) *Supervisor {
	return &Supervisor{
		registry:  registry,
		launcher:  launcher,
		sessions:  sessions,
		templates: template.New(),
		opts:      opts.withDefaults(),
		now:       time.Now,
		handles:   make(map[string]*handle),
		restarts:  make(map[string]*restartTimer),
		crashes:   make(map[string]int),
		statuses:  make(map[string]api.HealthStatus),
		lastLogs:  make(map[string][]string),
		events:    make(chan handleEvent),
		done:      make(chan struct{}),
	}
}

// Start runs the event loop that handles process exits until ctx is
// cancelled or Shutdown is called.
func (s *Supervisor) Start(ctx context.Context) {
	s.mu.Lock()
	if s.loopStarted || s.closed {
		s.mu.Unlock()
		return
	}
	s.loopStarted = true
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(ctx)
	}()
	logging.Info("Supervisor", "Supervisor event loop started")
}

func logContext(id string) string {
	return "Supervisor-" + id
}

// Subscribe returns a channel receiving every state change. Slow
// subscribers miss events rather than block the supervisor.
func (s *Supervisor) Subscribe() <-chan api.StateChange {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	ch := make(chan api.StateChange, subscriberBuffer)
	s.subscribers = append(s.subscribers, ch)
	return ch
}

func (s *Supervisor) publish(change api.StateChange) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	for _, subscriber := range s.subscribers {
		select {
		case subscriber <- change:
		default:
			logging.Debug("Supervisor", "State change subscriber blocked, skipping event for server %s", change.ServerID)
		}
	}
}

// setStatus persists a health transition and notifies subscribers. Write
// failures are logged; the in-memory state machine does not depend on them.
func (s *Supervisor) setStatus(id string, status api.HealthStatus, reason string) {
	now := s.now()
	ctx, cancel := context.WithTimeout(context.Background(), statusWriteTimeout)
	defer cancel()

	if err := s.registry.UpdateHealth(ctx, id, status, now); err != nil {
		logging.Error(logContext(id), err, "Failed to persist health status %s", status)
	}

	s.noteStatus(id, status, reason, now)
}

// setHandleStatus persists a transition of h's process after any health
// write of the same handle still in flight.
func (s *Supervisor) setHandleStatus(h *handle, status api.HealthStatus, reason string) {
	h.writeMu.Lock()
	defer h.writeMu.Unlock()
	s.setStatus(h.serverID, status, reason)
}

// noteStatus records a persisted transition in memory and publishes it.
// Health refreshes that do not change the status are not published.
func (s *Supervisor) noteStatus(id string, status api.HealthStatus, reason string, at time.Time) {
	s.mu.Lock()
	old, ok := s.statuses[id]
	if !ok {
		old = api.HealthUnknown
	}
	s.statuses[id] = status
	s.mu.Unlock()

	if old == status {
		return
	}
	logging.Debug(logContext(id), "Health %s -> %s (%s)", old, status, reason)
	s.publish(api.StateChange{ServerID: id, Old: old, New: status, Reason: reason, At: at})
}

// register atomically claims the handle slot for id. It returns false when
// a handle already exists.
func (s *Supervisor) register(id string) (*handle, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, false, ErrShuttingDown
	}
	if _, exists := s.handles[id]; exists {
		return nil, false, nil
	}

	h := &handle{
		serverID: id,
		calls:    semaphore.NewWeighted(s.opts.MaxConcurrentCalls),
		stopped:  make(chan struct{}),
		launched: make(chan struct{}),
	}
	s.handles[id] = h
	return h, true, nil
}

// unregister removes h if it is still the current handle of its id.
func (s *Supervisor) unregister(h *handle) {
	h.mu.Lock()
	proc := h.proc
	h.mu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	if current, ok := s.handles[h.serverID]; ok && current == h {
		delete(s.handles, h.serverID)
	}
	if proc != nil {
		s.lastLogs[h.serverID] = proc.Logs()
	}
}

func (s *Supervisor) lookup(id string) (*handle, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.handles[id]
	return h, ok
}

func (s *Supervisor) loadStartable(ctx context.Context, id string) (api.ServerDefinition, error) {
	def, err := s.registry.GetServer(ctx, id)
	if err != nil {
		return api.ServerDefinition{}, fmt.Errorf("failed to load server %s: %w", id, err)
	}
	if def.Deleted() {
		return api.ServerDefinition{}, fmt.Errorf("cannot start server %s: %w", id, api.ErrServerDeleted)
	}
	if !def.Enabled {
		return api.ServerDefinition{}, fmt.Errorf("cannot start server %s: %w", id, api.ErrServerDisabled)
	}
	return def, nil
}
