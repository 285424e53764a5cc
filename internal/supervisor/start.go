package supervisor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"toolhost/internal/api"
	"toolhost/internal/config"
	"toolhost/internal/process"
	"toolhost/internal/template"
	"toolhost/pkg/logging"
	pkgstrings "toolhost/pkg/strings"
)

// errStopRequested aborts a startup that raced with StopServer.
var errStopRequested = errors.New("stop requested during startup")

// StartServer spawns the server's process and waits until it is ready.
// Starting a server that is already running is a no-op. A pending crash
// restart for the id is superseded, and the consecutive crash counter is
// reset.
func (s *Supervisor) StartServer(ctx context.Context, id string) error {
	return s.start(ctx, id, true)
}

func (s *Supervisor) start(ctx context.Context, id string, explicit bool) error {
	def, err := s.loadStartable(ctx, id)
	if err != nil {
		return err
	}

	h, registered, err := s.register(id)
	if err != nil {
		return err
	}
	if !registered {
		logging.Warn(logContext(id), "Server %s is already running, ignoring start request", def.Name)
		return nil
	}

	if explicit {
		s.mu.Lock()
		s.crashes[id] = 0
		s.mu.Unlock()
		s.cancelRestart(id)
	}

	return s.launch(ctx, h, def)
}

func (s *Supervisor) launch(ctx context.Context, h *handle, def api.ServerDefinition) error {
	id := def.ID
	defer h.endLaunch()
	s.setStatus(id, api.HealthStarting, "start requested")

	args, env, err := s.templates.RenderLaunch(def.Args, def.Env, template.Context{
		ServerID: def.ID,
		Name:     def.Name,
		OwnerID:  def.OwnerID,
	})
	if err != nil {
		s.finishFailedStart(h, nil, api.HealthError, err.Error())
		return fmt.Errorf("failed to render launch configuration of server %s: %w", id, err)
	}

	startCtx, cancel := context.WithTimeout(ctx, s.opts.StartupTimeout)
	defer cancel()

	h.mu.Lock()
	h.cancelStart = cancel
	h.mu.Unlock()

	proc, err := s.launcher.Launch(startCtx, process.Spec{
		ID:      id,
		Command: def.Command,
		Args:    args,
		Env:     env,
	})
	if err != nil {
		s.finishFailedStart(h, nil, api.HealthError, err.Error())
		return fmt.Errorf("failed to start server %s: %w", id, err)
	}

	session := s.sessions(id, proc)
	if !h.attach(proc, session) {
		// StopServer ran while the process was being spawned.
		s.discard(h, proc, session)
		s.finishFailedStart(h, proc, "", errStopRequested.Error())
		return fmt.Errorf("server %s: %w", id, errStopRequested)
	}
	h.endLaunch()
	s.watch(h, proc)

	logging.Info(logContext(id), "Spawned %s (pid %d), waiting for readiness", def.Command, proc.PID())

	readyErr := s.awaitReady(startCtx, proc, session)
	if readyErr == nil && s.markReady(h) {
		logging.Info(logContext(id), "Server %s is ready (pid %d)", def.Name, proc.PID())
		return nil
	}

	return s.failStart(ctx, startCtx, h, proc, session, readyErr)
}

// failStart classifies why a spawned process never became ready, cleans up
// and returns the error for the StartServer caller.
func (s *Supervisor) failStart(ctx, startCtx context.Context, h *handle, proc process.Process, session Session, readyErr error) error {
	id := h.serverID

	h.mu.Lock()
	stopping := h.stopping
	h.mu.Unlock()
	if stopping {
		// StopServer owns termination and the STOPPED status.
		return fmt.Errorf("server %s: %w", id, errStopRequested)
	}

	select {
	case <-proc.Done():
		status, _ := proc.ExitStatus()
		s.discard(h, proc, session)
		tail := lastLines(proc.Logs(), 5)
		if status.Clean() {
			s.finishFailedStart(h, proc, api.HealthStopped, "exited with code 0 during startup")
			return fmt.Errorf("server %s: %w (code 0)", id, ErrExitedDuringStartup)
		}
		reason := describeExit(status)
		s.finishFailedStart(h, proc, api.HealthError, reason+" during startup")
		if tail != "" {
			return fmt.Errorf("server %s: %w (%s): %s", id, ErrExitedDuringStartup, reason, tail)
		}
		return fmt.Errorf("server %s: %w (%s)", id, ErrExitedDuringStartup, reason)
	default:
	}

	s.discard(h, proc, session)

	switch {
	case ctx.Err() != nil:
		s.finishFailedStart(h, proc, api.HealthStopped, "start cancelled")
		return fmt.Errorf("start of server %s cancelled: %w", id, ctx.Err())
	case errors.Is(startCtx.Err(), context.DeadlineExceeded):
		timeoutErr := &api.StartupTimeoutError{ServerID: id, Timeout: s.opts.StartupTimeout, Err: readyErr}
		s.finishFailedStart(h, proc, api.HealthError, timeoutErr.Error())
		logging.Error(logContext(id), timeoutErr, "Startup timed out")
		return timeoutErr
	default:
		s.finishFailedStart(h, proc, api.HealthError, readyErr.Error())
		return fmt.Errorf("server %s failed readiness check: %w", id, readyErr)
	}
}

// awaitReady blocks until the process answers the MCP handshake (after the
// settle delay in delay mode), exits, or ctx ends.
func (s *Supervisor) awaitReady(ctx context.Context, proc process.Process, session Session) error {
	result := make(chan error, 1)
	go func() {
		if s.opts.Readiness == config.ReadinessDelay && s.opts.ReadyDelay > 0 {
			timer := time.NewTimer(s.opts.ReadyDelay)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				result <- ctx.Err()
				return
			case <-proc.Done():
				timer.Stop()
				result <- ErrExitedDuringStartup
				return
			}
		}
		result <- session.Initialize(ctx)
	}()

	select {
	case err := <-result:
		return err
	case <-proc.Done():
		return ErrExitedDuringStartup
	case <-ctx.Done():
		return ctx.Err()
	}
}

// discard forcefully ends a process that never became ready.
func (s *Supervisor) discard(h *handle, proc process.Process, session Session) {
	if session != nil {
		if err := session.Close(); err != nil {
			logging.Debug(logContext(h.serverID), "Closing session: %v", err)
		}
	}
	select {
	case <-proc.Done():
		return
	default:
	}
	if err := proc.Terminate(false); err != nil {
		logging.Warn(logContext(h.serverID), "Failed to kill pid %d: %v", proc.PID(), err)
	}
	select {
	case <-proc.Done():
	case <-time.After(killWait):
		logging.Warn(logContext(h.serverID), "Process %d still present after kill", proc.PID())
	}
}

// finishFailedStart releases the handle slot and records the outcome. An
// empty status leaves the persisted status untouched.
func (s *Supervisor) finishFailedStart(h *handle, proc process.Process, status api.HealthStatus, reason string) {
	h.mu.Lock()
	h.exitHandled = true
	h.cancelStart = nil
	h.mu.Unlock()

	s.unregister(h)
	if status != "" {
		s.setHandleStatus(h, status, reason)
	}
	if status == api.HealthError {
		logging.Warn(logContext(h.serverID), "Start failed: %s", reason)
	}
}

// attach records the spawned process. It fails when a stop was requested
// while the process was being spawned.
func (h *handle) attach(proc process.Process, session Session) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopping {
		return false
	}
	h.proc = proc
	h.session = session
	return true
}

// markReady flips the handle to ready and persists HEALTHY, unless the
// process has already exited or a stop is in progress. A crash of the fresh
// process is written after HEALTHY.
func (s *Supervisor) markReady(h *handle) bool {
	h.writeMu.Lock()
	defer h.writeMu.Unlock()

	h.mu.Lock()
	if h.stopping || h.exitHandled {
		h.mu.Unlock()
		return false
	}
	select {
	case <-h.proc.Done():
		h.mu.Unlock()
		return false
	default:
	}
	h.ready = true
	h.cancelStart = nil
	h.mu.Unlock()

	s.setStatus(h.serverID, api.HealthHealthy, "ready")
	return true
}

func describeExit(status process.ExitStatus) string {
	switch {
	case status.Err != nil:
		return fmt.Sprintf("failed: %v", status.Err)
	case status.Signal != "":
		return "killed by signal " + status.Signal
	default:
		return fmt.Sprintf("exited with code %d", status.Code)
	}
}

func lastLines(lines []string, n int) string {
	return strings.Join(pkgstrings.LastLines(lines, n), " | ")
}
