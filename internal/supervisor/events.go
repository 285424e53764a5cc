package supervisor

import (
	"context"
	"errors"

	"toolhost/internal/api"
	"toolhost/internal/process"
	"toolhost/pkg/logging"
)

// watch forwards the events of proc to the supervisor loop.
func (s *Supervisor) watch(h *handle, proc process.Process) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for ev := range proc.Events() {
			select {
			case s.events <- handleEvent{h: h, ev: ev}:
			case <-s.done:
				return
			}
		}
	}()
}

// run is the single event loop: every crash transition happens here.
func (s *Supervisor) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case he := <-s.events:
			s.handleEvent(he)
		}
	}
}

func (s *Supervisor) handleEvent(he handleEvent) {
	switch he.ev.Type {
	case process.EventStarted:
		logging.Debug(logContext(he.h.serverID), "Process %d started", he.ev.PID)
	case process.EventExited, process.EventFailed:
		s.handleExit(he.h, he.ev)
	}
}

// handleExit reacts to the end of a ready process that nobody asked to stop.
// Exits during startup or during a stop belong to those code paths.
func (s *Supervisor) handleExit(h *handle, ev process.Event) {
	h.mu.Lock()
	if !h.ready || h.stopping || h.exitHandled {
		h.mu.Unlock()
		return
	}
	h.exitHandled = true
	session, proc := h.session, h.proc
	h.mu.Unlock()

	s.unregister(h)
	if session != nil {
		session.Close()
	}

	id := h.serverID
	if ev.Type == process.EventExited && ev.ExitCode == 0 && ev.Signal == "" {
		logging.Info(logContext(id), "Process %d exited cleanly", ev.PID)
		s.setHandleStatus(h, api.HealthStopped, "exited with code 0")
		return
	}

	crash := &api.RuntimeCrash{ServerID: id, PID: ev.PID, ExitCode: ev.ExitCode, Signal: ev.Signal}
	if ev.Type == process.EventFailed {
		logging.Error(logContext(id), ev.Err, "Lost track of process %d", ev.PID)
	} else {
		logging.Error(logContext(id), crash, "Server crashed")
	}
	s.setHandleStatus(h, api.HealthError, crash.Error())

	exitedAt := ev.At
	if exitedAt.IsZero() {
		exitedAt = s.now()
	}
	if exitedAt.Sub(proc.StartedAt()) >= s.opts.CrashResetAfter {
		s.mu.Lock()
		s.crashes[id] = 0
		s.mu.Unlock()
	}
	s.scheduleRestart(id)
}

// scheduleRestart arranges exactly one restart attempt after the restart
// delay, unless one is already pending or the crash budget is spent.
func (s *Supervisor) scheduleRestart(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	if _, pending := s.restarts[id]; pending {
		return
	}
	if s.opts.MaxRestarts > 0 && s.crashes[id] >= s.opts.MaxRestarts {
		logging.Warn(logContext(id), "Crashed %d times in a row, not restarting until started explicitly", s.crashes[id])
		return
	}

	s.crashes[id]++
	rt := &restartTimer{attempt: s.crashes[id]}
	rt.timer = timeAfterFunc(s.opts.RestartDelay, func() { s.restartAfterCrash(id, rt) })
	s.restarts[id] = rt
	logging.Info(logContext(id), "Restart attempt %d scheduled in %s", rt.attempt, s.opts.RestartDelay)
}

func (s *Supervisor) restartAfterCrash(id string, rt *restartTimer) {
	s.mu.Lock()
	if current, ok := s.restarts[id]; !ok || current != rt || s.closed {
		s.mu.Unlock()
		return
	}
	delete(s.restarts, id)
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), s.opts.StartupTimeout+statusWriteTimeout)
	defer cancel()

	err := s.start(ctx, id, false)
	switch {
	case err == nil:
		logging.Info(logContext(id), "Restart attempt %d succeeded", rt.attempt)
	case errors.Is(err, api.ErrServerDisabled), errors.Is(err, api.ErrServerDeleted), api.IsNotFound(err):
		logging.Info(logContext(id), "Not restarting: %v", err)
	default:
		logging.Error(logContext(id), err, "Restart attempt %d failed", rt.attempt)
	}
}
