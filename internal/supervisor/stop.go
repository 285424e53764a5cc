package supervisor

import (
	"context"
	"fmt"
	"time"

	"toolhost/internal/api"
	"toolhost/internal/process"
	"toolhost/pkg/logging"

	"golang.org/x/sync/errgroup"
)

// StopServer terminates the server's process: gracefully first, forcefully
// once the grace period has passed. It cancels any pending crash restart.
// Stopping a server that is not running is a no-op.
//
// In-flight tool calls are not cancelled; they fail when the process exits.
func (s *Supervisor) StopServer(ctx context.Context, id string) error {
	s.cancelRestart(id)

	h, ok := s.lookup(id)
	if !ok {
		logging.Debug(logContext(id), "Server is not running, nothing to stop")
		return nil
	}
	return s.stop(ctx, h, true)
}

// RestartServer stops the server if it is running and starts it again.
func (s *Supervisor) RestartServer(ctx context.Context, id string) error {
	if err := s.StopServer(ctx, id); err != nil {
		return err
	}
	return s.StartServer(ctx, id)
}

// RemoveServer stops the server and soft-deletes its definition.
func (s *Supervisor) RemoveServer(ctx context.Context, id string) error {
	if err := s.StopServer(ctx, id); err != nil {
		return err
	}
	if err := s.registry.SoftDeleteServer(ctx, id); err != nil {
		return fmt.Errorf("failed to delete server %s: %w", id, err)
	}

	s.mu.Lock()
	delete(s.crashes, id)
	delete(s.statuses, id)
	delete(s.lastLogs, id)
	s.mu.Unlock()

	logging.Info(logContext(id), "Server removed")
	return nil
}

func (s *Supervisor) stop(ctx context.Context, h *handle, writeStatus bool) error {
	h.mu.Lock()
	if h.exitHandled {
		h.mu.Unlock()
		return nil
	}
	if h.stopping {
		h.mu.Unlock()
		// another caller is already stopping this handle
		select {
		case <-h.stopped:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	h.stopping = true
	proc, session, cancelStart := h.proc, h.session, h.cancelStart
	h.mu.Unlock()

	defer close(h.stopped)

	if cancelStart != nil {
		cancelStart()
	}
	if proc == nil {
		// Still spawning: the slot stays claimed until the launching
		// goroutine has killed what it spawned.
		select {
		case <-h.launched:
		case <-ctx.Done():
		}
	}
	if proc != nil {
		s.terminate(ctx, h.serverID, proc)
	}
	if session != nil {
		if err := session.Close(); err != nil {
			logging.Debug(logContext(h.serverID), "Closing session: %v", err)
		}
	}

	s.unregister(h)
	if writeStatus {
		s.setHandleStatus(h, api.HealthStopped, "stopped")
	}
	logging.Info(logContext(h.serverID), "Server stopped")
	return nil
}

// terminate asks proc to exit and escalates to a forceful kill after the
// grace period, or immediately when ctx ends.
func (s *Supervisor) terminate(ctx context.Context, id string, proc process.Process) {
	select {
	case <-proc.Done():
		return
	default:
	}

	if err := proc.Terminate(true); err != nil {
		logging.Warn(logContext(id), "Graceful termination of pid %d failed: %v", proc.PID(), err)
	}

	timer := time.NewTimer(s.opts.StopGracePeriod)
	defer timer.Stop()

	select {
	case <-proc.Done():
		return
	case <-timer.C:
		err := &api.TerminationTimeout{ServerID: id, GracePeriod: s.opts.StopGracePeriod}
		logging.Warn(logContext(id), "%v, killing pid %d", err, proc.PID())
	case <-ctx.Done():
		logging.Warn(logContext(id), "Stop cancelled, killing pid %d", proc.PID())
	}

	if err := proc.Terminate(false); err != nil {
		logging.Error(logContext(id), err, "Failed to kill pid %d", proc.PID())
	}
	select {
	case <-proc.Done():
	case <-time.After(killWait):
		logging.Warn(logContext(id), "Process %d still present after kill", proc.PID())
	}
}

// Shutdown stops every supervised process and the event loop. Persisted
// health is left as it was, so the startup loader brings previously healthy
// servers back on the next boot.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	for id, rt := range s.restarts {
		rt.timer.Stop()
		delete(s.restarts, id)
	}
	handles := make([]*handle, 0, len(s.handles))
	for _, h := range s.handles {
		handles = append(handles, h)
	}
	s.mu.Unlock()

	logging.Info("Supervisor", "Shutting down %d supervised servers", len(handles))

	var g errgroup.Group
	for _, h := range handles {
		g.Go(func() error {
			return s.stop(ctx, h, false)
		})
	}
	err := g.Wait()

	close(s.done)
	s.wg.Wait()
	return err
}

func (s *Supervisor) cancelRestart(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rt, ok := s.restarts[id]; ok {
		rt.timer.Stop()
		delete(s.restarts, id)
		logging.Debug(logContext(id), "Cancelled pending restart")
	}
}
