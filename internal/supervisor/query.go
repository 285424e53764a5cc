package supervisor

import (
	"context"
	"fmt"
	"sort"

	"toolhost/internal/api"

	"golang.org/x/sync/semaphore"
)

// Conn gives the gateway access to a ready server.
type Conn struct {
	ServerID string
	Session  Session
	// Calls serialises requests to the process.
	Calls *semaphore.Weighted
	// Done is closed when the process exits.
	Done <-chan struct{}
}

// Conn returns the connection of a ready server.
func (s *Supervisor) Conn(id string) (*Conn, bool) {
	h, ok := s.lookup(id)
	if !ok {
		return nil, false
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.ready || h.stopping || h.exitHandled {
		return nil, false
	}
	return &Conn{ServerID: id, Session: h.session, Calls: h.calls, Done: h.proc.Done()}, true
}

// IsRunning reports whether id has a ready, live process.
func (s *Supervisor) IsRunning(id string) bool {
	_, ok := s.Conn(id)
	return ok
}

// Runtime describes the live process of id, including one still starting.
func (s *Supervisor) Runtime(id string) (api.RuntimeInfo, bool) {
	h, ok := s.lookup(id)
	if !ok {
		return api.RuntimeInfo{}, false
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.proc == nil {
		return api.RuntimeInfo{ServerID: id}, true
	}
	startedAt := h.proc.StartedAt()
	return api.RuntimeInfo{
		ServerID:  id,
		PID:       h.proc.PID(),
		StartedAt: startedAt,
		Uptime:    s.now().Sub(startedAt),
		Ready:     h.ready,
	}, true
}

// Logs returns the stderr tail of the live process of id, or of its last
// process when none is running.
func (s *Supervisor) Logs(id string) []string {
	if h, ok := s.lookup(id); ok {
		h.mu.Lock()
		proc := h.proc
		h.mu.Unlock()
		if proc != nil {
			return proc.Logs()
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.lastLogs[id]...)
}

// SupervisedIDs returns the ids of ready servers, sorted.
func (s *Supervisor) SupervisedIDs() []string {
	s.mu.Lock()
	handles := make([]*handle, 0, len(s.handles))
	for _, h := range s.handles {
		handles = append(handles, h)
	}
	s.mu.Unlock()

	ids := make([]string, 0, len(handles))
	for _, h := range handles {
		h.mu.Lock()
		if h.ready && !h.stopping && !h.exitHandled {
			ids = append(ids, h.serverID)
		}
		h.mu.Unlock()
	}
	sort.Strings(ids)
	return ids
}

// RefreshHealth checks whether the process of id is still alive and
// persists HEALTHY or UNHEALTHY within statusWriteTimeout. Tool calls and
// stops do not wait for the write; a crash or stop transition of the same
// process is written after it.
func (s *Supervisor) RefreshHealth(ctx context.Context, id string) (api.HealthStatus, error) {
	h, ok := s.lookup(id)
	if !ok {
		return "", fmt.Errorf("server %s: %w", id, api.ErrServerNotRunning)
	}

	h.writeMu.Lock()
	defer h.writeMu.Unlock()

	h.mu.Lock()
	if !h.ready || h.stopping || h.exitHandled {
		h.mu.Unlock()
		return "", fmt.Errorf("server %s: %w", id, api.ErrServerNotRunning)
	}
	proc := h.proc
	h.mu.Unlock()

	status := api.HealthHealthy
	reason := "process alive"
	select {
	case <-proc.Done():
		status = api.HealthUnhealthy
		reason = "process exited"
	default:
	}

	ctx, cancel := context.WithTimeout(ctx, statusWriteTimeout)
	defer cancel()

	now := s.now()
	if err := s.registry.UpdateHealth(ctx, id, status, now); err != nil {
		return status, fmt.Errorf("failed to persist health of server %s: %w", id, err)
	}
	s.noteStatus(id, status, reason, now)
	return status, nil
}
