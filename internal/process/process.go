// Package process spawns tool-provider subprocesses and reports their
// lifecycle on a per-process event channel.
//
// A Process emits EventStarted once, then exactly one of EventExited or
// EventFailed, and then its Events channel is closed. Done is closed before
// the terminal event is sent, so a consumer that has seen the terminal event
// may rely on ExitStatus.
package process

import (
	"context"
	"io"
	"time"
)

// EventType enumerates process lifecycle events.
type EventType int

const (
	EventStarted EventType = iota
	EventFailed
	EventExited
)

func (t EventType) String() string {
	switch t {
	case EventStarted:
		return "started"
	case EventFailed:
		return "failed"
	case EventExited:
		return "exited"
	default:
		return "unknown"
	}
}

// Event is one lifecycle notification of a process.
type Event struct {
	Type EventType
	PID  int
	// ExitCode and Signal are set for EventExited. ExitCode is -1 when the
	// process was killed by a signal.
	ExitCode int
	Signal   string
	// Err carries the reason of EventFailed.
	Err error
	At  time.Time
}

// ExitStatus describes how a process ended.
type ExitStatus struct {
	Code   int
	Signal string
	Err    error
}

// Clean reports a normal exit with code 0.
func (s ExitStatus) Clean() bool {
	return s.Err == nil && s.Signal == "" && s.Code == 0
}

// Spec is the typed launch configuration of a process.
type Spec struct {
	ID      string
	Command string
	Args    []string
	// Env overrides are overlaid on the supervisor's own environment.
	Env map[string]string
}

// Process is a running child process.
type Process interface {
	PID() int
	StartedAt() time.Time

	// Stdin and Stdout carry the request/response stream.
	Stdin() io.WriteCloser
	Stdout() io.ReadCloser

	Events() <-chan Event
	Done() <-chan struct{}
	// ExitStatus returns the exit status once Done is closed.
	ExitStatus() (ExitStatus, bool)

	// Terminate asks the process (and its children) to exit. graceful
	// selects the cooperative strategy; otherwise the process tree is
	// killed.
	Terminate(graceful bool) error

	// Logs returns the retained tail of the process's stderr.
	Logs() []string
}

// Launcher starts processes. The supervisor depends on this interface so
// tests can inject fake processes.
type Launcher interface {
	Launch(ctx context.Context, spec Spec) (Process, error)
}
