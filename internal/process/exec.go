package process

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"toolhost/pkg/logging"
)

// waitDelay bounds how long Wait keeps copying stderr after the process
// exited, in case a grandchild still holds the pipe open.
const waitDelay = 2 * time.Second

// ExecLauncher launches real operating system processes.
type ExecLauncher struct {
	terminator Terminator
	logLines   int
}

// NewExecLauncher creates a launcher using the platform Terminator. Each
// process retains the last logLines lines of its stderr.
func NewExecLauncher(logLines int) *ExecLauncher {
	return &ExecLauncher{terminator: NewTerminator(), logLines: logLines}
}

// Launch starts spec.Command. The context only bounds the spawn itself: the
// process outlives the call and is stopped through Terminate.
func (l *ExecLauncher) Launch(ctx context.Context, spec Spec) (Process, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cmd := exec.Command(spec.Command, spec.Args...)
	cmd.Env = MergeEnv(os.Environ(), spec.Env)
	cmd.WaitDelay = waitDelay
	configureProcAttr(cmd)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	logs := NewLogBuffer(l.logLines)
	cmd.Stderr = logs

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", spec.Command, err)
	}

	p := &execProcess{
		id:         spec.ID,
		cmd:        cmd,
		stdin:      stdin,
		stdout:     stdout,
		logs:       logs,
		terminator: l.terminator,
		startedAt:  time.Now(),
		events:     make(chan Event, 2),
		done:       make(chan struct{}),
	}
	p.events <- Event{Type: EventStarted, PID: cmd.Process.Pid, At: p.startedAt}

	logging.Debug("Process", "Started %s (pid %d): %s %v", spec.ID, cmd.Process.Pid, spec.Command, spec.Args)
	go p.wait()
	return p, nil
}

type execProcess struct {
	id         string
	cmd        *exec.Cmd
	stdin      io.WriteCloser
	stdout     io.ReadCloser
	logs       *LogBuffer
	terminator Terminator
	startedAt  time.Time

	events chan Event
	done   chan struct{}

	mu     sync.Mutex
	status *ExitStatus
}

func (p *execProcess) wait() {
	waitErr := p.cmd.Wait()
	state := p.cmd.ProcessState

	var status ExitStatus
	var event Event
	if state == nil {
		status = ExitStatus{Code: -1, Err: waitErr}
		event = Event{Type: EventFailed, PID: p.PID(), ExitCode: -1, Err: waitErr, At: time.Now()}
	} else {
		var exitErr *exec.ExitError
		if waitErr != nil && !errors.As(waitErr, &exitErr) && !errors.Is(waitErr, exec.ErrWaitDelay) {
			logging.Debug("Process", "Wait for %s returned: %v", p.id, waitErr)
		}
		status = ExitStatus{Code: state.ExitCode(), Signal: signalName(state)}
		event = Event{Type: EventExited, PID: p.PID(), ExitCode: status.Code, Signal: status.Signal, At: time.Now()}
	}

	p.mu.Lock()
	p.status = &status
	p.mu.Unlock()

	close(p.done)
	p.events <- event
	close(p.events)
}

func (p *execProcess) PID() int              { return p.cmd.Process.Pid }
func (p *execProcess) StartedAt() time.Time  { return p.startedAt }
func (p *execProcess) Stdin() io.WriteCloser { return p.stdin }
func (p *execProcess) Stdout() io.ReadCloser { return p.stdout }
func (p *execProcess) Events() <-chan Event  { return p.events }
func (p *execProcess) Done() <-chan struct{} { return p.done }
func (p *execProcess) Logs() []string        { return p.logs.Lines() }

func (p *execProcess) ExitStatus() (ExitStatus, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.status == nil {
		return ExitStatus{}, false
	}
	return *p.status, true
}

func (p *execProcess) Terminate(graceful bool) error {
	select {
	case <-p.done:
		return nil
	default:
	}
	return p.terminator.Terminate(p.cmd.Process, graceful)
}
