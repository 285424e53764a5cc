//go:build !windows

package process

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"syscall"
)

// configureProcAttr starts the child in its own process group so the whole
// group can be signalled.
func configureProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

type groupSignalTerminator struct{}

// NewTerminator returns the unix backend: SIGTERM to the process group for
// graceful termination, SIGKILL otherwise.
func NewTerminator() Terminator {
	return groupSignalTerminator{}
}

func (groupSignalTerminator) Terminate(p *os.Process, graceful bool) error {
	sig := syscall.SIGKILL
	if graceful {
		sig = syscall.SIGTERM
	}

	// Negative pid addresses the process group.
	if err := syscall.Kill(-p.Pid, sig); err != nil {
		if err2 := p.Signal(sig); err2 != nil && !errors.Is(err2, os.ErrProcessDone) {
			return fmt.Errorf("failed to signal process group -%d: %v, also failed to signal process %d: %w", p.Pid, err, p.Pid, err2)
		}
	}
	return nil
}

func signalName(state *os.ProcessState) string {
	ws, ok := state.Sys().(syscall.WaitStatus)
	if !ok || !ws.Signaled() {
		return ""
	}
	return ws.Signal().String()
}
