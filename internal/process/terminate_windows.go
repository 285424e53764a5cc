//go:build windows

package process

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"syscall"
)

func configureProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP,
	}
}

type taskkillTerminator struct{}

// NewTerminator returns the windows backend: taskkill /T asks the process
// tree to close, taskkill /T /F kills it.
func NewTerminator() Terminator {
	return taskkillTerminator{}
}

func (taskkillTerminator) Terminate(p *os.Process, graceful bool) error {
	args := []string{"/PID", strconv.Itoa(p.Pid), "/T"}
	if !graceful {
		args = append(args, "/F")
	}

	cmd := exec.Command("taskkill", args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{HideWindow: true}
	out, err := cmd.CombinedOutput()
	if err == nil {
		return nil
	}
	if graceful {
		return fmt.Errorf("taskkill %d: %w: %s", p.Pid, err, strings.TrimSpace(string(out)))
	}

	// taskkill unavailable or the tree is already partly gone; fall back to
	// TerminateProcess on the direct child.
	if kerr := p.Kill(); kerr != nil && !errors.Is(kerr, os.ErrProcessDone) {
		return fmt.Errorf("failed to terminate process %d: %w", p.Pid, kerr)
	}
	return nil
}

func signalName(*os.ProcessState) string {
	return ""
}
