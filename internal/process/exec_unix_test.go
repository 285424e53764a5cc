//go:build !windows

package process

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collectEvents(t *testing.T, p Process, timeout time.Duration) []Event {
	t.Helper()
	var events []Event
	deadline := time.After(timeout)
	for {
		select {
		case ev, ok := <-p.Events():
			if !ok {
				return events
			}
			events = append(events, ev)
		case <-deadline:
			t.Fatalf("timed out waiting for process events, got %v", events)
		}
	}
}

func TestExecLauncher_ExitCodeAndLogs(t *testing.T) {
	l := NewExecLauncher(10)

	p, err := l.Launch(context.Background(), Spec{
		ID:      "s1",
		Command: "sh",
		Args:    []string{"-c", "echo \"$GREETING\" >&2; exit 3"},
		Env:     map[string]string{"GREETING": "hello from stderr"},
	})
	require.NoError(t, err)
	assert.Greater(t, p.PID(), 0)

	events := collectEvents(t, p, 5*time.Second)
	require.Len(t, events, 2)
	assert.Equal(t, EventStarted, events[0].Type)
	assert.Equal(t, EventExited, events[1].Type)
	assert.Equal(t, 3, events[1].ExitCode)
	assert.Empty(t, events[1].Signal)

	status, ok := p.ExitStatus()
	require.True(t, ok)
	assert.False(t, status.Clean())
	assert.Equal(t, []string{"hello from stderr"}, p.Logs())
}

func TestExecLauncher_CleanExit(t *testing.T) {
	p, err := NewExecLauncher(10).Launch(context.Background(), Spec{ID: "s1", Command: "echo", Args: []string{"hello"}})
	require.NoError(t, err)

	events := collectEvents(t, p, 5*time.Second)
	require.Len(t, events, 2)
	assert.Equal(t, 0, events[1].ExitCode)

	status, _ := p.ExitStatus()
	assert.True(t, status.Clean())
}

func TestExecLauncher_GracefulTerminate(t *testing.T) {
	p, err := NewExecLauncher(10).Launch(context.Background(), Spec{ID: "s1", Command: "sleep", Args: []string{"30"}})
	require.NoError(t, err)

	require.NoError(t, p.Terminate(true))

	select {
	case <-p.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("process did not exit after SIGTERM")
	}

	status, ok := p.ExitStatus()
	require.True(t, ok)
	assert.Equal(t, "terminated", status.Signal)
	assert.Equal(t, -1, status.Code)

	// terminating an exited process is a no-op
	assert.NoError(t, p.Terminate(false))
}

func TestExecLauncher_ForcefulTerminateKillsGroup(t *testing.T) {
	// the shell ignores SIGTERM and keeps a child around
	p, err := NewExecLauncher(10).Launch(context.Background(), Spec{
		ID:      "s1",
		Command: "sh",
		Args:    []string{"-c", "trap '' TERM; sleep 30 & wait"},
	})
	require.NoError(t, err)

	require.NoError(t, p.Terminate(false))

	select {
	case <-p.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("process group survived SIGKILL")
	}
	status, _ := p.ExitStatus()
	assert.Equal(t, "killed", status.Signal)
}

func TestExecLauncher_UnknownCommand(t *testing.T) {
	_, err := NewExecLauncher(10).Launch(context.Background(), Spec{ID: "s1", Command: "toolhost-definitely-missing-binary"})
	assert.Error(t, err)
}

func TestExecLauncher_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewExecLauncher(10).Launch(ctx, Spec{ID: "s1", Command: "echo"})
	assert.ErrorIs(t, err, context.Canceled)
}
