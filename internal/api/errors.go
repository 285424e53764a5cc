package api

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrServerNotRunning is returned when an operation needs a live process.
	ErrServerNotRunning = errors.New("server not running")
	// ErrServerDisabled is returned when starting a disabled definition.
	ErrServerDisabled = errors.New("server is disabled")
	// ErrServerDeleted is returned when starting a soft-deleted definition.
	ErrServerDeleted = errors.New("server is deleted")
	// ErrForbidden is returned when an owner acts on another owner's server.
	ErrForbidden = errors.New("server belongs to another owner")
)

// NotFoundError represents a resource that does not exist or was soft-deleted.
type NotFoundError struct {
	ResourceType string
	ResourceName string
	Message      string
}

func (e *NotFoundError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("%s %s not found", e.ResourceType, e.ResourceName)
}

// NewNotFoundError creates a NotFoundError for the given resource.
func NewNotFoundError(resourceType, resourceName string) *NotFoundError {
	return &NotFoundError{ResourceType: resourceType, ResourceName: resourceName}
}

// NewServerNotFoundError creates a not found error for a server definition.
func NewServerNotFoundError(id string) *NotFoundError {
	return NewNotFoundError("server", id)
}

// IsNotFound checks if an error is or wraps a NotFoundError.
func IsNotFound(err error) bool {
	var notFoundErr *NotFoundError
	return errors.As(err, &notFoundErr)
}

// ConfigurationError reports a server definition that could never start,
// typically because its command cannot be resolved on this host.
//
// It is returned synchronously from definition create and update.
type ConfigurationError struct {
	// Field is the offending attribute ("command", "args", "env").
	Field   string
	Command string
	Message string
	Err     error
}

func (e *ConfigurationError) Error() string {
	var b strings.Builder
	b.WriteString("invalid server configuration")
	if e.Field != "" {
		fmt.Fprintf(&b, " (%s)", e.Field)
	}
	b.WriteString(": ")
	b.WriteString(e.Message)
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// IsConfigurationError checks if an error is or wraps a ConfigurationError.
func IsConfigurationError(err error) bool {
	var cfgErr *ConfigurationError
	return errors.As(err, &cfgErr)
}

// StartupTimeoutError is returned by StartServer when a spawned process does
// not become ready within the startup window. The server is left in
// HealthError.
type StartupTimeoutError struct {
	ServerID string
	Timeout  time.Duration
	Err      error
}

func (e *StartupTimeoutError) Error() string {
	msg := fmt.Sprintf("server %s not ready within %s", e.ServerID, e.Timeout)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *StartupTimeoutError) Unwrap() error { return e.Err }

// IsStartupTimeout checks if an error is or wraps a StartupTimeoutError.
func IsStartupTimeout(err error) bool {
	var timeoutErr *StartupTimeoutError
	return errors.As(err, &timeoutErr)
}

// RuntimeCrash describes an unexpected exit of a ready process. It travels
// through logs and state change notifications, never a caller's return.
type RuntimeCrash struct {
	ServerID string
	PID      int
	ExitCode int
	Signal   string
}

func (e *RuntimeCrash) Error() string {
	if e.Signal != "" {
		return fmt.Sprintf("server %s (pid %d) killed by signal %s", e.ServerID, e.PID, e.Signal)
	}
	return fmt.Sprintf("server %s (pid %d) exited with code %d", e.ServerID, e.PID, e.ExitCode)
}

// ToolExecutionError is returned by the gateway for invocations against a
// non-running server and for child-reported or protocol failures.
type ToolExecutionError struct {
	ServerID string
	ToolName string
	Message  string
	Err      error
}

func (e *ToolExecutionError) Error() string {
	msg := fmt.Sprintf("tool %s on server %s failed", e.ToolName, e.ServerID)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ToolExecutionError) Unwrap() error { return e.Err }

// IsToolExecutionError checks if an error is or wraps a ToolExecutionError.
func IsToolExecutionError(err error) bool {
	var toolErr *ToolExecutionError
	return errors.As(err, &toolErr)
}

// TerminationTimeout records that a graceful stop exceeded its grace period
// and was escalated to a forceful kill.
type TerminationTimeout struct {
	ServerID    string
	GracePeriod time.Duration
}

func (e *TerminationTimeout) Error() string {
	return fmt.Sprintf("server %s did not exit within %s after graceful termination", e.ServerID, e.GracePeriod)
}
