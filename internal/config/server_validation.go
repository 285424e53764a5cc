package config

import (
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"

	"toolhost/internal/api"
)

// ValidateServerConfig checks that a server definition's launch
// configuration could start on this host. It runs before a definition is
// created and whenever its command, args or env change.
func ValidateServerConfig(command string, args []string, env map[string]string) error {
	if strings.TrimSpace(command) == "" {
		return &api.ConfigurationError{Field: "command", Message: "command is required"}
	}

	for i, arg := range args {
		if strings.ContainsRune(arg, 0) {
			return &api.ConfigurationError{
				Field:   "args",
				Command: command,
				Message: fmt.Sprintf("argument %d contains a NUL byte", i),
			}
		}
	}

	for key, value := range env {
		if key == "" || strings.ContainsAny(key, "=\x00") {
			return &api.ConfigurationError{
				Field:   "env",
				Command: command,
				Message: fmt.Sprintf("invalid environment variable name %q", key),
			}
		}
		if strings.ContainsRune(value, 0) {
			return &api.ConfigurationError{
				Field:   "env",
				Command: command,
				Message: fmt.Sprintf("environment variable %s contains a NUL byte", key),
			}
		}
	}

	if _, err := ResolveExecutable(command, env); err != nil {
		return &api.ConfigurationError{
			Field:   "command",
			Command: command,
			Message: fmt.Sprintf("executable %q cannot be resolved", command),
			Err:     err,
		}
	}
	return nil
}

// ResolveExecutable finds command the way the spawned process will: a PATH
// override in env takes precedence over the supervisor's own PATH. Commands
// containing a path separator are checked directly.
func ResolveExecutable(command string, env map[string]string) (string, error) {
	pathOverride, ok := env["PATH"]
	if !ok || strings.ContainsAny(command, `/\`) {
		return exec.LookPath(command)
	}

	for _, dir := range filepath.SplitList(pathOverride) {
		if dir == "" {
			dir = "."
		}
		// LookPath on a path with a separator only checks that file (plus
		// PATHEXT on windows).
		if resolved, err := exec.LookPath(filepath.Join(dir, command)); err == nil {
			return resolved, nil
		}
	}
	return "", &exec.Error{Name: command, Err: exec.ErrNotFound}
}

// ValidateServerDefinition checks the descriptive fields of a definition
// and then its launch configuration.
func ValidateServerDefinition(def api.ServerDefinition) error {
	if err := ValidateServerDescription(def); err != nil {
		return err
	}
	return ValidateServerConfig(def.Command, def.Args, def.Env)
}

// ValidateServerDescription checks the name, description and owner of a
// definition without looking at how it is launched.
func ValidateServerDescription(def api.ServerDefinition) error {
	var errs ValidationErrors

	errs.Check(ValidateServerName(def.Name))
	errs.Check(ValidateMaxLength("description", def.Description, 1000))
	errs.Check(ValidateRequired("ownerId", def.OwnerID))
	if errs.HasErrors() {
		return FormatValidationError("server", def.Name, errs)
	}
	return nil
}
