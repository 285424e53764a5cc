// Package logging provides subsystem-scoped structured logging for toolhost.
//
// The package wraps log/slog with printf-style helpers that attach a
// "subsystem" attribute to every entry, so output from the supervisor, the
// health monitor and the gateway can be told apart and filtered.
//
// # Usage
//
//	logging.Init(logging.Config{Level: logging.LevelInfo, Format: logging.FormatJSON})
//
//	logging.Info("Supervisor", "Started server %s (pid %d)", id, pid)
//	logging.Warn("HealthMonitor", "Server %s is not alive", id)
//	logging.Error("Gateway", err, "Tool call %s on %s failed", tool, id)
//
// # Output Formats
//
// FormatText uses slog.TextHandler and is the default for interactive use.
// FormatJSON uses slog.JSONHandler and suits log collectors when running
// under systemd or in containers.
//
// Entries below the configured level are dropped before formatting.
package logging
