package app

import (
	"toolhost/internal/config"
)

// Config holds the application configuration
type Config struct {
	// Debug forces debug logging regardless of config.yaml.
	Debug bool

	// ConfigPath is the configuration directory. Empty selects
	// ~/.config/toolhost.
	ConfigPath string

	// Stdio serves MCP on stdin/stdout instead of streamable HTTP. Logs go
	// to stderr in this mode.
	Stdio bool

	// Version is reported to MCP clients.
	Version string

	// Toolhost is the loaded config.yaml. NewApplication fills it in when
	// it is nil.
	Toolhost *config.Config
}

// NewConfig creates a new application configuration
func NewConfig(debug bool, configPath string) *Config {
	return &Config{
		Debug:      debug,
		ConfigPath: configPath,
	}
}
