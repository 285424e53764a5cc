package config

import "time"

// Config is the top-level configuration structure for toolhost, read from
// config.yaml in the configuration directory.
type Config struct {
	Supervisor   SupervisorConfig `yaml:"supervisor"`
	Health       HealthConfig     `yaml:"health"`
	Loader       LoaderConfig     `yaml:"loader"`
	Registry     RegistryConfig   `yaml:"registry"`
	Server       ServerConfig     `yaml:"server"`
	Logging      LoggingConfig    `yaml:"logging"`
	DefaultOwner string           `yaml:"defaultOwner"`
}

// ReadinessMode selects how the supervisor decides a freshly spawned
// process is ready to take tool calls.
type ReadinessMode string

const (
	// ReadinessHandshake waits for a successful MCP initialize exchange.
	ReadinessHandshake ReadinessMode = "handshake"
	// ReadinessDelay treats a process that is still alive after ReadyDelay as
	// ready and performs the handshake afterwards.
	ReadinessDelay ReadinessMode = "delay"
)

// SupervisorConfig holds process lifecycle timings.
type SupervisorConfig struct {
	StartupTimeout  time.Duration `yaml:"startupTimeout"`
	StopGracePeriod time.Duration `yaml:"stopGracePeriod"`
	RestartDelay    time.Duration `yaml:"restartDelay"`
	// MaxRestarts bounds consecutive crash restarts; 0 means unlimited.
	MaxRestarts int `yaml:"maxRestarts"`
	// CrashResetAfter is how long a process must stay up for its crash
	// to no longer count as consecutive.
	CrashResetAfter    time.Duration `yaml:"crashResetAfter"`
	Readiness          ReadinessMode `yaml:"readiness"`
	ReadyDelay         time.Duration `yaml:"readyDelay"`
	LogLines           int           `yaml:"logLines"`
	ToolCallTimeout    time.Duration `yaml:"toolCallTimeout"`
	MaxConcurrentCalls int64         `yaml:"maxConcurrentCalls"`
}

// HealthConfig controls the health monitor.
type HealthConfig struct {
	Interval    time.Duration `yaml:"interval"`
	Concurrency int           `yaml:"concurrency"`
	// Timeout bounds the check of a single server.
	Timeout time.Duration `yaml:"timeout"`
}

// LoaderConfig controls the startup loader.
type LoaderConfig struct {
	Enabled     bool `yaml:"enabled"`
	Concurrency int  `yaml:"concurrency"`
}

// Registry drivers.
const (
	RegistryMemory   = "memory"
	RegistryFile     = "file"
	RegistryPostgres = "postgres"
)

// RegistryConfig selects and configures the Registry backend.
type RegistryConfig struct {
	Driver string `yaml:"driver"`
	// Path is the data directory of the file driver. Relative paths are
	// resolved against the configuration directory.
	Path string `yaml:"path,omitempty"`
	DSN  string `yaml:"dsn,omitempty"`
	// Watch reloads the file driver when its files change on disk.
	Watch bool `yaml:"watch,omitempty"`
}

// ServerConfig configures the MCP endpoint served by `toolhost serve`.
type ServerConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
}

// LoggingConfig configures pkg/logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}
