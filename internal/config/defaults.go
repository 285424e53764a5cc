package config

import "time"

const (
	DefaultStartupTimeout      = 30 * time.Second
	DefaultStopGracePeriod     = 10 * time.Second
	DefaultRestartDelay        = 5 * time.Second
	DefaultCrashResetAfter     = 10 * time.Minute
	DefaultReadyDelay          = 2 * time.Second
	DefaultLogLines            = 500
	DefaultToolCallTimeout     = 60 * time.Second
	DefaultHealthCheckInterval = 30 * time.Second
	DefaultHealthCheckTimeout  = 10 * time.Second
	DefaultConcurrency         = 4
	DefaultPort                = 8095
	DefaultOwner               = "local"
)

// GetDefaultConfig returns the configuration used when config.yaml is
// missing or leaves fields unset.
func GetDefaultConfig() Config {
	return Config{
		Supervisor: SupervisorConfig{
			StartupTimeout:     DefaultStartupTimeout,
			StopGracePeriod:    DefaultStopGracePeriod,
			RestartDelay:       DefaultRestartDelay,
			CrashResetAfter:    DefaultCrashResetAfter,
			Readiness:          ReadinessHandshake,
			ReadyDelay:         DefaultReadyDelay,
			LogLines:           DefaultLogLines,
			ToolCallTimeout:    DefaultToolCallTimeout,
			MaxConcurrentCalls: 1,
		},
		Health: HealthConfig{
			Interval:    DefaultHealthCheckInterval,
			Concurrency: DefaultConcurrency,
			Timeout:     DefaultHealthCheckTimeout,
		},
		Loader: LoaderConfig{
			Enabled:     true,
			Concurrency: DefaultConcurrency,
		},
		Registry: RegistryConfig{
			Driver: RegistryFile,
			Path:   "data",
		},
		Server: ServerConfig{
			Enabled: true,
			Host:    "localhost",
			Port:    DefaultPort,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		DefaultOwner: DefaultOwner,
	}
}
