package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"toolhost/pkg/logging"

	"gopkg.in/yaml.v3"
)

const (
	userConfigDir  = ".config/toolhost"
	configFileName = "config.yaml"

	EnvRegistryDSN = "TOOLHOST_REGISTRY_DSN"
	EnvLogLevel    = "TOOLHOST_LOG_LEVEL"
)

// GetUserConfigDir returns ~/.config/toolhost.
func GetUserConfigDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine user config directory: %w", err)
	}
	return filepath.Join(homeDir, userConfigDir), nil
}

// LoadConfig reads config.yaml from configPath over the defaults, applies
// environment overrides and validates the result. A missing file is not an
// error.
func LoadConfig(configPath string) (Config, error) {
	configFilePath := filepath.Join(configPath, configFileName)
	cfg := GetDefaultConfig()

	data, err := os.ReadFile(configFilePath)
	switch {
	case errors.Is(err, os.ErrNotExist):
		logging.Info("ConfigLoader", "No config.yaml found at %s, using defaults", configFilePath)
	case err != nil:
		return Config{}, fmt.Errorf("error reading config from %s: %w", configFilePath, err)
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("error loading config from %s: %w", configFilePath, err)
		}
		logging.Info("ConfigLoader", "Loaded configuration from %s", configFilePath)
	}

	applyEnvOverrides(&cfg)

	if cfg.Registry.Driver == RegistryFile && !filepath.IsAbs(cfg.Registry.Path) {
		cfg.Registry.Path = filepath.Join(configPath, cfg.Registry.Path)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, FormatValidationError("config", configFilePath, err)
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if dsn := os.Getenv(EnvRegistryDSN); dsn != "" {
		cfg.Registry.DSN = dsn
	}
	if level := os.Getenv(EnvLogLevel); level != "" {
		cfg.Logging.Level = level
	}
}

// Validate checks the values that would otherwise fail at runtime.
func (c Config) Validate() error {
	var errs ValidationErrors

	if c.Supervisor.StartupTimeout <= 0 {
		errs.Add("supervisor.startupTimeout", "must be positive", c.Supervisor.StartupTimeout)
	}
	if c.Supervisor.StopGracePeriod <= 0 {
		errs.Add("supervisor.stopGracePeriod", "must be positive", c.Supervisor.StopGracePeriod)
	}
	if c.Supervisor.RestartDelay < 0 {
		errs.Add("supervisor.restartDelay", "must not be negative", c.Supervisor.RestartDelay)
	}
	if c.Supervisor.CrashResetAfter < 0 {
		errs.Add("supervisor.crashResetAfter", "must not be negative", c.Supervisor.CrashResetAfter)
	}
	if c.Supervisor.MaxRestarts < 0 {
		errs.Add("supervisor.maxRestarts", "must not be negative", c.Supervisor.MaxRestarts)
	}
	errs.Check(ValidateOneOf("supervisor.readiness", string(c.Supervisor.Readiness),
		[]string{string(ReadinessHandshake), string(ReadinessDelay)}))
	if c.Supervisor.ToolCallTimeout <= 0 {
		errs.Add("supervisor.toolCallTimeout", "must be positive", c.Supervisor.ToolCallTimeout)
	}
	if c.Supervisor.MaxConcurrentCalls < 1 {
		errs.Add("supervisor.maxConcurrentCalls", "must be at least 1", c.Supervisor.MaxConcurrentCalls)
	}
	if c.Health.Interval <= 0 {
		errs.Add("health.interval", "must be positive", c.Health.Interval)
	}
	errs.Check(ValidateOneOf("registry.driver", c.Registry.Driver,
		[]string{RegistryMemory, RegistryFile, RegistryPostgres}))
	if c.Registry.Driver == RegistryPostgres && c.Registry.DSN == "" {
		errs.Add("registry.dsn", fmt.Sprintf("is required for the postgres driver (or set %s)", EnvRegistryDSN))
	}
	if c.Server.Enabled && (c.Server.Port <= 0 || c.Server.Port > 65535) {
		errs.Add("server.port", "must be between 1 and 65535", c.Server.Port)
	}
	if _, ok := logging.ParseLevel(c.Logging.Level); !ok {
		errs.Add("logging.level", "must be one of: debug, info, warn, error", c.Logging.Level)
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}
