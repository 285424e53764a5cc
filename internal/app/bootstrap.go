package app

import (
	"context"
	"fmt"
	"io"
	"os"

	"toolhost/internal/config"
	"toolhost/pkg/logging"
)

// Application bootstraps and runs toolhost.
//
// Example usage:
//
//	cfg := app.NewConfig(false, "")
//	application, err := app.NewApplication(ctx, cfg)
//	if err != nil {
//	    return fmt.Errorf("failed to create application: %w", err)
//	}
//	return application.Run(ctx)
type Application struct {
	config   *Config
	services *Services
}

// NewApplication loads the configuration, initializes logging and builds
// every service. Nothing is started until Run.
func NewApplication(ctx context.Context, cfg *Config) (*Application, error) {
	var logOutput io.Writer = os.Stdout
	if cfg.Stdio {
		logOutput = os.Stderr
	}
	bootLevel := logging.LevelInfo
	if cfg.Debug {
		bootLevel = logging.LevelDebug
	}
	logging.InitForCLI(bootLevel, logOutput)

	if cfg.Toolhost == nil {
		configPath := cfg.ConfigPath
		if configPath == "" {
			dir, err := config.GetUserConfigDir()
			if err != nil {
				return nil, err
			}
			configPath = dir
		}
		loaded, err := config.LoadConfig(configPath)
		if err != nil {
			logging.Error("Bootstrap", err, "Failed to load configuration from %s", configPath)
			return nil, fmt.Errorf("failed to load configuration from %s: %w", configPath, err)
		}
		cfg.Toolhost = &loaded
	}

	level, ok := logging.ParseLevel(cfg.Toolhost.Logging.Level)
	if !ok {
		logging.Warn("Bootstrap", "Unknown log level %q, using info", cfg.Toolhost.Logging.Level)
	}
	if cfg.Debug {
		level = logging.LevelDebug
	}
	logging.Init(logging.Config{
		Level:  level,
		Format: logging.Format(cfg.Toolhost.Logging.Format),
		Output: logOutput,
	})

	services, err := InitializeServices(ctx, cfg)
	if err != nil {
		logging.Error("Bootstrap", err, "Failed to initialize services")
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	return &Application{
		config:   cfg,
		services: services,
	}, nil
}

// Services exposes the initialized services.
func (a *Application) Services() *Services {
	return a.services
}

// Run serves until ctx is cancelled or a termination signal arrives, then
// shuts everything down.
func (a *Application) Run(ctx context.Context) error {
	return runServe(ctx, a.config, a.services)
}
