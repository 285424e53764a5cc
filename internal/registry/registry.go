// Package registry opens the api.Registry driver selected in config.yaml.
package registry

import (
	"context"
	"fmt"

	"toolhost/internal/api"
	"toolhost/internal/config"
	"toolhost/internal/registry/file"
	"toolhost/internal/registry/memory"
	"toolhost/internal/registry/postgres"
	"toolhost/pkg/logging"
)

// Open returns the configured registry. The file driver starts watching
// its directory when cfg.Watch is set.
func Open(ctx context.Context, cfg config.RegistryConfig) (api.Registry, error) {
	switch cfg.Driver {
	case config.RegistryMemory:
		logging.Warn("Registry", "Using the in-memory registry; definitions are lost on exit")
		return memory.New(), nil
	case config.RegistryFile, "":
		reg, err := file.Open(cfg.Path)
		if err != nil {
			return nil, err
		}
		if cfg.Watch {
			if err := reg.Watch(); err != nil {
				reg.Close()
				return nil, fmt.Errorf("failed to watch %s: %w", cfg.Path, err)
			}
		}
		return reg, nil
	case config.RegistryPostgres:
		return postgres.Open(ctx, cfg.DSN)
	default:
		return nil, fmt.Errorf("unknown registry driver %q", cfg.Driver)
	}
}
