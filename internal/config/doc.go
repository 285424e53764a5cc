// Package config loads toolhost's config.yaml, provides the YAML entity
// Storage used by the file registry, and validates server definitions
// before they are accepted.
//
// Configuration lives in ~/.config/toolhost by default:
//
//	~/.config/toolhost/
//	├── config.yaml        # supervisor, health, registry, server settings
//	└── servers/           # file registry: one YAML document per definition
//
// Durations are written as Go duration strings ("30s", "1m30s").
package config
