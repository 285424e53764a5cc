// Package admin implements the administrative operations on server
// definitions: CRUD with validation, enable/disable, and the
// start/stop/restart/remove/logs/stats surface of the supervisor.
//
// Every operation takes the caller's owner id. An empty owner id acts for
// every owner; any other value may only touch its own definitions.
package admin

import (
	"context"
	"fmt"

	"toolhost/internal/api"
	"toolhost/internal/config"
	"toolhost/internal/template"
	"toolhost/pkg/logging"
	pkgstrings "toolhost/pkg/strings"
)

// Controller is the part of the supervisor the admin service drives.
type Controller interface {
	StartServer(ctx context.Context, id string) error
	StopServer(ctx context.Context, id string) error
	RestartServer(ctx context.Context, id string) error
	RemoveServer(ctx context.Context, id string) error
	IsRunning(id string) bool
	Runtime(id string) (api.RuntimeInfo, bool)
	Logs(id string) []string
}

// ServerView is a definition together with its live process, if any.
type ServerView struct {
	api.ServerDefinition
	Running bool             `json:"running"`
	Runtime *api.RuntimeInfo `json:"runtime,omitempty"`
}

// CreateRequest holds the fields of a new definition. Enabled defaults to
// true.
type CreateRequest struct {
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	Command     string            `json:"command"`
	Args        []string          `json:"args,omitempty"`
	Env         map[string]string `json:"env,omitempty"`
	Enabled     *bool             `json:"enabled,omitempty"`
}

// UpdateRequest changes the non-nil fields of a definition.
type UpdateRequest struct {
	Name        *string            `json:"name,omitempty"`
	Description *string            `json:"description,omitempty"`
	Command     *string            `json:"command,omitempty"`
	Args        *[]string          `json:"args,omitempty"`
	Env         *map[string]string `json:"env,omitempty"`
	Enabled     *bool              `json:"enabled,omitempty"`
}

func (r UpdateRequest) changesLaunch() bool {
	return r.Command != nil || r.Args != nil || r.Env != nil
}

// Service is the administrative service.
type Service struct {
	registry     api.Registry
	controller   Controller
	templates    *template.Engine
	defaultOwner string
}

// NewService creates a Service. Definitions created without an owner are
// assigned defaultOwner.
func NewService(registry api.Registry, controller Controller, defaultOwner string) *Service {
	if defaultOwner == "" {
		defaultOwner = config.DefaultOwner
	}
	return &Service{
		registry:     registry,
		controller:   controller,
		templates:    template.New(),
		defaultOwner: defaultOwner,
	}
}

// authorize loads the live definition of id and checks that owner may act
// on it.
func (s *Service) authorize(ctx context.Context, owner, id string) (api.ServerDefinition, error) {
	def, err := s.registry.GetServer(ctx, id)
	if err != nil {
		return api.ServerDefinition{}, err
	}
	if owner != "" && def.OwnerID != owner {
		return api.ServerDefinition{}, fmt.Errorf("server %s: %w", id, api.ErrForbidden)
	}
	return def, nil
}

// Authorize checks that owner may act on server id. An empty owner acts for
// every owner.
func (s *Service) Authorize(ctx context.Context, owner, id string) error {
	_, err := s.authorize(ctx, owner, id)
	return err
}

func (s *Service) view(def api.ServerDefinition) ServerView {
	v := ServerView{ServerDefinition: def, Running: s.controller.IsRunning(def.ID)}
	if info, ok := s.controller.Runtime(def.ID); ok {
		v.Runtime = &info
	}
	return v
}

// List returns the owner's definitions with their runtime state.
func (s *Service) List(ctx context.Context, owner string, enabledOnly bool) ([]ServerView, error) {
	defs, err := s.registry.ListServers(ctx, api.ServerFilter{OwnerID: owner, EnabledOnly: enabledOnly})
	if err != nil {
		return nil, err
	}
	out := make([]ServerView, 0, len(defs))
	for _, def := range defs {
		out = append(out, s.view(def))
	}
	return out, nil
}

// Get returns one definition with its runtime state.
func (s *Service) Get(ctx context.Context, owner, id string) (ServerView, error) {
	def, err := s.authorize(ctx, owner, id)
	if err != nil {
		return ServerView{}, err
	}
	return s.view(def), nil
}

// Create validates and stores a new definition. It does not start it.
func (s *Service) Create(ctx context.Context, owner string, req CreateRequest) (api.ServerDefinition, error) {
	if owner == "" {
		owner = s.defaultOwner
	}
	def := api.ServerDefinition{
		Name:        req.Name,
		Description: req.Description,
		Command:     req.Command,
		Args:        req.Args,
		Env:         req.Env,
		Enabled:     req.Enabled == nil || *req.Enabled,
		OwnerID:     owner,
	}
	if err := s.validate(def, true); err != nil {
		return api.ServerDefinition{}, err
	}

	created, err := s.registry.CreateServer(ctx, def)
	if err != nil {
		return api.ServerDefinition{}, err
	}
	logging.Info("Admin", "Created server %s (%s) for owner %s", created.Name, created.ID, owner)
	return created, nil
}

// Update changes a definition. Launch changes are validated first and
// applied by restarting the server if it is running. Disabling stops the
// server first. The command is only resolved again when command, args or
// env change, so a server whose executable disappeared can still be
// disabled or renamed.
func (s *Service) Update(ctx context.Context, owner, id string, req UpdateRequest) (api.ServerDefinition, error) {
	def, err := s.authorize(ctx, owner, id)
	if err != nil {
		return api.ServerDefinition{}, err
	}

	if req.Name != nil {
		def.Name = *req.Name
	}
	if req.Description != nil {
		def.Description = *req.Description
	}
	if req.Command != nil {
		def.Command = *req.Command
	}
	if req.Args != nil {
		def.Args = *req.Args
	}
	if req.Env != nil {
		def.Env = *req.Env
	}
	if err := s.validate(def, req.changesLaunch()); err != nil {
		return api.ServerDefinition{}, err
	}

	if req.Enabled != nil && !*req.Enabled && def.Enabled {
		if err := s.controller.StopServer(ctx, id); err != nil {
			return api.ServerDefinition{}, fmt.Errorf("failed to stop server %s before disabling: %w", id, err)
		}
	}
	if req.Enabled != nil {
		def.Enabled = *req.Enabled
	}

	wasRunning := s.controller.IsRunning(id)
	updated, err := s.registry.UpdateServer(ctx, def)
	if err != nil {
		return api.ServerDefinition{}, err
	}
	logging.Info("Admin", "Updated server %s (%s)", updated.Name, id)

	if wasRunning && updated.Enabled && req.changesLaunch() {
		logging.Info("Admin", "Restarting server %s to apply its new launch configuration", id)
		if err := s.controller.RestartServer(ctx, id); err != nil {
			return updated, fmt.Errorf("server %s updated but failed to restart: %w", id, err)
		}
	}
	return updated, nil
}

func (s *Service) validate(def api.ServerDefinition, launch bool) error {
	if !launch {
		return config.ValidateServerDescription(def)
	}
	if err := config.ValidateServerDefinition(def); err != nil {
		return err
	}
	if err := s.templates.Validate(def.Args, def.Env); err != nil {
		return &api.ConfigurationError{Field: "args/env", Command: def.Command, Message: "invalid template", Err: err}
	}
	return nil
}

// Enable allows the server to be started. It does not start it.
func (s *Service) Enable(ctx context.Context, owner, id string) (api.ServerDefinition, error) {
	enabled := true
	return s.Update(ctx, owner, id, UpdateRequest{Enabled: &enabled})
}

// Disable stops the server, then marks it disabled so it is never started
// again, by crash recovery or at boot, until enabled.
func (s *Service) Disable(ctx context.Context, owner, id string) (api.ServerDefinition, error) {
	disabled := false
	return s.Update(ctx, owner, id, UpdateRequest{Enabled: &disabled})
}

// Start starts the server and waits until it is ready.
func (s *Service) Start(ctx context.Context, owner, id string) error {
	if _, err := s.authorize(ctx, owner, id); err != nil {
		return err
	}
	return s.controller.StartServer(ctx, id)
}

// Stop stops the server. Stopping a server that is not running succeeds.
func (s *Service) Stop(ctx context.Context, owner, id string) error {
	if _, err := s.authorize(ctx, owner, id); err != nil {
		return err
	}
	return s.controller.StopServer(ctx, id)
}

// Restart stops the server if running and starts it again.
func (s *Service) Restart(ctx context.Context, owner, id string) error {
	if _, err := s.authorize(ctx, owner, id); err != nil {
		return err
	}
	return s.controller.RestartServer(ctx, id)
}

// Remove stops the server and soft-deletes its definition.
func (s *Service) Remove(ctx context.Context, owner, id string) error {
	if _, err := s.authorize(ctx, owner, id); err != nil {
		return err
	}
	return s.controller.RemoveServer(ctx, id)
}

// Logs returns up to lines of the server's most recent stderr output; zero
// returns everything retained.
func (s *Service) Logs(ctx context.Context, owner, id string, lines int) ([]string, error) {
	if _, err := s.authorize(ctx, owner, id); err != nil {
		return nil, err
	}
	return pkgstrings.LastLines(s.controller.Logs(id), lines), nil
}

// Stats aggregates the audit log of the server.
func (s *Service) Stats(ctx context.Context, owner, id string) (api.ServerStats, error) {
	if _, err := s.authorize(ctx, owner, id); err != nil {
		return api.ServerStats{}, err
	}
	return s.registry.ServerStats(ctx, id)
}

// ToolCalls queries the audit log. Owners other than the wildcard must
// name one of their servers.
func (s *Service) ToolCalls(ctx context.Context, owner string, query api.ToolCallQuery) ([]api.ToolCallRecord, error) {
	if owner != "" {
		if query.ServerID == "" {
			return nil, fmt.Errorf("a server id is required: %w", api.ErrForbidden)
		}
		if _, err := s.authorize(ctx, owner, query.ServerID); err != nil {
			return nil, err
		}
	}
	return s.registry.ListToolCalls(ctx, query)
}
