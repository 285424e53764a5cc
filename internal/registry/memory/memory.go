// Package memory implements api.Registry in process memory. It backs tests
// and the "memory" registry driver, and serves as the cache of the file
// driver.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"toolhost/internal/api"

	"github.com/google/uuid"
)

// Registry is an in-memory api.Registry.
type Registry struct {
	mu      sync.RWMutex
	servers map[string]api.ServerDefinition
	calls   []api.ToolCallRecord
	now     func() time.Time
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{
		servers: make(map[string]api.ServerDefinition),
		now:     time.Now,
	}
}

// SetClock replaces the time source used for created/updated timestamps.
func (r *Registry) SetClock(now func() time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.now = now
}

func (r *Registry) CreateServer(_ context.Context, def api.ServerDefinition) (api.ServerDefinition, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if def.ID == "" {
		def.ID = uuid.NewString()
	}
	if _, exists := r.servers[def.ID]; exists {
		return api.ServerDefinition{}, fmt.Errorf("server %s already exists", def.ID)
	}

	now := r.now()
	def = def.Clone()
	def.CreatedAt = now
	def.UpdatedAt = now
	if def.HealthStatus == "" {
		def.HealthStatus = api.HealthUnknown
	}

	r.servers[def.ID] = def
	return def.Clone(), nil
}

// UpdateServer replaces the descriptive and launch fields of a definition.
// Runtime bookkeeping (health, usage counters) is kept from the stored copy;
// it is owned by UpdateHealth and RecordUsage.
func (r *Registry) UpdateServer(_ context.Context, def api.ServerDefinition) (api.ServerDefinition, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, err := r.live(def.ID)
	if err != nil {
		return api.ServerDefinition{}, err
	}

	stored.Name = def.Name
	stored.Description = def.Description
	stored.Command = def.Command
	stored.Args = append([]string(nil), def.Args...)
	stored.Env = def.Clone().Env
	stored.Enabled = def.Enabled
	if def.OwnerID != "" {
		stored.OwnerID = def.OwnerID
	}
	stored.UpdatedAt = r.now()

	r.servers[def.ID] = stored
	return stored.Clone(), nil
}

func (r *Registry) GetServer(_ context.Context, id string) (api.ServerDefinition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	def, err := r.live(id)
	if err != nil {
		return api.ServerDefinition{}, err
	}
	return def.Clone(), nil
}

func (r *Registry) ListServers(_ context.Context, filter api.ServerFilter) ([]api.ServerDefinition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []api.ServerDefinition
	for _, def := range r.servers {
		if filter.Matches(def) {
			out = append(out, def.Clone())
		}
	}
	SortServers(out)
	return out, nil
}

func (r *Registry) SoftDeleteServer(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	def, err := r.live(id)
	if err != nil {
		return err
	}
	now := r.now()
	def.DeletedAt = &now
	def.Enabled = false
	def.UpdatedAt = now
	r.servers[id] = def
	return nil
}

func (r *Registry) UpdateHealth(_ context.Context, id string, status api.HealthStatus, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	def, err := r.live(id)
	if err != nil {
		return err
	}
	def.HealthStatus = status
	def.LastHealthCheck = &at
	r.servers[id] = def
	return nil
}

func (r *Registry) RecordUsage(_ context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	def, err := r.live(id)
	if err != nil {
		return err
	}
	def.TotalCalls++
	def.LastUsedAt = &at
	r.servers[id] = def
	return nil
}

func (r *Registry) AppendToolCall(_ context.Context, rec api.ToolCallRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = r.now()
	}
	r.calls = append(r.calls, rec)
	return nil
}

func (r *Registry) ListToolCalls(_ context.Context, query api.ToolCallQuery) ([]api.ToolCallRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []api.ToolCallRecord
	for i := len(r.calls) - 1; i >= 0; i-- {
		rec := r.calls[i]
		if !MatchesCall(query, rec) {
			continue
		}
		out = append(out, rec)
		if query.Limit > 0 && len(out) == query.Limit {
			break
		}
	}
	return out, nil
}

func (r *Registry) ServerStats(_ context.Context, id string) (api.ServerStats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, ok := r.servers[id]; !ok {
		return api.ServerStats{}, api.NewServerNotFoundError(id)
	}

	stats := api.ServerStats{ServerID: id}
	for _, rec := range r.calls {
		if rec.ServerID == id {
			stats.Accumulate(rec)
		}
	}
	return stats, nil
}

func (r *Registry) Close() error { return nil }

// Put stores def as-is, replacing any existing definition with the same id.
// The file driver uses it to load documents from disk.
func (r *Registry) Put(def api.ServerDefinition) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.servers[def.ID] = def.Clone()
}

// Remove drops a definition entirely.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.servers, id)
}

// Raw returns the stored definition including soft-deleted ones.
func (r *Registry) Raw(id string) (api.ServerDefinition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.servers[id]
	return def.Clone(), ok
}

// LoadCalls appends previously persisted records without assigning ids.
func (r *Registry) LoadCalls(recs []api.ToolCallRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, recs...)
}

// live must be called with r.mu held.
func (r *Registry) live(id string) (api.ServerDefinition, error) {
	def, ok := r.servers[id]
	if !ok || def.Deleted() {
		return api.ServerDefinition{}, api.NewServerNotFoundError(id)
	}
	return def, nil
}

// MatchesCall reports whether rec satisfies query, ignoring Limit.
func MatchesCall(query api.ToolCallQuery, rec api.ToolCallRecord) bool {
	if query.ServerID != "" && rec.ServerID != query.ServerID {
		return false
	}
	if query.ToolName != "" && rec.ToolName != query.ToolName {
		return false
	}
	if !query.Since.IsZero() && rec.Timestamp.Before(query.Since) {
		return false
	}
	return true
}

// SortServers orders definitions by creation time, then name.
func SortServers(defs []api.ServerDefinition) {
	sort.SliceStable(defs, func(i, j int) bool {
		if !defs[i].CreatedAt.Equal(defs[j].CreatedAt) {
			return defs[i].CreatedAt.Before(defs[j].CreatedAt)
		}
		return defs[i].Name < defs[j].Name
	})
}
