// Package file implements api.Registry on a directory of YAML documents,
// one per server definition, plus an append-only JSON lines audit log.
// An in-memory cache answers reads; every mutation is written through.
package file

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"toolhost/internal/api"
	"toolhost/internal/config"
	"toolhost/internal/registry/memory"
	"toolhost/pkg/logging"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

const (
	entityServers = "servers"
	callsFile     = "tool_calls.jsonl"
	// maxCallLine bounds one audit record when reading the log back.
	maxCallLine = 4 * 1024 * 1024
)

// Registry is the file-backed api.Registry.
type Registry struct {
	storage   *config.Storage
	cache     *memory.Registry
	callsPath string

	// mu serialises mutations with their write-through and with reloads
	// triggered by the watcher, so the cache always matches the disk.
	mu sync.Mutex
	// files maps a document's base name to the id stored in it; ids are
	// sanitized into file names, so the name alone cannot recover the id.
	files map[string]string

	watcher *fsnotify.Watcher
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// Open loads the registry stored under dir, creating the directory if
// needed.
func Open(dir string) (*Registry, error) {
	if err := os.MkdirAll(filepath.Join(dir, entityServers), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create registry directory %s: %w", dir, err)
	}

	r := &Registry{
		storage:   config.NewStorage(dir),
		cache:     memory.New(),
		callsPath: filepath.Join(dir, callsFile),
		files:     make(map[string]string),
	}
	if err := r.loadServers(); err != nil {
		return nil, err
	}
	if err := r.loadCalls(); err != nil {
		return nil, err
	}
	logging.Info("FileRegistry", "Loaded registry from %s", dir)
	return r, nil
}

func (r *Registry) loadServers() error {
	names, err := r.storage.List(entityServers)
	if err != nil {
		return fmt.Errorf("failed to list server definitions: %w", err)
	}
	for _, name := range names {
		def, err := r.readServer(name)
		if err != nil {
			logging.Warn("FileRegistry", "Skipping %s: %v", name, err)
			continue
		}
		r.cache.Put(def)
		r.files[name] = def.ID
	}
	return nil
}

func (r *Registry) readServer(name string) (api.ServerDefinition, error) {
	data, err := r.storage.Load(entityServers, name)
	if err != nil {
		return api.ServerDefinition{}, err
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		// a writer has truncated the file and not yet filled it
		return api.ServerDefinition{}, fmt.Errorf("server definition %s is empty", name)
	}
	var def api.ServerDefinition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return api.ServerDefinition{}, fmt.Errorf("failed to parse server definition %s: %w", name, err)
	}
	if def.ID == "" {
		def.ID = name
	}
	if def.HealthStatus == "" {
		def.HealthStatus = api.HealthUnknown
	}
	return def, nil
}

func (r *Registry) loadCalls() error {
	f, err := os.Open(r.callsPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to open audit log: %w", err)
	}
	defer f.Close()

	var recs []api.ToolCallRecord
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxCallLine)
	line := 0
	for scanner.Scan() {
		line++
		if len(strings.TrimSpace(scanner.Text())) == 0 {
			continue
		}
		var rec api.ToolCallRecord
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			logging.Warn("FileRegistry", "Skipping malformed audit record on line %d: %v", line, err)
			continue
		}
		recs = append(recs, rec)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read audit log: %w", err)
	}
	r.cache.LoadCalls(recs)
	return nil
}

// persist writes the cached definition of id to disk. Must be called with
// r.mu held.
func (r *Registry) persist(id string) error {
	def, ok := r.cache.Raw(id)
	if !ok {
		return nil
	}
	data, err := yaml.Marshal(def)
	if err != nil {
		return fmt.Errorf("failed to encode server %s: %w", id, err)
	}
	if err := r.storage.Save(entityServers, id, data); err != nil {
		return fmt.Errorf("failed to persist server %s: %w", id, err)
	}
	r.files[config.SanitizeFilename(id)] = id
	return nil
}

func (r *Registry) CreateServer(ctx context.Context, def api.ServerDefinition) (api.ServerDefinition, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	created, err := r.cache.CreateServer(ctx, def)
	if err != nil {
		return api.ServerDefinition{}, err
	}
	if err := r.persist(created.ID); err != nil {
		r.cache.Remove(created.ID)
		return api.ServerDefinition{}, err
	}
	return created, nil
}

func (r *Registry) UpdateServer(ctx context.Context, def api.ServerDefinition) (api.ServerDefinition, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	updated, err := r.cache.UpdateServer(ctx, def)
	if err != nil {
		return api.ServerDefinition{}, err
	}
	return updated, r.persist(updated.ID)
}

func (r *Registry) GetServer(ctx context.Context, id string) (api.ServerDefinition, error) {
	return r.cache.GetServer(ctx, id)
}

func (r *Registry) ListServers(ctx context.Context, filter api.ServerFilter) ([]api.ServerDefinition, error) {
	return r.cache.ListServers(ctx, filter)
}

func (r *Registry) SoftDeleteServer(ctx context.Context, id string) error {
	return r.mutate(id, func() error { return r.cache.SoftDeleteServer(ctx, id) })
}

func (r *Registry) UpdateHealth(ctx context.Context, id string, status api.HealthStatus, at time.Time) error {
	return r.mutate(id, func() error { return r.cache.UpdateHealth(ctx, id, status, at) })
}

func (r *Registry) RecordUsage(ctx context.Context, id string, at time.Time) error {
	return r.mutate(id, func() error { return r.cache.RecordUsage(ctx, id, at) })
}

func (r *Registry) mutate(id string, fn func() error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := fn(); err != nil {
		return err
	}
	return r.persist(id)
}

func (r *Registry) AppendToolCall(_ context.Context, rec api.ToolCallRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}

	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode tool call: %w", err)
	}
	f, err := os.OpenFile(r.callsPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("failed to open audit log: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("failed to append to audit log: %w", err)
	}

	r.cache.LoadCalls([]api.ToolCallRecord{rec})
	return nil
}

func (r *Registry) ListToolCalls(ctx context.Context, query api.ToolCallQuery) ([]api.ToolCallRecord, error) {
	return r.cache.ListToolCalls(ctx, query)
}

func (r *Registry) ServerStats(ctx context.Context, id string) (api.ServerStats, error) {
	return r.cache.ServerStats(ctx, id)
}

// Close stops the watcher, if any.
func (r *Registry) Close() error {
	r.mu.Lock()
	watcher, stopCh := r.watcher, r.stopCh
	r.watcher, r.stopCh = nil, nil
	r.mu.Unlock()

	if watcher == nil {
		return nil
	}
	close(stopCh)
	err := watcher.Close()
	r.wg.Wait()
	return err
}
