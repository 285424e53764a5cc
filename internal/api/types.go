package api

import (
	"encoding/json"
	"time"
)

// HealthStatus is the persisted liveness/readiness state of a server.
type HealthStatus string

const (
	HealthUnknown   HealthStatus = "unknown"
	HealthStarting  HealthStatus = "starting"
	HealthHealthy   HealthStatus = "healthy"
	HealthUnhealthy HealthStatus = "unhealthy"
	HealthStopped   HealthStatus = "stopped"
	HealthError     HealthStatus = "error"
)

// Valid reports whether s is one of the known health states.
func (s HealthStatus) Valid() bool {
	switch s {
	case HealthUnknown, HealthStarting, HealthHealthy, HealthUnhealthy, HealthStopped, HealthError:
		return true
	}
	return false
}

// ServerDefinition describes a tool-provider subprocess and its persisted
// runtime bookkeeping. Args and Env are decoded once by the Registry; core
// code never handles their encoded form.
type ServerDefinition struct {
	ID          string            `yaml:"id" json:"id"`
	Name        string            `yaml:"name" json:"name"`
	Description string            `yaml:"description,omitempty" json:"description,omitempty"`
	Command     string            `yaml:"command" json:"command"`
	Args        []string          `yaml:"args,omitempty" json:"args,omitempty"`
	Env         map[string]string `yaml:"env,omitempty" json:"env,omitempty"`
	Enabled     bool              `yaml:"enabled" json:"enabled"`
	OwnerID     string            `yaml:"ownerId" json:"ownerId"`

	HealthStatus    HealthStatus `yaml:"healthStatus" json:"healthStatus"`
	LastHealthCheck *time.Time   `yaml:"lastHealthCheck,omitempty" json:"lastHealthCheck,omitempty"`
	LastUsedAt      *time.Time   `yaml:"lastUsedAt,omitempty" json:"lastUsedAt,omitempty"`
	TotalCalls      int64        `yaml:"totalCalls" json:"totalCalls"`

	CreatedAt time.Time  `yaml:"createdAt" json:"createdAt"`
	UpdatedAt time.Time  `yaml:"updatedAt" json:"updatedAt"`
	DeletedAt *time.Time `yaml:"deletedAt,omitempty" json:"deletedAt,omitempty"`
}

// Deleted reports whether the definition carries the soft-delete marker.
func (d ServerDefinition) Deleted() bool {
	return d.DeletedAt != nil
}

// Clone returns a deep copy so callers can mutate args and env safely.
func (d ServerDefinition) Clone() ServerDefinition {
	out := d
	if d.Args != nil {
		out.Args = append([]string(nil), d.Args...)
	}
	if d.Env != nil {
		out.Env = make(map[string]string, len(d.Env))
		for k, v := range d.Env {
			out.Env[k] = v
		}
	}
	out.LastHealthCheck = cloneTime(d.LastHealthCheck)
	out.LastUsedAt = cloneTime(d.LastUsedAt)
	out.DeletedAt = cloneTime(d.DeletedAt)
	return out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// ServerFilter narrows Registry.ListServers. Zero values match everything
// except soft-deleted definitions.
type ServerFilter struct {
	OwnerID        string
	EnabledOnly    bool
	IncludeDeleted bool
}

// Matches reports whether def passes the filter.
func (f ServerFilter) Matches(def ServerDefinition) bool {
	if f.OwnerID != "" && def.OwnerID != f.OwnerID {
		return false
	}
	if f.EnabledOnly && !def.Enabled {
		return false
	}
	if !f.IncludeDeleted && def.Deleted() {
		return false
	}
	return true
}

// ToolCallRecord is one append-only audit entry for a tool invocation.
type ToolCallRecord struct {
	ID            string                 `yaml:"id" json:"id"`
	ServerID      string                 `yaml:"serverId" json:"serverId"`
	ToolName      string                 `yaml:"toolName" json:"toolName"`
	Parameters    map[string]interface{} `yaml:"parameters,omitempty" json:"parameters,omitempty"`
	Response      json.RawMessage        `yaml:"response,omitempty" json:"response,omitempty"`
	Error         string                 `yaml:"error,omitempty" json:"error,omitempty"`
	Success       bool                   `yaml:"success" json:"success"`
	ExecutionTime time.Duration          `yaml:"executionTime" json:"executionTime"`
	Timestamp     time.Time              `yaml:"timestamp" json:"timestamp"`
}

// ToolCallQuery narrows Registry.ListToolCalls. Results are newest first.
type ToolCallQuery struct {
	ServerID string
	ToolName string
	Since    time.Time
	Limit    int
}

// ServerStats aggregates the audit log of a single server.
type ServerStats struct {
	ServerID             string        `json:"serverId"`
	TotalCalls           int64         `json:"totalCalls"`
	SuccessfulCalls      int64         `json:"successfulCalls"`
	FailedCalls          int64         `json:"failedCalls"`
	TotalExecutionTime   time.Duration `json:"totalExecutionTime"`
	AverageExecutionTime time.Duration `json:"averageExecutionTime"`
	LastCallAt           *time.Time    `json:"lastCallAt,omitempty"`
}

// Accumulate folds one record into the stats. Backends without aggregate
// queries use it to compute ServerStats from the raw log.
func (s *ServerStats) Accumulate(rec ToolCallRecord) {
	s.TotalCalls++
	if rec.Success {
		s.SuccessfulCalls++
	} else {
		s.FailedCalls++
	}
	s.TotalExecutionTime += rec.ExecutionTime
	s.AverageExecutionTime = s.TotalExecutionTime / time.Duration(s.TotalCalls)
	if s.LastCallAt == nil || rec.Timestamp.After(*s.LastCallAt) {
		ts := rec.Timestamp
		s.LastCallAt = &ts
	}
}

// RuntimeInfo describes a live subprocess. It is never persisted.
type RuntimeInfo struct {
	ServerID  string        `json:"serverId"`
	PID       int           `json:"pid"`
	StartedAt time.Time     `json:"startedAt"`
	Uptime    time.Duration `json:"uptime"`
	Ready     bool          `json:"ready"`
}

// ToolInfo describes one tool offered by a running server.
type ToolInfo struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// AvailableServer is a running, healthy server as seen by the AI layer.
type AvailableServer struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	Tools       []ToolInfo `json:"tools"`
}

// ToolResult is the outcome of a successful tool invocation.
type ToolResult struct {
	ServerID      string          `json:"serverId"`
	ToolName      string          `json:"toolName"`
	Text          string          `json:"text"`
	Content       json.RawMessage `json:"content,omitempty"`
	ExecutionTime time.Duration   `json:"executionTime"`
}

// StateChange is emitted by the supervisor whenever it moves a server
// between health states.
type StateChange struct {
	ServerID string       `json:"serverId"`
	Old      HealthStatus `json:"old"`
	New      HealthStatus `json:"new"`
	Reason   string       `json:"reason,omitempty"`
	At       time.Time    `json:"at"`
}

// ToolOutput is the raw answer of a subprocess to one tool call. IsError
// marks a child-reported failure.
type ToolOutput struct {
	Text    string
	Content json.RawMessage
	IsError bool
}
