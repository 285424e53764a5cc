package api

import (
	"context"
	"time"
)

// Registry is the durable store of server definitions and the tool call
// audit log. Implementations must be safe for concurrent use.
//
// GetServer returns a NotFoundError for unknown ids and for soft-deleted
// definitions. Mutating calls on a soft-deleted definition also return a
// NotFoundError.
type Registry interface {
	CreateServer(ctx context.Context, def ServerDefinition) (ServerDefinition, error)
	UpdateServer(ctx context.Context, def ServerDefinition) (ServerDefinition, error)
	GetServer(ctx context.Context, id string) (ServerDefinition, error)
	ListServers(ctx context.Context, filter ServerFilter) ([]ServerDefinition, error)
	SoftDeleteServer(ctx context.Context, id string) error

	// UpdateHealth writes the status and refreshes lastHealthCheck.
	UpdateHealth(ctx context.Context, id string, status HealthStatus, at time.Time) error
	// RecordUsage increments totalCalls and sets lastUsedAt.
	RecordUsage(ctx context.Context, id string, at time.Time) error

	AppendToolCall(ctx context.Context, rec ToolCallRecord) error
	ListToolCalls(ctx context.Context, query ToolCallQuery) ([]ToolCallRecord, error)
	ServerStats(ctx context.Context, id string) (ServerStats, error)

	Close() error
}
