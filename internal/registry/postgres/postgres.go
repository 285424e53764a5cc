// Package postgres implements api.Registry on PostgreSQL through a pgx
// connection pool. Args, env and call parameters are stored as JSONB.
package postgres

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"toolhost/internal/api"
	"toolhost/pkg/logging"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var schema string

// Schema returns the DDL applied by Init.
func Schema() string { return schema }

const serverColumns = `id, name, description, command, args, env, enabled, owner_id,
	health_status, last_health_check, last_used_at, total_calls, created_at, updated_at, deleted_at`

// Registry is the PostgreSQL api.Registry.
type Registry struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// Open connects to dsn and verifies the connection.
func Open(ctx context.Context, dsn string) (*Registry, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	ctxPing, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(ctxPing); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	logging.Info("PostgresRegistry", "Connected to %s", cfg.ConnConfig.Host)
	return &Registry{pool: pool, now: time.Now}, nil
}

// Init applies the embedded schema. It is idempotent.
func (r *Registry) Init(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Close releases the pool.
func (r *Registry) Close() error {
	r.pool.Close()
	return nil
}

// timestamp matches the microsecond precision of TIMESTAMPTZ.
func (r *Registry) timestamp() time.Time {
	return r.now().UTC().Truncate(time.Microsecond)
}

func (r *Registry) CreateServer(ctx context.Context, def api.ServerDefinition) (api.ServerDefinition, error) {
	if def.ID == "" {
		def.ID = uuid.NewString()
	}
	if def.HealthStatus == "" {
		def.HealthStatus = api.HealthUnknown
	}
	args, env, err := encodeLaunch(def)
	if err != nil {
		return api.ServerDefinition{}, err
	}
	now := r.timestamp()

	row := r.pool.QueryRow(ctx, `
		INSERT INTO toolhost.servers (id, name, description, command, args, env, enabled, owner_id,
			health_status, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5::jsonb,$6::jsonb,$7,$8,$9,$10,$10)
		RETURNING `+serverColumns,
		def.ID, def.Name, def.Description, def.Command, args, env, def.Enabled, def.OwnerID,
		string(def.HealthStatus), now)
	created, err := scanServer(row)
	if err != nil {
		return api.ServerDefinition{}, fmt.Errorf("failed to create server %s: %w", def.ID, err)
	}
	return created, nil
}

// UpdateServer replaces the descriptive and launch fields. Runtime
// bookkeeping columns are left alone.
func (r *Registry) UpdateServer(ctx context.Context, def api.ServerDefinition) (api.ServerDefinition, error) {
	args, env, err := encodeLaunch(def)
	if err != nil {
		return api.ServerDefinition{}, err
	}
	row := r.pool.QueryRow(ctx, `
		UPDATE toolhost.servers SET
		  name=$2, description=$3, command=$4, args=$5::jsonb, env=$6::jsonb, enabled=$7,
		  owner_id=COALESCE(NULLIF($8, ''), owner_id),
		  updated_at=$9
		WHERE id=$1 AND deleted_at IS NULL
		RETURNING `+serverColumns,
		def.ID, def.Name, def.Description, def.Command, args, env, def.Enabled, def.OwnerID, r.timestamp())
	updated, err := scanServer(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return api.ServerDefinition{}, api.NewServerNotFoundError(def.ID)
	}
	if err != nil {
		return api.ServerDefinition{}, fmt.Errorf("failed to update server %s: %w", def.ID, err)
	}
	return updated, nil
}

func (r *Registry) GetServer(ctx context.Context, id string) (api.ServerDefinition, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+serverColumns+`
		FROM toolhost.servers WHERE id=$1 AND deleted_at IS NULL`, id)
	def, err := scanServer(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return api.ServerDefinition{}, api.NewServerNotFoundError(id)
	}
	if err != nil {
		return api.ServerDefinition{}, fmt.Errorf("failed to load server %s: %w", id, err)
	}
	return def, nil
}

func (r *Registry) ListServers(ctx context.Context, filter api.ServerFilter) ([]api.ServerDefinition, error) {
	var (
		where []string
		args  []any
	)
	if filter.OwnerID != "" {
		args = append(args, filter.OwnerID)
		where = append(where, fmt.Sprintf("owner_id=$%d", len(args)))
	}
	if filter.EnabledOnly {
		where = append(where, "enabled")
	}
	if !filter.IncludeDeleted {
		where = append(where, "deleted_at IS NULL")
	}

	query := `SELECT ` + serverColumns + ` FROM toolhost.servers`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at, name`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list servers: %w", err)
	}
	defer rows.Close()

	var out []api.ServerDefinition
	for rows.Next() {
		def, err := scanServer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, def)
	}
	return out, rows.Err()
}

func (r *Registry) SoftDeleteServer(ctx context.Context, id string) error {
	return r.execOne(ctx, id, `
		UPDATE toolhost.servers SET deleted_at=$2, enabled=false, updated_at=$2
		WHERE id=$1 AND deleted_at IS NULL`, id, r.timestamp())
}

func (r *Registry) UpdateHealth(ctx context.Context, id string, status api.HealthStatus, at time.Time) error {
	return r.execOne(ctx, id, `
		UPDATE toolhost.servers SET health_status=$2, last_health_check=$3
		WHERE id=$1 AND deleted_at IS NULL`, id, string(status), at)
}

func (r *Registry) RecordUsage(ctx context.Context, id string, at time.Time) error {
	return r.execOne(ctx, id, `
		UPDATE toolhost.servers SET total_calls=total_calls+1, last_used_at=$2
		WHERE id=$1 AND deleted_at IS NULL`, id, at)
}

// execOne runs an UPDATE that must touch exactly the live row of id.
func (r *Registry) execOne(ctx context.Context, id, sql string, args ...any) error {
	tag, err := r.pool.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("failed to update server %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return api.NewServerNotFoundError(id)
	}
	return nil
}

func (r *Registry) AppendToolCall(ctx context.Context, rec api.ToolCallRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = r.timestamp()
	}
	var params, response any
	if rec.Parameters != nil {
		b, err := json.Marshal(rec.Parameters)
		if err != nil {
			return fmt.Errorf("failed to encode tool call parameters: %w", err)
		}
		params = string(b)
	}
	if len(rec.Response) > 0 {
		response = string(rec.Response)
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO toolhost.tool_calls (id, server_id, tool_name, parameters, response, error, success,
			execution_time_us, called_at)
		VALUES ($1,$2,$3,$4::jsonb,$5::jsonb,$6,$7,$8,$9)
	`, rec.ID, rec.ServerID, rec.ToolName, params, response, rec.Error, rec.Success,
		rec.ExecutionTime.Microseconds(), rec.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to record tool call: %w", err)
	}
	return nil
}

func (r *Registry) ListToolCalls(ctx context.Context, query api.ToolCallQuery) ([]api.ToolCallRecord, error) {
	var (
		where []string
		args  []any
	)
	if query.ServerID != "" {
		args = append(args, query.ServerID)
		where = append(where, fmt.Sprintf("server_id=$%d", len(args)))
	}
	if query.ToolName != "" {
		args = append(args, query.ToolName)
		where = append(where, fmt.Sprintf("tool_name=$%d", len(args)))
	}
	if !query.Since.IsZero() {
		args = append(args, query.Since)
		where = append(where, fmt.Sprintf("called_at>=$%d", len(args)))
	}

	sql := `SELECT id, server_id, tool_name, parameters, response, error, success, execution_time_us, called_at
		FROM toolhost.tool_calls`
	if len(where) > 0 {
		sql += ` WHERE ` + strings.Join(where, " AND ")
	}
	sql += ` ORDER BY called_at DESC, seq DESC`
	if query.Limit > 0 {
		args = append(args, query.Limit)
		sql += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tool calls: %w", err)
	}
	defer rows.Close()

	var out []api.ToolCallRecord
	for rows.Next() {
		var (
			rec            api.ToolCallRecord
			params, result []byte
			micros         int64
		)
		if err := rows.Scan(&rec.ID, &rec.ServerID, &rec.ToolName, &params, &result, &rec.Error,
			&rec.Success, &micros, &rec.Timestamp); err != nil {
			return nil, err
		}
		if len(params) > 0 {
			if err := json.Unmarshal(params, &rec.Parameters); err != nil {
				return nil, fmt.Errorf("failed to decode parameters of call %s: %w", rec.ID, err)
			}
		}
		if len(result) > 0 {
			rec.Response = json.RawMessage(result)
		}
		rec.ExecutionTime = time.Duration(micros) * time.Microsecond
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *Registry) ServerStats(ctx context.Context, id string) (api.ServerStats, error) {
	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM toolhost.servers WHERE id=$1)`, id).Scan(&exists); err != nil {
		return api.ServerStats{}, fmt.Errorf("failed to load server %s: %w", id, err)
	}
	if !exists {
		return api.ServerStats{}, api.NewServerNotFoundError(id)
	}

	var (
		stats  = api.ServerStats{ServerID: id}
		micros int64
	)
	err := r.pool.QueryRow(ctx, `
		SELECT count(*), count(*) FILTER (WHERE success), COALESCE(sum(execution_time_us), 0), max(called_at)
		FROM toolhost.tool_calls WHERE server_id=$1
	`, id).Scan(&stats.TotalCalls, &stats.SuccessfulCalls, &micros, &stats.LastCallAt)
	if err != nil {
		return api.ServerStats{}, fmt.Errorf("failed to aggregate calls of server %s: %w", id, err)
	}
	stats.FailedCalls = stats.TotalCalls - stats.SuccessfulCalls
	stats.TotalExecutionTime = time.Duration(micros) * time.Microsecond
	if stats.TotalCalls > 0 {
		stats.AverageExecutionTime = stats.TotalExecutionTime / time.Duration(stats.TotalCalls)
	}
	return stats, nil
}

func encodeLaunch(def api.ServerDefinition) (string, string, error) {
	args := def.Args
	if args == nil {
		args = []string{}
	}
	env := def.Env
	if env == nil {
		env = map[string]string{}
	}
	a, err := json.Marshal(args)
	if err != nil {
		return "", "", fmt.Errorf("failed to encode args: %w", err)
	}
	e, err := json.Marshal(env)
	if err != nil {
		return "", "", fmt.Errorf("failed to encode env: %w", err)
	}
	return string(a), string(e), nil
}

func scanServer(row pgx.Row) (api.ServerDefinition, error) {
	var (
		def       api.ServerDefinition
		args, env []byte
		status    string
	)
	err := row.Scan(&def.ID, &def.Name, &def.Description, &def.Command, &args, &env, &def.Enabled,
		&def.OwnerID, &status, &def.LastHealthCheck, &def.LastUsedAt, &def.TotalCalls,
		&def.CreatedAt, &def.UpdatedAt, &def.DeletedAt)
	if err != nil {
		return api.ServerDefinition{}, err
	}
	def.HealthStatus = api.HealthStatus(status)
	if err := json.Unmarshal(args, &def.Args); err != nil {
		return api.ServerDefinition{}, fmt.Errorf("failed to decode args of server %s: %w", def.ID, err)
	}
	if err := json.Unmarshal(env, &def.Env); err != nil {
		return api.ServerDefinition{}, fmt.Errorf("failed to decode env of server %s: %w", def.ID, err)
	}
	if len(def.Args) == 0 {
		def.Args = nil
	}
	if len(def.Env) == 0 {
		def.Env = nil
	}
	return def, nil
}
