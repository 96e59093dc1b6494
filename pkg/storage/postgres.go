package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"

	"github.com/palletscan/palletscan/pkg/log"
	"github.com/palletscan/palletscan/pkg/metrics"
	"github.com/palletscan/palletscan/pkg/types"
)

const schema = `
CREATE TABLE IF NOT EXISTS vision_tasks (
	id         BIGSERIAL PRIMARY KEY,
	task_id    TEXT NOT NULL UNIQUE,
	status     TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	expires_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS vision_results (
	id         BIGSERIAL PRIMARY KEY,
	task_id    TEXT NOT NULL UNIQUE REFERENCES vision_tasks(task_id) ON DELETE CASCADE,
	status     TEXT NOT NULL,
	result     JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	expires_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_vision_tasks_status     ON vision_tasks (status);
CREATE INDEX IF NOT EXISTS idx_vision_tasks_created_at ON vision_tasks (created_at DESC);
CREATE INDEX IF NOT EXISTS idx_vision_tasks_expires_at ON vision_tasks (expires_at);
`

// PostgresStore implements Store on top of PostgreSQL
type PostgresStore struct {
	db     *sqlx.DB
	logger zerolog.Logger
}

// NewPostgresStore opens the database and ensures the schema exists
func NewPostgresStore(databaseURL string) (*PostgresStore, error) {
	db, err := sqlx.Connect("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ensure schema: %w", err)
	}

	logger := log.WithComponent("storage")
	logger.Info().Msg("Postgres store initialized")

	return &PostgresStore{db: db, logger: logger}, nil
}

// newPostgresStoreWithDB wires an existing connection, used by tests
func newPostgresStoreWithDB(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db, logger: log.WithComponent("storage")}
}

// UpsertTask writes or refreshes a task row
func (s *PostgresStore) UpsertTask(ctx context.Context, taskID string, status types.TaskStatus, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO vision_tasks (task_id, status, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (task_id) DO UPDATE
		SET status = EXCLUDED.status, expires_at = EXCLUDED.expires_at`,
		taskID, status, expiresAt)
	if err != nil {
		return fmt.Errorf("failed to upsert task %s: %w", taskID, err)
	}
	return nil
}

// SaveResult upserts the task row and the result row in one transaction
func (s *PostgresStore) SaveResult(ctx context.Context, taskID string, payload *types.ResultPayload, expiresAt time.Time) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode result for task %s: %w", taskID, err)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO vision_tasks (task_id, status, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (task_id) DO UPDATE
		SET status = EXCLUDED.status, expires_at = EXCLUDED.expires_at`,
		taskID, payload.Status, expiresAt); err != nil {
		metrics.StoreWritesTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("failed to upsert task %s: %w", taskID, err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO vision_results (task_id, status, result, expires_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (task_id) DO UPDATE
		SET status = EXCLUDED.status, result = EXCLUDED.result, expires_at = EXCLUDED.expires_at`,
		taskID, payload.Status, body, expiresAt); err != nil {
		metrics.StoreWritesTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("failed to upsert result %s: %w", taskID, err)
	}

	if err := tx.Commit(); err != nil {
		metrics.StoreWritesTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("failed to commit result %s: %w", taskID, err)
	}

	metrics.StoreWritesTotal.WithLabelValues("ok").Inc()
	s.logger.Debug().Str("task_id", taskID).Str("status", string(payload.Status)).Msg("Result saved")
	return nil
}

// GetResult returns the stored payload for a task
func (s *PostgresStore) GetResult(ctx context.Context, taskID string) (*types.ResultPayload, error) {
	var body []byte
	err := s.db.GetContext(ctx, &body,
		`SELECT result FROM vision_results WHERE task_id = $1`, taskID)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get result %s: %w", taskID, err)
	}

	var payload types.ResultPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("failed to decode result %s: %w", taskID, err)
	}
	return &payload, nil
}

// GetTaskMetadata returns the task projection used by polling and listing
func (s *PostgresStore) GetTaskMetadata(ctx context.Context, taskID string) (*types.TaskMetadata, error) {
	var meta types.TaskMetadata
	err := s.db.GetContext(ctx, &meta, `
		SELECT t.task_id, t.status, t.created_at,
		       EXISTS (SELECT 1 FROM vision_results r WHERE r.task_id = t.task_id) AS has_result
		FROM vision_tasks t
		WHERE t.task_id = $1`, taskID)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task %s: %w", taskID, err)
	}
	return &meta, nil
}

const listColumns = `
	SELECT t.task_id, t.status, t.created_at,
	       EXISTS (SELECT 1 FROM vision_results r WHERE r.task_id = t.task_id) AS has_result
	FROM vision_tasks t`

// ListAllResults returns task metadata newest first
func (s *PostgresStore) ListAllResults(ctx context.Context, limit int) ([]*types.TaskMetadata, error) {
	out := []*types.TaskMetadata{}
	err := s.db.SelectContext(ctx, &out,
		listColumns+` ORDER BY t.created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	return out, nil
}

// ListResultsByStatus returns task metadata for one status, newest first
func (s *PostgresStore) ListResultsByStatus(ctx context.Context, status types.TaskStatus, limit int) ([]*types.TaskMetadata, error) {
	out := []*types.TaskMetadata{}
	err := s.db.SelectContext(ctx, &out,
		listColumns+` WHERE t.status = $1 ORDER BY t.created_at DESC LIMIT $2`, status, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks by status %s: %w", status, err)
	}
	return out, nil
}

// ListResultsByPeriod returns task metadata created within [start, end]
func (s *PostgresStore) ListResultsByPeriod(ctx context.Context, start, end time.Time, limit int) ([]*types.TaskMetadata, error) {
	out := []*types.TaskMetadata{}
	err := s.db.SelectContext(ctx, &out,
		listColumns+` WHERE t.created_at >= $1 AND t.created_at <= $2 ORDER BY t.created_at DESC LIMIT $3`,
		start, end, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks by period: %w", err)
	}
	return out, nil
}

// CountTasks returns the task row count, optionally filtered by status
func (s *PostgresStore) CountTasks(ctx context.Context, status types.TaskStatus) (int, error) {
	var count int
	var err error
	if status == "" {
		err = s.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM vision_tasks`)
	} else {
		err = s.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM vision_tasks WHERE status = $1`, status)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to count tasks: %w", err)
	}
	return count, nil
}

// DeleteResult removes the result row and the task row atomically
func (s *PostgresStore) DeleteResult(ctx context.Context, taskID string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM vision_tasks WHERE task_id = $1`, taskID)
	if err != nil {
		return false, fmt.Errorf("failed to delete task %s: %w", taskID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read delete outcome for %s: %w", taskID, err)
	}
	return n > 0, nil
}

// ListExpired returns ids of tasks whose retention window has passed
func (s *PostgresStore) ListExpired(ctx context.Context, now time.Time, limit int) ([]string, error) {
	ids := []string{}
	err := s.db.SelectContext(ctx, &ids,
		`SELECT task_id FROM vision_tasks WHERE expires_at < $1 ORDER BY expires_at LIMIT $2`,
		now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list expired tasks: %w", err)
	}
	return ids, nil
}

// GetStorageStats aggregates task counts by status
func (s *PostgresStore) GetStorageStats(ctx context.Context) (*types.StorageStats, error) {
	rows, err := s.db.QueryxContext(ctx,
		`SELECT status, COUNT(*) FROM vision_tasks GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate stats: %w", err)
	}
	defer rows.Close()

	stats := &types.StorageStats{
		StatusCounts: make(map[types.TaskStatus]int),
		Timestamp:    time.Now().UTC(),
	}
	for rows.Next() {
		var status types.TaskStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan stats row: %w", err)
		}
		stats.StatusCounts[status] = count
		stats.TotalTasks += count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read stats rows: %w", err)
	}
	return stats, nil
}

// HealthCheck pings the database
func (s *PostgresStore) HealthCheck(ctx context.Context) *types.HealthReport {
	report := &types.HealthReport{Timestamp: time.Now().UTC()}
	if err := s.db.PingContext(ctx); err != nil {
		report.Status = "unhealthy"
		report.Error = err.Error()
		return report
	}
	report.Status = "healthy"
	report.DatabaseConnected = true
	return report
}

// Close closes the database connection
func (s *PostgresStore) Close() error {
	s.logger.Info().Msg("Closing Postgres store")
	return s.db.Close()
}
