package storage

import (
	"context"
	"errors"
	"time"

	"github.com/palletscan/palletscan/pkg/types"
)

// ErrNotFound is returned when no row exists for the requested task id
var ErrNotFound = errors.New("task not found")

// Store defines the interface for durable task and result storage
type Store interface {
	// UpsertTask writes or refreshes the task row. The worker calls
	// this at dequeue with status=processing; the row is the first
	// point at which polling clients see the task.
	UpsertTask(ctx context.Context, taskID string, status types.TaskStatus, expiresAt time.Time) error

	// SaveResult upserts the task row (status taken from the payload)
	// and the result row in a single transaction. Idempotent on task id.
	SaveResult(ctx context.Context, taskID string, payload *types.ResultPayload, expiresAt time.Time) error

	// GetResult returns the stored result payload verbatim
	GetResult(ctx context.Context, taskID string) (*types.ResultPayload, error)

	// GetTaskMetadata returns the task row projection, with HasResult
	// computed against the result table
	GetTaskMetadata(ctx context.Context, taskID string) (*types.TaskMetadata, error)

	// Listing queries, newest created_at first
	ListAllResults(ctx context.Context, limit int) ([]*types.TaskMetadata, error)
	ListResultsByStatus(ctx context.Context, status types.TaskStatus, limit int) ([]*types.TaskMetadata, error)
	ListResultsByPeriod(ctx context.Context, start, end time.Time, limit int) ([]*types.TaskMetadata, error)

	// CountTasks returns the total number of task rows, optionally
	// filtered by status ("" means all)
	CountTasks(ctx context.Context, status types.TaskStatus) (int, error)

	// DeleteResult removes the result row and the task row atomically.
	// Returns false when no row existed.
	DeleteResult(ctx context.Context, taskID string) (bool, error)

	// ListExpired returns task ids whose expires_at precedes now
	ListExpired(ctx context.Context, now time.Time, limit int) ([]string, error)

	// GetStorageStats aggregates task counts by status
	GetStorageStats(ctx context.Context) (*types.StorageStats, error)

	// HealthCheck pings the backing database
	HealthCheck(ctx context.Context) *types.HealthReport

	// Utility
	Close() error
}
