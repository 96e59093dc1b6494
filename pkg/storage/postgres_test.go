package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/palletscan/palletscan/pkg/types"
)

func newMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return newPostgresStoreWithDB(sqlx.NewDb(db, "pgx")), mock
}

func TestSaveResultCommitsBothRows(t *testing.T) {
	store, mock := newMockStore(t)

	payload := &types.ResultPayload{
		Status:          types.TaskStatusCompleted,
		DetectedObjects: []types.DetectedObject{},
		QRCodes:         []types.QRCode{},
	}
	body, err := json.Marshal(payload)
	require.NoError(t, err)

	expires := time.Now().Add(7 * 24 * time.Hour)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO vision_tasks")).
		WithArgs("task-1", types.TaskStatusCompleted, expires).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO vision_results")).
		WithArgs("task-1", types.TaskStatusCompleted, body, expires).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err = store.SaveResult(context.Background(), "task-1", payload, expires)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveResultRollsBackOnResultError(t *testing.T) {
	store, mock := newMockStore(t)

	payload := &types.ResultPayload{Status: types.TaskStatusFailed, Error: "boom"}
	expires := time.Now().Add(time.Hour)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO vision_tasks")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO vision_results")).
		WillReturnError(sql.ErrConnDone)
	mock.ExpectRollback()

	err := store.SaveResult(context.Background(), "task-1", payload, expires)
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetResultRoundTrip(t *testing.T) {
	store, mock := newMockStore(t)

	payload := &types.ResultPayload{
		Status: types.TaskStatusCompleted,
		QRCodes: []types.QRCode{{
			QRID:         "QR_abc",
			Content:      "PALLET-42",
			DecodeSource: types.DecodeSourceCrop,
		}},
	}
	body, _ := json.Marshal(payload)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT result FROM vision_results")).
		WithArgs("task-1").
		WillReturnRows(sqlmock.NewRows([]string{"result"}).AddRow(body))

	got, err := store.GetResult(context.Background(), "task-1")
	require.NoError(t, err)
	assert.Equal(t, types.TaskStatusCompleted, got.Status)
	require.Len(t, got.QRCodes, 1)
	assert.Equal(t, "PALLET-42", got.QRCodes[0].Content)
	assert.Equal(t, types.DecodeSourceCrop, got.QRCodes[0].DecodeSource)
}

func TestGetResultNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT result FROM vision_results")).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := store.GetResult(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetTaskMetadata(t *testing.T) {
	store, mock := newMockStore(t)

	created := time.Now().Add(-time.Minute)
	mock.ExpectQuery("SELECT t.task_id, t.status, t.created_at").
		WithArgs("task-1").
		WillReturnRows(sqlmock.NewRows([]string{"task_id", "status", "created_at", "has_result"}).
			AddRow("task-1", "completed", created, true))

	meta, err := store.GetTaskMetadata(context.Background(), "task-1")
	require.NoError(t, err)
	assert.Equal(t, "task-1", meta.TaskID)
	assert.Equal(t, types.TaskStatusCompleted, meta.Status)
	assert.True(t, meta.HasResult)
}

func TestGetTaskMetadataNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT t.task_id, t.status, t.created_at").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := store.GetTaskMetadata(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListResultsByStatus(t *testing.T) {
	store, mock := newMockStore(t)

	now := time.Now()
	mock.ExpectQuery("SELECT t.task_id, t.status, t.created_at").
		WithArgs(types.TaskStatusFailed, 10).
		WillReturnRows(sqlmock.NewRows([]string{"task_id", "status", "created_at", "has_result"}).
			AddRow("t2", "failed", now, true).
			AddRow("t1", "failed", now.Add(-time.Hour), true))

	out, err := store.ListResultsByStatus(context.Background(), types.TaskStatusFailed, 10)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "t2", out[0].TaskID)
}

func TestDeleteResult(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM vision_tasks")).
		WithArgs("task-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	deleted, err := store.DeleteResult(context.Background(), "task-1")
	require.NoError(t, err)
	assert.True(t, deleted)
}

func TestDeleteResultMissing(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM vision_tasks")).
		WithArgs("missing").
		WillReturnResult(sqlmock.NewResult(0, 0))

	deleted, err := store.DeleteResult(context.Background(), "missing")
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestListExpired(t *testing.T) {
	store, mock := newMockStore(t)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT task_id FROM vision_tasks WHERE expires_at <")).
		WithArgs(now, 100).
		WillReturnRows(sqlmock.NewRows([]string{"task_id"}).AddRow("old-1").AddRow("old-2"))

	ids, err := store.ListExpired(context.Background(), now, 100)
	require.NoError(t, err)
	assert.Equal(t, []string{"old-1", "old-2"}, ids)
}

func TestGetStorageStats(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT status, COUNT(*) FROM vision_tasks")).
		WillReturnRows(sqlmock.NewRows([]string{"status", "count"}).
			AddRow("completed", 7).
			AddRow("failed", 2).
			AddRow("processing", 1))

	stats, err := store.GetStorageStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 10, stats.TotalTasks)
	assert.Equal(t, 7, stats.StatusCounts[types.TaskStatusCompleted])
	assert.Equal(t, 2, stats.StatusCounts[types.TaskStatusFailed])
}

func TestHealthCheck(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectPing()
	report := store.HealthCheck(context.Background())
	assert.Equal(t, "healthy", report.Status)
	assert.True(t, report.DatabaseConnected)
}
