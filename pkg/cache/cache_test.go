package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/palletscan/palletscan/pkg/types"
)

func newTestCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return newCacheWithClient(client, time.Hour), mr
}

func TestProgressRoundTrip(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.SetProgress(ctx, "task-1", types.ProgressProcessing))

	state, ok, err := c.GetProgress(ctx, "task-1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, types.ProgressProcessing, state)
}

func TestGetProgressMissing(t *testing.T) {
	c, _ := newTestCache(t)

	_, ok, err := c.GetProgress(context.Background(), "nope")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestProgressEntryExpires(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.SetProgress(ctx, "task-1", types.ProgressPending))
	mr.FastForward(2 * time.Hour)

	_, ok, err := c.GetProgress(ctx, "task-1")
	require.NoError(t, err)
	assert.False(t, ok, "entry should expire with the cache TTL")
}

func TestClearTaskResult(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.SetProgress(ctx, "task-1", types.ProgressSuccess))

	removed, err := c.ClearTaskResult(ctx, "task-1")
	require.NoError(t, err)
	assert.True(t, removed)

	_, ok, err := c.GetProgress(ctx, "task-1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestClearTaskResultToleratesAbsence(t *testing.T) {
	c, _ := newTestCache(t)

	removed, err := c.ClearTaskResult(context.Background(), "never-existed")
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestHealthCheck(t *testing.T) {
	c, mr := newTestCache(t)

	report := c.HealthCheck(context.Background())
	assert.Equal(t, "healthy", report.Status)

	mr.Close()
	report = c.HealthCheck(context.Background())
	assert.Equal(t, "unhealthy", report.Status)
	assert.NotEmpty(t, report.Error)
}
