package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/palletscan/palletscan/pkg/log"
	"github.com/palletscan/palletscan/pkg/types"
)

const stateKeyPrefix = "vision:state:"

// ProgressEntry is the in-flight state echo stored per task
type ProgressEntry struct {
	TaskID    string              `json:"task_id"`
	State     types.ProgressState `json:"state"`
	UpdatedAt time.Time           `json:"updated_at"`
}

// Cache is the transient Redis-backed cache used for in-flight
// progress echoes. It is not a query surface; entries exist only
// between worker start and the terminal store write.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
	logger zerolog.Logger
}

// NewCache connects to Redis using a URL of the form
// redis://[:password@]host:port/db
func NewCache(redisURL string, ttl time.Duration) (*Cache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return newCacheWithClient(client, ttl), nil
}

func newCacheWithClient(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{
		client: client,
		ttl:    ttl,
		logger: log.WithComponent("cache"),
	}
}

func stateKey(taskID string) string {
	return stateKeyPrefix + taskID
}

// SetProgress writes the in-flight state for a task with the cache TTL
func (c *Cache) SetProgress(ctx context.Context, taskID string, state types.ProgressState) error {
	entry := ProgressEntry{
		TaskID:    taskID,
		State:     state,
		UpdatedAt: time.Now().UTC(),
	}
	body, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode progress for %s: %w", taskID, err)
	}
	if err := c.client.Set(ctx, stateKey(taskID), body, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set progress for %s: %w", taskID, err)
	}
	return nil
}

// GetProgress returns the in-flight state for a task. The second
// return value is false when no entry exists.
func (c *Cache) GetProgress(ctx context.Context, taskID string) (types.ProgressState, bool, error) {
	body, err := c.client.Get(ctx, stateKey(taskID)).Bytes()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get progress for %s: %w", taskID, err)
	}

	var entry ProgressEntry
	if err := json.Unmarshal(body, &entry); err != nil {
		return "", false, fmt.Errorf("failed to decode progress for %s: %w", taskID, err)
	}
	return entry.State, true, nil
}

// ClearTaskResult removes any entry keyed by the task id. Absence is
// not an error; the return value reports whether anything was removed.
func (c *Cache) ClearTaskResult(ctx context.Context, taskID string) (bool, error) {
	n, err := c.client.Del(ctx, stateKey(taskID)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to clear entry for %s: %w", taskID, err)
	}
	if n > 0 {
		c.logger.Debug().Str("task_id", taskID).Msg("Transient entry cleared")
	}
	return n > 0, nil
}

// HealthCheck pings Redis
func (c *Cache) HealthCheck(ctx context.Context) *types.HealthReport {
	report := &types.HealthReport{Timestamp: time.Now().UTC()}
	if err := c.client.Ping(ctx).Err(); err != nil {
		report.Status = "unhealthy"
		report.Error = err.Error()
		return report
	}
	report.Status = "healthy"
	return report
}

// Close closes the Redis connection
func (c *Cache) Close() error {
	return c.client.Close()
}
