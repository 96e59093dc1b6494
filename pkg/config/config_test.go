package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, ":8000", cfg.APIAddr)
	assert.Equal(t, "vision.process", cfg.QueueName)
	assert.Equal(t, 0.5, cfg.ConfidenceThreshold)
	assert.Equal(t, 640, cfg.Preprocessing.TargetSize)
	assert.Equal(t, 300*time.Second, cfg.TaskTimeLimit)
	assert.Equal(t, time.Hour, cfg.ResultTTL)
	assert.Equal(t, int64(10<<20), cfg.MaxUploadSize)
	assert.True(t, cfg.EnableQRDetection)
	assert.False(t, cfg.Preprocessing.EnhanceContrast)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("PALLETSCAN_CONFIG", "")
	t.Setenv("REDIS_URL", "redis://cache:6379/2")
	t.Setenv("CONFIDENCE_THRESHOLD", "0.25")
	t.Setenv("SAVE_PROCESSED_IMAGES", "true")
	t.Setenv("TASK_TIME_LIMIT", "120s")
	t.Setenv("TARGET_SIZE", "320")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "redis://cache:6379/2", cfg.RedisURL)
	assert.Equal(t, 0.25, cfg.ConfidenceThreshold)
	assert.True(t, cfg.SaveProcessedImages)
	assert.Equal(t, 120*time.Second, cfg.TaskTimeLimit)
	assert.Equal(t, 320, cfg.Preprocessing.TargetSize)
}

func TestLoadYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "palletscan.yaml")
	data := []byte("queue_name: vision.test\nconfidence_threshold: 0.7\npreprocessing:\n  target_size: 416\n  normalize: true\n")
	require.NoError(t, os.WriteFile(path, data, 0644))

	t.Setenv("PALLETSCAN_CONFIG", path)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "vision.test", cfg.QueueName)
	assert.Equal(t, 0.7, cfg.ConfidenceThreshold)
	assert.Equal(t, 416, cfg.Preprocessing.TargetSize)
}

func TestLoadEnvWinsOverFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "palletscan.yaml")
	require.NoError(t, os.WriteFile(path, []byte("queue_name: from-file\n"), 0644))

	t.Setenv("PALLETSCAN_CONFIG", path)
	t.Setenv("QUEUE_NAME", "from-env")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.QueueName)
}

func TestLoadRejectsBadThreshold(t *testing.T) {
	t.Setenv("PALLETSCAN_CONFIG", "")
	t.Setenv("CONFIDENCE_THRESHOLD", "1.5")

	_, err := Load()
	assert.Error(t, err)
}
