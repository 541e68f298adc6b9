package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)

	assert.Equal(t, time.Second, cfg.PollInterval.Duration)
	assert.Equal(t, 4, cfg.WorkerCount)
	assert.Equal(t, 10*time.Minute, cfg.LockDeadline.Duration)
	assert.Zero(t, cfg.MaxDispatchesPerMinute)
}

func TestLoadOverlaysFileOnDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sked.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
database_path = "/tmp/jobs.db"
poll_interval = "250ms"
worker_count = 8
lock_deadline = "5m"
max_dispatches_per_minute = 60
json_logs = true
`), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/jobs.db", cfg.DatabasePath)
	assert.Equal(t, 250*time.Millisecond, cfg.PollInterval.Duration)
	assert.Equal(t, 8, cfg.WorkerCount)
	assert.Equal(t, 5*time.Minute, cfg.LockDeadline.Duration)
	assert.Equal(t, 60, cfg.MaxDispatchesPerMinute)
	assert.True(t, cfg.JSONLogs)
}

func TestLoadPartialFileKeepsRemainingDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sked.toml")
	require.NoError(t, os.WriteFile(path, []byte(`worker_count = 2`), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 2, cfg.WorkerCount)
	assert.Equal(t, time.Second, cfg.PollInterval.Duration)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sked.toml")
	require.NoError(t, os.WriteFile(path, []byte(`worker_count = -1`), 0644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "worker_count")
}

func TestLoadRejectsMalformedDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sked.toml")
	require.NoError(t, os.WriteFile(path, []byte(`poll_interval = "whenever"`), 0644))

	_, err := Load(path)
	require.Error(t, err)
}
