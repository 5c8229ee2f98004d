package envloader

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadUsesDefaultsWithoutOverrides(t *testing.T) {
	cfg, err := NewEnvLoader("").Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 4, cfg.Pool.Capacity)
	assert.Equal(t, 5*time.Minute, cfg.Scheduler.TaskTimeout)
	assert.Equal(t, 64, cfg.Progress.BufferSize)
}

func TestLoadEnvironmentOverridesDefaults(t *testing.T) {
	t.Setenv("SITESCOUT_POOL_CAPACITY", "12")
	t.Setenv("SITESCOUT_SCHEDULER_TASK_TIMEOUT", "45s")
	t.Setenv("SITESCOUT_PROGRESS_BUFFER_SIZE", "16")

	cfg, err := NewEnvLoader("").Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 12, cfg.Pool.Capacity)
	assert.Equal(t, 45*time.Second, cfg.Scheduler.TaskTimeout)
	assert.Equal(t, 16, cfg.Progress.BufferSize)

	// Untouched keys keep their defaults.
	assert.Equal(t, 30*time.Second, cfg.Pool.AcquireTimeout)
}

func TestLoadEnvironmentWinsOverFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("pool:\n  capacity: 2\n"), 0o600))

	t.Setenv("SITESCOUT_POOL_CAPACITY", "9")

	cfg, err := NewEnvLoader(path).Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 9, cfg.Pool.Capacity)
}

func TestLoadFailsValidation(t *testing.T) {
	t.Setenv("SITESCOUT_POOL_CAPACITY", "0")

	_, err := NewEnvLoader("").Load(context.Background())
	assert.ErrorContains(t, err, "invalid config")
}

func TestLoadFailsOnMissingFile(t *testing.T) {
	_, err := NewEnvLoader(filepath.Join(t.TempDir(), "absent.yaml")).Load(context.Background())
	assert.Error(t, err)
}
