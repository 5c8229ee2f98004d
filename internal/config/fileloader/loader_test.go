package fileloader

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestLoadOverlaysFileOnDefaults(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
pool:
  capacity: 8
  acquire_timeout: 10s
scheduler:
  task_timeout: 90s
enumerators:
  enabled: [web_scanner]
  options:
    web_scanner:
      user_agent: sitescout
`)

	cfg, err := NewFileLoader(path).Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 8, cfg.Pool.Capacity)
	assert.Equal(t, 10*time.Second, cfg.Pool.AcquireTimeout)
	assert.Equal(t, 90*time.Second, cfg.Scheduler.TaskTimeout)
	assert.Equal(t, []string{"web_scanner"}, cfg.Enumerators.Enabled)
	assert.Equal(t, "sitescout", cfg.Enumerators.Options["web_scanner"]["user_agent"])

	// Keys absent from the file keep their defaults.
	assert.Equal(t, 10*time.Second, cfg.Scheduler.GracePeriod)
	assert.Equal(t, 64, cfg.Progress.BufferSize)
}

func TestLoadFailsOnMissingFile(t *testing.T) {
	t.Parallel()

	_, err := NewFileLoader(filepath.Join(t.TempDir(), "absent.yaml")).Load(context.Background())
	assert.Error(t, err)
}

func TestLoadFailsOnMalformedYAML(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, "pool: [not, a, mapping")
	_, err := NewFileLoader(path).Load(context.Background())
	assert.ErrorContains(t, err, "failed to parse config")
}

func TestLoadFailsValidation(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, "pool:\n  capacity: -1\n")
	_, err := NewFileLoader(path).Load(context.Background())
	assert.ErrorContains(t, err, "invalid config")
}

func TestLoadHonorsContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewFileLoader("ignored.yaml").Load(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
