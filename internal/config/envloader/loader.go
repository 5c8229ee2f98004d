// Package envloader loads orchestrator configuration from environment
// variables, layered on top of an optional config file.
package envloader

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/sitescout/sitescout/internal/config"
)

// EnvLoader loads configuration through viper, merging an optional YAML file
// with SITESCOUT_-prefixed environment variables. Environment values win, so
// deployments can override individual settings without rewriting the file.
type EnvLoader struct {
	// path is an optional config file merged beneath the environment. Empty
	// means environment and defaults only.
	path string
}

// NewEnvLoader creates a loader that reads SITESCOUT_-prefixed environment
// variables on top of the file at path. Pass an empty path to skip the file.
func NewEnvLoader(path string) *EnvLoader {
	return &EnvLoader{path: path}
}

// Load builds the configuration from defaults, the optional file, and the
// environment, in ascending precedence. Nested keys map to underscored
// variables, e.g. pool.acquire_timeout becomes SITESCOUT_POOL_ACQUIRE_TIMEOUT.
func (l *EnvLoader) Load(ctx context.Context) (*config.Config, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetEnvPrefix("SITESCOUT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := config.Default()
	v.SetDefault("pool.capacity", defaults.Pool.Capacity)
	v.SetDefault("pool.acquire_timeout", defaults.Pool.AcquireTimeout)
	v.SetDefault("pool.launches_per_second", defaults.Pool.LaunchesPerSecond)
	v.SetDefault("pool.headless", defaults.Pool.Headless)
	v.SetDefault("pool.no_sandbox", defaults.Pool.NoSandbox)
	v.SetDefault("pool.page_timeout", defaults.Pool.PageTimeout)
	v.SetDefault("scheduler.task_timeout", defaults.Scheduler.TaskTimeout)
	v.SetDefault("scheduler.scan_deadline", defaults.Scheduler.ScanDeadline)
	v.SetDefault("scheduler.grace_period", defaults.Scheduler.GracePeriod)
	v.SetDefault("progress.buffer_size", defaults.Progress.BufferSize)
	v.SetDefault("kafka.enabled", defaults.Kafka.Enabled)
	v.SetDefault("enumerators.enabled", defaults.Enumerators.Enabled)
	v.SetDefault("telemetry.enabled", defaults.Telemetry.Enabled)
	v.SetDefault("telemetry.sample_rate", defaults.Telemetry.SampleRate)

	if l.path != "" {
		v.SetConfigFile(l.path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg config.Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}
