// Package config defines the orchestrator's runtime configuration and the
// loading abstractions over its possible sources.
package config

import (
	"fmt"
	"time"
)

// Config represents the top-level configuration.
type Config struct {
	Pool        PoolConfig        `yaml:"pool" mapstructure:"pool"`
	Scheduler   SchedulerConfig   `yaml:"scheduler" mapstructure:"scheduler"`
	Progress    ProgressConfig    `yaml:"progress" mapstructure:"progress"`
	Kafka       KafkaConfig       `yaml:"kafka" mapstructure:"kafka"`
	Enumerators EnumeratorsConfig `yaml:"enumerators" mapstructure:"enumerators"`
	Telemetry   TelemetryConfig   `yaml:"telemetry" mapstructure:"telemetry"`
}

// PoolConfig controls the browser instance pool.
type PoolConfig struct {
	// Capacity is the maximum number of concurrently live browser instances.
	Capacity int `yaml:"capacity" mapstructure:"capacity"`

	// AcquireTimeout bounds how long a task waits for an instance.
	AcquireTimeout time.Duration `yaml:"acquire_timeout" mapstructure:"acquire_timeout"`

	// LaunchesPerSecond throttles new browser process launches.
	LaunchesPerSecond float64 `yaml:"launches_per_second" mapstructure:"launches_per_second"`

	// ChromiumPath overrides the browser binary location. Empty uses the
	// default lookup.
	ChromiumPath string `yaml:"chromium_path,omitempty" mapstructure:"chromium_path"`

	Headless    bool          `yaml:"headless" mapstructure:"headless"`
	NoSandbox   bool          `yaml:"no_sandbox" mapstructure:"no_sandbox"`
	PageTimeout time.Duration `yaml:"page_timeout" mapstructure:"page_timeout"`
}

// SchedulerConfig controls scan and task execution.
type SchedulerConfig struct {
	// TaskTimeout is the per-task execution budget, measured from the moment
	// the task starts running, not from submission.
	TaskTimeout time.Duration `yaml:"task_timeout" mapstructure:"task_timeout"`

	// ScanDeadline is the default whole-scan budget applied when a request
	// does not carry its own. Zero disables the scan-level deadline.
	ScanDeadline time.Duration `yaml:"scan_deadline,omitempty" mapstructure:"scan_deadline"`

	// GracePeriod bounds how long cancellation waits for in-flight tasks to
	// acknowledge before they are abandoned.
	GracePeriod time.Duration `yaml:"grace_period" mapstructure:"grace_period"`
}

// ProgressConfig controls progress delivery to subscribers.
type ProgressConfig struct {
	// BufferSize is the per-subscriber update buffer. When a slow consumer
	// falls behind, the oldest buffered updates are dropped first.
	BufferSize int `yaml:"buffer_size" mapstructure:"buffer_size"`
}

// KafkaConfig controls the optional Kafka event publisher.
type KafkaConfig struct {
	Enabled  bool     `yaml:"enabled" mapstructure:"enabled"`
	Brokers  []string `yaml:"brokers,omitempty" mapstructure:"brokers"`
	Topic    string   `yaml:"topic,omitempty" mapstructure:"topic"`
	ClientID string   `yaml:"client_id,omitempty" mapstructure:"client_id"`
}

// EnumeratorsConfig selects and configures enumerators.
type EnumeratorsConfig struct {
	// Enabled lists the enumerators run when a request names none.
	Enabled []string `yaml:"enabled,omitempty" mapstructure:"enabled"`

	// Options holds per-enumerator configuration keyed by enumerator name,
	// such as api keys and tuning knobs.
	Options map[string]map[string]string `yaml:"options,omitempty" mapstructure:"options"`
}

// TelemetryConfig controls trace export.
type TelemetryConfig struct {
	Enabled          bool    `yaml:"enabled" mapstructure:"enabled"`
	ExporterEndpoint string  `yaml:"exporter_endpoint,omitempty" mapstructure:"exporter_endpoint"`
	SampleRate       float64 `yaml:"sample_rate,omitempty" mapstructure:"sample_rate"`
}

// Default returns a configuration with workable defaults for a
// single-process deployment.
func Default() *Config {
	return &Config{
		Pool: PoolConfig{
			Capacity:          4,
			AcquireTimeout:    30 * time.Second,
			LaunchesPerSecond: 1,
			Headless:          true,
			NoSandbox:         true,
			PageTimeout:       30 * time.Second,
		},
		Scheduler: SchedulerConfig{
			TaskTimeout: 5 * time.Minute,
			GracePeriod: 10 * time.Second,
		},
		Progress: ProgressConfig{BufferSize: 64},
		Enumerators: EnumeratorsConfig{
			Enabled: []string{"web_scanner", "dns_enumeration"},
		},
		Telemetry: TelemetryConfig{SampleRate: 0.05},
	}
}

// Validate checks the configuration for values the orchestrator cannot run
// with.
func (c *Config) Validate() error {
	if c.Pool.Capacity <= 0 {
		return fmt.Errorf("pool capacity must be positive, got %d", c.Pool.Capacity)
	}
	if c.Pool.AcquireTimeout <= 0 {
		return fmt.Errorf("pool acquire timeout must be positive, got %s", c.Pool.AcquireTimeout)
	}
	if c.Scheduler.TaskTimeout <= 0 {
		return fmt.Errorf("scheduler task timeout must be positive, got %s", c.Scheduler.TaskTimeout)
	}
	if c.Scheduler.GracePeriod < 0 {
		return fmt.Errorf("scheduler grace period cannot be negative, got %s", c.Scheduler.GracePeriod)
	}
	if c.Progress.BufferSize <= 0 {
		return fmt.Errorf("progress buffer size must be positive, got %d", c.Progress.BufferSize)
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka enabled but no brokers configured")
	}
	return nil
}
