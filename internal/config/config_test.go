package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	t.Parallel()
	require.NoError(t, Default().Validate())
}

func TestValidateRejectsBadValues(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "zero pool capacity",
			mutate:  func(c *Config) { c.Pool.Capacity = 0 },
			wantErr: "pool capacity",
		},
		{
			name:    "negative pool capacity",
			mutate:  func(c *Config) { c.Pool.Capacity = -2 },
			wantErr: "pool capacity",
		},
		{
			name:    "zero acquire timeout",
			mutate:  func(c *Config) { c.Pool.AcquireTimeout = 0 },
			wantErr: "acquire timeout",
		},
		{
			name:    "zero task timeout",
			mutate:  func(c *Config) { c.Scheduler.TaskTimeout = 0 },
			wantErr: "task timeout",
		},
		{
			name:    "negative grace period",
			mutate:  func(c *Config) { c.Scheduler.GracePeriod = -time.Second },
			wantErr: "grace period",
		},
		{
			name:    "zero progress buffer",
			mutate:  func(c *Config) { c.Progress.BufferSize = 0 },
			wantErr: "buffer size",
		},
		{
			name: "kafka enabled without brokers",
			mutate: func(c *Config) {
				c.Kafka.Enabled = true
				c.Kafka.Brokers = nil
			},
			wantErr: "no brokers",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
