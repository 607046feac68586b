// SPDX-License-Identifier: MPL-2.0

package config

import (
	"testing"
	"time"

	"ledserver/internal/logging"
	"ledserver/internal/server"
	"ledserver/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*Config)
		target error
	}{
		{"no ports", func(c *Config) { c.Server.Ports = nil }, server.ErrNoPorts},
		{"negative port", func(c *Config) { c.Server.Ports = []types.ListenPort{-1} }, types.ErrInvalidListenPort},
		{"zero poll interval", func(c *Config) { c.Server.PollInterval = 0 }, ErrInvalidDuration},
		{"negative shutdown timeout", func(c *Config) { c.Server.ShutdownTimeout = -time.Second }, ErrInvalidDuration},
		{"bad level", func(c *Config) { c.Log.Level = "chatty" }, logging.ErrInvalidLevel},
		{"persistence without dir", func(c *Config) { c.Persistence.Dir = " " }, ErrInvalidConfig},
		{"negative rate", func(c *Config) { c.Animation.MaxStepsPerSecond = -1 }, ErrInvalidConfig},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidConfig)
			assert.ErrorIs(t, err, tt.target)
		})
	}
}

func TestConfig_Validate_CollectsAllErrors(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.Server.Ports = nil
	cfg.Log.Level = "chatty"

	var ice *InvalidConfigError
	require.ErrorAs(t, cfg.Validate(), &ice)
	assert.Len(t, ice.FieldErrors, 2)
}

func TestConfig_Validate_PersistenceDisabledIgnoresDir(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.Persistence.Enabled = false
	cfg.Persistence.Dir = ""
	assert.NoError(t, cfg.Validate())
}

func TestConfig_ServerConfig(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.Server.Ports = []types.ListenPort{5001, 5002}
	cfg.Metrics.Address = ":9100"
	cfg.Strip.NumLEDs = 60

	sc := cfg.ServerConfig()
	assert.Equal(t, cfg.Server.Ports, sc.Ports)
	assert.Equal(t, ":9100", sc.MetricsAddress)
	assert.Equal(t, 60, sc.NumLEDs)
	assert.Equal(t, cfg.Persistence.Dir, sc.PersistenceDir)

	sc.Ports[0] = 1
	assert.Equal(t, types.ListenPort(5001), cfg.Server.Ports[0], "ServerConfig must copy the port slice")
}

func TestConfig_LoggingOptions(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.Log = LogConfig{Level: "debug", ReportTimestamp: true}
	opts := cfg.LoggingOptions()
	assert.Equal(t, "debug", opts.Level)
	assert.True(t, opts.ReportTimestamp)
}
