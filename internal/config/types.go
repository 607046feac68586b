// SPDX-License-Identifier: MPL-2.0

package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"ledserver/internal/logging"
	"ledserver/internal/protocol"
	"ledserver/internal/server"
	"ledserver/pkg/types"
)

var (
	// ErrInvalidConfig is the sentinel error wrapped by InvalidConfigError.
	ErrInvalidConfig = errors.New("invalid config")
	// ErrInvalidDuration is returned for zero or negative timing values.
	ErrInvalidDuration = errors.New("invalid duration")
)

type (
	// InvalidConfigError is returned when a Config has invalid fields.
	// It wraps ErrInvalidConfig for errors.Is() compatibility and collects
	// field-level validation errors from all sections.
	InvalidConfigError struct {
		FieldErrors []error
	}

	// InvalidDurationError names the key holding a non-positive duration.
	InvalidDurationError struct {
		Key   string
		Value time.Duration
	}

	// Config holds the application configuration.
	Config struct {
		Server      ServerConfig      `json:"server" mapstructure:"server"`
		Protocol    ProtocolConfig    `json:"protocol" mapstructure:"protocol"`
		Persistence PersistenceConfig `json:"persistence" mapstructure:"persistence"`
		Animation   AnimationConfig   `json:"animation" mapstructure:"animation"`
		Strip       StripConfig       `json:"strip" mapstructure:"strip"`
		Metrics     MetricsConfig     `json:"metrics" mapstructure:"metrics"`
		Log         LogConfig         `json:"log" mapstructure:"log"`
	}

	// ServerConfig configures the listening sockets.
	ServerConfig struct {
		Host  string             `json:"host" mapstructure:"host"`
		Ports []types.ListenPort `json:"ports" mapstructure:"ports"`
		// PollInterval bounds how long accept and read block between shutdown checks.
		PollInterval    time.Duration `json:"poll_interval" mapstructure:"poll_interval"`
		WriteTimeout    time.Duration `json:"write_timeout" mapstructure:"write_timeout"`
		ShutdownTimeout time.Duration `json:"shutdown_timeout" mapstructure:"shutdown_timeout"`
	}

	// ProtocolConfig selects the wire framing.
	ProtocolConfig struct {
		// Framing is "length" (default) or "delimited".
		Framing      string `json:"framing" mapstructure:"framing"`
		Delimiter    string `json:"delimiter" mapstructure:"delimiter"`
		MaxFrameSize int    `json:"max_frame_size" mapstructure:"max_frame_size"`
	}

	// PersistenceConfig controls continuous animation snapshots.
	PersistenceConfig struct {
		Enabled bool   `json:"enabled" mapstructure:"enabled"`
		Dir     string `json:"dir" mapstructure:"dir"`
	}

	// AnimationConfig tunes the animation manager.
	AnimationConfig struct {
		// MaxStepsPerSecond caps each continuous animation; 0 removes the cap.
		MaxStepsPerSecond float64 `json:"max_steps_per_second" mapstructure:"max_steps_per_second"`
		Workers           int     `json:"workers" mapstructure:"workers"`
		QueueSize         int     `json:"queue_size" mapstructure:"queue_size"`
	}

	// StripConfig describes the emulated strip.
	StripConfig struct {
		NumLEDs int `json:"num_leds" mapstructure:"num_leds"`
	}

	// MetricsConfig configures the prometheus listener.
	MetricsConfig struct {
		// Address is host:port; empty disables the listener.
		Address string `json:"address" mapstructure:"address"`
	}

	// LogConfig configures the root logger.
	LogConfig struct {
		Level           string `json:"level" mapstructure:"level"`
		ReportTimestamp bool   `json:"report_timestamp" mapstructure:"report_timestamp"`
	}
)

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	s := server.DefaultConfig()
	return &Config{
		Server: ServerConfig{
			Host:            s.Host,
			Ports:           s.Ports,
			PollInterval:    s.PollInterval,
			WriteTimeout:    s.WriteTimeout,
			ShutdownTimeout: s.ShutdownTimeout,
		},
		Protocol: ProtocolConfig{
			Framing:      s.Framing,
			Delimiter:    s.Delimiter,
			MaxFrameSize: s.MaxFrameSize,
		},
		Persistence: PersistenceConfig{
			Enabled: s.PersistenceEnabled,
			Dir:     s.PersistenceDir,
		},
		Animation: AnimationConfig{
			MaxStepsPerSecond: s.MaxStepsPerSecond,
			Workers:           s.Workers,
			QueueSize:         s.QueueSize,
		},
		Strip: StripConfig{NumLEDs: s.NumLEDs},
		Log:   LogConfig{Level: logging.DefaultLevel},
	}
}

// ServerConfig maps the file layout onto server.Config.
func (c *Config) ServerConfig() server.Config {
	return server.Config{
		Host:               c.Server.Host,
		Ports:              append([]types.ListenPort(nil), c.Server.Ports...),
		PollInterval:       c.Server.PollInterval,
		WriteTimeout:       c.Server.WriteTimeout,
		ShutdownTimeout:    c.Server.ShutdownTimeout,
		Framing:            c.Protocol.Framing,
		Delimiter:          c.Protocol.Delimiter,
		MaxFrameSize:       c.Protocol.MaxFrameSize,
		PersistenceEnabled: c.Persistence.Enabled,
		PersistenceDir:     c.Persistence.Dir,
		MaxStepsPerSecond:  c.Animation.MaxStepsPerSecond,
		Workers:            c.Animation.Workers,
		QueueSize:          c.Animation.QueueSize,
		NumLEDs:            c.Strip.NumLEDs,
		MetricsAddress:     c.Metrics.Address,
	}
}

// LoggingOptions maps the log section onto logging.Options.
func (c *Config) LoggingOptions() logging.Options {
	return logging.Options{Level: c.Log.Level, ReportTimestamp: c.Log.ReportTimestamp}
}

// Validate checks constraints that also apply to values arriving through
// the environment, which the CUE schema never sees.
func (c *Config) Validate() error {
	var errs []error
	if err := c.ServerConfig().Validate(); err != nil {
		errs = append(errs, err)
	}
	durations := []struct {
		key string
		v   time.Duration
	}{
		{"server.poll_interval", c.Server.PollInterval},
		{"server.write_timeout", c.Server.WriteTimeout},
		{"server.shutdown_timeout", c.Server.ShutdownTimeout},
	}
	for _, d := range durations {
		if d.v <= 0 {
			errs = append(errs, &InvalidDurationError{Key: d.key, Value: d.v})
		}
	}
	if _, err := protocol.NewFramer(c.Protocol.Framing, c.Protocol.Delimiter, c.Protocol.MaxFrameSize); err != nil {
		errs = append(errs, err)
	}
	if c.Persistence.Enabled && strings.TrimSpace(c.Persistence.Dir) == "" {
		errs = append(errs, errors.New("persistence.dir must be set when persistence is enabled"))
	}
	if c.Animation.MaxStepsPerSecond < 0 {
		errs = append(errs, fmt.Errorf("animation.max_steps_per_second must not be negative, got %v", c.Animation.MaxStepsPerSecond))
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return &InvalidConfigError{FieldErrors: errs}
	}
	return nil
}

// Error implements the error interface for InvalidConfigError.
func (e *InvalidConfigError) Error() string {
	msgs := make([]string, 0, len(e.FieldErrors))
	for _, err := range e.FieldErrors {
		msgs = append(msgs, err.Error())
	}
	return fmt.Sprintf("invalid config: %s", strings.Join(msgs, "; "))
}

// Unwrap returns ErrInvalidConfig and every field error for errors.Is() compatibility.
func (e *InvalidConfigError) Unwrap() []error {
	return append([]error{ErrInvalidConfig}, e.FieldErrors...)
}

// Error implements the error interface for InvalidDurationError.
func (e *InvalidDurationError) Error() string {
	return fmt.Sprintf("%s must be positive, got %s", e.Key, e.Value)
}

// Unwrap returns ErrInvalidDuration for errors.Is() compatibility.
func (e *InvalidDurationError) Unwrap() error { return ErrInvalidDuration }
