// SPDX-License-Identifier: MPL-2.0

package server

import (
	"errors"
	"fmt"
	"time"

	"ledserver/internal/animation"
	"ledserver/internal/connection"
	"ledserver/internal/persist"
	"ledserver/internal/protocol"
	"ledserver/internal/renderer"
	"ledserver/internal/worker"
	"ledserver/pkg/types"
)

// DefaultShutdownTimeout bounds Stop when the caller's context has no deadline.
const DefaultShutdownTimeout = 10 * time.Second

// ErrNoPorts is returned by New when no port is configured.
var ErrNoPorts = errors.New("no ports configured")

// Config is everything the server needs at runtime.
type Config struct {
	Host            string
	Ports           []types.ListenPort
	PollInterval    time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration

	Framing      string
	Delimiter    string
	MaxFrameSize int

	PersistenceEnabled bool
	PersistenceDir     string

	MaxStepsPerSecond float64
	Workers           int
	QueueSize         int

	NumLEDs int

	// MetricsAddress enables the prometheus listener when non-empty.
	MetricsAddress string
}

// DefaultConfig returns a Config listening on port 5001.
func DefaultConfig() Config {
	return Config{
		Host:               "0.0.0.0",
		Ports:              []types.ListenPort{5001},
		PollInterval:       connection.DefaultPollInterval,
		WriteTimeout:       connection.DefaultWriteTimeout,
		ShutdownTimeout:    DefaultShutdownTimeout,
		Framing:            protocol.FramingLength,
		Delimiter:          protocol.DefaultDelimiter,
		MaxFrameSize:       protocol.DefaultMaxFrameSize,
		PersistenceEnabled: true,
		PersistenceDir:     persist.DefaultDir,
		MaxStepsPerSecond:  animation.DefaultMaxStepsPerSecond,
		Workers:            worker.DefaultWorkers,
		QueueSize:          worker.DefaultQueueSize,
		NumLEDs:            renderer.DefaultNumLEDs,
	}
}

// Validate checks the fields New cannot default.
func (c Config) Validate() error {
	if len(c.Ports) == 0 {
		return ErrNoPorts
	}
	seen := make(map[types.ListenPort]bool, len(c.Ports))
	for _, p := range c.Ports {
		if err := p.Validate(); err != nil {
			return err
		}
		if seen[p] {
			return fmt.Errorf("port %s listed twice", p)
		}
		seen[p] = true
	}
	return nil
}

func (c Config) connectionConfig(port types.ListenPort) connection.Config {
	return connection.Config{
		Host:         c.Host,
		Port:         port,
		PollInterval: c.PollInterval,
		WriteTimeout: c.WriteTimeout,
		Framing:      c.Framing,
		Delimiter:    c.Delimiter,
		MaxFrameSize: c.MaxFrameSize,
	}
}
