// SPDX-License-Identifier: MPL-2.0

package connection

import (
	"time"

	"ledserver/internal/protocol"
	"ledserver/pkg/types"
)

const (
	// DefaultPollInterval bounds how long accept and read block before the
	// loops check for shutdown.
	DefaultPollInterval = 100 * time.Millisecond
	// DefaultWriteTimeout bounds a single socket write.
	DefaultWriteTimeout = 5 * time.Second
	// DefaultQueueSize is the capacity of the outbound queue feeding interval delivery.
	DefaultQueueSize = 256

	readBufferSize = 4096
)

// Config describes one listening port.
type Config struct {
	Host         string
	Port         types.ListenPort
	PollInterval time.Duration
	WriteTimeout time.Duration
	// Framing is protocol.FramingLength or protocol.FramingDelimited.
	Framing      string
	Delimiter    string
	MaxFrameSize int
	QueueSize    int
}

// DefaultConfig returns a Config for port with every other field defaulted.
func DefaultConfig(port types.ListenPort) Config {
	return Config{
		Host:         "0.0.0.0",
		Port:         port,
		PollInterval: DefaultPollInterval,
		WriteTimeout: DefaultWriteTimeout,
		Framing:      protocol.FramingLength,
		Delimiter:    protocol.DefaultDelimiter,
		MaxFrameSize: protocol.DefaultMaxFrameSize,
		QueueSize:    DefaultQueueSize,
	}
}

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = DefaultWriteTimeout
	}
	if c.Framing == "" {
		c.Framing = protocol.FramingLength
	}
	if c.Delimiter == "" {
		c.Delimiter = protocol.DefaultDelimiter
	}
	if c.MaxFrameSize <= 0 {
		c.MaxFrameSize = protocol.DefaultMaxFrameSize
	}
	if c.QueueSize <= 0 {
		c.QueueSize = DefaultQueueSize
	}
	return c
}
