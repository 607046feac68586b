// SPDX-License-Identifier: MPL-2.0

// Package logging builds the charmbracelet/log loggers used across ledserver.
package logging

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

// DefaultLevel is used when no level is configured.
const DefaultLevel = "info"

// ErrInvalidLevel is returned for a level name charmbracelet/log does not know.
var ErrInvalidLevel = errors.New("invalid log level")

// Options controls the root logger.
type Options struct {
	// Level is one of debug, info, warn, error, fatal. Empty means info.
	Level string
	// ReportTimestamp prefixes each line with the time.
	ReportTimestamp bool
	// Writer defaults to os.Stderr.
	Writer io.Writer
}

// New creates the root logger.
func New(opts Options) (*log.Logger, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, err
	}
	w := opts.Writer
	if w == nil {
		w = os.Stderr
	}
	return log.NewWithOptions(w, log.Options{
		Prefix:          "ledserver",
		Level:           level,
		ReportTimestamp: opts.ReportTimestamp,
		TimeFormat:      time.TimeOnly,
	}), nil
}

// ParseLevel maps a level name to a log.Level.
func ParseLevel(name string) (log.Level, error) {
	name = strings.TrimSpace(strings.ToLower(name))
	if name == "" {
		name = DefaultLevel
	}
	level, err := log.ParseLevel(name)
	if err != nil {
		return 0, fmt.Errorf("%w %q (valid: debug, info, warn, error, fatal)", ErrInvalidLevel, name)
	}
	return level, nil
}

// Discard returns a logger that drops everything. Components fall back to it
// when no logger is supplied.
func Discard() *log.Logger {
	return log.New(io.Discard)
}

// Component derives a child logger whose prefix names a subsystem, e.g.
// "ledserver/conn:5001".
func Component(parent *log.Logger, name string) *log.Logger {
	if parent == nil {
		return Discard()
	}
	return parent.WithPrefix(parent.GetPrefix() + "/" + name)
}
