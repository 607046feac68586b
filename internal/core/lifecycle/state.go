// SPDX-License-Identifier: MPL-2.0

package lifecycle

import (
	"errors"
	"fmt"
)

const (
	// StateCreated means Start has not been called yet.
	StateCreated State = iota
	// StateStarting means Start is binding resources.
	StateStarting
	// StateRunning means background tasks are live.
	StateRunning
	// StateStopping means shutdown has been requested and tasks are draining.
	StateStopping
	// StateStopped is terminal.
	StateStopped
	// StateFailed is terminal: start failed or a task reported a fatal error.
	StateFailed
)

// ErrInvalidState is returned when a State value is not a defined state.
var ErrInvalidState = errors.New("invalid state")

type (
	// State is a lifecycle state.
	State int32

	// InvalidStateError wraps ErrInvalidState.
	InvalidStateError struct {
		Value State
	}

	// TransitionError is returned when a transition is attempted from a state
	// that does not allow it.
	TransitionError struct {
		Component string
		From      State
		To        State
	}
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Validate returns an error wrapping ErrInvalidState if s is not defined.
func (s State) Validate() error {
	switch s {
	case StateCreated, StateStarting, StateRunning, StateStopping, StateStopped, StateFailed:
		return nil
	default:
		return &InvalidStateError{Value: s}
	}
}

// IsTerminal reports whether s is Stopped or Failed.
func (s State) IsTerminal() bool {
	return s == StateStopped || s == StateFailed
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("invalid state %d", e.Value)
}

func (e *InvalidStateError) Unwrap() error {
	return ErrInvalidState
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: cannot move from %s to %s", e.Component, e.From, e.To)
}

func (e *TransitionError) Unwrap() error {
	return ErrInvalidState
}
