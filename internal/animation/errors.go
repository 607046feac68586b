// SPDX-License-Identifier: MPL-2.0

package animation

import (
	"errors"
	"fmt"

	"ledserver/pkg/types"
)

var (
	// ErrUnknownAnimation is returned when params name an animation the engine does not offer.
	ErrUnknownAnimation = errors.New("unknown animation")
	// ErrConflict is returned when a continuous animation is started under an id that is already running.
	ErrConflict = errors.New("animation already running")
	// ErrNotRunning is returned by End for an id with no live animation. Callers treat it as non-fatal.
	ErrNotRunning = errors.New("animation not running")
	// ErrShutdown is returned by Start once Shutdown has begun.
	ErrShutdown = errors.New("animation manager shut down")
	// ErrRenderPanic wraps a panic raised by the engine during a render step.
	ErrRenderPanic = errors.New("render step panicked")
)

type (
	// UnknownAnimationError wraps ErrUnknownAnimation.
	UnknownAnimationError struct {
		Name string
	}

	// ConflictError wraps ErrConflict.
	ConflictError struct {
		ID types.AnimationID
	}

	// NotRunningError wraps ErrNotRunning.
	NotRunningError struct {
		ID types.AnimationID
	}
)

func (e *UnknownAnimationError) Error() string {
	return fmt.Sprintf("unknown animation %q", e.Name)
}

func (e *UnknownAnimationError) Unwrap() error { return ErrUnknownAnimation }

func (e *ConflictError) Error() string {
	return fmt.Sprintf("animation %s is already running", e.ID)
}

func (e *ConflictError) Unwrap() error { return ErrConflict }

func (e *NotRunningError) Error() string {
	return fmt.Sprintf("animation %s is not running", e.ID)
}

func (e *NotRunningError) Unwrap() error { return ErrNotRunning }
