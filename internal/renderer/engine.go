// SPDX-License-Identifier: MPL-2.0

package renderer

import (
	"context"
	"errors"

	"ledserver/internal/protocol"
)

// WholeStrip is the name of the implicit section covering every pixel.
const WholeStrip = "strip"

var (
	// ErrUnknownSection is returned when params name a section that does not exist.
	ErrUnknownSection = errors.New("unknown section")
	// ErrInvalidSection is returned when a section's pixel range is unusable.
	ErrInvalidSection = errors.New("invalid section")
	// ErrNotEnoughColors is returned when an animation gets fewer colors than it needs.
	ErrNotEnoughColors = errors.New("not enough colors")
	// ErrNotStarted is returned when rendering is attempted before Start.
	ErrNotStarted = errors.New("renderer not started")
)

// Engine is everything the server needs from a rendering engine.
// Implementations must be safe for concurrent use: several animations render
// on different goroutines at once.
type Engine interface {
	// Start powers up the output. Stop blanks it and releases the hardware.
	Start() error
	Stop() error

	// SupportedAnimations returns the animation catalog.
	SupportedAnimations() []protocol.AnimationInfo
	// Lookup returns the catalog entry for name.
	Lookup(name string) (protocol.AnimationInfo, bool)

	// Step renders one step of an animation. Step numbers start at 0 and
	// grow for as long as the animation runs.
	Step(ctx context.Context, params protocol.RunningAnimationParams, step int) error
	// Run renders one complete pass of an animation.
	Run(ctx context.Context, params protocol.RunningAnimationParams) error

	Sections() []protocol.Section
	Section(name string) (protocol.Section, bool)
	CreateSection(s protocol.Section) (protocol.Section, error)

	StripInfo() protocol.StripInfo
	CurrentColors() []uint32
	Clear()
}
