// SPDX-License-Identifier: MPL-2.0

package protocol

import (
	"errors"
	"fmt"
	"time"

	"ledserver/pkg/types"
)

const (
	// DirectionForward renders from the first pixel of a section to the last.
	DirectionForward Direction = "FORWARD"
	// DirectionBackward renders from the last pixel of a section to the first.
	DirectionBackward Direction = "BACKWARD"
)

// ErrInvalidDirection is returned when a Direction value is not recognized.
var ErrInvalidDirection = errors.New("invalid direction")

type (
	// Direction is the order in which an animation walks its section.
	Direction string

	// AnimationToRunParams asks the server to run an animation.
	AnimationToRunParams struct {
		// Animation is the catalog name of the animation.
		Animation string `json:"animation"`
		// Colors are 0xRRGGBB values consumed by the animation.
		Colors []uint32 `json:"colors,omitempty"`
		// ID is optional; continuous animations get a generated id when empty.
		ID types.AnimationID `json:"id,omitempty"`
		// Section names the strip section to render on; empty means the whole strip.
		Section string `json:"section,omitempty"`
		// Continuous animations repeat until ended.
		Continuous bool `json:"continuous"`
		// RunCount is the number of full runs for a non-continuous animation.
		// Zero means once.
		RunCount int `json:"runCount,omitempty"`
		// Delay is the pause between render steps in milliseconds.
		Delay int `json:"delay,omitempty"`
		// Direction defaults to FORWARD.
		Direction Direction `json:"direction,omitempty"`
	}

	// RunningAnimationParams describes an animation as the server executes it.
	RunningAnimationParams struct {
		ID         types.AnimationID    `json:"id"`
		Animation  string               `json:"animation"`
		Colors     []uint32             `json:"colors,omitempty"`
		Section    string               `json:"section"`
		Continuous bool                 `json:"continuous"`
		RunCount   int                  `json:"runCount"`
		Delay      int                  `json:"delay"`
		Direction  Direction            `json:"direction"`
		StartedAt  time.Time            `json:"startedAt"`
		Source     AnimationToRunParams `json:"sourceParams"`
	}

	// EndAnimation asks for (client → server) or announces (server → client)
	// the end of a continuous animation.
	EndAnimation struct {
		ID types.AnimationID `json:"id"`
	}

	// Section is a named contiguous range of pixels on the strip.
	Section struct {
		Name       string `json:"name"`
		StartPixel int    `json:"startPixel"`
		EndPixel   int    `json:"endPixel"`
		Parent     string `json:"parentSectionName,omitempty"`
	}

	// StripInfo describes the physical strip.
	StripInfo struct {
		NumLEDs     int `json:"numLEDs"`
		Pin         int `json:"pin,omitempty"`
		RenderDelay int `json:"renderDelay"`
	}

	// Command is a textual instruction interpreted by the server.
	Command struct {
		Command string `json:"command"`
	}

	// Message is free-form text, mostly used for replies and errors.
	Message struct {
		Message string `json:"message"`
	}

	// CurrentStripColor is a snapshot of every pixel's color.
	CurrentStripColor struct {
		Color []uint32 `json:"color"`
	}

	// AnimationInfo is one entry of the server's animation catalog.
	AnimationInfo struct {
		Name          string `json:"name"`
		Abbr          string `json:"abbr,omitempty"`
		Description   string `json:"description,omitempty"`
		MinimumColors int    `json:"minimumColors"`
		// OneShot animations run exactly once and are never tracked as running.
		OneShot bool `json:"oneShot"`
	}
)

func (AnimationToRunParams) Kind() Kind   { return KindAnimationToRunParams }
func (RunningAnimationParams) Kind() Kind { return KindRunningAnimationParams }
func (EndAnimation) Kind() Kind           { return KindEndAnimation }
func (Section) Kind() Kind                { return KindSection }
func (StripInfo) Kind() Kind              { return KindStripInfo }
func (ClientParams) Kind() Kind           { return KindClientParams }
func (Command) Kind() Kind                { return KindCommand }
func (Message) Kind() Kind                { return KindMessage }
func (CurrentStripColor) Kind() Kind      { return KindCurrentStripColor }
func (AnimationInfo) Kind() Kind          { return KindAnimationInfo }

func (AnimationToRunParams) sendable()   {}
func (RunningAnimationParams) sendable() {}
func (EndAnimation) sendable()           {}
func (Section) sendable()                {}
func (StripInfo) sendable()              {}
func (ClientParams) sendable()           {}
func (Command) sendable()                {}
func (Message) sendable()                {}
func (CurrentStripColor) sendable()      {}
func (AnimationInfo) sendable()          {}

// Validate returns nil for FORWARD, BACKWARD and the empty default.
func (d Direction) Validate() error {
	switch d {
	case "", DirectionForward, DirectionBackward:
		return nil
	default:
		return fmt.Errorf("%w %q (valid: FORWARD, BACKWARD)", ErrInvalidDirection, string(d))
	}
}

// Len returns the number of pixels covered by the section.
func (s Section) Len() int {
	if s.EndPixel < s.StartPixel {
		return 0
	}
	return s.EndPixel - s.StartPixel + 1
}

// Errorf builds a Message reply.
func Errorf(format string, args ...any) Message {
	return Message{Message: fmt.Sprintf(format, args...)}
}
