// SPDX-License-Identifier: MPL-2.0

package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const (
	// FrequencyNever suppresses the category entirely.
	FrequencyNever MessageFrequency = "NEVER"
	// FrequencyImmediate writes each event as soon as it happens.
	FrequencyImmediate MessageFrequency = "IMMEDIATE"
	// FrequencyInterval batches events and flushes them every
	// ClientParams.BufferedMessageInterval.
	FrequencyInterval MessageFrequency = "INTERVAL"
	// FrequencyRequest never pushes events; the client asks for them with a Command.
	FrequencyRequest MessageFrequency = "REQUEST"

	// DefaultBufferedMessageInterval applies when a client asks for INTERVAL
	// delivery without naming an interval.
	DefaultBufferedMessageInterval = 500 * time.Millisecond
	// MaxBufferedMessageInterval is the longest flush period a client may ask for.
	MaxBufferedMessageInterval = 24 * time.Hour
)

var (
	// ErrInvalidFrequency is the sentinel error wrapped by InvalidFrequencyError.
	ErrInvalidFrequency = errors.New("invalid message frequency")
	// ErrInvalidInterval is returned for a bufferedMessageInterval outside
	// [0, MaxBufferedMessageInterval].
	ErrInvalidInterval = errors.New("invalid buffered message interval")
)

type (
	// MessageFrequency controls how a category of server-originated events is
	// delivered to one client.
	MessageFrequency string

	// InvalidFrequencyError is returned when a MessageFrequency is not one of
	// NEVER, IMMEDIATE, INTERVAL or REQUEST.
	InvalidFrequencyError struct {
		Field string
		Value MessageFrequency
	}

	// ClientParams is the per-connection delivery policy negotiated by the
	// first ClientParams frame a client sends.
	ClientParams struct {
		SendDefinedAnimationInfoOnConnection bool             `json:"sendDefinedAnimationInfoOnConnection"`
		SendRunningAnimationInfoOnConnection bool             `json:"sendRunningAnimationInfoOnConnection"`
		SendAnimationStart                   MessageFrequency `json:"sendAnimationStart"`
		SendAnimationEnd                     MessageFrequency `json:"sendAnimationEnd"`
		SendSectionCreation                  MessageFrequency `json:"sendSectionCreation"`
		// BufferedMessageInterval is in milliseconds on the wire.
		BufferedMessageInterval int64 `json:"bufferedMessageInterval"`
	}
)

// String returns the string representation of the MessageFrequency.
func (f MessageFrequency) String() string { return string(f) }

// Validate returns nil if f is a known frequency.
func (f MessageFrequency) Validate() error {
	switch f {
	case FrequencyNever, FrequencyImmediate, FrequencyInterval, FrequencyRequest:
		return nil
	default:
		return &InvalidFrequencyError{Value: f}
	}
}

// UnmarshalJSON rejects unknown frequencies at decode time.
func (f *MessageFrequency) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	v := MessageFrequency(s)
	if err := v.Validate(); err != nil {
		return err
	}
	*f = v
	return nil
}

// Error implements the error interface for InvalidFrequencyError.
func (e *InvalidFrequencyError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("invalid message frequency %q for %s (valid: NEVER, IMMEDIATE, INTERVAL, REQUEST)", e.Value, e.Field)
	}
	return fmt.Sprintf("invalid message frequency %q (valid: NEVER, IMMEDIATE, INTERVAL, REQUEST)", e.Value)
}

// Unwrap returns ErrInvalidFrequency for errors.Is() compatibility.
func (e *InvalidFrequencyError) Unwrap() error { return ErrInvalidFrequency }

// DefaultClientParams returns the policy fields a client did not mention
// fall back to.
func DefaultClientParams() ClientParams {
	return ClientParams{
		SendDefinedAnimationInfoOnConnection: true,
		SendRunningAnimationInfoOnConnection: true,
		SendAnimationStart:                   FrequencyImmediate,
		SendAnimationEnd:                     FrequencyImmediate,
		SendSectionCreation:                  FrequencyImmediate,
	}
}

// Validate checks every frequency field.
func (p ClientParams) Validate() error {
	fields := []struct {
		name string
		v    MessageFrequency
	}{
		{"sendAnimationStart", p.SendAnimationStart},
		{"sendAnimationEnd", p.SendAnimationEnd},
		{"sendSectionCreation", p.SendSectionCreation},
	}
	for _, f := range fields {
		if err := f.v.Validate(); err != nil {
			return &InvalidFrequencyError{Field: f.name, Value: f.v}
		}
	}
	if p.BufferedMessageInterval < 0 || p.BufferedMessageInterval > MaxBufferedMessageInterval.Milliseconds() {
		return fmt.Errorf("%w: %dms (valid: 0 to %d)", ErrInvalidInterval,
			p.BufferedMessageInterval, MaxBufferedMessageInterval.Milliseconds())
	}
	return nil
}

// Interval returns the flush period for INTERVAL categories, clamped to
// MaxBufferedMessageInterval.
func (p ClientParams) Interval() time.Duration {
	if p.BufferedMessageInterval <= 0 {
		return DefaultBufferedMessageInterval
	}
	if p.BufferedMessageInterval > MaxBufferedMessageInterval.Milliseconds() {
		return MaxBufferedMessageInterval
	}
	return time.Duration(p.BufferedMessageInterval) * time.Millisecond
}

// UsesInterval reports whether any category is delivered in batches.
func (p ClientParams) UsesInterval() bool {
	return p.SendAnimationStart == FrequencyInterval ||
		p.SendAnimationEnd == FrequencyInterval ||
		p.SendSectionCreation == FrequencyInterval
}

// FrequencyFor returns the policy governing kind. The boolean is false for
// kinds that are not subject to a frequency policy; those are always sent
// immediately.
func (p ClientParams) FrequencyFor(kind Kind) (MessageFrequency, bool) {
	switch kind {
	case KindRunningAnimationParams:
		return p.SendAnimationStart, true
	case KindEndAnimation:
		return p.SendAnimationEnd, true
	case KindSection:
		return p.SendSectionCreation, true
	default:
		return "", false
	}
}
