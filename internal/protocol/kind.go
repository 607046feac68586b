// SPDX-License-Identifier: MPL-2.0

package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

const (
	KindAnimationToRunParams   Kind = "AnimationToRunParams"
	KindEndAnimation           Kind = "EndAnimation"
	KindRunningAnimationParams Kind = "RunningAnimationParams"
	KindSection                Kind = "Section"
	KindStripInfo              Kind = "StripInfo"
	KindClientParams           Kind = "ClientParams"
	KindCommand                Kind = "Command"
	KindMessage                Kind = "Message"
	KindCurrentStripColor      Kind = "CurrentStripColor"
	KindAnimationInfo          Kind = "AnimationInfo"
)

var (
	// ErrUnknownKind is the sentinel error wrapped by UnknownKindError.
	ErrUnknownKind = errors.New("unknown message kind")
	// ErrMalformedFrame is returned when a frame is not a JSON object.
	ErrMalformedFrame = errors.New("malformed frame")
)

type (
	// Kind is the discriminant carried in the "type" field of every message.
	Kind string

	// SendableData is the closed set of messages exchanged over the wire.
	// Only types declared in this package implement it.
	SendableData interface {
		Kind() Kind
		sendable()
	}

	// UnknownKindError is returned when a frame names a kind this server does
	// not understand. It wraps ErrUnknownKind for errors.Is() compatibility.
	UnknownKindError struct {
		Value Kind
	}
)

// String returns the string representation of the Kind.
func (k Kind) String() string { return string(k) }

// Error implements the error interface for UnknownKindError.
func (e *UnknownKindError) Error() string {
	if e.Value == "" {
		return "message has no \"type\" field"
	}
	return fmt.Sprintf("unknown message kind %q", e.Value)
}

// Unwrap returns ErrUnknownKind for errors.Is() compatibility.
func (e *UnknownKindError) Unwrap() error { return ErrUnknownKind }

// Marshal encodes d as a JSON object with its "type" field set.
func Marshal(d SendableData) ([]byte, error) {
	body, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", d.Kind(), err)
	}
	if len(body) < 2 || body[0] != '{' {
		return nil, fmt.Errorf("marshal %s: %w", d.Kind(), ErrMalformedFrame)
	}

	var buf bytes.Buffer
	buf.Grow(len(body) + len(d.Kind()) + 12)
	buf.WriteString(`{"type":`)
	kind, _ := json.Marshal(string(d.Kind())) //nolint:errcheck // strings always marshal
	buf.Write(kind)
	if !bytes.Equal(body, []byte("{}")) {
		buf.WriteByte(',')
	}
	buf.Write(body[1:])
	return buf.Bytes(), nil
}

// Unmarshal reads the discriminant of frame and decodes the matching variant.
func Unmarshal(frame []byte) (SendableData, error) {
	var head struct {
		Type Kind `json:"type"`
	}
	if err := json.Unmarshal(frame, &head); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedFrame, err)
	}

	switch head.Type {
	case KindAnimationToRunParams:
		return decodeAs[AnimationToRunParams](frame)
	case KindEndAnimation:
		return decodeAs[EndAnimation](frame)
	case KindRunningAnimationParams:
		return decodeAs[RunningAnimationParams](frame)
	case KindSection:
		return decodeAs[Section](frame)
	case KindStripInfo:
		return decodeAs[StripInfo](frame)
	case KindClientParams:
		p := DefaultClientParams()
		if err := json.Unmarshal(frame, &p); err != nil {
			return nil, fmt.Errorf("decode %s: %w", head.Type, err)
		}
		if err := p.Validate(); err != nil {
			return nil, err
		}
		return p, nil
	case KindCommand:
		return decodeAs[Command](frame)
	case KindMessage:
		return decodeAs[Message](frame)
	case KindCurrentStripColor:
		return decodeAs[CurrentStripColor](frame)
	case KindAnimationInfo:
		return decodeAs[AnimationInfo](frame)
	default:
		return nil, &UnknownKindError{Value: head.Type}
	}
}

func decodeAs[T SendableData](frame []byte) (SendableData, error) {
	var v T
	if err := json.Unmarshal(frame, &v); err != nil {
		return nil, fmt.Errorf("decode %s: %w", v.Kind(), err)
	}
	return v, nil
}
