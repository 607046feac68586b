// SPDX-License-Identifier: MPL-2.0

package protocol

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

const (
	// FramingLength selects LengthPrefixedFramer.
	FramingLength = "length"
	// FramingDelimited selects DelimitedFramer.
	FramingDelimited = "delimited"

	// DefaultDelimiter terminates each frame in delimited mode.
	DefaultDelimiter = ";;;"
	// DefaultMaxFrameSize bounds a single length-prefixed frame.
	DefaultMaxFrameSize = 1 << 20

	lengthPrefixSize = 4
)

var (
	// ErrFrameTooLarge is returned when a frame header announces more bytes
	// than the framer accepts. The stream cannot be resynchronised after it.
	ErrFrameTooLarge = errors.New("frame too large")
	// ErrDelimiterInPayload is returned when an outgoing payload contains the
	// frame delimiter and would be cut in two by the receiver.
	ErrDelimiterInPayload = errors.New("payload contains frame delimiter")
	// ErrUnknownFraming is returned by NewFramer for unknown framing names.
	ErrUnknownFraming = errors.New("unknown framing")
)

type (
	// Framer cuts a byte stream into frames and wraps payloads into frames.
	Framer interface {
		// Frame returns payload wrapped as a single frame.
		Frame(payload []byte) ([]byte, error)
		// Split returns the complete frames at the start of buf and the
		// trailing bytes of an incomplete frame. Empty frames are dropped.
		Split(buf []byte) (frames [][]byte, rest []byte, err error)
	}

	// DelimitedFramer terminates every frame with a literal delimiter.
	// It assumes the delimiter never occurs inside a payload; Frame enforces
	// that for outgoing data, incoming data is trusted.
	DelimitedFramer struct {
		Delimiter []byte
	}

	// LengthPrefixedFramer prefixes every frame with its payload length as a
	// 4-byte big-endian unsigned integer.
	LengthPrefixedFramer struct {
		MaxFrameSize int
	}
)

// NewFramer returns the framer named by framing ("length" or "delimited").
func NewFramer(framing, delimiter string, maxFrameSize int) (Framer, error) {
	switch framing {
	case FramingLength, "":
		if maxFrameSize <= 0 {
			maxFrameSize = DefaultMaxFrameSize
		}
		return &LengthPrefixedFramer{MaxFrameSize: maxFrameSize}, nil
	case FramingDelimited:
		if delimiter == "" {
			delimiter = DefaultDelimiter
		}
		return &DelimitedFramer{Delimiter: []byte(delimiter)}, nil
	default:
		return nil, fmt.Errorf("%w %q (valid: %s, %s)", ErrUnknownFraming, framing, FramingLength, FramingDelimited)
	}
}

// Frame appends the delimiter to payload.
func (f *DelimitedFramer) Frame(payload []byte) ([]byte, error) {
	if bytes.Contains(payload, f.Delimiter) {
		return nil, ErrDelimiterInPayload
	}
	out := make([]byte, 0, len(payload)+len(f.Delimiter))
	out = append(out, payload...)
	return append(out, f.Delimiter...), nil
}

// Split cuts buf on the delimiter. When buf does not end with the delimiter
// the last segment is incomplete and returned as rest.
func (f *DelimitedFramer) Split(buf []byte) ([][]byte, []byte, error) {
	segments := bytes.Split(buf, f.Delimiter)
	var rest []byte
	if !bytes.HasSuffix(buf, f.Delimiter) {
		rest = segments[len(segments)-1]
		segments = segments[:len(segments)-1]
	}

	frames := make([][]byte, 0, len(segments))
	for _, seg := range segments {
		if len(seg) == 0 {
			continue
		}
		frames = append(frames, seg)
	}
	return frames, rest, nil
}

// Frame prepends the payload length.
func (f *LengthPrefixedFramer) Frame(payload []byte) ([]byte, error) {
	if len(payload) > f.maxFrameSize() {
		return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrFrameTooLarge, len(payload), f.maxFrameSize())
	}
	out := make([]byte, lengthPrefixSize, lengthPrefixSize+len(payload))
	binary.BigEndian.PutUint32(out, uint32(len(payload))) //nolint:gosec // bounded by maxFrameSize
	return append(out, payload...), nil
}

// Split reads as many complete length-prefixed frames from buf as it holds.
func (f *LengthPrefixedFramer) Split(buf []byte) ([][]byte, []byte, error) {
	var frames [][]byte
	for len(buf) >= lengthPrefixSize {
		n := binary.BigEndian.Uint32(buf[:lengthPrefixSize])
		if uint64(n) > uint64(f.maxFrameSize()) {
			return frames, nil, fmt.Errorf("%w: header announces %d bytes (max %d)", ErrFrameTooLarge, n, f.maxFrameSize())
		}
		end := lengthPrefixSize + int(n)
		if len(buf) < end {
			break
		}
		if n > 0 {
			frames = append(frames, buf[lengthPrefixSize:end])
		}
		buf = buf[end:]
	}
	return frames, buf, nil
}

func (f *LengthPrefixedFramer) maxFrameSize() int {
	if f.MaxFrameSize <= 0 || uint64(f.MaxFrameSize) > math.MaxUint32 {
		return DefaultMaxFrameSize
	}
	return f.MaxFrameSize
}
