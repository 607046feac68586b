// SPDX-License-Identifier: MPL-2.0

package protocol

import (
	"io"

	"github.com/charmbracelet/log"
)

type (
	// Decoder turns a stream of byte chunks into messages. It keeps the
	// trailing incomplete frame between calls to Feed. A Decoder is owned by a
	// single reader and is not safe for concurrent use.
	Decoder struct {
		framer      Framer
		partial     []byte
		logger      *log.Logger
		onMalformed func(frame []byte, err error)
	}

	// DecoderOption configures a Decoder.
	DecoderOption func(*Decoder)
)

// WithDecoderLogger sets the logger used to report skipped frames.
func WithDecoderLogger(l *log.Logger) DecoderOption {
	return func(d *Decoder) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithMalformedHandler registers a callback invoked for every skipped frame.
func WithMalformedHandler(fn func(frame []byte, err error)) DecoderOption {
	return func(d *Decoder) {
		d.onMalformed = fn
	}
}

// NewDecoder creates a Decoder reading frames cut by framer.
func NewDecoder(framer Framer, opts ...DecoderOption) *Decoder {
	d := &Decoder{
		framer: framer,
		logger: log.New(io.Discard),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Feed appends chunk to the pending bytes and returns every message that is
// now complete, in stream order. Frames that fail to parse are skipped. The
// returned error is non-nil only when the stream itself is unusable (for
// example ErrFrameTooLarge); the caller should then drop the client.
func (d *Decoder) Feed(chunk []byte) ([]SendableData, error) {
	buf := make([]byte, 0, len(d.partial)+len(chunk))
	buf = append(buf, d.partial...)
	buf = append(buf, chunk...)

	frames, rest, err := d.framer.Split(buf)
	if err != nil {
		d.partial = nil
	} else {
		d.partial = append([]byte(nil), rest...)
	}

	msgs := make([]SendableData, 0, len(frames))
	for _, frame := range frames {
		msg, uerr := Unmarshal(frame)
		if uerr != nil {
			d.logger.Warn("skipping unparseable frame", "error", uerr, "bytes", len(frame))
			if d.onMalformed != nil {
				d.onMalformed(frame, uerr)
			}
			continue
		}
		msgs = append(msgs, msg)
	}
	return msgs, err
}

// Partial returns a copy of the bytes of the incomplete trailing frame.
func (d *Decoder) Partial() []byte {
	return append([]byte(nil), d.partial...)
}

// Reset discards any incomplete frame, e.g. when a new client connects.
func (d *Decoder) Reset() {
	d.partial = nil
}
