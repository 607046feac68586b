// SPDX-License-Identifier: MPL-2.0

// Package protocol implements the wire protocol spoken between ledserver and
// its clients.
//
// Every message is a JSON object whose "type" field names one of the
// SendableData kinds. Messages travel over a raw TCP stream cut into frames by a
// Framer: either a 4-byte big-endian length prefix (the default) or, for older
// clients, a literal delimiter (";;;") appended to each JSON document.
//
// A Decoder owns the bytes of a trailing incomplete frame between reads, so
// messages split across arbitrary chunk boundaries are reassembled in order.
// Frames that do not parse are logged and skipped; they never abort the stream.
package protocol
