// SPDX-License-Identifier: MPL-2.0

package protocol

import "fmt"

// Encode serializes d and wraps it into a single frame.
func Encode(f Framer, d SendableData) ([]byte, error) {
	payload, err := Marshal(d)
	if err != nil {
		return nil, err
	}
	frame, err := f.Frame(payload)
	if err != nil {
		return nil, fmt.Errorf("frame %s: %w", d.Kind(), err)
	}
	return frame, nil
}

// SplitDelimited is the string form of delimited decoding: it joins partial
// with newBytes, returns the complete non-empty segments and the new partial.
// The new partial is empty once the input ends with delim.
func SplitDelimited(newBytes []byte, partial, delim string) ([]string, string) {
	f := DelimitedFramer{Delimiter: []byte(delim)}
	buf := make([]byte, 0, len(partial)+len(newBytes))
	buf = append(buf, partial...)
	buf = append(buf, newBytes...)

	frames, rest, _ := f.Split(buf) //nolint:errcheck // delimited splitting never fails
	out := make([]string, len(frames))
	for i, fr := range frames {
		out[i] = string(fr)
	}
	return out, string(rest)
}
