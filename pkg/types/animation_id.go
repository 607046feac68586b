// SPDX-License-Identifier: MPL-2.0

package types

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ErrInvalidAnimationID is the sentinel error wrapped by InvalidAnimationIDError.
var ErrInvalidAnimationID = errors.New("invalid animation id")

// maxAnimationIDLength bounds ids because they double as snapshot file names.
const maxAnimationIDLength = 128

type (
	// AnimationID identifies a running animation. It is also the base name of
	// the animation's snapshot file, so it must be a safe single path element.
	AnimationID string

	// InvalidAnimationIDError is returned when an AnimationID is empty, too
	// long, or contains characters that are not safe in a file name.
	InvalidAnimationIDError struct {
		Value  AnimationID
		Reason string
	}
)

// NewAnimationID returns a fresh random id, unique for the process lifetime.
func NewAnimationID() AnimationID {
	return AnimationID(uuid.NewString())
}

// String returns the string representation of the AnimationID.
func (id AnimationID) String() string { return string(id) }

// Validate returns nil if the id is usable as a registry key and file name.
func (id AnimationID) Validate() error {
	s := string(id)
	switch {
	case strings.TrimSpace(s) == "":
		return &InvalidAnimationIDError{Value: id, Reason: "must be non-empty"}
	case len(s) > maxAnimationIDLength:
		return &InvalidAnimationIDError{Value: id, Reason: fmt.Sprintf("must be at most %d bytes", maxAnimationIDLength)}
	case s == "." || s == "..":
		return &InvalidAnimationIDError{Value: id, Reason: "must not be a relative path element"}
	case strings.ContainsAny(s, "/\\\x00"):
		return &InvalidAnimationIDError{Value: id, Reason: "must not contain path separators"}
	}
	return nil
}

// Error implements the error interface for InvalidAnimationIDError.
func (e *InvalidAnimationIDError) Error() string {
	return fmt.Sprintf("invalid animation id %q: %s", e.Value, e.Reason)
}

// Unwrap returns ErrInvalidAnimationID for errors.Is() compatibility.
func (e *InvalidAnimationIDError) Unwrap() error { return ErrInvalidAnimationID }
