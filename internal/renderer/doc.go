// SPDX-License-Identifier: MPL-2.0

// Package renderer defines the narrow interface ledserver uses to drive an
// LED-animation rendering engine, plus Emulated, an in-memory strip used when
// no hardware is attached and in tests.
//
// The pixel effects of Emulated are deliberately plain fills; the server only
// relies on the step/run contract, not on what the pixels look like.
package renderer
