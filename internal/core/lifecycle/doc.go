// SPDX-License-Identifier: MPL-2.0

// Package lifecycle is the start/stop state machine shared by the server and
// its per-port connections. Background work runs in an errgroup scope owned by
// the Base, so stopping cancels every task and waits for all of them.
package lifecycle
