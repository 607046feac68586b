// SPDX-License-Identifier: MPL-2.0

// Package server composes the rendering engine, animation manager, snapshot
// store and per-port connections into one runnable device-control server.
package server
