// SPDX-License-Identifier: MPL-2.0

// Package animation starts, tracks and ends animations on a renderer.Engine.
//
// One-shot and finite animations run on a bounded worker pool and leave no
// trace once done. Continuous animations get a registry entry keyed by id; an
// entry exists exactly while its task is live, and at most one task runs per
// id. Each continuous start is snapshotted through a persist.Persister and the
// snapshot is removed again by End.
package animation
