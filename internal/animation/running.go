// SPDX-License-Identifier: MPL-2.0

package animation

import (
	"context"
	"sync/atomic"

	"ledserver/internal/protocol"
)

const (
	// StateRunning means the task is rendering steps.
	StateRunning State = iota
	// StateCancelRequested means End or Shutdown cancelled the task and it has
	// not observed the cancellation yet.
	StateCancelRequested
	// StateStopped means the task has returned.
	StateStopped
)

// State is the lifecycle of one continuous animation task.
type State int32

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateCancelRequested:
		return "cancel-requested"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// running is the registry entry of a continuous animation.
type running struct {
	params protocol.RunningAnimationParams
	cancel context.CancelFunc
	done   chan struct{}
	state  atomic.Int32
	steps  atomic.Int64
}

func newRunning(params protocol.RunningAnimationParams, cancel context.CancelFunc) *running {
	r := &running{params: params, cancel: cancel, done: make(chan struct{})}
	r.state.Store(int32(StateRunning))
	return r
}

func (r *running) State() State {
	return State(r.state.Load())
}

// requestCancel moves Running to CancelRequested and cancels the task context.
func (r *running) requestCancel() {
	r.state.CompareAndSwap(int32(StateRunning), int32(StateCancelRequested))
	r.cancel()
}

func (r *running) markStopped() {
	r.state.Store(int32(StateStopped))
	close(r.done)
}
