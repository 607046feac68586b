// SPDX-License-Identifier: MPL-2.0

package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// Base tracks the state of one long-running component and owns the errgroup
// scope its background tasks run in. A Base is single-use.
type Base struct {
	name string

	state atomic.Int32
	mu    sync.Mutex

	ctx     context.Context
	cancel  context.CancelFunc
	group   *errgroup.Group
	started chan struct{}
	errCh   chan error
	lastErr error
}

// Option configures a Base.
type Option func(*Base)

// WithErrorBuffer sets the buffer size of the Err channel (default 1).
func WithErrorBuffer(size int) Option {
	return func(b *Base) {
		b.errCh = make(chan error, max(size, 0))
	}
}

// New creates a Base in StateCreated. name is used in transition errors.
func New(name string, opts ...Option) *Base {
	b := &Base{
		name:    name,
		started: make(chan struct{}),
		errCh:   make(chan error, 1),
	}
	b.state.Store(int32(StateCreated))
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// State returns the current state.
func (b *Base) State() State {
	return State(b.state.Load())
}

// IsRunning reports whether the component is in StateRunning.
func (b *Base) IsRunning() bool {
	return b.State() == StateRunning
}

// Err delivers asynchronous task failures.
func (b *Base) Err() <-chan error {
	return b.errCh
}

// LastError returns the error that moved the Base to StateFailed.
func (b *Base) LastError() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastErr
}

// Context is cancelled when stopping starts. Nil before BeginStart.
func (b *Base) Context() context.Context {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ctx
}

// Ready is closed once the Base reaches StateRunning.
func (b *Base) Ready() <-chan struct{} {
	return b.started
}

// BeginStart moves Created to Starting and opens the task scope. The scope is
// detached from ctx; ctx only aborts a start that was cancelled beforehand.
func (b *Base) BeginStart(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		err = fmt.Errorf("%s: context cancelled before start: %w", b.name, err)
		b.Fail(err)
		return err
	}
	if !b.state.CompareAndSwap(int32(StateCreated), int32(StateStarting)) {
		return &TransitionError{Component: b.name, From: b.State(), To: StateStarting}
	}

	scope, cancel := context.WithCancel(context.Background())
	group, gctx := errgroup.WithContext(scope)

	b.mu.Lock()
	b.ctx, b.cancel, b.group = gctx, cancel, group
	b.mu.Unlock()
	return nil
}

// MarkRunning moves Starting to Running and closes Ready.
func (b *Base) MarkRunning() {
	if b.state.CompareAndSwap(int32(StateStarting), int32(StateRunning)) {
		close(b.started)
	}
}

// Fail records err, moves to StateFailed and cancels the scope.
func (b *Base) Fail(err error) {
	b.mu.Lock()
	b.lastErr = err
	cancel := b.cancel
	b.mu.Unlock()

	b.state.Store(int32(StateFailed))
	if cancel != nil {
		cancel()
	}
	b.Report(err)
}

// BeginStop moves Starting or Running to Stopping and cancels the scope.
// It returns false when there is nothing to stop; a never-started Base is
// marked Stopped directly.
func (b *Base) BeginStop() bool {
	for {
		cur := b.State()
		switch cur {
		case StateCreated:
			if b.state.CompareAndSwap(int32(StateCreated), int32(StateStopped)) {
				return false
			}
		case StateStarting, StateRunning:
			if !b.state.CompareAndSwap(int32(cur), int32(StateStopping)) {
				continue
			}
			b.mu.Lock()
			cancel := b.cancel
			b.mu.Unlock()
			if cancel != nil {
				cancel()
			}
			return true
		default:
			return false
		}
	}
}

// MarkStopped moves to the terminal StateStopped. Call after Wait.
func (b *Base) MarkStopped() {
	if b.State() != StateFailed {
		b.state.Store(int32(StateStopped))
	}
}

// Go runs fn in the task scope. A non-nil error other than context
// cancellation cancels the scope and is reported on Err.
func (b *Base) Go(fn func(ctx context.Context) error) {
	b.mu.Lock()
	group, ctx := b.group, b.ctx
	b.mu.Unlock()
	if group == nil {
		panic(fmt.Sprintf("%s: Go called before BeginStart", b.name))
	}

	group.Go(func() error {
		err := fn(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			b.Report(err)
			return err
		}
		return nil
	})
}

// Wait blocks until every task started with Go has returned and yields the
// first task error.
func (b *Base) Wait() error {
	b.mu.Lock()
	group := b.group
	b.mu.Unlock()
	if group == nil {
		return nil
	}
	return group.Wait()
}

// WaitReady blocks until the Base is running or ctx is done.
func (b *Base) WaitReady(ctx context.Context) error {
	select {
	case <-b.started:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%s: waiting for ready: %w", b.name, ctx.Err())
	}
}

// Report sends err on the Err channel without blocking; it is dropped if the
// buffer is full.
func (b *Base) Report(err error) {
	if err == nil {
		return
	}
	select {
	case b.errCh <- err:
	default:
	}
}
