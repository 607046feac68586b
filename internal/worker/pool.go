// SPDX-License-Identifier: MPL-2.0

// Package worker provides the bounded pool that runs one-shot and finite
// animations.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// DefaultWorkers is used when a non-positive worker count is given.
	DefaultWorkers = 4
	// DefaultQueueSize is used when a non-positive queue size is given.
	DefaultQueueSize = 64
)

var (
	ErrPoolNotStarted     = errors.New("worker pool not started")
	ErrPoolStopped        = errors.New("worker pool stopped")
	ErrPoolAlreadyStarted = errors.New("worker pool already started")
	ErrQueueFull          = errors.New("worker pool queue full")
	ErrNilProcessor       = errors.New("processor function cannot be nil")
	ErrStopTimeout        = errors.New("timeout waiting for workers to stop")
	ErrProcessorPanic     = errors.New("processor panicked")
)

type (
	// Pool runs a fixed number of workers over a bounded queue of T.
	Pool[T any] struct {
		workers   int
		queueSize int
		processor func(context.Context, T) error
		onError   func(T, error)

		work   chan T
		cancel context.CancelFunc
		wg     sync.WaitGroup

		mu      sync.Mutex
		started bool
		stopped bool

		submitted atomic.Int64
		processed atomic.Int64
		failed    atomic.Int64
		dropped   atomic.Int64

		depth prometheus.Gauge
	}

	// Option configures a Pool.
	Option[T any] func(*Pool[T])

	// Stats is a point-in-time view of the pool counters.
	Stats struct {
		Workers    int   `json:"workers"`
		QueueSize  int   `json:"queue_size"`
		QueueDepth int   `json:"queue_depth"`
		Submitted  int64 `json:"submitted"`
		Processed  int64 `json:"processed"`
		Failed     int64 `json:"failed"`
		Dropped    int64 `json:"dropped"`
	}
)

// WithErrorHandler is called with every item whose processor returned an
// error or panicked.
func WithErrorHandler[T any](fn func(T, error)) Option[T] {
	return func(p *Pool[T]) {
		p.onError = fn
	}
}

// WithQueueDepthGauge keeps g set to the number of queued items.
func WithQueueDepthGauge[T any](g prometheus.Gauge) Option[T] {
	return func(p *Pool[T]) {
		p.depth = g
	}
}

// NewPool creates a pool. It panics if processor is nil.
func NewPool[T any](workers, queueSize int, processor func(context.Context, T) error, opts ...Option[T]) *Pool[T] {
	if processor == nil {
		panic(ErrNilProcessor)
	}
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	p := &Pool[T]{
		workers:   workers,
		queueSize: queueSize,
		processor: processor,
		work:      make(chan T, queueSize),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start launches the workers. Work items see a context derived from ctx that
// is also cancelled by Stop.
func (p *Pool[T]) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return ErrPoolAlreadyStarted
	}
	ctx, p.cancel = context.WithCancel(ctx)
	for range p.workers {
		p.wg.Add(1)
		go p.run(ctx)
	}
	p.started = true
	return nil
}

// Submit queues work without blocking.
func (p *Pool[T]) Submit(item T) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started {
		return ErrPoolNotStarted
	}
	if p.stopped {
		return ErrPoolStopped
	}
	select {
	case p.work <- item:
		p.submitted.Add(1)
		p.setDepth()
		return nil
	default:
		p.dropped.Add(1)
		return ErrQueueFull
	}
}

// Stop cancels running items, discards queued ones and waits up to timeout
// for the workers to exit.
func (p *Pool[T]) Stop(timeout time.Duration) error {
	p.mu.Lock()
	if !p.started || p.stopped {
		p.mu.Unlock()
		return nil
	}
	p.stopped = true
	p.cancel()
	close(p.work)
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-done:
		p.setDepth()
		return nil
	case <-timer.C:
		return ErrStopTimeout
	}
}

// Stats returns the current counters.
func (p *Pool[T]) Stats() Stats {
	return Stats{
		Workers:    p.workers,
		QueueSize:  p.queueSize,
		QueueDepth: len(p.work),
		Submitted:  p.submitted.Load(),
		Processed:  p.processed.Load(),
		Failed:     p.failed.Load(),
		Dropped:    p.dropped.Load(),
	}
}

func (p *Pool[T]) run(ctx context.Context) {
	defer p.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case item, ok := <-p.work:
			if !ok {
				return
			}
			p.setDepth()
			err := p.process(ctx, item)
			p.processed.Add(1)
			if err != nil {
				p.failed.Add(1)
				if p.onError != nil {
					p.onError(item, err)
				}
			}
		}
	}
}

func (p *Pool[T]) process(ctx context.Context, item T) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrProcessorPanic, r)
		}
	}()
	return p.processor(ctx, item)
}

func (p *Pool[T]) setDepth() {
	if p.depth != nil {
		p.depth.Set(float64(len(p.work)))
	}
}
