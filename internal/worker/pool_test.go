// SPDX-License-Identifier: MPL-2.0

package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPool_ProcessesEverything(t *testing.T) {
	t.Parallel()

	var sum atomic.Int64
	var wg sync.WaitGroup
	p := NewPool(3, 10, func(_ context.Context, n int) error {
		defer wg.Done()
		sum.Add(int64(n))
		return nil
	})
	require.NoError(t, p.Start(t.Context()))

	for i := 1; i <= 10; i++ {
		wg.Add(1)
		require.NoError(t, p.Submit(i))
	}
	wg.Wait()
	require.NoError(t, p.Stop(time.Second))

	assert.Equal(t, int64(55), sum.Load())
	stats := p.Stats()
	assert.Equal(t, int64(10), stats.Submitted)
	assert.Equal(t, int64(10), stats.Processed)
	assert.Zero(t, stats.Failed)
}

func TestPool_Lifecycle(t *testing.T) {
	t.Parallel()

	p := NewPool(1, 1, func(context.Context, int) error { return nil })
	require.ErrorIs(t, p.Submit(1), ErrPoolNotStarted)

	require.NoError(t, p.Start(t.Context()))
	require.ErrorIs(t, p.Start(t.Context()), ErrPoolAlreadyStarted)

	require.NoError(t, p.Stop(time.Second))
	require.NoError(t, p.Stop(time.Second), "second stop is a no-op")
	require.ErrorIs(t, p.Submit(1), ErrPoolStopped)

	assert.Panics(t, func() { NewPool[int](1, 1, nil) })
}

func TestPool_QueueFull(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	running := make(chan struct{}, 1)
	depth := prometheus.NewGauge(prometheus.GaugeOpts{Name: "depth"})
	p := NewPool(1, 1, func(ctx context.Context, _ int) error {
		running <- struct{}{}
		select {
		case <-release:
		case <-ctx.Done():
		}
		return nil
	}, WithQueueDepthGauge[int](depth))
	require.NoError(t, p.Start(t.Context()))

	require.NoError(t, p.Submit(1))
	<-running
	require.NoError(t, p.Submit(2))
	require.ErrorIs(t, p.Submit(3), ErrQueueFull)

	assert.InDelta(t, 1, testutil.ToFloat64(depth), 0)
	assert.Equal(t, int64(1), p.Stats().Dropped)

	close(release)
	require.NoError(t, p.Stop(time.Second))
}

func TestPool_ErrorsAndPanics(t *testing.T) {
	t.Parallel()

	boom := errors.New("render failed")
	var mu sync.Mutex
	var got []error
	var wg sync.WaitGroup

	p := NewPool(2, 4, func(_ context.Context, n int) error {
		switch n {
		case 1:
			return boom
		case 2:
			panic("strip unplugged")
		}
		return nil
	}, WithErrorHandler(func(_ int, err error) {
		mu.Lock()
		got = append(got, err)
		mu.Unlock()
		wg.Done()
	}))
	require.NoError(t, p.Start(t.Context()))

	wg.Add(2)
	require.NoError(t, p.Submit(1))
	require.NoError(t, p.Submit(2))
	wg.Wait()
	require.NoError(t, p.Stop(time.Second))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 2)
	var sawBoom, sawPanic bool
	for _, err := range got {
		sawBoom = sawBoom || errors.Is(err, boom)
		sawPanic = sawPanic || errors.Is(err, ErrProcessorPanic)
	}
	assert.True(t, sawBoom)
	assert.True(t, sawPanic)
	assert.Equal(t, int64(2), p.Stats().Failed)
}

func TestPool_StopCancelsRunningWork(t *testing.T) {
	t.Parallel()

	started := make(chan struct{})
	p := NewPool(1, 1, func(ctx context.Context, _ int) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	})
	require.NoError(t, p.Start(t.Context()))
	require.NoError(t, p.Submit(1))
	<-started

	require.NoError(t, p.Stop(time.Second))
}
