// SPDX-License-Identifier: MPL-2.0

package connection

import (
	"context"
	"sync"
	"time"

	"ledserver/internal/protocol"
)

// intervalSender batches INTERVAL-policy events for one client. A forwarder
// moves queued items into the batch and a ticker flushes the batch every
// period, preserving enqueue order.
type intervalSender struct {
	period time.Duration
	queue  chan protocol.SendableData
	flush  func(batch []protocol.SendableData)

	mu    sync.Mutex
	batch []protocol.SendableData
}

func newIntervalSender(period time.Duration, queueSize int, flush func([]protocol.SendableData)) *intervalSender {
	if period <= 0 {
		period = protocol.DefaultBufferedMessageInterval
	}
	return &intervalSender{
		period: period,
		queue:  make(chan protocol.SendableData, queueSize),
		flush:  flush,
	}
}

// enqueue blocks while the queue is full, until ctx ends.
func (s *intervalSender) enqueue(ctx context.Context, d protocol.SendableData) bool {
	select {
	case s.queue <- d:
		return true
	case <-ctx.Done():
		return false
	}
}

func (s *intervalSender) forward(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case d := <-s.queue:
			s.mu.Lock()
			s.batch = append(s.batch, d)
			s.mu.Unlock()
		}
	}
}

func (s *intervalSender) tick(ctx context.Context) error {
	t := time.NewTicker(s.period)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			s.drain()
		}
	}
}

func (s *intervalSender) drain() {
	s.mu.Lock()
	batch := s.batch
	s.batch = nil
	s.mu.Unlock()

	if len(batch) > 0 {
		s.flush(batch)
	}
}
