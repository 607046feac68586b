// SPDX-License-Identifier: MPL-2.0

package connection

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"ledserver/internal/protocol"
	"ledserver/pkg/types"
)

var (
	// ErrDuplicatePort is returned by Add for a port that already has a Connection.
	ErrDuplicatePort = errors.New("port already registered")
	// ErrUnknownPort is returned by SendTo for a port with no Connection.
	ErrUnknownPort = errors.New("no connection on port")
)

type (
	// Factory builds the Connection for a port.
	Factory func(port types.ListenPort) (*Connection, error)

	// Registry maps ports to their Connection for the process lifetime.
	Registry struct {
		factory Factory

		mu    sync.RWMutex
		conns map[types.ListenPort]*Connection
	}
)

// NewRegistry creates an empty Registry that builds connections with factory.
func NewRegistry(factory Factory) *Registry {
	return &Registry{
		factory: factory,
		conns:   make(map[types.ListenPort]*Connection),
	}
}

// Add builds and registers the Connection for port. It does not open it.
func (r *Registry) Add(port types.ListenPort) (*Connection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.conns[port]; exists {
		return nil, fmt.Errorf("%w: %s", ErrDuplicatePort, port)
	}
	c, err := r.factory(port)
	if err != nil {
		return nil, err
	}
	r.conns[port] = c
	return c, nil
}

// Get returns the Connection for port.
func (r *Registry) Get(port types.ListenPort) (*Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conns[port]
	return c, ok
}

// Connections returns every Connection ordered by port.
func (r *Registry) Connections() []*Connection {
	r.mu.RLock()
	out := slices.Collect(maps.Values(r.conns))
	r.mu.RUnlock()

	slices.SortFunc(out, func(a, b *Connection) int { return cmp.Compare(a.Port(), b.Port()) })
	return out
}

// Broadcast hands d to every connection's SendData.
func (r *Registry) Broadcast(d protocol.SendableData) {
	for _, c := range r.Connections() {
		c.SendData(d)
	}
}

// SendTo hands d to the SendData of the connection on port.
func (r *Registry) SendTo(port types.ListenPort, d protocol.SendableData) error {
	c, ok := r.Get(port)
	if !ok {
		return fmt.Errorf("%w %s", ErrUnknownPort, port)
	}
	c.SendData(d)
	return nil
}

// Statuses returns the status of every port.
func (r *Registry) Statuses() map[types.ListenPort]Status {
	out := make(map[types.ListenPort]Status)
	for _, c := range r.Connections() {
		out[c.Port()] = c.Status()
	}
	return out
}

// OpenAll opens every connection. A port that fails to bind is reported in
// the returned map and does not stop the others.
func (r *Registry) OpenAll(ctx context.Context) map[types.ListenPort]error {
	failed := make(map[types.ListenPort]error)
	for _, c := range r.Connections() {
		if err := c.Open(ctx); err != nil {
			failed[c.Port()] = err
		}
	}
	return failed
}

// CloseAll closes every connection and waits for their tasks.
func (r *Registry) CloseAll() error {
	conns := r.Connections()
	errs := make([]error, len(conns))

	var wg sync.WaitGroup
	for i, c := range conns {
		wg.Go(func() { errs[i] = c.Close() })
	}
	wg.Wait()
	return errors.Join(errs...)
}
