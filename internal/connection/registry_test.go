// SPDX-License-Identifier: MPL-2.0

package connection

import (
	"net"
	"testing"

	"ledserver/internal/protocol"
	"ledserver/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// freePort reserves an ephemeral port and releases it for the test to bind.
func freePort(t *testing.T) types.ListenPort {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())
	return types.ListenPort(port)
}

func testFactory(opts ...Option) Factory {
	return func(port types.ListenPort) (*Connection, error) {
		cfg := testConfig()
		cfg.Port = port
		return New(cfg, opts...)
	}
}

func TestRegistry_AddAndGet(t *testing.T) {
	t.Parallel()

	r := NewRegistry(testFactory())
	c, err := r.Add(5001)
	require.NoError(t, err)
	assert.Equal(t, types.ListenPort(5001), c.Port())

	_, err = r.Add(5001)
	require.ErrorIs(t, err, ErrDuplicatePort)

	_, err = r.Add(99999)
	require.ErrorIs(t, err, types.ErrInvalidListenPort)

	_, err = r.Add(4000)
	require.NoError(t, err)

	got, ok := r.Get(5001)
	require.True(t, ok)
	assert.Same(t, c, got)

	ports := make([]types.ListenPort, 0)
	for _, conn := range r.Connections() {
		ports = append(ports, conn.Port())
	}
	assert.Equal(t, []types.ListenPort{4000, 5001}, ports)

	require.ErrorIs(t, r.SendTo(1234, protocol.Message{}), ErrUnknownPort)
}

func TestRegistry_BroadcastReachesEveryClient(t *testing.T) {
	t.Parallel()

	r := NewRegistry(testFactory())
	a, err := r.Add(freePort(t))
	require.NoError(t, err)
	b, err := r.Add(freePort(t))
	require.NoError(t, err)

	failed := r.OpenAll(t.Context())
	require.Empty(t, failed)
	t.Cleanup(func() { _ = r.CloseAll() })

	ca, cb := dial(t, a), dial(t, b)
	awaitStatus(t, a, StatusConnected)
	awaitStatus(t, b, StatusConnected)

	for _, tc := range []*testClient{ca, cb} {
		tc.send(protocol.DefaultClientParams())
	}
	awaitConfigured(t, a)
	awaitConfigured(t, b)

	end := protocol.EndAnimation{ID: "x"}
	r.Broadcast(end)
	assert.Equal(t, end, ca.next(waitFor))
	assert.Equal(t, end, cb.next(waitFor))

	require.NoError(t, r.SendTo(b.Port(), protocol.Message{Message: "only b"}))
	assert.Equal(t, protocol.Message{Message: "only b"}, cb.next(waitFor))
	_, extra := ca.poll(quietPeriod)
	assert.False(t, extra)

	statuses := r.Statuses()
	assert.Equal(t, StatusConnected, statuses[a.Port()])
	assert.Equal(t, StatusConnected, statuses[b.Port()])

	require.NoError(t, r.CloseAll())
	for _, s := range r.Statuses() {
		assert.Equal(t, StatusStopped, s)
	}
}

func TestRegistry_OpenAllIsolatesBindFailures(t *testing.T) {
	t.Parallel()

	taken, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = taken.Close() })
	busy := types.ListenPort(taken.Addr().(*net.TCPAddr).Port)

	r := NewRegistry(testFactory())
	_, err = r.Add(busy)
	require.NoError(t, err)
	ok, err := r.Add(freePort(t))
	require.NoError(t, err)

	failed := r.OpenAll(t.Context())
	t.Cleanup(func() { _ = r.CloseAll() })

	require.Len(t, failed, 1)
	require.Error(t, failed[busy])
	assert.Equal(t, StatusWaiting, ok.Status())
}
