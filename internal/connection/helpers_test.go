// SPDX-License-Identifier: MPL-2.0

package connection

import (
	"context"
	"net"
	"testing"
	"time"

	"ledserver/internal/protocol"

	"github.com/stretchr/testify/require"
)

const (
	testPoll    = 20 * time.Millisecond
	waitFor     = 3 * time.Second
	checkEvery  = 5 * time.Millisecond
	quietPeriod = 150 * time.Millisecond
)

type recordingHandler struct {
	ch chan protocol.SendableData
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{ch: make(chan protocol.SendableData, 1024)}
}

func (h *recordingHandler) HandleMessage(_ context.Context, _ *Connection, d protocol.SendableData) {
	h.ch <- d
}

func (h *recordingHandler) next(t *testing.T) protocol.SendableData {
	t.Helper()
	select {
	case d := <-h.ch:
		return d
	case <-time.After(waitFor):
		t.Fatal("handler received nothing")
		return nil
	}
}

type staticState struct {
	running []protocol.RunningAnimationParams
	catalog []protocol.AnimationInfo
}

func (s staticState) Running() []protocol.RunningAnimationParams { return s.running }
func (s staticState) Catalog() []protocol.AnimationInfo          { return s.catalog }

func testConfig() Config {
	cfg := DefaultConfig(0)
	cfg.Host = "127.0.0.1"
	cfg.PollInterval = testPoll
	cfg.WriteTimeout = time.Second
	return cfg
}

func openConn(t *testing.T, cfg Config, opts ...Option) *Connection {
	t.Helper()
	c, err := New(cfg, opts...)
	require.NoError(t, err)
	require.NoError(t, c.Open(t.Context()))
	t.Cleanup(func() { _ = c.Close() })
	return c
}

// testClient speaks the wire protocol from the client side.
type testClient struct {
	t       *testing.T
	conn    net.Conn
	framer  protocol.Framer
	decoder *protocol.Decoder
	pending []protocol.SendableData
}

func dial(t *testing.T, c *Connection) *testClient {
	t.Helper()
	conn, err := net.DialTimeout("tcp", c.Addr().String(), waitFor)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	framer, err := protocol.NewFramer(c.cfg.Framing, c.cfg.Delimiter, c.cfg.MaxFrameSize)
	require.NoError(t, err)
	return &testClient{t: t, conn: conn, framer: framer, decoder: protocol.NewDecoder(framer)}
}

func (tc *testClient) send(msgs ...protocol.SendableData) {
	tc.t.Helper()
	for _, d := range msgs {
		frame, err := protocol.Encode(tc.framer, d)
		require.NoError(tc.t, err)
		_, err = tc.conn.Write(frame)
		require.NoError(tc.t, err)
	}
}

// next returns the next message, failing the test after timeout.
func (tc *testClient) next(timeout time.Duration) protocol.SendableData {
	tc.t.Helper()
	d, ok := tc.poll(timeout)
	if !ok {
		tc.t.Fatalf("no message within %s", timeout)
	}
	return d
}

// poll returns the next message if one arrives within timeout.
func (tc *testClient) poll(timeout time.Duration) (protocol.SendableData, bool) {
	tc.t.Helper()
	deadline := time.Now().Add(timeout)
	buf := make([]byte, 4096)
	for len(tc.pending) == 0 {
		if time.Now().After(deadline) {
			return nil, false
		}
		_ = tc.conn.SetReadDeadline(deadline)
		n, err := tc.conn.Read(buf)
		if n > 0 {
			msgs, ferr := tc.decoder.Feed(buf[:n])
			require.NoError(tc.t, ferr)
			tc.pending = append(tc.pending, msgs...)
		}
		if err != nil && len(tc.pending) == 0 {
			return nil, false
		}
	}
	d := tc.pending[0]
	tc.pending = tc.pending[1:]
	return d, true
}

func awaitStatus(t *testing.T, c *Connection, want Status) {
	t.Helper()
	require.Eventually(t, func() bool { return c.Status() == want }, waitFor, checkEvery,
		"status never became %s", want)
}

func awaitConfigured(t *testing.T, c *Connection) {
	t.Helper()
	require.Eventually(t, func() bool {
		_, ok := c.ClientParams()
		return ok
	}, waitFor, checkEvery)
}
