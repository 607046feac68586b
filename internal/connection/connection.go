// SPDX-License-Identifier: MPL-2.0

package connection

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"ledserver/internal/core/lifecycle"
	"ledserver/internal/logging"
	"ledserver/internal/metrics"
	"ledserver/internal/protocol"
	"ledserver/pkg/types"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"
)

type (
	// Handler receives every decoded message except ClientParams, which the
	// Connection handles itself. Calls for one client are sequential and in
	// arrival order.
	Handler interface {
		HandleMessage(ctx context.Context, c *Connection, d protocol.SendableData)
	}

	// StateSource supplies what a newly connected client is told about.
	StateSource interface {
		Running() []protocol.RunningAnimationParams
		Catalog() []protocol.AnimationInfo
	}

	// Connection owns one listening port.
	Connection struct {
		cfg     Config
		framer  protocol.Framer
		handler Handler
		state   StateSource
		logger  *log.Logger
		metrics *metrics.Metrics
		label   string

		life *lifecycle.Base
		ln   net.Listener

		mu     sync.Mutex
		client *client

		writeMu sync.Mutex
	}

	// Option configures a Connection.
	Option func(*Connection)

	client struct {
		conn    net.Conn
		remote  string
		decoder *protocol.Decoder
		ctx     context.Context
		tasks   errgroup.Group

		params   atomic.Pointer[protocol.ClientParams]
		interval *intervalSender
	}
)

// WithHandler sets the message handler.
func WithHandler(h Handler) Option {
	return func(c *Connection) { c.handler = h }
}

// WithStateSource sets the source of catch-up and catalog data.
func WithStateSource(s StateSource) Option {
	return func(c *Connection) { c.state = s }
}

// WithLogger sets the connection logger.
func WithLogger(l *log.Logger) Option {
	return func(c *Connection) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithMetrics sets the collectors the connection updates.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Connection) {
		if m != nil {
			c.metrics = m
		}
	}
}

// New creates a stopped Connection. It fails only on an invalid port or
// framing configuration.
func New(cfg Config, opts ...Option) (*Connection, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Port.Validate(); err != nil {
		return nil, err
	}
	framer, err := protocol.NewFramer(cfg.Framing, cfg.Delimiter, cfg.MaxFrameSize)
	if err != nil {
		return nil, err
	}

	label := strconv.Itoa(int(cfg.Port))
	c := &Connection{
		cfg:    cfg,
		framer: framer,
		logger: logging.Discard(),
		label:  label,
		life:   lifecycle.New("conn:" + label),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.metrics == nil {
		c.metrics = metrics.New()
	}
	return c, nil
}

// Port returns the configured port.
func (c *Connection) Port() types.ListenPort {
	return c.cfg.Port
}

// Addr returns the bound listener address, or nil before Open.
func (c *Connection) Addr() net.Addr {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ln == nil {
		return nil
	}
	return c.ln.Addr()
}

// Status reports Stopped, Waiting or Connected.
func (c *Connection) Status() Status {
	if c.life.State() != lifecycle.StateRunning {
		return StatusStopped
	}
	if c.currentClient() == nil {
		return StatusWaiting
	}
	return StatusConnected
}

// Open binds the port and starts accepting clients. Calling Open on a
// Connection that is already open logs and returns nil. ctx only bounds the
// bind; the accept loop runs until Close.
func (c *Connection) Open(ctx context.Context) error {
	switch c.life.State() {
	case lifecycle.StateStarting, lifecycle.StateRunning:
		c.logger.Warn("connection already open")
		return nil
	}
	if err := c.life.BeginStart(ctx); err != nil {
		return err
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", c.cfg.Port.Address(c.cfg.Host))
	if err != nil {
		err = fmt.Errorf("binding port %s: %w", c.cfg.Port, err)
		c.life.Fail(err)
		return err
	}

	c.mu.Lock()
	c.ln = ln
	c.mu.Unlock()

	c.life.Go(c.acceptLoop)
	c.life.MarkRunning()
	c.metrics.ClientsConnected.WithLabelValues(c.label).Set(0)
	c.logger.Info("listening", "addr", ln.Addr().String(), "framing", c.cfg.Framing)
	return nil
}

// Close stops the loops and any per-client tasks, then waits for all of
// them. Closing a Connection that is not open is a no-op.
func (c *Connection) Close() error {
	if !c.life.BeginStop() {
		return nil
	}
	err := c.life.Wait()

	c.mu.Lock()
	ln := c.ln
	c.mu.Unlock()
	if ln != nil {
		if cerr := ln.Close(); cerr != nil && !errors.Is(cerr, net.ErrClosed) {
			err = errors.Join(err, cerr)
		}
	}

	c.life.MarkStopped()
	c.logger.Info("connection closed")
	return err
}

func (c *Connection) currentClient() *client {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.client
}

func (c *Connection) setClient(cl *client) {
	c.mu.Lock()
	c.client = cl
	c.mu.Unlock()
}

type deadliner interface {
	SetDeadline(t time.Time) error
}

func (c *Connection) acceptLoop(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		if d, ok := c.ln.(deadliner); ok {
			_ = d.SetDeadline(time.Now().Add(c.cfg.PollInterval))
		}
		conn, err := c.ln.Accept()
		if err != nil {
			if isTimeout(err) {
				continue
			}
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			c.logger.Warn("accept failed", "err", err)
			continue
		}
		c.serveClient(ctx, conn)
	}
}

// serveClient runs one client session to completion. The listener does not
// accept while it runs.
func (c *Connection) serveClient(ctx context.Context, conn net.Conn) {
	cctx, cancel := context.WithCancel(ctx)
	cl := &client{
		conn:   conn,
		remote: conn.RemoteAddr().String(),
		ctx:    cctx,
		decoder: protocol.NewDecoder(c.framer,
			protocol.WithDecoderLogger(c.logger),
			protocol.WithMalformedHandler(func([]byte, error) {
				c.metrics.FramesMalformed.WithLabelValues(c.label).Inc()
			})),
	}

	c.setClient(cl)
	c.metrics.ClientsConnected.WithLabelValues(c.label).Set(1)
	c.logger.Info("client connected", "remote", cl.remote)

	if c.state != nil {
		for _, p := range c.state.Running() {
			c.write(cl, metrics.PathReply, p)
		}
	}

	c.readLoop(cctx, cl)

	cancel()
	_ = cl.tasks.Wait()
	_ = conn.Close()
	c.setClient(nil)
	c.metrics.ClientsConnected.WithLabelValues(c.label).Set(0)
	c.logger.Info("client disconnected", "remote", cl.remote)
}

func (c *Connection) readLoop(ctx context.Context, cl *client) {
	buf := make([]byte, readBufferSize)
	for {
		if ctx.Err() != nil {
			return
		}
		_ = cl.conn.SetReadDeadline(time.Now().Add(c.cfg.PollInterval))
		n, err := cl.conn.Read(buf)
		if n > 0 {
			msgs, ferr := cl.decoder.Feed(buf[:n])
			for _, msg := range msgs {
				c.dispatch(ctx, cl, msg)
			}
			if ferr != nil {
				c.logger.Warn("dropping client: unusable stream", "remote", cl.remote, "err", ferr)
				return
			}
		}
		if err != nil {
			if isTimeout(err) {
				continue
			}
			c.logger.Debug("read ended", "remote", cl.remote, "err", err)
			return
		}
	}
}

func (c *Connection) dispatch(ctx context.Context, cl *client, msg protocol.SendableData) {
	c.metrics.FramesReceived.WithLabelValues(c.label).Inc()

	if p, ok := msg.(protocol.ClientParams); ok {
		c.configure(cl, p)
		return
	}
	if c.handler == nil {
		c.logger.Warn("no handler, ignoring message", "kind", msg.Kind())
		return
	}
	c.handler.HandleMessage(ctx, c, msg)
}

// configure applies the first ClientParams of a session; later ones are ignored.
func (c *Connection) configure(cl *client, p protocol.ClientParams) {
	if cl.params.Load() != nil {
		c.logger.Warn("client params already set, ignoring", "remote", cl.remote)
		return
	}
	if p.UsesInterval() {
		cl.interval = newIntervalSender(p.Interval(), c.cfg.QueueSize, func(batch []protocol.SendableData) {
			c.write(cl, metrics.PathInterval, batch...)
		})
		cl.tasks.Go(func() error { return cl.interval.forward(cl.ctx) })
		cl.tasks.Go(func() error { return cl.interval.tick(cl.ctx) })
	}
	cl.params.Store(&p)
	c.logger.Info("client configured", "remote", cl.remote,
		"start", p.SendAnimationStart, "end", p.SendAnimationEnd, "section", p.SendSectionCreation,
		"interval", p.Interval())

	if p.SendDefinedAnimationInfoOnConnection && c.state != nil {
		for _, info := range c.state.Catalog() {
			c.write(cl, metrics.PathReply, info)
		}
	}
	if p.SendRunningAnimationInfoOnConnection && c.state != nil {
		for _, r := range c.state.Running() {
			c.write(cl, metrics.PathReply, r)
		}
	}
}

// ClientParams returns the delivery policy of the connected client.
func (c *Connection) ClientParams() (protocol.ClientParams, bool) {
	cl := c.currentClient()
	if cl == nil {
		return protocol.ClientParams{}, false
	}
	p := cl.params.Load()
	if p == nil {
		return protocol.ClientParams{}, false
	}
	return *p, true
}

// SendData delivers d according to the client's policy: RunningAnimationParams,
// EndAnimation and Section follow sendAnimationStart, sendAnimationEnd and
// sendSectionCreation; other kinds are written at once. Events governed by a
// policy are dropped until the client has configured one.
func (c *Connection) SendData(d protocol.SendableData) {
	cl := c.currentClient()
	if cl == nil {
		c.drop("no_client")
		return
	}

	var policy protocol.ClientParams
	if p := cl.params.Load(); p != nil {
		policy = *p
	}
	freq, governed := policy.FrequencyFor(d.Kind())
	if !governed {
		c.write(cl, metrics.PathImmediate, d)
		return
	}

	switch freq {
	case protocol.FrequencyImmediate:
		c.write(cl, metrics.PathImmediate, d)
	case protocol.FrequencyInterval:
		if !cl.interval.enqueue(cl.ctx, d) {
			c.drop("disconnected")
		}
	case "":
		c.drop("unconfigured")
	default:
		c.drop("policy")
	}
}

// Reply writes d to the connected client regardless of its policy.
func (c *Connection) Reply(d protocol.SendableData) {
	cl := c.currentClient()
	if cl == nil {
		c.drop("no_client")
		return
	}
	c.write(cl, metrics.PathReply, d)
}

func (c *Connection) drop(reason string) {
	c.metrics.MessagesDropped.WithLabelValues(c.label, reason).Inc()
}

// write encodes msgs and writes them as one contiguous run of frames.
func (c *Connection) write(cl *client, path string, msgs ...protocol.SendableData) {
	var buf bytes.Buffer
	sent := 0
	for _, d := range msgs {
		frame, err := protocol.Encode(c.framer, d)
		if err != nil {
			c.logger.Error("dropping unencodable message", "kind", d.Kind(), "err", err)
			c.drop("encode")
			continue
		}
		buf.Write(frame)
		sent++
	}
	if sent == 0 {
		return
	}

	c.writeMu.Lock()
	_ = cl.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	_, err := cl.conn.Write(buf.Bytes())
	c.writeMu.Unlock()

	if err != nil {
		c.logger.Warn("write failed, closing client", "remote", cl.remote, "err", err)
		c.drop("write_error")
		// The read loop notices the closed socket and returns to accepting.
		_ = cl.conn.Close()
		return
	}
	c.metrics.MessagesSent.WithLabelValues(c.label, path).Add(float64(sent))
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
