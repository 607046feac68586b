// SPDX-License-Identifier: MPL-2.0

package server

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"

	"ledserver/internal/animation"
	"ledserver/internal/connection"
	"ledserver/internal/core/lifecycle"
	"ledserver/internal/logging"
	"ledserver/internal/metrics"
	"ledserver/internal/persist"
	"ledserver/internal/protocol"
	"ledserver/internal/renderer"
	"ledserver/pkg/types"

	"github.com/charmbracelet/log"
	"github.com/spf13/afero"
)

// ErrAllPortsFailed is returned by Start when no configured port could be bound.
var ErrAllPortsFailed = errors.New("no port could be opened")

type (
	// Server is one device-control server instance. It is single-use.
	Server struct {
		cfg     Config
		life    *lifecycle.Base
		logger  *log.Logger
		metrics *metrics.Metrics

		engine   renderer.Engine
		fs       afero.Fs
		store    *persist.Store
		manager  *animation.Manager
		registry *connection.Registry
	}

	// Option configures a Server.
	Option func(*Server)
)

// WithEngine replaces the default emulated strip.
func WithEngine(e renderer.Engine) Option {
	return func(s *Server) { s.engine = e }
}

// WithFs sets the filesystem snapshots are stored on.
func WithFs(fsys afero.Fs) Option {
	return func(s *Server) { s.fs = fsys }
}

// WithLogger sets the root logger.
func WithLogger(l *log.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMetrics sets the collectors shared by every component.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// New wires a Server. Nothing is bound or started until Start.
func New(cfg Config, opts ...Option) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = DefaultShutdownTimeout
	}

	s := &Server{
		cfg:    cfg,
		life:   lifecycle.New("server"),
		logger: logging.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = metrics.New()
	}
	if s.engine == nil {
		s.engine = renderer.NewEmulated(
			renderer.WithNumLEDs(cfg.NumLEDs),
			renderer.WithLogger(logging.Component(s.logger, "strip")),
		)
	}

	var persister persist.Persister = persist.Nop{}
	if cfg.PersistenceEnabled {
		if s.fs == nil {
			s.fs = afero.NewOsFs()
		}
		s.store = persist.NewStore(s.fs, cfg.PersistenceDir,
			persist.WithLogger(logging.Component(s.logger, "persist")))
		persister = s.store
	}

	s.registry = connection.NewRegistry(func(port types.ListenPort) (*connection.Connection, error) {
		return connection.New(cfg.connectionConfig(port),
			connection.WithHandler(s),
			connection.WithStateSource(s),
			connection.WithLogger(logging.Component(s.logger, "conn:"+port.String())),
			connection.WithMetrics(s.metrics),
		)
	})
	for _, port := range cfg.Ports {
		if _, err := s.registry.Add(port); err != nil {
			return nil, err
		}
	}

	s.manager = animation.NewManager(s.engine,
		animation.WithBroadcaster(s.registry),
		animation.WithPersister(persister),
		animation.WithLogger(logging.Component(s.logger, "animation")),
		animation.WithMetrics(s.metrics),
		animation.WithMaxStepsPerSecond(cfg.MaxStepsPerSecond),
		animation.WithPool(cfg.Workers, cfg.QueueSize),
	)
	return s, nil
}

// Start powers the strip, resumes snapshotted animations and then opens every
// port. A port that fails to bind is logged and skipped; Start fails only if
// all of them do.
func (s *Server) Start(ctx context.Context) error {
	if err := s.life.BeginStart(ctx); err != nil {
		return err
	}

	if err := s.engine.Start(); err != nil {
		err = fmt.Errorf("starting renderer: %w", err)
		s.abort(ctx, err)
		return err
	}

	if s.store != nil {
		res := persist.Replay(ctx, s.store, s.manager, s.logger)
		if len(res.Started) > 0 || len(res.Failed) > 0 || res.Skipped > 0 {
			s.logger.Info("replayed snapshots", "resumed", len(res.Started), "failed", len(res.Failed), "skipped", res.Skipped)
		}
	}

	failed := s.registry.OpenAll(ctx)
	for port, err := range failed {
		s.logger.Error("port unavailable", "port", port, "err", err)
	}
	if len(failed) == len(s.cfg.Ports) {
		err := fmt.Errorf("%w: %w", ErrAllPortsFailed, errors.Join(slices.Collect(maps.Values(failed))...))
		s.abort(ctx, err)
		return err
	}

	if s.cfg.MetricsAddress != "" {
		srv := metrics.NewServer(s.cfg.MetricsAddress, s.metrics, logging.Component(s.logger, "metrics"))
		if err := srv.Listen(); err != nil {
			s.logger.Error("metrics disabled", "err", err)
		} else {
			s.life.Go(srv.Serve)
		}
	}

	s.life.MarkRunning()
	s.logger.Info("server running", "ports", s.cfg.Ports, "animations", s.manager.Count())
	return nil
}

func (s *Server) abort(ctx context.Context, err error) {
	_ = s.registry.CloseAll()
	_ = s.manager.Shutdown(ctx)
	_ = s.engine.Stop()
	s.life.Fail(err)
}

// Stop closes every connection, stops all animations (keeping their
// snapshots) and powers the strip down. It waits at most ShutdownTimeout
// for animation tasks.
func (s *Server) Stop(ctx context.Context) error {
	if !s.life.BeginStop() {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
	defer cancel()

	errs := []error{
		s.registry.CloseAll(),
		s.manager.Shutdown(ctx),
		s.life.Wait(),
		s.engine.Stop(),
	}
	s.life.MarkStopped()
	s.logger.Info("server stopped")
	return errors.Join(errs...)
}

// Err delivers failures of background tasks such as the metrics listener.
func (s *Server) Err() <-chan error {
	return s.life.Err()
}

// State returns the lifecycle state.
func (s *Server) State() lifecycle.State {
	return s.life.State()
}

// Manager returns the animation manager.
func (s *Server) Manager() *animation.Manager {
	return s.manager
}

// Registry returns the connection registry.
func (s *Server) Registry() *connection.Registry {
	return s.registry
}

// Engine returns the rendering engine.
func (s *Server) Engine() renderer.Engine {
	return s.engine
}

// Running implements connection.StateSource.
func (s *Server) Running() []protocol.RunningAnimationParams {
	return s.manager.Running()
}

// Catalog implements connection.StateSource.
func (s *Server) Catalog() []protocol.AnimationInfo {
	return s.engine.SupportedAnimations()
}

