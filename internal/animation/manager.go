// SPDX-License-Identifier: MPL-2.0

package animation

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"ledserver/internal/logging"
	"ledserver/internal/metrics"
	"ledserver/internal/persist"
	"ledserver/internal/protocol"
	"ledserver/internal/renderer"
	"ledserver/internal/worker"
	"ledserver/pkg/types"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// DefaultMaxStepsPerSecond caps how fast a continuous animation may step.
const DefaultMaxStepsPerSecond = 200

type (
	// Broadcaster fans a message out to every connected client.
	Broadcaster interface {
		Broadcast(d protocol.SendableData)
	}

	// Manager owns the registry of continuous animations and the pool that
	// runs finite ones. It is safe for concurrent use.
	Manager struct {
		engine      renderer.Engine
		broadcaster Broadcaster
		persister   persist.Persister
		logger      *log.Logger
		metrics     *metrics.Metrics
		stepLimit   rate.Limit
		workers     int
		queueSize   int
		now         func() time.Time

		pool *worker.Pool[job]

		ctx    context.Context
		cancel context.CancelFunc
		tasks  errgroup.Group
		active atomic.Int64

		mu       sync.Mutex
		closed   bool
		registry map[types.AnimationID]*running
		// stopping holds ended entries whose task has not returned yet.
		stopping map[types.AnimationID]*running
		// retained is the registry as it stood at Shutdown.
		retained map[types.AnimationID]*running

		// persistMu orders snapshot writes; acquired before mu.
		persistMu sync.Mutex
	}

	// Option configures a Manager.
	Option func(*Manager)

	job struct {
		params protocol.RunningAnimationParams
		runs   int
		mode   string
	}

	nopBroadcaster struct{}
)

// WithBroadcaster sets where start and end notifications go.
func WithBroadcaster(b Broadcaster) Option {
	return func(m *Manager) {
		if b != nil {
			m.broadcaster = b
		}
	}
}

// WithPersister sets the snapshot store for continuous animations.
func WithPersister(p persist.Persister) Option {
	return func(m *Manager) {
		if p != nil {
			m.persister = p
		}
	}
}

// WithLogger sets the manager logger.
func WithLogger(l *log.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithMetrics sets the collectors the manager updates.
func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Manager) {
		if mt != nil {
			m.metrics = mt
		}
	}
}

// WithMaxStepsPerSecond caps the step rate of each continuous animation.
// Zero or less removes the cap.
func WithMaxStepsPerSecond(n float64) Option {
	return func(m *Manager) {
		if n <= 0 {
			m.stepLimit = rate.Inf
			return
		}
		m.stepLimit = rate.Limit(n)
	}
}

// WithPool sizes the worker pool for one-shot and finite animations.
func WithPool(workers, queueSize int) Option {
	return func(m *Manager) {
		m.workers, m.queueSize = workers, queueSize
	}
}

// NewManager creates a Manager for engine and starts its worker pool.
func NewManager(engine renderer.Engine, opts ...Option) *Manager {
	m := &Manager{
		engine:      engine,
		broadcaster: nopBroadcaster{},
		persister:   persist.Nop{},
		logger:      logging.Discard(),
		stepLimit:   rate.Limit(DefaultMaxStepsPerSecond),
		workers:     worker.DefaultWorkers,
		queueSize:   worker.DefaultQueueSize,
		now:         time.Now,
		registry:    make(map[types.AnimationID]*running),
		stopping:    make(map[types.AnimationID]*running),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.metrics == nil {
		m.metrics = metrics.New()
	}

	m.ctx, m.cancel = context.WithCancel(context.Background())
	m.pool = worker.NewPool(m.workers, m.queueSize, m.runJob,
		worker.WithErrorHandler(m.jobFailed))
	// Start only fails when called twice.
	_ = m.pool.Start(m.ctx)
	return m
}

// Start runs params. The returned snapshot is also broadcast.
//
// Continuous animations are rejected with a *ConflictError when their id is
// already running. When the id was just ended, Start waits for the old task
// to return, bounded by ctx. A full worker pool yields worker.ErrQueueFull.
func (m *Manager) Start(ctx context.Context, params protocol.AnimationToRunParams) (protocol.RunningAnimationParams, error) {
	if err := ctx.Err(); err != nil {
		return protocol.RunningAnimationParams{}, err
	}
	info, err := m.validate(params)
	if err != nil {
		return protocol.RunningAnimationParams{}, err
	}

	if params.ID == "" {
		params.ID = types.NewAnimationID()
	} else if err := params.ID.Validate(); err != nil {
		return protocol.RunningAnimationParams{}, err
	}

	switch {
	case info.OneShot:
		return m.submit(params, 1, metrics.ModeOneShot)
	case params.Continuous:
		return m.startContinuous(ctx, params)
	default:
		return m.submit(params, max(params.RunCount, 1), metrics.ModeFinite)
	}
}

func (m *Manager) validate(params protocol.AnimationToRunParams) (protocol.AnimationInfo, error) {
	info, ok := m.engine.Lookup(params.Animation)
	if !ok {
		return protocol.AnimationInfo{}, &UnknownAnimationError{Name: params.Animation}
	}
	if len(params.Colors) < info.MinimumColors {
		return protocol.AnimationInfo{}, fmt.Errorf("%w: %s needs %d, got %d",
			renderer.ErrNotEnoughColors, info.Name, info.MinimumColors, len(params.Colors))
	}
	if params.Section != "" {
		if _, ok := m.engine.Section(params.Section); !ok {
			return protocol.AnimationInfo{}, fmt.Errorf("%w %q", renderer.ErrUnknownSection, params.Section)
		}
	}
	if err := params.Direction.Validate(); err != nil {
		return protocol.AnimationInfo{}, err
	}
	if params.RunCount < 0 {
		return protocol.AnimationInfo{}, fmt.Errorf("runCount must not be negative, got %d", params.RunCount)
	}
	return info, nil
}

func (m *Manager) snapshot(params protocol.AnimationToRunParams, runs int) protocol.RunningAnimationParams {
	section := cmp.Or(params.Section, renderer.WholeStrip)
	return protocol.RunningAnimationParams{
		ID:         params.ID,
		Animation:  params.Animation,
		Colors:     slices.Clone(params.Colors),
		Section:    section,
		Continuous: params.Continuous,
		RunCount:   runs,
		Delay:      params.Delay,
		Direction:  cmp.Or(params.Direction, protocol.DirectionForward),
		StartedAt:  m.now().UTC(),
		Source:     params,
	}
}

func (m *Manager) submit(params protocol.AnimationToRunParams, runs int, mode string) (protocol.RunningAnimationParams, error) {
	params.Continuous = false
	snap := m.snapshot(params, runs)

	m.mu.Lock()
	closed := m.closed
	m.mu.Unlock()
	if closed {
		return protocol.RunningAnimationParams{}, ErrShutdown
	}

	if err := m.pool.Submit(job{params: snap, runs: runs, mode: mode}); err != nil {
		return protocol.RunningAnimationParams{}, fmt.Errorf("starting %s: %w", params.Animation, err)
	}
	m.metrics.AnimationsStarted.WithLabelValues(mode).Inc()
	m.logger.Debug("animation queued", "id", snap.ID, "animation", snap.Animation, "mode", mode, "runs", runs)
	m.broadcaster.Broadcast(snap)
	return snap, nil
}

func (m *Manager) startContinuous(ctx context.Context, params protocol.AnimationToRunParams) (protocol.RunningAnimationParams, error) {
	m.mu.Lock()
	for {
		if m.closed {
			m.mu.Unlock()
			return protocol.RunningAnimationParams{}, ErrShutdown
		}
		if _, exists := m.registry[params.ID]; exists {
			m.mu.Unlock()
			return protocol.RunningAnimationParams{}, &ConflictError{ID: params.ID}
		}
		prev, draining := m.stopping[params.ID]
		if !draining {
			break
		}
		select {
		case <-prev.done:
			delete(m.stopping, params.ID)
			continue
		default:
		}
		m.mu.Unlock()
		m.logger.Debug("waiting for ended task", "id", params.ID)
		select {
		case <-prev.done:
		case <-ctx.Done():
			return protocol.RunningAnimationParams{}, fmt.Errorf("%w: previous task still stopping: %w",
				&ConflictError{ID: params.ID}, ctx.Err())
		}
		m.mu.Lock()
	}

	snap := m.snapshot(params, 0)
	taskCtx, cancel := context.WithCancel(m.ctx)
	entry := newRunning(snap, cancel)
	m.registry[params.ID] = entry
	m.active.Add(1)
	m.tasks.Go(func() error {
		m.loop(taskCtx, entry)
		return nil
	})
	count := len(m.registry)
	m.mu.Unlock()

	m.metrics.AnimationsStarted.WithLabelValues(metrics.ModeContinuous).Inc()
	m.metrics.AnimationsRunning.Set(float64(count))
	m.logger.Info("animation started", "id", snap.ID, "animation", snap.Animation, "section", snap.Section)

	m.syncSnapshot(params.ID)
	m.broadcaster.Broadcast(snap)
	return snap, nil
}

// loop renders steps until the entry is cancelled or a step fails.
func (m *Manager) loop(ctx context.Context, entry *running) {
	defer m.release(entry)
	defer m.active.Add(-1)

	limiter := rate.NewLimiter(m.stepLimit, 1)
	for step := 0; ; step++ {
		if ctx.Err() != nil {
			return
		}
		if err := m.safeStep(ctx, entry.params, step); err != nil {
			if ctx.Err() != nil {
				return
			}
			m.failContinuous(entry, err)
			return
		}
		entry.steps.Add(1)
		if err := limiter.Wait(ctx); err != nil {
			return
		}
	}
}

func (m *Manager) safeStep(ctx context.Context, params protocol.RunningAnimationParams, step int) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrRenderPanic, r)
		}
	}()
	return m.engine.Step(ctx, params, step)
}

// release drops entry from the stopping set and marks it stopped, waking any
// Start waiting to reuse its id.
func (m *Manager) release(entry *running) {
	m.mu.Lock()
	if m.stopping[entry.params.ID] == entry {
		delete(m.stopping, entry.params.ID)
	}
	m.mu.Unlock()
	entry.markStopped()
}

// failContinuous removes an entry whose task can no longer render.
func (m *Manager) failContinuous(entry *running, err error) {
	id := entry.params.ID
	m.metrics.AnimationFailures.Inc()
	m.logger.Error("animation failed", "id", id, "animation", entry.params.Animation, "err", err)

	m.mu.Lock()
	owned := m.registry[id] == entry
	if owned {
		delete(m.registry, id)
	}
	count := len(m.registry)
	m.mu.Unlock()
	if !owned {
		return
	}

	m.metrics.AnimationsRunning.Set(float64(count))
	m.syncSnapshot(id)
	m.broadcaster.Broadcast(protocol.EndAnimation{ID: id})
}

// End cancels the continuous animation id and removes it from the registry
// at once. The task observes the cancellation at its next step boundary and
// the id stays reserved until then.
func (m *Manager) End(id types.AnimationID) (protocol.EndAnimation, error) {
	m.mu.Lock()
	entry, ok := m.registry[id]
	if ok {
		delete(m.registry, id)
		if entry.State() != StateStopped {
			m.stopping[id] = entry
		}
	}
	count := len(m.registry)
	m.mu.Unlock()

	if !ok {
		return protocol.EndAnimation{}, &NotRunningError{ID: id}
	}

	entry.requestCancel()
	m.metrics.AnimationsRunning.Set(float64(count))
	m.metrics.AnimationsEnded.Inc()
	m.syncSnapshot(id)
	m.logger.Info("animation ended", "id", id, "animation", entry.params.Animation, "steps", entry.steps.Load())

	end := protocol.EndAnimation{ID: id}
	m.broadcaster.Broadcast(end)
	return end, nil
}

// EndAll ends every continuous animation and returns what was ended.
func (m *Manager) EndAll() []protocol.EndAnimation {
	m.mu.Lock()
	ids := slices.Sorted(maps.Keys(m.registry))
	m.mu.Unlock()

	ended := make([]protocol.EndAnimation, 0, len(ids))
	for _, id := range ids {
		end, err := m.End(id)
		if err != nil {
			// Ended concurrently.
			continue
		}
		ended = append(ended, end)
	}
	return ended
}

// syncSnapshot makes the snapshot of id match the registry: saved while the
// id is registered, deleted otherwise. After Shutdown the registry as it
// stood at Shutdown decides. Calls are serialized, so the last registry
// change always wins on disk.
func (m *Manager) syncSnapshot(id types.AnimationID) {
	m.persistMu.Lock()
	defer m.persistMu.Unlock()

	m.mu.Lock()
	entry := m.registry[id]
	if m.closed {
		entry = m.retained[id]
	}
	m.mu.Unlock()

	if entry != nil {
		if err := m.persister.Save(entry.params.Source); err != nil {
			m.metrics.PersistErrors.Inc()
			m.logger.Warn("could not save snapshot", "id", id, "err", err)
		}
		return
	}
	if err := m.persister.Delete(id); err != nil {
		m.metrics.PersistErrors.Inc()
		m.logger.Warn("could not delete snapshot", "id", id, "err", err)
	}
}

// Running returns the snapshots of every continuous animation, oldest first.
func (m *Manager) Running() []protocol.RunningAnimationParams {
	m.mu.Lock()
	out := make([]protocol.RunningAnimationParams, 0, len(m.registry))
	for _, entry := range m.registry {
		out = append(out, entry.params)
	}
	m.mu.Unlock()

	slices.SortFunc(out, func(a, b protocol.RunningAnimationParams) int {
		return cmp.Or(a.StartedAt.Compare(b.StartedAt), cmp.Compare(a.ID, b.ID))
	})
	return out
}

// Get returns the snapshot of the continuous animation id.
func (m *Manager) Get(id types.AnimationID) (protocol.RunningAnimationParams, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.registry[id]
	if !ok {
		return protocol.RunningAnimationParams{}, false
	}
	return entry.params, true
}

// StateOf returns the task state of the continuous animation id.
func (m *Manager) StateOf(id types.AnimationID) (State, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.registry[id]
	if !ok {
		return StateStopped, false
	}
	return entry.State(), true
}

// Count returns the number of registered continuous animations.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.registry)
}

// ActiveTasks returns how many continuous tasks have not returned yet. It can
// briefly exceed Count after End, until cancelled tasks reach a step boundary.
// A new task for an ended id never starts before the old one returns.
func (m *Manager) ActiveTasks() int {
	return int(m.active.Load())
}

// PoolStats reports the worker pool counters.
func (m *Manager) PoolStats() worker.Stats {
	return m.pool.Stats()
}

// Shutdown stops every task and waits for them, bounded by ctx. Snapshots are
// kept so the animations resume on the next start.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.retained = maps.Clone(m.registry)
	for _, entry := range m.registry {
		entry.requestCancel()
	}
	clear(m.registry)
	m.mu.Unlock()

	m.cancel()
	m.metrics.AnimationsRunning.Set(0)

	done := make(chan struct{})
	go func() {
		_ = m.tasks.Wait()
		close(done)
	}()

	var errs []error
	select {
	case <-done:
	case <-ctx.Done():
		errs = append(errs, fmt.Errorf("waiting for animation tasks: %w", ctx.Err()))
	}

	timeout := time.Second
	if deadline, ok := ctx.Deadline(); ok {
		timeout = max(time.Until(deadline), time.Millisecond)
	}
	if err := m.pool.Stop(timeout); err != nil {
		errs = append(errs, fmt.Errorf("stopping worker pool: %w", err))
	}
	return errors.Join(errs...)
}

func (m *Manager) runJob(ctx context.Context, j job) error {
	for range j.runs {
		if err := m.engine.Run(ctx, j.params); err != nil {
			return err
		}
	}
	if j.mode == metrics.ModeFinite {
		m.broadcaster.Broadcast(protocol.EndAnimation{ID: j.params.ID})
	}
	return nil
}

func (m *Manager) jobFailed(j job, err error) {
	if errors.Is(err, context.Canceled) {
		return
	}
	m.metrics.AnimationFailures.Inc()
	m.logger.Error("animation failed", "id", j.params.ID, "animation", j.params.Animation, "err", err)
	if j.mode == metrics.ModeFinite {
		m.broadcaster.Broadcast(protocol.EndAnimation{ID: j.params.ID})
	}
}

func (nopBroadcaster) Broadcast(protocol.SendableData) {}
