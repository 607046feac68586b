// SPDX-License-Identifier: MPL-2.0

package renderer

import (
	"cmp"
	"context"
	"fmt"
	"io"
	"maps"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"ledserver/internal/protocol"

	"github.com/charmbracelet/log"
)

const (
	// DefaultNumLEDs is the strip length of an Emulated strip when none is configured.
	DefaultNumLEDs = 240
	// DefaultRenderDelay is the step delay used when params do not set one.
	DefaultRenderDelay = 10 * time.Millisecond
)

type (
	// Emulated is an in-memory strip. Every animation paints the pixels of
	// its section and sleeps for its step delay.
	Emulated struct {
		numLEDs     int
		renderDelay time.Duration
		logger      *log.Logger

		started atomic.Bool

		mu       sync.RWMutex
		pixels   []uint32
		sections map[string]protocol.Section

		catalog map[string]emulatedAnimation
	}

	// EmulatedOption configures an Emulated strip.
	EmulatedOption func(*Emulated)

	emulatedAnimation struct {
		info protocol.AnimationInfo
		// stepsPerRun returns how many steps make one full pass over n pixels.
		stepsPerRun func(n int) int
		// paint renders step into pixels (already narrowed to the section).
		paint func(pixels []uint32, colors []uint32, step int, backward bool)
	}
)

// WithNumLEDs sets the strip length.
func WithNumLEDs(n int) EmulatedOption {
	return func(e *Emulated) {
		if n > 0 {
			e.numLEDs = n
		}
	}
}

// WithRenderDelay sets the default delay between steps.
func WithRenderDelay(d time.Duration) EmulatedOption {
	return func(e *Emulated) {
		if d >= 0 {
			e.renderDelay = d
		}
	}
}

// WithLogger sets the engine logger.
func WithLogger(l *log.Logger) EmulatedOption {
	return func(e *Emulated) {
		if l != nil {
			e.logger = l
		}
	}
}

// NewEmulated creates an Emulated strip with the built-in catalog.
func NewEmulated(opts ...EmulatedOption) *Emulated {
	e := &Emulated{
		numLEDs:     DefaultNumLEDs,
		renderDelay: DefaultRenderDelay,
		logger:      log.New(io.Discard),
		catalog:     emulatedCatalog(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.pixels = make([]uint32, e.numLEDs)
	e.sections = map[string]protocol.Section{
		WholeStrip: {Name: WholeStrip, StartPixel: 0, EndPixel: e.numLEDs - 1},
	}
	return e
}

func emulatedCatalog() map[string]emulatedAnimation {
	fill := func(pixels []uint32, c uint32) {
		for i := range pixels {
			pixels[i] = c
		}
	}
	return map[string]emulatedAnimation{
		"Color": {
			info:        protocol.AnimationInfo{Name: "Color", Abbr: "COL", Description: "Set the section to one color", MinimumColors: 1, OneShot: true},
			stepsPerRun: func(int) int { return 1 },
			paint: func(px, colors []uint32, _ int, _ bool) {
				fill(px, colors[0])
			},
		},
		"Wipe": {
			info:        protocol.AnimationInfo{Name: "Wipe", Abbr: "WIP", Description: "Paint the section one pixel at a time", MinimumColors: 1},
			stepsPerRun: func(n int) int { return max(n, 1) },
			paint: func(px, colors []uint32, step int, backward bool) {
				if len(px) == 0 {
					return
				}
				i := step % len(px)
				if backward {
					i = len(px) - 1 - i
				}
				px[i] = colors[(step/len(px))%len(colors)]
			},
		},
		"Alternate": {
			info:        protocol.AnimationInfo{Name: "Alternate", Abbr: "ALT", Description: "Alternate the section between colors", MinimumColors: 2},
			stepsPerRun: func(int) int { return 2 },
			paint: func(px, colors []uint32, step int, _ bool) {
				fill(px, colors[step%len(colors)])
			},
		},
		"Blink": {
			info:        protocol.AnimationInfo{Name: "Blink", Abbr: "BLK", Description: "Blink the section on and off", MinimumColors: 1},
			stepsPerRun: func(int) int { return 2 },
			paint: func(px, colors []uint32, step int, _ bool) {
				if step%2 == 0 {
					fill(px, colors[0])
				} else {
					fill(px, 0)
				}
			},
		},
	}
}

// Start implements Engine.
func (e *Emulated) Start() error {
	if e.started.CompareAndSwap(false, true) {
		e.logger.Info("emulated strip started", "leds", e.numLEDs)
	}
	return nil
}

// Stop implements Engine.
func (e *Emulated) Stop() error {
	if e.started.CompareAndSwap(true, false) {
		e.Clear()
		e.logger.Info("emulated strip stopped")
	}
	return nil
}

// SupportedAnimations implements Engine.
func (e *Emulated) SupportedAnimations() []protocol.AnimationInfo {
	names := slices.Sorted(maps.Keys(e.catalog))
	out := make([]protocol.AnimationInfo, 0, len(names))
	for _, n := range names {
		out = append(out, e.catalog[n].info)
	}
	return out
}

// Lookup implements Engine.
func (e *Emulated) Lookup(name string) (protocol.AnimationInfo, bool) {
	a, ok := e.catalog[name]
	return a.info, ok
}

// Step implements Engine.
func (e *Emulated) Step(ctx context.Context, params protocol.RunningAnimationParams, step int) error {
	if !e.started.Load() {
		return ErrNotStarted
	}
	anim, section, err := e.resolve(params)
	if err != nil {
		return err
	}

	e.mu.Lock()
	anim.paint(e.pixels[section.StartPixel:section.EndPixel+1], params.Colors, step, params.Direction == protocol.DirectionBackward)
	e.mu.Unlock()

	return e.sleep(ctx, params.Delay)
}

// Run implements Engine.
func (e *Emulated) Run(ctx context.Context, params protocol.RunningAnimationParams) error {
	anim, section, err := e.resolve(params)
	if err != nil {
		return err
	}
	steps := anim.stepsPerRun(section.Len())
	for i := range steps {
		if err := e.Step(ctx, params, i); err != nil {
			return err
		}
	}
	return nil
}

func (e *Emulated) resolve(params protocol.RunningAnimationParams) (emulatedAnimation, protocol.Section, error) {
	anim, ok := e.catalog[params.Animation]
	if !ok {
		return emulatedAnimation{}, protocol.Section{}, fmt.Errorf("animation %q is not in the catalog", params.Animation)
	}
	if len(params.Colors) < anim.info.MinimumColors {
		return emulatedAnimation{}, protocol.Section{}, fmt.Errorf("%w: %s needs %d, got %d",
			ErrNotEnoughColors, anim.info.Name, anim.info.MinimumColors, len(params.Colors))
	}
	name := params.Section
	if name == "" {
		name = WholeStrip
	}
	section, ok := e.Section(name)
	if !ok {
		return emulatedAnimation{}, protocol.Section{}, fmt.Errorf("%w %q", ErrUnknownSection, name)
	}
	return anim, section, nil
}

func (e *Emulated) sleep(ctx context.Context, delayMillis int) error {
	d := e.renderDelay
	if delayMillis > 0 {
		d = time.Duration(delayMillis) * time.Millisecond
	}
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Sections implements Engine.
func (e *Emulated) Sections() []protocol.Section {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := slices.Collect(maps.Values(e.sections))
	slices.SortFunc(out, func(a, b protocol.Section) int {
		return cmp.Or(cmp.Compare(a.StartPixel, b.StartPixel), cmp.Compare(a.Name, b.Name))
	})
	return out
}

// Section implements Engine.
func (e *Emulated) Section(name string) (protocol.Section, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	s, ok := e.sections[name]
	return s, ok
}

// CreateSection implements Engine. Pixel indices are absolute. When Parent is
// set the range must lie inside the parent.
func (e *Emulated) CreateSection(s protocol.Section) (protocol.Section, error) {
	if s.Name == "" {
		return protocol.Section{}, fmt.Errorf("%w: name is required", ErrInvalidSection)
	}
	if s.StartPixel < 0 || s.EndPixel >= e.numLEDs || s.Len() == 0 {
		return protocol.Section{}, fmt.Errorf("%w %q: range %d-%d outside strip of %d LEDs",
			ErrInvalidSection, s.Name, s.StartPixel, s.EndPixel, e.numLEDs)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if s.Parent != "" {
		parent, ok := e.sections[s.Parent]
		if !ok {
			return protocol.Section{}, fmt.Errorf("%w %q (parent of %q)", ErrUnknownSection, s.Parent, s.Name)
		}
		if s.StartPixel < parent.StartPixel || s.EndPixel > parent.EndPixel {
			return protocol.Section{}, fmt.Errorf("%w %q: range %d-%d outside parent %q",
				ErrInvalidSection, s.Name, s.StartPixel, s.EndPixel, parent.Name)
		}
	}
	if existing, ok := e.sections[s.Name]; ok {
		if existing == s {
			return existing, nil
		}
		return protocol.Section{}, fmt.Errorf("%w: section %q already exists", ErrInvalidSection, s.Name)
	}

	e.sections[s.Name] = s
	e.logger.Debug("section created", "name", s.Name, "start", s.StartPixel, "end", s.EndPixel)
	return s, nil
}

// StripInfo implements Engine.
func (e *Emulated) StripInfo() protocol.StripInfo {
	return protocol.StripInfo{
		NumLEDs:     e.numLEDs,
		RenderDelay: int(e.renderDelay / time.Millisecond),
	}
}

// CurrentColors implements Engine.
func (e *Emulated) CurrentColors() []uint32 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return slices.Clone(e.pixels)
}

// Clear implements Engine.
func (e *Emulated) Clear() {
	e.mu.Lock()
	defer e.mu.Unlock()
	clear(e.pixels)
}
