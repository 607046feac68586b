// SPDX-License-Identifier: MPL-2.0

package renderer

import (
	"context"
	"sync"
	"testing"
	"time"

	"ledserver/internal/protocol"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startedEmulated(t *testing.T, n int) *Emulated {
	t.Helper()
	e := NewEmulated(WithNumLEDs(n), WithRenderDelay(0))
	require.NoError(t, e.Start())
	t.Cleanup(func() { _ = e.Stop() })
	return e
}

func TestEmulated_CatalogIsSorted(t *testing.T) {
	t.Parallel()

	e := NewEmulated()
	names := make([]string, 0)
	for _, a := range e.SupportedAnimations() {
		names = append(names, a.Name)
	}
	assert.Equal(t, []string{"Alternate", "Blink", "Color", "Wipe"}, names)

	info, ok := e.Lookup("Color")
	require.True(t, ok)
	assert.True(t, info.OneShot)

	_, ok = e.Lookup("Nope")
	assert.False(t, ok)
}

func TestEmulated_ColorFillsSection(t *testing.T) {
	t.Parallel()

	e := startedEmulated(t, 10)
	_, err := e.CreateSection(protocol.Section{Name: "left", StartPixel: 0, EndPixel: 4})
	require.NoError(t, err)

	params := protocol.RunningAnimationParams{Animation: "Color", Colors: []uint32{0xFF0000}, Section: "left"}
	require.NoError(t, e.Run(t.Context(), params))

	px := e.CurrentColors()
	for i := range 5 {
		assert.Equal(t, uint32(0xFF0000), px[i], "pixel %d", i)
	}
	for i := 5; i < 10; i++ {
		assert.Zero(t, px[i], "pixel %d", i)
	}
}

func TestEmulated_WipeBackward(t *testing.T) {
	t.Parallel()

	e := startedEmulated(t, 4)
	params := protocol.RunningAnimationParams{
		Animation: "Wipe",
		Colors:    []uint32{7},
		Direction: protocol.DirectionBackward,
	}
	require.NoError(t, e.Step(t.Context(), params, 0))
	assert.Equal(t, []uint32{0, 0, 0, 7}, e.CurrentColors())

	require.NoError(t, e.Run(t.Context(), params))
	assert.Equal(t, []uint32{7, 7, 7, 7}, e.CurrentColors())
}

func TestEmulated_Errors(t *testing.T) {
	t.Parallel()

	e := startedEmulated(t, 8)

	err := e.Step(t.Context(), protocol.RunningAnimationParams{Animation: "Alternate", Colors: []uint32{1}}, 0)
	require.ErrorIs(t, err, ErrNotEnoughColors)

	err = e.Step(t.Context(), protocol.RunningAnimationParams{Animation: "Color", Colors: []uint32{1}, Section: "ghost"}, 0)
	require.ErrorIs(t, err, ErrUnknownSection)

	idle := NewEmulated()
	err = idle.Step(t.Context(), protocol.RunningAnimationParams{Animation: "Color", Colors: []uint32{1}}, 0)
	require.ErrorIs(t, err, ErrNotStarted)
}

func TestEmulated_CreateSection(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		section protocol.Section
		wantErr error
	}{
		{"valid", protocol.Section{Name: "a", StartPixel: 2, EndPixel: 5}, nil},
		{"nested", protocol.Section{Name: "b", StartPixel: 3, EndPixel: 4, Parent: WholeStrip}, nil},
		{"no name", protocol.Section{StartPixel: 0, EndPixel: 1}, ErrInvalidSection},
		{"past end", protocol.Section{Name: "c", StartPixel: 0, EndPixel: 10}, ErrInvalidSection},
		{"inverted", protocol.Section{Name: "d", StartPixel: 5, EndPixel: 2}, ErrInvalidSection},
		{"missing parent", protocol.Section{Name: "e", StartPixel: 0, EndPixel: 1, Parent: "ghost"}, ErrUnknownSection},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			e := NewEmulated(WithNumLEDs(10))
			got, err := e.CreateSection(tt.section)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.section, got)

			again, err := e.CreateSection(tt.section)
			require.NoError(t, err, "re-creating an identical section is a no-op")
			assert.Equal(t, got, again)
			assert.Len(t, e.Sections(), 2)
		})
	}
}

func TestEmulated_SectionsOrderedByStartThenName(t *testing.T) {
	t.Parallel()

	e := NewEmulated(WithNumLEDs(10))
	for _, sec := range []protocol.Section{
		{Name: "b", StartPixel: 2, EndPixel: 5},
		{Name: "a", StartPixel: 2, EndPixel: 4},
		{Name: "c", StartPixel: 0, EndPixel: 1},
	} {
		_, err := e.CreateSection(sec)
		require.NoError(t, err)
	}

	var names []string
	for _, sec := range e.Sections() {
		names = append(names, sec.Name)
	}
	assert.Equal(t, []string{"c", WholeStrip, "a", "b"}, names)
}

func TestEmulated_StepHonoursCancellation(t *testing.T) {
	t.Parallel()

	e := NewEmulated(WithNumLEDs(4), WithRenderDelay(time.Hour))
	require.NoError(t, e.Start())

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() {
		done <- e.Step(ctx, protocol.RunningAnimationParams{Animation: "Blink", Colors: []uint32{1}}, 0)
	}()
	cancel()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Step did not return after cancellation")
	}
}

func TestEmulated_ConcurrentSteps(t *testing.T) {
	t.Parallel()

	e := startedEmulated(t, 16)
	var wg sync.WaitGroup
	for i := range 8 {
		wg.Go(func() {
			params := protocol.RunningAnimationParams{Animation: "Alternate", Colors: []uint32{uint32(i), uint32(i + 1)}}
			for step := range 20 {
				assert.NoError(t, e.Step(t.Context(), params, step))
			}
		})
	}
	wg.Wait()
	e.Clear()
	assert.Equal(t, make([]uint32, 16), e.CurrentColors())
}
