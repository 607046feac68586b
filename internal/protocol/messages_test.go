// SPDX-License-Identifier: MPL-2.0

package protocol

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshal_InjectsDiscriminant(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   SendableData
		want string
	}{
		{"end animation", EndAnimation{ID: "a1"}, `{"type":"EndAnimation","id":"a1"}`},
		{"command", Command{Command: "clear"}, `{"type":"Command","command":"clear"}`},
		{"message", Message{Message: "hi"}, `{"type":"Message","message":"hi"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := Marshal(tt.in)
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(got))
		})
	}
}

func TestUnmarshal_DispatchesOnDiscriminant(t *testing.T) {
	t.Parallel()

	started := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	all := []SendableData{
		AnimationToRunParams{Animation: "Alternate", Colors: []uint32{1, 2}, Section: "left", RunCount: 3, Delay: 20, Direction: DirectionBackward},
		EndAnimation{ID: "x"},
		RunningAnimationParams{ID: "x", Animation: "Alternate", Section: "left", Continuous: true, StartedAt: started},
		Section{Name: "left", StartPixel: 0, EndPixel: 29},
		StripInfo{NumLEDs: 240, RenderDelay: 10},
		ClientParams{SendAnimationStart: FrequencyInterval, SendAnimationEnd: FrequencyNever, SendSectionCreation: FrequencyRequest, BufferedMessageInterval: 200},
		Command{Command: "strip info"},
		Message{Message: "hello"},
		CurrentStripColor{Color: []uint32{0xFFFFFF, 0}},
		AnimationInfo{Name: "Color", OneShot: true, MinimumColors: 1},
	}

	for _, in := range all {
		t.Run(in.Kind().String(), func(t *testing.T) {
			t.Parallel()
			raw, err := Marshal(in)
			require.NoError(t, err)

			out, err := Unmarshal(raw)
			require.NoError(t, err)
			assert.Equal(t, in.Kind(), out.Kind())
			assert.Equal(t, in, out)
		})
	}
}

func TestUnmarshal_Errors(t *testing.T) {
	t.Parallel()

	_, err := Unmarshal([]byte(`{"type":"Nope"}`))
	require.ErrorIs(t, err, ErrUnknownKind)
	var uk *UnknownKindError
	require.ErrorAs(t, err, &uk)
	assert.Equal(t, Kind("Nope"), uk.Value)

	_, err = Unmarshal([]byte(`[1,2]`))
	require.ErrorIs(t, err, ErrMalformedFrame)

	_, err = Unmarshal([]byte(`{"type":"ClientParams","sendAnimationEnd":"SOMETIMES"}`))
	require.ErrorIs(t, err, ErrInvalidFrequency)
}

func TestClientParams_Defaults(t *testing.T) {
	t.Parallel()

	out, err := Unmarshal([]byte(`{"type":"ClientParams","sendAnimationEnd":"INTERVAL"}`))
	require.NoError(t, err)

	p, ok := out.(ClientParams)
	require.True(t, ok)
	assert.Equal(t, FrequencyImmediate, p.SendAnimationStart)
	assert.Equal(t, FrequencyInterval, p.SendAnimationEnd)
	assert.True(t, p.UsesInterval())
	assert.Equal(t, DefaultBufferedMessageInterval, p.Interval())

	freq, policed := p.FrequencyFor(KindEndAnimation)
	assert.True(t, policed)
	assert.Equal(t, FrequencyInterval, freq)

	_, policed = p.FrequencyFor(KindMessage)
	assert.False(t, policed)
}

func TestClientParams_IntervalBounds(t *testing.T) {
	t.Parallel()

	maxMs := MaxBufferedMessageInterval.Milliseconds()
	tests := []struct {
		name    string
		raw     string
		wantErr bool
		want    time.Duration
	}{
		{"unset", `{"type":"ClientParams","sendAnimationEnd":"INTERVAL"}`, false, DefaultBufferedMessageInterval},
		{"ceiling", fmt.Sprintf(`{"type":"ClientParams","bufferedMessageInterval":%d}`, maxMs), false, MaxBufferedMessageInterval},
		{"above ceiling", fmt.Sprintf(`{"type":"ClientParams","bufferedMessageInterval":%d}`, maxMs+1), true, 0},
		{"overflows duration", `{"type":"ClientParams","sendAnimationEnd":"INTERVAL","bufferedMessageInterval":9223372036855}`, true, 0},
		{"negative", `{"type":"ClientParams","bufferedMessageInterval":-1}`, true, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			out, err := Unmarshal([]byte(tt.raw))
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidInterval)
				return
			}
			require.NoError(t, err)
			p, ok := out.(ClientParams)
			require.True(t, ok)
			assert.Equal(t, tt.want, p.Interval())
		})
	}

	huge := ClientParams{BufferedMessageInterval: 9223372036855}
	assert.Equal(t, MaxBufferedMessageInterval, huge.Interval())
	assert.Positive(t, huge.Interval())
}

func TestAnimationToRunParams_WireNames(t *testing.T) {
	t.Parallel()

	raw := []byte(`{"type":"AnimationToRunParams","animation":"Wipe","colors":[16711680],"id":"w1","continuous":true,"runCount":2,"delay":15,"direction":"FORWARD"}`)
	out, err := Unmarshal(raw)
	require.NoError(t, err)

	want := AnimationToRunParams{
		Animation:  "Wipe",
		Colors:     []uint32{0xFF0000},
		ID:         "w1",
		Continuous: true,
		RunCount:   2,
		Delay:      15,
		Direction:  DirectionForward,
	}
	assert.Equal(t, want, out)

	var generic map[string]any
	encoded, err := Marshal(out)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(encoded, &generic))
	assert.Equal(t, "AnimationToRunParams", generic["type"])
}

func TestDirection_Validate(t *testing.T) {
	t.Parallel()

	require.NoError(t, Direction("").Validate())
	require.NoError(t, DirectionForward.Validate())
	require.ErrorIs(t, Direction("SIDEWAYS").Validate(), ErrInvalidDirection)
}
