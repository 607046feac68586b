// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"path/filepath"
	"testing"

	"ledserver/internal/issue"
	"ledserver/internal/persist"
	"ledserver/internal/protocol"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateList_Empty(t *testing.T) {
	t.Parallel()

	app := newTestApp(t, nil)
	require.NoError(t, app.run(context.Background(), "state", "list"))
	assert.Contains(t, app.stdout.String(), "No snapshots")
}

func TestStateList_ShowsSnapshots(t *testing.T) {
	t.Parallel()

	app := newTestApp(t, nil)
	store := persist.NewStore(app.Fs, persist.DefaultDir)
	require.NoError(t, store.Save(protocol.AnimationToRunParams{
		ID:         "kitchen",
		Animation:  "Wipe",
		Colors:     []uint32{0xFF0000},
		Continuous: true,
		Delay:      25,
	}))

	require.NoError(t, app.run(context.Background(), "state", "list"))
	out := app.stdout.String()
	assert.Contains(t, out, "kitchen")
	assert.Contains(t, out, "Wipe")
	assert.Contains(t, out, "#FF0000")
	assert.Contains(t, out, "25ms")
	assert.Contains(t, out, "(strip)")
}

func TestStateList_ReportsUnreadable(t *testing.T) {
	t.Parallel()

	app := newTestApp(t, nil)
	require.NoError(t, afero.WriteFile(app.Fs, filepath.Join(persist.DefaultDir, "broken.json"), []byte("{"), 0o644))

	err := app.run(context.Background(), "state", "list")
	var ae *issue.ActionableError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, issue.SnapshotUnreadableId, ae.Issue)
	assert.Contains(t, app.stderr.String(), "broken.json")
}

func TestStateRemove(t *testing.T) {
	t.Parallel()

	app := newTestApp(t, nil)
	store := persist.NewStore(app.Fs, persist.DefaultDir)
	require.NoError(t, store.Save(protocol.AnimationToRunParams{ID: "a", Animation: "Blink", Continuous: true}))

	require.NoError(t, app.run(context.Background(), "state", "remove", "a"))
	exists, err := afero.Exists(app.Fs, store.Path("a"))
	require.NoError(t, err)
	assert.False(t, exists)

	assert.Error(t, app.run(context.Background(), "state", "remove", "../escape"))
}
