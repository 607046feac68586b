// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"net"
	"testing"
	"time"

	"ledserver/internal/config"
	"ledserver/internal/issue"
	"ledserver/internal/server"
	"ledserver/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testServeConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Ports = []types.ListenPort{0}
	cfg.Server.PollInterval = 10 * time.Millisecond
	cfg.Server.ShutdownTimeout = time.Second
	cfg.Persistence.Enabled = false
	cfg.Log.Level = "error"
	return cfg
}

func TestServeFlags_Apply(t *testing.T) {
	t.Parallel()

	app := newTestApp(t, nil)
	cmd := newServeCommand(app.App)
	require.NoError(t, cmd.ParseFlags([]string{
		"-p", "6001", "--port", "6002",
		"--host", "127.0.0.1",
		"--metrics-address", ":9100",
		"--no-persist",
		"--framing", "delimited",
	}))

	var flags serveFlags
	flags.ports = []int{6001, 6002}
	flags.host = "127.0.0.1"
	flags.metricsAddr = ":9100"
	flags.noPersist = true
	flags.framing = "delimited"

	cfg := config.DefaultConfig()
	require.NoError(t, flags.apply(cmd, cfg))
	assert.Equal(t, []types.ListenPort{6001, 6002}, cfg.Server.Ports)
	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, ":9100", cfg.Metrics.Address)
	assert.False(t, cfg.Persistence.Enabled)
	assert.Equal(t, "delimited", cfg.Protocol.Framing)
}

func TestServeFlags_ApplyKeepsUnsetValues(t *testing.T) {
	t.Parallel()

	app := newTestApp(t, nil)
	cmd := newServeCommand(app.App)
	require.NoError(t, cmd.ParseFlags(nil))

	cfg := config.DefaultConfig()
	require.NoError(t, serveFlags{}.apply(cmd, cfg))
	assert.Equal(t, config.DefaultConfig(), cfg)
}

func TestServeFlags_ApplyRejectsInvalid(t *testing.T) {
	t.Parallel()

	app := newTestApp(t, nil)
	cmd := newServeCommand(app.App)
	require.NoError(t, cmd.ParseFlags([]string{"--framing", "xml"}))

	err := serveFlags{framing: "xml"}.apply(cmd, config.DefaultConfig())
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}

func TestServe_RunsUntilCanceled(t *testing.T) {
	t.Parallel()

	app := newTestApp(t, testServeConfig())
	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	require.NoError(t, app.run(ctx, "serve"))
}

func TestServe_AllPortsBusy(t *testing.T) {
	t.Parallel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	cfg := testServeConfig()
	cfg.Server.Ports = []types.ListenPort{types.ListenPort(ln.Addr().(*net.TCPAddr).Port)}
	app := newTestApp(t, cfg)

	err = app.run(context.Background(), "serve")
	var exitErr *ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, exitFailure, exitErr.Code)
	assert.ErrorIs(t, err, server.ErrAllPortsFailed)

	var ae *issue.ActionableError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, issue.AllPortsFailedId, ae.Issue)
}
