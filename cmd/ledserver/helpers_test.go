// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"bytes"
	"context"
	"testing"

	"ledserver/internal/config"

	"github.com/spf13/afero"
)

type staticProvider struct {
	cfg  *config.Config
	path string
	err  error
}

func (p staticProvider) Load(ctx context.Context, opts config.LoadOptions) (*config.Config, error) {
	loaded, err := p.Resolve(ctx, opts)
	return loaded.Config, err
}

func (p staticProvider) Resolve(context.Context, config.LoadOptions) (config.Loaded, error) {
	if p.err != nil {
		return config.Loaded{}, p.err
	}
	cfg := *p.cfg
	return config.Loaded{Config: &cfg, Path: p.path}, nil
}

type testApp struct {
	*App
	stdout *bytes.Buffer
	stderr *bytes.Buffer
}

func newTestApp(t *testing.T, cfg *config.Config) testApp {
	t.Helper()
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	var stdout, stderr bytes.Buffer
	app := NewApp(Dependencies{
		Config: staticProvider{cfg: cfg},
		Fs:     afero.NewMemMapFs(),
		Stdout: &stdout,
		Stderr: &stderr,
	})
	return testApp{App: app, stdout: &stdout, stderr: &stderr}
}

func (a testApp) run(ctx context.Context, args ...string) error {
	root := NewRootCommand(a.App)
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}
