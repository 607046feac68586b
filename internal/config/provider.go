// SPDX-License-Identifier: MPL-2.0

package config

import "context"

// LoadOptions defines explicit configuration loading inputs.
type LoadOptions struct {
	// ConfigFilePath forces loading from a specific config file when set.
	ConfigFilePath string
	// ConfigDirPath overrides the config directory lookup when set.
	ConfigDirPath string
	// EnvFile is the dotenv file read before environment overrides are
	// applied. Empty means ".env"; a missing file is not an error.
	EnvFile string
	// SkipEnv disables both the dotenv file and LEDSERVER_* overrides.
	SkipEnv bool
}

// Provider loads configuration from explicit options.
type Provider interface {
	Load(ctx context.Context, opts LoadOptions) (*Config, error)
	// Resolve is Load that also reports which file was used.
	Resolve(ctx context.Context, opts LoadOptions) (Loaded, error)
}

// Loaded is a Config together with the file it was read from, if any.
type Loaded struct {
	Config *Config
	// Path is empty when only defaults and environment were used.
	Path string
}

type fileProvider struct{}

// NewProvider creates a configuration provider.
func NewProvider() Provider {
	return &fileProvider{}
}

// Load reads configuration from the requested source.
func (p *fileProvider) Load(ctx context.Context, opts LoadOptions) (*Config, error) {
	loaded, err := p.Resolve(ctx, opts)
	if err != nil {
		return nil, err
	}
	return loaded.Config, nil
}

// Resolve reads configuration and reports the file it came from.
func (p *fileProvider) Resolve(ctx context.Context, opts LoadOptions) (Loaded, error) {
	cfg, path, err := loadWithOptions(ctx, opts)
	if err != nil {
		return Loaded{}, err
	}
	return Loaded{Config: cfg, Path: path}, nil
}
