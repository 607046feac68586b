// SPDX-License-Identifier: MPL-2.0

package config

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"ledserver/internal/issue"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	// AppName is the application name.
	AppName = "ledserver"
	// ConfigFileName is the name of the config file (without extension).
	ConfigFileName = "config"
	// ConfigFileExt is the config file extension.
	ConfigFileExt = "cue"
	// EnvPrefix prefixes every environment override.
	EnvPrefix = "LEDSERVER"
	// DefaultEnvFile is read from the working directory when present.
	DefaultEnvFile = ".env"

	maxConfigFileSize = 1 << 20
)

//go:embed config_schema.cue
var configSchema string

// ConfigDir returns the ledserver configuration directory under the
// platform's user config directory.
//
//nolint:revive // ConfigDir is more descriptive than Dir for external callers
func ConfigDir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve user config directory: %w", err)
	}
	return filepath.Join(base, AppName), nil
}

// loadWithOptions performs option-driven config loading without touching
// package-level state.
func loadWithOptions(ctx context.Context, opts LoadOptions) (*Config, string, error) {
	select {
	case <-ctx.Done():
		return nil, "", fmt.Errorf("load config canceled: %w", ctx.Err())
	default:
	}

	v := viper.New()
	setDefaults(v, DefaultConfig())

	if !opts.SkipEnv {
		if err := loadEnvFile(opts.EnvFile); err != nil {
			return nil, "", issue.NewErrorContext().
				WithOperation("load environment file").
				WithResource(envFileOrDefault(opts.EnvFile)).
				WithSuggestion("Each line must be KEY=value").
				Wrap(err).
				BuildError()
		}
		v.SetEnvPrefix(EnvPrefix)
		v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
		v.AutomaticEnv()
	}

	path, err := resolveConfigFile(opts)
	if err != nil {
		return nil, "", err
	}
	if path != "" {
		if err := loadCUEIntoViper(v, path); err != nil {
			return nil, "", issue.NewErrorContext().
				WithOperation("load configuration").
				WithResource(path).
				WithSuggestion("Check that the file contains valid CUE syntax").
				WithSuggestion("Verify the values match the schema shown by 'ledserver config init'").
				WithIssue(issue.ConfigLoadFailedId).
				Wrap(err).
				BuildError()
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, "", fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", issue.NewErrorContext().
			WithOperation("validate configuration").
			WithResource(path).
			WithSuggestion("Check LEDSERVER_* environment variables as well as the config file").
			WithIssue(issue.InvalidConfigId).
			Wrap(err).
			BuildError()
	}

	return &cfg, path, nil
}

// setDefaults registers every key so AutomaticEnv can override it during
// Unmarshal.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.ports", d.Server.Ports)
	v.SetDefault("server.poll_interval", d.Server.PollInterval)
	v.SetDefault("server.write_timeout", d.Server.WriteTimeout)
	v.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout)
	v.SetDefault("protocol.framing", d.Protocol.Framing)
	v.SetDefault("protocol.delimiter", d.Protocol.Delimiter)
	v.SetDefault("protocol.max_frame_size", d.Protocol.MaxFrameSize)
	v.SetDefault("persistence.enabled", d.Persistence.Enabled)
	v.SetDefault("persistence.dir", d.Persistence.Dir)
	v.SetDefault("animation.max_steps_per_second", d.Animation.MaxStepsPerSecond)
	v.SetDefault("animation.workers", d.Animation.Workers)
	v.SetDefault("animation.queue_size", d.Animation.QueueSize)
	v.SetDefault("strip.num_leds", d.Strip.NumLEDs)
	v.SetDefault("metrics.address", d.Metrics.Address)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.report_timestamp", d.Log.ReportTimestamp)
}

// resolveConfigFile returns the file to load, or "" when defaults apply.
// An explicit ConfigFilePath must exist; otherwise the config directory is
// tried before the working directory.
func resolveConfigFile(opts LoadOptions) (string, error) {
	if opts.ConfigFilePath != "" {
		if !fileExists(opts.ConfigFilePath) {
			return "", issue.NewErrorContext().
				WithOperation("load configuration").
				WithResource(opts.ConfigFilePath).
				WithSuggestion("Verify the file path is correct").
				WithSuggestion("Use 'ledserver config init' to write a default file").
				WithIssue(issue.ConfigLoadFailedId).
				Wrap(fmt.Errorf("config file not found: %s", opts.ConfigFilePath)).
				BuildError()
		}
		return opts.ConfigFilePath, nil
	}

	name := ConfigFileName + "." + ConfigFileExt
	dir := opts.ConfigDirPath
	if dir == "" {
		var err error
		if dir, err = ConfigDir(); err != nil {
			return "", err
		}
	}
	for _, candidate := range []string{filepath.Join(dir, name), name} {
		if fileExists(candidate) {
			return candidate, nil
		}
	}
	return "", nil
}

func envFileOrDefault(path string) string {
	if path == "" {
		return DefaultEnvFile
	}
	return path
}

// loadEnvFile exports variables from a dotenv file without overriding ones
// already set in the process environment.
func loadEnvFile(path string) error {
	path = envFileOrDefault(path)
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	return nil
}

// loadCUEIntoViper parses a CUE file, validates it against the #Config schema,
// and merges its contents into Viper.
func loadCUEIntoViper(v *viper.Viper, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if len(data) > maxConfigFileSize {
		return fmt.Errorf("%s: file size %d bytes exceeds maximum %d bytes", path, len(data), maxConfigFileSize)
	}

	ctx := cuecontext.New()
	schemaValue := ctx.CompileString(configSchema)
	if schemaValue.Err() != nil {
		return fmt.Errorf("internal error: failed to compile config schema: %w", schemaValue.Err())
	}

	userValue := ctx.CompileBytes(data, cue.Filename(path))
	if userValue.Err() != nil {
		return formatCUEError(userValue.Err(), path)
	}

	schema := schemaValue.LookupPath(cue.ParsePath("#Config"))
	unified := schema.Unify(userValue)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return formatCUEError(err, path)
	}

	var configMap map[string]any
	if err := unified.Decode(&configMap); err != nil {
		return formatCUEError(err, path)
	}

	// MergeConfigMap keeps defaults underneath and env overrides on top.
	if err := v.MergeConfigMap(configMap); err != nil {
		return fmt.Errorf("failed to merge config: %w", err)
	}
	return nil
}

// formatCUEError flattens CUE errors into "<file>: <path>: <message>" lines.
func formatCUEError(err error, filePath string) error {
	list := cueerrors.Errors(err)
	if len(list) == 0 {
		return fmt.Errorf("%s: %w", filePath, err)
	}
	lines := make([]string, 0, len(list))
	for _, e := range list {
		path := strings.Join(cueerrors.Path(e), ".")
		msg := e.Error()
		if path != "" && strings.HasPrefix(msg, path) {
			msg = strings.TrimSpace(strings.TrimPrefix(strings.TrimPrefix(msg, path), ":"))
		}
		if path != "" {
			msg = path + ": " + msg
		}
		lines = append(lines, msg)
	}
	if len(lines) == 1 {
		return fmt.Errorf("%s: %s", filePath, lines[0])
	}
	return fmt.Errorf("%s: validation failed:\n  %s", filePath, strings.Join(lines, "\n  "))
}

// fileExists checks if a file exists and is not a directory
func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// WriteDefault writes GenerateCUE(DefaultConfig()) to path unless a file is
// already there. It reports whether a file was written.
func WriteDefault(path string) (bool, error) {
	if fileExists(path) {
		return false, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return false, fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(GenerateCUE(DefaultConfig())), 0o644); err != nil {
		return false, fmt.Errorf("failed to write config file: %w", err)
	}
	return true, nil
}

// DefaultPath is the config file location used by WriteDefault callers.
func DefaultPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, ConfigFileName+"."+ConfigFileExt), nil
}

// GenerateCUE generates a CUE representation of the configuration
func GenerateCUE(cfg *Config) string {
	var sb strings.Builder

	sb.WriteString("// ledserver configuration\n")
	sb.WriteString("// Environment variables LEDSERVER_<SECTION>_<KEY> override these values.\n\n")

	sb.WriteString("server: {\n")
	fmt.Fprintf(&sb, "\thost: %q\n", cfg.Server.Host)
	ports := make([]string, 0, len(cfg.Server.Ports))
	for _, p := range cfg.Server.Ports {
		ports = append(ports, p.String())
	}
	fmt.Fprintf(&sb, "\tports: [%s]\n", strings.Join(ports, ", "))
	fmt.Fprintf(&sb, "\tpoll_interval: %q\n", formatDuration(cfg.Server.PollInterval))
	fmt.Fprintf(&sb, "\twrite_timeout: %q\n", formatDuration(cfg.Server.WriteTimeout))
	fmt.Fprintf(&sb, "\tshutdown_timeout: %q\n", formatDuration(cfg.Server.ShutdownTimeout))
	sb.WriteString("}\n")

	sb.WriteString("\nprotocol: {\n")
	fmt.Fprintf(&sb, "\tframing: %q\n", cfg.Protocol.Framing)
	fmt.Fprintf(&sb, "\tdelimiter: %q\n", cfg.Protocol.Delimiter)
	fmt.Fprintf(&sb, "\tmax_frame_size: %d\n", cfg.Protocol.MaxFrameSize)
	sb.WriteString("}\n")

	sb.WriteString("\npersistence: {\n")
	fmt.Fprintf(&sb, "\tenabled: %v\n", cfg.Persistence.Enabled)
	fmt.Fprintf(&sb, "\tdir: %q\n", cfg.Persistence.Dir)
	sb.WriteString("}\n")

	sb.WriteString("\nanimation: {\n")
	fmt.Fprintf(&sb, "\tmax_steps_per_second: %v\n", cfg.Animation.MaxStepsPerSecond)
	fmt.Fprintf(&sb, "\tworkers: %d\n", cfg.Animation.Workers)
	fmt.Fprintf(&sb, "\tqueue_size: %d\n", cfg.Animation.QueueSize)
	sb.WriteString("}\n")

	sb.WriteString("\nstrip: {\n")
	fmt.Fprintf(&sb, "\tnum_leds: %d\n", cfg.Strip.NumLEDs)
	sb.WriteString("}\n")

	sb.WriteString("\nmetrics: {\n")
	sb.WriteString("\t// host:port, empty disables the listener\n")
	fmt.Fprintf(&sb, "\taddress: %q\n", cfg.Metrics.Address)
	sb.WriteString("}\n")

	sb.WriteString("\nlog: {\n")
	fmt.Fprintf(&sb, "\tlevel: %q\n", cfg.Log.Level)
	fmt.Fprintf(&sb, "\treport_timestamp: %v\n", cfg.Log.ReportTimestamp)
	sb.WriteString("}\n")

	return sb.String()
}

// formatDuration drops the trailing zero units time.Duration.String keeps
// ("5m0s" becomes "5m").
func formatDuration(d time.Duration) string {
	s := d.String()
	if strings.HasSuffix(s, "m0s") {
		s = strings.TrimSuffix(s, "0s")
	}
	if strings.HasSuffix(s, "h0m") {
		s = strings.TrimSuffix(s, "0m")
	}
	return s
}
