// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"ledserver/internal/issue"

	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"
)

var (
	// Version is the semantic version (set via -ldflags).
	Version = "dev"
	// Commit is the git commit hash (set via -ldflags).
	Commit = "unknown"
	// BuildDate is the build timestamp (set via -ldflags).
	BuildDate = "unknown"
)

// NewRootCommand builds the command tree around app.
func NewRootCommand(app *App) *cobra.Command {
	root := &cobra.Command{
		Use:   "ledserver",
		Short: "TCP control server for addressable LED strips",
		Long: TitleStyle.Render("ledserver") + SubtitleStyle.Render(" - TCP control server for addressable LED strips") + `

ledserver accepts clients on one or more TCP ports, runs the animations they
request and broadcasts animation and section events back to every client
according to each client's delivery policy. Continuous animations survive
restarts through snapshot files.

` + SubtitleStyle.Render("Examples:") + `
  ledserver serve                    Serve on the configured ports
  ledserver serve --port 5001 -p 5002
  ledserver config init              Write a default config file
  ledserver state list               Show persisted animations`,
		SilenceUsage: true,
	}
	root.SetOut(app.stdout)
	root.SetErr(app.stderr)

	root.PersistentFlags().StringVar(&app.configPath, "config", "", "config file (default is <user config dir>/ledserver/config.cue)")
	root.PersistentFlags().BoolVarP(&app.verbose, "verbose", "v", false, "enable verbose output")

	root.AddCommand(newServeCommand(app))
	root.AddCommand(newConfigCommand(app))
	root.AddCommand(newStateCommand(app))
	return root
}

// getVersionString returns a formatted version string for display.
func getVersionString() string {
	if Version == "dev" {
		return "dev (built from source)"
	}
	return fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, BuildDate)
}

// Execute runs the CLI and exits the process with the resulting code.
func Execute() {
	app := NewApp(Dependencies{})
	if err := fang.Execute(
		context.Background(),
		NewRootCommand(app),
		fang.WithVersion(getVersionString()),
		fang.WithNotifySignal(os.Interrupt),
		fang.WithErrorHandler(func(w io.Writer, styles fang.Styles, err error) {
			if !writeActionableError(w, err, app.verbose) {
				fang.DefaultErrorHandler(w, styles, err)
			}
		}),
	); err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			os.Exit(int(exitErr.Code))
		}
		os.Exit(int(exitFailure))
	}
}

// writeActionableError renders err with its suggestions and linked issue.
// It reports false when err carries no ActionableError.
func writeActionableError(w io.Writer, err error, verbose bool) bool {
	var ae *issue.ActionableError
	if !errors.As(err, &ae) {
		return false
	}
	fmt.Fprintln(w, ErrorStyle.Render("Error: ")+ae.Format(verbose))
	if ae.Issue != 0 {
		if rendered, rerr := issue.Render(ae.Issue, "dark"); rerr == nil {
			fmt.Fprint(w, rendered)
		}
	}
	return true
}
