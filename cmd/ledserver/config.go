// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"

	"ledserver/internal/config"

	"github.com/spf13/cobra"
)

func newConfigCommand(app *App) *cobra.Command {
	cfgCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage ledserver configuration",
		Long: `Manage ledserver configuration.

The config file is <user config dir>/ledserver/config.cue, falling back to
./config.cue. LEDSERVER_<SECTION>_<KEY> environment variables and a .env
file in the working directory override file values.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration as CUE",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			loaded, err := app.Config.Resolve(cmd.Context(), config.LoadOptions{ConfigFilePath: app.configPath})
			if err != nil {
				return &ExitError{Code: exitConfig, Err: err}
			}
			source := SubtitleStyle.Render("(defaults and environment)")
			if loaded.Path != "" {
				source = KeyStyle.Render(loaded.Path)
			}
			fmt.Fprintf(app.stderr, "%s %s\n\n", TitleStyle.Render("Config file:"), source)
			fmt.Fprint(app.stdout, config.GenerateCUE(loaded.Config))
			return nil
		},
	})

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "init [path]",
		Short: "Write a default configuration file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := app.configPath
			if len(args) == 1 {
				path = args[0]
			}
			if path == "" {
				var err error
				if path, err = config.DefaultPath(); err != nil {
					return err
				}
			}
			written, err := config.WriteDefault(path)
			if err != nil {
				return err
			}
			if !written {
				fmt.Fprintf(app.stdout, "%s %s\n", WarningStyle.Render("Config file already exists:"), path)
				return nil
			}
			fmt.Fprintf(app.stdout, "%s %s\n", SuccessStyle.Render("Created"), path)
			return nil
		},
	})

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Print the default configuration file path",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, err := config.DefaultPath()
			if err != nil {
				return err
			}
			fmt.Fprintln(app.stdout, path)
			return nil
		},
	})

	return cfgCmd
}
