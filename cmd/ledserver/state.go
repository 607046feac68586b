// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"ledserver/internal/issue"
	"ledserver/internal/persist"
	"ledserver/internal/protocol"
	"ledserver/pkg/types"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"
)

func newStateCommand(app *App) *cobra.Command {
	stateCmd := &cobra.Command{
		Use:   "state",
		Short: "Inspect persisted continuous animations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	stateCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List snapshots that serve will resume",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := app.store(cmd)
			if err != nil {
				return err
			}
			snapshots, errs := store.Load()
			if len(snapshots) == 0 && len(errs) == 0 {
				fmt.Fprintln(app.stdout, SubtitleStyle.Render("No snapshots in "+store.Dir()))
				return nil
			}
			if len(snapshots) > 0 {
				fmt.Fprintln(app.stdout, snapshotTable(snapshots))
			}
			for _, e := range errs {
				fmt.Fprintln(app.stderr, WarningStyle.Render("unreadable: ")+e.Error())
			}
			if len(errs) > 0 {
				return issue.NewErrorContext().
					WithOperation("read snapshots").
					WithResource(store.Dir()).
					WithIssue(issue.SnapshotUnreadableId).
					Wrap(fmt.Errorf("%d snapshot(s) could not be read", len(errs))).
					BuildError()
			}
			return nil
		},
	})

	stateCmd.AddCommand(&cobra.Command{
		Use:   "remove <id>...",
		Short: "Delete snapshots so serve no longer resumes them",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := app.store(cmd)
			if err != nil {
				return err
			}
			for _, arg := range args {
				id := types.AnimationID(arg)
				if err := id.Validate(); err != nil {
					return err
				}
				if err := store.Delete(id); err != nil {
					return err
				}
				fmt.Fprintf(app.stdout, "%s %s\n", SuccessStyle.Render("Removed"), KeyStyle.Render(arg))
			}
			return nil
		},
	})

	return stateCmd
}

// store opens the snapshot directory named by the loaded configuration.
func (a *App) store(cmd *cobra.Command) (*persist.Store, error) {
	cfg, err := a.loadConfig(cmd.Context())
	if err != nil {
		return nil, err
	}
	return persist.NewStore(a.Fs, cfg.Persistence.Dir), nil
}

func snapshotTable(snapshots []protocol.AnimationToRunParams) string {
	t := table.New().
		Headers("ID", "ANIMATION", "SECTION", "COLORS", "DELAY", "DIRECTION").
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return TitleStyle.PaddingRight(1)
			}
			return lipgloss.NewStyle().PaddingRight(1)
		})
	for _, s := range snapshots {
		section := s.Section
		if section == "" {
			section = "(strip)"
		}
		colors := make([]string, 0, len(s.Colors))
		for _, c := range s.Colors {
			colors = append(colors, fmt.Sprintf("#%06X", c))
		}
		delay := "-"
		if s.Delay > 0 {
			delay = strconv.Itoa(s.Delay) + "ms"
		}
		direction := string(s.Direction)
		if direction == "" {
			direction = string(protocol.DirectionForward)
		}
		t.Row(string(s.ID), s.Animation, section, strings.Join(colors, " "), delay, direction)
	}
	return t.Render()
}
