// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/tunegrab/tunegrab/internal/history"
	"github.com/tunegrab/tunegrab/internal/tui"
)

const defaultHistoryLimit = 20

// errHistoryDisabled is returned when history.enabled is false.
var errHistoryDisabled = errors.New("update history is disabled (history.enabled = false)")

func newHistoryCommand(app *App) *cobra.Command {
	var (
		limit  int
		output string
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List past update attempts",
		Long: `List past update attempts, newest first.

Every 'tunegrab update apply' records the versions involved, each state the
install passed through, the downloaded artifact and, once the new version has
started, when it was confirmed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			format, err := parseOutputFormat(output)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			cfg, err := app.LoadConfig(ctx)
			if err != nil {
				return err
			}
			if !cfg.History.Enabled {
				return errHistoryDisabled
			}
			path, err := cfg.HistoryPath()
			if err != nil {
				return err
			}
			store, err := app.openHistory(ctx, path, history.WithLogger(app.Logger()))
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			entries, err := store.List(ctx, limit)
			if err != nil {
				return err
			}
			if format != outputTable {
				if entries == nil {
					entries = []history.Entry{}
				}
				return writeStructured(app.stdout, format, entries)
			}
			printHistory(app.stdout, entries, time.Now())
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", defaultHistoryLimit, "maximum number of entries to show (0 for all)")
	cmd.Flags().StringVarP(&output, "output", "o", string(outputTable), "output format: table, json or yaml")

	return cmd
}

func printHistory(w io.Writer, entries []history.Entry, now time.Time) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "No update attempts recorded.")
		return
	}

	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		state := e.State
		if e.Degraded {
			state = ErrorStyle.Render(state + " (degraded)")
		}
		size := "-"
		if e.ByteSize > 0 {
			size = tui.FormatBytes(e.ByteSize)
		}
		confirmed := "-"
		if e.ConfirmedAt != nil {
			confirmed = tui.FormatAge(*e.ConfirmedAt, now)
		}
		rows = append(rows, []string{
			strconv.FormatInt(e.ID, 10),
			tui.FormatAge(e.StartedAt, now),
			e.FromVersion + " → " + e.ToVersion,
			e.RunMode,
			state,
			size,
			confirmed,
		})
	}
	fmt.Fprintln(w, tui.RenderTable([]string{"ID", "STARTED", "VERSIONS", "MODE", "STATE", "SIZE", "CONFIRMED"}, rows))

	for _, e := range entries {
		if e.Error != "" {
			fmt.Fprintf(w, "%s #%d: %s\n", WarningStyle.Render("!"), e.ID, e.Error)
		}
	}
}
