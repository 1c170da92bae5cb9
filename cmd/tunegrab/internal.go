// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/tunegrab/tunegrab/internal/config"
	"github.com/tunegrab/tunegrab/internal/selfupdate"
)

// newInternalCommand creates the hidden `tunegrab internal` command tree.
// Its subcommands are started by tunegrab itself during an update and skip
// the startup tasks.
func newInternalCommand(app *App) *cobra.Command {
	internalCmd := &cobra.Command{
		Use:         "internal",
		Short:       "Internal commands (not for direct use)",
		Hidden:      true,
		Annotations: map[string]string{annotationSkipStartup: "true"},
	}

	internalCmd.AddCommand(newSwapHelperCommand(app))
	internalCmd.AddCommand(newPostUpdateCommand(app))

	return internalCmd
}

// newSwapHelperCommand runs a helper-mode swap plan. The helper is a detached
// copy of the old executable, so it logs to a file next to the plan.
func newSwapHelperCommand(app *App) *cobra.Command {
	var planPath string

	cmd := &cobra.Command{
		Use:    "swap-helper",
		Short:  "Swap the executable once the updating process has exited",
		Hidden: true,
		Args:   cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logPath := selfupdate.Config{AppName: config.AppName, TempDir: filepath.Dir(planPath)}.HelperLogPath()

			var w io.Writer = app.stderr
			//nolint:gosec // The log path is derived from the plan location.
			if f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644); err == nil {
				defer func() { _ = f.Close() }()
				w = f
			}
			logger := log.NewWithOptions(w, log.Options{
				Prefix:          "swap-helper",
				Level:           log.DebugLevel,
				ReportTimestamp: true,
			})

			outcome, err := selfupdate.NewHelper(logger).Run(cmd.Context(), planPath)
			if err != nil {
				logger.Error("swap failed", "err", err)
				// Nobody reads a detached helper's stderr; the log file has the details.
				return &ExitError{Code: exitCodeFor(err)}
			}
			logger.Info("swap finished", "state", outcome.State, "backup", outcome.Backup, "pid", outcome.PID)
			return nil
		},
	}

	cmd.Flags().StringVar(&planPath, "plan", "", "path of the swap plan")
	_ = cmd.MarkFlagRequired("plan")

	return cmd
}

// newPostUpdateCommand is the first command run by a freshly installed
// binary. It confirms the update cycle and removes leftovers of the swap.
func newPostUpdateCommand(app *App) *cobra.Command {
	var (
		from  string
		to    string
		cycle int64
	)

	cmd := &cobra.Command{
		Use:    "post-update",
		Short:  "Finish an update after the new version has started",
		Hidden: true,
		Args:   cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg, err := app.LoadConfig(ctx)
			if err != nil {
				return err
			}
			logger := app.Logger()

			if cycle > 0 {
				if ledger := app.openLedger(ctx, cfg); ledger != nil {
					if err := ledger.Confirm(ctx, cycle); err != nil {
						logger.Warn("could not confirm update cycle", "cycle", cycle, "err", err)
					}
					_ = ledger.Close()
				}
			}

			u, err := app.updater(cfg.SelfUpdateConfig(app.version))
			if err != nil {
				return err
			}
			report := u.Cleanup(ctx)
			logger.Debug("post-update cleanup finished",
				"removed", len(report.Removed), "locked", len(report.Locked), "failed", len(report.Failed))

			fmt.Fprintf(app.stdout, "%s tunegrab updated from %s to %s.\n", SuccessStyle.Render("✓"), from, to)
			return nil
		},
	}

	cmd.Flags().StringVar(&from, "from", "", "version that ran the update")
	cmd.Flags().StringVar(&to, "to", "", "version that was installed")
	cmd.Flags().Int64Var(&cycle, "cycle", 0, "update history entry to confirm")

	return cmd
}
