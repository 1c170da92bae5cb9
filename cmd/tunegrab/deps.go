// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/tunegrab/tunegrab/internal/config"
	"github.com/tunegrab/tunegrab/internal/depcheck"
	"github.com/tunegrab/tunegrab/internal/tui"
)

func newDepsCommand(app *App) *cobra.Command {
	depsCmd := &cobra.Command{
		Use:   "deps",
		Short: "Check and upgrade the downloader dependency",
		Long: `Check and upgrade the downloader dependency.

tunegrab shells out to an external downloader (yt-dlp by default). The
installed version is read by running the tool, and the newest version is
read from its package index.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	depsCmd.AddCommand(newDepsCheckCommand(app))
	depsCmd.AddCommand(newDepsUpgradeCommand(app))

	return depsCmd
}

func newDepsCheckCommand(app *App) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Compare the installed and latest dependency versions",
		Args:  cobra.NoArgs,
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

			status, err := app.dependencyChecker(cfg).Check(ctx)
			if err != nil {
				return err
			}
			if format != outputTable {
				return writeStructured(app.stdout, format, status)
			}
			printDependencyStatus(app.stdout, status)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", string(outputTable), "output format: table, json or yaml")

	return cmd
}

func newDepsUpgradeCommand(app *App) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "upgrade",
		Short: "Install the latest dependency version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDepsUpgrade(cmd.Context(), app, yes)
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "upgrade without asking for confirmation")

	return cmd
}

func runDepsUpgrade(ctx context.Context, app *App, yes bool) error {
	cfg, err := app.LoadConfig(ctx)
	if err != nil {
		return err
	}
	checker := app.dependencyChecker(cfg)

	status, err := checker.Check(ctx)
	if err != nil {
		return err
	}
	if !status.UpdateAvailable {
		fmt.Fprintf(app.stdout, "%s %s %s is up to date.\n", SuccessStyle.Render("✓"), status.Name, status.Installed)
		return nil
	}

	if !yes {
		if !app.interactive() {
			return fmt.Errorf("upgrading %s: %w (pass --yes)", status.Name, errConfirmationRequired)
		}
		ok, err := app.confirm(tui.ConfirmOptions{
			Title:       fmt.Sprintf("Upgrade %s to %s?", status.Name, status.Latest),
			Description: describeInstalled(status),
			Default:     true,
			Config:      app.tuiConfig(cfg),
		})
		if errors.Is(err, tui.ErrCancelled) || (err == nil && !ok) {
			fmt.Fprintln(app.stdout, "Upgrade cancelled.")
			return nil
		}
		if err != nil {
			return err
		}
	}

	res, err := depcheck.NewInstaller(checker).InstallLatestDependency(ctx)
	if err != nil {
		return err
	}
	if res.OldVersion == "" {
		fmt.Fprintf(app.stdout, "%s Installed %s %s.\n", SuccessStyle.Render("✓"), status.Name, res.NewVersion)
	} else {
		fmt.Fprintf(app.stdout, "%s Upgraded %s %s → %s.\n", SuccessStyle.Render("✓"), status.Name, res.OldVersion, res.NewVersion)
	}
	return nil
}

// dependencyChecker builds the checker for the configured dependency.
func (a *App) dependencyChecker(cfg *config.Config) *depcheck.Checker {
	d := cfg.Dependency
	return depcheck.NewChecker(depcheck.Spec{
		Name:           d.Name,
		VersionURL:     d.VersionURL,
		VersionArgs:    d.VersionArgs,
		InstallCommand: d.InstallCommand,
	}, depcheck.WithRunner(a.runner), depcheck.WithLogger(a.Logger()))
}

func describeInstalled(s depcheck.Status) string {
	if s.Missing {
		return s.Name + " is not installed."
	}
	return fmt.Sprintf("Installed: %s", s.Installed)
}

func printDependencyStatus(w io.Writer, s depcheck.Status) {
	installed := s.Installed
	if s.Missing {
		installed = ErrorStyle.Render("not installed")
	}
	fmt.Fprintf(w, "%s %s\n", SubtitleStyle.Render("Dependency:"), s.Name)
	fmt.Fprintf(w, "%s  %s\n", SubtitleStyle.Render("Installed:"), installed)
	fmt.Fprintf(w, "%s     %s\n", SubtitleStyle.Render("Latest:"), s.Latest)
	fmt.Fprintln(w)

	if s.UpdateAvailable {
		fmt.Fprintf(w, "%s Run %s to install %s.\n", WarningStyle.Render("!"), CmdStyle.Render("tunegrab deps upgrade"), s.Latest)
		return
	}
	fmt.Fprintf(w, "%s %s is up to date.\n", SuccessStyle.Render("✓"), s.Name)
}
