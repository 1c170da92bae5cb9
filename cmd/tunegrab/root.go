// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"

	"github.com/tunegrab/tunegrab/internal/config"
)

// annotationSkipStartup marks commands that must not run the startup
// cleanup or the startup update check.
const annotationSkipStartup = "tunegrab/skip-startup"

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
	rootCmd := &cobra.Command{
		Use:   config.AppName,
		Short: "Download music from the command line",
		Long: TitleStyle.Render(config.AppName) + SubtitleStyle.Render(" - Download music from the command line") + `

tunegrab drives yt-dlp to fetch and tag audio. It keeps itself and its
downloader dependency up to date.

` + SubtitleStyle.Render("Examples:") + `
  tunegrab update check     Look for a newer tunegrab release
  tunegrab update apply     Download and install it
  tunegrab deps check       Check the installed yt-dlp version
  tunegrab history          List past update attempts
  tunegrab config show      Show current configuration`,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			if skipsStartup(cmd) {
				return
			}
			app.runStartupTasks(cmd.Context(), !isUnder(cmd, updateCommandName))
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().BoolVarP(&app.verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().StringVar(&app.configPath, "config", "", "config file (default is $HOME/.config/tunegrab/config.cue)")

	rootCmd.AddCommand(newUpdateCommand(app))
	rootCmd.AddCommand(newDepsCommand(app))
	rootCmd.AddCommand(newHistoryCommand(app))
	rootCmd.AddCommand(newConfigCommand(app))
	rootCmd.AddCommand(newCompletionCommand())
	rootCmd.AddCommand(newInternalCommand(app))

	return rootCmd
}

// getVersionString returns a formatted version string for display.
func getVersionString() string {
	if Version == "dev" {
		return "dev (built from source)"
	}
	return fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, BuildDate)
}

// Execute builds the production App and runs the command tree.
// This is called by main.main().
func Execute() {
	app := NewApp(Dependencies{})

	// Pass version via fang.WithVersion() since fang overrides rootCmd.Version
	if err := fang.Execute(
		context.Background(),
		NewRootCommand(app),
		fang.WithVersion(getVersionString()),
		fang.WithNotifySignal(os.Interrupt),
		fang.WithErrorHandler(func(w io.Writer, _ fang.Styles, err error) {
			renderError(w, err, app.verbose, app.issueStyle())
		}),
	); err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.Code)
		}
		os.Exit(ExitFailure)
	}
}

// skipsStartup reports whether cmd or one of its parents opts out of startup tasks.
func skipsStartup(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if _, ok := c.Annotations[annotationSkipStartup]; ok {
			return true
		}
	}
	return false
}

// isUnder reports whether cmd is the command named name or one of its children.
func isUnder(cmd *cobra.Command, name string) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Name() == name {
			return true
		}
	}
	return false
}

// runStartupTasks removes leftovers of a previous update and, when notify is
// set and update.check_on_startup is enabled, prints a notice about a newer
// release. Failures are logged and never abort the command.
func (a *App) runStartupTasks(ctx context.Context, notify bool) {
	cfg, err := a.LoadConfig(ctx)
	if err != nil {
		// The command itself reports configuration errors.
		return
	}

	u, err := a.updater(cfg.SelfUpdateConfig(a.version))
	if err != nil {
		a.Logger().Debug("startup cleanup skipped", "err", err)
		return
	}

	report := u.Cleanup(ctx)
	if n := len(report.Removed) + len(report.Locked) + len(report.Failed); n > 0 {
		a.Logger().Debug("startup cleanup finished",
			"removed", len(report.Removed), "locked", len(report.Locked), "failed", len(report.Failed))
	}

	if !notify || !cfg.Update.CheckOnStartup {
		return
	}
	info, err := u.Check(ctx)
	if err != nil {
		a.Logger().Debug("startup update check failed", "err", err)
		return
	}
	if info.Available {
		fmt.Fprintf(a.stderr, "%s tunegrab %s is available (running %s). Run %s to install it.\n",
			WarningStyle.Render("!"), CmdStyle.Render(info.Version), a.version, CmdStyle.Render("tunegrab update apply"))
	}
}

// issueStyle is the glamour style used for issue catalog entries.
func (a *App) issueStyle() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cfg != nil && a.cfg.UI.ColorScheme == config.ColorSchemeLight {
		return "light"
	}
	return "dark"
}
