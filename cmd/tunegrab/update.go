// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/tunegrab/tunegrab/internal/config"
	"github.com/tunegrab/tunegrab/internal/issue"
	"github.com/tunegrab/tunegrab/internal/selfupdate"
	"github.com/tunegrab/tunegrab/internal/tui"
)

const updateCommandName = "update"

// releaseNotesWidth is the wrap width for release notes.
const releaseNotesWidth = 80

// errConfirmationRequired is returned when an install needs approval and no
// terminal is available to ask for it.
var errConfirmationRequired = errors.New("confirmation required")

type (
	// updateCheckReport is the structured result of `update check`.
	updateCheckReport struct {
		CurrentVersion string `json:"current_version" yaml:"current_version"`
		LatestVersion  string `json:"latest_version,omitempty" yaml:"latest_version,omitempty"`
		Available      bool   `json:"available" yaml:"available"`
		Constrained    bool   `json:"constrained,omitempty" yaml:"constrained,omitempty"`
		NoReleases     bool   `json:"no_releases,omitempty" yaml:"no_releases,omitempty"`
		RunMode        string `json:"run_mode" yaml:"run_mode"`
		InstallMethod  string `json:"install_method" yaml:"install_method"`
		UpgradeCommand string `json:"upgrade_command,omitempty" yaml:"upgrade_command,omitempty"`
		ReleaseURL     string `json:"release_url,omitempty" yaml:"release_url,omitempty"`
		PublishedAt    string `json:"published_at,omitempty" yaml:"published_at,omitempty"`
	}

	// updateApplyParams holds the flags of `update apply`.
	updateApplyParams struct {
		target string
		yes    bool
		force  bool
	}
)

func newUpdateCommand(app *App) *cobra.Command {
	updateCmd := &cobra.Command{
		Use:   updateCommandName,
		Short: "Check for and install tunegrab updates",
		Long: `Check for and install tunegrab updates.

Releases are discovered from GitHub. In binary mode the running executable is
swapped for the release asset matching this platform and tunegrab restarts;
in source mode the allow-listed files of the checkout are refreshed from the
release source archive.

Installs made by a package manager (Homebrew, Scoop, go install) are never
overwritten; tunegrab prints the package manager command instead.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	updateCmd.AddCommand(newUpdateCheckCommand(app))
	updateCmd.AddCommand(newUpdateApplyCommand(app))

	return updateCmd
}

func newUpdateCheckCommand(app *App) *cobra.Command {
	var (
		target string
		output string
	)

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Check whether a newer release is available",
		Example: `  tunegrab update check
  tunegrab update check --version v1.4.0
  tunegrab update check --output json`,
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
			u, err := app.updater(cfg.SelfUpdateConfig(app.version))
			if err != nil {
				return withExitCode(err)
			}
			info, err := checkRelease(ctx, u, target)
			if err != nil {
				return withExitCode(err)
			}

			report := newUpdateCheckReport(app.version, u, info)
			if format != outputTable {
				return writeStructured(app.stdout, format, report)
			}
			printUpdateCheck(app.stdout, report)
			if info.Available {
				printReleaseNotes(app.stdout, info, app.tuiConfig(cfg).Theme, app.Logger().Debug)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&target, "version", "", "check a specific release tag instead of the latest")
	cmd.Flags().StringVarP(&output, "output", "o", string(outputTable), "output format: table, json or yaml")

	return cmd
}

func newUpdateApplyCommand(app *App) *cobra.Command {
	var params updateApplyParams

	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Download and install the newest release",
		Long: `Download and install the newest release.

The release is downloaded to the update directory, validated and then
installed. A failed binary swap is rolled back; if the rollback itself fails
tunegrab reports both file locations so the install can be repaired by hand.`,
		Example: `  tunegrab update apply
  tunegrab update apply --yes
  tunegrab update apply --version v1.3.2 --force`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runUpdateApply(cmd.Context(), app, params)
		},
	}

	cmd.Flags().StringVar(&params.target, "version", "", "install a specific release tag instead of the latest")
	cmd.Flags().BoolVarP(&params.yes, "yes", "y", false, "install without asking for confirmation")
	cmd.Flags().BoolVar(&params.force, "force", false, "install even when the release is not newer than the running version")

	return cmd
}

func runUpdateApply(ctx context.Context, app *App, params updateApplyParams) error {
	cfg, err := app.LoadConfig(ctx)
	if err != nil {
		return err
	}
	suCfg := cfg.SelfUpdateConfig(app.version)
	u, err := app.updater(suCfg)
	if err != nil {
		return withExitCode(err)
	}

	if m := u.InstallMethod(); m.Managed() && u.RunMode() == selfupdate.RunModeBinary {
		fmt.Fprintf(app.stdout, "%s tunegrab was installed via %s and must be upgraded with it:\n\n  %s\n",
			WarningStyle.Render("!"), m, CmdStyle.Render(selfupdate.UpgradeCommand(m, config.AppName)))
		return nil
	}

	info, err := checkRelease(ctx, u, params.target)
	if err != nil {
		return withExitCode(err)
	}
	switch {
	case info.NoReleases:
		fmt.Fprintln(app.stdout, "No releases have been published yet.")
		return nil
	case !info.Available && !params.force:
		printNotInstalling(app.stdout, app.version, info, params.target != "")
		return nil
	}

	fmt.Fprintf(app.stdout, "Updating tunegrab %s → %s\n", app.version, SuccessStyle.Render(info.Version))

	if !params.yes {
		proceed, err := confirmInstall(app, cfg, info)
		if err != nil || !proceed {
			return err
		}
	}

	var cycle int64
	ledger := app.openLedger(ctx, cfg)
	if ledger != nil {
		defer func() { _ = ledger.Close() }()
		cycle, err = ledger.Begin(ctx, app.version, info.Version, u.RunMode())
		if err != nil {
			app.Logger().Warn("could not record update cycle", "err", err)
			cycle = 0
		}
	}
	if cycle > 0 {
		suCfg.RelaunchArgs = append(selfupdate.PostUpdateArgs(app.version, info.Version), "--cycle", strconv.FormatInt(cycle, 10))
		u, err = app.updater(suCfg,
			selfupdate.WithStateListener(ledger.Listener(cycle)),
			selfupdate.WithDownloadListener(func(res *selfupdate.DownloadResult) {
				if err := ledger.RecordArtifact(ctx, cycle, res); err != nil {
					app.Logger().Warn("could not record downloaded artifact", "err", err)
				}
			}),
		)
		if err != nil {
			if recErr := ledger.RecordState(ctx, cycle, selfupdate.StateFailed, err); recErr != nil {
				app.Logger().Warn("could not record update state", "err", recErr)
			}
			return withExitCode(err)
		}
	}

	progress := tui.NewDownloadProgress(app.tuiConfig(cfg), "tunegrab "+info.Version, cfg.UI.Progress)
	outcome, err := u.Apply(ctx, info, progress.Update)
	progress.Done()
	if err != nil {
		return withExitCode(err)
	}

	printInstallOutcome(app.stdout, info, outcome)
	return nil
}

// checkRelease resolves the latest acceptable release, or target when set.
func checkRelease(ctx context.Context, u *selfupdate.Updater, target string) (selfupdate.ReleaseInfo, error) {
	if target != "" {
		return u.CheckVersion(ctx, target)
	}
	return u.Check(ctx)
}

// confirmInstall asks before installing. Without a terminal it fails with a
// hint to pass --yes. A cancelled prompt is not an error.
func confirmInstall(app *App, cfg *config.Config, info selfupdate.ReleaseInfo) (bool, error) {
	if !app.interactive() {
		return false, issue.NewErrorContext().
			WithOperation("install update").
			WithResource(info.Version).
			WithSuggestion("Run 'tunegrab update apply --yes' to install without a prompt").
			Wrap(errConfirmationRequired).
			Build()
	}

	tc := app.tuiConfig(cfg)
	printReleaseNotes(tc.Output, info, tc.Theme, app.Logger().Debug)

	ok, err := app.confirm(tui.ConfirmOptions{
		Title:       fmt.Sprintf("Install tunegrab %s?", info.Version),
		Description: fmt.Sprintf("Currently running %s.", app.version),
		Affirmative: "Install",
		Negative:    "Cancel",
		Default:     true,
		Config:      tc,
	})
	if errors.Is(err, tui.ErrCancelled) || (err == nil && !ok) {
		fmt.Fprintln(app.stdout, "Update cancelled.")
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func newUpdateCheckReport(current string, u *selfupdate.Updater, info selfupdate.ReleaseInfo) updateCheckReport {
	method := u.InstallMethod()
	report := updateCheckReport{
		CurrentVersion: current,
		LatestVersion:  info.Version,
		Available:      info.Available,
		Constrained:    info.Constrained,
		NoReleases:     info.NoReleases,
		RunMode:        string(u.RunMode()),
		InstallMethod:  method.String(),
		ReleaseURL:     info.HTMLURL,
		PublishedAt:    info.PublishedAt,
	}
	if method.Managed() {
		report.UpgradeCommand = selfupdate.UpgradeCommand(method, config.AppName)
	}
	return report
}

func printUpdateCheck(w io.Writer, r updateCheckReport) {
	fmt.Fprintf(w, "%s %s\n", SubtitleStyle.Render("Current version:"), r.CurrentVersion)
	if r.LatestVersion != "" {
		fmt.Fprintf(w, "%s  %s\n", SubtitleStyle.Render("Latest version:"), r.LatestVersion)
	}
	fmt.Fprintf(w, "%s     %s (%s)\n", SubtitleStyle.Render("Run mode:"), r.RunMode, r.InstallMethod)
	fmt.Fprintln(w)

	switch {
	case r.NoReleases:
		fmt.Fprintln(w, "No releases have been published yet.")
	case r.Available && r.UpgradeCommand != "":
		fmt.Fprintf(w, "%s An update is available. Upgrade with:\n\n  %s\n",
			WarningStyle.Render("!"), CmdStyle.Render(r.UpgradeCommand))
	case r.Available:
		fmt.Fprintf(w, "%s An update is available. Run %s to install it.\n",
			WarningStyle.Render("!"), CmdStyle.Render("tunegrab update apply"))
	case r.Constrained:
		fmt.Fprintf(w, "%s tunegrab is up to date within update.constraint; a newer release is excluded by it.\n",
			SuccessStyle.Render("✓"))
	default:
		fmt.Fprintf(w, "%s tunegrab is up to date.\n", SuccessStyle.Render("✓"))
	}
	if r.ReleaseURL != "" && r.Available {
		fmt.Fprintf(w, "  %s\n", r.ReleaseURL)
	}
}

// printReleaseNotes writes the rendered changelog. Rendering failures are
// passed to debug and never block the command.
func printReleaseNotes(w io.Writer, info selfupdate.ReleaseInfo, theme tui.Theme, debug func(any, ...any)) {
	notes, err := tui.RenderReleaseNotes(info.ReleaseNotes, theme, releaseNotesWidth)
	if err != nil {
		debug("release notes not rendered", "err", err)
		return
	}
	if notes != "" {
		fmt.Fprint(w, notes)
	}
}

func printNotInstalling(w io.Writer, current string, info selfupdate.ReleaseInfo, explicit bool) {
	switch {
	case explicit:
		fmt.Fprintf(w, "Release %s is not newer than the running %s. Pass %s to install it anyway.\n",
			info.Version, current, CmdStyle.Render("--force"))
	case info.Constrained:
		fmt.Fprintf(w, "%s tunegrab %s is the newest release allowed by update.constraint.\n",
			SuccessStyle.Render("✓"), current)
	default:
		fmt.Fprintf(w, "%s tunegrab %s is up to date.\n", SuccessStyle.Render("✓"), current)
	}
}

func printInstallOutcome(w io.Writer, info selfupdate.ReleaseInfo, out *selfupdate.InstallOutcome) {
	switch {
	case out.Source != nil:
		fmt.Fprintf(w, "%s Updated %d file(s) in %s to %s.\n",
			SuccessStyle.Render("✓"), len(out.Source.Updated), out.Source.Dir, info.Version)
		if len(out.Source.Missing) > 0 {
			fmt.Fprintf(w, "%s Not present in the release archive: %v\n", WarningStyle.Render("!"), out.Source.Missing)
		}
		fmt.Fprintln(w, "Restart tunegrab to use the new version.")
	case out.HelperPID > 0:
		fmt.Fprintf(w, "%s Installing tunegrab %s in the background (helper pid %d); it restarts when done.\n",
			SuccessStyle.Render("✓"), info.Version, out.HelperPID)
	case out.Swap != nil && out.Swap.PID > 0:
		fmt.Fprintf(w, "%s Installed tunegrab %s. Restarting…\n", SuccessStyle.Render("✓"), info.Version)
	default:
		fmt.Fprintf(w, "%s Installed tunegrab %s.\n", SuccessStyle.Render("✓"), info.Version)
	}
}
