// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tunegrab/tunegrab/internal/config"
	"github.com/tunegrab/tunegrab/internal/issue"
)

// ErrUnknownConfigKey is returned by `config set` for a key it cannot change.
var ErrUnknownConfigKey = errors.New("unknown configuration key")

// settableKeys lists the keys accepted by `config set`, in display order.
//
//nolint:gochecknoglobals // Read-only lookup table.
var settableKeys = []string{
	"update.check_on_startup",
	"update.constraint",
	"update.run_mode",
	"update.swap_mode",
	"update.verify_checksums",
	"ui.color_scheme",
	"ui.progress",
	"log.level",
	"history.enabled",
}

// newConfigCommand creates the `tunegrab config` command tree.
func newConfigCommand(app *App) *cobra.Command {
	cfgCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage tunegrab configuration",
		Long: `Manage tunegrab configuration.

Configuration is stored in:
  - Linux: ~/.config/tunegrab/config.cue
  - macOS: ~/Library/Application Support/tunegrab/config.cue
  - Windows: %APPDATA%\tunegrab\config.cue

Environment variables prefixed with TUNEGRAB_ override file values, e.g.
TUNEGRAB_UPDATE_SWAP_MODE=helper. The GitHub token is read from
TUNEGRAB_GITHUB_TOKEN or GITHUB_TOKEN only.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return showConfig(cmd.Context(), app)
		},
	})

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Create default configuration file",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return initConfig(app.stdout)
		},
	})

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show configuration file path",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return showConfigPath(app.stdout)
		},
	})

	cfgCmd.AddCommand(&cobra.Command{
		Use:       "set <key> <value>",
		Short:     "Set a configuration value",
		Long:      "Set a configuration value and save it to the config file.\n\nSupported keys:\n  " + strings.Join(settableKeys, "\n  "),
		Args:      cobra.ExactArgs(2),
		ValidArgs: settableKeys,
		RunE: func(cmd *cobra.Command, args []string) error {
			return setConfigValue(cmd.Context(), app, args[0], args[1])
		},
	})

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "dump",
		Short: "Output raw configuration as CUE",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := app.LoadConfig(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprint(app.stdout, config.GenerateCUE(cfg))
			return nil
		},
	})

	return cfgCmd
}

func showConfig(ctx context.Context, app *App) error {
	cfg, source, err := config.LoadWithSource(ctx, config.LoadOptions{ConfigFilePath: app.configPath})
	if err != nil {
		return err
	}

	w := app.stdout
	keyStyle := CmdStyle
	valueStyle := SuccessStyle
	kv := func(key string, value any) {
		fmt.Fprintf(w, "  %s: %s\n", key, valueStyle.Render(fmt.Sprint(value)))
	}
	section := func(name string) {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "%s:\n", keyStyle.Render(name))
	}

	fmt.Fprintln(w, TitleStyle.Render("Current Configuration"))
	fmt.Fprintln(w)
	if source != "" {
		fmt.Fprintf(w, "%s: %s\n", keyStyle.Render("Config file"), source)
	} else {
		fmt.Fprintf(w, "%s: %s\n", keyStyle.Render("Config file"), SubtitleStyle.Render("(using defaults)"))
	}

	section("update")
	kv("repository", cfg.Update.Owner+"/"+cfg.Update.Repo)
	kv("api_base_url", cfg.Update.APIBaseURL)
	kv("constraint", orNone(cfg.Update.Constraint))
	kv("verify_checksums", cfg.Update.VerifyChecksums)
	kv("swap_mode", cfg.Update.SwapMode)
	kv("run_mode", cfg.Update.RunMode)
	kv("check_on_startup", cfg.Update.CheckOnStartup)
	kv("discovery_timeout", cfg.Update.DiscoveryTimeout)
	kv("download_timeout", cfg.Update.DownloadTimeout)
	kv("temp_dir", orNone(cfg.Update.TempDir))
	if cfg.GitHubToken != "" {
		kv("github_token", "(set from environment)")
	}

	section("source")
	kv("dir", orNone(cfg.Source.Dir))
	kv("files", strings.Join(cfg.Source.Files, ", "))

	section("dependency")
	kv("name", cfg.Dependency.Name)
	kv("version_url", cfg.Dependency.VersionURL)
	kv("install_command", strings.Join(cfg.Dependency.InstallCommand, " "))

	section("ui")
	kv("color_scheme", cfg.UI.ColorScheme)
	kv("progress", cfg.UI.Progress)

	section("log")
	kv("level", cfg.Log.Level)

	section("history")
	kv("enabled", cfg.History.Enabled)
	if path, err := cfg.HistoryPath(); err == nil {
		kv("path", path)
	}

	return nil
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}

func initConfig(w io.Writer) error {
	path, created, err := config.CreateDefaultConfig()
	if err != nil {
		return issue.NewErrorContext().
			WithOperation("create configuration").
			WithSuggestion("Check that the config directory is writable").
			Wrap(err).
			Build()
	}
	if !created {
		fmt.Fprintf(w, "%s Configuration already exists at %s\n", WarningStyle.Render("!"), path)
		return nil
	}
	fmt.Fprintf(w, "%s Created default configuration at %s\n", SuccessStyle.Render("✓"), path)
	return nil
}

func showConfigPath(w io.Writer) error {
	cfgDir, err := config.ConfigDir()
	if err != nil {
		return err
	}
	cfgPath, err := config.ConfigFilePath()
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "Config directory: %s\n", cfgDir)
	fmt.Fprintf(w, "Config file: %s\n", cfgPath)
	return nil
}

func setConfigValue(ctx context.Context, app *App, key, value string) error {
	cfg, err := app.LoadConfig(ctx)
	if err != nil {
		return err
	}
	updated := *cfg

	if err := applyConfigValue(&updated, key, value); err != nil {
		return err
	}
	if valid, errs := updated.IsValid(); !valid {
		return issue.NewErrorContext().
			WithOperation("set configuration").
			WithResource(key).
			WithSuggestion(fmt.Sprintf("Run 'tunegrab config set %s <value>' with a valid value", key)).
			Wrap(errors.Join(errs...)).
			Build()
	}
	if err := config.Save(&updated); err != nil {
		return err
	}

	fmt.Fprintf(app.stdout, "%s Set %s = %s\n", SuccessStyle.Render("✓"), key, value)
	return nil
}

// applyConfigValue parses value into the field named by key.
func applyConfigValue(cfg *config.Config, key, value string) error {
	if !slices.Contains(settableKeys, key) {
		return fmt.Errorf("%w %q (supported: %s)", ErrUnknownConfigKey, key, strings.Join(settableKeys, ", "))
	}

	parseBool := func() (bool, error) {
		b, err := strconv.ParseBool(value)
		if err != nil {
			return false, fmt.Errorf("%s: expected true or false, got %q", key, value)
		}
		return b, nil
	}

	var err error
	switch key {
	case "update.check_on_startup":
		cfg.Update.CheckOnStartup, err = parseBool()
	case "update.constraint":
		cfg.Update.Constraint = value
	case "update.run_mode":
		cfg.Update.RunMode = config.RunMode(value)
	case "update.swap_mode":
		cfg.Update.SwapMode = config.SwapMode(value)
	case "update.verify_checksums":
		cfg.Update.VerifyChecksums, err = parseBool()
	case "ui.color_scheme":
		cfg.UI.ColorScheme = config.ColorScheme(value)
	case "ui.progress":
		cfg.UI.Progress, err = parseBool()
	case "log.level":
		cfg.Log.Level = config.LogLevel(value)
	case "history.enabled":
		cfg.History.Enabled, err = parseBool()
	}
	return err
}
