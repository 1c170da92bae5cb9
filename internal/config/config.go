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
	"runtime"
	"strings"

	"github.com/tunegrab/tunegrab/internal/issue"
	"github.com/tunegrab/tunegrab/pkg/cueutil"
	"github.com/tunegrab/tunegrab/pkg/platform"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/spf13/viper"
)

const (
	// AppName is the application name.
	AppName = "tunegrab"
	// ConfigFileName is the name of the config file (without extension).
	ConfigFileName = "config"
	// ConfigFileExt is the config file extension.
	ConfigFileExt = "cue"
	// EnvPrefix prefixes environment overrides, e.g. TUNEGRAB_UPDATE_SWAP_MODE.
	EnvPrefix = "TUNEGRAB"
	// HistoryFileName is the default ledger file inside the config directory.
	HistoryFileName = "history.db"

	githubTokenKey = "github_token"
)

//go:embed config_schema.cue
var configSchema string

// ConfigDir returns the tunegrab configuration directory using platform-specific
// conventions: Windows uses %APPDATA%, macOS uses ~/Library/Application Support,
// and Linux/others use $XDG_CONFIG_HOME (defaulting to ~/.config).
//
//nolint:revive // ConfigDir is more descriptive than Dir for external callers
func ConfigDir() (string, error) {
	// Allow tests to override the config directory
	if configDirOverride != "" {
		return configDirOverride, nil
	}

	var configDir string

	switch runtime.GOOS {
	case platform.Windows:
		configDir = os.Getenv("APPDATA")
		if configDir == "" {
			configDir = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
		}
	case platform.Darwin:
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		configDir = filepath.Join(home, "Library", "Application Support")
	default: // Linux and others
		configDir = os.Getenv("XDG_CONFIG_HOME")
		if configDir == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", fmt.Errorf("failed to get home directory: %w", err)
			}
			configDir = filepath.Join(home, ".config")
		}
	}

	return filepath.Join(configDir, AppName), nil
}

// ConfigFilePath returns the default config file location.
func ConfigFilePath() (string, error) {
	cfgDir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(cfgDir, ConfigFileName+"."+ConfigFileExt), nil
}

// loadWithOptions performs option-driven config loading without mutating
// package-level state. It returns the config and the file it came from
// ("" when only defaults and environment applied).
func loadWithOptions(ctx context.Context, opts LoadOptions) (*Config, string, error) {
	select {
	case <-ctx.Done():
		return nil, "", fmt.Errorf("load config canceled: %w", ctx.Err())
	default:
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv(githubTokenKey, EnvPrefix+"_GITHUB_TOKEN", "GITHUB_TOKEN"); err != nil {
		return nil, "", fmt.Errorf("failed to bind token environment: %w", err)
	}

	resolvedPath := ""

	// A --config flag path is used exclusively and must exist.
	if opts.ConfigFilePath != "" {
		if !fileExists(opts.ConfigFilePath) {
			return nil, "", issue.NewErrorContext().
				WithOperation("load configuration").
				WithResource(opts.ConfigFilePath).
				WithSuggestion("Verify the file path is correct").
				WithSuggestion("Check that the file exists and is readable").
				WithSuggestion("Use 'tunegrab config init' to create a default configuration").
				Wrap(fmt.Errorf("config file not found: %s", opts.ConfigFilePath)).
				BuildError()
		}
		resolvedPath = opts.ConfigFilePath
	} else {
		cfgDir, err := configDirWithOverride(opts.ConfigDirPath)
		if err != nil {
			return nil, "", err
		}
		cuePath := filepath.Join(cfgDir, ConfigFileName+"."+ConfigFileExt)
		if fileExists(cuePath) {
			resolvedPath = cuePath
		}
		// If no config file found, use defaults (no error)
	}

	if resolvedPath != "" {
		if err := loadCUEIntoViper(v, resolvedPath); err != nil {
			return nil, "", issue.NewErrorContext().
				WithOperation("load configuration").
				WithResource(resolvedPath).
				WithSuggestion("Check that the file contains valid CUE syntax").
				WithSuggestion("Verify the configuration values match the expected schema").
				WithSuggestion("Run 'tunegrab config dump' to see a complete valid file").
				Wrap(err).
				BuildError()
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, "", fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.GitHubToken = v.GetString(githubTokenKey)

	// Environment overrides bypass the CUE schema, so validate the merged result.
	if valid, errs := cfg.IsValid(); !valid {
		return nil, "", issue.NewErrorContext().
			WithOperation("validate configuration").
			WithResource(resolvedPath).
			WithSuggestion("Check TUNEGRAB_* environment overrides as well as the config file").
			WithSuggestion("Version constraints use semver syntax, e.g. \"~1.4\" or \">=1.2, <2\"").
			Wrap(errors.Join(errs...)).
			BuildError()
	}

	return &cfg, resolvedPath, nil
}

// setDefaults registers every key so that environment overrides and
// Unmarshal see the full tree even without a config file.
func setDefaults(v *viper.Viper) {
	d := DefaultConfig()
	v.SetDefault("update.owner", d.Update.Owner)
	v.SetDefault("update.repo", d.Update.Repo)
	v.SetDefault("update.api_base_url", d.Update.APIBaseURL)
	v.SetDefault("update.user_agent", d.Update.UserAgent)
	v.SetDefault("update.discovery_timeout", d.Update.DiscoveryTimeout)
	v.SetDefault("update.download_timeout", d.Update.DownloadTimeout)
	v.SetDefault("update.temp_dir", d.Update.TempDir)
	v.SetDefault("update.min_binary_size", d.Update.MinBinarySize)
	v.SetDefault("update.chunk_size", d.Update.ChunkSize)
	v.SetDefault("update.constraint", d.Update.Constraint)
	v.SetDefault("update.verify_checksums", d.Update.VerifyChecksums)
	v.SetDefault("update.swap_mode", d.Update.SwapMode)
	v.SetDefault("update.run_mode", d.Update.RunMode)
	v.SetDefault("update.cleanup_grace", d.Update.CleanupGrace)
	v.SetDefault("update.check_on_startup", d.Update.CheckOnStartup)
	v.SetDefault("source.dir", d.Source.Dir)
	v.SetDefault("source.files", d.Source.Files)
	v.SetDefault("dependency.name", d.Dependency.Name)
	v.SetDefault("dependency.version_url", d.Dependency.VersionURL)
	v.SetDefault("dependency.version_args", d.Dependency.VersionArgs)
	v.SetDefault("dependency.install_command", d.Dependency.InstallCommand)
	v.SetDefault("ui.color_scheme", d.UI.ColorScheme)
	v.SetDefault("ui.progress", d.UI.Progress)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("history.enabled", d.History.Enabled)
	v.SetDefault("history.path", d.History.Path)
}

// configDirWithOverride resolves the configuration directory, honoring
// explicit provider options before platform defaults.
func configDirWithOverride(configDirPath string) (string, error) {
	if configDirPath != "" {
		return configDirPath, nil
	}

	return ConfigDir()
}

// loadCUEIntoViper parses a CUE file, validates it against the #Config schema,
// and merges its contents into Viper. The file decodes to map[string]any and
// is validated with Concrete(false) since every field is optional.
func loadCUEIntoViper(v *viper.Viper, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := cueutil.CheckFileSize(data, cueutil.DefaultMaxFileSize, path); err != nil {
		return err
	}

	ctx := cuecontext.New()

	schemaValue := ctx.CompileString(configSchema)
	if schemaValue.Err() != nil {
		return fmt.Errorf("internal error: failed to compile config schema: %w", schemaValue.Err())
	}

	userValue := ctx.CompileBytes(data, cue.Filename(path))
	if userValue.Err() != nil {
		return cueutil.FormatError(userValue.Err(), path)
	}

	schema := schemaValue.LookupPath(cue.ParsePath("#Config"))
	unified := schema.Unify(userValue)
	if err := unified.Validate(cue.Concrete(false)); err != nil {
		return cueutil.FormatError(err, path)
	}

	var configMap map[string]any
	if err := unified.Decode(&configMap); err != nil {
		return cueutil.FormatError(err, path)
	}

	// Merge into Viper (preserves defaults, allows env overrides)
	if err := v.MergeConfigMap(configMap); err != nil {
		return fmt.Errorf("failed to merge config: %w", err)
	}

	return nil
}

// fileExists checks if a file exists and is not a directory
func fileExists(path string) bool {
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false
	}
	return err == nil && !info.IsDir()
}

func isLocalPath(p string) bool {
	return strings.TrimSpace(p) != "" && filepath.IsLocal(p)
}

// EnsureConfigDir creates the config directory if it doesn't exist
func EnsureConfigDir() error {
	cfgDir, err := ConfigDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(cfgDir, 0o755)
}

// CreateDefaultConfig writes a default config file unless one exists.
// It reports whether a file was written and where it lives.
func CreateDefaultConfig() (string, bool, error) {
	cfgPath, err := ConfigFilePath()
	if err != nil {
		return "", false, err
	}

	if err := os.MkdirAll(filepath.Dir(cfgPath), 0o755); err != nil {
		return "", false, fmt.Errorf("failed to create config directory: %w", err)
	}

	if _, err := os.Stat(cfgPath); err == nil {
		return cfgPath, false, nil
	}

	if err := os.WriteFile(cfgPath, []byte(GenerateCUE(DefaultConfig())), 0o644); err != nil {
		return "", false, fmt.Errorf("failed to write config file: %w", err)
	}

	return cfgPath, true, nil
}

// Save writes the current configuration to file
func Save(cfg *Config) error {
	cfgPath, err := ConfigFilePath()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(cfgPath), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(cfgPath, []byte(GenerateCUE(cfg)), 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// GenerateCUE generates a CUE representation of the configuration.
// The GitHub token is never written.
func GenerateCUE(cfg *Config) string {
	var sb strings.Builder

	sb.WriteString("// tunegrab configuration file\n")
	sb.WriteString("// Environment overrides use the TUNEGRAB_ prefix, e.g. TUNEGRAB_UPDATE_SWAP_MODE.\n\n")

	u := cfg.Update
	sb.WriteString("update: {\n")
	fmt.Fprintf(&sb, "\towner: %q\n", u.Owner)
	fmt.Fprintf(&sb, "\trepo: %q\n", u.Repo)
	fmt.Fprintf(&sb, "\tapi_base_url: %q\n", u.APIBaseURL)
	fmt.Fprintf(&sb, "\tuser_agent: %q\n", u.UserAgent)
	fmt.Fprintf(&sb, "\tdiscovery_timeout: %q\n", u.DiscoveryTimeout.String())
	fmt.Fprintf(&sb, "\tdownload_timeout: %q\n", u.DownloadTimeout.String())
	if u.TempDir != "" {
		fmt.Fprintf(&sb, "\ttemp_dir: %q\n", u.TempDir)
	}
	fmt.Fprintf(&sb, "\tmin_binary_size: %d\n", u.MinBinarySize)
	fmt.Fprintf(&sb, "\tchunk_size: %d\n", u.ChunkSize)
	if u.Constraint != "" {
		fmt.Fprintf(&sb, "\tconstraint: %q\n", u.Constraint)
	}
	fmt.Fprintf(&sb, "\tverify_checksums: %v\n", u.VerifyChecksums)
	fmt.Fprintf(&sb, "\tswap_mode: %q\n", u.SwapMode)
	fmt.Fprintf(&sb, "\trun_mode: %q\n", u.RunMode)
	fmt.Fprintf(&sb, "\tcleanup_grace: %q\n", u.CleanupGrace.String())
	fmt.Fprintf(&sb, "\tcheck_on_startup: %v\n", u.CheckOnStartup)
	sb.WriteString("}\n")

	sb.WriteString("\nsource: {\n")
	if cfg.Source.Dir != "" {
		fmt.Fprintf(&sb, "\tdir: %q\n", cfg.Source.Dir)
	}
	fmt.Fprintf(&sb, "\tfiles: %s\n", cueList(cfg.Source.Files))
	sb.WriteString("}\n")

	d := cfg.Dependency
	sb.WriteString("\ndependency: {\n")
	fmt.Fprintf(&sb, "\tname: %q\n", d.Name)
	fmt.Fprintf(&sb, "\tversion_url: %q\n", d.VersionURL)
	fmt.Fprintf(&sb, "\tversion_args: %s\n", cueList(d.VersionArgs))
	fmt.Fprintf(&sb, "\tinstall_command: %s\n", cueList(d.InstallCommand))
	sb.WriteString("}\n")

	sb.WriteString("\nui: {\n")
	fmt.Fprintf(&sb, "\tcolor_scheme: %q\n", cfg.UI.ColorScheme)
	fmt.Fprintf(&sb, "\tprogress: %v\n", cfg.UI.Progress)
	sb.WriteString("}\n")

	sb.WriteString("\nlog: {\n")
	fmt.Fprintf(&sb, "\tlevel: %q\n", cfg.Log.Level)
	sb.WriteString("}\n")

	sb.WriteString("\nhistory: {\n")
	fmt.Fprintf(&sb, "\tenabled: %v\n", cfg.History.Enabled)
	if cfg.History.Path != "" {
		fmt.Fprintf(&sb, "\tpath: %q\n", cfg.History.Path)
	}
	sb.WriteString("}\n")

	return sb.String()
}

func cueList(items []string) string {
	quoted := make([]string, len(items))
	for i, s := range items {
		quoted[i] = fmt.Sprintf("%q", s)
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}
