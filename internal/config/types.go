// SPDX-License-Identifier: MPL-2.0

package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
)

const (
	// SwapModeAuto uses the helper on Windows and swaps in-process elsewhere.
	SwapModeAuto SwapMode = "auto"
	// SwapModeInProcess swaps the binary from the running process.
	SwapModeInProcess SwapMode = "inprocess"
	// SwapModeHelper hands the swap to a detached helper process.
	SwapModeHelper SwapMode = "helper"

	// RunModeAuto detects the run mode from the executable location.
	RunModeAuto RunMode = "auto"
	// RunModeBinary updates the standalone binary.
	RunModeBinary RunMode = "binary"
	// RunModeSource updates allow-listed files of a source checkout.
	RunModeSource RunMode = "source"

	// ColorSchemeAuto detects the terminal color scheme automatically.
	ColorSchemeAuto ColorScheme = "auto"
	// ColorSchemeDark forces dark color scheme.
	ColorSchemeDark ColorScheme = "dark"
	// ColorSchemeLight forces light color scheme.
	ColorSchemeLight ColorScheme = "light"

	// LogLevelDebug logs everything.
	LogLevelDebug LogLevel = "debug"
	// LogLevelInfo logs informational messages and above.
	LogLevelInfo LogLevel = "info"
	// LogLevelWarn logs warnings and errors.
	LogLevelWarn LogLevel = "warn"
	// LogLevelError logs errors only.
	LogLevelError LogLevel = "error"
)

var (
	// ErrInvalidSwapMode is returned when a SwapMode value is not recognized.
	ErrInvalidSwapMode = errors.New("invalid swap mode")
	// ErrInvalidRunMode is returned when a RunMode value is not recognized.
	ErrInvalidRunMode = errors.New("invalid run mode")
	// ErrInvalidColorScheme is returned when a ColorScheme value is not recognized.
	ErrInvalidColorScheme = errors.New("invalid color scheme")
	// ErrInvalidLogLevel is returned when a LogLevel value is not recognized.
	ErrInvalidLogLevel = errors.New("invalid log level")
	// ErrInvalidConstraint is returned when update.constraint is not a semver constraint.
	ErrInvalidConstraint = errors.New("invalid version constraint")
	// ErrInvalidSourceFile is returned when a source allow-list entry leaves the source dir.
	ErrInvalidSourceFile = errors.New("invalid source file")
	// ErrInvalidUpdateConfig is the sentinel error wrapped by InvalidUpdateConfigError.
	ErrInvalidUpdateConfig = errors.New("invalid update config")
	// ErrInvalidConfig is the sentinel error wrapped by InvalidConfigError.
	ErrInvalidConfig = errors.New("invalid config")
)

type (
	// SwapMode selects how the binary swap is executed.
	SwapMode string

	// InvalidSwapModeError is returned when a SwapMode value is not recognized.
	InvalidSwapModeError struct {
		Value SwapMode
	}

	// RunMode selects the install strategy.
	RunMode string

	// InvalidRunModeError is returned when a RunMode value is not recognized.
	InvalidRunModeError struct {
		Value RunMode
	}

	// ColorScheme specifies the terminal color scheme preference.
	ColorScheme string

	// InvalidColorSchemeError is returned when a ColorScheme value is not recognized.
	// It wraps ErrInvalidColorScheme for errors.Is() compatibility.
	InvalidColorSchemeError struct {
		Value ColorScheme
	}

	// LogLevel is the minimum level written by the CLI logger.
	LogLevel string

	// InvalidLogLevelError is returned when a LogLevel value is not recognized.
	InvalidLogLevelError struct {
		Value LogLevel
	}

	// InvalidConstraintError is returned when update.constraint does not parse.
	InvalidConstraintError struct {
		Value string
		Err   error
	}

	// InvalidSourceFileError is returned for allow-list entries that are
	// absolute or escape the source directory.
	InvalidSourceFileError struct {
		Value string
	}

	// InvalidUpdateConfigError collects field errors of the update section.
	InvalidUpdateConfigError struct {
		FieldErrors []error
	}

	// InvalidConfigError is returned when a Config has invalid fields.
	// It wraps ErrInvalidConfig for errors.Is() compatibility and collects
	// field-level validation errors from all sections.
	InvalidConfigError struct {
		FieldErrors []error
	}

	// Config holds the application configuration.
	Config struct {
		// Update configures release discovery and installation.
		Update UpdateConfig `json:"update" mapstructure:"update"`
		// Source configures the source checkout refreshed in source run mode.
		Source SourceConfig `json:"source" mapstructure:"source"`
		// Dependency describes the external downloader tool kept up to date.
		Dependency DependencyConfig `json:"dependency" mapstructure:"dependency"`
		// UI configures the user interface
		UI UIConfig `json:"ui" mapstructure:"ui"`
		// Log configures the CLI logger.
		Log LogConfig `json:"log" mapstructure:"log"`
		// History configures the update cycle ledger.
		History HistoryConfig `json:"history" mapstructure:"history"`

		// GitHubToken authenticates release discovery. It comes from the
		// environment only and is never written to disk.
		GitHubToken string `json:"-" mapstructure:"-"`
	}

	// UpdateConfig configures the self-update subsystem.
	UpdateConfig struct {
		Owner            string        `json:"owner" mapstructure:"owner"`
		Repo             string        `json:"repo" mapstructure:"repo"`
		APIBaseURL       string        `json:"api_base_url" mapstructure:"api_base_url"`
		UserAgent        string        `json:"user_agent" mapstructure:"user_agent"`
		DiscoveryTimeout time.Duration `json:"discovery_timeout" mapstructure:"discovery_timeout"`
		DownloadTimeout  time.Duration `json:"download_timeout" mapstructure:"download_timeout"`
		// TempDir holds downloaded artifacts; empty means <os temp>/tunegrab-update.
		TempDir       string `json:"temp_dir" mapstructure:"temp_dir"`
		MinBinarySize int64  `json:"min_binary_size" mapstructure:"min_binary_size"`
		ChunkSize     int    `json:"chunk_size" mapstructure:"chunk_size"`
		// Constraint restricts acceptable releases; empty accepts any newer release.
		Constraint      string        `json:"constraint" mapstructure:"constraint"`
		VerifyChecksums bool          `json:"verify_checksums" mapstructure:"verify_checksums"`
		SwapMode        SwapMode      `json:"swap_mode" mapstructure:"swap_mode"`
		RunMode         RunMode       `json:"run_mode" mapstructure:"run_mode"`
		CleanupGrace    time.Duration `json:"cleanup_grace" mapstructure:"cleanup_grace"`
		CheckOnStartup  bool          `json:"check_on_startup" mapstructure:"check_on_startup"`
	}

	// SourceConfig configures source run mode.
	SourceConfig struct {
		// Dir is the live source checkout; empty means the working directory.
		Dir string `json:"dir" mapstructure:"dir"`
		// Files is the allow-list copied out of a source archive.
		Files []string `json:"files" mapstructure:"files"`
	}

	// DependencyConfig describes the external tool checked by `deps`.
	DependencyConfig struct {
		Name           string   `json:"name" mapstructure:"name"`
		VersionURL     string   `json:"version_url" mapstructure:"version_url"`
		VersionArgs    []string `json:"version_args" mapstructure:"version_args"`
		InstallCommand []string `json:"install_command" mapstructure:"install_command"`
	}

	// UIConfig configures the user interface.
	UIConfig struct {
		// ColorScheme sets the color scheme
		ColorScheme ColorScheme `json:"color_scheme" mapstructure:"color_scheme"`
		// Progress enables the interactive download progress view.
		Progress bool `json:"progress" mapstructure:"progress"`
	}

	// LogConfig configures the CLI logger.
	LogConfig struct {
		Level LogLevel `json:"level" mapstructure:"level"`
	}

	// HistoryConfig configures the update cycle ledger.
	HistoryConfig struct {
		Enabled bool `json:"enabled" mapstructure:"enabled"`
		// Path is the SQLite database file; empty means history.db in the config dir.
		Path string `json:"path" mapstructure:"path"`
	}
)

// Error implements the error interface for InvalidSwapModeError.
func (e *InvalidSwapModeError) Error() string {
	return fmt.Sprintf("invalid swap mode %q (valid: auto, inprocess, helper)", e.Value)
}

// Unwrap returns the sentinel error for errors.Is() compatibility.
func (e *InvalidSwapModeError) Unwrap() error { return ErrInvalidSwapMode }

// String returns the string representation of the SwapMode.
func (m SwapMode) String() string { return string(m) }

// IsValid returns whether the SwapMode is one of the defined swap modes.
func (m SwapMode) IsValid() (bool, []error) {
	switch m {
	case SwapModeAuto, SwapModeInProcess, SwapModeHelper:
		return true, nil
	default:
		return false, []error{&InvalidSwapModeError{Value: m}}
	}
}

// Error implements the error interface for InvalidRunModeError.
func (e *InvalidRunModeError) Error() string {
	return fmt.Sprintf("invalid run mode %q (valid: auto, binary, source)", e.Value)
}

// Unwrap returns the sentinel error for errors.Is() compatibility.
func (e *InvalidRunModeError) Unwrap() error { return ErrInvalidRunMode }

// String returns the string representation of the RunMode.
func (m RunMode) String() string { return string(m) }

// IsValid returns whether the RunMode is one of the defined run modes.
func (m RunMode) IsValid() (bool, []error) {
	switch m {
	case RunModeAuto, RunModeBinary, RunModeSource:
		return true, nil
	default:
		return false, []error{&InvalidRunModeError{Value: m}}
	}
}

// Error implements the error interface for InvalidColorSchemeError.
func (e *InvalidColorSchemeError) Error() string {
	return fmt.Sprintf("invalid color scheme %q (valid: auto, dark, light)", e.Value)
}

// Unwrap returns the sentinel error for errors.Is() compatibility.
func (e *InvalidColorSchemeError) Unwrap() error {
	return ErrInvalidColorScheme
}

// String returns the string representation of the ColorScheme.
func (cs ColorScheme) String() string { return string(cs) }

// IsValid returns whether the ColorScheme is one of the defined color schemes,
// and a list of validation errors if it is not.
func (cs ColorScheme) IsValid() (bool, []error) {
	switch cs {
	case ColorSchemeAuto, ColorSchemeDark, ColorSchemeLight:
		return true, nil
	default:
		return false, []error{&InvalidColorSchemeError{Value: cs}}
	}
}

// Error implements the error interface for InvalidLogLevelError.
func (e *InvalidLogLevelError) Error() string {
	return fmt.Sprintf("invalid log level %q (valid: debug, info, warn, error)", e.Value)
}

// Unwrap returns the sentinel error for errors.Is() compatibility.
func (e *InvalidLogLevelError) Unwrap() error { return ErrInvalidLogLevel }

// String returns the string representation of the LogLevel.
func (l LogLevel) String() string { return string(l) }

// IsValid returns whether the LogLevel is one of the defined levels.
func (l LogLevel) IsValid() (bool, []error) {
	switch l {
	case LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError:
		return true, nil
	default:
		return false, []error{&InvalidLogLevelError{Value: l}}
	}
}

// Error implements the error interface for InvalidConstraintError.
func (e *InvalidConstraintError) Error() string {
	return fmt.Sprintf("invalid version constraint %q: %v", e.Value, e.Err)
}

// Unwrap returns the sentinel error for errors.Is() compatibility.
func (e *InvalidConstraintError) Unwrap() error { return ErrInvalidConstraint }

// Error implements the error interface for InvalidSourceFileError.
func (e *InvalidSourceFileError) Error() string {
	return fmt.Sprintf("invalid source file %q: must be a relative path inside the source dir", e.Value)
}

// Unwrap returns the sentinel error for errors.Is() compatibility.
func (e *InvalidSourceFileError) Unwrap() error { return ErrInvalidSourceFile }

// IsValid returns whether the UpdateConfig has valid fields.
// An empty constraint is valid; anything else must parse as a semver constraint.
func (c UpdateConfig) IsValid() (bool, []error) {
	var errs []error
	if valid, fieldErrs := c.SwapMode.IsValid(); !valid {
		errs = append(errs, fieldErrs...)
	}
	if valid, fieldErrs := c.RunMode.IsValid(); !valid {
		errs = append(errs, fieldErrs...)
	}
	if strings.TrimSpace(c.Constraint) != "" {
		if _, err := semver.NewConstraint(c.Constraint); err != nil {
			errs = append(errs, &InvalidConstraintError{Value: c.Constraint, Err: err})
		}
	}
	if len(errs) > 0 {
		return false, []error{&InvalidUpdateConfigError{FieldErrors: errs}}
	}
	return true, nil
}

// Error implements the error interface for InvalidUpdateConfigError.
func (e *InvalidUpdateConfigError) Error() string {
	return fmt.Sprintf("invalid update config: %d field error(s)", len(e.FieldErrors))
}

// Unwrap returns ErrInvalidUpdateConfig and the field errors for errors.Is() compatibility.
func (e *InvalidUpdateConfigError) Unwrap() []error {
	return append([]error{ErrInvalidUpdateConfig}, e.FieldErrors...)
}

// IsValid returns whether the Config has valid fields.
// It delegates to each section and checks the source allow-list entries.
func (c Config) IsValid() (bool, []error) {
	var errs []error
	if valid, fieldErrs := c.Update.IsValid(); !valid {
		errs = append(errs, fieldErrs...)
	}
	for _, f := range c.Source.Files {
		if !isLocalPath(f) {
			errs = append(errs, &InvalidSourceFileError{Value: f})
		}
	}
	if valid, fieldErrs := c.UI.ColorScheme.IsValid(); !valid {
		errs = append(errs, fieldErrs...)
	}
	if valid, fieldErrs := c.Log.Level.IsValid(); !valid {
		errs = append(errs, fieldErrs...)
	}
	if len(errs) > 0 {
		return false, []error{&InvalidConfigError{FieldErrors: errs}}
	}
	return true, nil
}

// Error implements the error interface for InvalidConfigError.
func (e *InvalidConfigError) Error() string {
	msgs := make([]string, 0, len(e.FieldErrors))
	for _, fe := range e.FieldErrors {
		msgs = append(msgs, flattenFieldErrors(fe)...)
	}
	return fmt.Sprintf("invalid config: %s", strings.Join(msgs, "; "))
}

// Unwrap returns ErrInvalidConfig and the field errors for errors.Is() compatibility.
func (e *InvalidConfigError) Unwrap() []error {
	return append([]error{ErrInvalidConfig}, e.FieldErrors...)
}

func flattenFieldErrors(err error) []string {
	var nested *InvalidUpdateConfigError
	if errors.As(err, &nested) {
		out := make([]string, 0, len(nested.FieldErrors))
		for _, fe := range nested.FieldErrors {
			out = append(out, fe.Error())
		}
		return out
	}
	return []string{err.Error()}
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Update: UpdateConfig{
			Owner:            "tunegrab",
			Repo:             "tunegrab",
			APIBaseURL:       "https://api.github.com",
			UserAgent:        "tunegrab-selfupdate",
			DiscoveryTimeout: 10 * time.Second,
			DownloadTimeout:  2 * time.Minute,
			TempDir:          "",
			MinBinarySize:    1_000_000,
			ChunkSize:        32 << 10,
			Constraint:       "",
			VerifyChecksums:  false,
			SwapMode:         SwapModeAuto,
			RunMode:          RunModeAuto,
			CleanupGrace:     time.Second,
			CheckOnStartup:   false,
		},
		Source: SourceConfig{
			Dir:   "",
			Files: []string{"go.mod", "go.sum", "main.go", "README.md", "LICENSE"},
		},
		Dependency: DependencyConfig{
			Name:           "yt-dlp",
			VersionURL:     "https://pypi.org/pypi/yt-dlp/json",
			VersionArgs:    []string{"--version"},
			InstallCommand: []string{"python3", "-m", "pip", "install", "--upgrade", "yt-dlp"},
		},
		UI: UIConfig{
			ColorScheme: ColorSchemeAuto,
			Progress:    true,
		},
		Log: LogConfig{
			Level: LogLevelWarn,
		},
		History: HistoryConfig{
			Enabled: true,
			Path:    "",
		},
	}
}
