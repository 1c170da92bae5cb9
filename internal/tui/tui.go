// SPDX-License-Identifier: MPL-2.0

package tui

import (
	"io"
	"os"

	"github.com/charmbracelet/huh"
	"golang.org/x/term"
)

// Theme represents the visual theme for TUI components.
type Theme string

const (
	// ThemeAuto picks dark or light from the terminal background.
	ThemeAuto Theme = "auto"
	// ThemeDark forces the dark palette.
	ThemeDark Theme = "dark"
	// ThemeLight forces the light palette.
	ThemeLight Theme = "light"
)

// Config holds common configuration for TUI components.
type Config struct {
	// Theme specifies the visual theme to use.
	Theme Theme
	// Accessible enables accessible mode for screen readers.
	Accessible bool
	// Width specifies the width of the component (0 for auto).
	Width int
	// Input is where prompts read answers from (nil for stdin).
	Input io.Reader
	// Output specifies where to write the component output.
	Output io.Writer
}

//nolint:gochecknoglobals // Test seam for terminal detection.
var isTerminal = term.IsTerminal

// DefaultConfig returns the default configuration for TUI components.
// It automatically enables accessible mode when:
// - stdin is not a terminal (pipes, CI, command substitution)
// - the ACCESSIBLE environment variable is set
//
// Interactive components always draw on stderr so stdout stays reserved for
// machine-readable command output.
func DefaultConfig() Config {
	return Config{
		Theme:      ThemeAuto,
		Accessible: !isInputTerminal() || os.Getenv("ACCESSIBLE") != "",
		Output:     os.Stderr,
	}
}

// ThemeFromScheme maps a configured color scheme onto a Theme. Unknown
// values fall back to ThemeAuto.
func ThemeFromScheme(scheme string) Theme {
	switch Theme(scheme) {
	case ThemeDark, ThemeLight:
		return Theme(scheme)
	default:
		return ThemeAuto
	}
}

// isInputTerminal returns true if stdin is connected to a terminal.
func isInputTerminal() bool {
	return isTerminal(int(os.Stdin.Fd()))
}

// IsOutputTerminal reports whether w is a terminal. Non-file writers never are.
func IsOutputTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && isTerminal(int(f.Fd()))
}

// shouldUseAccessible returns true if accessible mode should be used.
func shouldUseAccessible(cfg Config) bool {
	return cfg.Accessible || !isInputTerminal()
}

// getOutputWriter returns cfg.Output, or stderr when it is unset.
func getOutputWriter(cfg Config) io.Writer {
	if cfg.Output != nil {
		return cfg.Output
	}
	return os.Stderr
}

// getHuhTheme converts a Theme to a huh.Theme.
func getHuhTheme(t Theme) *huh.Theme {
	switch t {
	case ThemeDark:
		return huh.ThemeDracula()
	case ThemeLight:
		return huh.ThemeBase16()
	default:
		return huh.ThemeCharm()
	}
}
