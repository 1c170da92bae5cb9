// SPDX-License-Identifier: MPL-2.0

package config

import (
	"errors"
	"strings"
	"testing"
)

func TestSwapMode_IsValid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		mode    SwapMode
		want    bool
		wantErr bool
	}{
		{SwapModeAuto, true, false},
		{SwapModeInProcess, true, false},
		{SwapModeHelper, true, false},
		{"", false, true},
		{"HELPER", false, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.mode), func(t *testing.T) {
			t.Parallel()
			isValid, errs := tt.mode.IsValid()
			if isValid != tt.want {
				t.Errorf("SwapMode(%q).IsValid() = %v, want %v", tt.mode, isValid, tt.want)
			}
			if tt.wantErr {
				if len(errs) == 0 {
					t.Fatalf("SwapMode(%q).IsValid() returned no errors, want error", tt.mode)
				}
				if !errors.Is(errs[0], ErrInvalidSwapMode) {
					t.Errorf("error should wrap ErrInvalidSwapMode, got: %v", errs[0])
				}
			} else if len(errs) > 0 {
				t.Errorf("SwapMode(%q).IsValid() returned unexpected errors: %v", tt.mode, errs)
			}
		})
	}
}

func TestRunMode_IsValid(t *testing.T) {
	t.Parallel()

	for _, m := range []RunMode{RunModeAuto, RunModeBinary, RunModeSource} {
		if ok, errs := m.IsValid(); !ok {
			t.Errorf("RunMode(%q) should be valid, got %v", m, errs)
		}
	}
	ok, errs := RunMode("script").IsValid()
	if ok || len(errs) != 1 || !errors.Is(errs[0], ErrInvalidRunMode) {
		t.Errorf("RunMode(script).IsValid() = %v, %v", ok, errs)
	}
}

func TestColorScheme_IsValid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		scheme  ColorScheme
		want    bool
		wantErr bool
	}{
		{ColorSchemeAuto, true, false},
		{ColorSchemeDark, true, false},
		{ColorSchemeLight, true, false},
		{"", false, true},
		{"blue", false, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.scheme), func(t *testing.T) {
			t.Parallel()
			isValid, errs := tt.scheme.IsValid()
			if isValid != tt.want {
				t.Errorf("ColorScheme(%q).IsValid() = %v, want %v", tt.scheme, isValid, tt.want)
			}
			if tt.wantErr && (len(errs) == 0 || !errors.Is(errs[0], ErrInvalidColorScheme)) {
				t.Errorf("error should wrap ErrInvalidColorScheme, got: %v", errs)
			}
		})
	}
}

func TestLogLevel_IsValid(t *testing.T) {
	t.Parallel()

	for _, l := range []LogLevel{LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError} {
		if ok, _ := l.IsValid(); !ok {
			t.Errorf("LogLevel(%q) should be valid", l)
		}
	}
	if ok, errs := LogLevel("trace").IsValid(); ok || !errors.Is(errs[0], ErrInvalidLogLevel) {
		t.Errorf("LogLevel(trace).IsValid() = %v, %v", ok, errs)
	}
}

func TestConfig_IsValid_CollectsFieldErrors(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.Update.SwapMode = "sideways"
	cfg.Update.Constraint = "not a constraint"
	cfg.Source.Files = []string{"main.go", "../escape.go", "/etc/passwd"}
	cfg.Log.Level = "loud"

	ok, errs := cfg.IsValid()
	if ok {
		t.Fatal("expected invalid config")
	}
	if len(errs) != 1 {
		t.Fatalf("expected one aggregate error, got %d", len(errs))
	}

	err := errs[0]
	for _, sentinel := range []error{ErrInvalidConfig} {
		if !errors.Is(err, sentinel) {
			t.Errorf("error should wrap %v", sentinel)
		}
	}
	var ice *InvalidConfigError
	if !errors.As(err, &ice) {
		t.Fatalf("expected *InvalidConfigError, got %T", err)
	}
	// update section (1 aggregate) + 2 source files + log level
	if len(ice.FieldErrors) != 4 {
		t.Errorf("FieldErrors = %d, want 4: %v", len(ice.FieldErrors), ice.FieldErrors)
	}

	msg := err.Error()
	for _, want := range []string{"sideways", "not a constraint", "../escape.go", "/etc/passwd", "loud"} {
		if !strings.Contains(msg, want) {
			t.Errorf("error message should mention %q, got: %s", want, msg)
		}
	}
}
