// SPDX-License-Identifier: MPL-2.0

package selfupdate

import (
	"errors"
	"os"
	"path/filepath"
	"runtime/debug"
	"testing"

	"github.com/tunegrab/tunegrab/pkg/platform"
)

// stubDetection pins the detection seams for one test and restores them afterwards.
func stubDetection(t *testing.T, hint string, sandbox platform.SandboxType, info *debug.BuildInfo) {
	t.Helper()

	savedHint, savedSandbox, savedInfo := installMethodHint, detectSandbox, readBuildInfo
	t.Cleanup(func() {
		installMethodHint, detectSandbox, readBuildInfo = savedHint, savedSandbox, savedInfo
	})

	installMethodHint = hint
	detectSandbox = func() platform.SandboxType { return sandbox }
	readBuildInfo = func() (*debug.BuildInfo, bool) { return info, info != nil }
}

func TestDetectInstallMethod(t *testing.T) {
	// Not parallel: subtests mutate package-level detection seams.

	tests := []struct {
		name    string
		hint    string
		sandbox platform.SandboxType
		path    string
		want    InstallMethod
	}{
		{"homebrew hint overrides path", "homebrew", platform.SandboxNone, "/usr/local/bin/tunegrab", InstallMethodHomebrew},
		{"hint is case-insensitive", "GOINSTALL", platform.SandboxNone, "/usr/local/bin/tunegrab", InstallMethodGoInstall},
		{"unknown hint means standalone", "manual", platform.SandboxNone, "/opt/homebrew/bin/tunegrab", InstallMethodStandalone},
		{"flatpak sandbox", "", platform.SandboxFlatpak, "/app/bin/tunegrab", InstallMethodSandbox},
		{"snap sandbox", "", platform.SandboxSnap, "/snap/tunegrab/12/bin/tunegrab", InstallMethodSandbox},
		{"macOS ARM Homebrew", "", platform.SandboxNone, "/opt/homebrew/Cellar/tunegrab/1.0.0/bin/tunegrab", InstallMethodHomebrew},
		{"macOS Intel Homebrew", "", platform.SandboxNone, "/usr/local/Cellar/tunegrab/1.0.0/bin/tunegrab", InstallMethodHomebrew},
		{"Linux Homebrew", "", platform.SandboxNone, "/home/linuxbrew/.linuxbrew/bin/tunegrab", InstallMethodHomebrew},
		{"plain install", "", platform.SandboxNone, "/opt/tools/tunegrab", InstallMethodStandalone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stubDetection(t, tt.hint, tt.sandbox, nil)

			if got := DetectInstallMethod(tt.path); got != tt.want {
				t.Errorf("DetectInstallMethod(%q) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}

func TestDetectInstallMethod_GoInstall(t *testing.T) {
	// Not parallel: subtests mutate package-level seams and use t.Setenv.

	tests := []struct {
		name string
		info *debug.BuildInfo
		want InstallMethod
	}{
		{"matching module path", &debug.BuildInfo{Path: "github.com/tunegrab/tunegrab"}, InstallMethodGoInstall},
		{"other module path", &debug.BuildInfo{Path: "github.com/other/project"}, InstallMethodStandalone},
		{"no build info", nil, InstallMethodStandalone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stubDetection(t, "", platform.SandboxNone, tt.info)

			gopath := filepath.Join(t.TempDir(), "go")
			t.Setenv("GOPATH", gopath)

			path := filepath.Join(gopath, "bin", "tunegrab")
			if got := DetectInstallMethod(path); got != tt.want {
				t.Errorf("DetectInstallMethod(%q) = %v, want %v", path, got, tt.want)
			}
		})
	}
}

func TestIsInGOPATHBin(t *testing.T) {
	// Not parallel: t.Setenv mutates process-wide state.

	tests := []struct {
		name string
		path string
		want bool
	}{
		{"in GOPATH/bin", "/home/user/go/bin/tunegrab", true},
		{"subdirectory of GOPATH/bin", "/home/user/go/bin/sub/tunegrab", true},
		{"outside", "/usr/local/bin/tunegrab", false},
		{"similar prefix", "/home/user/gobin/tunegrab", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("GOPATH", "/home/user/go")

			if got := isInGOPATHBin(filepath.FromSlash(tt.path)); got != tt.want {
				t.Errorf("isInGOPATHBin(%q) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}

func TestInstallMethod_String(t *testing.T) {
	t.Parallel()

	tests := []struct {
		method  InstallMethod
		want    string
		managed bool
	}{
		{InstallMethodStandalone, "standalone", false},
		{InstallMethodHomebrew, "homebrew", true},
		{InstallMethodGoInstall, "goinstall", true},
		{InstallMethodSandbox, "sandbox", true},
		{InstallMethod(99), "standalone", true},
	}

	for _, tt := range tests {
		if got := tt.method.String(); got != tt.want {
			t.Errorf("InstallMethod(%d).String() = %q, want %q", tt.method, got, tt.want)
		}
		if got := tt.method.Managed(); got != tt.managed {
			t.Errorf("InstallMethod(%d).Managed() = %v, want %v", tt.method, got, tt.managed)
		}
	}
}

func TestUpgradeCommand(t *testing.T) {
	// Not parallel: mutates the sandbox seam.
	stubDetection(t, "", platform.SandboxSnap, nil)

	if got := UpgradeCommand(InstallMethodHomebrew, "tunegrab"); got != "brew upgrade tunegrab" {
		t.Errorf("homebrew = %q", got)
	}
	if got := UpgradeCommand(InstallMethodGoInstall, "tunegrab"); got != "go install github.com/tunegrab/tunegrab@latest" {
		t.Errorf("goinstall = %q", got)
	}
	if got := UpgradeCommand(InstallMethodSandbox, "tunegrab"); got != "snap refresh tunegrab" {
		t.Errorf("sandbox = %q", got)
	}
	if got := UpgradeCommand(InstallMethodStandalone, "tunegrab"); got != "" {
		t.Errorf("standalone = %q", got)
	}
}

func TestManagedInstallError(t *testing.T) {
	t.Parallel()

	err := error(&ManagedInstallError{Method: InstallMethodHomebrew, Command: "brew upgrade tunegrab"})
	if !errors.Is(err, ErrManagedInstall) {
		t.Error("ManagedInstallError must match ErrManagedInstall")
	}
	if got := err.Error(); got != "tunegrab is installed via homebrew; upgrade with: brew upgrade tunegrab" {
		t.Errorf("Error() = %q", got)
	}
}

func TestDetectRunMode(t *testing.T) {
	// Not parallel: mutates runModeHint.
	saved := runModeHint
	t.Cleanup(func() { runModeHint = saved })

	goRun := filepath.Join(os.TempDir(), "go-build123456", "b001", "exe", "tunegrab")
	installed := filepath.Join(string(filepath.Separator)+"opt", "tunegrab")

	tests := []struct {
		name string
		hint string
		mode RunMode
		path string
		want RunMode
	}{
		{"explicit binary wins over go run", "", RunModeBinary, goRun, RunModeBinary},
		{"explicit source", "", RunModeSource, installed, RunModeSource},
		{"ldflags hint", "source", RunModeAuto, installed, RunModeSource},
		{"go run binary", "", RunModeAuto, goRun, RunModeSource},
		{"installed binary", "", RunModeAuto, installed, RunModeBinary},
		{"empty mode behaves as auto", "", "", installed, RunModeBinary},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runModeHint = tt.hint
			if got := DetectRunMode(tt.mode, tt.path); got != tt.want {
				t.Errorf("DetectRunMode(%q, %q) = %q, want %q", tt.mode, tt.path, got, tt.want)
			}
		})
	}
}

func TestIsGoRunBinary(t *testing.T) {
	t.Parallel()

	tmp := filepath.Join(string(filepath.Separator)+"tmp", "work")
	if !isGoRunBinary(filepath.Join(tmp, "go-build42", "b001", "exe", "main"), tmp) {
		t.Error("go-build path not detected")
	}
	if isGoRunBinary(filepath.Join(tmp, "other", "main"), tmp) {
		t.Error("non go-build temp path detected")
	}
	if isGoRunBinary(filepath.Join(string(filepath.Separator)+"usr", "bin", "go-build1"), tmp) {
		t.Error("path outside temp detected")
	}
}
