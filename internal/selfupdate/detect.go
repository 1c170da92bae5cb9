// SPDX-License-Identifier: MPL-2.0

package selfupdate

import (
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"

	"github.com/tunegrab/tunegrab/pkg/platform"
)

const (
	// homebrewMacARM is the Homebrew prefix on macOS ARM (Apple Silicon).
	homebrewMacARM = "/opt/homebrew/"

	// homebrewMacIntel is the Homebrew Cellar path on macOS Intel.
	homebrewMacIntel = "/usr/local/Cellar/"

	// homebrewLinux is the Linuxbrew prefix.
	homebrewLinux = "/home/linuxbrew/.linuxbrew/"

	// modulePath is the expected Go module path used to confirm go-install origin.
	modulePath = "github.com/tunegrab/tunegrab"

	// goRunDirPrefix is the directory prefix `go run` builds executables under.
	goRunDirPrefix = "go-build"

	// InstallMethodStandalone is a downloaded release binary the updater owns.
	InstallMethodStandalone InstallMethod = 0

	// InstallMethodHomebrew indicates installation via Homebrew (brew install).
	// Upgrades should be handled by `brew upgrade tunegrab`.
	InstallMethodHomebrew InstallMethod = 1

	// InstallMethodGoInstall indicates installation via `go install`.
	InstallMethodGoInstall InstallMethod = 2

	// InstallMethodSandbox indicates a Flatpak or Snap package.
	InstallMethodSandbox InstallMethod = 3
)

var (
	// installMethodHint is set via -ldflags at build time to override detection.
	// When non-empty, it takes priority over all path heuristics.
	//
	//nolint:gochecknoglobals // Build-time ldflags injection requires a package-level variable.
	installMethodHint string

	// runModeHint is set via -ldflags to "source" for builds made from a checkout.
	//
	//nolint:gochecknoglobals // Build-time ldflags injection requires a package-level variable.
	runModeHint string

	// readBuildInfo is a test seam for debug.ReadBuildInfo.
	//
	//nolint:gochecknoglobals // Test seam requires a package-level variable.
	readBuildInfo = debug.ReadBuildInfo

	// detectSandbox is a test seam for platform.DetectSandbox.
	//
	//nolint:gochecknoglobals // Test seam requires a package-level variable.
	detectSandbox = platform.DetectSandbox
)

type (
	// InstallMethod identifies who owns the installed executable. Only
	// standalone installs are replaced by the updater; the others are
	// upgraded through their package manager.
	InstallMethod int

	// ManagedInstallError is returned instead of installing over an
	// executable owned by a package manager or sandbox.
	ManagedInstallError struct {
		Method  InstallMethod
		Command string // upgrade command to suggest to the user
	}
)

// String returns a human-readable name for the install method.
func (m InstallMethod) String() string {
	switch m {
	case InstallMethodStandalone:
		return "standalone"
	case InstallMethodHomebrew:
		return "homebrew"
	case InstallMethodGoInstall:
		return "goinstall"
	case InstallMethodSandbox:
		return "sandbox"
	}
	return "standalone"
}

// Managed reports whether the updater must not replace the executable.
func (m InstallMethod) Managed() bool {
	return m != InstallMethodStandalone
}

// Error implements the error interface.
func (e *ManagedInstallError) Error() string {
	return "tunegrab is installed via " + e.Method.String() + "; upgrade with: " + e.Command
}

// Is matches ErrManagedInstall.
func (e *ManagedInstallError) Is(target error) bool { return target == ErrManagedInstall }

// DetectInstallMethod determines who owns the executable at execPath.
// Detection priority:
//  1. Build-time ldflags hint
//  2. Flatpak or Snap sandbox
//  3. Homebrew path heuristics
//  4. GOPATH/bin confirmed by the build info module path
//  5. Fallback to Standalone
func DetectInstallMethod(execPath string) InstallMethod {
	if installMethodHint != "" {
		return parseMethodHint(installMethodHint)
	}

	if detectSandbox() != platform.SandboxNone {
		return InstallMethodSandbox
	}

	if strings.Contains(execPath, homebrewMacARM) ||
		strings.Contains(execPath, homebrewMacIntel) ||
		strings.Contains(execPath, homebrewLinux) {
		return InstallMethodHomebrew
	}

	// Both conditions are required to avoid false positives from binaries
	// that happen to be placed in GOPATH/bin manually.
	if isInGOPATHBin(execPath) && hasModulePath() {
		return InstallMethodGoInstall
	}

	return InstallMethodStandalone
}

// UpgradeCommand returns the command that upgrades a managed install of app.
func UpgradeCommand(m InstallMethod, app string) string {
	switch m {
	case InstallMethodHomebrew:
		return "brew upgrade " + app
	case InstallMethodGoInstall:
		return "go install " + modulePath + "@latest"
	case InstallMethodSandbox:
		return platform.UpgradeCommandFor(detectSandbox(), app)
	case InstallMethodStandalone:
	}
	return ""
}

// DetectRunMode resolves RunModeAuto. An explicit mode wins, then the
// ldflags hint, then an executable built by `go run` in the temp directory.
func DetectRunMode(mode RunMode, execPath string) RunMode {
	if mode == RunModeBinary || mode == RunModeSource {
		return mode
	}
	if strings.EqualFold(runModeHint, string(RunModeSource)) {
		return RunModeSource
	}
	if isGoRunBinary(execPath, os.TempDir()) {
		return RunModeSource
	}
	return RunModeBinary
}

// isGoRunBinary reports whether execPath lives in a go-build work directory
// under tmp.
func isGoRunBinary(execPath, tmp string) bool {
	rel, err := filepath.Rel(filepath.Clean(tmp), filepath.Clean(execPath))
	if err != nil || !filepath.IsLocal(rel) {
		return false
	}
	first, _, _ := strings.Cut(filepath.ToSlash(rel), "/")
	return strings.HasPrefix(first, goRunDirPrefix)
}

// parseMethodHint converts a build-time ldflags hint string to an InstallMethod.
func parseMethodHint(hint string) InstallMethod {
	switch strings.ToLower(hint) {
	case "homebrew":
		return InstallMethodHomebrew
	case "goinstall":
		return InstallMethodGoInstall
	case "sandbox", "flatpak", "snap":
		return InstallMethodSandbox
	default:
		return InstallMethodStandalone
	}
}

// isInGOPATHBin checks whether the given path is inside $GOPATH/bin.
// It uses the GOPATH environment variable, falling back to ~/go if unset
// (matching the Go toolchain's default behavior).
func isInGOPATHBin(execPath string) bool {
	gopath := os.Getenv("GOPATH")
	if gopath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return false
		}
		gopath = filepath.Join(home, "go")
	}

	gopathBin := filepath.Clean(filepath.Join(gopath, "bin"))
	cleanExec := filepath.Clean(execPath)

	// The trailing separator matches the directory boundary, not a prefix
	// like /home/user/gobin vs /home/user/go/bin.
	return strings.HasPrefix(cleanExec, gopathBin+string(filepath.Separator)) ||
		cleanExec == gopathBin
}

// hasModulePath reports whether the build info names this module, confirming
// a `go install github.com/tunegrab/tunegrab@...` build.
func hasModulePath() bool {
	info, ok := readBuildInfo()
	if !ok || info == nil {
		return false
	}
	return strings.Contains(info.Path, modulePath)
}
