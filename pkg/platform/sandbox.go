// SPDX-License-Identifier: MPL-2.0

package platform

import (
	"fmt"
	"os"
	"sync"
)

// Sandbox type constants.
const (
	// SandboxNone indicates no sandbox environment detected.
	SandboxNone SandboxType = ""
	// SandboxFlatpak indicates a Flatpak sandbox environment.
	SandboxFlatpak SandboxType = "flatpak"
	// SandboxSnap indicates a Snap sandbox environment.
	SandboxSnap SandboxType = "snap"
)

// detectOnce caches the sandbox detection result for the lifetime of the process.
//
// detectSandboxFrom must not panic: sync.OnceValue re-panics on every later call.
var detectOnce = sync.OnceValue(func() SandboxType {
	return detectSandboxFrom(os.Getenv, statFile)
})

// SandboxType identifies the type of application sandbox, if any.
type SandboxType string

// DetectSandbox returns the type of application sandbox the current process is running in.
// The result is cached after the first call.
//
// Detection methods:
//   - Flatpak: Checks for existence of /.flatpak-info
//   - Snap: Checks for SNAP_NAME environment variable
func DetectSandbox() SandboxType {
	return detectOnce()
}

// IsInSandbox returns true if the current process is running inside a sandbox.
func IsInSandbox() bool {
	return DetectSandbox() != SandboxNone
}

// UpgradeCommandFor returns the command a user should run to upgrade app
// when it is installed through the given sandbox. The installed binary of a
// sandboxed app lives on a read-only mount and must not be swapped in place.
func UpgradeCommandFor(st SandboxType, app string) string {
	switch st {
	case SandboxFlatpak:
		return "flatpak update"
	case SandboxSnap:
		return fmt.Sprintf("snap refresh %s", app)
	case SandboxNone:
		return ""
	default:
		return ""
	}
}

// detectSandboxFrom performs sandbox detection using the provided lookup functions.
func detectSandboxFrom(lookupEnv func(string) string, statFile func(string) error) SandboxType {
	// Flatpak takes precedence. /.flatpak-info is always present inside a Flatpak sandbox.
	if err := statFile("/.flatpak-info"); err == nil {
		return SandboxFlatpak
	}

	if lookupEnv("SNAP_NAME") != "" {
		return SandboxSnap
	}

	return SandboxNone
}

// statFile checks for the existence of a file at the given path.
func statFile(path string) error {
	_, err := os.Stat(path)
	return err
}
