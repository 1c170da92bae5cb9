// SPDX-License-Identifier: MPL-2.0

package platform

import (
	"path/filepath"
	"strings"
)

// OS name constants for runtime.GOOS comparisons.
// Centralizes the string literals to avoid scattered magic strings.
const (
	Windows = "windows"
	Darwin  = "darwin"
	Linux   = "linux"
)

// ExecutableExt returns the native executable extension for goos,
// including the leading dot. It is empty on every platform but Windows.
func ExecutableExt(goos string) string {
	if goos == Windows {
		return ".exe"
	}
	return ""
}

// ExecutableName appends the native executable extension to base.
func ExecutableName(goos, base string) string {
	return base + ExecutableExt(goos)
}

// SplitExecutable splits the file name of path into its stem and extension.
// Only the native executable extension of goos is treated as an extension,
// so "tunegrab.v2" on Linux has stem "tunegrab.v2" and no extension.
func SplitExecutable(goos, path string) (stem, ext string) {
	base := filepath.Base(path)
	nativeExt := ExecutableExt(goos)
	if nativeExt != "" && strings.HasSuffix(strings.ToLower(base), nativeExt) {
		return base[:len(base)-len(nativeExt)], base[len(base)-len(nativeExt):]
	}
	return base, ""
}
