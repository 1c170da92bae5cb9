// SPDX-License-Identifier: MPL-2.0

//go:build !unix && !windows

package selfupdate

import "os/exec"

func newDetachedCommand(path string, args ...string) *exec.Cmd {
	return exec.Command(path, args...)
}

// processAlive cannot probe processes on this platform and assumes the
// parent has exited.
func processAlive(int) bool { return false }

func isLockedError(error) bool { return false }
