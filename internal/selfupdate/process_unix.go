// SPDX-License-Identifier: MPL-2.0

//go:build unix

package selfupdate

import (
	"errors"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// newDetachedCommand builds a command that runs in its own session so it
// survives the parent's exit and terminal hangup.
func newDetachedCommand(path string, args ...string) *exec.Cmd {
	cmd := exec.Command(path, args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	return cmd
}

// processAlive reports whether pid still exists. EPERM means the process
// exists but belongs to another user.
func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := unix.Kill(pid, 0)
	return err == nil || errors.Is(err, unix.EPERM)
}

// isLockedError reports whether err means the file is in use by a process.
func isLockedError(err error) bool {
	return errors.Is(err, unix.ETXTBSY) || errors.Is(err, unix.EBUSY)
}
