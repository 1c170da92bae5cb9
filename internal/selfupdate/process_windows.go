// SPDX-License-Identifier: MPL-2.0

//go:build windows

package selfupdate

import (
	"errors"
	"os/exec"
	"syscall"

	"golang.org/x/sys/windows"
)

// newDetachedCommand builds a command without a console in a new process
// group so it survives the parent's exit.
func newDetachedCommand(path string, args ...string) *exec.Cmd {
	cmd := exec.Command(path, args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{
		CreationFlags: windows.DETACHED_PROCESS | windows.CREATE_NEW_PROCESS_GROUP,
		HideWindow:    true,
	}
	return cmd
}

// processAlive reports whether pid still refers to a running process.
func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	h, err := windows.OpenProcess(windows.SYNCHRONIZE|windows.PROCESS_QUERY_LIMITED_INFORMATION, false, uint32(pid))
	if err != nil {
		// Access denied means the process exists under another account.
		return errors.Is(err, windows.ERROR_ACCESS_DENIED)
	}
	defer func() { _ = windows.CloseHandle(h) }()

	event, err := windows.WaitForSingleObject(h, 0)
	if err != nil {
		return false
	}
	return event != windows.WAIT_OBJECT_0
}

// isLockedError reports whether err means the file is held open by a process.
func isLockedError(err error) bool {
	return errors.Is(err, windows.ERROR_SHARING_VIOLATION) ||
		errors.Is(err, windows.ERROR_LOCK_VIOLATION) ||
		errors.Is(err, windows.ERROR_ACCESS_DENIED)
}
