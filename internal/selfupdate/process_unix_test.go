// SPDX-License-Identifier: MPL-2.0

//go:build unix

package selfupdate

import (
	"errors"
	"os"
	"testing"

	"golang.org/x/sys/unix"
)

// errFileLocked is what removing an in-use file reports on this platform.
var errFileLocked = unix.ETXTBSY //nolint:gochecknoglobals // test fixture

func TestProcessAlive(t *testing.T) {
	t.Parallel()

	if !processAlive(os.Getpid()) {
		t.Error("own process reported as gone")
	}
	if processAlive(0) || processAlive(-1) {
		t.Error("non-positive pids must be reported as gone")
	}
}

func TestIsLockedError(t *testing.T) {
	t.Parallel()

	if !isLockedError(&os.PathError{Op: "remove", Path: "x", Err: unix.EBUSY}) {
		t.Error("EBUSY must count as locked")
	}
	if isLockedError(errors.New("other")) || isLockedError(unix.ENOENT) {
		t.Error("unrelated errors must not count as locked")
	}
}
