// SPDX-License-Identifier: MPL-2.0

//go:build unix || windows

package selfupdate

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestCleaner_LockedBackupLeftSilently(t *testing.T) {
	t.Parallel()

	fx := newCleanupFixture(t, filepath.Join("bin", "tunegrab_old"))
	var grace time.Duration
	remover := func(path string) error {
		return &os.PathError{Op: "remove", Path: path, Err: errFileLocked}
	}

	report := NewCleaner(fx.cfg, quietLogger(), noSleep(&grace), withRemover(remover)).
		CleanupPriorBackups(context.Background(), fx.executable)

	if len(report.Locked) != 1 || len(report.Failed) != 0 || len(report.Removed) != 0 {
		t.Errorf("report = %+v", report)
	}
	if !exists(filepath.Join(filepath.Dir(fx.executable), "tunegrab_old")) {
		t.Error("locked backup must stay for the next startup")
	}
}
