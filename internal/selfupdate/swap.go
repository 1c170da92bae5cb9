// SPDX-License-Identifier: MPL-2.0

package selfupdate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/charmbracelet/log"

	"github.com/tunegrab/tunegrab/pkg/platform"
)

// Swap steps, in protocol order.
const (
	StepPrecheck SwapStep = iota
	StepBackup
	StepDetach
	StepPromote
	StepVerify
	StepRelaunch
)

// Swap states. Each names which of E (executable), N (artifact) and
// E_old (backup) hold what.
const (
	// SwapPending: nothing touched, E is the original.
	SwapPending SwapState = iota
	// SwapBackupCleared: stale backup removed or an alternate name chosen.
	SwapBackupCleared
	// SwapDetached: E renamed to E_old, canonical path vacant.
	SwapDetached
	// SwapPromoted: N copied to E, E_old is the original.
	SwapPromoted
	// SwapVerified: E confirmed present and plausibly sized.
	SwapVerified
	// SwapRelaunched: the successor at E has been started.
	SwapRelaunched
	// SwapRolledBack: E_old renamed back to E.
	SwapRolledBack
	// SwapDegraded: the restore rename failed; E_old holds the original.
	SwapDegraded
)

type (
	// SwapStep identifies a step of the swap protocol.
	SwapStep int

	// SwapState is the position of the swap state machine.
	SwapState int

	// SwapPlan is everything a swap needs. It is persisted as TOML when the
	// swap is handed to a detached helper.
	SwapPlan struct {
		Executable  string   `toml:"executable"`   // E, the canonical path
		Backup      string   `toml:"backup"`       // E_old
		Artifact    string   `toml:"artifact"`     // N, the downloaded binary
		SHA256      string   `toml:"sha256"`       // digest of N at download time, optional
		MinSize     int64    `toml:"min_size"`
		GOOS        string   `toml:"goos"`
		Args        []string `toml:"args"`         // arguments for the relaunched binary
		ParentPID   int      `toml:"parent_pid"`   // process to wait for, helper mode only
		FromVersion string   `toml:"from_version"`
		ToVersion   string   `toml:"to_version"`
		// RelaunchOriginal restarts the restored binary after a failed
		// relaunch. Only a helper sets it; in-process the original is still running.
		RelaunchOriginal bool `toml:"relaunch_original"`
	}

	// SwapOutcome reports a successful swap.
	SwapOutcome struct {
		State  SwapState
		Backup string // backup path actually used
		PID    int    // successor process
	}

	// Launcher starts an executable as a process independent of the caller.
	Launcher interface {
		Launch(path string, args []string) (pid int, err error)
	}

	// fileSystem is the set of file operations the swap performs. It exists
	// so tests can inject faults between steps.
	fileSystem interface {
		Stat(name string) (fs.FileInfo, error)
		Rename(oldpath, newpath string) error
		Remove(name string) error
		CopyFile(src, dst string, perm fs.FileMode) error
	}

	// Swapper executes the rename-then-copy-then-launch protocol over E, N
	// and E_old. After any step, at least one of E and E_old is the
	// original or the verified new executable.
	Swapper struct {
		fs       fileSystem
		launcher Launcher
		logger   *log.Logger
		now      func() time.Time
		state    SwapState
	}

	// SwapperOption configures a Swapper.
	SwapperOption func(*Swapper)

	osFileSystem struct{}

	// ProcessLauncher starts detached processes with os/exec.
	ProcessLauncher struct{}
)

// String returns the step name.
func (s SwapStep) String() string {
	switch s {
	case StepPrecheck:
		return "precheck"
	case StepBackup:
		return "backup"
	case StepDetach:
		return "detach"
	case StepPromote:
		return "promote"
	case StepVerify:
		return "verify"
	case StepRelaunch:
		return "relaunch"
	}
	return "step(" + strconv.Itoa(int(s)) + ")"
}

// String returns the state name.
func (s SwapState) String() string {
	switch s {
	case SwapPending:
		return "pending"
	case SwapBackupCleared:
		return "backup-cleared"
	case SwapDetached:
		return "detached"
	case SwapPromoted:
		return "promoted"
	case SwapVerified:
		return "verified"
	case SwapRelaunched:
		return "relaunched"
	case SwapRolledBack:
		return "rolled-back"
	case SwapDegraded:
		return "degraded"
	}
	return "swap(" + strconv.Itoa(int(s)) + ")"
}

// WithLauncher replaces the process launcher.
func WithLauncher(l Launcher) SwapperOption {
	return func(s *Swapper) { s.launcher = l }
}

// withFileSystem replaces the file operations, for fault injection in tests.
func withFileSystem(f fileSystem) SwapperOption {
	return func(s *Swapper) { s.fs = f }
}

// NewSwapper creates a Swapper operating on the real filesystem.
func NewSwapper(logger *log.Logger, opts ...SwapperOption) *Swapper {
	if logger == nil {
		logger = newDefaultLogger()
	}
	s := &Swapper{
		fs:       osFileSystem{},
		launcher: ProcessLauncher{},
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State returns the current position of the state machine.
func (s *Swapper) State() SwapState { return s.state }

// BackupPath returns the canonical backup path {stem}_old{ext} beside executable.
func BackupPath(executable, goos string) string {
	stem, ext := platform.SplitExecutable(goos, executable)
	return filepath.Join(filepath.Dir(executable), stem+"_old"+ext)
}

// alternateBackupPath derives a unique backup name used when the canonical
// backup is still locked by a lingering process.
func alternateBackupPath(executable, goos string, now time.Time) string {
	stem, ext := platform.SplitExecutable(goos, executable)
	return filepath.Join(filepath.Dir(executable), fmt.Sprintf("%s_old_%d%s", stem, now.UnixNano(), ext))
}

// Validate checks the swap preconditions on N: it exists, is above the
// minimum size, starts with the native executable header and, when the plan
// carries a digest, still matches it. On failure N is discarded and an
// *InvalidArtifactError is returned; E is never touched.
func (s *Swapper) Validate(plan SwapPlan) error {
	err := ValidateBinary(plan.Artifact, plan.MinSize, plan.GOOS)
	if err == nil && plan.SHA256 != "" {
		if sumErr := VerifyFile(plan.Artifact, plan.SHA256); sumErr != nil {
			err = &InvalidArtifactError{Path: plan.Artifact, Reason: sumErr.Error()}
		}
	}
	if err != nil {
		if rmErr := s.fs.Remove(plan.Artifact); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
			s.logger.Warn("could not discard invalid artifact", "path", plan.Artifact, "err", rmErr)
		}
		return err
	}
	return nil
}

// Execute runs the swap protocol.
//
//  1. Backup: remove a stale E_old, or pick an alternate backup name if it is locked.
//  2. Detach: rename E to E_old.
//  3. Promote: copy N to E. N is kept for startup cleanup.
//  4. Verify: E exists and is above the minimum size.
//  5. Relaunch: start E as an independent process.
//
// A failure in steps 3 to 5 rolls back by removing E and renaming E_old to E,
// reported as *InstallError. If that restore rename fails the result is a
// *DegradedStateError. Neither E_old nor N is deleted on success.
func (s *Swapper) Execute(ctx context.Context, plan SwapPlan) (*SwapOutcome, error) {
	s.state = SwapPending

	if err := s.Validate(plan); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, &InstallError{Step: StepPrecheck, Cause: err}
	}

	perm := fs.FileMode(0o755)
	if info, err := s.fs.Stat(plan.Executable); err != nil {
		return nil, &InstallError{Step: StepPrecheck, Cause: fmt.Errorf("stat executable: %w", err)}
	} else if info.Mode().Perm() != 0 {
		perm = info.Mode().Perm()
	}

	// 1. Backup
	backup := plan.Backup
	if _, err := s.fs.Stat(backup); err == nil {
		if rmErr := s.fs.Remove(backup); rmErr != nil {
			backup = alternateBackupPath(plan.Executable, plan.GOOS, s.now())
			s.logger.Info("stale backup is locked, using alternate backup path",
				"stale", plan.Backup, "backup", backup, "err", rmErr)
		}
	}
	s.state = SwapBackupCleared

	// 2. Detach
	if err := s.fs.Rename(plan.Executable, backup); err != nil {
		return nil, &InstallError{Step: StepDetach, Cause: err}
	}
	s.state = SwapDetached
	s.logger.Debug("executable detached", "executable", plan.Executable, "backup", backup)

	// 3. Promote
	if err := s.fs.CopyFile(plan.Artifact, plan.Executable, perm); err != nil {
		return nil, s.rollback(plan, backup, StepPromote, err)
	}
	s.state = SwapPromoted

	// 4. Verify
	info, err := s.fs.Stat(plan.Executable)
	if err == nil && info.Size() <= plan.MinSize {
		err = fmt.Errorf("promoted file is %d bytes, not above the %d byte minimum", info.Size(), plan.MinSize)
	}
	if err != nil {
		return nil, s.rollback(plan, backup, StepVerify, err)
	}
	s.state = SwapVerified

	// 5. Relaunch
	pid, err := s.launcher.Launch(plan.Executable, plan.Args)
	if err != nil {
		rbErr := s.rollback(plan, backup, StepRelaunch, err)
		if plan.RelaunchOriginal && s.state == SwapRolledBack {
			if _, origErr := s.launcher.Launch(plan.Executable, nil); origErr != nil {
				s.logger.Error("restored executable could not be relaunched", "executable", plan.Executable, "err", origErr)
			}
		}
		return nil, rbErr
	}
	s.state = SwapRelaunched
	s.logger.Info("successor started", "executable", plan.Executable, "pid", pid)

	return &SwapOutcome{State: s.state, Backup: backup, PID: pid}, nil
}

// rollback restores E from E_old after a failure at step.
func (s *Swapper) rollback(plan SwapPlan, backup string, step SwapStep, cause error) error {
	s.logger.Warn("swap failed, rolling back", "step", step, "err", cause)

	if err := s.fs.Remove(plan.Executable); err != nil && !errors.Is(err, fs.ErrNotExist) {
		s.logger.Warn("could not remove failed promoted file", "path", plan.Executable, "err", err)
	}

	if err := s.fs.Rename(backup, plan.Executable); err != nil {
		s.state = SwapDegraded
		s.logger.Error("ROLLBACK FAILED: manual recovery required",
			"executable", plan.Executable,
			"backup", backup,
			"recover", fmt.Sprintf("rename %q to %q", backup, plan.Executable),
			"cause", cause,
			"err", err)
		return &DegradedStateError{Executable: plan.Executable, Backup: backup, Cause: cause, RestoreErr: err}
	}

	s.state = SwapRolledBack
	s.logger.Info("original executable restored", "executable", plan.Executable)
	return &InstallError{Step: step, RolledBack: true, Cause: cause}
}

// Stat implements fileSystem.
func (osFileSystem) Stat(name string) (fs.FileInfo, error) { return os.Stat(name) }

// Rename implements fileSystem.
func (osFileSystem) Rename(oldpath, newpath string) error { return os.Rename(oldpath, newpath) }

// Remove implements fileSystem.
func (osFileSystem) Remove(name string) error { return os.Remove(name) }

// CopyFile copies src to a new file dst, syncing it before close. dst must not exist.
func (osFileSystem) CopyFile(src, dst string, perm fs.FileMode) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }() // read-only handle

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_EXCL|os.O_WRONLY, perm)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := out.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	if _, err = io.Copy(out, in); err != nil {
		return fmt.Errorf("copying %s to %s: %w", src, dst, err)
	}
	return out.Sync()
}

// Launch starts path detached from the calling process and releases it.
func (ProcessLauncher) Launch(path string, args []string) (int, error) {
	cmd := newDetachedCommand(path, args...)
	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("starting %s: %w", path, err)
	}
	pid := cmd.Process.Pid
	// The child is already running; a failed release only leaks a handle.
	_ = cmd.Process.Release()
	return pid, nil
}
