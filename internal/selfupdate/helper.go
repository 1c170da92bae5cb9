// SPDX-License-Identifier: MPL-2.0

package selfupdate

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/charmbracelet/log"
	"github.com/pelletier/go-toml/v2"

	"github.com/tunegrab/tunegrab/pkg/platform"
)

// DefaultParentWaitTimeout bounds how long a helper waits for its parent to exit.
const DefaultParentWaitTimeout = 30 * time.Second

var errParentRunning = errors.New("parent process still running")

type (
	// Helper runs a persisted SwapPlan from a detached process once the
	// process that wrote the plan has exited.
	Helper struct {
		swapper     *Swapper
		logger      *log.Logger
		waitTimeout time.Duration
		alive       func(pid int) bool
	}

	// HelperOption configures a Helper.
	HelperOption func(*Helper)
)

// HelperArgs returns the command line that runs the swap helper for planPath.
func HelperArgs(planPath string) []string {
	return []string{"internal", "swap-helper", "--plan", planPath}
}

// PlanPath is where a helper-mode swap plan is written.
func (c Config) PlanPath() string {
	return filepath.Join(c.ResolvedTempDir(), c.AppName+"_swap_plan.toml")
}

// HelperExecutablePath is where the running executable is copied to act as
// the helper, so the helper never holds E open.
func (c Config) HelperExecutablePath() string {
	return filepath.Join(c.ResolvedTempDir(), c.AppName+"_helper"+platform.ExecutableExt(c.GOOS))
}

// HelperLogPath is the log file a detached helper writes to.
func (c Config) HelperLogPath() string {
	return filepath.Join(c.ResolvedTempDir(), c.AppName+"_helper.log")
}

// WritePlan persists plan at path, replacing any previous plan atomically.
func WritePlan(path string, plan SwapPlan) error {
	data, err := toml.Marshal(plan)
	if err != nil {
		return fmt.Errorf("encoding swap plan: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("writing swap plan: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }() // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("writing swap plan: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("syncing swap plan: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("writing swap plan: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("installing swap plan: %w", err)
	}
	return nil
}

// ReadPlan loads and sanity-checks a plan written by WritePlan.
func ReadPlan(path string) (SwapPlan, error) {
	var plan SwapPlan

	data, err := os.ReadFile(path)
	if err != nil {
		return plan, fmt.Errorf("reading swap plan: %w", err)
	}
	if err := toml.Unmarshal(data, &plan); err != nil {
		return plan, fmt.Errorf("decoding swap plan %s: %w", path, err)
	}

	switch {
	case plan.Executable == "":
		return plan, fmt.Errorf("swap plan %s: executable is empty", path)
	case plan.Artifact == "":
		return plan, fmt.Errorf("swap plan %s: artifact is empty", path)
	case plan.Backup == "":
		return plan, fmt.Errorf("swap plan %s: backup is empty", path)
	case plan.Backup == plan.Executable || plan.Artifact == plan.Executable:
		return plan, fmt.Errorf("swap plan %s: executable, backup and artifact must differ", path)
	}
	return plan, nil
}

// SpawnHelper hands plan to a detached copy of self. The plan is written to
// cfg.PlanPath() and self is copied to cfg.HelperExecutablePath() before
// launching it; the caller is expected to exit promptly afterwards.
func SpawnHelper(cfg Config, plan SwapPlan, self string, launcher Launcher) (int, error) {
	cfg = cfg.withDefaults()
	if launcher == nil {
		launcher = ProcessLauncher{}
	}

	dir := cfg.ResolvedTempDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("creating helper dir: %w", err)
	}

	planPath := cfg.PlanPath()
	if err := WritePlan(planPath, plan); err != nil {
		return 0, err
	}

	helper := cfg.HelperExecutablePath()
	if err := os.Remove(helper); err != nil && !errors.Is(err, fs.ErrNotExist) {
		// A previous helper may still be exiting and hold its image open.
		stem, ext := platform.SplitExecutable(cfg.GOOS, helper)
		helper = filepath.Join(dir, stem+"_"+strconv.FormatInt(time.Now().UnixNano(), 10)+ext)
	}
	if err := (osFileSystem{}).CopyFile(self, helper, 0o755); err != nil {
		return 0, fmt.Errorf("copying helper executable: %w", err)
	}

	pid, err := launcher.Launch(helper, HelperArgs(planPath))
	if err != nil {
		return 0, fmt.Errorf("launching swap helper: %w", err)
	}
	return pid, nil
}

// WithParentWaitTimeout bounds the wait for the parent process.
func WithParentWaitTimeout(d time.Duration) HelperOption {
	return func(h *Helper) {
		if d > 0 {
			h.waitTimeout = d
		}
	}
}

// WithSwapper replaces the swapper executing the plan.
func WithSwapper(s *Swapper) HelperOption {
	return func(h *Helper) { h.swapper = s }
}

// withProcessAlive replaces the liveness probe, for tests.
func withProcessAlive(fn func(pid int) bool) HelperOption {
	return func(h *Helper) { h.alive = fn }
}

// NewHelper creates a Helper.
func NewHelper(logger *log.Logger, opts ...HelperOption) *Helper {
	if logger == nil {
		logger = newDefaultLogger()
	}
	h := &Helper{
		logger:      logger,
		waitTimeout: DefaultParentWaitTimeout,
		alive:       processAlive,
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.swapper == nil {
		h.swapper = NewSwapper(logger, WithLauncher(ProcessLauncher{}))
	}
	return h
}

// Run executes the plan at planPath. It first waits for plan.ParentPID to
// exit; if the parent outlives the timeout nothing is touched and an
// *InstallError at StepPrecheck is returned. The plan file is removed once
// the swap has finished, whatever its outcome.
func (h *Helper) Run(ctx context.Context, planPath string) (*SwapOutcome, error) {
	plan, err := ReadPlan(planPath)
	if err != nil {
		return nil, &InstallError{Step: StepPrecheck, Cause: err}
	}
	h.logger.Info("swap helper started",
		"plan", planPath, "from", plan.FromVersion, "to", plan.ToVersion, "parent", plan.ParentPID)

	if err := h.waitForExit(ctx, plan.ParentPID); err != nil {
		h.logger.Error("parent did not exit, aborting swap", "parent", plan.ParentPID, "err", err)
		return nil, &InstallError{Step: StepPrecheck, Cause: err}
	}

	out, err := h.swapper.Execute(ctx, plan)
	if rmErr := os.Remove(planPath); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
		h.logger.Warn("could not remove swap plan", "plan", planPath, "err", rmErr)
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

// waitForExit polls pid with exponential backoff until it is gone.
func (h *Helper) waitForExit(ctx context.Context, pid int) error {
	if pid <= 0 {
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 50 * time.Millisecond
	b.MaxInterval = time.Second
	b.MaxElapsedTime = h.waitTimeout

	op := func() error {
		if h.alive(pid) {
			return errParentRunning
		}
		return nil
	}
	if err := backoff.Retry(op, backoff.WithContext(b, ctx)); err != nil {
		return fmt.Errorf("waiting for pid %d: %w", pid, err)
	}
	h.logger.Debug("parent exited", "parent", pid)
	return nil
}
