// SPDX-License-Identifier: MPL-2.0

package selfupdate

import (
	"context"
	"fmt"
	"os"

	"github.com/charmbracelet/log"
)

type (
	// InstallOutcome reports which strategy ran and what the caller must do next.
	InstallOutcome struct {
		RunMode  RunMode
		SwapMode SwapMode // binary mode only

		Swap      *SwapOutcome   // in-process swap result
		HelperPID int            // detached helper, helper mode only
		Source    *SourceOutcome // source mode result

		// ExitRequired is true when a successor or helper is running and the
		// current process must exit now.
		ExitRequired bool
	}

	// Coordinator dispatches an artifact to the install strategy matching
	// how the running program was built. It has no retry logic; failure
	// handling lives in the strategies.
	Coordinator struct {
		cfg        Config
		executable string
		logger     *log.Logger
		swapper    *Swapper
		source     *SourceUpdater
		launcher   Launcher
		method     func(execPath string) InstallMethod
		pid        func() int
	}

	// CoordinatorOption configures a Coordinator.
	CoordinatorOption func(*Coordinator)
)

// WithCoordinatorLauncher replaces the launcher used for the successor or helper.
func WithCoordinatorLauncher(l Launcher) CoordinatorOption {
	return func(c *Coordinator) { c.launcher = l }
}

// withInstallMethod replaces install method detection, for tests.
func withInstallMethod(fn func(execPath string) InstallMethod) CoordinatorOption {
	return func(c *Coordinator) { c.method = fn }
}

// NewCoordinator creates a Coordinator installing over executable.
func NewCoordinator(cfg Config, executable string, logger *log.Logger, opts ...CoordinatorOption) *Coordinator {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = newDefaultLogger()
	}
	c := &Coordinator{
		cfg:        cfg,
		executable: executable,
		logger:     logger,
		launcher:   ProcessLauncher{},
		method:     DetectInstallMethod,
		pid:        os.Getpid,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.swapper = NewSwapper(logger, WithLauncher(c.launcher))
	c.source = NewSourceUpdater(cfg, logger)
	return c
}

// RunMode returns the resolved install strategy for the running program.
func (c *Coordinator) RunMode() RunMode {
	return DetectRunMode(c.cfg.RunMode, c.executable)
}

// Install applies res. Source mode refreshes the source tree from an
// archive. Binary mode validates the artifact, then either swaps in process
// or hands a plan to a detached helper. Managed installs are refused with a
// *ManagedInstallError before anything is touched.
func (c *Coordinator) Install(ctx context.Context, res *DownloadResult) (*InstallOutcome, error) {
	if res == nil {
		return nil, &InstallError{Step: StepPrecheck, Cause: fmt.Errorf("no artifact to install")}
	}

	mode := c.RunMode()
	if mode == RunModeSource {
		if res.Kind != KindSourceArchive {
			return nil, &InvalidArtifactError{Path: res.LocalPath, Reason: "source mode needs a source archive, got " + res.Kind.String()}
		}
		out, err := c.source.InstallFromArchive(ctx, res.LocalPath)
		if err != nil {
			return nil, err
		}
		return &InstallOutcome{RunMode: mode, Source: out}, nil
	}

	if m := c.method(c.executable); m.Managed() {
		return nil, &ManagedInstallError{Method: m, Command: UpgradeCommand(m, c.cfg.AppName)}
	}
	if res.Kind != KindBinary {
		return nil, &InvalidArtifactError{Path: res.LocalPath, Reason: "binary mode needs an executable, got " + res.Kind.String()}
	}

	plan := c.plan(res)
	if err := c.swapper.Validate(plan); err != nil {
		return nil, err
	}

	swapMode := c.cfg.effectiveSwapMode()
	out := &InstallOutcome{RunMode: mode, SwapMode: swapMode, ExitRequired: true}

	if swapMode == SwapModeHelper {
		plan.ParentPID = c.pid()
		plan.RelaunchOriginal = true
		pid, err := SpawnHelper(c.cfg, plan, c.executable, c.launcher)
		if err != nil {
			return nil, &InstallError{Step: StepPrecheck, Cause: err}
		}
		c.logger.Info("swap handed to helper", "pid", pid, "plan", c.cfg.PlanPath())
		out.HelperPID = pid
		return out, nil
	}

	swap, err := c.swapper.Execute(ctx, plan)
	if err != nil {
		return nil, err
	}
	out.Swap = swap
	return out, nil
}

// PostUpdateArgs is the command line a promoted binary is started with by default.
func PostUpdateArgs(from, to string) []string {
	return []string{"internal", "post-update", "--from", from, "--to", to}
}

func (c *Coordinator) plan(res *DownloadResult) SwapPlan {
	args := c.cfg.RelaunchArgs
	if len(args) == 0 {
		args = PostUpdateArgs(c.cfg.CurrentVersion, res.Version)
	}
	return SwapPlan{
		Executable:  c.executable,
		Backup:      BackupPath(c.executable, c.cfg.GOOS),
		Artifact:    res.LocalPath,
		SHA256:      res.SHA256,
		MinSize:     c.cfg.MinBinarySize,
		GOOS:        c.cfg.GOOS,
		Args:        args,
		FromVersion: c.cfg.CurrentVersion,
		ToVersion:   res.Version,
	}
}
