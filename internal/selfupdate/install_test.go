// SPDX-License-Identifier: MPL-2.0

package selfupdate

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"
)

func standalone(string) InstallMethod { return InstallMethodStandalone }

func coordinatorConfig(fx *swapFixture, swap SwapMode) Config {
	return Config{
		CurrentVersion: "1.2.0",
		TempDir:        filepath.Dir(fx.artifact),
		GOOS:           "linux",
		GOARCH:         "amd64",
		RunMode:        RunModeBinary,
		SwapMode:       swap,
	}
}

func (fx *swapFixture) result() *DownloadResult {
	return &DownloadResult{
		LocalPath:    fx.artifact,
		ByteSize:     int64(len(fx.update)),
		ExpectedSize: int64(len(fx.update)),
		Kind:         KindBinary,
		Version:      "1.3.0",
	}
}

func TestCoordinator_InProcess(t *testing.T) {
	t.Parallel()

	fx := newSwapFixture(t)
	launcher := &fakeLauncher{}
	c := NewCoordinator(coordinatorConfig(fx, SwapModeInProcess), fx.executable, quietLogger(),
		WithCoordinatorLauncher(launcher), withInstallMethod(standalone))

	out, err := c.Install(context.Background(), fx.result())
	if err != nil {
		t.Fatalf("Install: %v", err)
	}
	if !out.ExitRequired || out.SwapMode != SwapModeInProcess || out.Swap == nil || out.Swap.State != SwapRelaunched {
		t.Errorf("outcome = %+v", out)
	}
	if !bytes.Equal(mustRead(t, fx.executable), fx.update) {
		t.Error("executable not updated")
	}
	want := []string{"internal", "post-update", "--from", "1.2.0", "--to", "1.3.0"}
	if len(launcher.launched) != 1 || !slices.Equal(launcher.launched[0].args, want) {
		t.Errorf("launches = %+v", launcher.launched)
	}
}

func TestCoordinator_CustomRelaunchArgs(t *testing.T) {
	t.Parallel()

	fx := newSwapFixture(t)
	cfg := coordinatorConfig(fx, SwapModeInProcess)
	cfg.RelaunchArgs = []string{"--resume"}
	launcher := &fakeLauncher{}

	c := NewCoordinator(cfg, fx.executable, quietLogger(), WithCoordinatorLauncher(launcher), withInstallMethod(standalone))
	if _, err := c.Install(context.Background(), fx.result()); err != nil {
		t.Fatalf("Install: %v", err)
	}
	if !slices.Equal(launcher.launched[0].args, []string{"--resume"}) {
		t.Errorf("args = %v", launcher.launched[0].args)
	}
}

func TestCoordinator_HelperMode(t *testing.T) {
	t.Parallel()

	fx := newSwapFixture(t)
	cfg := coordinatorConfig(fx, SwapModeHelper)
	launcher := &fakeLauncher{}
	c := NewCoordinator(cfg, fx.executable, quietLogger(), WithCoordinatorLauncher(launcher), withInstallMethod(standalone))

	out, err := c.Install(context.Background(), fx.result())
	if err != nil {
		t.Fatalf("Install: %v", err)
	}
	if !out.ExitRequired || out.HelperPID != 4242 || out.Swap != nil {
		t.Errorf("outcome = %+v", out)
	}
	// The helper performs the swap; nothing is touched yet.
	if !bytes.Equal(mustRead(t, fx.executable), fx.original) || exists(fx.backup) {
		t.Error("executable must be untouched until the helper runs")
	}

	cfg = cfg.withDefaults()
	plan, err := ReadPlan(cfg.PlanPath())
	if err != nil {
		t.Fatalf("ReadPlan: %v", err)
	}
	if plan.ParentPID != os.Getpid() || !plan.RelaunchOriginal || plan.Executable != fx.executable || plan.Backup != fx.backup {
		t.Errorf("plan = %+v", plan)
	}
	if launcher.launched[0].path != cfg.HelperExecutablePath() {
		t.Errorf("launched %q, want helper copy", launcher.launched[0].path)
	}
}

func TestCoordinator_AutoSwapModeByPlatform(t *testing.T) {
	t.Parallel()

	for goos, want := range map[string]SwapMode{"windows": SwapModeHelper, "linux": SwapModeInProcess, "darwin": SwapModeInProcess} {
		cfg := Config{GOOS: goos, SwapMode: SwapModeAuto}.withDefaults()
		if got := cfg.effectiveSwapMode(); got != want {
			t.Errorf("%s: swap mode = %s, want %s", goos, got, want)
		}
	}
}

func TestCoordinator_ManagedInstall(t *testing.T) {
	t.Parallel()

	fx := newSwapFixture(t)
	launcher := &fakeLauncher{}
	c := NewCoordinator(coordinatorConfig(fx, SwapModeInProcess), fx.executable, quietLogger(),
		WithCoordinatorLauncher(launcher),
		withInstallMethod(func(string) InstallMethod { return InstallMethodHomebrew }))

	_, err := c.Install(context.Background(), fx.result())
	var me *ManagedInstallError
	if !errors.As(err, &me) || me.Command != "brew upgrade tunegrab" {
		t.Fatalf("expected ManagedInstallError, got %v", err)
	}
	if !bytes.Equal(mustRead(t, fx.executable), fx.original) || len(launcher.launched) != 0 {
		t.Error("managed install must not be touched")
	}
}

func TestCoordinator_InvalidArtifactSpawnsNothing(t *testing.T) {
	t.Parallel()

	fx := newSwapFixture(t)
	writeExecutable(t, fx.artifact, 500, elfMagic, 'N')
	launcher := &fakeLauncher{}
	cfg := coordinatorConfig(fx, SwapModeHelper)
	c := NewCoordinator(cfg, fx.executable, quietLogger(), WithCoordinatorLauncher(launcher), withInstallMethod(standalone))

	_, err := c.Install(context.Background(), fx.result())
	if !errors.Is(err, ErrInvalidArtifact) {
		t.Fatalf("expected ErrInvalidArtifact, got %v", err)
	}
	if len(launcher.launched) != 0 {
		t.Error("no helper may be spawned for an invalid artifact")
	}
	if exists(cfg.withDefaults().PlanPath()) {
		t.Error("no plan may be written for an invalid artifact")
	}
}

func TestCoordinator_WrongArtifactKind(t *testing.T) {
	t.Parallel()

	fx := newSwapFixture(t)
	res := fx.result()
	res.Kind = KindSourceArchive

	c := NewCoordinator(coordinatorConfig(fx, SwapModeInProcess), fx.executable, quietLogger(),
		WithCoordinatorLauncher(&fakeLauncher{}), withInstallMethod(standalone))
	if _, err := c.Install(context.Background(), res); !errors.Is(err, ErrInvalidArtifact) {
		t.Fatalf("binary mode with an archive: expected ErrInvalidArtifact, got %v", err)
	}

	cfg := coordinatorConfig(fx, SwapModeInProcess)
	cfg.RunMode = RunModeSource
	cfg.SourceDir = t.TempDir()
	c = NewCoordinator(cfg, fx.executable, quietLogger(), withInstallMethod(standalone))
	if _, err := c.Install(context.Background(), fx.result()); !errors.Is(err, ErrInvalidArtifact) {
		t.Fatalf("source mode with a binary: expected ErrInvalidArtifact, got %v", err)
	}
}

func TestCoordinator_SourceMode(t *testing.T) {
	t.Parallel()

	cfg, archive := newSourceFixture(t)
	cfg.RunMode = RunModeSource
	writeZip(t, archive, map[string]string{"repo-abc/main.go": "package main // new"})

	// Source mode ignores install method detection entirely.
	c := NewCoordinator(cfg, filepath.Join(cfg.SourceDir, "tunegrab"), quietLogger(),
		withInstallMethod(func(string) InstallMethod { return InstallMethodHomebrew }))

	out, err := c.Install(context.Background(), &DownloadResult{LocalPath: archive, Kind: KindSourceArchive})
	if err != nil {
		t.Fatalf("Install: %v", err)
	}
	if out.ExitRequired || out.Source == nil || !slices.Equal(out.Source.Updated, []string{"main.go"}) {
		t.Errorf("outcome = %+v", out)
	}
}

func TestCoordinator_NilResult(t *testing.T) {
	t.Parallel()

	c := NewCoordinator(Config{}, "tunegrab", quietLogger())
	if _, err := c.Install(context.Background(), nil); !errors.Is(err, ErrInstallFailed) {
		t.Fatalf("expected ErrInstallFailed, got %v", err)
	}
}
