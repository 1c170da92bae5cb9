// SPDX-License-Identifier: MPL-2.0

package depcheck

import (
	"context"
	"errors"
	"strings"
)

type (
	// Result reports the versions before and after an upgrade. OldVersion is
	// empty when the tool was not installed.
	Result struct {
		OldVersion string `json:"old_version" yaml:"old_version"`
		NewVersion string `json:"new_version" yaml:"new_version"`
	}

	// Installer upgrades the tool through its package manager.
	Installer struct {
		checker *Checker
	}
)

// NewInstaller creates an Installer sharing the checker's runner and spec.
func NewInstaller(c *Checker) *Installer {
	return &Installer{checker: c}
}

// InstallLatestDependency runs the configured install command and re-reads
// the installed version.
func (i *Installer) InstallLatestDependency(ctx context.Context) (Result, error) {
	spec := i.checker.spec
	if len(spec.InstallCommand) == 0 {
		return Result{}, &VersionError{Kind: KindInstallFailed, Tool: spec.Name, Detail: "no install command configured"}
	}

	var res Result
	old, err := i.checker.InstalledVersion(ctx)
	switch {
	case err == nil:
		res.OldVersion = old
	case isKind(err, KindNotInstalled):
	default:
		return res, err
	}

	i.checker.logger.Info("upgrading dependency", "tool", spec.Name, "command", strings.Join(spec.InstallCommand, " "))
	out, err := i.checker.runner.Run(ctx, spec.InstallCommand[0], spec.InstallCommand[1:]...)
	if err != nil {
		return res, &VersionError{Kind: KindInstallFailed, Tool: spec.Name, Detail: lastLine(out), Err: err}
	}

	newVersion, err := i.checker.InstalledVersion(ctx)
	if err != nil {
		return res, err
	}
	res.NewVersion = newVersion
	return res, nil
}

func isKind(err error, kind ErrorKind) bool {
	var ve *VersionError
	return errors.As(err, &ve) && ve.Kind == kind
}

func lastLine(out []byte) string {
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}
