// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"errors"
	"fmt"
	"io"
	"io/fs"

	"github.com/tunegrab/tunegrab/internal/depcheck"
	"github.com/tunegrab/tunegrab/internal/issue"
	"github.com/tunegrab/tunegrab/internal/selfupdate"
)

// issueFor picks the catalog entry that explains err, or 0 when none fits.
func issueFor(err error) issue.Id {
	var (
		rateErr *selfupdate.RateLimitError
		instErr *selfupdate.InstallError
		depErr  *depcheck.VersionError
		actErr  *issue.ActionableError
	)
	switch {
	case err == nil:
		return 0
	case errors.Is(err, selfupdate.ErrDegradedState):
		return issue.DegradedStateId
	case errors.As(err, &instErr) && instErr.RolledBack:
		return issue.InstallRolledBackId
	case errors.As(err, &rateErr):
		return issue.RateLimitedId
	case errors.Is(err, selfupdate.ErrDiscovery):
		return issue.ReleaseDiscoveryFailedId
	case errors.Is(err, selfupdate.ErrNoCompatibleAsset):
		return issue.NoCompatibleAssetId
	case errors.Is(err, selfupdate.ErrChecksumMismatch):
		return issue.ChecksumMismatchId
	case errors.Is(err, selfupdate.ErrInvalidArtifact):
		return issue.InvalidArtifactId
	case errors.Is(err, selfupdate.ErrDownload):
		return issue.DownloadFailedId
	case errors.Is(err, selfupdate.ErrManagedInstall):
		return issue.ManagedInstallId
	case errors.As(err, &depErr) && depErr.Kind == depcheck.KindNotInstalled:
		return issue.DependencyMissingId
	case errors.As(err, &depErr) && depErr.Kind == depcheck.KindInstallFailed:
		return issue.DependencyUpgradeFailedId
	case errors.Is(err, fs.ErrPermission):
		return issue.PermissionDeniedId
	case errors.As(err, &actErr) && isConfigOperation(actErr.Operation):
		return issue.ConfigLoadFailedId
	default:
		return 0
	}
}

func isConfigOperation(op string) bool {
	return op == "load configuration" || op == "validate configuration"
}

// formatErrorForDisplay formats an error for user display.
// If the error is an ActionableError, it uses the Format method.
// In verbose mode, shows the full error chain.
func formatErrorForDisplay(err error, verboseMode bool) string {
	var ae *issue.ActionableError
	if errors.As(err, &ae) {
		return ae.Format(verboseMode)
	}
	return err.Error()
}

// renderError prints err followed by the catalog entry explaining it.
// An ExitError without a cause only carries a code and prints nothing.
func renderError(w io.Writer, err error, verbose bool, style string) {
	var exitErr *ExitError
	if errors.As(err, &exitErr) && exitErr.Err == nil {
		return
	}

	fmt.Fprintln(w, ErrorStyle.Render("Error: ")+formatErrorForDisplay(err, verbose))

	id := issueFor(err)
	if id == 0 {
		return
	}
	if entry := issue.Get(id); entry != nil {
		rendered, renderErr := entry.Render(style)
		if renderErr != nil {
			return
		}
		fmt.Fprint(w, rendered)
	}
}
