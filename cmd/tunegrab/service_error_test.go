// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"testing"
	"time"

	"github.com/tunegrab/tunegrab/internal/depcheck"
	"github.com/tunegrab/tunegrab/internal/issue"
	"github.com/tunegrab/tunegrab/internal/selfupdate"
)

func TestIssueFor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want issue.Id
	}{
		{"nil", nil, 0},
		{"unknown", errors.New("boom"), 0},
		{"rate limited", &selfupdate.DiscoveryError{StatusCode: 403, Cause: &selfupdate.RateLimitError{Limit: 60, ResetAt: time.Now()}}, issue.RateLimitedId},
		{"discovery", &selfupdate.DiscoveryError{StatusCode: 500}, issue.ReleaseDiscoveryFailedId},
		{"no asset", fmt.Errorf("download: %w", selfupdate.ErrNoCompatibleAsset), issue.NoCompatibleAssetId},
		{"download", &selfupdate.DownloadError{Reason: "timeout"}, issue.DownloadFailedId},
		{"invalid artifact", &selfupdate.InvalidArtifactError{Reason: "bad magic"}, issue.InvalidArtifactId},
		{"checksum", selfupdate.ErrChecksumMismatch, issue.ChecksumMismatchId},
		{"rolled back", &selfupdate.InstallError{RolledBack: true, Cause: errors.New("x")}, issue.InstallRolledBackId},
		{"degraded", &selfupdate.DegradedStateError{Cause: errors.New("a"), RestoreErr: errors.New("b")}, issue.DegradedStateId},
		{"managed", &selfupdate.ManagedInstallError{Method: selfupdate.InstallMethodHomebrew}, issue.ManagedInstallId},
		{"permission", fmt.Errorf("replace: %w", fs.ErrPermission), issue.PermissionDeniedId},
		{"dependency missing", &depcheck.VersionError{Kind: depcheck.KindNotInstalled, Tool: "yt-dlp"}, issue.DependencyMissingId},
		{"dependency upgrade", &depcheck.VersionError{Kind: depcheck.KindInstallFailed, Tool: "yt-dlp"}, issue.DependencyUpgradeFailedId},
		{"config", issue.NewErrorContext().WithOperation("load configuration").Wrap(errors.New("bad cue")).Build(), issue.ConfigLoadFailedId},
		{"other actionable", issue.NewErrorContext().WithOperation("install update").Wrap(errors.New("x")).Build(), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := issueFor(tt.err); got != tt.want {
				t.Errorf("issueFor(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}

func TestRenderError(t *testing.T) {
	t.Parallel()

	t.Run("silent exit error", func(t *testing.T) {
		t.Parallel()
		var buf bytes.Buffer
		renderError(&buf, &ExitError{Code: ExitDownload}, false, "dark")
		if buf.Len() != 0 {
			t.Errorf("output = %q, want nothing", buf.String())
		}
	})

	t.Run("plain error", func(t *testing.T) {
		t.Parallel()
		var buf bytes.Buffer
		renderError(&buf, errors.New("boom"), false, "dark")
		if got := buf.String(); !strings.Contains(got, "Error:") || !strings.Contains(got, "boom") {
			t.Errorf("output = %q", got)
		}
		if strings.Count(buf.String(), "\n") != 1 {
			t.Errorf("uncatalogued error printed more than one line: %q", buf.String())
		}
	})

	t.Run("catalogued error", func(t *testing.T) {
		t.Parallel()
		var buf bytes.Buffer
		err := withExitCode(&selfupdate.DownloadError{Reason: "connection reset"})
		renderError(&buf, err, false, "dark")
		got := buf.String()
		if !strings.Contains(got, "connection reset") {
			t.Errorf("output = %q", got)
		}
		if strings.Count(got, "\n") < 3 {
			t.Errorf("catalog entry not rendered: %q", got)
		}
	})
}

func TestFormatErrorForDisplay(t *testing.T) {
	t.Parallel()

	plain := errors.New("plain")
	if got := formatErrorForDisplay(plain, false); got != "plain" {
		t.Errorf("plain = %q", got)
	}

	ae := issue.NewErrorContext().
		WithOperation("install update").
		WithSuggestion("Pass --yes").
		Wrap(errors.New("confirmation required")).
		Build()
	if got := formatErrorForDisplay(ae, false); !strings.Contains(got, "Pass --yes") {
		t.Errorf("actionable = %q", got)
	}
}
