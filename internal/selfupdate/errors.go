// SPDX-License-Identifier: MPL-2.0

package selfupdate

import (
	"errors"
	"fmt"
)

var (
	// ErrDiscovery indicates the release lookup failed (transport, HTTP status or decoding).
	ErrDiscovery = errors.New("could not check for updates")

	// ErrNoReleasesFound indicates the repository has no published release.
	// CheckForUpdate treats it as "no update available".
	ErrNoReleasesFound = errors.New("no releases found")

	// ErrNoUpdateAvailable indicates there is nothing to install, e.g. a
	// ReleaseInfo describing an empty repository was passed to Download.
	ErrNoUpdateAvailable = errors.New("no update available")

	// ErrDownload indicates a transport or integrity failure while fetching an artifact.
	ErrDownload = errors.New("download failed")

	// ErrInvalidArtifact indicates a downloaded artifact failed pre-install validation.
	// No installed file has been touched when this is returned.
	ErrInvalidArtifact = errors.New("invalid artifact")

	// ErrInstallFailed indicates the install failed and the original executable was restored.
	ErrInstallFailed = errors.New("install failed")

	// ErrDegradedState indicates a rollback could not restore the original
	// executable and manual recovery is required.
	ErrDegradedState = errors.New("installation left in degraded state")

	// ErrManagedInstall indicates the binary is owned by a package manager or
	// sandbox and must be upgraded through it.
	ErrManagedInstall = errors.New("installation is managed externally")

	// ErrNoCompatibleAsset indicates the release carries no artifact the
	// current run mode can install.
	ErrNoCompatibleAsset = errors.New("release has no compatible artifact")

	// ErrCycleInProgress indicates another update cycle is already running in this process.
	ErrCycleInProgress = errors.New("an update cycle is already in progress")
)

type (
	// DiscoveryError describes a failed release lookup.
	DiscoveryError struct {
		URL        string // Redacted request URL
		StatusCode int    // HTTP status, zero for transport failures
		Cause      error
	}

	// DownloadError describes a failed artifact download. The partial file
	// at Path has already been removed when this error is returned.
	DownloadError struct {
		URL    string
		Path   string
		Reason string
		Cause  error
	}

	// InvalidArtifactError describes an artifact rejected before installation.
	InvalidArtifactError struct {
		Path   string
		Reason string
	}

	// InstallError describes a failed install attempt. RolledBack reports
	// whether the original executable was restored.
	InstallError struct {
		Step       SwapStep
		RolledBack bool
		Cause      error
	}

	// DegradedStateError is returned when the restore rename of a rollback
	// fails. Executable may be missing or broken; Backup holds the original.
	DegradedStateError struct {
		Executable string
		Backup     string
		Cause      error // failure that triggered the rollback
		RestoreErr error // failure of the rollback itself
	}
)

// Error implements the error interface.
func (e *DiscoveryError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%s: %v", ErrDiscovery, e.Cause)
	}
	msg := fmt.Sprintf("%s: %s returned HTTP %d", ErrDiscovery, e.URL, e.StatusCode)
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *DiscoveryError) Unwrap() error { return e.Cause }

// Is matches ErrDiscovery.
func (e *DiscoveryError) Is(target error) bool { return target == ErrDiscovery }

// Error implements the error interface.
func (e *DownloadError) Error() string {
	msg := fmt.Sprintf("%s: %s", ErrDownload, e.Reason)
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *DownloadError) Unwrap() error { return e.Cause }

// Is matches ErrDownload.
func (e *DownloadError) Is(target error) bool { return target == ErrDownload }

// Error implements the error interface.
func (e *InvalidArtifactError) Error() string {
	return fmt.Sprintf("%s %s: %s", ErrInvalidArtifact, e.Path, e.Reason)
}

// Unwrap returns ErrInvalidArtifact so callers can use errors.Is.
func (e *InvalidArtifactError) Unwrap() error { return ErrInvalidArtifact }

// Error implements the error interface.
func (e *InstallError) Error() string {
	state := "original restored"
	if !e.RolledBack {
		state = "nothing changed"
	}
	return fmt.Sprintf("%s during %s (%s): %v", ErrInstallFailed, e.Step, state, e.Cause)
}

// Unwrap returns the underlying cause.
func (e *InstallError) Unwrap() error { return e.Cause }

// Is matches ErrInstallFailed.
func (e *InstallError) Is(target error) bool { return target == ErrInstallFailed }

// Error implements the error interface.
func (e *DegradedStateError) Error() string {
	return fmt.Sprintf("%s: could not restore %s from %s: %v (after: %v)",
		ErrDegradedState, e.Executable, e.Backup, e.RestoreErr, e.Cause)
}

// Unwrap exposes both the triggering failure and the restore failure.
func (e *DegradedStateError) Unwrap() []error { return []error{e.Cause, e.RestoreErr} }

// Is matches ErrDegradedState.
func (e *DegradedStateError) Is(target error) bool { return target == ErrDegradedState }
