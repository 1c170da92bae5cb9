// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"errors"
	"fmt"

	"github.com/tunegrab/tunegrab/internal/selfupdate"
)

// Process exit codes of the update commands.
const (
	ExitOK         = 0
	ExitFailure    = 1
	ExitDiscovery  = 2
	ExitDownload   = 3
	ExitRolledBack = 4
	ExitDegraded   = 5
)

// ExitError signals a non-zero exit code without forcing os.Exit in RunE handlers.
type ExitError struct {
	Code int
	Err  error
}

// Error returns the error message for ExitError.
func (e *ExitError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("exit status %d", e.Code)
}

// Unwrap returns the underlying error, if any.
func (e *ExitError) Unwrap() error {
	return e.Err
}

// exitCodeFor maps an update failure onto its exit code. The most severe
// classification wins: a degraded install is reported as such even though
// it is also an install failure.
func exitCodeFor(err error) int {
	var ie *selfupdate.InstallError
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, selfupdate.ErrDegradedState):
		return ExitDegraded
	case errors.As(err, &ie) && ie.RolledBack:
		return ExitRolledBack
	case errors.Is(err, selfupdate.ErrDownload),
		errors.Is(err, selfupdate.ErrInvalidArtifact),
		errors.Is(err, selfupdate.ErrChecksumMismatch):
		return ExitDownload
	case errors.Is(err, selfupdate.ErrDiscovery):
		return ExitDiscovery
	default:
		return ExitFailure
	}
}

// withExitCode wraps err in an ExitError carrying its classified code.
func withExitCode(err error) error {
	if err == nil {
		return nil
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return err
	}
	return &ExitError{Code: exitCodeFor(err), Err: err}
}
