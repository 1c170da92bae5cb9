// SPDX-License-Identifier: MPL-2.0

// Package cmd contains all CLI commands for tunegrab.
//
// This package implements the Cobra command hierarchy for the tunegrab CLI:
// the update, deps, history and config commands, shell completion, and the
// hidden internal commands the updater starts in a child process.
package cmd
