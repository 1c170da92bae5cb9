// SPDX-License-Identifier: MPL-2.0

// Package tui provides the terminal UI pieces of the update commands: the
// download progress bar, the install confirmation prompt, release notes
// rendering and tabular output. Interactive components fall back to plain
// text when stdin or the output is not a terminal.
package tui
