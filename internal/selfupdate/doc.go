// SPDX-License-Identifier: MPL-2.0

// Package selfupdate discovers, downloads and installs newer releases of the
// running tunegrab binary without ever leaving the installation unrunnable.
//
// The package is organized leaf-first:
//   - version.go: total dotted-version comparison
//   - github.go, discovery.go: GitHub Releases API lookup and asset selection
//   - download.go, artifact.go, checksum.go: streamed download and artifact gates
//   - swap.go, helper.go: the E / N / E_old swap state machine and its detached helper
//   - source.go: allow-list source tree replacement from a release archive
//   - cleanup.go: startup removal of stale backups and leftover artifacts
//   - install.go, state.go: strategy dispatch and the per-cycle state tracker
//   - selfupdate.go: Updater facade composing the above
//
// At every point of a binary swap at least one of the live executable and its
// backup is a complete, launchable binary. The backup is never deleted by the
// swap itself; the next process start removes it.
package selfupdate
