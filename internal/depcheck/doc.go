// SPDX-License-Identifier: MPL-2.0

// Package depcheck keeps the external downloader tool (yt-dlp by default) in
// step with its latest published release: it reads the installed version from
// the tool itself, the latest version from a PyPI-style JSON endpoint, and
// upgrades through a configured package-manager command.
package depcheck
