// SPDX-License-Identifier: MPL-2.0

// Package config handles application configuration using Viper with CUE as the file format.
//
// Configuration is loaded from ~/.config/tunegrab/config.cue (or XDG equivalent on Linux,
// ~/Library/Application Support/tunegrab/config.cue on macOS, %APPDATA%\tunegrab\config.cue
// on Windows). The package covers the self-update settings, the source checkout
// allow-list, the external downloader dependency, UI and logging preferences, and
// the update history ledger. TUNEGRAB_* environment variables override file values;
// GITHUB_TOKEN authenticates release discovery.
//
// Configuration validation is performed against a CUE schema (config_schema.cue) to ensure
// type safety and provide clear error messages for invalid configurations.
package config
