// SPDX-License-Identifier: MPL-2.0

package config

import (
	"os"
	"path/filepath"

	"github.com/tunegrab/tunegrab/internal/selfupdate"
)

// SelfUpdateConfig maps the update and source sections onto the
// self-update subsystem. currentVersion is the build version of the
// running binary. An empty source dir resolves to the working directory.
func (c *Config) SelfUpdateConfig(currentVersion string) selfupdate.Config {
	u := c.Update
	sourceDir := c.Source.Dir
	if sourceDir == "" {
		if wd, err := os.Getwd(); err == nil {
			sourceDir = wd
		}
	}

	return selfupdate.Config{
		AppName:          AppName,
		Owner:            u.Owner,
		Repo:             u.Repo,
		CurrentVersion:   currentVersion,
		APIBaseURL:       u.APIBaseURL,
		UserAgent:        u.UserAgent,
		Token:            c.GitHubToken,
		DiscoveryTimeout: u.DiscoveryTimeout,
		DownloadTimeout:  u.DownloadTimeout,
		TempDir:          u.TempDir,
		MinBinarySize:    u.MinBinarySize,
		ChunkSize:        u.ChunkSize,
		Constraint:       u.Constraint,
		VerifyChecksums:  u.VerifyChecksums,
		SwapMode:         selfupdate.SwapMode(u.SwapMode),
		RunMode:          selfupdate.RunMode(u.RunMode),
		CleanupGrace:     u.CleanupGrace,
		SourceDir:        sourceDir,
		SourceFiles:      append([]string(nil), c.Source.Files...),
	}
}

// HistoryPath returns the ledger database location.
func (c *Config) HistoryPath() (string, error) {
	if c.History.Path != "" {
		return c.History.Path, nil
	}
	cfgDir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(cfgDir, HistoryFileName), nil
}
