// SPDX-License-Identifier: MPL-2.0

package selfupdate

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"

	"github.com/tunegrab/tunegrab/pkg/platform"
)

type (
	// CleanupReport lists what a cleanup pass did with each leftover.
	CleanupReport struct {
		Removed []string
		Locked  []string // still in use, retried on the next startup
		Failed  []string
	}

	// Cleaner removes leftovers of earlier update cycles at startup: backups
	// beside the executable and artifacts in the temp directory.
	Cleaner struct {
		cfg    Config
		logger *log.Logger
		remove func(path string) error
		sleep  func(ctx context.Context, d time.Duration) error
	}

	// CleanerOption configures a Cleaner.
	CleanerOption func(*Cleaner)
)

// withRemover replaces file removal, for tests.
func withRemover(fn func(path string) error) CleanerOption {
	return func(c *Cleaner) { c.remove = fn }
}

// withSleep replaces the grace-period wait, for tests.
func withSleep(fn func(ctx context.Context, d time.Duration) error) CleanerOption {
	return func(c *Cleaner) { c.sleep = fn }
}

// NewCleaner creates a Cleaner for cfg.
func NewCleaner(cfg Config, logger *log.Logger, opts ...CleanerOption) *Cleaner {
	if logger == nil {
		logger = newDefaultLogger()
	}
	c := &Cleaner{
		cfg:    cfg.withDefaults(),
		logger: logger,
		remove: os.RemoveAll,
		sleep:  sleepContext,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CleanupPriorBackups deletes every backup matching {stem}_old*{ext} beside
// executable and every stale artifact in the temp directory. When anything
// matches it first waits cfg.CleanupGrace so a helper that just exited can
// release its handles. Files still locked are left for the next startup.
func (c *Cleaner) CleanupPriorBackups(ctx context.Context, executable string) CleanupReport {
	var report CleanupReport

	candidates := c.candidates(executable)
	if len(candidates) == 0 {
		return report
	}

	if err := c.sleep(ctx, c.cfg.CleanupGrace); err != nil {
		c.logger.Debug("cleanup canceled during grace period", "err", err)
		return report
	}

	for _, path := range candidates {
		err := c.remove(path)
		switch {
		case err == nil || errors.Is(err, fs.ErrNotExist):
			report.Removed = append(report.Removed, path)
			c.logger.Debug("removed update leftover", "path", path)
		case isLockedError(err):
			report.Locked = append(report.Locked, path)
			c.logger.Debug("update leftover still in use", "path", path)
		default:
			report.Failed = append(report.Failed, path)
			c.logger.Warn("could not remove update leftover", "path", path, "err", err)
		}
	}
	return report
}

// candidates globs every leftover path. The running executable is never a candidate.
func (c *Cleaner) candidates(executable string) []string {
	var patterns []string
	if executable != "" {
		stem, ext := platform.SplitExecutable(c.cfg.GOOS, executable)
		patterns = append(patterns, filepath.Join(filepath.Dir(executable), globQuote(stem)+"_old*"+ext))
	}

	tmp := globQuote(c.cfg.ResolvedTempDir())
	app := globQuote(c.cfg.AppName)
	ext := platform.ExecutableExt(c.cfg.GOOS)
	patterns = append(patterns,
		filepath.Join(tmp, app+"_new*"),
		filepath.Join(tmp, app+"_update*.zip"),
		filepath.Join(tmp, app+"_swap_plan.toml*"),
		filepath.Join(tmp, app+"_helper"+ext),
		filepath.Join(tmp, app+"_helper_*"+ext),
		filepath.Join(tmp, app+"_src_*"),
	)

	self := filepath.Clean(executable)
	seen := make(map[string]bool)
	var out []string
	for _, pattern := range patterns {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			c.logger.Warn("invalid cleanup pattern", "pattern", pattern, "err", err)
			continue
		}
		for _, m := range matches {
			if seen[m] || filepath.Clean(m) == self {
				continue
			}
			seen[m] = true
			out = append(out, m)
		}
	}
	return out
}

// globQuote escapes glob metacharacters in a literal path segment.
func globQuote(s string) string {
	out := make([]byte, 0, len(s))
	for i := range len(s) {
		switch s[i] {
		case '*', '?', '[':
			out = append(out, '[', s[i], ']')
		default:
			out = append(out, s[i])
		}
	}
	return string(out)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
