// SPDX-License-Identifier: MPL-2.0

package selfupdate

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
)

var (
	//nolint:gochecknoglobals // Test seam for os.Executable().
	osExecutable = os.Executable

	//nolint:gochecknoglobals // Test seam for filepath.EvalSymlinks().
	evalSymlinks = filepath.EvalSymlinks
)

type (
	// Updater composes discovery, download, install and cleanup into one
	// update cycle. It is the primary facade for the selfupdate package.
	Updater struct {
		cfg         Config
		client      *GitHubClient
		logger      *log.Logger
		launcher    Launcher
		tracker     *StateTracker
		executable  string
		discovery   *Discovery
		downloader  *Downloader
		coordinator *Coordinator
		onDownload  func(*DownloadResult)
	}

	// UpdaterOption configures an Updater during construction.
	UpdaterOption func(*Updater)
)

// WithGitHubClient overrides the GitHubClient built from the Config.
func WithGitHubClient(c *GitHubClient) UpdaterOption {
	return func(u *Updater) { u.client = c }
}

// WithLogger sets the logger shared by every component.
func WithLogger(l *log.Logger) UpdaterOption {
	return func(u *Updater) { u.logger = l }
}

// WithStateListener observes the state transitions of each cycle.
func WithStateListener(l StateListener) UpdaterOption {
	return func(u *Updater) { u.tracker = NewStateTracker(l) }
}

// WithProcessLauncher replaces the launcher starting successors and helpers.
func WithProcessLauncher(l Launcher) UpdaterOption {
	return func(u *Updater) { u.launcher = l }
}

// WithDownloadListener registers fn to receive the artifact of every
// successful download made by Apply, before it is installed.
func WithDownloadListener(fn func(*DownloadResult)) UpdaterOption {
	return func(u *Updater) { u.onDownload = fn }
}

// WithExecutable pins the executable being updated instead of resolving the
// running one.
func WithExecutable(path string) UpdaterOption {
	return func(u *Updater) { u.executable = path }
}

// newDefaultLogger is used by components constructed without a logger.
func newDefaultLogger() *log.Logger {
	return log.NewWithOptions(os.Stderr, log.Options{Prefix: "selfupdate", Level: log.WarnLevel})
}

// NewUpdater validates cfg and builds the components of an update cycle.
func NewUpdater(cfg Config, opts ...UpdaterOption) (*Updater, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	u := &Updater{cfg: cfg, launcher: ProcessLauncher{}}
	for _, opt := range opts {
		opt(u)
	}
	if u.logger == nil {
		u.logger = newDefaultLogger()
	}
	if u.tracker == nil {
		u.tracker = NewStateTracker(nil)
	}
	if u.client == nil {
		u.client = NewGitHubClient(
			WithBaseURL(cfg.APIBaseURL),
			WithUserAgent(cfg.UserAgent),
			WithToken(cfg.Token),
			WithRepo(cfg.Owner, cfg.Repo),
		)
	}
	if u.executable == "" {
		exe, err := resolveExecPath()
		if err != nil {
			return nil, err
		}
		u.executable = exe
	}

	discovery, err := NewDiscovery(cfg, u.client, u.logger)
	if err != nil {
		return nil, err
	}
	u.discovery = discovery
	u.downloader = NewDownloader(cfg, u.client, u.logger)
	u.coordinator = NewCoordinator(cfg, u.executable, u.logger, WithCoordinatorLauncher(u.launcher))
	return u, nil
}

// Config returns the effective configuration.
func (u *Updater) Config() Config { return u.cfg }

// Executable returns the path being updated.
func (u *Updater) Executable() string { return u.executable }

// RunMode returns the resolved install strategy.
func (u *Updater) RunMode() RunMode { return u.coordinator.RunMode() }

// InstallMethod reports who owns the executable.
func (u *Updater) InstallMethod() InstallMethod { return u.coordinator.method(u.executable) }

// State returns the state of the current or last cycle.
func (u *Updater) State() (InstallState, error) { return u.tracker.State() }

// Check looks up the latest release. It never mutates local state.
func (u *Updater) Check(ctx context.Context) (ReleaseInfo, error) {
	return u.discovery.CheckForUpdate(ctx)
}

// CheckVersion looks up the release tagged version.
func (u *Updater) CheckVersion(ctx context.Context, version string) (ReleaseInfo, error) {
	return u.discovery.CheckForVersion(ctx, version)
}

// Download fetches the artifact of info the current run mode installs: the
// native executable in binary mode, the source archive in source mode. With
// VerifyChecksums set, a binary is also checked against the release's
// checksum manifest.
func (u *Updater) Download(ctx context.Context, info ReleaseInfo, progress ProgressFunc) (*DownloadResult, error) {
	if info.NoReleases {
		return nil, ErrNoUpdateAvailable
	}
	kind, url := KindBinary, info.BinaryURL
	if u.RunMode() == RunModeSource {
		kind, url = KindSourceArchive, info.SourceArchiveURL
	}
	if url == "" {
		return nil, fmt.Errorf("%w: %s %s for %s/%s", ErrNoCompatibleAsset, info.TagName, kind, u.cfg.GOOS, u.cfg.GOARCH)
	}

	res, err := u.downloader.Download(ctx, url, kind, progress)
	if err != nil {
		return nil, err
	}
	res.Version = info.Version

	if u.cfg.VerifyChecksums && kind == KindBinary {
		if info.ChecksumsURL == "" {
			u.discard(res.LocalPath)
			return nil, &DownloadError{URL: redactURL(url), Path: res.LocalPath, Reason: "release publishes no checksums", Cause: ErrAssetNotFound}
		}
		if err := u.downloader.VerifyChecksum(ctx, res, info.ChecksumsURL, info.BinaryAssetName); err != nil {
			u.discard(res.LocalPath)
			return nil, err
		}
	}
	return res, nil
}

// Install hands res to the install strategy of the current run mode.
func (u *Updater) Install(ctx context.Context, res *DownloadResult) (*InstallOutcome, error) {
	return u.coordinator.Install(ctx, res)
}

// Apply runs download and install as one tracked cycle. Only one cycle may
// run at a time per Updater.
func (u *Updater) Apply(ctx context.Context, info ReleaseInfo, progress ProgressFunc) (*InstallOutcome, error) {
	if err := u.tracker.Begin(); err != nil {
		return nil, err
	}

	u.tracker.Transition(StateDownloading, nil)
	res, err := u.Download(ctx, info, progress)
	if err != nil {
		u.tracker.Transition(StateFailed, err)
		return nil, err
	}
	if u.onDownload != nil {
		u.onDownload(res)
	}

	u.tracker.Transition(StateValidating, nil)
	if u.RunMode() == RunModeBinary {
		u.tracker.Transition(StateSwapping, nil)
	}
	out, err := u.Install(ctx, res)
	if err != nil {
		var ie *InstallError
		if errors.As(err, &ie) && ie.RolledBack {
			u.tracker.Transition(StateRolledBack, err)
		} else {
			u.tracker.Transition(StateFailed, err)
		}
		return nil, err
	}

	if out.ExitRequired {
		u.tracker.Transition(StateRelaunching, nil)
	}
	u.tracker.Transition(StateDone, nil)
	return out, nil
}

// Cleanup removes leftovers of earlier cycles. It does nothing in source mode.
func (u *Updater) Cleanup(ctx context.Context) CleanupReport {
	if u.RunMode() != RunModeBinary {
		return CleanupReport{}
	}
	return NewCleaner(u.cfg, u.logger).CleanupPriorBackups(ctx, u.executable)
}

func (u *Updater) discard(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		u.logger.Warn("could not remove rejected artifact", "path", path, "err", err)
	}
}

// resolveExecPath returns the absolute, symlink-resolved path of the running binary.
func resolveExecPath() (string, error) {
	p, err := osExecutable()
	if err != nil {
		return "", fmt.Errorf("determining executable path: %w", err)
	}

	resolved, err := evalSymlinks(p)
	if err != nil {
		return "", fmt.Errorf("resolving symlinks for %s: %w", p, err)
	}

	return resolved, nil
}
