// SPDX-License-Identifier: MPL-2.0

package selfupdate

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/tunegrab/tunegrab/pkg/platform"
)

const (
	// DefaultAppName names the temp directory and downloaded artifacts.
	DefaultAppName = "tunegrab"
	// DefaultOwner is the GitHub owner of the release repository.
	DefaultOwner = "tunegrab"
	// DefaultRepo is the GitHub repository publishing releases.
	DefaultRepo = "tunegrab"
	// DefaultUserAgent identifies the updater to the release-hosting API.
	DefaultUserAgent = "tunegrab-selfupdate"

	// DefaultDiscoveryTimeout bounds the single release lookup request.
	DefaultDiscoveryTimeout = 10 * time.Second
	// DefaultDownloadTimeout bounds a whole artifact download.
	DefaultDownloadTimeout = 2 * time.Minute
	// DefaultMinBinarySize is the smallest plausible executable. Anything at or
	// below it is treated as a truncated download or an HTML error page.
	DefaultMinBinarySize int64 = 1_000_000
	// DefaultChunkSize is the streaming buffer size used by the downloader.
	DefaultChunkSize = 32 << 10
	// DefaultCleanupGrace lets a just-exited helper release the backup file.
	DefaultCleanupGrace = time.Second

	// SwapModeAuto picks SwapModeHelper on Windows and SwapModeInProcess elsewhere.
	SwapModeAuto SwapMode = "auto"
	// SwapModeInProcess swaps from the running process and relaunches directly.
	SwapModeInProcess SwapMode = "inprocess"
	// SwapModeHelper hands the swap to a detached helper that waits for this process to exit.
	SwapModeHelper SwapMode = "helper"

	// RunModeAuto detects the run mode from the executable location.
	RunModeAuto RunMode = "auto"
	// RunModeBinary installs by swapping the standalone binary.
	RunModeBinary RunMode = "binary"
	// RunModeSource installs by overwriting allow-listed files of a source checkout.
	RunModeSource RunMode = "source"
)

// DefaultSourceFiles is the allow-list of files refreshed in source mode.
//
//nolint:gochecknoglobals // Read-only default copied into each Config.
var DefaultSourceFiles = []string{
	"go.mod",
	"go.sum",
	"main.go",
	"README.md",
	"LICENSE",
}

var (
	// ErrInvalidConfig is the sentinel wrapped by Config.Validate failures.
	ErrInvalidConfig = errors.New("invalid self-update configuration")
)

type (
	// SwapMode selects how the binary swap is executed.
	SwapMode string

	// RunMode selects the install strategy.
	RunMode string

	// Config carries every tunable of an update cycle. It is passed by value
	// into each component at construction; nothing reads process-wide state.
	Config struct {
		AppName        string
		Owner          string
		Repo           string
		CurrentVersion string

		APIBaseURL string
		UserAgent  string
		Token      string

		DiscoveryTimeout time.Duration
		DownloadTimeout  time.Duration

		// TempDir holds downloaded artifacts. Empty means <os temp>/<AppName>-update.
		TempDir       string
		MinBinarySize int64
		ChunkSize     int

		// Constraint optionally restricts acceptable releases, e.g. "~1.4".
		Constraint      string
		VerifyChecksums bool

		SwapMode     SwapMode
		RunMode      RunMode
		CleanupGrace time.Duration

		// SourceDir is the live source checkout updated in source mode.
		SourceDir   string
		SourceFiles []string

		// RelaunchArgs are passed to the promoted binary. Empty means the
		// post-update confirmation command.
		RelaunchArgs []string

		// GOOS and GOARCH select platform-specific naming and asset rules.
		// Empty means the running platform.
		GOOS   string
		GOARCH string
	}
)

// DefaultConfig returns a Config populated with production defaults.
func DefaultConfig() Config {
	return Config{
		AppName:          DefaultAppName,
		Owner:            DefaultOwner,
		Repo:             DefaultRepo,
		APIBaseURL:       DefaultAPIBaseURL,
		UserAgent:        DefaultUserAgent,
		DiscoveryTimeout: DefaultDiscoveryTimeout,
		DownloadTimeout:  DefaultDownloadTimeout,
		MinBinarySize:    DefaultMinBinarySize,
		ChunkSize:        DefaultChunkSize,
		SwapMode:         SwapModeAuto,
		RunMode:          RunModeAuto,
		CleanupGrace:     DefaultCleanupGrace,
		SourceFiles:      append([]string(nil), DefaultSourceFiles...),
	}
}

// withDefaults fills every zero-valued field from DefaultConfig.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.AppName == "" {
		c.AppName = d.AppName
	}
	if c.Owner == "" {
		c.Owner = d.Owner
	}
	if c.Repo == "" {
		c.Repo = d.Repo
	}
	if c.APIBaseURL == "" {
		c.APIBaseURL = d.APIBaseURL
	}
	if c.UserAgent == "" {
		c.UserAgent = d.UserAgent
	}
	if c.DiscoveryTimeout <= 0 {
		c.DiscoveryTimeout = d.DiscoveryTimeout
	}
	if c.DownloadTimeout <= 0 {
		c.DownloadTimeout = d.DownloadTimeout
	}
	if c.MinBinarySize <= 0 {
		c.MinBinarySize = d.MinBinarySize
	}
	if c.ChunkSize <= 0 {
		c.ChunkSize = d.ChunkSize
	}
	if c.SwapMode == "" {
		c.SwapMode = d.SwapMode
	}
	if c.RunMode == "" {
		c.RunMode = d.RunMode
	}
	if c.CleanupGrace < 0 {
		c.CleanupGrace = 0
	}
	if len(c.SourceFiles) == 0 {
		c.SourceFiles = d.SourceFiles
	}
	if c.GOOS == "" {
		c.GOOS = runtime.GOOS
	}
	if c.GOARCH == "" {
		c.GOARCH = runtime.GOARCH
	}
	return c
}

// Validate reports configuration values no component can work with.
func (c Config) Validate() error {
	switch c.SwapMode {
	case "", SwapModeAuto, SwapModeInProcess, SwapModeHelper:
	default:
		return fmt.Errorf("%w: unknown swap mode %q", ErrInvalidConfig, c.SwapMode)
	}
	switch c.RunMode {
	case "", RunModeAuto, RunModeBinary, RunModeSource:
	default:
		return fmt.Errorf("%w: unknown run mode %q", ErrInvalidConfig, c.RunMode)
	}
	if c.Owner == "" || c.Repo == "" {
		return fmt.Errorf("%w: release repository owner and name are required", ErrInvalidConfig)
	}
	for _, f := range c.SourceFiles {
		if !filepath.IsLocal(f) {
			return fmt.Errorf("%w: source file %q must be a relative path inside the source dir", ErrInvalidConfig, f)
		}
	}
	return nil
}

// ResolvedTempDir returns the per-application download directory.
func (c Config) ResolvedTempDir() string {
	if c.TempDir != "" {
		return c.TempDir
	}
	return filepath.Join(os.TempDir(), c.AppName+"-update")
}

// BinaryArtifactName is the file name a downloaded binary is stored under.
func (c Config) BinaryArtifactName() string {
	return c.AppName + "_new" + platform.ExecutableExt(c.GOOS)
}

// ArchiveArtifactName is the file name a downloaded source archive is stored under.
func (c Config) ArchiveArtifactName() string {
	return c.AppName + "_update.zip"
}

// effectiveSwapMode resolves SwapModeAuto for the configured platform.
func (c Config) effectiveSwapMode() SwapMode {
	if c.SwapMode != SwapModeAuto && c.SwapMode != "" {
		return c.SwapMode
	}
	if c.GOOS == platform.Windows {
		return SwapModeHelper
	}
	return SwapModeInProcess
}
