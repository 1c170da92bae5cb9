// SPDX-License-Identifier: MPL-2.0

package selfupdate

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/charmbracelet/log"

	"github.com/tunegrab/tunegrab/pkg/platform"
)

// checksumsAssetName is the conventional sha256sum manifest published with a release.
const checksumsAssetName = "checksums.txt"

// nonBinarySuffixes are asset suffixes that are never a bare executable.
//
//nolint:gochecknoglobals // Read-only lookup table.
var nonBinarySuffixes = []string{
	".zip", ".tar.gz", ".tgz", ".tar.xz", ".txt", ".sig", ".asc", ".pem",
	".sha256", ".json", ".deb", ".rpm", ".apk", ".dmg", ".pkg", ".msi", ".exe", ".sbom",
}

type (
	// ReleaseInfo is the discovered metadata of a candidate update. A new
	// value is produced on every discovery call.
	ReleaseInfo struct {
		Version          string // Tag with any leading "v" removed
		TagName          string
		BinaryURL        string // Empty when the release carries no native executable
		BinaryAssetName  string
		SourceArchiveURL string // Explicit source archive asset, else the API zipball
		ChecksumsURL     string
		ReleaseNotes     string
		HTMLURL          string
		PublishedAt      string

		// Available is true only when Version is strictly newer than the
		// running version and passes the configured constraint.
		Available bool
		// NoReleases is true when the repository has no published release.
		NoReleases bool
		// Constrained is true when a newer release exists but the configured
		// version constraint rejects it.
		Constrained bool
	}

	// Discovery looks up the latest published release and decides whether it
	// is an update for the running version. It never mutates local state.
	Discovery struct {
		cfg        Config
		client     *GitHubClient
		constraint *semver.Constraints
		logger     *log.Logger
	}
)

// NewDiscovery creates a Discovery for cfg. The client must already target
// cfg's repository; a nil client is built from cfg.
func NewDiscovery(cfg Config, client *GitHubClient, logger *log.Logger) (*Discovery, error) {
	cfg = cfg.withDefaults()
	if client == nil {
		client = NewGitHubClient(
			WithBaseURL(cfg.APIBaseURL),
			WithRepo(cfg.Owner, cfg.Repo),
			WithUserAgent(cfg.UserAgent),
			WithToken(cfg.Token),
		)
	}
	if logger == nil {
		logger = newDefaultLogger()
	}

	d := &Discovery{cfg: cfg, client: client, logger: logger}
	if cfg.Constraint != "" {
		c, err := semver.NewConstraint(cfg.Constraint)
		if err != nil {
			return nil, fmt.Errorf("%w: version constraint %q: %w", ErrInvalidConfig, cfg.Constraint, err)
		}
		d.constraint = c
	}
	return d, nil
}

// CheckForUpdate queries the latest release and compares it with the running
// version. A repository without releases yields NoReleases and no error.
// Transport, status and decoding failures are returned as *DiscoveryError
// and are never retried here.
func (d *Discovery) CheckForUpdate(ctx context.Context) (ReleaseInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, d.cfg.DiscoveryTimeout)
	defer cancel()

	rel, err := d.client.LatestRelease(ctx)
	if errors.Is(err, ErrNoReleasesFound) {
		d.logger.Info("no published releases", "repo", d.cfg.Owner+"/"+d.cfg.Repo)
		return ReleaseInfo{NoReleases: true}, nil
	}
	if err != nil {
		return ReleaseInfo{}, err
	}
	return d.evaluate(rel), nil
}

// CheckForVersion resolves the release tagged with version ("1.4.0" or "v1.4.0").
// The "v"-prefixed tag is tried first, then the bare one. It reports
// Available when that release is newer than the running version.
func (d *Discovery) CheckForVersion(ctx context.Context, version string) (ReleaseInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, d.cfg.DiscoveryTimeout)
	defer cancel()

	bare := trimVersionPrefix(version)
	var err error
	for _, tag := range []string{"v" + bare, bare} {
		var rel *Release
		rel, err = d.client.GetReleaseByTag(ctx, tag)
		if err == nil {
			return d.evaluate(rel), nil
		}
		if !errors.Is(err, ErrReleaseNotFound) {
			break
		}
		d.logger.Debug("release tag not found", "tag", tag)
	}
	return ReleaseInfo{}, err
}

// evaluate turns a release into a ReleaseInfo for the configured platform.
func (d *Discovery) evaluate(rel *Release) ReleaseInfo {
	info := ReleaseInfo{
		Version:      trimVersionPrefix(rel.TagName),
		TagName:      rel.TagName,
		ReleaseNotes: rel.Body,
		HTMLURL:      rel.HTMLURL,
		PublishedAt:  rel.PublishedAt,
	}

	if bin := selectBinaryAsset(rel.Assets, d.cfg.GOOS, d.cfg.GOARCH); bin != nil {
		info.BinaryURL = bin.BrowserDownloadURL
		info.BinaryAssetName = bin.Name
	}
	info.SourceArchiveURL = selectSourceArchive(rel)
	for _, a := range rel.Assets {
		if strings.EqualFold(a.Name, checksumsAssetName) || strings.HasSuffix(strings.ToLower(a.Name), "_"+checksumsAssetName) {
			info.ChecksumsURL = a.BrowserDownloadURL
			break
		}
	}

	if !IsNewer(info.Version, d.cfg.CurrentVersion) {
		d.logger.Debug("release is not newer", "latest", info.Version, "current", d.cfg.CurrentVersion)
		return info
	}

	if d.constraint != nil {
		v, err := semver.NewVersion(info.Version)
		if err == nil && !d.constraint.Check(v) {
			d.logger.Info("newer release excluded by constraint",
				"latest", info.Version, "constraint", d.cfg.Constraint)
			info.Constrained = true
			return info
		}
		if err != nil {
			d.logger.Warn("release version is not semver; constraint not applied", "version", info.Version, "err", err)
		}
	}

	info.Available = true
	return info
}

// trimVersionPrefix removes surrounding whitespace and a single leading "v".
func trimVersionPrefix(tag string) string {
	return strings.TrimPrefix(strings.TrimSpace(tag), "v")
}

// selectBinaryAsset returns the first asset that is a native executable for
// goos. On Windows that is the first ".exe" asset. Elsewhere executables have
// no extension, so the first extensionless asset naming the OS (and, when
// several do, the architecture) is chosen.
func selectBinaryAsset(assets []Asset, goos, goarch string) *Asset {
	if ext := platform.ExecutableExt(goos); ext != "" {
		for i := range assets {
			if strings.HasSuffix(strings.ToLower(assets[i].Name), ext) {
				return &assets[i]
			}
		}
		return nil
	}

	var osMatch *Asset
	for i := range assets {
		name := strings.ToLower(assets[i].Name)
		if hasAnySuffix(name, nonBinarySuffixes) || !matchesOS(name, goos) {
			continue
		}
		if matchesArch(name, goarch) {
			return &assets[i]
		}
		if osMatch == nil {
			osMatch = &assets[i]
		}
	}
	return osMatch
}

// selectSourceArchive prefers an explicit source zip asset over the API zipball.
func selectSourceArchive(rel *Release) string {
	for _, a := range rel.Assets {
		name := strings.ToLower(a.Name)
		if strings.HasSuffix(name, ".zip") && (strings.Contains(name, "source") || strings.Contains(name, "src")) {
			return a.BrowserDownloadURL
		}
	}
	return rel.ZipballURL
}

func matchesOS(name, goos string) bool {
	if goos == platform.Darwin {
		return strings.Contains(name, "darwin") || strings.Contains(name, "macos")
	}
	return strings.Contains(name, goos)
}

func matchesArch(name, goarch string) bool {
	switch goarch {
	case "amd64":
		return strings.Contains(name, "amd64") || strings.Contains(name, "x86_64")
	case "arm64":
		return strings.Contains(name, "arm64") || strings.Contains(name, "aarch64")
	default:
		return strings.Contains(name, goarch)
	}
}

func hasAnySuffix(s string, suffixes []string) bool {
	for _, suf := range suffixes {
		if strings.HasSuffix(s, suf) {
			return true
		}
	}
	return false
}
