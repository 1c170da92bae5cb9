// SPDX-License-Identifier: MPL-2.0

package selfupdate

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
)

type (
	// ProgressFunc receives download progress. It is called from the
	// downloading goroutine after every chunk when the total size is known;
	// implementations must hand the values off to their own goroutine safely.
	ProgressFunc func(percent float64, downloaded, total int64)

	// DownloadResult describes one fetched artifact. The caller owns the file
	// at LocalPath.
	DownloadResult struct {
		LocalPath    string
		ByteSize     int64
		ExpectedSize int64 // -1 when the transport declared no length
		Kind         ArtifactKind
		SHA256       string // hex digest of the written bytes
		Version      string // release the artifact belongs to, when known
	}

	// Downloader streams release artifacts into the per-application temp
	// directory and applies the integrity gates.
	Downloader struct {
		cfg    Config
		client *GitHubClient
		logger *log.Logger
	}
)

// NewDownloader creates a Downloader writing into cfg.ResolvedTempDir().
func NewDownloader(cfg Config, client *GitHubClient, logger *log.Logger) *Downloader {
	cfg = cfg.withDefaults()
	if client == nil {
		client = NewGitHubClient(WithUserAgent(cfg.UserAgent), WithToken(cfg.Token), WithBaseURL(cfg.APIBaseURL))
	}
	if logger == nil {
		logger = newDefaultLogger()
	}
	return &Downloader{cfg: cfg, client: client, logger: logger}
}

// Download fetches rawURL to the canonical artifact path for kind.
//
// Stale artifacts from earlier attempts are removed first. The body is
// streamed in cfg.ChunkSize chunks. A declared Content-Length must match the
// bytes written exactly, and a KindBinary artifact must be larger than
// cfg.MinBinarySize. Any failure removes the partial file and returns a
// *DownloadError.
func (d *Downloader) Download(ctx context.Context, rawURL string, kind ArtifactKind, progress ProgressFunc) (*DownloadResult, error) {
	dir := d.cfg.ResolvedTempDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, &DownloadError{URL: redactURL(rawURL), Path: dir, Reason: "creating temp dir", Cause: err}
	}
	d.removeStalePartials(dir)

	dest := filepath.Join(dir, d.artifactName(kind))

	ctx, cancel := context.WithTimeout(ctx, d.cfg.DownloadTimeout)
	defer cancel()

	resp, err := d.client.OpenAsset(ctx, rawURL)
	if err != nil {
		return nil, &DownloadError{URL: redactURL(rawURL), Path: dest, Reason: "request failed", Cause: err}
	}
	defer func() { _ = resp.Body.Close() }() // read-only response body

	expected := resp.ContentLength
	if expected < 0 {
		expected = -1
	}

	fail := func(reason string, cause error) (*DownloadResult, error) {
		if rmErr := os.Remove(dest); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
			d.logger.Warn("could not remove rejected download", "path", dest, "err", rmErr)
		}
		return nil, &DownloadError{URL: redactURL(rawURL), Path: dest, Reason: reason, Cause: cause}
	}

	f, err := os.OpenFile(dest, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fail("creating artifact file", err)
	}

	h := sha256.New()
	written, copyErr := d.stream(f, h, resp.Body, expected, progress)
	closeErr := f.Close()

	switch {
	case copyErr != nil:
		return fail(fmt.Sprintf("transfer interrupted after %d bytes", written), copyErr)
	case closeErr != nil:
		return fail("flushing artifact file", closeErr)
	case expected >= 0 && written != expected:
		return fail(fmt.Sprintf("received %d bytes but %d were declared", written, expected), nil)
	case kind == KindBinary && written <= d.cfg.MinBinarySize:
		return fail(fmt.Sprintf("%d bytes is too small for an executable (minimum %d)", written, d.cfg.MinBinarySize), nil)
	}

	d.logger.Debug("artifact downloaded", "path", dest, "bytes", written, "kind", kind)
	return &DownloadResult{
		LocalPath:    dest,
		ByteSize:     written,
		ExpectedSize: expected,
		Kind:         kind,
		SHA256:       hex.EncodeToString(h.Sum(nil)),
	}, nil
}

// VerifyChecksum downloads the sha256sum manifest at checksumsURL and checks
// result against the entry for assetName. On mismatch the artifact is removed
// and a *DownloadError wrapping a *ChecksumError is returned.
func (d *Downloader) VerifyChecksum(ctx context.Context, result *DownloadResult, checksumsURL, assetName string) error {
	ctx, cancel := context.WithTimeout(ctx, d.cfg.DiscoveryTimeout)
	defer cancel()

	body, err := d.client.DownloadAsset(ctx, checksumsURL)
	if err != nil {
		return &DownloadError{URL: redactURL(checksumsURL), Path: result.LocalPath, Reason: "fetching checksums", Cause: err}
	}
	defer func() { _ = body.Close() }() // read-only response body

	entries, err := ParseChecksums(body)
	if err != nil {
		return &DownloadError{URL: redactURL(checksumsURL), Path: result.LocalPath, Reason: "parsing checksums", Cause: err}
	}
	want, err := FindChecksum(entries, assetName)
	if err != nil {
		return &DownloadError{URL: redactURL(checksumsURL), Path: result.LocalPath, Reason: "no checksum for " + assetName, Cause: err}
	}

	if err := matchChecksum(assetName, want, result.SHA256); err != nil {
		if rmErr := os.Remove(result.LocalPath); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
			d.logger.Warn("could not remove artifact failing checksum", "path", result.LocalPath, "err", rmErr)
		}
		return &DownloadError{URL: redactURL(checksumsURL), Path: result.LocalPath, Reason: "checksum mismatch", Cause: err}
	}
	return nil
}

// stream copies src into dst chunk by chunk, feeding h and reporting progress.
func (d *Downloader) stream(dst io.Writer, h hash.Hash, src io.Reader, total int64, progress ProgressFunc) (int64, error) {
	buf := make([]byte, d.cfg.ChunkSize)
	var written int64
	for {
		n, readErr := src.Read(buf)
		if n > 0 {
			if _, err := dst.Write(buf[:n]); err != nil {
				return written, err
			}
			h.Write(buf[:n])
			written += int64(n)
			if progress != nil && total > 0 {
				progress(min(100, float64(written)*100/float64(total)), written, total)
			}
		}
		if errors.Is(readErr, io.EOF) {
			return written, nil
		}
		if readErr != nil {
			return written, readErr
		}
	}
}

func (d *Downloader) artifactName(kind ArtifactKind) string {
	if kind == KindSourceArchive {
		return d.cfg.ArchiveArtifactName()
	}
	return d.cfg.BinaryArtifactName()
}

// removeStalePartials deletes artifacts left by an earlier attempt. Downloads
// are never resumed, so anything matching the artifact naming is stale.
func (d *Downloader) removeStalePartials(dir string) {
	for _, pattern := range stalePartialPatterns(d.cfg) {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			continue
		}
		for _, m := range matches {
			if err := os.Remove(m); err != nil && !errors.Is(err, fs.ErrNotExist) {
				d.logger.Debug("stale partial not removed", "path", m, "err", err)
				continue
			}
			d.logger.Debug("removed stale partial", "path", m)
		}
	}
}

// stalePartialPatterns are the glob patterns of downloaded artifacts.
func stalePartialPatterns(cfg Config) []string {
	return []string{cfg.AppName + "_new*", cfg.AppName + "_update*.zip"}
}
