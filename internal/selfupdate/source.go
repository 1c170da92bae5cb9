// SPDX-License-Identifier: MPL-2.0

package selfupdate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/klauspost/compress/zip"
)

// maxSourceFileBytes caps a single extracted entry.
const maxSourceFileBytes = 64 << 20

type (
	// SourceUpdater refreshes an allow-listed set of files in a source
	// checkout from a release archive. There is no rollback in this mode.
	SourceUpdater struct {
		cfg    Config
		logger *log.Logger
	}

	// SourceOutcome lists what InstallFromArchive changed.
	SourceOutcome struct {
		Dir     string   // live source directory
		Updated []string // allow-listed files written
		Missing []string // allow-listed files absent from the archive
	}
)

// NewSourceUpdater creates a SourceUpdater writing into cfg.SourceDir.
func NewSourceUpdater(cfg Config, logger *log.Logger) *SourceUpdater {
	if logger == nil {
		logger = newDefaultLogger()
	}
	return &SourceUpdater{cfg: cfg.withDefaults(), logger: logger}
}

// InstallFromArchive extracts archive into a scratch directory, locates the
// single top-level directory release archives are wrapped in (or uses the
// extraction root), and copies each allow-listed file over its counterpart
// in the source directory. The scratch directory and the archive are removed
// afterwards whatever the outcome.
func (u *SourceUpdater) InstallFromArchive(ctx context.Context, archive string) (*SourceOutcome, error) {
	defer u.discard(archive)

	if u.cfg.SourceDir == "" {
		return nil, &InstallError{Step: StepPrecheck, Cause: errors.New("source directory is not configured")}
	}

	tmp := u.cfg.ResolvedTempDir()
	if err := os.MkdirAll(tmp, 0o755); err != nil {
		return nil, &InstallError{Step: StepPrecheck, Cause: err}
	}
	scratch, err := os.MkdirTemp(tmp, u.cfg.AppName+"_src_*")
	if err != nil {
		return nil, &InstallError{Step: StepPrecheck, Cause: err}
	}
	defer u.discard(scratch)

	if err := extractZip(archive, scratch); err != nil {
		return nil, &InvalidArtifactError{Path: archive, Reason: err.Error()}
	}
	root, err := archiveRoot(scratch)
	if err != nil {
		return nil, &InvalidArtifactError{Path: archive, Reason: err.Error()}
	}

	out := &SourceOutcome{Dir: u.cfg.SourceDir}
	for _, name := range u.cfg.SourceFiles {
		if err := ctx.Err(); err != nil {
			return out, &InstallError{Step: StepPromote, Cause: err}
		}

		src := filepath.Join(root, filepath.FromSlash(name))
		if _, err := os.Stat(src); errors.Is(err, fs.ErrNotExist) {
			out.Missing = append(out.Missing, name)
			continue
		}

		dst := filepath.Join(u.cfg.SourceDir, filepath.FromSlash(name))
		if err := replaceFile(src, dst); err != nil {
			return out, &InstallError{Step: StepPromote, Cause: fmt.Errorf("updating %s: %w", name, err)}
		}
		out.Updated = append(out.Updated, name)
		u.logger.Debug("source file updated", "file", name)
	}

	u.logger.Info("source tree updated", "dir", u.cfg.SourceDir, "updated", len(out.Updated), "missing", len(out.Missing))
	return out, nil
}

// discard removes path, logging instead of failing.
func (u *SourceUpdater) discard(path string) {
	if err := os.RemoveAll(path); err != nil {
		u.logger.Warn("could not remove source update leftovers", "path", path, "err", err)
	}
}

// extractZip unpacks regular files and directories of archive into dir.
// Entries escaping dir and symlinks are rejected.
func extractZip(archive, dir string) error {
	r, err := zip.OpenReader(archive)
	if err != nil {
		return fmt.Errorf("opening archive: %w", err)
	}
	defer func() { _ = r.Close() }() // read-only

	for _, f := range r.File {
		rel := filepath.FromSlash(strings.TrimSuffix(f.Name, "/"))
		if rel == "" {
			continue
		}
		if !filepath.IsLocal(rel) {
			return fmt.Errorf("archive entry %q escapes the extraction directory", f.Name)
		}
		target := filepath.Join(dir, rel)

		mode := f.Mode()
		switch {
		case mode.IsDir():
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
		case mode.IsRegular():
			if err := extractFile(f, target); err != nil {
				return fmt.Errorf("extracting %s: %w", f.Name, err)
			}
		default:
			return fmt.Errorf("archive entry %q is not a regular file", f.Name)
		}
	}
	return nil
}

func extractFile(f *zip.File, target string) (err error) {
	if f.UncompressedSize64 > maxSourceFileBytes {
		return fmt.Errorf("entry is %d bytes, above the %d byte limit", f.UncompressedSize64, maxSourceFileBytes)
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}

	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer func() { _ = rc.Close() }()

	out, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := out.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	_, err = io.Copy(out, io.LimitReader(rc, maxSourceFileBytes))
	return err
}

// archiveRoot returns the single top-level directory of dir, or dir itself
// when the archive was not wrapped.
func archiveRoot(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}
	if len(entries) == 1 && entries[0].IsDir() {
		return filepath.Join(dir, entries[0].Name()), nil
	}
	return dir, nil
}

// replaceFile writes src over dst through a sibling temp file and a rename,
// keeping dst's permissions when it already exists.
func replaceFile(src, dst string) error {
	perm := fs.FileMode(0o644)
	if info, err := os.Stat(dst); err == nil {
		perm = info.Mode().Perm()
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	tmp, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }() // no-op after the rename

	if _, err := io.Copy(tmp, in); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		return err
	}
	return os.Rename(tmpName, dst)
}
