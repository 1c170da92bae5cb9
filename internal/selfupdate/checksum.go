// SPDX-License-Identifier: MPL-2.0

package selfupdate

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

var (
	// ErrChecksumMismatch indicates the computed SHA256 hash does not match the expected hash.
	ErrChecksumMismatch = errors.New("checksum mismatch")

	// ErrAssetNotFound indicates the requested asset filename was not found in checksums.txt.
	ErrAssetNotFound = errors.New("asset not found in checksums")

	errNoValidEntries = errors.New("no valid checksum entries found")
)

type (
	// ChecksumEntry is one "{sha256}  {filename}" line of a release manifest.
	ChecksumEntry struct {
		Hash     string // lowercase hex
		Filename string
	}

	// ChecksumError reports a digest mismatch. It wraps ErrChecksumMismatch.
	ChecksumError struct {
		Filename string
		Expected string
		Got      string
	}
)

// Error returns both digests for debugging.
func (e *ChecksumError) Error() string {
	return fmt.Sprintf("checksum verification failed for %s\nExpected: %s\nGot:      %s", e.Filename, e.Expected, e.Got)
}

// Unwrap returns ErrChecksumMismatch so callers can use errors.Is.
func (e *ChecksumError) Unwrap() error { return ErrChecksumMismatch }

// ParseChecksums parses sha256sum output. Lines that are not
// "{64 hex chars}  {filename}" are skipped; an input without any valid line
// is an error.
func ParseChecksums(r io.Reader) ([]ChecksumEntry, error) {
	var entries []ChecksumEntry

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		hash, filename, ok := strings.Cut(strings.TrimSpace(scanner.Text()), "  ")
		if !ok {
			continue
		}
		// sha256sum marks binary mode with a leading '*'.
		filename = strings.TrimPrefix(strings.TrimSpace(filename), "*")
		if filename == "" || !isValidHexHash(hash) {
			continue
		}
		entries = append(entries, ChecksumEntry{Hash: strings.ToLower(hash), Filename: filename})
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading checksums: %w", err)
	}
	if len(entries) == 0 {
		return nil, errNoValidEntries
	}
	return entries, nil
}

// FindChecksum returns the hash recorded for filename, or ErrAssetNotFound.
func FindChecksum(entries []ChecksumEntry, filename string) (string, error) {
	for _, e := range entries {
		if e.Filename == filename {
			return e.Hash, nil
		}
	}
	return "", ErrAssetNotFound
}

// VerifyFile hashes the file at path and compares it with expectedHash.
func VerifyFile(path, expectedHash string) error {
	got, err := ComputeFileHash(path)
	if err != nil {
		return err
	}
	return matchChecksum(path, expectedHash, got)
}

// ComputeFileHash streams the file at path through SHA256 and returns the
// lowercase hex digest.
func ComputeFileHash(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }() // read-only handle

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hashing file %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// matchChecksum compares two hex digests case-insensitively.
func matchChecksum(name, expected, got string) error {
	if strings.EqualFold(expected, got) {
		return nil
	}
	return &ChecksumError{Filename: name, Expected: strings.ToLower(expected), Got: strings.ToLower(got)}
}

func isValidHexHash(s string) bool {
	if len(s) != sha256.Size*2 {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}
