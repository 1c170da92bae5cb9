// SPDX-License-Identifier: MPL-2.0

package selfupdate

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/tunegrab/tunegrab/pkg/platform"
)

const (
	// KindBinary is a standalone executable artifact.
	KindBinary ArtifactKind = iota + 1
	// KindSourceArchive is a zip archive of the source tree.
	KindSourceArchive
)

// ArtifactKind distinguishes what a download is expected to contain.
type ArtifactKind int

// String returns a human-readable name for the artifact kind.
func (k ArtifactKind) String() string {
	switch k {
	case KindBinary:
		return "binary"
	case KindSourceArchive:
		return "source-archive"
	}
	return "unknown"
}

// executableMagics returns the accepted file headers of native executables for goos.
func executableMagics(goos string) [][]byte {
	switch goos {
	case platform.Windows:
		return [][]byte{[]byte("MZ")}
	case platform.Darwin:
		return [][]byte{
			{0xfe, 0xed, 0xfa, 0xce}, // Mach-O 32-bit
			{0xfe, 0xed, 0xfa, 0xcf}, // Mach-O 64-bit
			{0xce, 0xfa, 0xed, 0xfe}, // Mach-O 32-bit, little endian
			{0xcf, 0xfa, 0xed, 0xfe}, // Mach-O 64-bit, little endian
			{0xca, 0xfe, 0xba, 0xbe}, // universal binary
		}
	default:
		return [][]byte{{0x7f, 'E', 'L', 'F'}}
	}
}

// ValidateBinary checks that path holds a plausible native executable for
// goos: it exists, is larger than minSize bytes and starts with the platform
// magic header. Failures are *InvalidArtifactError.
func ValidateBinary(path string, minSize int64, goos string) error {
	info, err := os.Stat(path)
	if err != nil {
		return &InvalidArtifactError{Path: path, Reason: fmt.Sprintf("not readable: %v", err)}
	}
	if !info.Mode().IsRegular() {
		return &InvalidArtifactError{Path: path, Reason: "not a regular file"}
	}
	if info.Size() <= minSize {
		return &InvalidArtifactError{
			Path:   path,
			Reason: fmt.Sprintf("%d bytes is not above the %d byte minimum", info.Size(), minSize),
		}
	}

	header, err := readHeader(path, 4)
	if err != nil {
		return &InvalidArtifactError{Path: path, Reason: fmt.Sprintf("reading header: %v", err)}
	}
	for _, magic := range executableMagics(goos) {
		if bytes.HasPrefix(header, magic) {
			return nil
		}
	}
	return &InvalidArtifactError{Path: path, Reason: fmt.Sprintf("missing %s executable header", goos)}
}

// readHeader returns up to n leading bytes of the file at path.
func readHeader(path string, n int) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }() // read-only handle

	buf := make([]byte, n)
	read, err := io.ReadFull(f, buf)
	if err != nil && err != io.ErrUnexpectedEOF {
		return nil, err
	}
	return buf[:read], nil
}
