// SPDX-License-Identifier: MPL-2.0

package selfupdate

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

// elfMagic is the header the linux validator expects.
var elfMagic = []byte{0x7f, 'E', 'L', 'F'} //nolint:gochecknoglobals // test fixture

// writeExecutable writes a file of exactly size bytes starting with magic.
func writeExecutable(t *testing.T, path string, size int, magic []byte, fill byte) {
	t.Helper()

	data := make([]byte, size)
	for i := range data {
		data[i] = fill
	}
	copy(data, magic)
	if err := os.WriteFile(path, data, 0o755); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
}

func TestValidateBinary(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	const minSize = 1_000_000

	tests := []struct {
		name    string
		goos    string
		size    int
		magic   []byte
		wantErr bool
	}{
		{"valid elf", "linux", minSize + 1, elfMagic, false},
		{"valid pe", "windows", 1_500_000, []byte("MZ"), false},
		{"valid mach-o", "darwin", 1_200_000, []byte{0xcf, 0xfa, 0xed, 0xfe}, false},
		{"500 byte binary", "linux", 500, elfMagic, true},
		{"exactly minimum", "linux", minSize, elfMagic, true},
		{"html error page", "windows", 2_000_000, []byte("<!DOCTYPE html>"), true},
		{"pe on linux", "linux", 2_000_000, []byte("MZ"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			path := filepath.Join(dir, tt.name)
			writeExecutable(t, path, tt.size, tt.magic, 0x90)

			err := ValidateBinary(path, minSize, tt.goos)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidArtifact) {
					t.Fatalf("expected ErrInvalidArtifact, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestValidateBinary_Missing(t *testing.T) {
	t.Parallel()

	err := ValidateBinary(filepath.Join(t.TempDir(), "absent"), 10, "linux")
	var iae *InvalidArtifactError
	if !errors.As(err, &iae) {
		t.Fatalf("expected *InvalidArtifactError, got %v", err)
	}
}

func TestValidateBinary_Directory(t *testing.T) {
	t.Parallel()

	if err := ValidateBinary(t.TempDir(), 0, "linux"); !errors.Is(err, ErrInvalidArtifact) {
		t.Fatalf("expected ErrInvalidArtifact for a directory, got %v", err)
	}
}

func TestArtifactKind_String(t *testing.T) {
	t.Parallel()

	if KindBinary.String() != "binary" || KindSourceArchive.String() != "source-archive" || ArtifactKind(0).String() != "unknown" {
		t.Error("unexpected ArtifactKind names")
	}
}
