// SPDX-License-Identifier: MPL-2.0

package selfupdate

import "testing"

func TestCompareVersions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		a, b string
		want Ordering
	}{
		{"1.10.0", "1.9.0", Newer},
		{"1.9.0", "1.10.0", Older},
		{"1.2", "1.2.0", Equal},
		{"1.2.0.0", "1.2", Equal},
		{"1.3.0", "1.2", Newer},
		{"2026.02.04", "2026.2.4", Equal},
		{"2025.12.31", "2026.01.01", Older},
		{"0", "0.0.0", Equal},
		{"10", "9", Newer},
		{"1.0.99999999999999999999999", "1.0.99999999999999999999998", Newer},
		{"007.1", "7.1", Equal},
	}

	for _, tt := range tests {
		t.Run(tt.a+"_vs_"+tt.b, func(t *testing.T) {
			t.Parallel()
			if got := CompareVersions(tt.a, tt.b); got != tt.want {
				t.Errorf("CompareVersions(%q, %q) = %s, want %s", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestCompareVersions_MalformedFallsBackToLexicographic(t *testing.T) {
	t.Parallel()

	tests := []struct {
		a, b string
		want Ordering
	}{
		{"2026.02.04", "abc", Older},
		{"abc", "2026.02.04", Newer},
		{"1.2.x", "1.2.x", Equal},
		{"", "1.0", Older},
		{"1..2", "1.2", Older},
		{"v1.3.0", "1.3.0", Newer},
		{"1.0-beta", "1.0", Newer},
	}

	for _, tt := range tests {
		if got := CompareVersions(tt.a, tt.b); got != tt.want {
			t.Errorf("CompareVersions(%q, %q) = %s, want %s", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestCompareVersions_Antisymmetric(t *testing.T) {
	t.Parallel()

	versions := []string{"", "0", "1", "1.0", "1.2", "1.2.0", "1.9.0", "1.10.0", "2.0", "abc", "1.x", "2026.02.04", "v1.0"}
	for _, a := range versions {
		for _, b := range versions {
			ab := CompareVersions(a, b)
			ba := CompareVersions(b, a)
			if ab != -ba {
				t.Errorf("CompareVersions(%q, %q) = %s but CompareVersions(%q, %q) = %s", a, b, ab, b, a, ba)
			}
		}
	}
}

func TestIsNewer(t *testing.T) {
	t.Parallel()

	if !IsNewer("1.3.0", "1.2") {
		t.Error("IsNewer(1.3.0, 1.2) = false, want true")
	}
	if IsNewer("1.3.0", "1.3.0") {
		t.Error("IsNewer(1.3.0, 1.3.0) = true, want false")
	}
	if IsNewer("1.2.9", "1.3") {
		t.Error("IsNewer(1.2.9, 1.3) = true, want false")
	}
}

func TestOrdering_String(t *testing.T) {
	t.Parallel()

	for o, want := range map[Ordering]string{Older: "older", Equal: "equal", Newer: "newer", Ordering(7): "unknown"} {
		if got := o.String(); got != want {
			t.Errorf("Ordering(%d).String() = %q, want %q", int(o), got, want)
		}
	}
}
