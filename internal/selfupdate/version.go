// SPDX-License-Identifier: MPL-2.0

package selfupdate

import (
	"strings"
)

const (
	// Older means the first version sorts before the second.
	Older Ordering = -1
	// Equal means both versions denote the same release.
	Equal Ordering = 0
	// Newer means the first version sorts after the second.
	Newer Ordering = 1
)

// Ordering is the result of CompareVersions, describing a relative to b.
type Ordering int

// String returns a human-readable name for the ordering.
func (o Ordering) String() string {
	switch o {
	case Older:
		return "older"
	case Equal:
		return "equal"
	case Newer:
		return "newer"
	}
	return "unknown"
}

// CompareVersions compares two dotted version strings such as "1.10.0".
//
// Each version is parsed as a dot-separated sequence of non-negative integers,
// right-padded with zeros, so "1.2" and "1.2.0" are Equal. When either side
// has an empty or non-numeric component the whole strings are compared
// lexicographically instead. CompareVersions never fails.
func CompareVersions(a, b string) Ordering {
	pa, okA := splitNumeric(a)
	pb, okB := splitNumeric(b)
	if !okA || !okB {
		return ordering(strings.Compare(a, b))
	}

	n := max(len(pa), len(pb))
	for i := range n {
		ca, cb := "0", "0"
		if i < len(pa) {
			ca = pa[i]
		}
		if i < len(pb) {
			cb = pb[i]
		}
		if c := compareDigits(ca, cb); c != 0 {
			return ordering(c)
		}
	}
	return Equal
}

// IsNewer reports whether candidate is strictly newer than current.
func IsNewer(candidate, current string) bool {
	return CompareVersions(candidate, current) == Newer
}

// splitNumeric splits v on dots and reports whether every component is a
// non-empty run of ASCII digits. Leading zeros are stripped from each component.
func splitNumeric(v string) ([]string, bool) {
	if v == "" {
		return nil, false
	}
	parts := strings.Split(v, ".")
	for i, p := range parts {
		if p == "" {
			return nil, false
		}
		for j := 0; j < len(p); j++ {
			if p[j] < '0' || p[j] > '9' {
				return nil, false
			}
		}
		trimmed := strings.TrimLeft(p, "0")
		if trimmed == "" {
			trimmed = "0"
		}
		parts[i] = trimmed
	}
	return parts, true
}

// compareDigits compares two canonical (no leading zeros) digit strings of
// arbitrary length without converting them to integers.
func compareDigits(a, b string) int {
	if len(a) != len(b) {
		if len(a) < len(b) {
			return -1
		}
		return 1
	}
	return strings.Compare(a, b)
}

func ordering(c int) Ordering {
	switch {
	case c < 0:
		return Older
	case c > 0:
		return Newer
	default:
		return Equal
	}
}
