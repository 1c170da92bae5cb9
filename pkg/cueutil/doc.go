// SPDX-License-Identifier: MPL-2.0

// Package cueutil provides helpers shared by code that validates user CUE
// files against an embedded schema: a size guard applied before parsing and
// error formatting that prefixes each CUE error with its JSON path.
package cueutil
