// SPDX-License-Identifier: MPL-2.0

// Package history keeps a SQLite ledger of self-update cycles: the versions
// involved, the last state reached, the artifact digest, the error that ended
// the cycle and whether it left the installation degraded.
//
// The ledger is informational. The updater never reads it to decide what to
// do; a missing or unwritable database only costs the record.
package history
