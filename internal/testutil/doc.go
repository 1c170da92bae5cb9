// SPDX-License-Identifier: MPL-2.0

// Package testutil provides helpers shared by the tunegrab test suites:
// environment overrides (MustSetenv, SetHomeDir), resource cleanup
// (DeferClose) and a controllable FakeClock for the update history and
// cleanup grace periods.
package testutil
