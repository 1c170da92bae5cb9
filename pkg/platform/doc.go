// SPDX-License-Identifier: MPL-2.0

// Package platform provides cross-platform helpers used by the updater:
// executable naming conventions per operating system and detection of
// application sandboxes that own the installed binary.
package platform
