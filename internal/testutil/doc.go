// SPDX-License-Identifier: MPL-2.0

// Package testutil provides file helpers for tests that fail the test on
// error, on the real filesystem and on afero filesystems.
package testutil
