// SPDX-License-Identifier: MPL-2.0

// Package provision installs the GUI application's Python dependencies into
// its isolated runtime.
//
// A Manifest is assembled fresh on every run from the application's
// requirements file plus host-specific additions. Installer installs it one
// line at a time so a single failing package does not abort the rest, and
// records completion in a marker file that lets later runs skip the work.
// The package also prepares the accelerate configuration and, on macOS, the
// Homebrew toolchain some packages build against.
package provision
