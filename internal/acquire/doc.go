// SPDX-License-Identifier: MPL-2.0

// Package acquire makes the installation directory hold the requested
// revision of the GUI application.
//
// Manager inspects the directory, then pulls, clones or leaves it alone via
// version control, retrying authentication failures with prompted
// credentials. When version control is unavailable or fails, the project's
// canonical source may instead be installed from its latest release archive.
// Every outcome is reported as a Result; Acquire never returns an error.
package acquire
