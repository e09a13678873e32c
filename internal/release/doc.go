// SPDX-License-Identifier: MPL-2.0

// Package release fetches published source archives of the GUI application
// from GitHub and lays them over an installation directory.
//
// It backs the acquisition fallback used when version control is unavailable
// or failed: resolve the latest release tag, download the tag's zip archive
// with progress reporting, extract it to a scratch directory, and copy its
// files over the target.
package release
