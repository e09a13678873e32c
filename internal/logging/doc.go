// SPDX-License-Identifier: MPL-2.0

// Package logging configures the process-wide slog logger: a colored
// console handler plus a plain per-run log file under a dated directory.
package logging
