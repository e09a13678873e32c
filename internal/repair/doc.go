// SPDX-License-Identifier: MPL-2.0

// Package repair fixes environment problems that break the GUI after
// installation: missing permission bits inside the isolated runtime,
// accelerator libraries installed under a different soname than the one the
// application loads, and the Windows bitsandbytes build.
package repair
