// SPDX-License-Identifier: MPL-2.0

// Package runtime locates a suitable Python interpreter, manages the isolated
// runtime (virtual environment) inside the installation directory, and runs
// child processes for the other stages.
//
// Executor is the single seam through which package installation, version
// control fallbacks and the GUI launch start processes, so tests can replace
// it with a recorder.
package runtime
