// SPDX-License-Identifier: MPL-2.0

// Package platform inspects the host: operating system family and version,
// container status, managed-cloud status and free disk space.
//
// Classification is a pure function over gathered Facts so every branch is
// testable without the host it describes. Detect caches the result for the
// lifetime of the process.
package platform
