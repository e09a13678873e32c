// SPDX-License-Identifier: MPL-2.0

// Package types holds small validated value types shared by the launcher's
// configuration, pipeline and CLI layers.
package types
