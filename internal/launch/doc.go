// SPDX-License-Identifier: MPL-2.0

// Package launch hands control to the GUI application's entry point.
package launch
