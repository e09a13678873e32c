// SPDX-License-Identifier: MPL-2.0

//go:build !windows

package platform

func windowsVersion() string { return "" }
