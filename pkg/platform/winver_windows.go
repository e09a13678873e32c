// SPDX-License-Identifier: MPL-2.0

//go:build windows

package platform

import (
	"fmt"

	"golang.org/x/sys/windows"
)

func windowsVersion() string {
	v := windows.RtlGetVersion()
	return fmt.Sprintf("%d.%d.%d", v.MajorVersion, v.MinorVersion, v.BuildNumber)
}
