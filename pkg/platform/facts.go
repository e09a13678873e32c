// SPDX-License-Identifier: MPL-2.0

package platform

import (
	"context"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/afero"
)

// Host metadata locations.
const (
	osReleasePath     = "/etc/os-release"
	redHatReleasePath = "/etc/redhat-release"
	macOSPlistPath    = "/System/Library/CoreServices/SystemVersion.plist"
)

// unameTimeout bounds each fallback command.
const unameTimeout = 5 * time.Second

// CommandFunc runs a command and returns its trimmed standard output.
type CommandFunc func(ctx context.Context, name string, args ...string) (string, error)

// RunCommand is the production CommandFunc.
func RunCommand(ctx context.Context, name string, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, unameTimeout)
	defer cancel()
	out, err := exec.CommandContext(ctx, name, args...).Output()
	return strings.TrimSpace(string(out)), err
}

// GatherFacts reads the host sources Classify needs. Missing sources leave
// their field empty; fallbacks only run when earlier sources are absent.
func GatherFacts(ctx context.Context, fsys afero.Fs, run CommandFunc) Facts {
	f := Facts{GOOS: runtime.GOOS, GOARCH: runtime.GOARCH}

	switch f.GOOS {
	case Windows:
		f.WindowsVersion = windowsVersion()
	case Darwin:
		f.SystemVersionPlist = readOptional(fsys, macOSPlistPath)
	case FreeBSD:
		f.UnameRelease, _ = run(ctx, "uname", "-r")
	case Linux:
		f.OSRelease = readOptional(fsys, osReleasePath)
		if f.OSRelease == "" {
			f.RedHatRelease = readOptional(fsys, redHatReleasePath)
		}
		if f.OSRelease == "" && f.RedHatRelease == "" {
			f.Uname, _ = run(ctx, "uname", "-a")
			f.UnameRelease, _ = run(ctx, "uname", "-r")
		}
	}
	return f
}

func readOptional(fsys afero.Fs, path string) string {
	data, err := afero.ReadFile(fsys, path)
	if err != nil {
		return ""
	}
	return string(data)
}
