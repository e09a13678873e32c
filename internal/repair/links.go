// SPDX-License-Identifier: MPL-2.0

package repair

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// LibraryPathVar is the dynamic-library search path variable.
const LibraryPathVar = "LD_LIBRARY_PATH"

type (
	libraryLink struct {
		dir    string
		link   string
		target string
	}

	// LinkReport lists what LinkAcceleratorLibraries did.
	LinkReport struct {
		Created  []string
		Repaired []string
		Missing  []string
		// LibraryDirs are the existing directories to add to LD_LIBRARY_PATH.
		LibraryDirs []string
	}
)

// acceleratorLinks maps the sonames the application loads to the ones the
// managed cloud's packages ship.
var acceleratorLinks = []libraryLink{ //nolint:gochecknoglobals // fixed table
	{dir: "tensorrt", link: "libnvinfer_plugin.so.7", target: "libnvinfer_plugin.so.8"},
	{dir: "tensorrt", link: "libnvinfer.so.7", target: "libnvinfer.so.8"},
	{dir: filepath.Join("nvidia", "cuda_runtime", "lib"), link: "libcudart.so.11.0", target: "libcudart.so.12"},
}

// LinkAcceleratorLibraries creates or repairs the accelerator library links
// under sitePackages. A link whose target library is absent is skipped with
// a warning.
func LinkAcceleratorLibraries(sitePackages string) (LinkReport, error) {
	var (
		report LinkReport
		errs   []error
	)

	for _, l := range acceleratorLinks {
		dir := filepath.Join(sitePackages, l.dir)
		target := filepath.Join(dir, l.target)
		link := filepath.Join(dir, l.link)

		if info, err := os.Stat(target); err != nil || !info.Mode().IsRegular() {
			slog.Warn("library not found; not linking", "target", target)
			report.Missing = append(report.Missing, target)
			continue
		}

		action, err := ensureLink(link, target)
		switch {
		case err != nil:
			errs = append(errs, err)
		case action == linkCreated:
			slog.Info("linked library", "link", filepath.Base(link))
			report.Created = append(report.Created, link)
		case action == linkRepaired:
			slog.Warn("broken library link recreated", "link", filepath.Base(link))
			report.Repaired = append(report.Repaired, link)
		default:
			slog.Debug("library link looks fine", "link", filepath.Base(link))
		}
	}

	for _, l := range acceleratorLinks {
		dir := filepath.Join(sitePackages, l.dir)
		if slices.Contains(report.LibraryDirs, dir) {
			continue
		}
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			report.LibraryDirs = append(report.LibraryDirs, dir)
		} else {
			slog.Warn("library directory not found; not added to the search path", "dir", dir)
		}
	}
	return report, errors.Join(errs...)
}

type linkAction int

const (
	linkUnchanged linkAction = iota
	linkCreated
	linkRepaired
)

func ensureLink(link, target string) (linkAction, error) {
	info, err := os.Lstat(link)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		if err := os.Symlink(target, link); err != nil {
			return linkUnchanged, fmt.Errorf("link %s: %w", link, err)
		}
		return linkCreated, nil
	case err != nil:
		return linkUnchanged, fmt.Errorf("inspect %s: %w", link, err)
	case info.Mode()&fs.ModeSymlink == 0:
		slog.Debug("real library present under link name; leaving it", "path", link)
		return linkUnchanged, nil
	}

	if resolved, err := filepath.EvalSymlinks(link); err == nil && sameFile(resolved, target) {
		return linkUnchanged, nil
	}
	if err := os.Remove(link); err != nil {
		return linkUnchanged, fmt.Errorf("remove broken link %s: %w", link, err)
	}
	if err := os.Symlink(target, link); err != nil {
		return linkUnchanged, fmt.Errorf("link %s: %w", link, err)
	}
	return linkRepaired, nil
}

func sameFile(a, b string) bool {
	ai, err := os.Stat(a)
	if err != nil {
		return false
	}
	bi, err := os.Stat(b)
	if err != nil {
		return false
	}
	return os.SameFile(ai, bi)
}

// ExtendLibraryPath appends dirs to the search path current, keeping the
// existing entries first and skipping duplicates.
func ExtendLibraryPath(current string, dirs ...string) string {
	var parts []string
	for _, p := range strings.Split(current, string(os.PathListSeparator)) {
		if p != "" {
			parts = append(parts, p)
		}
	}
	for _, d := range dirs {
		if d != "" && !slices.Contains(parts, d) {
			parts = append(parts, d)
		}
	}
	return strings.Join(parts, string(os.PathListSeparator))
}
