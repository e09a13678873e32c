// SPDX-License-Identifier: MPL-2.0

package repair

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/kohyalaunch/kohyalaunch/internal/provision"
)

// BitsandbytesShimDir holds the application's Windows bitsandbytes build.
const BitsandbytesShimDir = "bitsandbytes_windows"

// CopyBitsandbytesShim installs the Windows bitsandbytes libraries and
// patched modules from src into the runtime's site-packages. A missing src
// is not an error. It returns the number of files copied.
func CopyBitsandbytesShim(fsys afero.Fs, src, sitePackages string) (int, error) {
	entries, err := afero.ReadDir(fsys, src)
	if err != nil {
		if exists, _ := afero.DirExists(fsys, src); !exists {
			slog.Debug("no bitsandbytes shim to install", "dir", src)
			return 0, nil
		}
		return 0, fmt.Errorf("read %s: %w", src, err)
	}

	dest := filepath.Join(sitePackages, "bitsandbytes")
	copies := map[string]string{}
	for _, e := range entries {
		if !e.IsDir() && strings.EqualFold(filepath.Ext(e.Name()), ".dll") {
			copies[e.Name()] = filepath.Join(dest, e.Name())
		}
	}
	copies["cextension.py"] = filepath.Join(dest, "cextension.py")
	copies["main.py"] = filepath.Join(dest, "cuda_setup", "main.py")

	n := 0
	for name, dst := range copies {
		if err := provision.CopyFile(fsys, filepath.Join(src, name), dst); err != nil {
			return n, fmt.Errorf("install %s: %w", name, err)
		}
		n++
	}
	slog.Debug("bitsandbytes shim installed", "files", n, "dest", dest)
	return n, nil
}
