// SPDX-License-Identifier: MPL-2.0

package runtime

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// VenvDirName is the isolated runtime's directory inside the installation.
const VenvDirName = "venv"

// Venv is a Python virtual environment rooted at Root.
type Venv struct {
	Root    string
	Windows bool
}

// NewVenv returns the virtual environment inside installDir. windows selects
// the Scripts layout.
func NewVenv(installDir string, windows bool) Venv {
	return Venv{Root: filepath.Join(installDir, VenvDirName), Windows: windows}
}

// BinDir returns the directory holding the environment's executables.
func (v Venv) BinDir() string {
	if v.Windows {
		return filepath.Join(v.Root, "Scripts")
	}
	return filepath.Join(v.Root, "bin")
}

// Python returns the environment's interpreter path.
func (v Venv) Python() string {
	if v.Windows {
		return filepath.Join(v.BinDir(), "python.exe")
	}
	return filepath.Join(v.BinDir(), "python")
}

// Exists reports whether the environment's interpreter is present.
func (v Venv) Exists() bool {
	info, err := os.Stat(v.Python())
	return err == nil && !info.IsDir()
}

// SitePackages returns the environment's site-packages directory. On POSIX
// the path embeds the interpreter's major.minor; when majorMinor is empty an
// existing lib/python*/site-packages is used.
func (v Venv) SitePackages(majorMinor string) string {
	if v.Windows {
		return filepath.Join(v.Root, "Lib", "site-packages")
	}
	if majorMinor != "" {
		return filepath.Join(v.Root, "lib", "python"+majorMinor, "site-packages")
	}
	matches, _ := filepath.Glob(filepath.Join(v.Root, "lib", "python*", "site-packages"))
	if len(matches) == 0 {
		return filepath.Join(v.Root, "lib", "python3", "site-packages")
	}
	sort.Strings(matches)
	return matches[len(matches)-1]
}

// Interpreter returns the environment's interpreter, keeping base's version.
func (v Venv) Interpreter(base Interpreter) Interpreter {
	return Interpreter{Path: v.Python(), Version: base.Version}
}

// Create builds the environment with base when it does not exist yet.
func (v Venv) Create(ctx context.Context, ex Executor, base Interpreter) error {
	if v.Exists() {
		return nil
	}
	cmd := base.Module("venv", v.Root)
	if err := ex.Run(ctx, cmd).Err(); err != nil {
		return fmt.Errorf("create virtual environment %s: %w", v.Root, err)
	}
	return nil
}
