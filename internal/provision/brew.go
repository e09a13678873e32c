// SPDX-License-Identifier: MPL-2.0

package provision

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"

	"github.com/kohyalaunch/kohyalaunch/internal/runtime"
)

// ErrBrewMissing is returned on macOS when Homebrew is not installed.
var ErrBrewMissing = errors.New("homebrew not found")

// brewPackages are the toolchain pieces tensorflow builds need on macOS.
var brewPackages = []string{"llvm", "cctools", "ld64"} //nolint:gochecknoglobals // fixed list

// EnsureBrewDeps installs the Homebrew toolchain packages. Callers only
// invoke it on macOS. lookPath defaults to exec.LookPath.
func EnsureBrewDeps(ctx context.Context, ex runtime.Executor, lookPath func(string) (string, error), verbose bool) error {
	if lookPath == nil {
		lookPath = exec.LookPath
	}
	brew, err := lookPath("brew")
	if err != nil {
		return fmt.Errorf("%w: install it from https://brew.sh", ErrBrewMissing)
	}

	slog.Info("installing Homebrew packages", "packages", brewPackages)
	cmd := runtime.Command{Name: brew, Args: append([]string{"install"}, brewPackages...)}
	var res *runtime.Result
	if verbose {
		res = ex.Run(ctx, cmd)
	} else {
		res = ex.Capture(ctx, cmd)
	}
	if err := res.Err(); err != nil {
		return fmt.Errorf("brew install: %w", err)
	}
	slog.Info("Homebrew packages installed")
	return nil
}
