// SPDX-License-Identifier: MPL-2.0

package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"regexp"
	goruntime "runtime"

	"github.com/hashicorp/go-version"
)

// MinimumPython is the oldest interpreter the GUI supports.
const MinimumPython = ">= 3.10"

// ErrInterpreterNotFound is returned when no candidate satisfies MinimumPython.
var ErrInterpreterNotFound = errors.New("no suitable python interpreter found")

//nolint:gochecknoglobals // read-only
var (
	interpreterCandidates = []string{"python3.10", "python310", "python3", "python"}
	pythonVersionPattern  = regexp.MustCompile(`Python (\d+\.\d+(?:\.\d+)?)`)
	minimumConstraint     = mustConstraint(MinimumPython)
)

// Interpreter is a Python executable of known version.
type Interpreter struct {
	Path    string
	Version *version.Version
}

// Module builds a `python -m <module> args...` command.
func (i Interpreter) Module(module string, args ...string) Command {
	return Command{Name: i.Path, Args: append([]string{"-m", module}, args...)}
}

// Script builds a `python <script> args...` command.
func (i Interpreter) Script(script string, args ...string) Command {
	return Command{Name: i.Path, Args: append([]string{script}, args...)}
}

// MajorMinor returns "X.Y", or "" when the version is unknown.
func (i Interpreter) MajorMinor() string {
	if i.Version == nil {
		return ""
	}
	segs := i.Version.Segments()
	if len(segs) < 2 {
		return ""
	}
	return fmt.Sprintf("%d.%d", segs[0], segs[1])
}

// SitePackages returns the package directory of a system interpreter.
func (i Interpreter) SitePackages(windows bool) string {
	dir := filepath.Dir(i.Path)
	if windows {
		return filepath.Join(dir, "Lib", "site-packages")
	}
	return filepath.Join(dir, "..", "lib", "python"+i.MajorMinor(), "site-packages")
}

// FindInterpreter returns the first candidate on PATH whose version satisfies
// MinimumPython. lookPath defaults to exec.LookPath.
func FindInterpreter(ctx context.Context, ex Executor, lookPath func(string) (string, error)) (Interpreter, error) {
	if lookPath == nil {
		lookPath = exec.LookPath
	}
	for _, name := range interpreterCandidates {
		if goruntime.GOOS == "windows" {
			name += ".exe"
		}
		path, err := lookPath(name)
		if err != nil {
			continue
		}
		interp, err := InspectInterpreter(ctx, ex, path)
		if err != nil {
			slog.Debug("skipping python candidate", "path", path, "error", err)
			continue
		}
		if minimumConstraint.Check(interp.Version) {
			slog.Debug("using python interpreter", "path", path, "version", interp.Version)
			return interp, nil
		}
		slog.Debug("python candidate too old", "path", path, "version", interp.Version)
	}
	return Interpreter{}, ErrInterpreterNotFound
}

// InspectInterpreter runs `<path> --version` and parses the result.
func InspectInterpreter(ctx context.Context, ex Executor, path string) (Interpreter, error) {
	res := ex.Capture(ctx, Command{Name: path, Args: []string{"--version"}})
	if err := res.Err(); err != nil {
		return Interpreter{}, err
	}
	// Python 2 printed the version on stderr.
	m := pythonVersionPattern.FindStringSubmatch(res.Output + res.ErrOutput)
	if m == nil {
		return Interpreter{}, fmt.Errorf("unrecognized version output from %s", path)
	}
	v, err := version.NewVersion(m[1])
	if err != nil {
		return Interpreter{}, err
	}
	return Interpreter{Path: path, Version: v}, nil
}

func mustConstraint(s string) version.Constraints {
	c, err := version.NewConstraint(s)
	if err != nil {
		panic(err)
	}
	return c
}
