// SPDX-License-Identifier: MPL-2.0

package provision

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/afero"

	"github.com/kohyalaunch/kohyalaunch/internal/progress"
	"github.com/kohyalaunch/kohyalaunch/internal/runtime"
	"github.com/kohyalaunch/kohyalaunch/pkg/platform"
)

// verboseInstall is the verbosity at which pip output is shown instead of a
// progress bar.
const verboseInstall = 3

// repairPackages are force-removed before a repair reinstall.
var repairPackages = []string{"xformers", "torch", "torchvision", "triton"} //nolint:gochecknoglobals // fixed list

type (
	// Request describes one dependency installation.
	Request struct {
		InstallDir string
		MarkerPath string
		// Base is the system interpreter used to create the runtime.
		Base        runtime.Interpreter
		OS          platform.Kind
		Arch        string
		Managed     bool
		Update      bool
		Repair      bool
		Interactive bool
		Verbosity   int
		// System installs into Base itself instead of an isolated runtime.
		System bool
	}

	// Report summarizes what Install did.
	Report struct {
		Skipped bool
		// Previous is the marker found when Skipped; zero if it was unreadable.
		Previous      Marker
		Attempted     int
		Failed        []string
		MarkerWritten bool
	}

	// Installer provisions the isolated runtime.
	Installer struct {
		Fs   afero.Fs
		Exec runtime.Executor
		// In and Out carry the accelerator prompt and progress display.
		In  io.Reader
		Out io.Writer
		Now func() time.Time
	}
)

// Venv returns the runtime that Install provisions for req.
func (r Request) Venv() runtime.Venv {
	return runtime.NewVenv(r.InstallDir, r.OS == platform.KindWindows)
}

// Install provisions the runtime and installs the manifest line by line.
// Per-line failures are aggregated into the returned error; the marker is
// written only when every line installed.
func (in *Installer) Install(ctx context.Context, req Request) (Report, error) {
	if MarkerExists(in.Fs, req.MarkerPath) && !req.Update && !req.Repair {
		prev, err := ReadMarker(in.Fs, req.MarkerPath)
		if err != nil {
			slog.Debug("previous marker unreadable", "marker", req.MarkerPath, "error", err)
		}
		slog.Info("dependencies already installed; pass --update or --repair to reinstall",
			"marker", req.MarkerPath, "completed", prev.CompletedAt)
		return Report{Skipped: true, Previous: prev}, nil
	}

	py := req.Base
	sitePackages := req.Base.SitePackages(req.OS == platform.KindWindows)
	if !req.System {
		venv := req.Venv()
		if err := venv.Create(ctx, in.Exec, req.Base); err != nil {
			return Report{}, err
		}
		py = venv.Interpreter(req.Base)
		sitePackages = venv.SitePackages(req.Base.MajorMinor())
	}

	if err := RemoveMarker(in.Fs, req.MarkerPath); err != nil {
		slog.Warn("could not remove previous marker", "marker", req.MarkerPath, "error", err)
	}

	slog.Info("checking for pip updates")
	if err := in.pip(ctx, py, req.Verbosity, "install", "--upgrade", "--no-warn-script-location", "pip"); err != nil {
		slog.Warn("pip self-upgrade failed", "error", err)
	}

	if req.Repair {
		slog.Info("uninstalling accelerator packages", "packages", repairPackages)
		args := append([]string{"uninstall", "-y"}, repairPackages...)
		if err := in.pip(ctx, py, req.Verbosity, args...); err != nil {
			slog.Debug("uninstall reported failure", "error", err)
		}
	}

	torchInstalled := in.torchInstalled(sitePackages)
	accel := AcceleratorStable
	if req.Repair || (req.OS == platform.KindWindows && (!torchInstalled || req.Update)) {
		accel = ChooseAccelerator(req.Interactive, in.In, in.Out)
	}

	manifest, err := BuildManifest(ManifestInput{
		Fs:             in.Fs,
		InstallDir:     req.InstallDir,
		OS:             req.OS,
		Arch:           req.Arch,
		Managed:        req.Managed,
		Repair:         req.Repair,
		Update:         req.Update,
		TorchInstalled: torchInstalled,
		Accelerator:    accel,
	})
	if err != nil {
		return Report{}, err
	}

	report, err := in.installAll(ctx, py, manifest, req.Verbosity)
	if err != nil {
		return report, err
	}

	marker := Marker{
		CompletedAt:  in.now(),
		Interpreter:  req.Base.Path,
		Requirements: report.Attempted,
		Repair:       req.Repair,
	}
	if err := WriteMarker(in.Fs, req.MarkerPath, marker); err != nil {
		return report, fmt.Errorf("write marker: %w", err)
	}
	report.MarkerWritten = true
	slog.Info("python dependencies installed", "packages", report.Attempted)
	return report, nil
}

func (in *Installer) installAll(ctx context.Context, py runtime.Interpreter, m Manifest, verbosity int) (Report, error) {
	var (
		report Report
		errs   *multierror.Error
	)

	slog.Info("installing python dependencies; this can take a long time", "packages", m.Len())
	bar := progress.NewNop()
	if verbosity < verboseInstall {
		bar = progress.New(in.Out, "Installing packages", m.Len())
	}
	defer bar.Done()

	for _, req := range m.Requirements {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Attempted++
		bar.Title("Installing " + req.Line)

		args := append([]string{"install", "--upgrade", "--use-pep517", "--no-warn-script-location"}, req.Args...)
		if err := in.pip(ctx, py, verbosity, args...); err != nil {
			slog.Warn("package install failed", "requirement", req.Line, "error", err)
			report.Failed = append(report.Failed, req.Line)
			errs = multierror.Append(errs, fmt.Errorf("%s: %w", req.Line, err))
		}
		bar.Add(1)
	}
	return report, errs.ErrorOrNil()
}

// pip runs `python -m pip args...`, quiet and captured below verboseInstall.
func (in *Installer) pip(ctx context.Context, py runtime.Interpreter, verbosity int, args ...string) error {
	if verbosity >= verboseInstall {
		return in.Exec.Run(ctx, py.Module("pip", args...)).Err()
	}
	cmd := py.Module("pip", append(args, "--quiet")...)
	res := in.Exec.Capture(ctx, cmd)
	if res.Failed() {
		slog.Debug("pip output", "command", cmd.String(), "stderr", res.ErrOutput)
	}
	return res.Err()
}

func (in *Installer) torchInstalled(sitePackages string) bool {
	ok, err := afero.DirExists(in.Fs, filepath.Join(sitePackages, "torch"))
	return err == nil && ok
}

func (in *Installer) now() time.Time {
	if in.Now != nil {
		return in.Now()
	}
	return time.Now()
}
