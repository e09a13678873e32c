// SPDX-License-Identifier: MPL-2.0

package execute

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/dustin/go-humanize"
	"github.com/spf13/afero"

	"github.com/kohyalaunch/kohyalaunch/internal/acquire"
	"github.com/kohyalaunch/kohyalaunch/internal/issue"
	"github.com/kohyalaunch/kohyalaunch/internal/launch"
	"github.com/kohyalaunch/kohyalaunch/internal/logging"
	"github.com/kohyalaunch/kohyalaunch/internal/provision"
	"github.com/kohyalaunch/kohyalaunch/internal/repair"
	"github.com/kohyalaunch/kohyalaunch/internal/runtime"
)

const (
	// MinFreeSpace is the free space below which the run warns.
	MinFreeSpace = 10 * humanize.GiByte
	// SpaceWarningDelay is how long the low-space warning waits before
	// continuing.
	SpaceWarningDelay = 10 * time.Second
)

var (
	// ErrMissingOption is returned when a required option is empty.
	ErrMissingOption = errors.New("required option not set")
	// ErrInstallDir is returned when the installation directory is unusable.
	ErrInstallDir = errors.New("installation directory unusable")
	// ErrPythonNotFound is returned when no suitable interpreter exists.
	ErrPythonNotFound = errors.New("no suitable Python interpreter")
	// ErrAcquisitionFailed is returned when the application source could not
	// be brought into place.
	ErrAcquisitionFailed = errors.New("application acquisition failed")
	// ErrUncommittedChanges is returned when local modifications block an update.
	ErrUncommittedChanges = errors.New("uncommitted changes block the update")
)

type (
	// Acquirer brings the application source into place.
	Acquirer interface {
		Acquire(ctx context.Context, req acquire.Request) acquire.Result
	}

	// DependencyInstaller provisions Python packages.
	DependencyInstaller interface {
		Install(ctx context.Context, req provision.Request) (provision.Report, error)
	}

	// AccelerateConfigurer places the accelerate configuration.
	AccelerateConfigurer interface {
		Configure(ctx context.Context, req provision.AccelerateRequest) error
	}

	// GUILauncher starts the application.
	GUILauncher interface {
		Run(ctx context.Context, req launch.Request) error
	}

	// Stages are the collaborators Run drives.
	Stages struct {
		Fs         afero.Fs
		Exec       runtime.Executor
		Acquirer   Acquirer
		Installer  DependencyInstaller
		Accelerate AccelerateConfigurer
		Launcher   GUILauncher

		FindInterpreter func(ctx context.Context) (runtime.Interpreter, error)
		FreeSpace       func(path string) (uint64, error)
		Countdown       func(ctx context.Context, message string, d time.Duration) error
		LookPath        func(file string) (string, error)
		Getenv          func(key string) string
		// Setenv changes the launcher's own environment. Nil uses os.Setenv.
		Setenv func(key, value string) error
		// Out receives the setup summary.
		Out io.Writer
	}
)

// Run executes the pipeline for c.
func Run(ctx context.Context, c *Context, s Stages) error {
	logEnvironment(c)

	if err := resolveInterpreter(ctx, c, s); err != nil {
		return err
	}

	if c.Options.NoSetup && !c.Options.SetupOnly {
		return launchGUI(ctx, c, s)
	}

	if err := validateOptions(c); err != nil {
		return err
	}
	if err := prepareInstallDir(s.Fs, c.InstallDir()); err != nil {
		return err
	}
	if !c.Options.SkipSpaceCheck {
		if err := checkFreeSpace(ctx, c, s); err != nil {
			return err
		}
	}
	if err := prepareRuntime(ctx, c, s); err != nil {
		return err
	}
	if err := acquireSource(ctx, c, s); err != nil {
		return err
	}

	if c.Host.IsMacOS() {
		if err := provision.EnsureBrewDeps(ctx, s.Exec, s.LookPath, c.Options.Verbosity >= 3); err != nil {
			return issue.NewErrorContext().
				WithOperation("install Homebrew packages").
				WithSuggestion("Install Homebrew from https://brew.sh and re-run the launcher").
				Wrap(err).
				BuildError()
		}
	}

	installDependencies(ctx, c, s)
	if err := ctx.Err(); err != nil {
		return err
	}

	linkLibraries(c, s)

	err := s.Accelerate.Configure(ctx, provision.AccelerateRequest{
		InstallDir:  c.InstallDir(),
		Venv:        c.Venv,
		OS:          c.Host.OS.Kind,
		Arch:        c.Host.Arch,
		Interactive: c.Options.Interactive,
	})
	if err != nil {
		slog.Error("accelerate configuration failed; configure it manually with `accelerate config`", "error", err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if c.Options.SetupOnly {
		logging.Notice("Installation to " + c.InstallDir() + " is complete.")
		printSummary(c, s.Out)
		return nil
	}
	return launchGUI(ctx, c, s)
}

func logEnvironment(c *Context) {
	slog.Debug("host", "os", c.Host.OS.String(), "arch", c.Host.Arch,
		"container", c.Host.InContainer, "managed", c.Host.Managed)
	slog.Debug("options",
		"dir", c.Options.Dir, "git-repo", c.Options.GitRepo, "branch", c.Options.Branch,
		"update", c.Options.Update, "repair", c.Options.Repair, "runpod", c.Options.Runpod,
		"setup-only", c.Options.SetupOnly, "no-setup", c.Options.NoSetup,
		"listen", c.Options.Listen, "server-port", c.Options.ServerPort, "verbosity", int(c.Options.Verbosity))
}

// resolveInterpreter finds the system Python. It is only required when the
// run will provision or when a container launch has no isolated runtime.
func resolveInterpreter(ctx context.Context, c *Context, s Stages) error {
	py, err := s.FindInterpreter(ctx)
	if err == nil {
		c.Interpreter = py
		slog.Debug("python interpreter", "path", py.Path, "version", py.Version)
		return nil
	}
	if c.Options.NoSetup && !c.Options.SetupOnly && !c.Host.InContainer {
		slog.Debug("no system interpreter; launching from the isolated runtime", "error", err)
		return nil
	}
	return issue.NewErrorContext().
		WithOperation("find Python").
		WithSuggestion("Install Python 3.10 or newer and make sure it is on PATH").
		Wrap(fmt.Errorf("%w: %w", ErrPythonNotFound, err)).
		BuildError()
}

func validateOptions(c *Context) error {
	missing := map[string]bool{
		"git-repo": c.Options.GitRepo == "",
		"dir":      !c.Options.Dir.IsSet(),
		"branch":   c.Options.Branch == "",
	}
	for _, name := range []string{"git-repo", "dir", "branch"} {
		if missing[name] {
			return issue.NewErrorContext().
				WithOperation("validate options").
				WithResource("--" + name).
				WithSuggestion("Set it on the command line or in install_config.yml").
				Wrap(fmt.Errorf("%w: %s", ErrMissingOption, name)).
				BuildError()
		}
	}
	return nil
}

// prepareInstallDir creates dir and its parents and checks it is writable.
func prepareInstallDir(fsys afero.Fs, dir string) error {
	wrap := func(err error) error {
		return issue.NewErrorContext().
			WithOperation("prepare installation directory").
			WithResource(dir).
			WithSuggestion("Choose a directory you can write to with --dir").
			Wrap(fmt.Errorf("%w: %w", ErrInstallDir, err)).
			BuildError()
	}

	if err := fsys.MkdirAll(dir, 0o755); err != nil {
		return wrap(err)
	}
	tmp, err := afero.TempFile(fsys, dir, ".write-test-*")
	if err != nil {
		return wrap(err)
	}
	name := tmp.Name()
	_ = tmp.Close()
	if err := fsys.Remove(name); err != nil {
		return wrap(err)
	}
	return nil
}

func checkFreeSpace(ctx context.Context, c *Context, s Stages) error {
	free, err := s.FreeSpace(c.InstallDir())
	if err != nil {
		slog.Warn("could not determine free disk space", "dir", c.InstallDir(), "error", err)
		return nil
	}
	slog.Debug("free disk space", "dir", c.InstallDir(), "free", humanize.IBytes(free))
	if free >= MinFreeSpace {
		return nil
	}

	logging.Notice("You have less than " + humanize.IBytes(MinFreeSpace) + " of free space (" +
		humanize.IBytes(free) + " available). This installation may fail.")
	logging.Notice("Press control+c to cancel the installation.")
	if s.Out != nil {
		iss := issue.Get(issue.LowDiskSpaceID)
		guidance, err := iss.Render("auto")
		if err != nil {
			guidance = string(iss.MarkdownMsg()) + "\n"
		}
		_, _ = io.WriteString(s.Out, guidance)
	}
	return s.Countdown(ctx, "Continuing in", SpaceWarningDelay)
}

// prepareRuntime creates the isolated runtime and fixes its permissions.
// Inside a container packages go into the system interpreter instead.
func prepareRuntime(ctx context.Context, c *Context, s Stages) error {
	if c.UsesSystemPython() {
		slog.Info("in a container; skipping the isolated runtime")
		return nil
	}

	logging.Notice("Switching to the isolated Python runtime.")
	if err := c.Venv.Create(ctx, s.Exec, c.Interpreter); err != nil {
		return issue.NewErrorContext().
			WithOperation("create the isolated runtime").
			WithResource(c.Venv.Root).
			WithSuggestion("Make sure the Python venv module is installed (python3-venv on Debian/Ubuntu)").
			Wrap(err).
			BuildError()
	}

	report, err := repair.NormalizePermissions(s.Fs, c.Venv.Root)
	switch {
	case errors.Is(err, repair.ErrInterpreterNotWritable):
		return issue.NewErrorContext().
			WithOperation("fix runtime permissions").
			WithResource(c.Venv.Root).
			WithSuggestion("Remove the runtime directory and re-run, or fix its ownership").
			Wrap(err).
			BuildError()
	case err != nil:
		slog.Warn("some runtime permissions could not be fixed", "error", err)
	}
	slog.Debug("runtime permissions checked", "files", report.Checked, "fixed", report.Fixed, "skipped", len(report.Skipped))
	return nil
}

func acquireSource(ctx context.Context, c *Context, s Stages) error {
	res := s.Acquirer.Acquire(ctx, acquire.Request{
		Dir:            c.InstallDir(),
		Source:         c.Options.GitRepo,
		Branch:         c.Options.Branch,
		Update:         c.Options.Update,
		Keep:           c.KeptEntries(),
		ArchiveAllowed: c.Options.UsesDefaultSource(),
	})
	slog.Info("application source", "result", res.String())
	if res.OK() {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if res.Kind == acquire.KindUncommittedChanges {
		return issue.NewErrorContext().
			WithOperation("update the application").
			WithResource(c.InstallDir()).
			WithSuggestion("Commit or stash your changes, or run without --update").
			Wrap(ErrUncommittedChanges).
			BuildError()
	}
	return issue.NewErrorContext().
		WithOperation("acquire the application").
		WithResource(c.Options.GitRepo).
		WithSuggestion("Check your network and credentials, then re-run with -vvv").
		Wrap(fmt.Errorf("%w: %s", ErrAcquisitionFailed, res)).
		BuildError()
}

func installDependencies(ctx context.Context, c *Context, s Stages) {
	report, err := s.Installer.Install(ctx, provision.Request{
		InstallDir:  c.InstallDir(),
		MarkerPath:  c.Options.MarkerPath().String(),
		Base:        c.Interpreter,
		OS:          c.Host.OS.Kind,
		Arch:        c.Host.Arch,
		Managed:     c.Managed(),
		Update:      c.Options.Update,
		Repair:      c.Options.Repair,
		Interactive: c.Options.Interactive,
		Verbosity:   int(c.Options.Verbosity),
		System:      c.UsesSystemPython(),
	})
	switch {
	case err != nil && ctx.Err() == nil:
		slog.Error("dependency installation incomplete; it will be retried on the next run",
			"failed", len(report.Failed), "error", err)
	case report.Skipped:
		logging.Notice("--update or --repair not specified. Skipping pip installations and repairs.")
	case err == nil:
		logging.Notice("Pip operations completed successfully.")
	}
}

// linkLibraries installs the Windows bitsandbytes build and, on the managed
// cloud inside a container, links the accelerator libraries and extends the
// library search path of the launcher and the GUI.
func linkLibraries(c *Context, s Stages) {
	site := c.SitePackages()

	if c.Host.IsWindows() {
		src := filepath.Join(c.InstallDir(), repair.BitsandbytesShimDir)
		if _, err := repair.CopyBitsandbytesShim(s.Fs, src, site); err != nil {
			slog.Warn("could not install the bitsandbytes Windows build", "error", err)
		}
	}

	if !c.Managed() || !c.Host.InContainer {
		return
	}
	report, err := repair.LinkAcceleratorLibraries(site)
	if err != nil {
		slog.Warn("accelerator library links incomplete", "error", err)
	}
	if len(report.LibraryDirs) == 0 {
		return
	}
	current, ok := c.LookupEnv(repair.LibraryPathVar)
	if !ok {
		current = getenv(s)(repair.LibraryPathVar)
	}
	extended := repair.ExtendLibraryPath(current, report.LibraryDirs...)
	c.SetEnv(repair.LibraryPathVar, extended)
	if err := setenv(s)(repair.LibraryPathVar, extended); err != nil {
		slog.Warn("could not extend the library search path", "error", err)
	}
}

func launchGUI(ctx context.Context, c *Context, s Stages) error {
	err := s.Launcher.Run(ctx, launch.Request{
		InstallDir:   c.InstallDir(),
		Venv:         c.Venv,
		SystemPython: c.Interpreter.Path,
		InContainer:  c.Host.InContainer,
		Env:          c.Env,
		Args:         launch.BuildArgs(c.Options),
	})
	switch {
	case errors.Is(err, launch.ErrRuntimeMissing):
		return issue.NewErrorContext().
			WithOperation("launch the GUI").
			WithResource(c.Venv.Root).
			WithSuggestion("Run the launcher without --no-setup to create the runtime").
			Wrap(err).
			BuildError()
	case errors.Is(err, launch.ErrEntryPointMissing):
		return issue.NewErrorContext().
			WithOperation("launch the GUI").
			WithResource(c.InstallDir()).
			WithSuggestion("Check --dir, or run with --update to fetch the application").
			Wrap(err).
			BuildError()
	}
	return err
}

func printSummary(c *Context, out io.Writer) {
	if out == nil {
		return
	}
	rendered, err := glamour.Render(c.Summary(), "auto")
	if err != nil {
		rendered = c.Summary()
	}
	_, _ = io.WriteString(out, rendered)
}

func setenv(s Stages) func(string, string) error {
	if s.Setenv != nil {
		return s.Setenv
	}
	return os.Setenv
}

func getenv(s Stages) func(string) string {
	if s.Getenv != nil {
		return s.Getenv
	}
	return os.Getenv
}
