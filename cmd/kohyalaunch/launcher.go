// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/kohyalaunch/kohyalaunch/internal/acquire"
	"github.com/kohyalaunch/kohyalaunch/internal/app/execute"
	"github.com/kohyalaunch/kohyalaunch/internal/config"
	"github.com/kohyalaunch/kohyalaunch/internal/launch"
	"github.com/kohyalaunch/kohyalaunch/internal/logging"
	"github.com/kohyalaunch/kohyalaunch/internal/progress"
	"github.com/kohyalaunch/kohyalaunch/internal/provision"
	"github.com/kohyalaunch/kohyalaunch/internal/release"
	"github.com/kohyalaunch/kohyalaunch/internal/runtime"
	"github.com/kohyalaunch/kohyalaunch/pkg/platform"
)

// runLauncher resolves the options, sets up logging and drives the pipeline.
func runLauncher(cmd *cobra.Command, _ []string) error {
	stderr := cmd.ErrOrStderr()

	resolver, err := config.NewResolver()
	if err != nil {
		return reportError(stderr, err, false)
	}
	opts, err := resolver.Resolve(cmd.Flags())
	if err != nil {
		return reportError(stderr, err, false)
	}
	verbose := opts.Verbosity >= 3

	session, err := logging.Setup(logging.Config{
		Level:   opts.Verbosity.Level(),
		Dir:     opts.LogDir.String(),
		Console: stderr,
	})
	if err != nil {
		return reportError(stderr, fmt.Errorf("set up logging: %w", err), verbose)
	}
	defer func() { _ = session.Close() }()
	if session.File != "" {
		slog.Debug("logging to file", "path", session.File)
	}

	host := platform.Detect()
	c := execute.NewContext(opts, host)
	if err := execute.Run(cmd.Context(), c, newStages(opts, cmd.OutOrStdout(), stderr)); err != nil {
		return reportError(stderr, err, verbose)
	}
	return nil
}

// newStages wires the pipeline to the host.
func newStages(opts config.Options, out, progressOut io.Writer) execute.Stages {
	fsys := afero.NewOsFs()
	ex := runtime.NativeExecutor{}

	manager := &acquire.Manager{
		Prompter: acquire.NewTerminalPrompter(),
		Archive:  &acquire.ReleaseArchive{Out: progressOut, Options: releaseOptions(os.Getenv)},
	}
	if !opts.NoGit {
		manager.VCS = &acquire.GitClient{Progress: progressOut}
	}

	return execute.Stages{
		Fs:       fsys,
		Exec:     ex,
		Acquirer: manager,
		Installer: &provision.Installer{
			Fs:   fsys,
			Exec: ex,
			In:   os.Stdin,
			Out:  progressOut,
			Now:  time.Now,
		},
		Accelerate: &provision.AccelerateConfigurer{Fs: fsys, Exec: ex, Getenv: os.Getenv},
		Launcher:   &launch.Launcher{Exec: ex},
		FindInterpreter: func(ctx context.Context) (runtime.Interpreter, error) {
			return runtime.FindInterpreter(ctx, ex, exec.LookPath)
		},
		FreeSpace: platform.FreeSpace,
		Countdown: func(ctx context.Context, message string, d time.Duration) error {
			return progress.Countdown(ctx, progressOut, message, d)
		},
		LookPath: exec.LookPath,
		Getenv:   os.Getenv,
		Out:      out,
	}
}

// releaseOptions authenticates release API calls with GITHUB_TOKEN when set,
// which lifts the anonymous rate limit.
func releaseOptions(getenv func(string) string) []release.ClientOption {
	if token := getenv("GITHUB_TOKEN"); token != "" {
		return []release.ClientOption{release.WithToken(token)}
	}
	return nil
}
