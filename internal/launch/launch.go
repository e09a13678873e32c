// SPDX-License-Identifier: MPL-2.0

package launch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/kohyalaunch/kohyalaunch/internal/config"
	"github.com/kohyalaunch/kohyalaunch/internal/logging"
	"github.com/kohyalaunch/kohyalaunch/internal/runtime"
	"github.com/kohyalaunch/kohyalaunch/pkg/types"
)

// EntryPointName is the GUI application's main script.
const EntryPointName = "kohya_gui.py"

var (
	// ErrEntryPointMissing is returned when the installation has no entry point.
	ErrEntryPointMissing = errors.New("GUI entry point not found")
	// ErrRuntimeMissing is returned when the isolated runtime is required but absent.
	ErrRuntimeMissing = errors.New("isolated Python runtime not found")
)

type (
	// Request describes one launch.
	Request struct {
		InstallDir string
		Venv       runtime.Venv
		// SystemPython runs the application when the runtime is absent
		// inside a container.
		SystemPython string
		InContainer  bool
		// Env is appended to the launcher's environment.
		Env  []string
		Args []string
	}

	// ChildExitError reports that the GUI application exited unsuccessfully.
	ChildExitError struct {
		Code types.ExitCode
		Err  error
	}

	// Launcher runs the GUI application.
	Launcher struct {
		Exec runtime.Executor
	}
)

// Error implements the error interface.
func (e *ChildExitError) Error() string {
	return fmt.Sprintf("GUI application exited with status %d", e.Code)
}

// Unwrap returns the underlying failure.
func (e *ChildExitError) Unwrap() error { return e.Err }

// BuildArgs returns the GUI arguments forwarded from opts.
func BuildArgs(opts config.Options) []string {
	var args []string
	if opts.Listen != "" {
		args = append(args, "--listen", opts.Listen.String())
	}
	if opts.ServerPort.IsSet() {
		args = append(args, "--server-port", opts.ServerPort.String())
	}
	if opts.Verbosity > 0 {
		args = append(args, "--verbosity", strconv.Itoa(int(opts.Verbosity)))
	}
	if opts.Username != "" {
		args = append(args, "--username", opts.Username)
	}
	if opts.Password != "" {
		args = append(args, "--password", opts.Password)
	}
	if opts.Inbrowser {
		args = append(args, "--inbrowser")
	}
	if opts.Share {
		args = append(args, "--share")
	}
	return args
}

// Command resolves the interpreter and entry point for req.
func Command(req Request) (runtime.Command, error) {
	entry := filepath.Join(req.InstallDir, EntryPointName)
	if info, err := os.Stat(entry); err != nil || info.IsDir() {
		return runtime.Command{}, fmt.Errorf("%w: %s", ErrEntryPointMissing, entry)
	}

	python := req.Venv.Python()
	if !req.Venv.Exists() {
		if !req.InContainer || req.SystemPython == "" {
			return runtime.Command{}, fmt.Errorf("%w: %s", ErrRuntimeMissing, req.Venv.Root)
		}
		slog.Debug("runtime absent inside a container; using the system interpreter", "python", req.SystemPython)
		python = req.SystemPython
	}

	return runtime.Command{
		Name:      python,
		Args:      append([]string{entry}, req.Args...),
		Dir:       req.InstallDir,
		Env:       req.Env,
		Interrupt: true,
	}, nil
}

// Run starts the GUI and blocks until it exits. Cancelling ctx interrupts
// the application and counts as a normal shutdown.
func (l *Launcher) Run(ctx context.Context, req Request) error {
	cmd, err := Command(req)
	if err != nil {
		return err
	}

	slog.Debug("launching GUI", "command", cmd.String())
	logging.Notice("Running " + EntryPointName + " now. Press control+c in this terminal to shut the software down.")

	res := l.Exec.Run(ctx, cmd)
	if ctx.Err() != nil {
		slog.Info("process terminated by the user; exiting")
		return nil
	}
	if res.Failed() {
		return &ChildExitError{Code: res.ExitCode, Err: res.Err()}
	}
	return nil
}
