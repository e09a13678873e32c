// SPDX-License-Identifier: MPL-2.0

package runtime

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/kohyalaunch/kohyalaunch/pkg/types"
)

// interruptGrace is how long an interrupted child may take to exit before it is killed.
const interruptGrace = 10 * time.Second

type (
	// Command describes one child process.
	Command struct {
		Name string
		Args []string
		// Dir is the working directory; empty inherits the launcher's.
		Dir string
		// Env is appended to the launcher's environment; later entries win.
		Env []string
		// Interrupt sends os.Interrupt instead of killing on context cancellation.
		Interrupt bool

		Stdin  io.Reader
		Stdout io.Writer
		Stderr io.Writer
	}

	// Result is the outcome of a Command. Error is set for failures to start
	// or wait; a non-zero ExitCode alone means the process ran and failed.
	Result struct {
		ExitCode  types.ExitCode
		Output    string
		ErrOutput string
		Error     error
	}

	// Executor runs commands.
	Executor interface {
		// Run executes with the command's own streams (inherited when nil).
		Run(ctx context.Context, cmd Command) *Result
		// Capture executes and collects stdout and stderr.
		Capture(ctx context.Context, cmd Command) *Result
	}

	// NativeExecutor runs commands on the host with os/exec.
	NativeExecutor struct{}
)

// String renders the command line for logs.
func (c Command) String() string {
	return strings.Join(append([]string{c.Name}, c.Args...), " ")
}

// Failed reports whether the command did not complete successfully.
func (r *Result) Failed() bool {
	return r.Error != nil || !r.ExitCode.IsSuccess()
}

// Err returns nil on success, otherwise an error describing the failure.
func (r *Result) Err() error {
	if r.Error != nil {
		return r.Error
	}
	if r.ExitCode.IsSuccess() {
		return nil
	}
	if msg := strings.TrimSpace(r.ErrOutput); msg != "" {
		return fmt.Errorf("exit status %d: %s", r.ExitCode, lastLine(msg))
	}
	return fmt.Errorf("exit status %d", r.ExitCode)
}

// Run executes cmd with its streams, defaulting to the launcher's stdio.
func (NativeExecutor) Run(ctx context.Context, c Command) *Result {
	cmd := build(ctx, c)
	cmd.Stdin = orReader(c.Stdin, os.Stdin)
	cmd.Stdout = orWriter(c.Stdout, os.Stdout)
	cmd.Stderr = orWriter(c.Stderr, os.Stderr)
	return resultFrom(cmd.Run())
}

// Capture executes cmd collecting its output.
func (NativeExecutor) Capture(ctx context.Context, c Command) *Result {
	cmd := build(ctx, c)
	var stdout, stderr bytes.Buffer
	cmd.Stdin = c.Stdin
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	result := resultFrom(cmd.Run())
	result.Output = stdout.String()
	result.ErrOutput = stderr.String()
	return result
}

func build(ctx context.Context, c Command) *exec.Cmd {
	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	cmd.Dir = c.Dir
	if len(c.Env) > 0 {
		cmd.Env = append(os.Environ(), c.Env...)
	}
	if c.Interrupt {
		cmd.Cancel = func() error { return cmd.Process.Signal(os.Interrupt) }
		cmd.WaitDelay = interruptGrace
	}
	return cmd
}

func resultFrom(err error) *Result {
	if err == nil {
		return &Result{}
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		code := exitErr.ExitCode()
		if code < 0 {
			// Terminated by a signal.
			code = 1
		}
		return &Result{ExitCode: types.ExitCode(code)}
	}
	return &Result{ExitCode: types.ExitFailure, Error: fmt.Errorf("failed to execute command: %w", err)}
}

func orReader(r, def io.Reader) io.Reader {
	if r != nil {
		return r
	}
	return def
}

func orWriter(w, def io.Writer) io.Writer {
	if w != nil {
		return w
	}
	return def
}

func lastLine(s string) string {
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}
