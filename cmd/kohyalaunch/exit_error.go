// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/kohyalaunch/kohyalaunch/internal/app/execute"
	"github.com/kohyalaunch/kohyalaunch/internal/config"
	"github.com/kohyalaunch/kohyalaunch/internal/issue"
	"github.com/kohyalaunch/kohyalaunch/internal/launch"
	"github.com/kohyalaunch/kohyalaunch/pkg/types"
)

// ExitError signals a non-zero exit code without forcing os.Exit in RunE handlers.
type ExitError struct {
	Code types.ExitCode
	Err  error
}

// Error returns the error message for ExitError.
func (e *ExitError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("exit status %d", e.Code)
}

// Unwrap returns the underlying error, if any.
func (e *ExitError) Unwrap() error {
	return e.Err
}

// issueFor returns the catalogued guidance matching err, or 0.
func issueFor(err error) issue.ID {
	switch {
	case errors.Is(err, execute.ErrPythonNotFound):
		return issue.PythonNotFoundID
	case errors.Is(err, execute.ErrUncommittedChanges):
		return issue.UncommittedChangesID
	case errors.Is(err, execute.ErrAcquisitionFailed):
		return issue.AcquisitionFailedID
	case errors.Is(err, launch.ErrRuntimeMissing):
		return issue.RuntimeMissingID
	case errors.Is(err, launch.ErrEntryPointMissing):
		return issue.EntryPointMissingID
	case errors.Is(err, config.ErrConflictingOptions):
		return issue.ConflictingOptionsID
	default:
		return 0
	}
}

// formatErrorForDisplay formats an error for user display.
// If the error is an ActionableError, it uses the Format method.
// In verbose mode, shows the full error chain.
func formatErrorForDisplay(err error, verboseMode bool) string {
	var ae *issue.ActionableError
	if errors.As(err, &ae) {
		return ae.Format(verboseMode)
	}
	return err.Error()
}

// reportError writes err and any matching guidance to w and returns the
// exit error for it. An interrupted setup is reported briefly. The returned
// error carries no message since the details are already written.
func reportError(w io.Writer, err error, verbose bool) *ExitError {
	var childErr *launch.ChildExitError
	switch {
	case errors.As(err, &childErr):
		_, _ = fmt.Fprintln(w, ErrorStyle.Render("✗ ")+err.Error())
		return &ExitError{Code: types.ExitFailure}
	case errors.Is(err, context.Canceled):
		_, _ = fmt.Fprintln(w, WarningStyle.Render("Interrupted."))
		return &ExitError{Code: types.ExitFailure}
	}

	_, _ = fmt.Fprintln(w, ErrorStyle.Render("✗ ")+formatErrorForDisplay(err, verbose))
	if id := issueFor(err); id != 0 {
		iss := issue.Get(id)
		guidance, renderErr := iss.Render("auto")
		if renderErr != nil {
			guidance = string(iss.MarkdownMsg()) + "\n"
		}
		_, _ = io.WriteString(w, guidance)
	}
	return &ExitError{Code: types.ExitFailure}
}
