// SPDX-License-Identifier: MPL-2.0

package types

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrInvalidFilesystemPath is the sentinel error wrapped by InvalidFilesystemPathError.
var ErrInvalidFilesystemPath = errors.New("invalid filesystem path")

type (
	// FilesystemPath is a path option after normalization.
	// The zero value means "not configured".
	FilesystemPath string

	// InvalidFilesystemPathError is returned when a required FilesystemPath
	// is empty or not absolute.
	InvalidFilesystemPathError struct {
		Value  FilesystemPath
		Reason string
	}
)

// String returns the string representation of the FilesystemPath.
func (p FilesystemPath) String() string { return string(p) }

// IsSet reports whether the path holds a non-blank value.
func (p FilesystemPath) IsSet() bool { return strings.TrimSpace(string(p)) != "" }

// Join appends elements to the path.
func (p FilesystemPath) Join(elem ...string) FilesystemPath {
	return FilesystemPath(filepath.Join(append([]string{string(p)}, elem...)...))
}

// Validate returns an error if the path is blank or relative.
func (p FilesystemPath) Validate() error {
	if !p.IsSet() {
		return &InvalidFilesystemPathError{Value: p, Reason: "must be non-empty"}
	}
	if !filepath.IsAbs(string(p)) {
		return &InvalidFilesystemPathError{Value: p, Reason: "must be absolute"}
	}
	return nil
}

// Error implements the error interface for InvalidFilesystemPathError.
func (e *InvalidFilesystemPathError) Error() string {
	return fmt.Sprintf("invalid filesystem path %q: %s", e.Value, e.Reason)
}

// Unwrap returns ErrInvalidFilesystemPath for errors.Is() compatibility.
func (e *InvalidFilesystemPathError) Unwrap() error { return ErrInvalidFilesystemPath }
