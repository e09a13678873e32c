// SPDX-License-Identifier: MPL-2.0

package config

import (
	"errors"
	"fmt"

	"github.com/kohyalaunch/kohyalaunch/pkg/types"
)

var (
	// ErrInvalidVerbosity is the sentinel error wrapped by InvalidVerbosityError.
	ErrInvalidVerbosity = errors.New("invalid verbosity")

	// ErrConflictingOptions is returned when mutually exclusive options are both set.
	ErrConflictingOptions = errors.New("conflicting options")

	// ErrInvalidDocument is returned when an install configuration document
	// does not match its schema.
	ErrInvalidDocument = errors.New("invalid install configuration")
)

type (
	// Options is the effective option set for one launcher run.
	Options struct {
		// Setup options.
		Branch         string               `mapstructure:"branch"`
		Dir            types.FilesystemPath `mapstructure:"dir"`
		File           types.FilesystemPath `mapstructure:"file"`
		GitRepo        string               `mapstructure:"git-repo"`
		Interactive    bool                 `mapstructure:"interactive"`
		LogDir         types.FilesystemPath `mapstructure:"log-dir"`
		NoGit          bool                 `mapstructure:"no-git"`
		NoSetup        bool                 `mapstructure:"no-setup"`
		Public         bool                 `mapstructure:"public"`
		Repair         bool                 `mapstructure:"repair"`
		Runpod         bool                 `mapstructure:"runpod"`
		SetupOnly      bool                 `mapstructure:"setup-only"`
		SkipSpaceCheck bool                 `mapstructure:"skip-space-check"`
		Update         bool                 `mapstructure:"update"`
		Verbosity      Verbosity            `mapstructure:"verbosity"`

		// Options forwarded to the GUI application.
		Listen     types.ListenAddress `mapstructure:"listen"`
		Username   string              `mapstructure:"username"`
		Password   string              `mapstructure:"password"`
		ServerPort types.ListenPort    `mapstructure:"server-port"`
		Inbrowser  bool                `mapstructure:"inbrowser"`
		Share      bool                `mapstructure:"share"`
	}

	// InvalidVerbosityError is returned when a verbosity value is neither a
	// non-negative integer nor a run of 'v' characters.
	InvalidVerbosityError struct {
		Value string
	}
)

// Error implements the error interface for InvalidVerbosityError.
func (e *InvalidVerbosityError) Error() string {
	return fmt.Sprintf("invalid verbosity %q: use a non-negative integer or a run of 'v' characters", e.Value)
}

// Unwrap returns ErrInvalidVerbosity for errors.Is() compatibility.
func (e *InvalidVerbosityError) Unwrap() error { return ErrInvalidVerbosity }

// UsesDefaultSource reports whether the repository and branch are the project defaults.
func (o Options) UsesDefaultSource() bool {
	return o.GitRepo == DefaultGitRepo && o.Branch == DefaultBranch
}

// MarkerPath returns the provisioning marker location under the log directory.
func (o Options) MarkerPath() types.FilesystemPath {
	return o.LogDir.Join("status", ".pip_operations_done")
}
