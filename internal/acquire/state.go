// SPDX-License-Identifier: MPL-2.0

package acquire

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

const (
	// CacheDirName is the isolated runtime kept across fresh clones.
	CacheDirName = "venv"
	gitDirName   = ".git"
)

// Acquisition states.
const (
	StateAbsent State = iota
	StateEmpty
	StateCacheOnly
	StateVCS
	StatePopulated
)

// State is what the installation directory currently holds.
type State int

// String returns a short description for logs.
func (s State) String() string {
	switch s {
	case StateAbsent:
		return "absent"
	case StateEmpty:
		return "empty"
	case StateCacheOnly:
		return "runtime only"
	case StateVCS:
		return "version controlled"
	case StatePopulated:
		return "populated without version control"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Fresh reports whether a clone may be written into the directory.
func (s State) Fresh() bool {
	return s == StateAbsent || s == StateEmpty || s == StateCacheOnly
}

// Inspect classifies dir without modifying it. A directory holding only the
// runtime directory and the named keep directories counts as StateCacheOnly.
func Inspect(dir string, keep ...string) (State, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return StateAbsent, nil
	}
	if err != nil {
		return StateAbsent, fmt.Errorf("inspect %s: %w", dir, err)
	}
	if _, err := os.Stat(filepath.Join(dir, gitDirName)); err == nil {
		return StateVCS, nil
	}
	if len(entries) == 0 {
		return StateEmpty, nil
	}
	for _, e := range entries {
		if !e.IsDir() || !isKept(e.Name(), keep) {
			return StatePopulated, nil
		}
	}
	return StateCacheOnly, nil
}

func isKept(name string, keep []string) bool {
	if name == CacheDirName {
		return true
	}
	for _, k := range keep {
		if k != "" && name == k {
			return true
		}
	}
	return false
}
