// SPDX-License-Identifier: MPL-2.0

package provision

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/afero"
)

// Marker records a completed dependency installation.
type Marker struct {
	CompletedAt  time.Time `toml:"completed_at"`
	Interpreter  string    `toml:"interpreter,omitempty"`
	Requirements int       `toml:"requirements"`
	Repair       bool      `toml:"repair,omitempty"`
}

// MarkerExists reports whether path holds a marker. Unreadable content
// still counts: only presence matters for skipping.
func MarkerExists(fsys afero.Fs, path string) bool {
	info, err := fsys.Stat(path)
	return err == nil && !info.IsDir()
}

// ReadMarker decodes the marker at path.
func ReadMarker(fsys afero.Fs, path string) (Marker, error) {
	data, err := afero.ReadFile(fsys, path)
	if err != nil {
		return Marker{}, err
	}
	var m Marker
	if err := toml.Unmarshal(data, &m); err != nil {
		return Marker{}, fmt.Errorf("decode marker %s: %w", path, err)
	}
	return m, nil
}

// WriteMarker stores m at path, creating parent directories.
func WriteMarker(fsys afero.Fs, path string, m Marker) error {
	if err := fsys.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create marker directory: %w", err)
	}
	data, err := toml.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode marker: %w", err)
	}
	return afero.WriteFile(fsys, path, data, 0o644)
}

// RemoveMarker deletes the marker so the next run reinstalls.
func RemoveMarker(fsys afero.Fs, path string) error {
	if err := fsys.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
