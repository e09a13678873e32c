// SPDX-License-Identifier: MPL-2.0

package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	cueyaml "cuelang.org/go/encoding/yaml"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

const (
	// FileName is the install configuration document name.
	FileName = "install_config.yml"
	// MaxFileSize bounds the install configuration document.
	MaxFileSize = 1 << 20
)

//go:embed install_config_schema.cue
var installConfigSchema string

type (
	// Document is an install configuration file.
	Document struct {
		SetupArguments []Argument `yaml:"setup_arguments"`
		GUIArguments   []Argument `yaml:"kohya_gui_arguments"`
	}

	// Argument overrides the default of the option with the same name.
	Argument struct {
		Name        string `yaml:"name"`
		Value       any    `yaml:"value,omitempty"`
		Description string `yaml:"description,omitempty"`
	}
)

// SearchPaths returns the install configuration locations in increasing priority.
func SearchPaths(exeDir, home, configHome string) []string {
	paths := make([]string, 0, 4)
	if exeDir != "" {
		paths = append(paths, filepath.Join(exeDir, "config_files", "installation", FileName))
	}
	if configHome != "" {
		paths = append(paths, filepath.Join(configHome, "kohyalaunch", FileName))
	}
	if home != "" {
		paths = append(paths, filepath.Join(home, ".kohya_ss", FileName))
	}
	if exeDir != "" {
		paths = append(paths, filepath.Join(exeDir, FileName))
	}
	return paths
}

// LoadFile reads, validates and decodes an install configuration document.
// Validation errors carry the offending field path and line.
func LoadFile(fsys afero.Fs, path string) (*Document, error) {
	data, err := afero.ReadFile(fsys, path)
	if err != nil {
		return nil, err
	}
	if len(data) > MaxFileSize {
		return nil, fmt.Errorf("%s: file size %d bytes exceeds maximum %d bytes", path, len(data), MaxFileSize)
	}
	if err := validateDocument(data, path); err != nil {
		return nil, err
	}

	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &doc, nil
}

// validateDocument checks data against the #InstallConfig schema.
func validateDocument(data []byte, path string) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	file, err := cueyaml.Extract(path, data)
	if err != nil {
		return formatCUEError(err, path)
	}

	ctx := cuecontext.New()
	schemaValue := ctx.CompileString(installConfigSchema)
	if schemaValue.Err() != nil {
		return fmt.Errorf("internal error: failed to compile install config schema: %w", schemaValue.Err())
	}
	userValue := ctx.BuildFile(file)
	if userValue.Err() != nil {
		return formatCUEError(userValue.Err(), path)
	}
	if userValue.IncompleteKind() == cue.NullKind {
		return nil
	}

	schema := schemaValue.LookupPath(cue.ParsePath("#InstallConfig"))
	if err := schema.Unify(userValue).Validate(cue.Concrete(true)); err != nil {
		return formatCUEError(err, path)
	}
	return nil
}

// formatCUEError renders each CUE error as "<file>:<line>: <path>: <message>".
func formatCUEError(err error, path string) error {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return fmt.Errorf("%s: %w", path, err)
	}

	lines := make([]string, 0, len(errs))
	for _, e := range errs {
		loc := path
		for _, pos := range cueerrors.Positions(e) {
			if pos.Filename() == path && pos.Line() > 0 {
				loc = fmt.Sprintf("%s:%d", path, pos.Line())
				break
			}
		}
		format, args := e.Msg()
		msg := fmt.Sprintf(format, args...)
		if p := formatPath(cueerrors.Path(e)); p != "" {
			msg = p + ": " + msg
		}
		lines = append(lines, loc+": "+msg)
	}
	return fmt.Errorf("%w: %s", ErrInvalidDocument, strings.Join(lines, "; "))
}

// formatPath renders a CUE path as setup_arguments[0].name.
func formatPath(path []string) string {
	var b strings.Builder
	for i, part := range path {
		if isIndex(part) && i > 0 {
			b.WriteString("[" + part + "]")
			continue
		}
		if i > 0 {
			b.WriteByte('.')
		}
		b.WriteString(part)
	}
	return b.String()
}

func isIndex(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// Values returns the document's recognized settings keyed by option name.
// Unknown names are skipped.
func (d *Document) Values() map[string]any {
	values := make(map[string]any)
	for _, list := range [][]Argument{d.SetupArguments, d.GUIArguments} {
		for _, arg := range list {
			name := normalizeName(arg.Name)
			if _, ok := lookupOption(name); !ok {
				slog.Debug("ignoring unknown configuration key", "name", arg.Name)
				continue
			}
			if arg.Value == nil {
				continue
			}
			values[name] = arg.Value
		}
	}
	return values
}

// discover loads every existing document in paths, skipping missing files.
func discover(fsys afero.Fs, paths []string) ([]*Document, []string, error) {
	var (
		docs  []*Document
		found []string
	)
	for _, p := range paths {
		doc, err := LoadFile(fsys, p)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, nil, err
		}
		docs = append(docs, doc)
		found = append(found, p)
	}
	return docs, found, nil
}

func normalizeName(name string) string {
	name = strings.TrimLeft(strings.TrimSpace(name), "-")
	return strings.ToLower(strings.ReplaceAll(name, "_", "-"))
}
