// SPDX-License-Identifier: MPL-2.0

package repair

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"path"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/afero"
)

const (
	executableMode fs.FileMode = 0o777
	regularMode    fs.FileMode = 0o666
)

// ErrInterpreterNotWritable is returned when the runtime's own interpreter
// cannot be given the permissions it needs.
var ErrInterpreterNotWritable = errors.New("cannot fix permissions on the runtime interpreter")

var (
	//nolint:gochecknoglobals // fixed tables
	executableExts = []string{".py", ".exe", ".elf", ".sh"}
	//nolint:gochecknoglobals // fixed tables
	excludedDirs = []string{"Lib/site-packages", "lib/python*/site-packages", "share/doc"}
	elfMagic     = []byte{0x7f, 'E', 'L', 'F'} //nolint:gochecknoglobals // fixed table
)

// PermissionReport counts what NormalizePermissions touched.
type PermissionReport struct {
	Checked int
	Fixed   int
	Skipped []string
}

// NormalizePermissions walks the runtime at root and adds missing bits:
// executables need 0777 and everything else 0666. Existing bits are never
// removed. Package directories and documentation are not walked.
func NormalizePermissions(fsys afero.Fs, root string) (PermissionReport, error) {
	var (
		report PermissionReport
		errs   *multierror.Error
	)

	walkErr := afero.Walk(fsys, root, func(p string, info fs.FileInfo, err error) error {
		if err != nil {
			errs = multierror.Append(errs, err)
			return nil
		}
		if info.IsDir() {
			if p != root && excluded(root, p) {
				return filepath.SkipDir
			}
			return nil
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		report.Checked++

		required := regularMode
		if isExecutable(fsys, p, info) {
			required = executableMode
		}
		cur := info.Mode().Perm()
		missing := required &^ cur
		if missing == 0 {
			return nil
		}

		slog.Debug("missing permissions", "file", p, "mode", cur, "missing", missing)
		if err := fsys.Chmod(p, cur|missing); err != nil {
			if !errors.Is(err, fs.ErrPermission) {
				errs = multierror.Append(errs, fmt.Errorf("chmod %s: %w", p, err))
				return nil
			}
			if coreInterpreter(p) {
				return fmt.Errorf("%w: %s: %w", ErrInterpreterNotWritable, p, err)
			}
			slog.Debug("unable to fix permissions; skipping", "file", p, "error", err)
			report.Skipped = append(report.Skipped, p)
			return nil
		}
		report.Fixed++
		return nil
	})
	if walkErr != nil {
		return report, walkErr
	}
	return report, errs.ErrorOrNil()
}

func excluded(root, dir string) bool {
	rel, err := filepath.Rel(root, dir)
	if err != nil {
		return false
	}
	rel = filepath.ToSlash(rel)
	for _, pattern := range excludedDirs {
		if ok, _ := path.Match(pattern, rel); ok {
			return true
		}
	}
	return false
}

func isExecutable(fsys afero.Fs, p string, info fs.FileInfo) bool {
	if info.Mode().Perm()&0o111 != 0 {
		return true
	}
	ext := strings.ToLower(filepath.Ext(p))
	for _, e := range executableExts {
		if ext == e {
			return true
		}
	}
	return hasExecutableHeader(fsys, p)
}

// hasExecutableHeader reports a shebang or ELF magic at the start of p.
func hasExecutableHeader(fsys afero.Fs, p string) bool {
	f, err := fsys.Open(p)
	if err != nil {
		return false
	}
	defer func() { _ = f.Close() }() // read-only

	head := make([]byte, len(elfMagic))
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return false
	}
	head = head[:n]
	return bytes.HasPrefix(head, []byte("#!")) || bytes.Equal(head, elfMagic)
}

// coreInterpreter reports whether p is one of the runtime's interpreter
// executables.
func coreInterpreter(p string) bool {
	dir := filepath.Base(filepath.Dir(p))
	if dir != "bin" && dir != "Scripts" {
		return false
	}
	return strings.Contains(strings.ToLower(filepath.Base(p)), "python")
}
