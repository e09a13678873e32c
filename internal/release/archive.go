// SPDX-License-Identifier: MPL-2.0

package release

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/mholt/archives"
)

const dirPermissions = 0o755

// ErrUnsupportedArchive is returned when the file is not an extractable archive.
var ErrUnsupportedArchive = errors.New("unsupported archive format")

// Extract unpacks archivePath into dst, rejecting entries that would escape it.
func Extract(ctx context.Context, archivePath, dst string) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("open archive %s: %w", archivePath, err)
	}
	defer func() { _ = f.Close() }() // read-only file handle

	format, input, err := archives.Identify(ctx, archivePath, f)
	if err != nil {
		return fmt.Errorf("identify archive format: %w", err)
	}
	extractor, ok := format.(archives.Extractor)
	if !ok {
		return ErrUnsupportedArchive
	}
	if err := os.MkdirAll(dst, dirPermissions); err != nil {
		return fmt.Errorf("create extraction directory: %w", err)
	}

	return extractor.Extract(ctx, input, func(_ context.Context, fi archives.FileInfo) error {
		return extractEntry(fi, dst)
	})
}

func extractEntry(fi archives.FileInfo, dst string) (err error) {
	target, err := securePath(dst, fi.NameInArchive)
	if err != nil {
		return err
	}
	if fi.IsDir() {
		return os.MkdirAll(target, dirPermissions)
	}
	if err := os.MkdirAll(filepath.Dir(target), dirPermissions); err != nil {
		return err
	}
	if fi.LinkTarget != "" {
		if _, linkErr := securePath(filepath.Dir(target), fi.LinkTarget); linkErr != nil {
			return linkErr
		}
		return os.Symlink(fi.LinkTarget, target)
	}

	src, err := fi.Open()
	if err != nil {
		return fmt.Errorf("open %s: %w", fi.NameInArchive, err)
	}
	defer func() { _ = src.Close() }()

	perm := fi.Mode().Perm()
	if perm == 0 {
		perm = 0o644
	}
	return writeFile(target, src, perm)
}

// securePath joins rel under base and fails if the result leaves base.
func securePath(base, rel string) (string, error) {
	if filepath.IsAbs(rel) {
		return "", fmt.Errorf("illegal file path in archive: %s", rel)
	}
	joined := filepath.Join(base, rel)
	cleanBase := filepath.Clean(base) + string(os.PathSeparator)
	if !strings.HasPrefix(filepath.Clean(joined)+string(os.PathSeparator), cleanBase) {
		return "", fmt.Errorf("illegal file path in archive: %s", rel)
	}
	return joined, nil
}

// Root returns the directory holding the archive's content: the single
// top-level directory GitHub wraps tag archives in, or dir itself.
func Root(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}
	if len(entries) == 1 && entries[0].IsDir() {
		return filepath.Join(dir, entries[0].Name()), nil
	}
	return dir, nil
}

// Overlay copies every file under src to the same relative path under dst,
// overwriting existing files. Files in dst absent from src are left alone.
// It returns the number of files copied.
func Overlay(src, dst string) (int, error) {
	copied := 0
	err := filepath.WalkDir(src, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)

		switch {
		case d.IsDir():
			return os.MkdirAll(target, dirPermissions)
		case d.Type()&fs.ModeSymlink != 0:
			link, err := os.Readlink(path)
			if err != nil {
				return err
			}
			_ = os.Remove(target)
			return os.Symlink(link, target)
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		in, err := os.Open(path)
		if err != nil {
			return err
		}
		defer func() { _ = in.Close() }()
		if err := writeFile(target, in, info.Mode().Perm()); err != nil {
			return err
		}
		copied++
		return nil
	})
	if err != nil {
		return copied, fmt.Errorf("copy release files into %s: %w", dst, err)
	}
	return copied, nil
}

func writeFile(path string, r io.Reader, perm fs.FileMode) (err error) {
	out, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer func() {
		if closeErr := out.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()
	if _, err := io.Copy(out, r); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
