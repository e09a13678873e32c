// SPDX-License-Identifier: MPL-2.0

package acquire

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/kohyalaunch/kohyalaunch/internal/release"
)

type (
	// ArchiveFetcher installs a release snapshot of source into dir.
	ArchiveFetcher interface {
		Fetch(ctx context.Context, source, dir string, creds *Credentials) error
	}

	// ReleaseArchive downloads the latest GitHub release archive and overlays
	// it onto the installation directory.
	ReleaseArchive struct {
		// Out receives download progress.
		Out io.Writer
		// Options configure the release client (tests point it at a fake
		// server).
		Options []release.ClientOption
	}
)

var _ ArchiveFetcher = (*ReleaseArchive)(nil)

// Fetch implements ArchiveFetcher.
func (a *ReleaseArchive) Fetch(ctx context.Context, source, dir string, creds *Credentials) error {
	opts := append([]release.ClientOption{}, a.Options...)
	if creds != nil {
		opts = append(opts, release.WithBasicAuth(creds.Username, creds.Password))
	}
	client, err := release.NewClient(source, opts...)
	if err != nil {
		return err
	}

	tag, err := client.LatestTag(ctx)
	if err != nil {
		return fmt.Errorf("resolve latest release: %w", err)
	}
	slog.Info("installing release archive", "tag", tag, "dir", dir)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	scratch, err := os.MkdirTemp(filepath.Dir(dir), ".kohya-release-*")
	if err != nil {
		return fmt.Errorf("create scratch directory: %w", err)
	}
	defer func() { _ = os.RemoveAll(scratch) }()

	archivePath, err := client.Download(ctx, tag, scratch, a.Out)
	if err != nil {
		return err
	}
	unpacked := filepath.Join(scratch, "content")
	if err := release.Extract(ctx, archivePath, unpacked); err != nil {
		return err
	}
	root, err := release.Root(unpacked)
	if err != nil {
		return fmt.Errorf("locate archive root: %w", err)
	}
	n, err := release.Overlay(root, dir)
	if err != nil {
		return err
	}
	slog.Debug("release archive applied", "files", n)
	return nil
}
