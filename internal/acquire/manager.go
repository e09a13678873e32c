// SPDX-License-Identifier: MPL-2.0

package acquire

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/cenkalti/backoff/v4"
)

// DefaultMaxAttempts bounds authentication attempts per operation.
const DefaultMaxAttempts = 4

type (
	// Request describes what the installation directory should hold.
	Request struct {
		Dir    string
		Source string
		Branch string
		Update bool
		// Keep names directories directly under Dir that a fresh clone
		// leaves in place, alongside the runtime directory.
		Keep []string
		// ArchiveAllowed permits the release-archive fallback; only the
		// project's canonical source on its default branch publishes one.
		ArchiveAllowed bool
	}

	// Manager runs the acquisition state machine. A Manager keeps the
	// credentials it prompted for and is meant for a single run.
	Manager struct {
		// VCS is nil when version control is disabled or unavailable.
		VCS VCS
		// Prompter is nil when credentials cannot be asked for.
		Prompter Prompter
		// Archive is nil when the release fallback is unavailable.
		Archive     ArchiveFetcher
		MaxAttempts int

		creds *Credentials
	}
)

// Acquire brings req.Dir to the requested revision and reports the outcome.
func (m *Manager) Acquire(ctx context.Context, req Request) Result {
	state, err := Inspect(req.Dir, req.Keep...)
	if err != nil {
		return unknown("inspect installation directory", err)
	}
	if state == StateVCS && m.VCS != nil && !m.VCS.IsRepository(req.Dir) {
		slog.Warn("version control metadata is unreadable", "dir", req.Dir)
		state = StatePopulated
	}
	slog.Debug("installation directory inspected", "dir", req.Dir, "state", state)

	var res Result
	if m.VCS == nil {
		res = unknown("version control unavailable", nil)
	} else {
		res = m.acquireVCS(ctx, req, state)
		if res.OK() || res.Blocking() {
			return res
		}
		slog.Warn("version control acquisition failed", "result", res.String())
	}

	if ctx.Err() != nil {
		return unknown("interrupted", ctx.Err())
	}
	if !req.ArchiveAllowed || m.Archive == nil {
		slog.Debug("release archive fallback not permitted")
		return res
	}
	if !state.Fresh() && !req.Update {
		slog.Debug("release archive fallback skipped: directory populated and update not requested")
		return res
	}

	if err := m.Archive.Fetch(ctx, req.Source, req.Dir, m.creds); err != nil {
		return unknown("release archive fallback failed", err)
	}
	return success("installed from release archive")
}

func (m *Manager) acquireVCS(ctx context.Context, req Request, state State) Result {
	switch {
	case state == StateVCS:
		if !req.Update {
			return skipped("existing checkout kept; update not requested")
		}
		clean, err := m.VCS.IsClean(ctx, req.Dir)
		if err != nil {
			return Result{Kind: KindStatusQueryFailed, Detail: "could not query working copy status", Err: err}
		}
		if !clean {
			return Result{Kind: KindUncommittedChanges, Detail: "commit or stash local modifications before updating"}
		}
		return m.withAuthRetry(ctx, req.Source, "updated", func(creds *Credentials) error {
			return m.VCS.Pull(ctx, req.Dir, creds)
		})

	case state.Fresh():
		if err := os.MkdirAll(req.Dir, 0o755); err != nil {
			return unknown("create installation directory", err)
		}
		if state == StateCacheOnly {
			return m.cloneAlongside(ctx, req)
		}
		return m.withAuthRetry(ctx, req.Source, "cloned", func(creds *Credentials) error {
			return m.VCS.Clone(ctx, req.Source, req.Branch, req.Dir, creds)
		})

	default:
		if !req.Update {
			return skipped("directory holds files without version control; update not requested")
		}
		return unknown("directory holds files without version control metadata", nil)
	}
}

// withAuthRetry runs op, prompting for fresh credentials after each
// authentication failure until MaxAttempts is reached.
func (m *Manager) withAuthRetry(ctx context.Context, source, verb string, op func(*Credentials) error) Result {
	maxAttempts := m.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}

	attempt := 0
	var last error
	policy := backoff.WithContext(backoff.WithMaxRetries(&backoff.ZeroBackOff{}, uint64(maxAttempts-1)), ctx) //nolint:gosec // positive
	err := backoff.Retry(func() error {
		attempt++
		err := op(m.creds)
		last = err
		if err == nil {
			return nil
		}
		if !IsAuthError(err) {
			return backoff.Permanent(err)
		}
		slog.Warn("authentication failed", "source", source, "attempt", attempt, "max", maxAttempts)
		if attempt >= maxAttempts || m.Prompter == nil {
			return backoff.Permanent(err)
		}
		creds, perr := m.Prompter.Credentials(ctx, source)
		if perr != nil {
			slog.Debug("credential prompt unavailable", "error", perr)
			return backoff.Permanent(err)
		}
		m.creds = &creds
		return err
	}, policy)

	switch {
	case err == nil:
		return success(verb)
	case IsAuthError(last):
		return Result{Kind: KindAuthFailure, Detail: fmt.Sprintf("gave up after %d attempt(s)", attempt), Err: last}
	case last == nil:
		return unknown("interrupted", err)
	default:
		return unknown(verb+" failed", last)
	}
}

// cloneAlongside clones into a staging directory beside req.Dir and moves
// the checkout in, so the runtime and kept directories never move. Open
// files inside them (the run's own log) stay valid.
func (m *Manager) cloneAlongside(ctx context.Context, req Request) Result {
	staging, err := os.MkdirTemp(filepath.Dir(req.Dir), ".kohya-clone-*")
	if err != nil {
		return unknown("create clone staging directory", err)
	}
	defer func() {
		if err := os.RemoveAll(staging); err != nil {
			slog.Warn("could not remove clone staging directory", "dir", staging, "error", err)
		}
	}()

	res := m.withAuthRetry(ctx, req.Source, "cloned", func(creds *Credentials) error {
		return m.VCS.Clone(ctx, req.Source, req.Branch, staging, creds)
	})
	if !res.OK() {
		return res
	}
	if err := mergeInto(staging, req.Dir); err != nil {
		return unknown("move checkout into installation directory", err)
	}
	slog.Debug("checkout moved into installation directory", "from", staging, "to", req.Dir)
	return res
}

// mergeInto moves every entry of src into dst. Directories present on both
// sides are merged; otherwise the entry from src replaces the one in dst.
func mergeInto(src, dst string) error {
	entries, err := os.ReadDir(src)
	if err != nil {
		return err
	}
	for _, e := range entries {
		from := filepath.Join(src, e.Name())
		to := filepath.Join(dst, e.Name())
		info, err := os.Lstat(to)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return err
		case info.IsDir() && e.IsDir():
			if err := mergeInto(from, to); err != nil {
				return err
			}
			continue
		default:
			if err := os.RemoveAll(to); err != nil {
				return err
			}
		}
		if err := os.Rename(from, to); err != nil {
			return fmt.Errorf("move %s: %w", e.Name(), err)
		}
	}
	return nil
}
