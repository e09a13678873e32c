// SPDX-License-Identifier: MPL-2.0

package acquire

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/go-git/go-git/v5/plumbing/transport/ssh"
)

type (
	// Credentials are a username/password pair supplied interactively.
	Credentials struct {
		Username string
		Password string
	}

	// VCS is the version-control surface Manager drives.
	VCS interface {
		// IsRepository reports whether dir is a working copy.
		IsRepository(dir string) bool
		// IsClean reports whether the working copy has no uncommitted
		// modifications to tracked files.
		IsClean(ctx context.Context, dir string) (bool, error)
		// Pull fast-forwards the working copy from its remote.
		Pull(ctx context.Context, dir string, creds *Credentials) error
		// Clone writes a shallow checkout of branch (or tag) into dir.
		Clone(ctx context.Context, source, branch, dir string, creds *Credentials) error
	}

	// GitClient implements VCS with go-git.
	GitClient struct {
		// Progress receives remote progress output. Nil discards it.
		Progress io.Writer
		// Home locates SSH keys. Empty uses the user's home directory.
		Home string
		// Getenv reads token variables. Nil uses os.Getenv.
		Getenv func(string) string
	}
)

var _ VCS = (*GitClient)(nil)

// IsAuthError reports whether err is a rejected or missing credential.
func IsAuthError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, transport.ErrAuthenticationRequired) || errors.Is(err, transport.ErrAuthorizationFailed) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "unable to authenticate") || strings.Contains(msg, "authentication required")
}

// IsRepository reports whether dir is a git working copy.
func (g *GitClient) IsRepository(dir string) bool {
	_, err := git.PlainOpen(dir)
	return err == nil
}

// IsClean reports whether tracked files carry uncommitted changes.
// Untracked files do not count as modifications.
func (g *GitClient) IsClean(_ context.Context, dir string) (bool, error) {
	repo, err := git.PlainOpen(dir)
	if err != nil {
		return false, fmt.Errorf("open repository: %w", err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		return false, fmt.Errorf("open worktree: %w", err)
	}
	status, err := wt.Status()
	if err != nil {
		return false, fmt.Errorf("query status: %w", err)
	}
	for _, fs := range status {
		if fs.Worktree == git.Untracked && fs.Staging == git.Untracked {
			continue
		}
		if fs.Worktree != git.Unmodified || fs.Staging != git.Unmodified {
			return false, nil
		}
	}
	return true, nil
}

// Pull fetches and fast-forwards the checked-out branch.
func (g *GitClient) Pull(ctx context.Context, dir string, creds *Credentials) error {
	repo, err := git.PlainOpen(dir)
	if err != nil {
		return fmt.Errorf("open repository: %w", err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("open worktree: %w", err)
	}

	opts := &git.PullOptions{
		RemoteName: git.DefaultRemoteName,
		Progress:   g.Progress,
	}
	if head, err := repo.Head(); err == nil && head.Name().IsBranch() {
		opts.ReferenceName = head.Name()
		opts.SingleBranch = true
	}
	if remote, err := repo.Remote(git.DefaultRemoteName); err == nil && len(remote.Config().URLs) > 0 {
		auth, err := g.auth(remote.Config().URLs[0], creds)
		if err != nil {
			return err
		}
		opts.Auth = auth
	}

	if err := wt.PullContext(ctx, opts); err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return fmt.Errorf("pull: %w", err)
	}
	return nil
}

// Clone shallow-clones source into dir, treating branch first as a branch
// and then as a tag. dir must be absent or empty.
func (g *GitClient) Clone(ctx context.Context, source, branch, dir string, creds *Credentials) error {
	auth, err := g.auth(source, creds)
	if err != nil {
		return err
	}

	refs := []plumbing.ReferenceName{
		plumbing.NewBranchReferenceName(branch),
		plumbing.NewTagReferenceName(branch),
	}

	var lastErr error
	for _, ref := range refs {
		_, err := git.PlainCloneContext(ctx, dir, false, &git.CloneOptions{
			URL:           source,
			Auth:          auth,
			ReferenceName: ref,
			SingleBranch:  true,
			Depth:         1,
			Progress:      g.Progress,
		})
		if err == nil {
			return nil
		}
		lastErr = err
		if cleanErr := clearDir(dir); cleanErr != nil {
			return errors.Join(err, cleanErr)
		}
		if IsAuthError(err) || ctx.Err() != nil {
			break
		}
	}
	return fmt.Errorf("clone %s (%s): %w", source, branch, lastErr)
}

func (g *GitClient) auth(source string, creds *Credentials) (transport.AuthMethod, error) {
	ep, err := transport.NewEndpoint(source)
	if err != nil {
		return nil, fmt.Errorf("parse repository URL: %w", err)
	}

	switch ep.Protocol {
	case "ssh":
		if creds != nil && creds.Password != "" {
			return &ssh.Password{User: sshUser(ep, creds), Password: creds.Password}, nil
		}
		return g.sshKeyAuth(ep), nil
	case "http", "https":
		if creds != nil {
			return &http.BasicAuth{Username: creds.Username, Password: creds.Password}, nil
		}
		return g.tokenAuth(), nil
	default:
		return nil, nil
	}
}

func sshUser(ep *transport.Endpoint, creds *Credentials) string {
	if creds.Username != "" {
		return creds.Username
	}
	if ep.User != "" {
		return ep.User
	}
	return "git"
}

func (g *GitClient) sshKeyAuth(ep *transport.Endpoint) transport.AuthMethod {
	home := g.Home
	if home == "" {
		var err error
		if home, err = os.UserHomeDir(); err != nil {
			return nil
		}
	}
	user := ep.User
	if user == "" {
		user = "git"
	}
	for _, name := range []string{"id_ed25519", "id_rsa", "id_ecdsa"} {
		keyPath := filepath.Join(home, ".ssh", name)
		if _, err := os.Stat(keyPath); err != nil {
			continue
		}
		auth, err := ssh.NewPublicKeysFromFile(user, keyPath, "")
		if err == nil {
			return auth
		}
	}
	return nil
}

func (g *GitClient) tokenAuth() transport.AuthMethod {
	getenv := g.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}
	if token := getenv("GITHUB_TOKEN"); token != "" {
		return &http.BasicAuth{Username: "x-access-token", Password: token}
	}
	if token := getenv("GIT_TOKEN"); token != "" {
		return &http.BasicAuth{Username: "git", Password: token}
	}
	return nil
}

// clearDir removes everything inside dir but keeps dir itself.
func clearDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	var errs []error
	for _, e := range entries {
		if err := os.RemoveAll(filepath.Join(dir, e.Name())); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
