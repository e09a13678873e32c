// SPDX-License-Identifier: MPL-2.0

package acquire

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/plumbing/transport/http"

	"github.com/kohyalaunch/kohyalaunch/internal/testutil"
)

func initRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	if _, err := git.PlainInit(dir, false); err != nil {
		t.Fatalf("PlainInit() error = %v", err)
	}
	commitFile(t, dir, "kohya_gui.py", "print('gui')\n", "initial")
	return dir
}

// commitFile writes name in the repository at dir and commits it.
func commitFile(t *testing.T, dir, name, content, msg string) plumbing.Hash {
	t.Helper()
	repo, err := git.PlainOpen(dir)
	if err != nil {
		t.Fatalf("PlainOpen() error = %v", err)
	}
	testutil.MustWriteFile(t, filepath.Join(dir, name), content)
	wt, err := repo.Worktree()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := wt.Add(name); err != nil {
		t.Fatal(err)
	}
	hash, err := wt.Commit(msg, &git.CommitOptions{
		Author: &object.Signature{Name: "test", Email: "test@example.com", When: time.Unix(0, 0)},
	})
	if err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
	return hash
}

// requireGit skips tests that serve a local repository: go-git's file
// transport runs git-upload-pack.
func requireGit(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(data)
}

func TestGitClient_IsRepository(t *testing.T) {
	t.Parallel()

	g := &GitClient{}
	if !g.IsRepository(initRepo(t)) {
		t.Error("IsRepository() = false for an initialized repository")
	}
	if g.IsRepository(t.TempDir()) {
		t.Error("IsRepository() = true for a plain directory")
	}
}

func TestGitClient_IsClean(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		modify func(t *testing.T, dir string)
		want   bool
	}{
		{name: "pristine", modify: func(*testing.T, string) {}, want: true},
		{
			name: "untracked file",
			modify: func(t *testing.T, dir string) {
				t.Helper()
				testutil.MustWriteFile(t, filepath.Join(dir, "notes.txt"), "scratch")
			},
			want: true,
		},
		{
			name: "modified tracked file",
			modify: func(t *testing.T, dir string) {
				t.Helper()
				testutil.MustWriteFile(t, filepath.Join(dir, "kohya_gui.py"), "print('changed')\n")
			},
			want: false,
		},
		{
			name: "deleted tracked file",
			modify: func(t *testing.T, dir string) {
				t.Helper()
				testutil.MustRemoveAll(t, filepath.Join(dir, "kohya_gui.py"))
			},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			dir := initRepo(t)
			tt.modify(t, dir)

			got, err := (&GitClient{}).IsClean(context.Background(), dir)
			if err != nil {
				t.Fatalf("IsClean() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("IsClean() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGitClient_IsCleanOutsideRepository(t *testing.T) {
	t.Parallel()

	if _, err := (&GitClient{}).IsClean(context.Background(), t.TempDir()); err == nil {
		t.Error("IsClean() expected error outside a repository")
	}
}

func TestGitClient_Auth(t *testing.T) {
	t.Parallel()

	env := map[string]string{"GITHUB_TOKEN": "ghp_x"}
	g := &GitClient{Home: t.TempDir(), Getenv: func(k string) string { return env[k] }}

	auth, err := g.auth("https://github.com/bmaltais/kohya_ss.git", nil)
	if err != nil {
		t.Fatal(err)
	}
	basic, ok := auth.(*http.BasicAuth)
	if !ok || basic.Username != "x-access-token" || basic.Password != "ghp_x" {
		t.Errorf("token auth = %#v", auth)
	}

	auth, err = g.auth("https://github.com/bmaltais/kohya_ss.git", &Credentials{Username: "u", Password: "p"})
	if err != nil {
		t.Fatal(err)
	}
	if basic, ok := auth.(*http.BasicAuth); !ok || basic.Username != "u" || basic.Password != "p" {
		t.Errorf("prompted auth = %#v", auth)
	}

	auth, err = g.auth("/srv/git/kohya_ss", nil)
	if err != nil {
		t.Fatal(err)
	}
	if auth != nil {
		t.Errorf("local repository auth = %#v, want nil", auth)
	}

	anon := &GitClient{Home: t.TempDir(), Getenv: func(string) string { return "" }}
	if auth, _ := anon.auth("https://example.com/repo.git", nil); auth != nil {
		t.Errorf("anonymous auth = %#v, want nil", auth)
	}
}

func TestIsAuthError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{transport.ErrAuthenticationRequired, true},
		{fmt.Errorf("clone: %w", transport.ErrAuthorizationFailed), true},
		{errors.New("ssh: handshake failed: ssh: unable to authenticate"), true},
		{transport.ErrRepositoryNotFound, false},
		{os.ErrNotExist, false},
	}
	for _, tt := range tests {
		if got := IsAuthError(tt.err); got != tt.want {
			t.Errorf("IsAuthError(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestClearDir(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	testutil.MustMkdirAll(t, filepath.Join(dir, ".git", "objects"))
	testutil.MustWriteFile(t, filepath.Join(dir, "a.txt"), "a")

	if err := clearDir(dir); err != nil {
		t.Fatalf("clearDir() error = %v", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("directory removed: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("clearDir() left %d entries", len(entries))
	}
	if err := clearDir(filepath.Join(dir, "missing")); err != nil {
		t.Errorf("clearDir(missing) error = %v", err)
	}
}

func TestGitClient_CloneBranchIsShallow(t *testing.T) {
	t.Parallel()
	requireGit(t)

	src := initRepo(t)
	head := commitFile(t, src, "kohya_gui.py", "print('v2')\n", "second")
	dst := filepath.Join(t.TempDir(), "kohya_ss")

	if err := (&GitClient{}).Clone(context.Background(), src, "master", dst, nil); err != nil {
		t.Fatalf("Clone() error = %v", err)
	}
	if got := readFile(t, filepath.Join(dst, "kohya_gui.py")); got != "print('v2')\n" {
		t.Errorf("kohya_gui.py = %q, want the branch tip", got)
	}

	repo, err := git.PlainOpen(dst)
	if err != nil {
		t.Fatalf("PlainOpen() error = %v", err)
	}
	ref, err := repo.Head()
	if err != nil {
		t.Fatalf("Head() error = %v", err)
	}
	if ref.Name() != plumbing.NewBranchReferenceName("master") || ref.Hash() != head {
		t.Errorf("HEAD = %s %s, want master at %s", ref.Name(), ref.Hash(), head)
	}
	shallow, err := repo.Storer.Shallow()
	if err != nil {
		t.Fatalf("Shallow() error = %v", err)
	}
	if len(shallow) != 1 {
		t.Errorf("shallow boundary = %v, want one commit", shallow)
	}
}

func TestGitClient_CloneFallsBackToTag(t *testing.T) {
	t.Parallel()
	requireGit(t)

	src := initRepo(t)
	srcRepo, err := git.PlainOpen(src)
	if err != nil {
		t.Fatal(err)
	}
	tagged, err := srcRepo.Head()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := srcRepo.CreateTag("v22.1.0", tagged.Hash(), nil); err != nil {
		t.Fatalf("CreateTag() error = %v", err)
	}
	commitFile(t, src, "kohya_gui.py", "print('after tag')\n", "after tag")
	dst := filepath.Join(t.TempDir(), "kohya_ss")

	if err := (&GitClient{}).Clone(context.Background(), src, "v22.1.0", dst, nil); err != nil {
		t.Fatalf("Clone() error = %v", err)
	}
	if got := readFile(t, filepath.Join(dst, "kohya_gui.py")); got != "print('gui')\n" {
		t.Errorf("kohya_gui.py = %q, want the tagged content", got)
	}
	repo, err := git.PlainOpen(dst)
	if err != nil {
		t.Fatal(err)
	}
	head, err := repo.Head()
	if err != nil {
		t.Fatal(err)
	}
	if head.Hash() != tagged.Hash() {
		t.Errorf("HEAD = %s, want tagged commit %s", head.Hash(), tagged.Hash())
	}
}

func TestGitClient_CloneFailureLeavesDirectoryEmpty(t *testing.T) {
	t.Parallel()
	requireGit(t)

	src := initRepo(t)
	dst := t.TempDir()

	err := (&GitClient{}).Clone(context.Background(), src, "no-such-ref", dst, nil)
	if err == nil {
		t.Fatal("Clone() of a missing ref succeeded")
	}
	entries, readErr := os.ReadDir(dst)
	if readErr != nil && !os.IsNotExist(readErr) {
		t.Fatalf("ReadDir() error = %v", readErr)
	}
	if len(entries) != 0 {
		t.Errorf("failed clone left %d entries behind", len(entries))
	}
}

func TestGitClient_Pull(t *testing.T) {
	t.Parallel()
	requireGit(t)

	src := initRepo(t)
	dst := filepath.Join(t.TempDir(), "kohya_ss")
	if _, err := git.PlainClone(dst, false, &git.CloneOptions{URL: src}); err != nil {
		t.Fatalf("PlainClone() error = %v", err)
	}
	g := &GitClient{}

	if err := g.Pull(context.Background(), dst, nil); err != nil {
		t.Fatalf("Pull() on an up-to-date checkout error = %v", err)
	}

	next := commitFile(t, src, "kohya_gui.py", "print('updated')\n", "update")
	if err := g.Pull(context.Background(), dst, nil); err != nil {
		t.Fatalf("Pull() error = %v", err)
	}
	if got := readFile(t, filepath.Join(dst, "kohya_gui.py")); got != "print('updated')\n" {
		t.Errorf("kohya_gui.py = %q, want the pulled content", got)
	}
	repo, err := git.PlainOpen(dst)
	if err != nil {
		t.Fatal(err)
	}
	head, err := repo.Head()
	if err != nil {
		t.Fatal(err)
	}
	if head.Hash() != next {
		t.Errorf("HEAD = %s, want fast-forward to %s", head.Hash(), next)
	}
}

func TestGitClient_PullOutsideRepository(t *testing.T) {
	t.Parallel()

	if err := (&GitClient{}).Pull(context.Background(), t.TempDir(), nil); err == nil {
		t.Error("Pull() expected error outside a repository")
	}
}
