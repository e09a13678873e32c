// SPDX-License-Identifier: MPL-2.0

package acquire

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"

	"github.com/go-git/go-git/v5/plumbing/transport"
)

type (
	fakeVCS struct {
		mu sync.Mutex

		clean         bool
		statusErr     error
		notRepository bool
		// cloneErrs and pullErrs are consumed one per call; once exhausted
		// calls succeed.
		cloneErrs []error
		pullErrs  []error

		clones    int
		pulls     int
		seenCreds []*Credentials
	}

	fakePrompter struct {
		creds Credentials
		err   error
		calls int
	}

	fakeArchive struct {
		err    error
		calls  int
		creds  *Credentials
		source string
	}
)

var errAuth = transport.ErrAuthenticationRequired

func (f *fakeVCS) IsRepository(dir string) bool {
	if f.notRepository {
		return false
	}
	_, err := os.Stat(filepath.Join(dir, gitDirName))
	return err == nil
}

func (f *fakeVCS) IsClean(context.Context, string) (bool, error) {
	return f.clean, f.statusErr
}

func (f *fakeVCS) Pull(_ context.Context, _ string, creds *Credentials) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pulls++
	f.seenCreds = append(f.seenCreds, creds)
	return pop(&f.pullErrs)
}

func (f *fakeVCS) Clone(_ context.Context, _, _, dir string, creds *Credentials) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clones++
	f.seenCreds = append(f.seenCreds, creds)
	if err := pop(&f.cloneErrs); err != nil {
		return err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	if len(entries) != 0 {
		return errors.New("clone target not empty")
	}
	if err := os.MkdirAll(filepath.Join(dir, gitDirName), 0o755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "kohya_gui.py"), []byte("print('gui')\n"), 0o644)
}

func pop(errs *[]error) error {
	if len(*errs) == 0 {
		return nil
	}
	err := (*errs)[0]
	*errs = (*errs)[1:]
	return err
}

func (p *fakePrompter) Credentials(context.Context, string) (Credentials, error) {
	p.calls++
	return p.creds, p.err
}

func (a *fakeArchive) Fetch(_ context.Context, source, dir string, creds *Credentials) error {
	a.calls++
	a.creds = creds
	a.source = source
	if a.err != nil {
		return a.err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "kohya_gui.py"), []byte("print('release')\n"), 0o644)
}
