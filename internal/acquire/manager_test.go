// SPDX-License-Identifier: MPL-2.0

package acquire

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/kohyalaunch/kohyalaunch/internal/testutil"
)

func newInstallDir(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "kohya_ss")
}

func checkout(t *testing.T) string {
	t.Helper()
	dir := newInstallDir(t)
	testutil.MustMkdirAll(t, filepath.Join(dir, ".git"))
	testutil.MustWriteFile(t, filepath.Join(dir, "kohya_gui.py"), "print('gui')\n")
	return dir
}

func TestAcquire_ExistingCheckoutWithoutUpdate(t *testing.T) {
	t.Parallel()

	dir := checkout(t)
	vcs := &fakeVCS{clean: true}
	archive := &fakeArchive{}
	m := &Manager{VCS: vcs, Archive: archive}

	for range 2 {
		res := m.Acquire(context.Background(), Request{Dir: dir, Branch: "master", ArchiveAllowed: true})
		if res.Kind != KindUpdateSkipped {
			t.Fatalf("Acquire() = %v, want update skipped", res)
		}
		if !res.OK() {
			t.Error("update skipped should be usable")
		}
	}
	if vcs.pulls != 0 || vcs.clones != 0 || archive.calls != 0 {
		t.Errorf("unexpected activity: pulls=%d clones=%d archive=%d", vcs.pulls, vcs.clones, archive.calls)
	}
}

func TestAcquire_UpdateBlockedByLocalChanges(t *testing.T) {
	t.Parallel()

	dir := checkout(t)
	vcs := &fakeVCS{clean: false}
	archive := &fakeArchive{}
	m := &Manager{VCS: vcs, Archive: archive}

	res := m.Acquire(context.Background(), Request{Dir: dir, Update: true, ArchiveAllowed: true})
	if res.Kind != KindUncommittedChanges {
		t.Fatalf("Acquire() = %v, want uncommitted changes", res)
	}
	if vcs.pulls != 0 {
		t.Errorf("pulled %d times despite local changes", vcs.pulls)
	}
	if archive.calls != 0 {
		t.Error("archive fallback must not run after uncommitted changes")
	}
}

func TestAcquire_StatusQueryFailureAborts(t *testing.T) {
	t.Parallel()

	dir := checkout(t)
	vcs := &fakeVCS{statusErr: errors.New("index corrupt")}
	archive := &fakeArchive{}
	m := &Manager{VCS: vcs, Archive: archive}

	res := m.Acquire(context.Background(), Request{Dir: dir, Update: true, ArchiveAllowed: true})
	if res.Kind != KindStatusQueryFailed {
		t.Fatalf("Acquire() = %v, want status query failed", res)
	}
	if res.OK() {
		t.Error("status query failure must not be usable")
	}
	if archive.calls != 0 || vcs.pulls != 0 {
		t.Errorf("unexpected activity: pulls=%d archive=%d", vcs.pulls, archive.calls)
	}
}

func TestAcquire_UpdatePulls(t *testing.T) {
	t.Parallel()

	dir := checkout(t)
	vcs := &fakeVCS{clean: true}
	m := &Manager{VCS: vcs}

	res := m.Acquire(context.Background(), Request{Dir: dir, Update: true})
	if res.Kind != KindSuccess {
		t.Fatalf("Acquire() = %v, want success", res)
	}
	if vcs.pulls != 1 {
		t.Errorf("pulls = %d, want 1", vcs.pulls)
	}
}

func TestAcquire_AuthRetryWithPromptedCredentials(t *testing.T) {
	t.Parallel()

	dir := checkout(t)
	vcs := &fakeVCS{clean: true, pullErrs: []error{errAuth, errAuth}}
	prompter := &fakePrompter{creds: Credentials{Username: "u", Password: "p"}}
	m := &Manager{VCS: vcs, Prompter: prompter}

	res := m.Acquire(context.Background(), Request{Dir: dir, Update: true})
	if res.Kind != KindSuccess {
		t.Fatalf("Acquire() = %v, want success", res)
	}
	if vcs.pulls != 3 {
		t.Errorf("pulls = %d, want 3", vcs.pulls)
	}
	if prompter.calls != 2 {
		t.Errorf("prompts = %d, want 2", prompter.calls)
	}
	if vcs.seenCreds[0] != nil {
		t.Error("first attempt should use ambient credentials")
	}
	if got := vcs.seenCreds[2]; got == nil || got.Username != "u" || got.Password != "p" {
		t.Errorf("last attempt credentials = %+v", got)
	}
}

func TestAcquire_AuthRetriesBounded(t *testing.T) {
	t.Parallel()

	dir := checkout(t)
	vcs := &fakeVCS{clean: true, pullErrs: []error{errAuth, errAuth, errAuth, errAuth, errAuth, errAuth}}
	prompter := &fakePrompter{creds: Credentials{Username: "u", Password: "wrong"}}
	m := &Manager{VCS: vcs, Prompter: prompter}

	res := m.Acquire(context.Background(), Request{Dir: dir, Update: true})
	if res.Kind != KindAuthFailure {
		t.Fatalf("Acquire() = %v, want authentication failure", res)
	}
	if vcs.pulls != DefaultMaxAttempts {
		t.Errorf("pulls = %d, want %d", vcs.pulls, DefaultMaxAttempts)
	}
	if prompter.calls != DefaultMaxAttempts-1 {
		t.Errorf("prompts = %d, want %d", prompter.calls, DefaultMaxAttempts-1)
	}
}

func TestAcquire_AuthFailureWithoutPrompter(t *testing.T) {
	t.Parallel()

	dir := checkout(t)
	vcs := &fakeVCS{clean: true, pullErrs: []error{errAuth}}
	m := &Manager{VCS: vcs}

	res := m.Acquire(context.Background(), Request{Dir: dir, Update: true})
	if res.Kind != KindAuthFailure {
		t.Fatalf("Acquire() = %v, want authentication failure", res)
	}
	if vcs.pulls != 1 {
		t.Errorf("pulls = %d, want 1", vcs.pulls)
	}
}

func TestAcquire_CloneKeepsRuntime(t *testing.T) {
	t.Parallel()

	for _, fail := range []bool{false, true} {
		dir := newInstallDir(t)
		marker := filepath.Join(dir, CacheDirName, "pyvenv.cfg")
		testutil.MustMkdirAll(t, filepath.Dir(marker))
		testutil.MustWriteFile(t, marker, "home = /usr/bin\n")

		vcs := &fakeVCS{}
		if fail {
			vcs.cloneErrs = []error{errors.New("network unreachable")}
		}
		m := &Manager{VCS: vcs}

		res := m.Acquire(context.Background(), Request{Dir: dir, Branch: "master"})
		if fail == res.OK() {
			t.Errorf("fail=%v: Acquire() = %v", fail, res)
		}
		if _, err := os.Stat(marker); err != nil {
			t.Errorf("fail=%v: runtime not restored: %v", fail, err)
		}
		if !fail {
			if _, err := os.Stat(filepath.Join(dir, "kohya_gui.py")); err != nil {
				t.Errorf("clone content missing: %v", err)
			}
		}
		leftovers, _ := filepath.Glob(filepath.Join(filepath.Dir(dir), ".kohya-clone-*"))
		if len(leftovers) != 0 {
			t.Errorf("fail=%v: staging directories left behind: %v", fail, leftovers)
		}
	}
}

func TestAcquire_CloneKeepsOpenLogDirectory(t *testing.T) {
	t.Parallel()

	dir := newInstallDir(t)
	testutil.MustMkdirAll(t, filepath.Join(dir, CacheDirName, "bin"))
	logPath := filepath.Join(dir, "logs", "kohyalaunch.log")
	testutil.MustMkdirAll(t, filepath.Dir(logPath))
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		t.Fatalf("open log: %v", err)
	}
	t.Cleanup(func() { _ = logFile.Close() })
	if _, err := logFile.WriteString("before clone\n"); err != nil {
		t.Fatalf("write log: %v", err)
	}

	vcs := &fakeVCS{}
	m := &Manager{VCS: vcs}
	res := m.Acquire(context.Background(), Request{Dir: dir, Branch: "master", Keep: []string{"logs"}})
	if res.Kind != KindSuccess {
		t.Fatalf("Acquire() = %v, want success", res)
	}
	if vcs.clones != 1 {
		t.Errorf("clones = %d, want 1", vcs.clones)
	}

	if _, err := logFile.WriteString("after clone\n"); err != nil {
		t.Fatalf("write log after clone: %v", err)
	}
	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if string(data) != "before clone\nafter clone\n" {
		t.Errorf("log content = %q", data)
	}
	for _, want := range []string{".git", "kohya_gui.py", filepath.Join(CacheDirName, "bin")} {
		if _, err := os.Stat(filepath.Join(dir, want)); err != nil {
			t.Errorf("%s missing after clone: %v", want, err)
		}
	}
}

func TestAcquire_WithoutKeepLogDirectoryBlocksClone(t *testing.T) {
	t.Parallel()

	dir := newInstallDir(t)
	testutil.MustMkdirAll(t, filepath.Join(dir, "logs"))

	vcs := &fakeVCS{}
	m := &Manager{VCS: vcs}
	res := m.Acquire(context.Background(), Request{Dir: dir, Branch: "master"})
	if res.Kind != KindUpdateSkipped {
		t.Fatalf("Acquire() = %v, want skipped", res)
	}
	if vcs.clones != 0 {
		t.Errorf("clones = %d, want 0", vcs.clones)
	}
}

func TestAcquire_UnreadableMetadataIsNotACheckout(t *testing.T) {
	t.Parallel()

	dir := newInstallDir(t)
	testutil.MustWriteFile(t, filepath.Join(dir, ".git"), "gitdir: /nowhere\n")

	vcs := &fakeVCS{notRepository: true}
	m := &Manager{VCS: vcs}
	res := m.Acquire(context.Background(), Request{Dir: dir, Branch: "master", Update: true})
	if res.Kind != KindUnknown {
		t.Fatalf("Acquire() = %v, want unknown failure", res)
	}
	if vcs.pulls != 0 {
		t.Errorf("pulls = %d, want 0", vcs.pulls)
	}
}

func TestAcquire_CloneCreatesMissingDirectory(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "a", "b", "kohya_ss")
	vcs := &fakeVCS{}
	m := &Manager{VCS: vcs}

	res := m.Acquire(context.Background(), Request{Dir: dir, Branch: "master"})
	if res.Kind != KindSuccess {
		t.Fatalf("Acquire() = %v, want success", res)
	}
	if vcs.clones != 1 {
		t.Errorf("clones = %d, want 1", vcs.clones)
	}
}

func TestAcquire_ArchiveFallback(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		vcs         *fakeVCS
		populated   bool
		update      bool
		allowed     bool
		archiveErr  error
		wantKind    Kind
		wantArchive int
	}{
		{
			name:        "clone fails on canonical source",
			vcs:         &fakeVCS{cloneErrs: []error{errors.New("boom")}},
			allowed:     true,
			wantKind:    KindSuccess,
			wantArchive: 1,
		},
		{
			name:     "clone fails on custom source",
			vcs:      &fakeVCS{cloneErrs: []error{errors.New("boom")}},
			wantKind: KindUnknown,
		},
		{
			name:        "version control disabled",
			allowed:     true,
			wantKind:    KindSuccess,
			wantArchive: 1,
		},
		{
			name:        "populated without update",
			vcs:         &fakeVCS{},
			populated:   true,
			allowed:     true,
			wantKind:    KindUpdateSkipped,
			wantArchive: 0,
		},
		{
			name:        "populated with update",
			vcs:         &fakeVCS{},
			populated:   true,
			update:      true,
			allowed:     true,
			wantKind:    KindSuccess,
			wantArchive: 1,
		},
		{
			name:        "populated with update and version control disabled",
			populated:   true,
			update:      true,
			allowed:     true,
			wantKind:    KindSuccess,
			wantArchive: 1,
		},
		{
			name:        "populated without update and version control disabled",
			populated:   true,
			allowed:     true,
			wantKind:    KindUnknown,
			wantArchive: 0,
		},
		{
			name:        "archive download fails",
			allowed:     true,
			archiveErr:  errors.New("503"),
			wantKind:    KindUnknown,
			wantArchive: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			dir := newInstallDir(t)
			if tt.populated {
				testutil.MustMkdirAll(t, dir)
				testutil.MustWriteFile(t, filepath.Join(dir, "kohya_gui.py"), "x")
			}
			archive := &fakeArchive{err: tt.archiveErr}
			m := &Manager{Archive: archive}
			if tt.vcs != nil {
				m.VCS = tt.vcs
			}

			res := m.Acquire(context.Background(), Request{
				Dir:            dir,
				Source:         "https://github.com/bmaltais/kohya_ss.git",
				Branch:         "master",
				Update:         tt.update,
				ArchiveAllowed: tt.allowed,
			})
			if res.Kind != tt.wantKind {
				t.Errorf("Acquire() = %v, want kind %v", res, tt.wantKind)
			}
			if archive.calls != tt.wantArchive {
				t.Errorf("archive calls = %d, want %d", archive.calls, tt.wantArchive)
			}
		})
	}
}

func TestAcquire_FallbackReusesPromptedCredentials(t *testing.T) {
	t.Parallel()

	dir := newInstallDir(t)
	vcs := &fakeVCS{cloneErrs: []error{errAuth, errAuth}}
	prompter := &fakePrompter{creds: Credentials{Username: "u", Password: "p"}}
	archive := &fakeArchive{}
	m := &Manager{VCS: vcs, Prompter: prompter, Archive: archive, MaxAttempts: 2}

	res := m.Acquire(context.Background(), Request{Dir: dir, Branch: "master", ArchiveAllowed: true})
	if res.Kind != KindSuccess {
		t.Fatalf("Acquire() = %v, want success", res)
	}
	if archive.creds == nil || archive.creds.Username != "u" {
		t.Errorf("archive credentials = %+v, want prompted ones", archive.creds)
	}
}

func TestAcquire_Cancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	dir := newInstallDir(t)
	archive := &fakeArchive{}
	m := &Manager{VCS: &fakeVCS{cloneErrs: []error{context.Canceled}}, Archive: archive}

	res := m.Acquire(ctx, Request{Dir: dir, Branch: "master", ArchiveAllowed: true})
	if res.OK() {
		t.Fatalf("Acquire() = %v, want failure", res)
	}
	if archive.calls != 0 {
		t.Error("archive fallback must not run after cancellation")
	}
}
