// SPDX-License-Identifier: MPL-2.0

package acquire

import (
	"path/filepath"
	"testing"

	"github.com/kohyalaunch/kohyalaunch/internal/testutil"
)

func TestInspect(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		setup func(t *testing.T, dir string)
		keep  []string
		want  State
	}{
		{
			name:  "absent",
			setup: func(t *testing.T, dir string) { t.Helper(); testutil.MustRemoveAll(t, dir) },
			want:  StateAbsent,
		},
		{
			name:  "empty",
			setup: func(*testing.T, string) {},
			want:  StateEmpty,
		},
		{
			name:  "runtime only",
			setup: func(t *testing.T, dir string) { t.Helper(); testutil.MustMkdirAll(t, filepath.Join(dir, CacheDirName)) },
			want:  StateCacheOnly,
		},
		{
			name:  "version controlled",
			setup: func(t *testing.T, dir string) { t.Helper(); testutil.MustMkdirAll(t, filepath.Join(dir, ".git")) },
			want:  StateVCS,
		},
		{
			name: "version controlled with runtime",
			setup: func(t *testing.T, dir string) {
				t.Helper()
				testutil.MustMkdirAll(t, filepath.Join(dir, ".git"))
				testutil.MustMkdirAll(t, filepath.Join(dir, CacheDirName))
			},
			want: StateVCS,
		},
		{
			name: "runtime plus file",
			setup: func(t *testing.T, dir string) {
				t.Helper()
				testutil.MustMkdirAll(t, filepath.Join(dir, CacheDirName))
				testutil.MustWriteFile(t, filepath.Join(dir, "notes.txt"), "x")
			},
			want: StatePopulated,
		},
		{
			name:  "file named like the runtime",
			setup: func(t *testing.T, dir string) { t.Helper(); testutil.MustWriteFile(t, filepath.Join(dir, CacheDirName), "x") },
			want:  StatePopulated,
		},
		{
			name: "runtime and kept log directory",
			setup: func(t *testing.T, dir string) {
				t.Helper()
				testutil.MustMkdirAll(t, filepath.Join(dir, CacheDirName, "bin"))
				testutil.MustWriteFile(t, filepath.Join(dir, "logs", "kohyalaunch.log"), "started\n")
			},
			keep: []string{"logs"},
			want: StateCacheOnly,
		},
		{
			name:  "kept log directory alone",
			setup: func(t *testing.T, dir string) { t.Helper(); testutil.MustMkdirAll(t, filepath.Join(dir, "logs")) },
			keep:  []string{"logs"},
			want:  StateCacheOnly,
		},
		{
			name:  "log directory not kept",
			setup: func(t *testing.T, dir string) { t.Helper(); testutil.MustMkdirAll(t, filepath.Join(dir, "logs")) },
			want:  StatePopulated,
		},
		{
			name:  "kept name as a file",
			setup: func(t *testing.T, dir string) { t.Helper(); testutil.MustWriteFile(t, filepath.Join(dir, "logs"), "x") },
			keep:  []string{"logs"},
			want:  StatePopulated,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			dir := filepath.Join(t.TempDir(), "kohya_ss")
			testutil.MustMkdirAll(t, dir)
			tt.setup(t, dir)

			got, err := Inspect(dir, tt.keep...)
			if err != nil {
				t.Fatalf("Inspect() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Inspect() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestStateFresh(t *testing.T) {
	t.Parallel()

	fresh := map[State]bool{
		StateAbsent:    true,
		StateEmpty:     true,
		StateCacheOnly: true,
		StateVCS:       false,
		StatePopulated: false,
	}
	for s, want := range fresh {
		if got := s.Fresh(); got != want {
			t.Errorf("%v.Fresh() = %v, want %v", s, got, want)
		}
	}
}
