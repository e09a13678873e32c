// SPDX-License-Identifier: MPL-2.0

package provision

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"

	"github.com/kohyalaunch/kohyalaunch/internal/runtime"
	"github.com/kohyalaunch/kohyalaunch/pkg/platform"
)

func TestAccelerateTarget(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		kind platform.Kind
		env  map[string]string
		want string
	}{
		{
			name: "hf home wins",
			kind: platform.KindLinux,
			env:  map[string]string{"HF_HOME": "/hf", "XDG_CACHE_HOME": "/xdg", "HOME": "/home/u"},
			want: filepath.Join("/hf", "accelerate", "default_config.yaml"),
		},
		{
			name: "xdg cache",
			kind: platform.KindLinux,
			env:  map[string]string{"XDG_CACHE_HOME": "/xdg", "HOME": "/home/u"},
			want: filepath.Join("/xdg", "huggingface", "accelerate", "default_config.yaml"),
		},
		{
			name: "home cache",
			kind: platform.KindMacOS,
			env:  map[string]string{"HOME": "/Users/u"},
			want: filepath.Join("/Users/u", ".cache", "huggingface", "accelerate", "default_config.yaml"),
		},
		{
			name: "windows local app data",
			kind: platform.KindWindows,
			env:  map[string]string{"LOCALAPPDATA": "/appdata", "USERPROFILE": "/profile", "XDG_CACHE_HOME": "/xdg"},
			want: filepath.Join("/appdata", "huggingface", "accelerate", "default_config.yaml"),
		},
		{
			name: "windows profile",
			kind: platform.KindWindows,
			env:  map[string]string{"USERPROFILE": "/profile"},
			want: filepath.Join("/profile", ".cache", "huggingface", "accelerate", "default_config.yaml"),
		},
		{
			name: "nothing set",
			kind: platform.KindLinux,
			env:  map[string]string{},
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := AccelerateTarget(tt.kind, func(k string) string { return tt.env[k] })
			if got != tt.want {
				t.Errorf("AccelerateTarget() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestConfigure_CopiesBundledConfig(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		kind platform.Kind
		arch string
		want string
	}{
		{name: "linux", kind: platform.KindLinux, arch: platform.ArchAMD64, want: "default"},
		{name: "apple silicon", kind: platform.KindMacOS, arch: platform.ArchARM64, want: "macos"},
		{name: "intel mac", kind: platform.KindMacOS, arch: platform.ArchAMD64, want: "default"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			fsys, dir := memInstall(t, map[string]string{
				"config_files/accelerate/default_config.yaml": "default",
				"config_files/accelerate/macos_config.yaml":   "macos",
			})
			ex := &recordingExecutor{}
			a := &AccelerateConfigurer{Fs: fsys, Exec: ex, Getenv: func(k string) string {
				if k == "HOME" {
					return "/home/u"
				}
				return ""
			}}

			req := AccelerateRequest{InstallDir: dir, Venv: runtime.Venv{Root: filepath.Join(dir, "venv")}, OS: tt.kind, Arch: tt.arch}
			if err := a.Configure(context.Background(), req); err != nil {
				t.Fatalf("Configure() error = %v", err)
			}
			got, err := afero.ReadFile(fsys, "/home/u/.cache/huggingface/accelerate/default_config.yaml")
			if err != nil {
				t.Fatalf("configuration not placed: %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("placed config = %q, want %q", got, tt.want)
			}
			if len(ex.calls) != 0 {
				t.Errorf("unexpected commands %q", ex.calls)
			}
		})
	}
}

func TestConfigure_KeepsExistingConfig(t *testing.T) {
	t.Parallel()

	fsys, dir := memInstall(t, map[string]string{"config_files/accelerate/default_config.yaml": "bundled"})
	target := "/hf/accelerate/default_config.yaml"
	if err := afero.WriteFile(fsys, target, []byte("mine"), 0o644); err != nil {
		t.Fatal(err)
	}
	a := &AccelerateConfigurer{Fs: fsys, Exec: &recordingExecutor{}, Getenv: func(k string) string {
		if k == "HF_HOME" {
			return "/hf"
		}
		return ""
	}}

	if err := a.Configure(context.Background(), AccelerateRequest{InstallDir: dir, OS: platform.KindLinux}); err != nil {
		t.Fatal(err)
	}
	got, _ := afero.ReadFile(fsys, target)
	if string(got) != "mine" {
		t.Errorf("existing configuration overwritten with %q", got)
	}
}

func TestConfigure_Interactive(t *testing.T) {
	t.Parallel()

	fsys, dir := memInstall(t, map[string]string{"venv/bin/accelerate": "#!/bin/sh\n"})
	ex := &recordingExecutor{}
	a := &AccelerateConfigurer{Fs: fsys, Exec: ex, Getenv: func(string) string { return "" }}
	req := AccelerateRequest{InstallDir: dir, Venv: runtime.Venv{Root: filepath.Join(dir, "venv")}, OS: platform.KindLinux, Interactive: true}

	if err := a.Configure(context.Background(), req); err != nil {
		t.Fatalf("Configure() error = %v", err)
	}
	if n := ex.count(filepath.Join(dir, "venv", "bin", "accelerate") + " config"); n != 1 {
		t.Errorf("accelerate config runs = %d, want 1", n)
	}
}

func TestConfigure_InteractiveWithoutAccelerate(t *testing.T) {
	t.Parallel()

	fsys, dir := memInstall(t, nil)
	a := &AccelerateConfigurer{Fs: fsys, Exec: &recordingExecutor{}, Getenv: func(string) string { return "" }}
	req := AccelerateRequest{InstallDir: dir, Venv: runtime.Venv{Root: filepath.Join(dir, "venv")}, Interactive: true}

	if err := a.Configure(context.Background(), req); !errors.Is(err, ErrAccelerateMissing) {
		t.Errorf("Configure() error = %v, want ErrAccelerateMissing", err)
	}
}
