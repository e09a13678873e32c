// SPDX-License-Identifier: MPL-2.0

package runtime

import (
	"context"
	"errors"
	"os/exec"
	"path/filepath"
	goruntime "runtime"
	"strings"
	"testing"

	"github.com/hashicorp/go-version"
)

func lookPathFrom(paths map[string]string) func(string) (string, error) {
	return func(name string) (string, error) {
		name = strings.TrimSuffix(name, ".exe")
		if p, ok := paths[name]; ok {
			return p, nil
		}
		return "", exec.ErrNotFound
	}
}

func TestFindInterpreter(t *testing.T) {
	t.Parallel()

	ex := &scriptedExecutor{outputs: map[string]*Result{
		"/usr/bin/python3": {Output: "Python 3.8.10\n"},
		"/usr/bin/python":  {Output: "Python 3.11.4\n"},
	}}
	lookPath := lookPathFrom(map[string]string{
		"python3": "/usr/bin/python3",
		"python":  "/usr/bin/python",
	})

	interp, err := FindInterpreter(context.Background(), ex, lookPath)
	if err != nil {
		t.Fatalf("FindInterpreter() error = %v", err)
	}
	if interp.Path != "/usr/bin/python" {
		t.Errorf("Path = %q, want /usr/bin/python (python3 is too old)", interp.Path)
	}
	if interp.MajorMinor() != "3.11" {
		t.Errorf("MajorMinor() = %q, want 3.11", interp.MajorMinor())
	}
}

func TestFindInterpreter_NoneSuitable(t *testing.T) {
	t.Parallel()

	ex := &scriptedExecutor{outputs: map[string]*Result{
		"/usr/bin/python": {ErrOutput: "Python 2.7.18\n"},
	}}
	_, err := FindInterpreter(context.Background(), ex, lookPathFrom(map[string]string{"python": "/usr/bin/python"}))
	if !errors.Is(err, ErrInterpreterNotFound) {
		t.Errorf("FindInterpreter() error = %v, want ErrInterpreterNotFound", err)
	}
}

func TestInterpreter_Commands(t *testing.T) {
	t.Parallel()

	i := Interpreter{Path: "/venv/bin/python"}
	if got := i.Module("pip", "install", "-U", "pip").String(); got != "/venv/bin/python -m pip install -U pip" {
		t.Errorf("Module() = %q", got)
	}
	if got := i.Script("kohya_gui.py", "--listen", "127.0.0.1").String(); got != "/venv/bin/python kohya_gui.py --listen 127.0.0.1" {
		t.Errorf("Script() = %q", got)
	}
}

func TestVenv_Paths(t *testing.T) {
	t.Parallel()

	posix := NewVenv("/opt/kohya_ss", false)
	if posix.Python() != "/opt/kohya_ss/venv/bin/python" {
		t.Errorf("Python() = %q", posix.Python())
	}
	if got := posix.SitePackages("3.10"); got != "/opt/kohya_ss/venv/lib/python3.10/site-packages" {
		t.Errorf("SitePackages() = %q", got)
	}

	if goruntime.GOOS != "windows" {
		win := NewVenv("/opt/kohya_ss", true)
		if win.Python() != "/opt/kohya_ss/venv/Scripts/python.exe" {
			t.Errorf("Windows Python() = %q", win.Python())
		}
		if win.SitePackages("3.10") != "/opt/kohya_ss/venv/Lib/site-packages" {
			t.Errorf("Windows SitePackages() = %q", win.SitePackages("3.10"))
		}
	}
}

func TestVenv_Create(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	v := NewVenv(dir, false)
	ex := &scriptedExecutor{outputs: map[string]*Result{"/usr/bin/python3": {}}}
	if err := v.Create(context.Background(), ex, Interpreter{Path: "/usr/bin/python3"}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if len(ex.calls) != 1 || !strings.HasSuffix(ex.calls[0], "-m venv "+v.Root) {
		t.Errorf("calls = %v, want one venv creation", ex.calls)
	}
}

func TestInterpreterSitePackages(t *testing.T) {
	t.Parallel()

	py := Interpreter{Path: filepath.Join("/usr", "bin", "python3"), Version: version.Must(version.NewVersion("3.10.4"))}
	if got, want := py.SitePackages(false), filepath.Join("/usr", "lib", "python3.10", "site-packages"); got != want {
		t.Errorf("SitePackages(false) = %q, want %q", got, want)
	}
	if got, want := py.SitePackages(true), filepath.Join("/usr", "bin", "Lib", "site-packages"); got != want {
		t.Errorf("SitePackages(true) = %q, want %q", got, want)
	}
}
