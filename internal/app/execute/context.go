// SPDX-License-Identifier: MPL-2.0

package execute

import (
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/kohyalaunch/kohyalaunch/internal/config"
	"github.com/kohyalaunch/kohyalaunch/internal/runtime"
	"github.com/kohyalaunch/kohyalaunch/pkg/platform"
)

// Context is the state shared by every stage of one run.
type Context struct {
	Options config.Options
	Host    platform.Descriptor
	Venv    runtime.Venv
	// Interpreter is the system Python; zero until resolved.
	Interpreter runtime.Interpreter
	// Env holds KEY=VALUE entries added to the GUI's environment.
	Env []string
}

// NewContext returns the Context for opts on host.
func NewContext(opts config.Options, host platform.Descriptor) *Context {
	return &Context{
		Options: opts,
		Host:    host,
		Venv:    runtime.NewVenv(opts.Dir.String(), host.IsWindows()),
	}
}

// InstallDir returns the installation directory.
func (c *Context) InstallDir() string { return c.Options.Dir.String() }

// Managed reports whether the run targets the managed GPU cloud, either
// by option or because the host was detected as a pod.
func (c *Context) Managed() bool { return c.Options.Runpod || c.Host.Managed }

// KeptEntries names directories directly under the installation directory
// that acquisition must leave in place. The log directory qualifies when it
// lives inside the installation directory.
func (c *Context) KeptEntries() []string {
	rel, err := filepath.Rel(c.InstallDir(), c.Options.LogDir.String())
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return nil
	}
	first, _, _ := strings.Cut(filepath.ToSlash(rel), "/")
	return []string{first}
}

// UsesSystemPython reports whether packages go into the system interpreter
// instead of the isolated runtime.
func (c *Context) UsesSystemPython() bool { return c.Host.InContainer }

// SitePackages returns the package directory the run installs into.
func (c *Context) SitePackages() string {
	if c.UsesSystemPython() {
		return c.Interpreter.SitePackages(c.Host.IsWindows())
	}
	return c.Venv.SitePackages(c.Interpreter.MajorMinor())
}

// SetEnv records key=value for the GUI, replacing an earlier value.
func (c *Context) SetEnv(key, value string) {
	prefix := key + "="
	c.Env = slices.DeleteFunc(c.Env, func(e string) bool { return strings.HasPrefix(e, prefix) })
	c.Env = append(c.Env, prefix+value)
}

// LookupEnv returns a value recorded with SetEnv.
func (c *Context) LookupEnv(key string) (string, bool) {
	prefix := key + "="
	for _, e := range c.Env {
		if v, ok := strings.CutPrefix(e, prefix); ok {
			return v, true
		}
	}
	return "", false
}

// Summary describes the run as Markdown.
func (c *Context) Summary() string {
	var b strings.Builder
	b.WriteString("# Installation complete\n\n")
	fmt.Fprintf(&b, "- **Directory:** `%s`\n", c.InstallDir())
	fmt.Fprintf(&b, "- **Source:** `%s` (%s)\n", c.Options.GitRepo, c.Options.Branch)
	fmt.Fprintf(&b, "- **Host:** %s %s\n", c.Host.OS, c.Host.Arch)
	if c.UsesSystemPython() {
		fmt.Fprintf(&b, "- **Python:** `%s` (container)\n", c.Interpreter.Path)
	} else {
		fmt.Fprintf(&b, "- **Runtime:** `%s`\n", c.Venv.Root)
	}
	fmt.Fprintf(&b, "- **Logs:** `%s`\n", c.Options.LogDir)
	b.WriteString("\nStart the GUI by running the launcher again without `--setup-only`.\n")
	return b.String()
}
