// SPDX-License-Identifier: MPL-2.0

package provision

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/spf13/afero"
	"mvdan.cc/sh/v3/shell"

	"github.com/kohyalaunch/kohyalaunch/pkg/platform"
)

const (
	// RequirementsFile is the application's base dependency list.
	RequirementsFile = "requirements.txt"
	// MacOSRequirementsFile supplements the base list on macOS.
	MacOSRequirementsFile = "requirements_macos.txt"
	// ManagedCloudPackage is added when running on the managed GPU cloud.
	ManagedCloudPackage = "tensorrt"

	localPackageToken = "."
)

// localPackageMarker identifies the comment announcing the application's own
// package; its "." token is replaced with the installation directory.
var localPackageMarker = regexp.MustCompile(`#.*kohya_ss.*library`)

type (
	// Requirement is one manifest line, tokenized into pip arguments.
	Requirement struct {
		Line string
		Args []string
	}

	// Manifest is the ordered list of requirement lines for one install.
	Manifest struct {
		Requirements []Requirement
	}

	// ManifestInput is everything that shapes the manifest.
	ManifestInput struct {
		Fs         afero.Fs
		InstallDir string
		OS         platform.Kind
		Arch       string
		Managed    bool
		Repair     bool
		Update     bool
		// TorchInstalled reports whether torch is already in the runtime.
		TorchInstalled bool
		Accelerator    Accelerator
	}
)

// Len returns the number of requirement lines.
func (m Manifest) Len() int { return len(m.Requirements) }

// Lines returns the manifest as requirement-file lines.
func (m Manifest) Lines() []string {
	out := make([]string, len(m.Requirements))
	for i, r := range m.Requirements {
		out[i] = r.Line
	}
	return out
}

func (m *Manifest) add(line string) error {
	line = stripComment(line)
	if line == "" {
		return nil
	}
	args, err := requirementArgs(line)
	if err != nil {
		return err
	}
	if len(args) == 0 {
		return nil
	}
	m.Requirements = append(m.Requirements, Requirement{Line: line, Args: args})
	return nil
}

// stripComment drops a comment that starts the line or follows whitespace.
// A '#' inside a word, as in a URL fragment "x.whl#sha256=...", is kept.
func stripComment(line string) string {
	line = strings.TrimSpace(line)
	for i := 0; i < len(line); i++ {
		if line[i] == '#' && (i == 0 || line[i-1] == ' ' || line[i-1] == '\t') {
			return strings.TrimSpace(line[:i])
		}
	}
	return line
}

// requirementArgs splits lines carrying pip options into words; a plain
// specifier, environment markers included, stays a single argument.
func requirementArgs(line string) ([]string, error) {
	if !strings.HasPrefix(line, "-") && !strings.Contains(line, " -") {
		return []string{line}, nil
	}
	args, err := shell.Fields(line, func(string) string { return "" })
	if err != nil {
		return nil, fmt.Errorf("tokenize requirement %q: %w", line, err)
	}
	return args, nil
}

// BuildManifest assembles the requirement lines for in: the base file, the
// managed-cloud package, accelerator pins on repair (or on Windows when torch
// is missing or an update was requested) and the macOS supplement.
func BuildManifest(in ManifestInput) (Manifest, error) {
	var m Manifest

	if err := appendBase(&m, in); err != nil {
		return Manifest{}, err
	}
	if in.Managed {
		if err := m.add(ManagedCloudPackage); err != nil {
			return Manifest{}, err
		}
	}

	needTorch := in.Repair || (in.OS == platform.KindWindows && (!in.TorchInstalled || in.Update))
	if needTorch {
		for _, line := range acceleratorLines(in) {
			if err := m.add(line); err != nil {
				return Manifest{}, err
			}
		}
	}

	if in.OS == platform.KindMacOS {
		path := filepath.Join(in.InstallDir, MacOSRequirementsFile)
		lines, err := readRequirementLines(in.Fs, path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return Manifest{}, err
		default:
			for _, line := range lines {
				if err := m.add(line); err != nil {
					return Manifest{}, err
				}
			}
		}
	}

	slog.Debug("dependency manifest built", "lines", m.Len(), "repair", in.Repair, "accelerator", in.Accelerator)
	return m, nil
}

func appendBase(m *Manifest, in ManifestInput) error {
	f, err := in.Fs.Open(filepath.Join(in.InstallDir, RequirementsFile))
	if err != nil {
		return fmt.Errorf("open %s: %w", RequirementsFile, err)
	}
	defer func() { _ = f.Close() }() // read-only

	armed := false
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "#") {
			if localPackageMarker.MatchString(line) {
				armed = true
			}
			continue
		}
		if localPackageMarker.MatchString(line) {
			// The marker trails the requirement it annotates.
			line = strings.TrimSpace(line[:strings.Index(line, "#")])
			armed = true
		}
		if armed {
			line = replaceLocalToken(line, in.InstallDir)
			armed = false
		}
		if err := m.add(line); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read %s: %w", RequirementsFile, err)
	}
	return nil
}

func replaceLocalToken(line, dir string) string {
	fields := strings.Fields(line)
	for i, f := range fields {
		if f == localPackageToken {
			fields[i] = shellQuote(dir)
		}
	}
	return strings.Join(fields, " ")
}

func shellQuote(s string) string {
	if !strings.ContainsAny(s, " \t'\"\\$") {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func acceleratorLines(in ManifestInput) []string {
	if in.OS == platform.KindMacOS {
		switch in.Arch {
		case platform.ArchARM64:
			return []string{
				"tensorflow-macos==" + tensorflowMacOSVersion,
				"tensorflow-metal==" + tensorflowMetalVersion,
			}
		case platform.ArchAMD64:
			return []string{"tensorflow==" + tensorflowVersion}
		default:
			return nil
		}
	}

	p := in.Accelerator.pins()
	lines := []string{fmt.Sprintf("torch==%s torchvision==%s --extra-index-url %s", p.torch, p.torchvision, p.indexURL)}
	if in.Accelerator == AcceleratorExperimental {
		if in.OS == platform.KindWindows {
			lines = append(lines, tritonWindowsWheel)
		}
		lines = append(lines, "xformers=="+xformersVersion)
	}
	return lines
}

func readRequirementLines(fsys afero.Fs, path string) ([]string, error) {
	data, err := afero.ReadFile(fsys, path)
	if err != nil {
		return nil, err
	}
	var lines []string
	for _, raw := range strings.Split(string(data), "\n") {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	return lines, nil
}
