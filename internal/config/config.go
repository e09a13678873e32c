// SPDX-License-Identifier: MPL-2.0

package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"

	"github.com/kohyalaunch/kohyalaunch/internal/issue"
	"github.com/kohyalaunch/kohyalaunch/pkg/platform"
	"github.com/kohyalaunch/kohyalaunch/pkg/types"

	"github.com/adrg/xdg"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/afero"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"mvdan.cc/sh/v3/shell"
)

const (
	// guiEntryPoint marks a directory as a GUI checkout.
	guiEntryPoint = "kohya_gui.py"
	// runpodInstallDir is the conventional install location on runpod.
	runpodInstallDir = "/workspace/kohya_ss"
)

// Resolver merges defaults, configuration documents and flags into Options.
// Fields are seams for tests; NewResolver fills them from the host.
type Resolver struct {
	Fs         afero.Fs
	ExeDir     string
	Home       string
	ConfigHome string
	Getenv     func(string) string
}

// NewResolver returns a Resolver bound to the real filesystem and environment.
func NewResolver() (*Resolver, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("locate launcher executable: %w", err)
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get home directory: %w", err)
	}
	return &Resolver{
		Fs:         afero.NewOsFs(),
		ExeDir:     filepath.Dir(exe),
		Home:       home,
		ConfigHome: xdg.ConfigHome,
		Getenv:     os.Getenv,
	}, nil
}

// Resolve produces the effective Options. Only flags that were explicitly
// set override configuration documents.
func (r *Resolver) Resolve(flags *pflag.FlagSet) (Options, error) {
	v := viper.New()
	for _, o := range options {
		v.SetDefault(o.name, o.def)
	}

	docs, found, err := discover(r.Fs, SearchPaths(r.ExeDir, r.Home, r.ConfigHome))
	if err != nil {
		return Options{}, issue.NewErrorContext().
			WithOperation("load install configuration").
			WithSuggestion("Fix the reported entry in the configuration file; each argument needs a name").
			Wrap(err).
			BuildError()
	}

	explicit, err := flags.GetString("file")
	if err != nil {
		return Options{}, err
	}
	if explicit != "" {
		path, expandErr := r.expandPath(explicit)
		if expandErr != nil {
			return Options{}, expandErr
		}
		doc, loadErr := LoadFile(r.Fs, path)
		if loadErr != nil {
			return Options{}, issue.NewErrorContext().
				WithOperation("load install configuration").
				WithResource(path).
				WithSuggestion("Verify the file path passed to --file").
				Wrap(loadErr).
				BuildError()
		}
		docs = append(docs, doc)
		found = append(found, path)
	}

	for i, doc := range docs {
		slog.Debug("merging install configuration", "path", found[i])
		if err := v.MergeConfigMap(doc.Values()); err != nil {
			return Options{}, fmt.Errorf("merge %s: %w", found[i], err)
		}
	}

	if err := v.BindPFlags(flags); err != nil {
		return Options{}, fmt.Errorf("bind flags: %w", err)
	}

	var opts Options
	if err := v.Unmarshal(&opts, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		verbosityHook,
		mapstructure.StringToTimeDurationHookFunc(),
	))); err != nil {
		return Options{}, issue.NewErrorContext().
			WithOperation("parse options").
			Wrap(err).
			BuildError()
	}

	if err := r.finalize(&opts); err != nil {
		return Options{}, err
	}
	return opts, nil
}

// finalize normalizes paths, applies derived defaults and validates.
func (r *Resolver) finalize(opts *Options) error {
	if opts.SetupOnly && opts.NoSetup {
		return issue.NewErrorContext().
			WithOperation("resolve options").
			WithSuggestion("Use either --setup-only or --no-setup, not both").
			Wrap(fmt.Errorf("%w: --setup-only and --no-setup", ErrConflictingOptions)).
			BuildError()
	}

	if !opts.Runpod && platform.ManagedCloud(r.Getenv) {
		opts.Runpod = true
	}

	for _, p := range []*types.FilesystemPath{&opts.Dir, &opts.File, &opts.LogDir} {
		if !p.IsSet() {
			continue
		}
		expanded, err := r.expandPath(p.String())
		if err != nil {
			return err
		}
		*p = types.FilesystemPath(expanded)
	}

	if !opts.Dir.IsSet() {
		opts.Dir = types.FilesystemPath(DefaultInstallDir(r.Fs, opts.Runpod, r.ExeDir, r.Home))
	}
	if !opts.LogDir.IsSet() {
		opts.LogDir = opts.Dir.Join("logs")
	}

	if opts.Public && opts.Runpod {
		opts.Listen = types.AllInterfaces
		opts.Share = true
	}

	var errs []error
	for _, p := range []types.FilesystemPath{opts.Dir, opts.LogDir} {
		errs = append(errs, p.Validate())
	}
	errs = append(errs, opts.Listen.Validate(), opts.ServerPort.Validate())
	if err := errors.Join(errs...); err != nil {
		return issue.NewErrorContext().
			WithOperation("validate options").
			Wrap(err).
			BuildError()
	}
	return nil
}

// expandPath replaces the script-dir placeholder, expands a leading tilde
// and $VAR references, and returns an absolute clean path.
func (r *Resolver) expandPath(p string) (string, error) {
	p = strings.ReplaceAll(p, ScriptDirPlaceholder, r.ExeDir)
	if p == "~" || strings.HasPrefix(p, "~/") || strings.HasPrefix(p, `~\`) {
		p = filepath.Join(r.Home, p[1:])
	}
	if strings.Contains(p, "$") {
		expanded, err := shell.Expand(p, r.Getenv)
		if err != nil {
			return "", fmt.Errorf("expand path %q: %w", p, err)
		}
		p = expanded
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", fmt.Errorf("resolve path %q: %w", p, err)
	}
	return abs, nil
}

// DefaultInstallDir picks the installation directory when none is configured:
// the runpod workspace, the launcher's own directory when it already holds a
// GUI checkout, or ~/kohya_ss.
func DefaultInstallDir(fsys afero.Fs, runpod bool, exeDir, home string) string {
	if runpod {
		return runpodInstallDir
	}
	if exeDir != "" {
		if ok, _ := afero.Exists(fsys, filepath.Join(exeDir, guiEntryPoint)); ok {
			return exeDir
		}
	}
	return filepath.Join(home, "kohya_ss")
}

// verbosityHook decodes integers and "vvv" strings into Verbosity.
func verbosityHook(from, to reflect.Type, data any) (any, error) {
	if to != reflect.TypeFor[Verbosity]() {
		return data, nil
	}
	switch from.Kind() {
	case reflect.String:
		return ParseVerbosity(data.(string))
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return ParseVerbosity(strconv.FormatInt(reflect.ValueOf(data).Int(), 10))
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return ParseVerbosity(strconv.FormatUint(reflect.ValueOf(data).Uint(), 10))
	default:
		return data, nil
	}
}
