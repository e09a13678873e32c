// SPDX-License-Identifier: MPL-2.0

package provision

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/kohyalaunch/kohyalaunch/internal/runtime"
	"github.com/kohyalaunch/kohyalaunch/pkg/platform"
)

const (
	accelerateConfigName = "default_config.yaml"
	macOSConfigName      = "macos_config.yaml"
)

// ErrAccelerateMissing is returned when `accelerate config` must run but
// the runtime has no accelerate executable.
var ErrAccelerateMissing = errors.New("accelerate command not found in the runtime")

type (
	// AccelerateRequest describes where the configuration comes from and
	// which runtime provides the accelerate command.
	AccelerateRequest struct {
		InstallDir  string
		Venv        runtime.Venv
		OS          platform.Kind
		Arch        string
		Interactive bool
	}

	// AccelerateConfigurer places the accelerate configuration.
	AccelerateConfigurer struct {
		Fs     afero.Fs
		Exec   runtime.Executor
		Getenv func(string) string
	}
)

// Configure runs `accelerate config` when interactive. Otherwise it copies
// the bundled configuration to the user's huggingface cache unless a
// configuration is already there; when no target can be resolved it falls
// back to the interactive command.
func (a *AccelerateConfigurer) Configure(ctx context.Context, req AccelerateRequest) error {
	if req.Interactive {
		return a.runConfig(ctx, req)
	}

	target := AccelerateTarget(req.OS, a.getenv)
	if target == "" {
		slog.Info("could not place the accelerate configuration file; starting interactive configuration")
		return a.runConfig(ctx, req)
	}
	if exists, _ := afero.Exists(a.Fs, target); exists {
		slog.Debug("accelerate configuration already present", "path", target)
		return nil
	}

	src := filepath.Join(req.InstallDir, "config_files", "accelerate", accelerateSource(req.OS, req.Arch))
	if err := CopyFile(a.Fs, src, target); err != nil {
		return fmt.Errorf("place accelerate configuration: %w", err)
	}
	slog.Debug("accelerate configuration copied", "from", src, "to", target)
	return nil
}

func (a *AccelerateConfigurer) runConfig(ctx context.Context, req AccelerateRequest) error {
	name := "accelerate"
	if req.Venv.Windows {
		name += ".exe"
	}
	bin := filepath.Join(req.Venv.BinDir(), name)
	if exists, _ := afero.Exists(a.Fs, bin); !exists {
		return ErrAccelerateMissing
	}
	if err := a.Exec.Run(ctx, runtime.Command{Name: bin, Args: []string{"config"}}).Err(); err != nil {
		return fmt.Errorf("accelerate config: %w", err)
	}
	return nil
}

func (a *AccelerateConfigurer) getenv(key string) string {
	if a.Getenv != nil {
		return a.Getenv(key)
	}
	return os.Getenv(key)
}

// AccelerateTarget returns where the accelerate configuration belongs, or ""
// when none of the locating variables is set.
func AccelerateTarget(kind platform.Kind, getenv func(string) string) string {
	if hf := getenv("HF_HOME"); hf != "" {
		return filepath.Join(hf, "accelerate", accelerateConfigName)
	}
	if kind == platform.KindWindows {
		if local := getenv("LOCALAPPDATA"); local != "" {
			return filepath.Join(local, "huggingface", "accelerate", accelerateConfigName)
		}
		if profile := getenv("USERPROFILE"); profile != "" {
			return filepath.Join(profile, ".cache", "huggingface", "accelerate", accelerateConfigName)
		}
		return ""
	}
	if cache := getenv("XDG_CACHE_HOME"); cache != "" {
		return filepath.Join(cache, "huggingface", "accelerate", accelerateConfigName)
	}
	if home := getenv("HOME"); home != "" {
		return filepath.Join(home, ".cache", "huggingface", "accelerate", accelerateConfigName)
	}
	return ""
}

func accelerateSource(kind platform.Kind, arch string) string {
	if kind == platform.KindMacOS && arch == platform.ArchARM64 {
		return macOSConfigName
	}
	return accelerateConfigName
}
