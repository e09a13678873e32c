// SPDX-License-Identifier: MPL-2.0

package platform

import (
	"context"
	"os"
	"runtime"
	"sync"

	"github.com/spf13/afero"
)

// Descriptor is the detected environment. It is computed once and passed by value.
type Descriptor struct {
	OS          OS
	Arch        string
	InContainer bool
	Managed     bool
}

// detectOnce caches the host descriptor for the lifetime of the process.
//
// INVARIANT: describe MUST NOT panic; sync.OnceValue re-panics on every call.
//
//nolint:gochecknoglobals // process-wide cache
var detectOnce = sync.OnceValue(func() Descriptor {
	return describe(context.Background(), afero.NewOsFs(), RunCommand, os.Getenv)
})

// Detect returns the cached host descriptor.
func Detect() Descriptor {
	return detectOnce()
}

// describe gathers and classifies using injected sources.
func describe(ctx context.Context, fsys afero.Fs, run CommandFunc, getenv func(string) string) Descriptor {
	facts := GatherFacts(ctx, fsys, run)
	return Descriptor{
		OS:          Classify(facts),
		Arch:        runtime.GOARCH,
		InContainer: InContainer(fsys),
		Managed:     ManagedCloud(getenv),
	}
}

// IsMacOS reports whether the host is macOS.
func (d Descriptor) IsMacOS() bool { return d.OS.Kind == KindMacOS }

// IsWindows reports whether the host is Windows.
func (d Descriptor) IsWindows() bool { return d.OS.Kind == KindWindows }
