// SPDX-License-Identifier: MPL-2.0

package platform

import (
	"regexp"

	"github.com/spf13/afero"
)

const (
	cgroupPath      = "/proc/1/cgroup"
	dockerEnvMarker = "/.dockerenv"

	// runpodEnvVar is set inside every runpod pod.
	runpodEnvVar = "RUNPOD_POD_ID"
)

//nolint:gochecknoglobals // compiled once
var cgroupPatterns = []*regexp.Regexp{
	regexp.MustCompile(`:cpuset:/(docker|kubepods)`),
	regexp.MustCompile(`:/docker/`),
	regexp.MustCompile(`:cpuset:/docker/buildkit`),
	regexp.MustCompile(`:/system\.slice/docker-`),
	regexp.MustCompile(`:/system\.slice/containerd-`),
	regexp.MustCompile(`:/system\.slice/rkt-`),
	regexp.MustCompile(`:/system\.slice/run-`),
	regexp.MustCompile(`:/system\.slice/pod-`),
	regexp.MustCompile(`/kubepods`),
}

// InContainer reports whether the process runs in a container, judged by
// the init process's control groups or the Docker marker file.
func InContainer(fsys afero.Fs) bool {
	if data, err := afero.ReadFile(fsys, cgroupPath); err == nil {
		for _, p := range cgroupPatterns {
			if p.Match(data) {
				return true
			}
		}
	}
	ok, _ := afero.Exists(fsys, dockerEnvMarker)
	return ok
}

// ManagedCloud reports whether the process runs on a runpod pod.
func ManagedCloud(getenv func(string) string) bool {
	return getenv(runpodEnvVar) != ""
}
