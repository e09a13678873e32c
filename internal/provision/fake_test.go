// SPDX-License-Identifier: MPL-2.0

package provision

import (
	"context"
	"strings"
	"sync"

	"github.com/hashicorp/go-version"

	"github.com/kohyalaunch/kohyalaunch/internal/runtime"
)

// recordingExecutor records every command and fails those whose command
// line contains one of failOn.
type recordingExecutor struct {
	mu     sync.Mutex
	calls  []string
	failOn []string
}

func (r *recordingExecutor) Run(ctx context.Context, c runtime.Command) *runtime.Result {
	return r.Capture(ctx, c)
}

func (r *recordingExecutor) Capture(_ context.Context, c runtime.Command) *runtime.Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	line := c.String()
	r.calls = append(r.calls, line)
	for _, f := range r.failOn {
		if strings.Contains(line, f) {
			return &runtime.Result{ExitCode: 1, ErrOutput: "ERROR: No matching distribution found"}
		}
	}
	return &runtime.Result{}
}

func (r *recordingExecutor) count(substr string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.calls {
		if strings.Contains(c, substr) {
			n++
		}
	}
	return n
}

func testInterpreter() runtime.Interpreter {
	return runtime.Interpreter{Path: "/usr/bin/python3.10", Version: version.Must(version.NewVersion("3.10.12"))}
}
