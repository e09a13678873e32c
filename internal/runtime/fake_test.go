// SPDX-License-Identifier: MPL-2.0

package runtime

import (
	"context"
	"strings"
)

// scriptedExecutor answers Capture calls from a table keyed by command name.
type scriptedExecutor struct {
	outputs map[string]*Result
	calls   []string
}

func (s *scriptedExecutor) Run(ctx context.Context, c Command) *Result {
	return s.Capture(ctx, c)
}

func (s *scriptedExecutor) Capture(_ context.Context, c Command) *Result {
	s.calls = append(s.calls, c.String())
	if r, ok := s.outputs[c.Name]; ok {
		return r
	}
	return &Result{ExitCode: 127, ErrOutput: "not found: " + strings.Join(c.Args, " ")}
}
