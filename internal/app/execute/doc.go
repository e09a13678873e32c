// SPDX-License-Identifier: MPL-2.0

// Package execute builds the run Context and drives the installer pipeline:
// prepare the installation directory, acquire the application, provision
// and repair its runtime, then launch it.
//
// Stages are injected so the CLI wires real implementations and tests wire
// fakes:
//
//	c := execute.NewContext(opts, platform.Detect())
//	err := execute.Run(ctx, c, stages)
package execute
