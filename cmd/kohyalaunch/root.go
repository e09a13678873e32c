// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"

	"github.com/kohyalaunch/kohyalaunch/internal/config"
	"github.com/kohyalaunch/kohyalaunch/pkg/types"
)

//nolint:gochecknoglobals // set via -ldflags
var (
	// Version is the semantic version (set via -ldflags).
	Version = "dev"
	// Commit is the git commit hash (set via -ldflags).
	Commit = "unknown"
	// BuildDate is the build timestamp (set via -ldflags).
	BuildDate = "unknown"
)

// newRootCommand builds the launcher command. run is the action; tests
// substitute it.
func newRootCommand(run func(cmd *cobra.Command, args []string) error) *cobra.Command {
	root := &cobra.Command{
		Use:   "kohyalaunch",
		Short: "Install, update and launch the kohya_ss GUI",
		Long: TitleStyle.Render("kohyalaunch") + SubtitleStyle.Render(" - install, update and launch the kohya_ss GUI") + `

kohyalaunch fetches the kohya_ss application, provisions an isolated Python
runtime with the accelerator packages for this machine, repairs common
environment problems and starts the GUI.

Options are read from install_config.yml next to the launcher, in the user
config directory and in the home directory; flags override them.

` + SubtitleStyle.Render("Examples:") + `
  kohyalaunch                      Set up if needed and start the GUI
  kohyalaunch -u                   Update the application and its packages
  kohyalaunch -r -vvv              Reinstall accelerator packages, verbosely
  kohyalaunch -s -d ~/kohya_ss     Install into ~/kohya_ss without launching
  kohyalaunch -n --listen 0.0.0.0  Launch an existing installation`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          run,
	}
	config.RegisterFlags(root.Flags())
	return root
}

// getVersionString returns a formatted version string for display.
func getVersionString() string {
	if Version == "dev" {
		return "dev (built from source)"
	}
	return fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, BuildDate)
}

// Execute runs the launcher with the process arguments and exits with the
// resulting code.
func Execute() {
	os.Exit(int(run(context.Background(), os.Args[1:])))
}

// run executes the launcher with args and returns the process exit code.
func run(ctx context.Context, args []string) int {
	root := newRootCommand(runLauncher)
	root.SetArgs(config.NormalizeVerbosityArgs(args))

	err := fang.Execute(
		ctx,
		root,
		fang.WithVersion(getVersionString()),
		fang.WithNotifySignal(os.Interrupt),
	)
	return int(exitCode(err))
}

// exitCode maps the command's error to a process exit status. Codes outside
// the portable range collapse to ExitFailure.
func exitCode(err error) types.ExitCode {
	if err == nil {
		return types.ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		if exitErr.Code.Validate() != nil {
			return types.ExitFailure
		}
		return exitErr.Code
	}
	return types.ExitFailure
}
