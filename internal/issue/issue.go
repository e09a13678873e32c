// SPDX-License-Identifier: MPL-2.0

package issue

import (
	"strings"

	"github.com/charmbracelet/glamour"
)

// Issue identifiers for failure modes that have dedicated guidance.
const (
	PythonNotFoundID ID = iota + 1
	UncommittedChangesID
	AcquisitionFailedID
	LowDiskSpaceID
	RuntimeMissingID
	EntryPointMissingID
	ConflictingOptionsID
)

type (
	// ID identifies a catalogued issue.
	ID int

	// MarkdownMsg is Markdown text rendered for the terminal.
	MarkdownMsg string

	// HTTPLink is an external reference shown under the guidance.
	HTTPLink string

	// Issue is guidance for one failure mode.
	Issue struct {
		id    ID
		mdMsg MarkdownMsg
		links []HTTPLink
	}
)

//nolint:gochecknoglobals // test seam for the Markdown renderer
var render = glamour.Render

//nolint:gochecknoglobals // read-only catalog
var issues = map[ID]*Issue{
	PythonNotFoundID: {
		id: PythonNotFoundID,
		mdMsg: `# Python 3.10 or newer is required

None of ` + "`python3.10`, `python310`, `python3` or `python`" + ` on your PATH reports
version 3.10 or later.

- Install Python 3.10 from your package manager or python.org.
- Make sure the interpreter directory is on ` + "`PATH`" + ` and re-run the launcher.`,
		links: []HTTPLink{"https://www.python.org/downloads/"},
	},
	UncommittedChangesID: {
		id: UncommittedChangesID,
		mdMsg: `# Local changes block the update

The installation directory has uncommitted changes. The update was stopped so
nothing is overwritten.

- Commit or stash your changes, then run again with ` + "`--update`" + `.
- Or run without ` + "`--update`" + ` to keep the current checkout.`,
	},
	AcquisitionFailedID: {
		id: AcquisitionFailedID,
		mdMsg: `# The application source could not be acquired

Neither the version-control path nor the release archive fallback produced a
usable checkout.

- Check your network connection and credentials.
- The archive fallback only serves the default repository and branch.
- Re-run with ` + "`-vvv`" + ` for detailed logs.`,
	},
	LowDiskSpaceID: {
		id: LowDiskSpaceID,
		mdMsg: `# Low disk space

The installation needs roughly 10 GB. Free some space or pass
` + "`--skip-space-check`" + ` to silence this warning.`,
	},
	RuntimeMissingID: {
		id: RuntimeMissingID,
		mdMsg: `# The isolated Python runtime is missing

` + "`venv`" + ` was not found in the installation directory.

- Run the launcher without ` + "`--no-setup`" + ` to create it.`,
	},
	EntryPointMissingID: {
		id: EntryPointMissingID,
		mdMsg: `# kohya_gui.py was not found

The installation directory does not contain the GUI entry point.

- Check ` + "`--dir`" + `, or run with ` + "`--update`" + ` to fetch the application.`,
	},
	ConflictingOptionsID: {
		id: ConflictingOptionsID,
		mdMsg: `# Conflicting options

` + "`--setup-only`" + ` and ` + "`--no-setup`" + ` cannot be combined. Pick one.`,
	},
}

// MarkdownMsg returns the raw guidance text.
func (i *Issue) MarkdownMsg() MarkdownMsg {
	return i.mdMsg
}

// Render renders the guidance with the given glamour style ("dark", "light", "notty", ...).
func (i *Issue) Render(style string) (string, error) {
	var md strings.Builder
	md.WriteString(string(i.mdMsg))
	if len(i.links) > 0 {
		md.WriteString("\n\n## See also\n")
		for _, link := range i.links {
			md.WriteString("\n- " + string(link))
		}
	}
	return render(md.String(), style)
}

// Get returns the catalogued issue for id, or nil.
func Get(id ID) *Issue {
	return issues[id]
}
