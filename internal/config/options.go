// SPDX-License-Identifier: MPL-2.0

package config

import (
	"strings"

	"github.com/spf13/pflag"
)

// Project defaults.
const (
	DefaultBranch  = "master"
	DefaultGitRepo = "https://github.com/bmaltais/kohya_ss.git"
	DefaultListen  = "127.0.0.1"

	// ScriptDirPlaceholder in a path option is replaced by the launcher's directory.
	ScriptDirPlaceholder = "_CURRENT_SCRIPT_DIR_"
)

// Option kinds.
const (
	kindString optionKind = iota
	kindBool
	kindInt
	kindPath
	kindVerbosity
)

type (
	optionKind int

	// option declares one recognized setting.
	option struct {
		name      string
		shorthand string
		kind      optionKind
		def       any
		usage     string
	}
)

// options is the table of recognized settings, shared by flag registration,
// Viper defaults and config document filtering.
//
//nolint:gochecknoglobals // read-only table
var options = []option{
	{"branch", "b", kindString, DefaultBranch, "branch or tag to check out"},
	{"dir", "d", kindPath, "", "installation directory (default: launcher directory, /workspace/kohya_ss on runpod, or ~/kohya_ss)"},
	{"file", "f", kindPath, "", "install configuration file, overrides discovered files"},
	{"git-repo", "g", kindString, DefaultGitRepo, "repository to clone or update"},
	{"interactive", "i", kindBool, false, "prompt for choices such as the accelerator variant"},
	{"log-dir", "", kindPath, "", "log directory (default: <dir>/logs)"},
	{"no-git", "", kindBool, false, "skip version control and use release archives only"},
	{"no-setup", "n", kindBool, false, "skip setup and launch the GUI directly"},
	{"public", "p", kindBool, false, "expose a public URL in runpod mode"},
	{"repair", "r", kindBool, false, "force-reinstall accelerator packages"},
	{"runpod", "", kindBool, false, "force runpod mode, in case detection fails"},
	{"setup-only", "s", kindBool, false, "set up the installation without launching the GUI"},
	{"skip-space-check", "", kindBool, false, "skip the free disk space check"},
	{"update", "u", kindBool, false, "update the installation to the latest revision"},
	{"verbosity", "v", kindVerbosity, 0, "verbosity: an integer or a run of v's (-vvv)"},
	{"listen", "", kindString, DefaultListen, "address the GUI listens on"},
	{"username", "", kindString, "", "GUI username"},
	{"password", "", kindString, "", "GUI password"},
	{"server-port", "", kindInt, 0, "GUI server port (0 lets the GUI choose)"},
	{"inbrowser", "", kindBool, false, "open the GUI in a browser"},
	{"share", "", kindBool, false, "create a public share link"},
}

// RegisterFlags defines every recognized option on fs.
func RegisterFlags(fs *pflag.FlagSet) {
	for _, o := range options {
		switch o.kind {
		case kindBool:
			fs.BoolP(o.name, o.shorthand, o.def.(bool), o.usage)
		case kindInt:
			fs.IntP(o.name, o.shorthand, o.def.(int), o.usage)
		case kindVerbosity:
			v := Verbosity(o.def.(int))
			fs.VarP(&v, o.name, o.shorthand, o.usage)
		case kindString, kindPath:
			fs.StringP(o.name, o.shorthand, o.def.(string), o.usage)
		}
	}
}

// lookupOption returns the option declaration for name.
func lookupOption(name string) (option, bool) {
	for _, o := range options {
		if o.name == name {
			return o, true
		}
	}
	return option{}, false
}

func lookupShorthand(short byte) (option, bool) {
	for _, o := range options {
		if len(o.shorthand) == 1 && o.shorthand[0] == short {
			return o, true
		}
	}
	return option{}, false
}

// takesValue reports whether the option consumes a separate argument when
// given without "=". Verbosity is excluded since its value is optional.
func (o option) takesValue() bool {
	return o.kind == kindString || o.kind == kindPath || o.kind == kindInt
}

// consumesNext reports whether arg is a flag that takes the following
// argument as its value, such as "--password" or "-d".
func consumesNext(arg string) bool {
	if name, ok := strings.CutPrefix(arg, "--"); ok {
		if name == "" || strings.Contains(name, "=") {
			return false
		}
		o, ok := lookupOption(name)
		return ok && o.takesValue()
	}
	if len(arg) < 2 || arg[0] != '-' {
		return false
	}
	// In a shorthand cluster only the last flag can take a value, and only
	// when nothing follows it.
	o, ok := lookupShorthand(arg[len(arg)-1])
	return ok && o.takesValue()
}
