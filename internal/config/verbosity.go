// SPDX-License-Identifier: MPL-2.0

package config

import (
	"log/slog"
	"strconv"
	"strings"
)

const verbosityMarker = 'v'

// Verbosity is the launcher's verbosity level. It implements pflag.Value.
type Verbosity int

// ParseVerbosity accepts a non-negative integer ("2") or a run of 'v'
// characters ("vvv" is 3).
func ParseVerbosity(s string) (Verbosity, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, &InvalidVerbosityError{Value: s}
	}
	if n, err := strconv.Atoi(s); err == nil {
		if n < 0 {
			return 0, &InvalidVerbosityError{Value: s}
		}
		return Verbosity(n), nil
	}
	if strings.Trim(s, string(verbosityMarker)) != "" {
		return 0, &InvalidVerbosityError{Value: s}
	}
	return Verbosity(len(s)), nil
}

// String returns the decimal form.
func (v *Verbosity) String() string { return strconv.Itoa(int(*v)) }

// Set parses s with ParseVerbosity.
func (v *Verbosity) Set(s string) error {
	parsed, err := ParseVerbosity(s)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// Type names the flag value type in help output.
func (v *Verbosity) Type() string { return "level" }

// Level maps verbosity to a log level: 0 error, 1 warn, 2 info, 3+ debug.
func (v Verbosity) Level() slog.Level {
	switch {
	case v <= 0:
		return slog.LevelError
	case v == 1:
		return slog.LevelWarn
	case v == 2:
		return slog.LevelInfo
	default:
		return slog.LevelDebug
	}
}

// NormalizeVerbosityArgs rewrites the short counted form so flag parsing
// sees an explicit value: "-vvv" becomes "--verbosity=3", and a bare "-v"
// not followed by a valid level becomes "--verbosity=1". Values of other
// flags, such as "--password -vv", and arguments after "--" are left
// untouched.
func NormalizeVerbosityArgs(args []string) []string {
	out := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--" {
			out = append(out, args[i:]...)
			break
		}
		if consumesNext(arg) && i+1 < len(args) {
			out = append(out, arg, args[i+1])
			i++
			continue
		}
		if len(arg) < 2 || arg[0] != '-' || arg[1] == '-' || strings.Trim(arg[1:], string(verbosityMarker)) != "" {
			out = append(out, arg)
			continue
		}
		count := len(arg) - 1
		if count == 1 && i+1 < len(args) {
			if _, err := ParseVerbosity(args[i+1]); err == nil {
				out = append(out, arg)
				continue
			}
		}
		out = append(out, "--verbosity="+strconv.Itoa(count))
	}
	return out
}
