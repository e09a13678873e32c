// SPDX-License-Identifier: MPL-2.0

package platform

import (
	"bufio"
	"regexp"
	"strings"
)

const genericLinux = "Generic Linux"

type (
	// Facts is the raw host data classification works from. Empty fields
	// mean the source was unavailable.
	Facts struct {
		GOOS   string
		GOARCH string
		// OSRelease is the content of /etc/os-release.
		OSRelease string
		// RedHatRelease is the content of /etc/redhat-release.
		RedHatRelease string
		// SystemVersionPlist is the content of macOS SystemVersion.plist.
		SystemVersionPlist string
		// Uname is the output of `uname -a`.
		Uname string
		// UnameRelease is the output of `uname -r`.
		UnameRelease string
		// WindowsVersion is the kernel version reported by the platform API.
		WindowsVersion string
	}

	unameMatch struct {
		pattern *regexp.Regexp
		name    string
	}
)

//nolint:gochecknoglobals // compiled once
var (
	plistVersionPattern  = regexp.MustCompile(`<key>ProductVersion</key>\s*<string>([\d.]+)</string>`)
	plistAnyVersion      = regexp.MustCompile(`<string>([\d.]+)</string>`)
	redHatReleasePattern = regexp.MustCompile(`^(.+?) release ([^ ]+)`)
	unameDistributions   = []unameMatch{
		{regexp.MustCompile(`(?i)ubuntu`), "Ubuntu"},
		{regexp.MustCompile(`(?i)debian`), "Debian"},
		{regexp.MustCompile(`(?i)red ?hat|centos`), "RedHat"},
		{regexp.MustCompile(`(?i)fedora`), "Fedora"},
		{regexp.MustCompile(`(?i)suse`), "SUSE"},
		{regexp.MustCompile(`(?i)\barch(linux)?\b|-arch\d`), "Arch"},
	}
)

// Classify derives the operating system from facts. It performs no I/O.
func Classify(f Facts) OS {
	switch f.GOOS {
	case Windows:
		return OS{Kind: KindWindows, Name: "Windows", Version: f.WindowsVersion}
	case Darwin:
		return OS{Kind: KindMacOS, Name: "macOS", Version: plistVersion(f.SystemVersionPlist)}
	case FreeBSD:
		return OS{Kind: KindFreeBSD, Name: "FreeBSD", Version: strings.TrimSpace(f.UnameRelease)}
	case Linux:
		return classifyLinux(f)
	default:
		return OS{Kind: KindUnknown, Name: f.GOOS}
	}
}

func classifyLinux(f Facts) OS {
	if fields := parseOSRelease(f.OSRelease); fields["ID"] != "" {
		version := fields["VERSION"]
		if version == "" {
			version = fields["VERSION_ID"]
		}
		family := fields["ID_LIKE"]
		if family == "" {
			family = fields["ID"]
		}
		name := fields["NAME"]
		if name == "" {
			name = fields["ID"]
		}
		return OS{Kind: KindLinux, Name: name, Family: family, Version: version}
	}

	if m := redHatReleasePattern.FindStringSubmatch(strings.TrimSpace(f.RedHatRelease)); m != nil {
		return OS{Kind: KindLinux, Name: m[1], Family: "RedHat", Version: m[2]}
	}

	for _, d := range unameDistributions {
		if d.pattern.MatchString(f.Uname) {
			return OS{Kind: KindLinux, Name: d.name, Family: d.name, Version: strings.TrimSpace(f.UnameRelease)}
		}
	}
	return OS{Kind: KindLinux, Name: genericLinux, Family: genericLinux, Version: strings.TrimSpace(f.UnameRelease)}
}

// parseOSRelease parses KEY=value lines, unquoting values.
func parseOSRelease(content string) map[string]string {
	fields := make(map[string]string)
	scanner := bufio.NewScanner(strings.NewReader(content))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		fields[key] = strings.Trim(value, `"'`)
	}
	return fields
}

func plistVersion(content string) string {
	if m := plistVersionPattern.FindStringSubmatch(content); m != nil {
		return m[1]
	}
	if m := plistAnyVersion.FindStringSubmatch(content); m != nil {
		return m[1]
	}
	return ""
}
