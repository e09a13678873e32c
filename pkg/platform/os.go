// SPDX-License-Identifier: MPL-2.0

package platform

// OS name constants for runtime.GOOS comparisons.
const (
	Windows = "windows"
	Darwin  = "darwin"
	Linux   = "linux"
	FreeBSD = "freebsd"
)

// Architecture names as reported by runtime.GOARCH.
const (
	ArchAMD64 = "amd64"
	ArchARM64 = "arm64"
)

// OS families.
const (
	KindUnknown Kind = iota
	KindWindows
	KindMacOS
	KindLinux
	KindFreeBSD
)

type (
	// Kind is the operating system family.
	Kind int

	// OS is the classified operating system. Name is the distribution or
	// product name, Family the distribution lineage (ID_LIKE on Linux).
	OS struct {
		Kind    Kind
		Name    string
		Family  string
		Version string
	}
)

// String returns the family name.
func (k Kind) String() string {
	switch k {
	case KindWindows:
		return "Windows"
	case KindMacOS:
		return "macOS"
	case KindLinux:
		return "Linux"
	case KindFreeBSD:
		return "FreeBSD"
	default:
		return "Unknown"
	}
}

// String renders "Name Version" with the family as fallback name.
func (o OS) String() string {
	name := o.Name
	if name == "" {
		name = o.Kind.String()
	}
	if o.Version == "" {
		return name
	}
	return name + " " + o.Version
}
