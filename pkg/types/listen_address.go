// SPDX-License-Identifier: MPL-2.0

package types

import (
	"errors"
	"fmt"
	"net"
	"regexp"
	"strings"
)

// ErrInvalidListenAddress is the sentinel error wrapped by InvalidListenAddressError.
var ErrInvalidListenAddress = errors.New("invalid listen address")

// hostnamePattern accepts RFC 1123 host names.
var hostnamePattern = regexp.MustCompile(`^[A-Za-z0-9]([A-Za-z0-9-]{0,61}[A-Za-z0-9])?(\.[A-Za-z0-9]([A-Za-z0-9-]{0,61}[A-Za-z0-9])?)*$`)

type (
	// ListenAddress is the interface the GUI server binds to: an IP literal or a host name.
	ListenAddress string

	// InvalidListenAddressError is returned when a ListenAddress is neither
	// an IP literal nor a host name.
	InvalidListenAddressError struct {
		Value ListenAddress
	}
)

// AllInterfaces binds every IPv4 interface.
const AllInterfaces ListenAddress = "0.0.0.0"

// String returns the string representation of the ListenAddress.
func (a ListenAddress) String() string { return string(a) }

// Validate returns an error if the address is empty or malformed.
func (a ListenAddress) Validate() error {
	s := strings.TrimSpace(string(a))
	if s == "" {
		return &InvalidListenAddressError{Value: a}
	}
	if net.ParseIP(s) != nil || hostnamePattern.MatchString(s) {
		return nil
	}
	return &InvalidListenAddressError{Value: a}
}

// Error implements the error interface for InvalidListenAddressError.
func (e *InvalidListenAddressError) Error() string {
	return fmt.Sprintf("invalid listen address %q: must be an IP address or host name", e.Value)
}

// Unwrap returns ErrInvalidListenAddress for errors.Is() compatibility.
func (e *InvalidListenAddressError) Unwrap() error { return ErrInvalidListenAddress }
