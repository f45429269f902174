// Package network validates the container network settings an operator
// configures for the sandbox. Values are checked, never rewritten: the engine
// receives exactly what was configured.
package network

import (
	"fmt"
	"net"
	"regexp"
	"strings"
)

// Well-known engine network modes.
const (
	ModeNone    = "none"
	ModeBridge  = "bridge"
	ModeHost    = "host"
	ModeDefault = "default"
)

const containerModePrefix = "container:"

var networkName = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_.-]*$`)

// IsIsolated reports whether mode gives the container no network at all.
func IsIsolated(mode string) bool {
	return mode == ModeNone
}

// SharesHost reports whether mode joins the host network namespace.
func SharesHost(mode string) bool {
	return mode == ModeHost
}

// ValidateMode checks a --network value. Empty means "engine default" and is
// accepted. Besides the built-in modes it accepts "container:<name>" and
// user-defined network names.
func ValidateMode(mode string) error {
	switch mode {
	case "", ModeNone, ModeBridge, ModeHost, ModeDefault:
		return nil
	}

	if strings.HasPrefix(mode, containerModePrefix) {
		target := strings.TrimPrefix(mode, containerModePrefix)
		if !networkName.MatchString(target) {
			return fmt.Errorf("invalid network mode %q: bad container reference", mode)
		}
		return nil
	}

	if !networkName.MatchString(mode) {
		return fmt.Errorf("invalid network mode %q", mode)
	}
	return nil
}

// ValidateDNS checks a --dns entry, which must be an IP address.
func ValidateDNS(entry string) error {
	if net.ParseIP(strings.TrimSpace(entry)) == nil {
		return fmt.Errorf("invalid dns server %q: not an IP address", entry)
	}
	return nil
}

// ValidateExtraHost checks a --add-host entry of the form "name:ip".
// IPv6 addresses contain colons, so the split is on the first colon.
func ValidateExtraHost(entry string) error {
	name, ip, ok := strings.Cut(entry, ":")
	if !ok || name == "" {
		return fmt.Errorf("invalid extra host %q: want name:ip", entry)
	}
	if ip != "host-gateway" && net.ParseIP(ip) == nil {
		return fmt.Errorf("invalid extra host %q: bad address %q", entry, ip)
	}
	return nil
}
