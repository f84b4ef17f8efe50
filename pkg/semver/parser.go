// Package semver provides service reference parsing and version resolution
// for model wiring. A service reference names an interface a consumer wants,
// optionally constrained to a version range ("more0.telemetry@^1.2.0").
package semver

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

const logPrefix = "semver:parser"

// ServiceRef holds the parsed components of a service reference string.
type ServiceRef struct {
	// Interface is the service interface name (e.g., "more0.telemetry").
	Interface string
	// Range is the version constraint if specified (e.g., "^1.2.0", "1", "");
	// empty string means any version.
	Range string
	// Raw is the input string as given.
	Raw string
}

var (
	interfaceNameRegex = regexp.MustCompile(`^[a-z][a-z0-9-]*(\.[a-zA-Z][a-zA-Z0-9._-]*)+$`)
	roleNameRegex      = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9._-]*$`)
)

// ParseServiceRef parses a service reference string.
//
// Supported formats:
//   - more0.telemetry            (any version)
//   - more0.telemetry@1          (major only)
//   - more0.telemetry@1.2.1      (exact version)
//   - more0.telemetry@^1.2.0     (caret range)
//   - more0.telemetry@~1.2.0     (tilde range)
//   - more0.telemetry@>=1.0.0    (comparison range)
func ParseServiceRef(input string) (*ServiceRef, error) {
	raw := strings.TrimSpace(input)

	// Split on @ to separate interface from version constraint
	atIndex := strings.Index(raw, "@")

	var iface string
	var rangeStr string

	if atIndex == -1 {
		iface = raw
	} else {
		iface = raw[:atIndex]
		rangeStr = raw[atIndex+1:]
		if rangeStr == "" {
			return nil, fmt.Errorf("%s - empty version range: %s", logPrefix, raw)
		}
	}

	if !ValidateInterfaceName(iface) {
		return nil, fmt.Errorf("%s - invalid interface name: %s", logPrefix, raw)
	}

	return &ServiceRef{
		Interface: iface,
		Range:     rangeStr,
		Raw:       raw,
	}, nil
}

// MajorOnly interprets a constraint that is a bare major number ("1"),
// meaning "any version within this major". The second result is false for
// every other constraint shape.
func MajorOnly(rangeStr string) (int, bool) {
	if rangeStr == "" {
		return 0, false
	}
	for _, r := range rangeStr {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	major, err := strconv.Atoi(rangeStr)
	if err != nil {
		return 0, false
	}
	return major, true
}

// BuildServiceRef builds a reference string from an interface name and an
// optional range.
func BuildServiceRef(iface, rangeStr string) string {
	if rangeStr != "" {
		return iface + "@" + rangeStr
	}
	return iface
}

// ValidateInterfaceName validates a service interface name: a lowercase
// namespace followed by one or more dotted segments ("more0.telemetry").
func ValidateInterfaceName(iface string) bool {
	return interfaceNameRegex.MatchString(iface)
}

// ValidateRoleName validates a role name (letters, digits, dots, hyphens,
// underscores).
func ValidateRoleName(role string) bool {
	return roleNameRegex.MatchString(role)
}
