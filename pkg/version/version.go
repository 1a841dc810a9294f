// Package version parses LabOne versions and checks client/server
// compatibility.
package version

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Current is the LabOne release this library is built against.
const Current = "24.10"

// ErrMismatch is returned when client and server releases differ.
var ErrMismatch = errors.New("LabOne version mismatch")

// Version is a parsed "major.minor[.build]" LabOne version.
type Version struct {
	Major uint16
	Minor uint16
	Build uint32
}

// Parse parses "24.10" or "24.10.65001".
func Parse(s string) (Version, error) {
	parts := strings.Split(strings.TrimSpace(s), ".")
	if len(parts) < 2 || len(parts) > 3 {
		return Version{}, fmt.Errorf("invalid version %q: expected major.minor[.build]", s)
	}

	major, err := strconv.ParseUint(parts[0], 10, 16)
	if err != nil {
		return Version{}, fmt.Errorf("invalid version %q: bad major component", s)
	}
	minor, err := strconv.ParseUint(parts[1], 10, 16)
	if err != nil {
		return Version{}, fmt.Errorf("invalid version %q: bad minor component", s)
	}
	v := Version{Major: uint16(major), Minor: uint16(minor)}
	if len(parts) == 3 {
		build, err := strconv.ParseUint(parts[2], 10, 32)
		if err != nil {
			return Version{}, fmt.Errorf("invalid version %q: bad build component", s)
		}
		v.Build = uint32(build)
	}
	return v, nil
}

// MustParse is Parse for constants.
func MustParse(s string) Version {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}

// String returns "major.minor", with ".build" when known.
func (v Version) String() string {
	if v.Build != 0 {
		return fmt.Sprintf("%d.%02d.%d", v.Major, v.Minor, v.Build)
	}
	return fmt.Sprintf("%d.%02d", v.Major, v.Minor)
}

// Compatible returns true if both versions belong to the same release.
// Build numbers are ignored.
func (v Version) Compatible(other Version) bool {
	return v.Major == other.Major && v.Minor == other.Minor
}

// Less orders versions.
func (v Version) Less(other Version) bool {
	if v.Major != other.Major {
		return v.Major < other.Major
	}
	if v.Minor != other.Minor {
		return v.Minor < other.Minor
	}
	return v.Build < other.Build
}

// Check compares the server version against the client version. A
// different release is ErrMismatch unless allowMismatch is set.
func Check(client, server string, allowMismatch bool) error {
	c, err := Parse(client)
	if err != nil {
		return err
	}
	s, err := Parse(server)
	if err != nil {
		return err
	}
	if !c.Compatible(s) && !allowMismatch {
		return fmt.Errorf("%w: client %s, data server %s", ErrMismatch, c, s)
	}
	return nil
}
