// Package inspect provides tree inspection and parameter access utilities.
//
// The inspect package offers a unified interface for:
//   - Parsing path expressions ("sigouts[0].on", "dev8000/sigouts/0/on")
//   - Walking a parameter tree for display
//   - Reading and writing parameters by expression
//   - Formatting output for display
package inspect

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Path errors.
var (
	ErrEmptyPath     = errors.New("empty path")
	ErrInvalidPath   = errors.New("invalid path format")
	ErrInvalidNumber = errors.New("invalid index in path")
)

// Path is a parsed inspection path.
type Path struct {
	// Device is the serial or module name, empty when the path is relative.
	Device string

	// Segments are the lower-cased names and indices below the device.
	Segments []string

	// Raw stores the original input string.
	Raw string
}

// ParsePath parses a path expression.
//
// Supported formats:
//   - "sigouts/0/on" - relative node path
//   - "sigouts[0].on" - attribute expression
//   - "dev8000/sigouts/0/on", "/DEV8000/SIGOUTS/0/ON" - with device
//   - "" after a device, or "dev8000" alone - the device root
//
// The first segment is taken as the device when it looks like a serial, or
// when the input is absolute.
func ParsePath(input string) (*Path, error) {
	raw := input
	input = strings.ToLower(strings.TrimSpace(input))
	if input == "" {
		return nil, ErrEmptyPath
	}
	absolute := strings.HasPrefix(input, "/")
	input = strings.Trim(input, "/")
	if input == "" {
		return &Path{Raw: raw}, nil
	}
	if strings.Contains(input, "//") {
		return nil, ErrInvalidPath
	}

	segs, err := splitExpression(input)
	if err != nil {
		return nil, err
	}

	p := &Path{Raw: raw}
	if absolute || IsSerial(segs[0]) {
		p.Device = segs[0]
		segs = segs[1:]
	}
	if len(segs) > 0 {
		p.Segments = segs
	}
	return p, nil
}

// splitExpression splits "a[0].b/c" into a, 0, b, c.
func splitExpression(s string) ([]string, error) {
	var out []string
	for _, part := range strings.FieldsFunc(s, func(r rune) bool { return r == '/' || r == '.' }) {
		for part != "" {
			open := strings.IndexByte(part, '[')
			if open < 0 {
				if strings.ContainsRune(part, ']') {
					return nil, fmt.Errorf("%w: %q", ErrInvalidPath, s)
				}
				out = append(out, part)
				break
			}
			if open > 0 {
				out = append(out, part[:open])
			}
			end := strings.IndexByte(part[open:], ']')
			if end < 0 {
				return nil, fmt.Errorf("%w: unclosed [ in %q", ErrInvalidPath, s)
			}
			idx := part[open+1 : open+end]
			if _, err := strconv.ParseUint(idx, 10, 32); err != nil {
				return nil, fmt.Errorf("%w: %q", ErrInvalidNumber, idx)
			}
			out = append(out, idx)
			part = part[open+end+1:]
		}
	}
	if len(out) == 0 {
		return nil, ErrInvalidPath
	}
	return out, nil
}

// IsPartial reports whether the path names the device root only.
func (p *Path) IsPartial() bool { return len(p.Segments) == 0 }

// Relative returns the device-relative node path ("sigouts/0/on").
func (p *Path) Relative() string { return strings.Join(p.Segments, "/") }

// NodePath returns the absolute node path. The path's own device wins over
// serial.
func (p *Path) NodePath(serial string) string {
	dev := p.Device
	if dev == "" {
		dev = strings.ToLower(serial)
	}
	rel := p.Relative()
	switch {
	case dev == "":
		return "/" + rel
	case rel == "":
		return "/" + dev
	default:
		return "/" + dev + "/" + rel
	}
}

// String returns the path as an attribute expression ("sigouts[0].on").
func (p *Path) String() string {
	return Expression(p.Segments)
}
