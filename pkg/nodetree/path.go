package nodetree

import (
	"strconv"
	"strings"
)

// literalNames end in a digit but are not indexed siblings.
var literalNames = map[string]bool{
	"tamp0": true,
	"tamp1": true,
}

// Segment is one element of a normalized path: a name or an index.
type Segment struct {
	Name    string
	Index   int
	IsIndex bool
}

// Name returns a name segment.
func Name(s string) Segment { return Segment{Name: s} }

// Index returns an index segment.
func Index(i int) Segment { return Segment{Index: i, IsIndex: true} }

// String returns the segment as it appears in a node path.
func (s Segment) String() string {
	if s.IsIndex {
		return strconv.Itoa(s.Index)
	}
	return s.Name
}

// Path is a normalized node path.
type Path []Segment

// String joins the segments with "/" (no leading slash).
func (p Path) String() string {
	parts := make([]string, len(p))
	for i, s := range p {
		parts[i] = s.String()
	}
	return strings.Join(parts, "/")
}

// Equal reports whether both paths have the same segments.
func (p Path) Equal(o Path) bool {
	if len(p) != len(o) {
		return false
	}
	for i := range p {
		if p[i] != o[i] {
			return false
		}
	}
	return true
}

// Split splits a raw path into lower-cased segments, dropping empty ones.
func Split(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, "/") {
		if part == "" {
			continue
		}
		out = append(out, strings.ToLower(part))
	}
	return out
}

// Normalize turns a raw slash-delimited path into a Path.
func Normalize(raw string) Path {
	var p Path
	for _, part := range Split(raw) {
		p = append(p, normalizeSegment(part)...)
	}
	return p
}

// NormalizeLiteral is Normalize without splitting trailing digits off
// names. Only all-decimal segments become indices.
func NormalizeLiteral(raw string) Path {
	var p Path
	for _, part := range Split(raw) {
		if n, err := strconv.Atoi(part); err == nil && isDecimal(part) {
			p = append(p, Index(n))
			continue
		}
		p = append(p, Name(part))
	}
	return p
}

func normalizeSegment(s string) []Segment {
	if isDecimal(s) {
		n, err := strconv.Atoi(s)
		if err == nil {
			return []Segment{Index(n)}
		}
		return []Segment{Name(s)}
	}
	if literalNames[s] {
		return []Segment{Name(s)}
	}
	cut := len(s)
	for cut > 0 && s[cut-1] >= '0' && s[cut-1] <= '9' {
		cut--
	}
	if cut == len(s) {
		return []Segment{Name(s)}
	}
	n, err := strconv.Atoi(s[cut:])
	if err != nil {
		return []Segment{Name(s)}
	}
	return []Segment{Name(s[:cut]), Index(n)}
}

func isDecimal(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// StripPrefix removes a leading "/{prefix}" (case-insensitive) from raw and
// returns the lower-cased remainder without a leading slash.
func StripPrefix(raw, prefix string) string {
	p := strings.ToLower(strings.TrimPrefix(raw, "/"))
	if prefix == "" {
		return p
	}
	prefix = strings.ToLower(strings.Trim(prefix, "/"))
	if p == prefix {
		return ""
	}
	if strings.HasPrefix(p, prefix+"/") {
		return p[len(prefix)+1:]
	}
	return p
}

// Join builds an absolute node path from a prefix and a relative path.
func Join(prefix, rel string) string {
	prefix = strings.Trim(strings.ToLower(prefix), "/")
	rel = strings.Trim(strings.ToLower(rel), "/")
	switch {
	case prefix == "":
		return "/" + rel
	case rel == "":
		return "/" + prefix
	default:
		return "/" + prefix + "/" + rel
	}
}
