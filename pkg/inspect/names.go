package inspect

import (
	"regexp"
	"strconv"
	"strings"
)

var serialPattern = regexp.MustCompile(`^dev[0-9]+$`)

// IsSerial reports whether s looks like a device serial ("dev8000").
func IsSerial(s string) bool {
	return serialPattern.MatchString(strings.ToLower(s))
}

// Expression renders segments as an attribute expression: indices become
// "[i]" and names are joined with dots.
func Expression(segments []string) string {
	var sb strings.Builder
	for _, seg := range segments {
		if _, err := strconv.Atoi(seg); err == nil {
			sb.WriteString("[" + seg + "]")
			continue
		}
		if sb.Len() > 0 {
			sb.WriteByte('.')
		}
		sb.WriteString(seg)
	}
	return sb.String()
}
