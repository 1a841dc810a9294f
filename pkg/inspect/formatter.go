package inspect

import (
	"fmt"
	"strings"

	"github.com/zhinst/zhinst-go/pkg/model"
)

// Formatter formats inspection output.
type Formatter struct {
	// ShowMetadata includes access and label information.
	ShowMetadata bool

	// ShowPaths includes the raw node path of parameters.
	ShowPaths bool

	// IndentWidth is the number of spaces per indent level.
	IndentWidth int
}

// NewFormatter creates a new Formatter with default settings.
func NewFormatter() *Formatter {
	return &Formatter{
		ShowMetadata: true,
		IndentWidth:  2,
	}
}

// Indent returns the content with indentation.
func (f *Formatter) Indent(depth int, content string) string {
	width := f.IndentWidth
	if width == 0 {
		width = 2
	}
	return strings.Repeat(" ", depth*width) + content
}

// FormatValue formats a node value for display.
func (f *Formatter) FormatValue(value any, unit string) string {
	s := formatValue(value)
	if unit != "" && value != nil {
		return s + " " + unit
	}
	return s
}

func formatValue(value any) string {
	switch v := value.(type) {
	case nil:
		return "null"
	case string:
		return fmt.Sprintf("%q", v)
	case float64:
		return fmt.Sprintf("%.6g", v)
	case float32:
		return fmt.Sprintf("%.6g", v)
	case complex128:
		return model.FormatComplex(v)
	case []byte:
		return fmt.Sprintf("0x%x", v)
	case []any:
		return fmt.Sprintf("vector(%d)", len(v))
	case []float64:
		return fmt.Sprintf("vector(%d)", len(v))
	case []complex128:
		return fmt.Sprintf("vector(%d)", len(v))
	default:
		return fmt.Sprintf("%v", v)
	}
}

// FormatAccess formats access flags for display.
func FormatAccess(a model.Access) string {
	switch {
	case a.CanRead() && a.CanWrite():
		return "read-write"
	case a.CanRead():
		return "read-only"
	case a.CanWrite():
		return "write-only"
	default:
		return "none"
	}
}

// FormatTree renders info and its children, one node per line.
func (f *Formatter) FormatTree(info *NodeInfo) string {
	var sb strings.Builder
	f.writeNode(&sb, info, 0)
	return sb.String()
}

func (f *Formatter) writeNode(sb *strings.Builder, info *NodeInfo, depth int) {
	switch info.Kind {
	case model.KindParameter:
		sb.WriteString(f.Indent(depth, f.FormatParameter(info)))
		sb.WriteByte('\n')
		return
	case model.KindList:
		sb.WriteString(f.Indent(depth, fmt.Sprintf("%s[%d]", info.Name, len(info.Children))))
	default:
		sb.WriteString(f.Indent(depth, info.Name+"/"))
	}
	sb.WriteByte('\n')
	for _, child := range info.Children {
		f.writeNode(sb, child, depth+1)
	}
}

// FormatParameter renders one parameter line.
func (f *Formatter) FormatParameter(info *NodeInfo) string {
	var sb strings.Builder
	sb.WriteString(info.Name)
	switch {
	case info.HasValue:
		sb.WriteString(": " + f.FormatValue(info.Value, info.Unit))
	case info.Error != "":
		sb.WriteString(": error: " + info.Error)
	case info.Unit != "":
		sb.WriteString(" [" + info.Unit + "]")
	}
	if f.ShowMetadata {
		sb.WriteString(" (" + FormatAccess(info.Access) + ")")
	}
	if f.ShowPaths && info.Path != "" {
		sb.WriteString(" " + info.Path)
	}
	return sb.String()
}

// FormatNames formats child names as an indented column.
func (f *Formatter) FormatNames(names []string) string {
	if len(names) == 0 {
		return f.Indent(1, "(empty)")
	}
	var sb strings.Builder
	for _, name := range names {
		sb.WriteString(f.Indent(1, name))
		sb.WriteByte('\n')
	}
	return strings.TrimSuffix(sb.String(), "\n")
}
