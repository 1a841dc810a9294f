package main

import (
	"fmt"
	"go/token"
	"slices"
	"sort"
	"strings"
	"text/template"

	"github.com/zhinst/zhinst-go/pkg/nodetree"
)

// Options controls Generate.
type Options struct {
	// Source names the nodes file in the generated header.
	Source string

	// Device is the device type, e.g. "MFLI".
	Device string

	// Prefix is stripped from node paths. Empty detects the common first
	// segment.
	Prefix string

	// Package defaults to the lower-cased device type.
	Package string

	// Type defaults to "Accessors".
	Type string
}

// accessor is one generated method.
type accessor struct {
	Name    string
	Pattern string
	Doc     []string
	Params  []string
	Args    []string

	// Example is the first node path with this shape.
	Example nodetree.Path
}

// ParamList renders the method parameters.
func (a *accessor) ParamList() string {
	if len(a.Params) == 0 {
		return ""
	}
	return strings.Join(a.Params, ", ") + " int"
}

type fileData struct {
	Source    string
	Device    string
	Package   string
	Type      string
	Accessors []*accessor
}

var fileTmpl = template.Must(template.New("file").Parse(`// Code generated by zi-accessorgen from {{.Source}}. DO NOT EDIT.

package {{.Package}}

import (
	"strconv"

	"github.com/zhinst/zhinst-go/pkg/model"
)

// Device is the device type the accessors were generated for.
const Device = {{printf "%q" .Device}}

// {{.Type}} resolves {{.Device}} parameters by name.
type {{.Type}} struct {
	root model.Node
}

// New{{.Type}} wraps the parameter tree of a connected {{.Device}}.
func New{{.Type}}(root model.Node) *{{.Type}} {
	return &{{.Type}}{root: root}
}

// Root returns the wrapped tree.
func (a *{{.Type}}) Root() model.Node { return a.root }
{{range .Accessors}}
// {{.Name}} returns {{.Pattern}}.
{{- range .Doc}}
//{{if .}} {{.}}{{end}}
{{- end}}
func (a *{{$.Type}}) {{.Name}}({{.ParamList}}) (*model.Parameter, error) {
	return model.FindParameter(a.root{{range .Args}}, {{.}}{{end}})
}
{{end}}`))

// Generate renders the accessor file for nodes.
func Generate(nodes map[string]nodetree.Descriptor, opts Options) (string, error) {
	if len(nodes) == 0 {
		return "", fmt.Errorf("no nodes")
	}
	if opts.Prefix == "" {
		opts.Prefix = detectPrefix(nodes)
	}
	if opts.Package == "" {
		opts.Package = packageName(opts.Device)
	}
	if opts.Type == "" {
		opts.Type = "Accessors"
	}
	if !token.IsIdentifier(opts.Type) || !token.IsExported(opts.Type) {
		return "", fmt.Errorf("invalid type name %q", opts.Type)
	}

	tree, errs := nodetree.Dictify(nodes, opts.Prefix)
	for _, e := range errs {
		fmt.Printf("  skipped %s: %v\n", e.Path, e.Err)
	}

	data := fileData{
		Source:    opts.Source,
		Device:    opts.Device,
		Package:   opts.Package,
		Type:      opts.Type,
		Accessors: collect(tree),
	}
	var sb strings.Builder
	if err := fileTmpl.Execute(&sb, data); err != nil {
		return "", fmt.Errorf("template: %w", err)
	}
	return sb.String(), nil
}

// detectPrefix returns the first segment shared by every node path, or ""
// when the paths have no common device segment.
func detectPrefix(nodes map[string]nodetree.Descriptor) string {
	prefix := ""
	for raw := range nodes {
		segs := nodetree.Split(raw)
		if len(segs) < 2 {
			return ""
		}
		if prefix == "" {
			prefix = segs[0]
		} else if segs[0] != prefix {
			return ""
		}
	}
	return prefix
}

// collect returns one accessor per parameter shape, sorted by pattern.
// Paths that differ only in their indices share a shape.
func collect(tree *nodetree.Tree) []*accessor {
	byPattern := make(map[string]*accessor)
	tree.Walk(func(path nodetree.Path, d *nodetree.Descriptor) {
		pattern := shape(path)
		if _, ok := byPattern[pattern]; ok {
			return
		}
		byPattern[pattern] = newAccessor(slices.Clone(path), pattern, d)
	})

	patterns := make([]string, 0, len(byPattern))
	for p := range byPattern {
		patterns = append(patterns, p)
	}
	sort.Strings(patterns)

	out := make([]*accessor, 0, len(patterns))
	// Root is taken by the generated type.
	used := map[string]int{"Root": 1}
	for _, p := range patterns {
		a := byPattern[p]
		used[a.Name]++
		if n := used[a.Name]; n > 1 {
			a.Name = fmt.Sprintf("%s%d", a.Name, n)
		}
		out = append(out, a)
	}
	return out
}

// shape renders path with "n" for every index: "/sigouts/n/enables/n".
func shape(path nodetree.Path) string {
	var sb strings.Builder
	for _, seg := range path {
		sb.WriteByte('/')
		if seg.IsIndex {
			sb.WriteByte('n')
		} else {
			sb.WriteString(seg.Name)
		}
	}
	return sb.String()
}

func newAccessor(path nodetree.Path, pattern string, d *nodetree.Descriptor) *accessor {
	a := &accessor{Pattern: pattern, Example: path}
	var name strings.Builder
	taken := map[string]bool{"a": true}
	prev := ""
	for _, seg := range path {
		if !seg.IsIndex {
			name.WriteString(goName(seg.Name))
			a.Args = append(a.Args, fmt.Sprintf("%q", seg.Name))
			prev = seg.Name
			continue
		}
		param := paramName(prev, taken)
		taken[param] = true
		a.Params = append(a.Params, param)
		a.Args = append(a.Args, "strconv.Itoa("+param+")")
	}
	a.Name = name.String()
	if a.Name == "" || !token.IsIdentifier(a.Name) {
		a.Name = "Node" + a.Name
	}
	a.Doc = docLines(d)
	return a
}

// goName turns a node name into an exported identifier part:
// "rate_limit" -> "RateLimit", "3d" -> "N3d".
func goName(s string) string {
	var sb strings.Builder
	upper := true
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z':
			if upper {
				r -= 'a' - 'A'
			}
			sb.WriteRune(r)
			upper = false
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			sb.WriteRune(r)
			upper = false
		default:
			upper = true
		}
	}
	out := sb.String()
	if out != "" && out[0] >= '0' && out[0] <= '9' {
		out = "N" + out
	}
	return out
}

// paramName names the index argument following the name segment prev:
// "sigouts" -> "sigout". Names are made unique against taken.
func paramName(prev string, taken map[string]bool) string {
	base := "i"
	if n := goName(prev); n != "" {
		base = strings.ToLower(n[:1]) + n[1:]
		if len(base) > 2 && strings.HasSuffix(base, "s") {
			base = strings.TrimSuffix(base, "s")
		}
	}
	if token.IsKeyword(base) {
		base = "n" + goName(base)
	}
	name := base
	for i := 2; taken[name]; i++ {
		name = fmt.Sprintf("%s%d", base, i)
	}
	return name
}

// docLines renders the node description and its metadata as comment lines.
func docLines(d *nodetree.Descriptor) []string {
	var lines []string
	if desc := strings.TrimSpace(d.Description); desc != "" {
		lines = append(lines, "")
		for _, l := range strings.Split(desc, "\n") {
			lines = append(lines, strings.TrimRight(l, " \t"))
		}
	}
	meta := []string{"Properties: " + d.Properties.String()}
	if d.Type != "" {
		meta = append(meta, "Type: "+d.Type)
	}
	if unit := d.PhysicalUnit(); unit != "" {
		meta = append(meta, "Unit: "+unit)
	}
	lines = append(lines, "", strings.Join(meta, "; "))
	return lines
}
