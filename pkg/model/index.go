package model

import (
	"fmt"
	"sort"
	"strings"
)

// NodeIndex maps raw node paths to parameters. Keys are lower-cased; both
// the absolute path ("/dev1234/sigouts/0/on") and the path relative to the
// device prefix ("sigouts/0/on") are indexed.
type NodeIndex struct {
	prefix string
	byPath map[string]*Parameter
}

// NewNodeIndex indexes every parameter below root. prefix is the device
// serial (or module name) stripped to form relative keys.
func NewNodeIndex(root Node, prefix string) *NodeIndex {
	idx := &NodeIndex{
		prefix: strings.ToLower(strings.Trim(prefix, "/")),
		byPath: make(map[string]*Parameter),
	}
	for _, p := range Parameters(root) {
		idx.Add(p)
	}
	return idx
}

// Add indexes p.
func (idx *NodeIndex) Add(p *Parameter) {
	abs := strings.ToLower(p.NodePath())
	if abs == "" {
		return
	}
	if !strings.HasPrefix(abs, "/") {
		abs = "/" + abs
	}
	idx.byPath[abs] = p
}

// Len returns the number of indexed parameters.
func (idx *NodeIndex) Len() int { return len(idx.byPath) }

// expression turns "sigouts[0].on" into "sigouts/0/on".
var expression = strings.NewReplacer("[", "/", "]", "", ".", "/")

// Lookup returns the parameter for a node path given in any case, either
// absolute or relative to the prefix. Attribute expressions such as
// "sigouts[0].on" are accepted too.
func (idx *NodeIndex) Lookup(path string) (*Parameter, error) {
	key := strings.ToLower(expression.Replace(strings.TrimSpace(path)))
	if p, ok := idx.byPath[key]; ok {
		return p, nil
	}
	rel := strings.Trim(key, "/")
	if p, ok := idx.byPath["/"+rel]; ok {
		return p, nil
	}
	if idx.prefix != "" {
		if p, ok := idx.byPath["/"+idx.prefix+"/"+rel]; ok {
			return p, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNodeNotFound, path)
}

// Paths returns the indexed absolute paths in sorted order.
func (idx *NodeIndex) Paths() []string {
	out := make([]string, 0, len(idx.byPath))
	for k := range idx.byPath {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// NodeDict holds a path-keyed result (e.g. a wildcard get) that can be
// indexed by path string or by Parameter.
type NodeDict struct {
	values map[string]any
}

// NewNodeDict wraps a raw result. Keys are lower-cased.
func NewNodeDict(raw map[string]any) *NodeDict {
	d := &NodeDict{values: make(map[string]any, len(raw))}
	for k, v := range raw {
		d.values[strings.ToLower(k)] = v
	}
	return d
}

// Get returns the value for a node path.
func (d *NodeDict) Get(path string) (any, bool) {
	v, ok := d.values[strings.ToLower(path)]
	return v, ok
}

// GetParameter returns the value for p's node path.
func (d *NodeDict) GetParameter(p *Parameter) (any, bool) {
	return d.Get(p.NodePath())
}

// Len returns the number of entries.
func (d *NodeDict) Len() int { return len(d.values) }

// Keys returns the paths in sorted order.
func (d *NodeDict) Keys() []string {
	out := make([]string, 0, len(d.values))
	for k := range d.values {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// ToMap returns a copy of the underlying mapping.
func (d *NodeDict) ToMap() map[string]any {
	out := make(map[string]any, len(d.values))
	for k, v := range d.values {
		out[k] = v
	}
	return out
}
