package nodetree

import (
	"errors"
	"fmt"
	"sort"
)

// Tree errors.
var (
	ErrPathConflict  = errors.New("path is both a node and a branch")
	ErrDuplicatePath = errors.New("duplicate node path")
	ErrEmptyPath     = errors.New("empty node path")
)

// Tree is one level of a NestedNodeTree. A level is either terminal (it
// carries a Descriptor) or a branch with ordered children.
type Tree struct {
	Descriptor *Descriptor

	keys     []Segment
	children map[Segment]*Tree
}

// New creates an empty branch.
func New() *Tree {
	return &Tree{children: make(map[Segment]*Tree)}
}

// IsTerminal returns true if this level carries a Descriptor.
func (t *Tree) IsTerminal() bool { return t.Descriptor != nil }

// Len returns the number of children.
func (t *Tree) Len() int { return len(t.keys) }

// Keys returns the child keys in insertion order.
func (t *Tree) Keys() []Segment {
	out := make([]Segment, len(t.keys))
	copy(out, t.keys)
	return out
}

// Child returns the child at key, or nil.
func (t *Tree) Child(key Segment) *Tree {
	return t.children[key]
}

// Enumerated reports whether every child key is an index.
func (t *Tree) Enumerated() bool {
	if len(t.keys) == 0 {
		return false
	}
	for _, k := range t.keys {
		if !k.IsIndex {
			return false
		}
	}
	return true
}

// Mixed reports whether the level has both index and name keys.
func (t *Tree) Mixed() bool {
	var idx, name bool
	for _, k := range t.keys {
		if k.IsIndex {
			idx = true
		} else {
			name = true
		}
	}
	return idx && name
}

// Indices returns the index keys in ascending order.
func (t *Tree) Indices() []int {
	var out []int
	for _, k := range t.keys {
		if k.IsIndex {
			out = append(out, k.Index)
		}
	}
	sort.Ints(out)
	return out
}

// Insert places d at path, creating branches as needed.
func (t *Tree) Insert(path Path, d Descriptor) error {
	if len(path) == 0 {
		return ErrEmptyPath
	}
	cur := t
	for i, seg := range path {
		if cur.IsTerminal() {
			return fmt.Errorf("%w: %s", ErrPathConflict, path[:i])
		}
		child, ok := cur.children[seg]
		last := i == len(path)-1
		switch {
		case !ok && last:
			dd := d
			cur.add(seg, &Tree{Descriptor: &dd})
			return nil
		case !ok:
			child = New()
			cur.add(seg, child)
		case last && child.IsTerminal():
			return fmt.Errorf("%w: %s", ErrDuplicatePath, path)
		case last:
			return fmt.Errorf("%w: %s", ErrPathConflict, path)
		}
		cur = child
	}
	return nil
}

func (t *Tree) add(seg Segment, child *Tree) {
	if t.children == nil {
		t.children = make(map[Segment]*Tree)
	}
	t.keys = append(t.keys, seg)
	t.children[seg] = child
}

// Lookup returns the level at path, or nil.
func (t *Tree) Lookup(path Path) *Tree {
	cur := t
	for _, seg := range path {
		if cur == nil {
			return nil
		}
		cur = cur.children[seg]
	}
	return cur
}

// Walk calls fn for every Descriptor in depth-first key order.
func (t *Tree) Walk(fn func(Path, *Descriptor)) {
	t.walk(nil, fn)
}

func (t *Tree) walk(prefix Path, fn func(Path, *Descriptor)) {
	if t.IsTerminal() {
		fn(prefix, t.Descriptor)
		return
	}
	for _, k := range t.keys {
		p := make(Path, len(prefix), len(prefix)+1)
		copy(p, prefix)
		t.children[k].walk(append(p, k), fn)
	}
}

// Count returns the number of descriptors below this level.
func (t *Tree) Count() int {
	n := 0
	t.Walk(func(Path, *Descriptor) { n++ })
	return n
}

// TopLevelKeys returns the names of the first level.
func (t *Tree) TopLevelKeys() []string {
	out := make([]string, 0, len(t.keys))
	for _, k := range t.keys {
		out = append(out, k.String())
	}
	return out
}

// NodeError records a node that could not be placed in the tree.
type NodeError struct {
	Path string
	Err  error
}

func (e *NodeError) Error() string {
	return fmt.Sprintf("node %s: %v", e.Path, e.Err)
}

func (e *NodeError) Unwrap() error { return e.Err }

// Dictify groups a flat node mapping into a Tree. The device prefix (e.g.
// "dev1234") is stripped from every path. Paths are inserted in sorted order so
// the result does not depend on map iteration. A node whose split form
// ("ch0" as ch/0) is already taken keeps its literal name instead. Nodes that
// still cannot be placed are returned as NodeErrors; the rest of the tree is
// still built.
func Dictify(nodes map[string]Descriptor, prefix string) (*Tree, []*NodeError) {
	paths := make([]string, 0, len(nodes))
	for p := range nodes {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	t := New()
	var errs []*NodeError
	for _, raw := range paths {
		d := nodes[raw]
		if d.Node == "" {
			d.Node = raw
		}
		rel := StripPrefix(raw, prefix)
		path := Normalize(rel)
		err := t.Insert(path, d)
		if err != nil {
			if literal := NormalizeLiteral(rel); !literal.Equal(path) {
				err = t.Insert(literal, d)
			}
		}
		if err != nil {
			errs = append(errs, &NodeError{Path: raw, Err: err})
		}
	}
	return t, errs
}
