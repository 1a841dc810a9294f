package inspect

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/zhinst/zhinst-go/pkg/model"
)

// Inspector errors.
var (
	ErrNotParameter = errors.New("path does not name a parameter")
	ErrNilPath      = errors.New("path is nil")
)

// Inspector provides inspection and mutation of a parameter tree.
type Inspector struct {
	root model.Node
}

// NewInspector creates an Inspector for the tree below root.
func NewInspector(root model.Node) *Inspector {
	return &Inspector{root: root}
}

// Root returns the inspected tree.
func (i *Inspector) Root() model.Node { return i.root }

// NodeInfo describes one node for display.
type NodeInfo struct {
	Name   string
	Path   string
	Kind   model.Kind
	Label  string
	Unit   string
	Access model.Access

	// Value is set when values were requested and the read succeeded.
	Value    any
	HasValue bool
	Error    string

	Children []*NodeInfo
}

// InspectOptions controls Inspect.
type InspectOptions struct {
	// Values reads every parameter.
	Values bool

	// Depth limits recursion. Zero means unlimited.
	Depth int
}

// Find returns the node a path names.
func (i *Inspector) Find(path *Path) (model.Node, error) {
	if path == nil {
		return nil, ErrNilPath
	}
	return model.Find(i.root, path.Segments...)
}

// Parameter returns the parameter a path names. A list item holding a
// single leaf stands for its "value" parameter.
func (i *Inspector) Parameter(path *Path) (*model.Parameter, error) {
	n, err := i.Find(path)
	if err != nil {
		return nil, err
	}
	switch v := n.(type) {
	case *model.Parameter:
		return v, nil
	case *model.Container:
		if p, err := v.Parameter("value"); err == nil && len(v.Names()) == 1 {
			return p, nil
		}
	}
	return nil, fmt.Errorf("%w: %s is a %s", ErrNotParameter, path.Raw, n.Kind())
}

// Inspect describes the node a path names and everything below it.
func (i *Inspector) Inspect(ctx context.Context, path *Path, opts InspectOptions) (*NodeInfo, error) {
	n, err := i.Find(path)
	if err != nil {
		return nil, err
	}
	return i.describe(ctx, n, opts, 1), nil
}

func (i *Inspector) describe(ctx context.Context, n model.Node, opts InspectOptions, depth int) *NodeInfo {
	info := &NodeInfo{Name: n.Name(), Path: n.NodePath(), Kind: n.Kind()}

	var children []model.Node
	switch v := n.(type) {
	case *model.Parameter:
		meta := v.Metadata()
		info.Label = meta.Label
		info.Unit = meta.Unit
		info.Access = meta.Access
		if opts.Values && v.Readable() {
			value, err := v.Get(ctx)
			if err != nil {
				info.Error = err.Error()
			} else {
				info.Value = value
				info.HasValue = true
			}
		}
		return info
	case *model.Container:
		children = v.Children()
	case *model.IndexedList:
		for _, item := range v.Items() {
			children = append(children, item)
		}
	}

	if opts.Depth > 0 && depth >= opts.Depth {
		return info
	}
	for _, child := range children {
		info.Children = append(info.Children, i.describe(ctx, child, opts, depth+1))
	}
	return info
}

// Read reads the parameter a path names.
func (i *Inspector) Read(ctx context.Context, path *Path) (any, error) {
	p, err := i.Parameter(path)
	if err != nil {
		return nil, err
	}
	return p.Get(ctx)
}

// Write sets the parameter a path names and returns the acknowledged value.
func (i *Inspector) Write(ctx context.Context, path *Path, value any) (any, error) {
	p, err := i.Parameter(path)
	if err != nil {
		return nil, err
	}
	return p.DeepSet(ctx, value)
}

// List returns the child names of the node a path names. List items are
// returned as their index.
func (i *Inspector) List(path *Path) ([]string, error) {
	n, err := i.Find(path)
	if err != nil {
		return nil, err
	}
	switch v := n.(type) {
	case *model.Container:
		return v.Names(), nil
	case *model.IndexedList:
		out := make([]string, 0, v.Len())
		for _, idx := range v.Indices() {
			out = append(out, strconv.Itoa(idx))
		}
		return out, nil
	}
	return nil, nil
}

// Complete returns the parameter expressions below root that start with
// prefix, for interactive completion.
func (i *Inspector) Complete(prefix string) []string {
	prefix = strings.ToLower(prefix)
	var out []string
	var walk func(n model.Node, segs []string)
	walk = func(n model.Node, segs []string) {
		switch v := n.(type) {
		case *model.Parameter:
			if expr := Expression(segs); strings.HasPrefix(expr, prefix) {
				out = append(out, expr)
			}
		case *model.Container:
			for _, child := range v.Children() {
				walk(child, append(segs[:len(segs):len(segs)], child.Name()))
			}
		case *model.IndexedList:
			for _, idx := range v.Indices() {
				item, _ := v.At(idx)
				walk(item, append(segs[:len(segs):len(segs)], strconv.Itoa(idx)))
			}
		}
	}
	walk(i.root, nil)
	return out
}

// ParseValue converts command-line text into a node value: integers,
// floats, complex numbers ("1+2i") and otherwise the string itself.
func ParseValue(s string) any {
	s = strings.TrimSpace(s)
	if i, err := strconv.ParseInt(s, 0, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	if c, err := strconv.ParseComplex(strings.ReplaceAll(s, "j", "i"), 128); err == nil {
		return c
	}
	return s
}
