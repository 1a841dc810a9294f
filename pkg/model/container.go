package model

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Container groups parameters, containers and lists under one name.
type Container struct {
	name  string
	path  string
	batch Batcher

	mu       sync.RWMutex
	order    []string
	children map[string]Node
}

// NewContainer creates an empty container. path is the device-relative node
// path used to scope batched snapshots; batch may be nil.
func NewContainer(name, path string, batch Batcher) *Container {
	return &Container{
		name:     name,
		path:     strings.ToLower(strings.Trim(path, "/")),
		batch:    batch,
		children: make(map[string]Node),
	}
}

// Name returns the container name.
func (c *Container) Name() string { return c.name }

// Kind returns KindContainer.
func (c *Container) Kind() Kind { return KindContainer }

// NodePath returns the device-relative node path.
func (c *Container) NodePath() string { return c.path }

// Batcher returns the batcher attached to the container.
func (c *Container) Batcher() Batcher { return c.batch }

// Has reports whether a child with the name exists.
func (c *Container) Has(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.children[name]
	return ok
}

// AddParameter attaches p under its name.
func (c *Container) AddParameter(p *Parameter) error {
	return c.attach(p.Name(), p)
}

// AddSubmodule attaches a container or list under name.
func (c *Container) AddSubmodule(name string, n Node) error {
	switch n.(type) {
	case *Container, *IndexedList:
	default:
		return fmt.Errorf("%w: %s is a %s, not a submodule", ErrInvalidName, name, n.Kind())
	}
	return c.attach(name, n)
}

func (c *Container) attach(name string, n Node) error {
	if name == "" {
		return fmt.Errorf("%w: empty name in %s", ErrInvalidName, c.name)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.children[name]; exists {
		return fmt.Errorf("%w: %s.%s", ErrDuplicateName, c.name, name)
	}
	c.children[name] = n
	c.order = append(c.order, name)
	return nil
}

// Child returns the child with the given name.
func (c *Container) Child(name string) (Node, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n, ok := c.children[name]
	return n, ok
}

// Children returns all children in insertion order.
func (c *Container) Children() []Node {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Node, 0, len(c.order))
	for _, name := range c.order {
		out = append(out, c.children[name])
	}
	return out
}

// Names returns the child names in insertion order.
func (c *Container) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, len(c.order))
	copy(out, c.order)
	return out
}

// Parameter returns the direct child parameter with the given name.
func (c *Container) Parameter(name string) (*Parameter, error) {
	n, ok := c.Child(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s", ErrNodeNotFound, c.name, name)
	}
	p, ok := n.(*Parameter)
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s is a %s", ErrNodeNotFound, c.name, name, n.Kind())
	}
	return p, nil
}

// Submodule returns the direct child container with the given name.
func (c *Container) Submodule(name string) (*Container, error) {
	n, ok := c.Child(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s", ErrNodeNotFound, c.name, name)
	}
	sub, ok := n.(*Container)
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s is a %s", ErrNodeNotFound, c.name, name, n.Kind())
	}
	return sub, nil
}

// List returns the direct child list with the given name.
func (c *Container) List(name string) (*IndexedList, error) {
	n, ok := c.Child(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s", ErrNodeNotFound, c.name, name)
	}
	l, ok := n.(*IndexedList)
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s is a %s", ErrNodeNotFound, c.name, name, n.Kind())
	}
	return l, nil
}

// Parameters returns the direct child parameters in insertion order.
func (c *Container) Parameters() []*Parameter {
	var out []*Parameter
	for _, n := range c.Children() {
		if p, ok := n.(*Parameter); ok {
			out = append(out, p)
		}
	}
	return out
}

// Snapshot returns the state of the container and everything below it. With
// update set the read is wrapped in a batch scope for this container's path.
func (c *Container) Snapshot(ctx context.Context, update bool) (*Snapshot, error) {
	if update && c.batch != nil {
		owner, err := c.batch.Begin(ctx, c.path)
		if err != nil {
			return nil, err
		}
		defer c.batch.End(owner)
	}
	return c.snapshot(ctx, update)
}

func (c *Container) snapshot(ctx context.Context, update bool) (*Snapshot, error) {
	s := &Snapshot{Name: c.name, Path: c.path}
	for _, n := range c.Children() {
		switch v := n.(type) {
		case *Parameter:
			if s.Parameters == nil {
				s.Parameters = make(map[string]*ParameterSnapshot)
			}
			s.Parameters[v.Name()] = v.Snapshot(ctx, update)
		case *Container:
			sub, err := v.Snapshot(ctx, update)
			if err != nil {
				return nil, err
			}
			s.addSubmodule(v.Name(), sub)
		case *IndexedList:
			sub, err := v.Snapshot(ctx, update)
			if err != nil {
				return nil, err
			}
			s.addSubmodule(v.Name(), sub)
		}
	}
	return s, nil
}
