package model

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Tree errors.
var (
	ErrNodeNotFound  = errors.New("node not found")
	ErrDuplicateName = errors.New("name already exists")
	ErrListSealed    = errors.New("list is sealed")
	ErrIndexOrder    = errors.New("list index out of order")
	ErrInvalidName   = errors.New("invalid name")
)

// Kind identifies the variant of a tree node.
type Kind uint8

const (
	KindContainer Kind = iota
	KindList
	KindParameter
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindContainer:
		return "container"
	case KindList:
		return "list"
	case KindParameter:
		return "parameter"
	default:
		return "unknown"
	}
}

// Node is one element of the parameter tree.
type Node interface {
	// Name is the name under which the node is attached to its parent.
	Name() string

	// Kind returns the variant.
	Kind() Kind

	// NodePath is the device-relative node path ("sigouts/0").
	NodePath() string
}

// Walk calls fn for n and every node below it, depth first.
// Returning an error from fn stops the walk.
func Walk(n Node, fn func(Node) error) error {
	if err := fn(n); err != nil {
		return err
	}
	switch v := n.(type) {
	case *Container:
		for _, child := range v.Children() {
			if err := Walk(child, fn); err != nil {
				return err
			}
		}
	case *IndexedList:
		for _, item := range v.Items() {
			if err := Walk(item, fn); err != nil {
				return err
			}
		}
	}
	return nil
}

// Parameters returns every parameter at or below n in walk order.
func Parameters(n Node) []*Parameter {
	var out []*Parameter
	_ = Walk(n, func(child Node) error {
		if p, ok := child.(*Parameter); ok {
			out = append(out, p)
		}
		return nil
	})
	return out
}

// Find follows segments from root. A numeric segment indexes a list. A name
// followed by a number also matches a flat enumerated parameter, so
// ("enables", "1") finds "enables1".
func Find(root Node, segments ...string) (Node, error) {
	cur := root
	for i := 0; i < len(segments); i++ {
		seg := strings.ToLower(segments[i])
		switch n := cur.(type) {
		case *Container:
			child, ok := n.Child(seg)
			if !ok && i+1 < len(segments) && isNumber(segments[i+1]) {
				child, ok = n.Child(seg + segments[i+1])
				if ok {
					i++
				}
			}
			if !ok && isNumber(seg) {
				child, ok = n.Child("_" + seg)
			}
			if !ok {
				return nil, fmt.Errorf("%w: %s", ErrNodeNotFound, strings.Join(segments[:i+1], "/"))
			}
			cur = child
		case *IndexedList:
			idx, err := strconv.Atoi(seg)
			if err != nil {
				return nil, fmt.Errorf("%w: %s is not an index", ErrNodeNotFound, seg)
			}
			item, err := n.At(idx)
			if err != nil {
				return nil, err
			}
			cur = item
		default:
			return nil, fmt.Errorf("%w: %s has no children", ErrNodeNotFound, cur.Name())
		}
	}
	return cur, nil
}

// FindParameter is Find restricted to parameters.
func FindParameter(root Node, segments ...string) (*Parameter, error) {
	n, err := Find(root, segments...)
	if err != nil {
		return nil, err
	}
	p, ok := n.(*Parameter)
	if !ok {
		return nil, fmt.Errorf("%w: %s is a %s", ErrNodeNotFound, n.Name(), n.Kind())
	}
	return p, nil
}

func isNumber(s string) bool {
	_, err := strconv.Atoi(s)
	return err == nil
}
