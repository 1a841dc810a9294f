package model

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

type listItem struct {
	index int
	c     *Container
}

// IndexedList is an ordered, append-only list of containers. Items keep the
// index they were created for, so a sparse list still resolves At(i) by index.
type IndexedList struct {
	name  string
	path  string
	batch Batcher

	mu     sync.RWMutex
	items  []listItem
	sealed bool
}

// NewIndexedList creates an empty list.
func NewIndexedList(name, path string, batch Batcher) *IndexedList {
	return &IndexedList{
		name:  name,
		path:  strings.ToLower(strings.Trim(path, "/")),
		batch: batch,
	}
}

// Name returns the list name.
func (l *IndexedList) Name() string { return l.name }

// Kind returns KindList.
func (l *IndexedList) Kind() Kind { return KindList }

// NodePath returns the device-relative node path.
func (l *IndexedList) NodePath() string { return l.path }

// Append adds c for the given index. Indices must be strictly ascending.
func (l *IndexedList) Append(index int, c *Container) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.sealed {
		return fmt.Errorf("%w: %s", ErrListSealed, l.name)
	}
	if n := len(l.items); n > 0 && l.items[n-1].index >= index {
		return fmt.Errorf("%w: %s[%d] after [%d]", ErrIndexOrder, l.name, index, l.items[n-1].index)
	}
	l.items = append(l.items, listItem{index: index, c: c})
	return nil
}

// Seal prevents further appends.
func (l *IndexedList) Seal() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sealed = true
}

// Sealed reports whether the list is sealed.
func (l *IndexedList) Sealed() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.sealed
}

// Len returns the number of items.
func (l *IndexedList) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.items)
}

// At returns the item created for index.
func (l *IndexedList) At(index int) (*Container, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, it := range l.items {
		if it.index == index {
			return it.c, nil
		}
	}
	return nil, fmt.Errorf("%w: %s[%d]", ErrNodeNotFound, l.name, index)
}

// Indices returns the item indices in order.
func (l *IndexedList) Indices() []int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]int, len(l.items))
	for i, it := range l.items {
		out[i] = it.index
	}
	return out
}

// Items returns the containers in order.
func (l *IndexedList) Items() []*Container {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]*Container, len(l.items))
	for i, it := range l.items {
		out[i] = it.c
	}
	return out
}

// Snapshot returns the state of every item. With update set the read is
// wrapped in a batch scope for the list's path.
func (l *IndexedList) Snapshot(ctx context.Context, update bool) (*Snapshot, error) {
	if update && l.batch != nil {
		owner, err := l.batch.Begin(ctx, l.path)
		if err != nil {
			return nil, err
		}
		defer l.batch.End(owner)
	}
	s := &Snapshot{Name: l.name, Path: l.path}
	for _, item := range l.Items() {
		sub, err := item.Snapshot(ctx, update)
		if err != nil {
			return nil, err
		}
		s.Channels = append(s.Channels, sub)
	}
	return s, nil
}
