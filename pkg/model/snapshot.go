package model

import (
	"context"
	"time"
)

// ReadFunc is an individual read used as fallback by a Batcher.
type ReadFunc func(ctx context.Context) (any, error)

// Batcher serves parameter reads from one bulk read while a snapshot scope is
// open. Begin returns owner=true only for the outermost scope; End must be
// called with that value.
type Batcher interface {
	Begin(ctx context.Context, path string) (owner bool, err error)
	End(owner bool)
	Read(ctx context.Context, p *Parameter, fallback ReadFunc) (any, error)
}

// Snapshot is the state of a container or list.
type Snapshot struct {
	Name       string                        `json:"name"`
	Path       string                        `json:"path,omitempty"`
	Parameters map[string]*ParameterSnapshot `json:"parameters,omitempty"`
	Submodules map[string]*Snapshot          `json:"submodules,omitempty"`
	Channels   []*Snapshot                   `json:"channels,omitempty"`
}

func (s *Snapshot) addSubmodule(name string, sub *Snapshot) {
	if s.Submodules == nil {
		s.Submodules = make(map[string]*Snapshot)
	}
	s.Submodules[name] = sub
}

// ParameterSnapshot is the state of one parameter. Value and RawValue are
// nil when the parameter does not take part in snapshots or was never read.
type ParameterSnapshot struct {
	Name      string     `json:"name"`
	Path      string     `json:"path,omitempty"`
	Value     any        `json:"value,omitempty"`
	RawValue  any        `json:"raw_value,omitempty"`
	Unit      string     `json:"unit,omitempty"`
	Label     string     `json:"label,omitempty"`
	Timestamp *time.Time `json:"ts,omitempty"`
	Error     string     `json:"error,omitempty"`
}

// Count returns the number of parameter entries in s and below.
func (s *Snapshot) Count() int {
	n := len(s.Parameters)
	for _, sub := range s.Submodules {
		n += sub.Count()
	}
	for _, ch := range s.Channels {
		n += ch.Count()
	}
	return n
}
