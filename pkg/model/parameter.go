package model

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Access flags for parameters.
type Access uint8

const (
	// AccessRead allows reading the parameter.
	AccessRead Access = 1 << iota

	// AccessWrite allows writing the parameter.
	AccessWrite

	// AccessSubscribe allows subscribing to the underlying node.
	AccessSubscribe
)

// CanRead returns true if reading is allowed.
func (a Access) CanRead() bool { return a&AccessRead != 0 }

// CanWrite returns true if writing is allowed.
func (a Access) CanWrite() bool { return a&AccessWrite != 0 }

// CanSubscribe returns true if subscribing is allowed.
func (a Access) CanSubscribe() bool { return a&AccessSubscribe != 0 }

// String returns the access flags as a string.
func (a Access) String() string {
	var s string
	if a.CanRead() {
		s += "R"
	}
	if a.CanWrite() {
		s += "W"
	}
	if a.CanSubscribe() {
		s += "S"
	}
	if s == "" {
		return "-"
	}
	return s
}

// Domain constrains the values a parameter accepts on Set.
type Domain uint8

const (
	// DomainAny accepts every value.
	DomainAny Domain = iota

	// DomainComplex accepts complex numbers only.
	DomainComplex
)

// String returns the domain name.
func (d Domain) String() string {
	if d == DomainComplex {
		return "complex"
	}
	return "any"
}

// Validate checks v against the domain.
func (d Domain) Validate(v any) error {
	if d != DomainComplex {
		return nil
	}
	switch v.(type) {
	case complex128, complex64:
		return nil
	default:
		return fmt.Errorf("%w: %T is not a complex number", ErrValueType, v)
	}
}

// Parameter errors.
var (
	ErrNotReadable  = errors.New("parameter is not readable")
	ErrNotWritable  = errors.New("parameter is not writable")
	ErrValueType    = errors.New("invalid value type for parameter")
	ErrNotSupported = errors.New("operation not supported")
	ErrTimeout      = errors.New("timeout waiting for state change")
)

// GetFunc reads the current value of a node.
type GetFunc func(ctx context.Context) (any, error)

// SetFunc writes a node and returns the value acknowledged by the device
// (nil when the connection does not report one).
type SetFunc func(ctx context.Context, value any) (any, error)

// Subscriber forwards subscriptions for a node path.
type Subscriber interface {
	Subscribe(ctx context.Context, path string) error
	Unsubscribe(ctx context.Context, path string) error
}

// ParameterMetadata describes a parameter.
type ParameterMetadata struct {
	// Name is the attribute name on the parent container.
	Name string

	// Path is the raw node path, e.g. "/DEV1234/SIGOUTS/0/ON".
	Path string

	// Label is a short human-readable description.
	Label string

	// Doc is the full docstring.
	Doc string

	// Unit is the physical unit, empty when unitless.
	Unit string

	// Access is derived from the getter and setter on construction. Only
	// AccessSubscribe is taken from the config.
	Access Access

	// Domain constrains Set values.
	Domain Domain

	// SnapshotGet allows reading the parameter during a snapshot update.
	SnapshotGet bool

	// SnapshotValue includes the value in snapshots.
	SnapshotValue bool
}

// ParameterConfig holds everything needed to construct a Parameter.
type ParameterConfig struct {
	Metadata   ParameterMetadata
	Get        GetFunc
	Set        SetFunc
	Batch      Batcher
	Subscriber Subscriber
}

// Parameter is a leaf of the tree wrapping one device node.
type Parameter struct {
	meta       ParameterMetadata
	get        GetFunc
	set        SetFunc
	batch      Batcher
	subscriber Subscriber

	mu       sync.RWMutex
	value    any
	rawValue any
	ts       time.Time
	valid    bool
}

// NewParameter creates a parameter.
func NewParameter(cfg ParameterConfig) *Parameter {
	meta := cfg.Metadata
	meta.Access &= AccessSubscribe
	if cfg.Get != nil {
		meta.Access |= AccessRead
	}
	if cfg.Set != nil {
		meta.Access |= AccessWrite
	}
	return &Parameter{
		meta:       meta,
		get:        cfg.Get,
		set:        cfg.Set,
		batch:      cfg.Batch,
		subscriber: cfg.Subscriber,
	}
}

// Name returns the parameter name.
func (p *Parameter) Name() string { return p.meta.Name }

// Kind returns KindParameter.
func (p *Parameter) Kind() Kind { return KindParameter }

// NodePath returns the raw node path.
func (p *Parameter) NodePath() string { return p.meta.Path }

// Metadata returns a copy of the metadata.
func (p *Parameter) Metadata() ParameterMetadata { return p.meta }

// Unit returns the physical unit.
func (p *Parameter) Unit() string { return p.meta.Unit }

// Access returns the access flags.
func (p *Parameter) Access() Access { return p.meta.Access }

// Readable reports whether the parameter has a getter.
func (p *Parameter) Readable() bool { return p.get != nil }

// Writable reports whether the parameter has a setter.
func (p *Parameter) Writable() bool { return p.set != nil }

// Get reads the value from the device and updates the cached value.
func (p *Parameter) Get(ctx context.Context) (any, error) {
	if p.get == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotReadable, p.meta.Name)
	}
	v, err := p.get(ctx)
	if err != nil {
		return nil, err
	}
	p.UpdateCache(v, time.Now())
	return v, nil
}

// Set writes value to the device.
func (p *Parameter) Set(ctx context.Context, value any) error {
	_, err := p.DeepSet(ctx, value)
	return err
}

// DeepSet writes value and returns the value acknowledged by the device, or
// nil when none was reported. The cache holds the acknowledged value if there
// is one and the written value otherwise.
func (p *Parameter) DeepSet(ctx context.Context, value any) (any, error) {
	if p.set == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotWritable, p.meta.Name)
	}
	if err := p.meta.Domain.Validate(value); err != nil {
		return nil, fmt.Errorf("%s: %w", p.meta.Name, err)
	}
	ack, err := p.set(ctx, value)
	if err != nil {
		return nil, err
	}
	if ack != nil {
		p.UpdateCache(ack, time.Now())
	} else {
		p.UpdateCache(value, time.Now())
	}
	return ack, nil
}

// UpdateCache stores value as the latest known value.
func (p *Parameter) UpdateCache(value any, ts time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.value = value
	p.rawValue = value
	p.ts = ts
	p.valid = true
}

// Cached returns the latest known value and when it was obtained.
func (p *Parameter) Cached() (value any, ts time.Time, ok bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.value, p.ts, p.valid
}

// InvalidateCache drops the cached value.
func (p *Parameter) InvalidateCache() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.value, p.rawValue, p.valid = nil, nil, false
}

// WaitForStateChange polls the node every sleep until it equals value, or
// until it differs from value when invert is set. It returns ErrTimeout when
// timeout elapses first.
func (p *Parameter) WaitForStateChange(ctx context.Context, value any, invert bool, timeout, sleep time.Duration) error {
	if sleep <= 0 {
		sleep = 5 * time.Millisecond
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(sleep)
	defer ticker.Stop()

	for {
		cur, err := p.Get(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return fmt.Errorf("%w: %s", ErrTimeout, p.meta.Path)
			}
			return err
		}
		if ValuesEqual(cur, value) != invert {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %s is %v", ErrTimeout, p.meta.Path, cur)
		case <-ticker.C:
		}
	}
}

// Subscribe subscribes to the node. Data is fetched with a poll.
func (p *Parameter) Subscribe(ctx context.Context) error {
	if p.subscriber == nil {
		return fmt.Errorf("%w: subscribe %s", ErrNotSupported, p.meta.Name)
	}
	return p.subscriber.Subscribe(ctx, p.meta.Path)
}

// Unsubscribe stops a subscription started with Subscribe.
func (p *Parameter) Unsubscribe(ctx context.Context) error {
	if p.subscriber == nil {
		return fmt.Errorf("%w: unsubscribe %s", ErrNotSupported, p.meta.Name)
	}
	return p.subscriber.Unsubscribe(ctx, p.meta.Path)
}

// Snapshot returns the state of the parameter. With update set (and
// SnapshotGet enabled) the value is read first, through the Batcher when one
// is attached. A read failure is recorded in the snapshot and the cached value
// is reported instead.
func (p *Parameter) Snapshot(ctx context.Context, update bool) *ParameterSnapshot {
	s := &ParameterSnapshot{
		Name:  p.meta.Name,
		Path:  p.meta.Path,
		Unit:  p.meta.Unit,
		Label: p.meta.Label,
	}
	if update && p.meta.SnapshotGet && p.get != nil {
		var err error
		if p.batch != nil {
			_, err = p.batch.Read(ctx, p, p.Get)
		} else {
			_, err = p.Get(ctx)
		}
		if err != nil {
			s.Error = err.Error()
		}
	}
	if !p.meta.SnapshotValue {
		return s
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.valid {
		s.Value = SnapshotValue(p.value)
		s.RawValue = SnapshotValue(p.rawValue)
		ts := p.ts
		s.Timestamp = &ts
	}
	return s
}
