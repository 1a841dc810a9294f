package session

import (
	"context"
	"fmt"
	"strings"

	"github.com/zhinst/zhinst-go/pkg/builder"
	"github.com/zhinst/zhinst-go/pkg/connection"
	"github.com/zhinst/zhinst-go/pkg/model"
	"github.com/zhinst/zhinst-go/pkg/nodetree"
	"github.com/zhinst/zhinst-go/pkg/profile"
	"github.com/zhinst/zhinst-go/pkg/snapshot"
)

// Vendor is reported by Device.IDN.
const Vendor = "Zurich Instruments"

// DeviceProperties are applied when a device object is created.
type DeviceProperties struct {
	// Name is a display name. Defaults to the serial.
	Name string

	// Raw builds the plain nodetree without the type's profile.
	Raw bool
}

// IDN identifies a device.
type IDN struct {
	Vendor   string `json:"vendor"`
	Model    string `json:"model"`
	Serial   string `json:"serial"`
	Firmware string `json:"firmware"`
}

// Device is a connected device with its parameter tree.
type Device struct {
	serial  string
	devtype string
	family  string
	name    string
	raw     bool

	conn    connection.DeviceConnection
	root    *model.Container
	cache   *snapshot.Cache
	index   *model.NodeIndex
	profile *profile.Profile
	stats   builder.Stats
}

// Serial returns the lower-case serial.
func (d *Device) Serial() string { return d.serial }

// Type returns the device type as reported by the device ("HDAWG8").
func (d *Device) Type() string { return d.devtype }

// Family returns the supported family the type belongs to ("hdawg").
func (d *Device) Family() string { return d.family }

// Name returns the display name.
func (d *Device) Name() string { return d.name }

// Raw reports whether the tree was built without a profile.
func (d *Device) Raw() bool { return d.raw }

// Root returns the device tree.
func (d *Device) Root() *model.Container { return d.root }

// Cache returns the device's Snapshot Cache.
func (d *Device) Cache() *snapshot.Cache { return d.cache }

// Index returns the node path index of the tree.
func (d *Device) Index() *model.NodeIndex { return d.index }

// Profile returns the profile the tree was built with.
func (d *Device) Profile() *profile.Profile { return d.profile }

// Stats returns the build statistics.
func (d *Device) Stats() builder.Stats { return d.stats }

// Lookup returns a parameter by node path ("/DEV8000/SIGOUTS/0/ON",
// "sigouts/0/on") or attribute expression ("sigouts[0].on").
func (d *Device) Lookup(keyOrPath string) (*model.Parameter, error) {
	if p, err := d.index.Lookup(keyOrPath); err == nil {
		return p, nil
	}
	return builder.Resolve(d.root, d.serial, keyOrPath)
}

// Snapshot returns the device state, reading it first when update is set.
func (d *Device) Snapshot(ctx context.Context, update bool) (*model.Snapshot, error) {
	return d.root.Snapshot(ctx, update)
}

// IDN reads the identification of the device.
func (d *Device) IDN(ctx context.Context) (IDN, error) {
	fw, err := d.conn.Get(ctx, nodetree.Join(d.serial, "system/fwrevision"))
	if err != nil {
		return IDN{}, fmt.Errorf("read firmware revision: %w", err)
	}
	return IDN{
		Vendor:   Vendor,
		Model:    strings.ToUpper(d.devtype),
		Serial:   d.serial,
		Firmware: fmt.Sprint(fw),
	}, nil
}

// Devices is the lazy serial to device mapping of a session. A device
// object is created on first access.
type Devices struct {
	session *Session
}

// Get returns the device object for serial, creating it on first access.
func (ds *Devices) Get(ctx context.Context, serial string) (*Device, error) {
	s := ds.session
	serial = strings.ToLower(strings.TrimSpace(serial))

	s.mu.Lock()
	if d, ok := s.devices[serial]; ok {
		s.mu.Unlock()
		return d, nil
	}
	closed := s.closed
	props := s.props[serial]
	s.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}

	d, err := s.newDevice(ctx, serial, props)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.devices[serial]; ok {
		return existing, nil
	}
	s.devices[serial] = d
	return d, nil
}

// Has reports whether the device object exists already.
func (ds *Devices) Has(serial string) bool {
	s := ds.session
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.devices[strings.ToLower(serial)]
	return ok
}

// Serials returns the serials of the existing device objects.
func (ds *Devices) Serials() []string { return ds.session.Serials() }

// Len returns the number of existing device objects.
func (ds *Devices) Len() int { return len(ds.session.Serials()) }

func (s *Session) newDevice(ctx context.Context, serial string, props DeviceProperties) (*Device, error) {
	raw, err := s.conn.Get(ctx, nodetree.Join(serial, "features/devtype"))
	if err != nil {
		return nil, fmt.Errorf("read device type of %s: %w", serial, err)
	}
	devtype := strings.TrimSpace(fmt.Sprint(raw))
	family, ok := DeviceType(devtype)
	if !ok {
		return nil, &ConfigError{Serial: serial, Type: devtype, Err: ErrUnsupportedDeviceType}
	}

	nodes, err := s.conn.ListNodes(ctx, nodetree.Join(serial, "*"))
	if err != nil {
		return nil, fmt.Errorf("list nodes of %s: %w", serial, err)
	}

	prof := &profile.Profile{Type: family}
	if !props.Raw {
		prof = s.profiles.For(devtype)
	}

	cache := snapshot.New(s.conn, snapshot.Config{
		Prefix:   serial,
		Logger:   s.cfg.Logger,
		Recorder: s.cfg.SnapshotRecorder,
	})
	root := model.NewContainer(serial, "", cache)
	bcfg := builder.Config{
		Prefix:   serial,
		Conn:     s.conn,
		Batch:    cache,
		Logger:   s.cfg.Logger,
		Recorder: s.cfg.BuildRecorder,
	}
	if sub, ok := s.conn.(connection.Subscriber); ok {
		bcfg.Subscriber = sub
	}
	prof.Apply(&bcfg)

	stats, err := builder.BuildNodes(root, nodes, bcfg)
	if err != nil {
		return nil, fmt.Errorf("build %s: %w", serial, err)
	}
	for _, e := range prof.Extra {
		if err := root.AddParameter(s.extraParameter(serial, e, cache)); err != nil {
			if s.cfg.Logger != nil {
				s.cfg.Logger.Warn("session: extra parameter not added", "serial", serial, "name", e.Name, "error", err)
			}
			continue
		}
		stats.Parameters++
	}

	name := props.Name
	if name == "" {
		name = serial
	}
	s.debugLog("session: device created", "serial", serial, "type", devtype, "parameters", stats.Parameters)
	return &Device{
		serial:  serial,
		devtype: devtype,
		family:  family,
		name:    name,
		raw:     props.Raw,
		conn:    s.conn,
		root:    root,
		cache:   cache,
		index:   model.NewNodeIndex(root, serial),
		profile: prof,
		stats:   stats,
	}, nil
}

func (s *Session) extraParameter(serial string, e profile.Extra, batch model.Batcher) *model.Parameter {
	node := e.NodePath(serial)
	cfg := model.ParameterConfig{
		Metadata: model.ParameterMetadata{
			Name:          e.Name,
			Path:          node,
			Label:         e.Label,
			Doc:           e.Label,
			Unit:          e.Unit,
			SnapshotGet:   true,
			SnapshotValue: true,
		},
		Get:   func(ctx context.Context) (any, error) { return s.conn.Get(ctx, node) },
		Batch: batch,
	}
	if !e.ReadOnly {
		cfg.Set = func(ctx context.Context, v any) (any, error) { return s.conn.Set(ctx, node, v) }
	}
	return model.NewParameter(cfg)
}
