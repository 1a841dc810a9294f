package session

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/zhinst/zhinst-go/pkg/builder"
	"github.com/zhinst/zhinst-go/pkg/connection"
	"github.com/zhinst/zhinst-go/pkg/model"
	"github.com/zhinst/zhinst-go/pkg/profile"
	"github.com/zhinst/zhinst-go/pkg/snapshot"
)

// DefaultInterface is used by ConnectDevice when none is given.
const DefaultInterface = "1GbE"

// deviceTypes lists the device families a tree can be built for.
var deviceTypes = []string{
	"hdawg", "uhfqa", "uhfli", "mfli", "shfqa", "pqsc",
	"shfsg", "shfqc", "shfli", "uhfawg", "hf2", "mfia",
}

// DeviceType returns the family of a device type string as reported by
// features/devtype ("HDAWG8" is "hdawg").
func DeviceType(devtype string) (string, bool) {
	devtype = strings.ToLower(strings.TrimSpace(devtype))
	best := ""
	for _, t := range deviceTypes {
		if strings.HasPrefix(devtype, t) && len(t) > len(best) {
			best = t
		}
	}
	return best, best != ""
}

// Config configures a Session.
type Config struct {
	// Profiles shape device trees. Nil uses the embedded profiles.
	Profiles *profile.Set

	// ConnectConcurrency bounds ConnectDevices. Zero means no limit.
	ConnectConcurrency int

	// Logger is optional.
	Logger *slog.Logger

	// BuildRecorder and SnapshotRecorder are optional.
	BuildRecorder    builder.Recorder
	SnapshotRecorder snapshot.Recorder
}

// ConnectOptions configures ConnectDevice.
type ConnectOptions struct {
	// Interface is the device interface, DefaultInterface when empty.
	Interface string
}

// Session is one connection to a data server.
type Session struct {
	conn     connection.DeviceConnection
	cfg      Config
	profiles *profile.Set

	mu      sync.Mutex
	devices map[string]*Device
	props   map[string]DeviceProperties
	root    *model.Container
	rootIdx *model.NodeIndex
	closed  bool

	modules *Modules
}

// New creates a session over conn.
func New(conn connection.DeviceConnection, cfg Config) (*Session, error) {
	profiles := cfg.Profiles
	if profiles == nil {
		var err error
		if profiles, err = profile.Default(); err != nil {
			return nil, fmt.Errorf("load profiles: %w", err)
		}
	}
	s := &Session{
		conn:     conn,
		cfg:      cfg,
		profiles: profiles,
		devices:  make(map[string]*Device),
		props:    make(map[string]DeviceProperties),
	}
	s.modules = &Modules{session: s, modules: make(map[string]*Module)}
	return s, nil
}

func (s *Session) debugLog(msg string, args ...any) {
	if s.cfg.Logger != nil {
		s.cfg.Logger.Debug(msg, args...)
	}
}

// Conn returns the underlying connection.
func (s *Session) Conn() connection.DeviceConnection { return s.conn }

// Devices returns the lazy device mapping.
func (s *Session) Devices() *Devices { return &Devices{session: s} }

// Modules returns the module handler.
func (s *Session) Modules() *Modules { return s.modules }

// SetDeviceProperties registers properties applied when the device object
// is created. Properties of an existing device are not changed.
func (s *Session) SetDeviceProperties(serial string, props DeviceProperties) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.props[strings.ToLower(serial)] = props
}

// ConnectDevice attaches a device to the data server and returns its
// device object. The tree is built on first connect only.
func (s *Session) ConnectDevice(ctx context.Context, serial string, opts ConnectOptions) (*Device, error) {
	serial = strings.ToLower(strings.TrimSpace(serial))
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	if connector, ok := s.conn.(connection.DeviceConnector); ok {
		iface := opts.Interface
		if iface == "" {
			iface = DefaultInterface
		}
		if err := connector.ConnectDevice(ctx, serial, iface); err != nil {
			return nil, fmt.Errorf("connect %s: %w", serial, err)
		}
	}
	return s.Devices().Get(ctx, serial)
}

// ConnectDevices connects several devices concurrently. On error the
// devices connected so far stay connected.
func (s *Session) ConnectDevices(ctx context.Context, serials []string, opts ConnectOptions) ([]*Device, error) {
	out := make([]*Device, len(serials))
	g, gctx := errgroup.WithContext(ctx)
	if s.cfg.ConnectConcurrency > 0 {
		g.SetLimit(s.cfg.ConnectConcurrency)
	}
	for i, serial := range serials {
		g.Go(func() error {
			d, err := s.ConnectDevice(gctx, serial, opts)
			if err != nil {
				return err
			}
			out[i] = d
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// DisconnectDevice detaches a device and drops its device object.
func (s *Session) DisconnectDevice(ctx context.Context, serial string) error {
	serial = strings.ToLower(serial)
	s.mu.Lock()
	delete(s.devices, serial)
	s.mu.Unlock()

	if connector, ok := s.conn.(connection.DeviceConnector); ok {
		if err := connector.DisconnectDevice(ctx, serial); err != nil {
			return fmt.Errorf("disconnect %s: %w", serial, err)
		}
	}
	return nil
}

// Poll records subscribed data and returns it keyed by parameter. Data for
// nodes outside any known tree is dropped.
func (s *Session) Poll(ctx context.Context, recording, timeout time.Duration) (map[*model.Parameter][]any, error) {
	poller, ok := s.conn.(connection.Poller)
	if !ok {
		return nil, ErrNotSupported
	}
	raw, err := poller.Poll(ctx, recording, timeout)
	if err != nil {
		return nil, err
	}

	out := make(map[*model.Parameter][]any, len(raw))
	for path, values := range raw {
		p, err := s.lookup(path)
		if err != nil {
			s.debugLog("session: polled node not in tree", "node", path)
			continue
		}
		out[p] = values
	}
	return out, nil
}

// lookup resolves an absolute node path against the built trees.
func (s *Session) lookup(path string) (*model.Parameter, error) {
	first := strings.SplitN(strings.Trim(strings.ToLower(path), "/"), "/", 2)[0]

	s.mu.Lock()
	dev := s.devices[first]
	rootIdx := s.rootIdx
	s.mu.Unlock()

	if dev != nil {
		return dev.index.Lookup(path)
	}
	if m, ok := s.modules.get(first); ok {
		return m.index.Lookup(path)
	}
	if rootIdx != nil {
		return rootIdx.Lookup(path)
	}
	return nil, fmt.Errorf("%w: %s", model.ErrNodeNotFound, path)
}

// Sync blocks until all pending writes have reached the devices.
func (s *Session) Sync(ctx context.Context) error {
	syncer, ok := s.conn.(connection.Syncer)
	if !ok {
		return ErrNotSupported
	}
	return syncer.Sync(ctx)
}

// Root returns the tree of the session-level nodes ("/zi/..."). It is built
// on first use.
func (s *Session) Root(ctx context.Context) (*model.Container, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.root != nil {
		return s.root, nil
	}

	nodes, err := s.conn.ListNodes(ctx, "/zi/*")
	if err != nil {
		return nil, fmt.Errorf("list session nodes: %w", err)
	}
	cache := snapshot.New(s.conn, snapshot.Config{
		Logger:   s.cfg.Logger,
		Recorder: s.cfg.SnapshotRecorder,
	})
	root := model.NewContainer("session", "", cache)
	bcfg := builder.Config{
		Conn:     s.conn,
		Batch:    cache,
		Logger:   s.cfg.Logger,
		Recorder: s.cfg.BuildRecorder,
	}
	if sub, ok := s.conn.(connection.Subscriber); ok {
		bcfg.Subscriber = sub
	}
	if _, err := builder.BuildNodes(root, nodes, bcfg); err != nil {
		return nil, err
	}
	s.root = root
	s.rootIdx = model.NewNodeIndex(root, "")
	return root, nil
}

// Serials returns the serials of the device objects created so far.
func (s *Session) Serials() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.devices))
	for serial := range s.devices {
		out = append(out, serial)
	}
	sort.Strings(out)
	return out
}

// Close drops all device and module objects. The connection is closed when
// it implements io.Closer.
func (s *Session) Close() error {
	s.mu.Lock()
	s.closed = true
	s.devices = make(map[string]*Device)
	s.mu.Unlock()
	s.modules.reset()

	if c, ok := s.conn.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}

func (s *Session) checkOpen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}
