package connection

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/zhinst/zhinst-go/pkg/nodetree"
	"gopkg.in/yaml.v3"
)

// Fixture describes the nodes and values served by a Simulator.
//
//	devices:
//	  dev1234:
//	    nodes_file: mfli.json
//	    values:
//	      features/devtype: MFLI
//	modules:
//	  daq:
//	    nodes: {...}
//	zi:
//	  nodes: {...}
type Fixture struct {
	Devices map[string]Namespace `yaml:"devices"`
	Modules map[string]Namespace `yaml:"modules"`
	Session *Namespace           `yaml:"zi"`
}

// Namespace is one device, module or the session root.
type Namespace struct {
	// Nodes is a flat nodetree. Keys may be absolute or relative to the
	// namespace.
	Nodes map[string]nodetree.Descriptor `yaml:"nodes"`

	// NodesFile loads additional nodes from a YAML or JSON file, relative
	// to the fixture file.
	NodesFile string `yaml:"nodes_file"`

	// Values are initial node values keyed like Nodes. A {re, im} mapping
	// is read as a complex number.
	Values map[string]any `yaml:"values"`
}

// LoadFixture reads a fixture file and resolves nodes_file references.
func LoadFixture(path string) (*Fixture, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	fx, err := DecodeFixture(f)
	if err != nil {
		return nil, err
	}
	if err := fx.resolveFiles(filepath.Dir(path)); err != nil {
		return nil, err
	}
	return fx, nil
}

// DecodeFixture reads a fixture. nodes_file references are not resolved.
func DecodeFixture(r io.Reader) (*Fixture, error) {
	var fx Fixture
	if err := yaml.NewDecoder(r).Decode(&fx); err != nil && err != io.EOF {
		return nil, fmt.Errorf("decode fixture: %w", err)
	}
	return &fx, nil
}

func (fx *Fixture) resolveFiles(dir string) error {
	load := func(ns Namespace) (Namespace, error) {
		if ns.NodesFile == "" {
			return ns, nil
		}
		p := ns.NodesFile
		if !filepath.IsAbs(p) {
			p = filepath.Join(dir, p)
		}
		nodes, err := nodetree.LoadFile(p)
		if err != nil {
			return ns, fmt.Errorf("nodes_file %s: %w", ns.NodesFile, err)
		}
		if ns.Nodes == nil {
			ns.Nodes = make(map[string]nodetree.Descriptor, len(nodes))
		}
		for k, d := range nodes {
			ns.Nodes[k] = d
		}
		ns.NodesFile = ""
		return ns, nil
	}
	for name, ns := range fx.Devices {
		resolved, err := load(ns)
		if err != nil {
			return err
		}
		fx.Devices[name] = resolved
	}
	for name, ns := range fx.Modules {
		resolved, err := load(ns)
		if err != nil {
			return err
		}
		fx.Modules[name] = resolved
	}
	if fx.Session != nil {
		resolved, err := load(*fx.Session)
		if err != nil {
			return err
		}
		fx.Session = &resolved
	}
	return nil
}

// SimulatorConfig configures a Simulator.
type SimulatorConfig struct {
	// RequireConnect rejects device node access until ConnectDevice was
	// called for the device.
	RequireConnect bool

	// LegacyBulkShape makes GetBulk return bare [value] entries instead of
	// {"timestamp", "value"} mappings.
	LegacyBulkShape bool

	// Latency is added to every call.
	Latency time.Duration

	// Logger is optional.
	Logger *slog.Logger
}

// SetCall records one Set on the simulator.
type SetCall struct {
	Path  string
	Value any
}

// CallCounts counts the calls served by the simulator.
type CallCounts struct {
	ListNodes int
	Get       int
	Set       int
	GetBulk   int
	Sync      int
}

// Simulator is an in-memory data server. It implements DeviceConnection
// and every optional capability.
type Simulator struct {
	config SimulatorConfig

	mu         sync.Mutex
	nodes      map[string]nodetree.Descriptor
	values     map[string]any
	devices    map[string]bool
	modules    map[string]bool
	subscribed map[string]bool
	pending    map[string][]any
	sets       []SetCall
	counts     CallCounts
	start      time.Time
}

// NewSimulator creates a simulator serving fx.
func NewSimulator(fx *Fixture, config SimulatorConfig) *Simulator {
	s := &Simulator{
		config:     config,
		nodes:      make(map[string]nodetree.Descriptor),
		values:     make(map[string]any),
		devices:    make(map[string]bool),
		modules:    make(map[string]bool),
		subscribed: make(map[string]bool),
		pending:    make(map[string][]any),
		start:      time.Now(),
	}
	if fx == nil {
		return s
	}
	for serial, ns := range fx.Devices {
		serial = strings.ToLower(serial)
		s.devices[serial] = false
		s.load(serial, ns)
	}
	for name, ns := range fx.Modules {
		name = strings.ToLower(name)
		s.modules[name] = true
		s.load(name, ns)
	}
	if fx.Session != nil {
		s.load("zi", *fx.Session)
	}
	return s
}

func (s *Simulator) load(prefix string, ns Namespace) {
	for raw, d := range ns.Nodes {
		key := s.absolute(prefix, raw)
		if d.Node == "" {
			d.Node = strings.ToUpper(key)
		}
		s.nodes[key] = d
	}
	for raw, v := range ns.Values {
		s.values[s.absolute(prefix, raw)] = fixtureValue(v)
	}
}

func (s *Simulator) absolute(prefix, raw string) string {
	rel := nodetree.StripPrefix(raw, prefix)
	return nodetree.Join(prefix, rel)
}

func fixtureValue(v any) any {
	m, ok := v.(map[string]any)
	if !ok {
		return v
	}
	re, rok := toFloat(m["re"])
	im, iok := toFloat(m["im"])
	if rok && iok {
		return complex(re, im)
	}
	return v
}

func (s *Simulator) debugLog(msg string, args ...any) {
	if s.config.Logger != nil {
		s.config.Logger.Debug(msg, args...)
	}
}

func (s *Simulator) wait(ctx context.Context) error {
	if s.config.Latency <= 0 {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(s.config.Latency):
		return nil
	}
}

// ListNodes returns the metadata of every node matching pattern.
func (s *Simulator) ListNodes(ctx context.Context, pattern string) (map[string]nodetree.Descriptor, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts.ListNodes++

	out := make(map[string]nodetree.Descriptor)
	for key, d := range s.nodes {
		if matchPattern(pattern, key) {
			out[key] = d
		}
	}
	s.debugLog("simulator: list nodes", "pattern", pattern, "count", len(out))
	return out, nil
}

// Get reads one node.
func (s *Simulator) Get(ctx context.Context, path string) (any, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts.Get++

	key, d, err := s.lookup(path)
	if err != nil {
		return nil, err
	}
	if !d.Properties.CanRead() {
		return nil, fmt.Errorf("%w: %s is write-only", ErrAccessDenied, path)
	}
	return s.valueOf(key, d), nil
}

// Set writes one node and returns the stored value.
func (s *Simulator) Set(ctx context.Context, path string, value any) (any, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts.Set++

	key, d, err := s.lookup(path)
	if err != nil {
		return nil, err
	}
	if !d.Properties.CanWrite() {
		return nil, fmt.Errorf("%w: %s is read-only", ErrAccessDenied, path)
	}
	stored, err := convertValue(d, value)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidValue, path, err)
	}
	s.values[key] = stored
	s.sets = append(s.sets, SetCall{Path: path, Value: value})
	if s.subscribed[key] {
		s.pending[key] = append(s.pending[key], stored)
	}
	s.debugLog("simulator: set", "path", key, "value", stored)
	return stored, nil
}

// GetBulk reads every readable node matching pattern.
func (s *Simulator) GetBulk(ctx context.Context, pattern string, opts GetOptions) (map[string]any, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts.GetBulk++

	ts := uint64(time.Since(s.start).Microseconds())
	out := make(map[string]any)
	for key, d := range s.nodes {
		if !matchPattern(pattern, key) || !d.Properties.CanRead() {
			continue
		}
		if err := s.checkConnected(key); err != nil {
			continue
		}
		switch {
		case opts.ExcludeStreaming && d.Properties.Has(nodetree.PropertyStream):
			continue
		case opts.ExcludeVectors && d.IsVector():
			continue
		case opts.SettingsOnly && !d.Properties.Has(nodetree.PropertySetting):
			continue
		}
		v := s.valueOf(key, d)
		if s.config.LegacyBulkShape {
			out[key] = []any{v}
		} else {
			out[key] = map[string]any{"timestamp": ts, "value": []any{v}}
		}
	}
	s.debugLog("simulator: bulk get", "pattern", pattern, "count", len(out))
	return out, nil
}

// Subscribe marks every node matching path as subscribed.
func (s *Simulator) Subscribe(ctx context.Context, path string) error {
	return s.subscribe(ctx, path, true)
}

// Unsubscribe reverts Subscribe.
func (s *Simulator) Unsubscribe(ctx context.Context, path string) error {
	return s.subscribe(ctx, path, false)
}

func (s *Simulator) subscribe(ctx context.Context, path string, on bool) error {
	if err := s.wait(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	matched := 0
	for key := range s.nodes {
		if key == strings.ToLower(path) || matchPattern(path, key) {
			matched++
			if on {
				s.subscribed[key] = true
			} else {
				delete(s.subscribed, key)
				delete(s.pending, key)
			}
		}
	}
	if matched == 0 {
		return fmt.Errorf("%w: %s", ErrNoSuchNode, path)
	}
	return nil
}

// Poll waits for the recording time and returns the values written to
// subscribed nodes since the last poll.
func (s *Simulator) Poll(ctx context.Context, recording, timeout time.Duration) (map[string][]any, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(recording):
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.pending
	s.pending = make(map[string][]any)
	return out, nil
}

// Sync is a no-op barrier.
func (s *Simulator) Sync(ctx context.Context) error {
	if err := s.wait(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts.Sync++
	return nil
}

// ConnectDevice attaches a device known to the fixture.
func (s *Simulator) ConnectDevice(ctx context.Context, serial, iface string) error {
	if err := s.wait(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	serial = strings.ToLower(serial)
	if _, ok := s.devices[serial]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownDevice, serial)
	}
	s.devices[serial] = true
	s.debugLog("simulator: device connected", "serial", serial, "interface", iface)
	return nil
}

// DisconnectDevice detaches a device.
func (s *Simulator) DisconnectDevice(ctx context.Context, serial string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	serial = strings.ToLower(serial)
	if _, ok := s.devices[serial]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownDevice, serial)
	}
	s.devices[serial] = false
	return nil
}

// CreateModule returns the simulator itself for modules known to the
// fixture; module nodes live in the same namespace.
func (s *Simulator) CreateModule(ctx context.Context, name string) (DeviceConnection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.modules[strings.ToLower(name)] {
		return nil, fmt.Errorf("%w: %s", ErrUnknownModule, name)
	}
	return s, nil
}

// Devices returns the serials known to the fixture.
func (s *Simulator) Devices() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.devices))
	for serial := range s.devices {
		out = append(out, serial)
	}
	sort.Strings(out)
	return out
}

// SetValue changes a node value behind the client's back.
func (s *Simulator) SetValue(path string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[strings.ToLower(path)] = value
}

// Counts returns the number of calls served so far.
func (s *Simulator) Counts() CallCounts {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts
}

// SetCalls returns every Set served so far.
func (s *Simulator) SetCalls() []SetCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]SetCall, len(s.sets))
	copy(out, s.sets)
	return out
}

func (s *Simulator) lookup(path string) (string, nodetree.Descriptor, error) {
	key := strings.ToLower(path)
	if !strings.HasPrefix(key, "/") {
		key = "/" + key
	}
	d, ok := s.nodes[key]
	if !ok {
		return "", d, fmt.Errorf("%w: %s", ErrNoSuchNode, path)
	}
	if err := s.checkConnected(key); err != nil {
		return "", d, err
	}
	return key, d, nil
}

func (s *Simulator) checkConnected(key string) error {
	if !s.config.RequireConnect {
		return nil
	}
	serial := strings.SplitN(strings.TrimPrefix(key, "/"), "/", 2)[0]
	if connected, ok := s.devices[serial]; ok && !connected {
		return fmt.Errorf("%w: %s", ErrDeviceNotConnected, serial)
	}
	return nil
}

func (s *Simulator) valueOf(key string, d nodetree.Descriptor) any {
	if v, ok := s.values[key]; ok {
		return v
	}
	return zeroValue(d)
}

func zeroValue(d nodetree.Descriptor) any {
	switch d.ValueType() {
	case nodetree.ValueInteger:
		return int64(0)
	case nodetree.ValueDouble:
		return float64(0)
	case nodetree.ValueComplex, nodetree.ValueSample:
		return complex128(0)
	case nodetree.ValueString:
		return ""
	case nodetree.ValueVector:
		return []float64{}
	default:
		return int64(0)
	}
}

func convertValue(d nodetree.Descriptor, v any) (any, error) {
	switch d.ValueType() {
	case nodetree.ValueInteger:
		f, ok := toFloat(v)
		if !ok {
			return nil, fmt.Errorf("%T is not a number", v)
		}
		return int64(f), nil
	case nodetree.ValueDouble:
		f, ok := toFloat(v)
		if !ok {
			return nil, fmt.Errorf("%T is not a number", v)
		}
		return f, nil
	case nodetree.ValueString:
		if str, ok := v.(string); ok {
			return str, nil
		}
		return fmt.Sprint(v), nil
	default:
		return v, nil
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

// matchPattern reports whether key matches a node pattern. A trailing "*"
// matches everything below the prefix; otherwise the pattern must equal the
// key.
func matchPattern(pattern, key string) bool {
	p := strings.ToLower(strings.TrimSpace(pattern))
	if p == "" || p == "*" || p == "/*" {
		return true
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if strings.HasSuffix(p, "*") {
		prefix := strings.TrimSuffix(p, "*")
		return strings.HasPrefix(key, prefix)
	}
	return key == p || strings.HasPrefix(key, p+"/")
}
