package session

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/zhinst/zhinst-go/pkg/builder"
	"github.com/zhinst/zhinst-go/pkg/connection"
	"github.com/zhinst/zhinst-go/pkg/model"
	"github.com/zhinst/zhinst-go/pkg/nodetree"
	"github.com/zhinst/zhinst-go/pkg/snapshot"
)

// moduleBlacklist lists module nodes never built into the tree.
var moduleBlacklist = []string{"device"}

// Module is a data server module with its parameter tree.
type Module struct {
	name  string
	conn  connection.DeviceConnection
	root  *model.Container
	cache *snapshot.Cache
	index *model.NodeIndex
	stats builder.Stats
}

// Name returns the module name.
func (m *Module) Name() string { return m.name }

// Conn returns the module's connection.
func (m *Module) Conn() connection.DeviceConnection { return m.conn }

// Root returns the module tree.
func (m *Module) Root() *model.Container { return m.root }

// Cache returns the module's Snapshot Cache.
func (m *Module) Cache() *snapshot.Cache { return m.cache }

// Stats returns the build statistics.
func (m *Module) Stats() builder.Stats { return m.stats }

// Lookup returns a parameter by node path or attribute expression.
func (m *Module) Lookup(keyOrPath string) (*model.Parameter, error) {
	if p, err := m.index.Lookup(keyOrPath); err == nil {
		return p, nil
	}
	return builder.Resolve(m.root, m.name, keyOrPath)
}

// Snapshot returns the module state.
func (m *Module) Snapshot(ctx context.Context, update bool) (*model.Snapshot, error) {
	return m.root.Snapshot(ctx, update)
}

// Modules creates and holds the modules of a session. Each module name is
// created once and reused.
type Modules struct {
	session *Session

	mu      sync.Mutex
	modules map[string]*Module
}

// Create returns the module with the given name, creating it on first use.
func (ms *Modules) Create(ctx context.Context, name string) (*Module, error) {
	name = strings.ToLower(strings.Trim(name, "/ "))
	ms.mu.Lock()
	defer ms.mu.Unlock()

	if m, ok := ms.modules[name]; ok {
		return m, nil
	}

	s := ms.session
	factory, ok := s.conn.(connection.ModuleFactory)
	if !ok {
		return nil, ErrNotSupported
	}
	conn, err := factory.CreateModule(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("create module %s: %w", name, err)
	}
	nodes, err := conn.ListNodes(ctx, nodetree.Join(name, "*"))
	if err != nil {
		return nil, fmt.Errorf("list nodes of module %s: %w", name, err)
	}

	cache := snapshot.New(conn, snapshot.Config{
		Prefix:   name,
		Module:   true,
		Logger:   s.cfg.Logger,
		Recorder: s.cfg.SnapshotRecorder,
	})
	root := model.NewContainer(name, "", cache)
	bcfg := builder.Config{
		Prefix:    name,
		Conn:      conn,
		Batch:     cache,
		Blacklist: moduleBlacklist,
		Logger:    s.cfg.Logger,
		Recorder:  s.cfg.BuildRecorder,
	}
	stats, err := builder.BuildNodes(root, nodes, bcfg)
	if err != nil {
		return nil, fmt.Errorf("build module %s: %w", name, err)
	}

	m := &Module{
		name:  name,
		conn:  conn,
		root:  root,
		cache: cache,
		index: model.NewNodeIndex(root, name),
		stats: stats,
	}
	ms.modules[name] = m
	s.debugLog("session: module created", "module", name, "parameters", stats.Parameters)
	return m, nil
}

// Names returns the names of the created modules.
func (ms *Modules) Names() []string {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	out := make([]string, 0, len(ms.modules))
	for name := range ms.modules {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func (ms *Modules) get(name string) (*Module, bool) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	m, ok := ms.modules[name]
	return m, ok
}

func (ms *Modules) reset() {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.modules = make(map[string]*Module)
}
