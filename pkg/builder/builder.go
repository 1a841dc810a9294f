package builder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/zhinst/zhinst-go/pkg/model"
	"github.com/zhinst/zhinst-go/pkg/nodetree"
)

// Builder errors.
var (
	ErrUnknownKey = errors.New("key not in nodetree")
	ErrNoRoot     = errors.New("no root container")
)

// complexSample marks demodulator sample nodes, which only accept complex
// values.
var complexSample = regexp.MustCompile(`demods/./sample`)

// DefaultSnapshotBlacklist lists path segments whose nodes are never read in
// bulk.
func DefaultSnapshotBlacklist() []string {
	return []string{"fwlog", "values"}
}

// Node is the read/write surface parameters are wired to.
type Node interface {
	Get(ctx context.Context, path string) (any, error)
	Set(ctx context.Context, path string, value any) (any, error)
}

// Recorder receives build statistics.
type Recorder interface {
	ObserveBuild(prefix string, stats Stats, d time.Duration)
}

// Config configures a build.
type Config struct {
	// Prefix is the device serial, module name, or empty for the session
	// root. It is stripped from node paths.
	Prefix string

	// Conn serves parameter get and set. Without it parameters are built
	// as metadata-only placeholders.
	Conn Node

	// Batch is attached to every container, list and parameter.
	Batch model.Batcher

	// Subscriber is attached to every parameter.
	Subscriber model.Subscriber

	// Keys restricts the build to these top-level keys. Empty builds all.
	Keys []string

	// Blacklist skips nodes by device-relative path or path prefix
	// ("awgs", "system/fwlog"). A leading slash is ignored.
	Blacklist []string

	// SnapshotBlacklist lists path segments excluded from snapshots.
	// Nil uses DefaultSnapshotBlacklist.
	SnapshotBlacklist []string

	// ForceList and ForceFlat override the enumerated-leaf rule for keys
	// matching these patterns. A pattern is a device-relative path with
	// "*" for indices ("sigouts/*/enables") or a bare key name.
	ForceList []string
	ForceFlat []string

	// Logger is optional.
	Logger *slog.Logger

	// Recorder is optional.
	Recorder Recorder
}

// Stats counts what a build produced.
type Stats struct {
	Parameters int
	Containers int
	Lists      int
	Skipped    int
	Failures   int
}

type builder struct {
	cfg       Config
	blacklist []string
	snapshot  map[string]bool
	stats     Stats
}

func newBuilder(cfg Config) *builder {
	b := &builder{cfg: cfg, snapshot: make(map[string]bool)}
	for _, entry := range cfg.Blacklist {
		entry = strings.ToLower(strings.Trim(entry, "/"))
		if entry != "" {
			b.blacklist = append(b.blacklist, entry)
		}
	}
	segs := cfg.SnapshotBlacklist
	if segs == nil {
		segs = DefaultSnapshotBlacklist()
	}
	for _, s := range segs {
		b.snapshot[strings.ToLower(s)] = true
	}
	return b
}

func (b *builder) warn(msg string, args ...any) {
	if b.cfg.Logger != nil {
		b.cfg.Logger.Warn(msg, args...)
	}
}

func (b *builder) debugLog(msg string, args ...any) {
	if b.cfg.Logger != nil {
		b.cfg.Logger.Debug(msg, args...)
	}
}

// Build attaches the nodes of tree to root. It must be called once per
// root; a second call double-attaches and fails on every name.
func Build(root *model.Container, tree *nodetree.Tree, cfg Config) (Stats, error) {
	return build(root, tree, cfg, nil)
}

func build(root *model.Container, tree *nodetree.Tree, cfg Config, rejected []*nodetree.NodeError) (Stats, error) {
	if root == nil {
		return Stats{}, ErrNoRoot
	}
	start := time.Now()
	b := newBuilder(cfg)
	for _, e := range rejected {
		b.warn("builder: node rejected", "node", e.Path, "error", e.Err)
		b.stats.Failures++
	}

	if len(cfg.Keys) == 0 {
		b.level(root, tree, "")
	} else {
		for _, key := range cfg.Keys {
			_ = b.initSubmodule(root, tree, key)
		}
	}

	if cfg.Recorder != nil {
		cfg.Recorder.ObserveBuild(b.cfg.Prefix, b.stats, time.Since(start))
	}
	b.debugLog("builder: tree built",
		"prefix", cfg.Prefix,
		"parameters", b.stats.Parameters,
		"containers", b.stats.Containers,
		"lists", b.stats.Lists,
		"failures", b.stats.Failures)
	return b.stats, nil
}

// BuildNodes groups a flat node mapping and builds it. Nodes that cannot be
// placed in the tree are logged and counted as failures.
func BuildNodes(root *model.Container, nodes map[string]nodetree.Descriptor, cfg Config) (Stats, error) {
	tree, errs := nodetree.Dictify(nodes, cfg.Prefix)
	return build(root, tree, cfg, errs)
}

// InitSubmodule builds only the top-level key of tree. A missing key is
// logged with the available keys and returned as ErrUnknownKey.
func InitSubmodule(root *model.Container, tree *nodetree.Tree, key string, cfg Config) (Stats, error) {
	if root == nil {
		return Stats{}, ErrNoRoot
	}
	b := newBuilder(cfg)
	err := b.initSubmodule(root, tree, key)
	return b.stats, err
}

func (b *builder) initSubmodule(root *model.Container, tree *nodetree.Tree, key string) error {
	key = strings.ToLower(key)
	seg := nodetree.Name(key)
	if tree.Child(seg) == nil {
		available := tree.TopLevelKeys()
		sort.Strings(available)
		b.warn("builder: key not in nodetree", "key", key, "available", available)
		return fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}
	b.entry(root, tree, seg, "")
	return nil
}

// level builds every child of t into parent. rel is the device-relative
// path of parent.
func (b *builder) level(parent *model.Container, t *nodetree.Tree, rel string) {
	for _, key := range t.Keys() {
		b.entry(parent, t, key, rel)
	}
}

func (b *builder) entry(parent *model.Container, t *nodetree.Tree, key nodetree.Segment, rel string) {
	child := t.Child(key)
	childRel := joinRel(rel, key.String())
	if b.blacklisted(childRel) {
		b.stats.Skipped += child.Count()
		return
	}
	name := sanitize(key.String())

	switch {
	case child.IsTerminal():
		b.parameter(parent, name, child.Descriptor)

	case child.Enumerated() && b.flat(child, childRel):
		for _, i := range child.Indices() {
			leaf := child.Child(nodetree.Index(i))
			if b.blacklisted(joinRel(childRel, strconv.Itoa(i))) {
				b.stats.Skipped++
				continue
			}
			b.parameter(parent, name+strconv.Itoa(i), leaf.Descriptor)
		}

	case child.Enumerated():
		b.list(parent, child, name, childRel)

	default:
		c := model.NewContainer(b.unique(parent, name), childRel, b.cfg.Batch)
		if err := parent.AddSubmodule(c.Name(), c); err != nil {
			b.fail(childRel, err)
			return
		}
		b.stats.Containers++
		b.level(c, child, childRel)
	}
}

func (b *builder) list(parent *model.Container, t *nodetree.Tree, name, rel string) {
	list := model.NewIndexedList(b.unique(parent, name), rel, b.cfg.Batch)
	for _, i := range t.Indices() {
		itemRel := joinRel(rel, strconv.Itoa(i))
		sub := t.Child(nodetree.Index(i))
		if b.blacklisted(itemRel) {
			b.stats.Skipped += sub.Count()
			continue
		}
		item := model.NewContainer(name+strconv.Itoa(i), itemRel, b.cfg.Batch)
		if sub.IsTerminal() {
			b.parameter(item, "value", sub.Descriptor)
		} else {
			b.level(item, sub, itemRel)
		}
		if err := list.Append(i, item); err != nil {
			b.fail(itemRel, err)
			continue
		}
		b.stats.Containers++
	}
	list.Seal()
	if err := parent.AddSubmodule(list.Name(), list); err != nil {
		b.fail(rel, err)
		return
	}
	b.stats.Lists++
}

// flat decides between flat enumerated parameters and a list.
func (b *builder) flat(t *nodetree.Tree, rel string) bool {
	switch {
	case matchAny(b.cfg.ForceFlat, rel):
		return allTerminal(t)
	case matchAny(b.cfg.ForceList, rel):
		return false
	default:
		return allTerminal(t)
	}
}

func allTerminal(t *nodetree.Tree) bool {
	for _, k := range t.Keys() {
		if !t.Child(k).IsTerminal() {
			return false
		}
	}
	return true
}

func (b *builder) parameter(parent *model.Container, name string, d *nodetree.Descriptor) {
	rel := nodetree.StripPrefix(d.Node, b.cfg.Prefix)
	p := model.NewParameter(b.parameterConfig(b.unique(parent, name), rel, d))
	if err := parent.AddParameter(p); err != nil {
		b.stats.Failures++
		b.warn("builder: parameter could not be added",
			"node", d.Node,
			"name", p.Name(),
			"properties", d.Properties.String(),
			"type", d.Type,
			"unit", d.Unit,
			"description", d.Description,
			"error", err)
		return
	}
	b.stats.Parameters++
}

func (b *builder) parameterConfig(name, rel string, d *nodetree.Descriptor) model.ParameterConfig {
	node := d.Node
	meta := model.ParameterMetadata{
		Name:  name,
		Path:  node,
		Label: d.Description,
		Doc:   d.Doc(),
		Unit:  d.PhysicalUnit(),
	}
	if complexSample.MatchString(rel) {
		meta.Domain = model.DomainComplex
	}
	include := b.snapshotted(rel, d)
	meta.SnapshotGet = include
	meta.SnapshotValue = include

	cfg := model.ParameterConfig{Metadata: meta, Batch: b.cfg.Batch}
	if conn := b.cfg.Conn; conn != nil {
		if d.Properties.CanRead() {
			cfg.Get = func(ctx context.Context) (any, error) { return conn.Get(ctx, node) }
		}
		if d.Properties.CanWrite() {
			cfg.Set = func(ctx context.Context, v any) (any, error) { return conn.Set(ctx, node, v) }
		}
	}
	if b.cfg.Subscriber != nil {
		cfg.Subscriber = b.cfg.Subscriber
		cfg.Metadata.Access |= model.AccessSubscribe
	}
	return cfg
}

// snapshotted reports whether a node takes part in snapshots.
func (b *builder) snapshotted(rel string, d *nodetree.Descriptor) bool {
	if !d.Properties.CanRead() || d.Properties.Has(nodetree.PropertyStream) || d.IsVector() {
		return false
	}
	for _, seg := range nodetree.Split(rel) {
		if b.snapshot[seg] {
			return false
		}
	}
	return true
}

func (b *builder) blacklisted(rel string) bool {
	for _, entry := range b.blacklist {
		if rel == entry || strings.HasPrefix(rel, entry+"/") {
			return true
		}
	}
	return false
}

// unique appends "_" until name is free on parent.
func (b *builder) unique(parent *model.Container, name string) string {
	for parent.Has(name) {
		name += "_"
	}
	return name
}

func (b *builder) fail(rel string, err error) {
	b.stats.Failures++
	b.warn("builder: node could not be added", "path", rel, "error", err)
}

// sanitize turns a path segment into an attribute name.
func sanitize(name string) string {
	if name == "" {
		return name
	}
	if unicode.IsDigit(rune(name[0])) {
		return "_" + name
	}
	return name
}

func joinRel(rel, seg string) string {
	if rel == "" {
		return seg
	}
	return rel + "/" + seg
}

// matchAny matches rel against patterns. Indices in rel match "*".
func matchAny(patterns []string, rel string) bool {
	base := path.Base(rel)
	for _, p := range patterns {
		p = strings.ToLower(strings.Trim(p, "/"))
		if p == base {
			return true
		}
		if ok, _ := path.Match(p, rel); ok {
			return true
		}
	}
	return false
}
