package snapshot

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/zhinst/zhinst-go/pkg/connection"
	"github.com/zhinst/zhinst-go/pkg/model"
	"github.com/zhinst/zhinst-go/pkg/nodetree"
)

// BulkGetter is the part of a connection the cache needs.
type BulkGetter interface {
	GetBulk(ctx context.Context, pattern string, opts connection.GetOptions) (map[string]any, error)
}

// Recorder receives snapshot statistics.
type Recorder interface {
	ObserveSnapshot(prefix string, d time.Duration, nodes int, err error)
	ObserveSnapshotRead(prefix string, hit bool)
}

// Config configures a Cache.
type Config struct {
	// Prefix is the device serial or module name. Empty for the session
	// root.
	Prefix string

	// Module selects the reduced bulk-read flag set modules understand.
	Module bool

	// Logger is optional.
	Logger *slog.Logger

	// Recorder is optional.
	Recorder Recorder
}

// Cache serves parameter reads from one bulk read while a snapshot scope is
// open. It implements model.Batcher.
//
// Scopes are reentrant on one call chain; concurrent snapshots of the same
// device are not batched together; the second one falls back to individual
// reads.
type Cache struct {
	conn     BulkGetter
	prefix   string
	opts     connection.GetOptions
	logger   *slog.Logger
	recorder Recorder

	mu      sync.Mutex
	running bool
	values  map[string]any
	start   time.Time
}

var _ model.Batcher = (*Cache)(nil)

// New creates a cache for conn.
func New(conn BulkGetter, cfg Config) *Cache {
	opts := connection.DeviceGetOptions()
	if cfg.Module {
		opts = connection.ModuleGetOptions()
	}
	return &Cache{
		conn:     conn,
		prefix:   strings.ToLower(strings.Trim(cfg.Prefix, "/")),
		opts:     opts,
		logger:   cfg.Logger,
		recorder: cfg.Recorder,
	}
}

func (c *Cache) debugLog(msg string, args ...any) {
	if c.logger != nil {
		c.logger.Debug(msg, args...)
	}
}

// Options returns the flags passed to GetBulk.
func (c *Cache) Options() connection.GetOptions { return c.opts }

// Pattern returns the bulk-read pattern for a device-relative sub-path.
func (c *Cache) Pattern(name string) string {
	base := nodetree.Join(c.prefix, name)
	if base == "/" {
		return "/*"
	}
	return base + "/*"
}

// Running reports whether a snapshot scope is open.
func (c *Cache) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// Begin opens a snapshot scope for the device-relative path name. Only the
// outermost call reads; nested calls return owner=false. When the bulk read
// fails the scope is torn down and the connection error is returned as is.
func (c *Cache) Begin(ctx context.Context, name string) (bool, error) {
	c.mu.Lock()
	if c.running || c.conn == nil {
		c.mu.Unlock()
		return false, nil
	}
	c.running = true
	c.start = time.Now()
	c.mu.Unlock()

	pattern := c.Pattern(name)
	begin := time.Now()
	raw, err := c.conn.GetBulk(ctx, pattern, c.opts)
	if c.recorder != nil {
		c.recorder.ObserveSnapshot(c.prefix, time.Since(begin), len(raw), err)
	}
	if err != nil {
		c.End(true)
		c.debugLog("snapshot: bulk read failed", "pattern", pattern, "error", err)
		return false, err
	}

	values := make(map[string]any, len(raw))
	for k, v := range raw {
		values[strings.ToLower(k)] = v
	}

	c.mu.Lock()
	c.values = values
	c.mu.Unlock()

	c.debugLog("snapshot: started", "pattern", pattern, "nodes", len(values))
	return true, nil
}

// End closes a scope opened by Begin. Only the owner clears the batch.
func (c *Cache) End(owner bool) {
	if !owner {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.running = false
	c.values = nil
}

// Scoped runs fn inside a snapshot scope.
func (c *Cache) Scoped(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	owner, err := c.Begin(ctx, name)
	if err != nil {
		return err
	}
	defer c.End(owner)
	return fn(ctx)
}

// Read returns p's value from the open batch and updates p's cached value
// with the batch timestamp. Without a batch entry it calls fallback.
func (c *Cache) Read(ctx context.Context, p *model.Parameter, fallback model.ReadFunc) (any, error) {
	c.mu.Lock()
	raw, found := c.values[strings.ToLower(p.NodePath())]
	start := c.start
	c.mu.Unlock()

	if found {
		if v, ok := Unwrap(raw); ok {
			v = model.CoerceValue(v)
			if cv, ok := v.(complex128); ok {
				v = model.FormatComplex(cv)
			}
			p.UpdateCache(v, start)
			c.observeRead(true)
			return v, nil
		}
	}
	c.observeRead(false)
	return fallback(ctx)
}

func (c *Cache) observeRead(hit bool) {
	if c.recorder != nil {
		c.recorder.ObserveSnapshotRead(c.prefix, hit)
	}
}

// Unwrap extracts the value from a bulk-read entry. Both the
// {"value": [v, ...]} and the bare [v, ...] shapes are accepted.
func Unwrap(raw any) (any, bool) {
	switch e := raw.(type) {
	case map[string]any:
		return first(e["value"])
	case map[any]any:
		return first(e["value"])
	case []any:
		return first(e)
	default:
		return nil, false
	}
}

func first(v any) (any, bool) {
	switch s := v.(type) {
	case []any:
		if len(s) == 0 {
			return nil, false
		}
		return s[0], true
	case []float64:
		if len(s) == 0 {
			return nil, false
		}
		return s[0], true
	case []int64:
		if len(s) == 0 {
			return nil, false
		}
		return s[0], true
	default:
		return nil, false
	}
}
