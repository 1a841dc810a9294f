package inspect

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/zhinst/zhinst-go/pkg/connection"
	"github.com/zhinst/zhinst-go/pkg/model"
	"github.com/zhinst/zhinst-go/pkg/nodetree"
	"github.com/zhinst/zhinst-go/pkg/snapshot"
)

// RemoteInspector reads and writes nodes by path directly on a connection,
// without building a parameter tree.
type RemoteInspector struct {
	conn   connection.DeviceConnection
	serial string
}

// NewRemoteInspector creates a remote inspector. serial is used for paths
// without a device.
func NewRemoteInspector(conn connection.DeviceConnection, serial string) *RemoteInspector {
	return &RemoteInspector{conn: conn, serial: serial}
}

// Serial returns the default device serial.
func (r *RemoteInspector) Serial() string { return r.serial }

// Read reads a single node.
func (r *RemoteInspector) Read(ctx context.Context, path *Path) (any, error) {
	if path == nil {
		return nil, ErrNilPath
	}
	if path.IsPartial() {
		return nil, fmt.Errorf("%w: %s names a device, use ReadAll", ErrNotParameter, path.Raw)
	}
	v, err := r.conn.Get(ctx, path.NodePath(r.serial))
	if err != nil {
		return nil, err
	}
	return model.CoerceValue(v), nil
}

// ReadAll reads every node below path in one bulk read. A path naming a
// single node is read directly. Keys are lower-cased node paths.
func (r *RemoteInspector) ReadAll(ctx context.Context, path *Path) (map[string]any, error) {
	if path == nil {
		return nil, ErrNilPath
	}
	node := path.NodePath(r.serial)
	raw, err := r.conn.GetBulk(ctx, pattern(node), connection.DeviceGetOptions())
	if err != nil {
		return nil, err
	}
	out := make(map[string]any, len(raw))
	for k, v := range raw {
		if value, ok := snapshot.Unwrap(v); ok {
			out[k] = model.CoerceValue(value)
		}
	}
	if len(out) == 0 && !path.IsPartial() {
		v, err := r.Read(ctx, path)
		if err != nil {
			return nil, err
		}
		out[strings.ToLower(node)] = v
	}
	return out, nil
}

// Write sets a single node and returns the acknowledged value.
func (r *RemoteInspector) Write(ctx context.Context, path *Path, value any) (any, error) {
	if path == nil {
		return nil, ErrNilPath
	}
	if path.IsPartial() {
		return nil, fmt.Errorf("%w: %s", ErrNotParameter, path.Raw)
	}
	return r.conn.Set(ctx, path.NodePath(r.serial), value)
}

// List returns the node paths below path, sorted, with their metadata.
func (r *RemoteInspector) List(ctx context.Context, path *Path) ([]string, map[string]nodetree.Descriptor, error) {
	if path == nil {
		return nil, nil, ErrNilPath
	}
	nodes, err := r.conn.ListNodes(ctx, pattern(path.NodePath(r.serial)))
	if err != nil {
		return nil, nil, err
	}
	keys := make([]string, 0, len(nodes))
	for k := range nodes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nodes, nil
}

func pattern(node string) string {
	if node == "/" {
		return "/*"
	}
	return node + "/*"
}
