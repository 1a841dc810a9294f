package metrics

import (
	"context"
	"io"
	"time"

	"github.com/zhinst/zhinst-go/pkg/connection"
	"github.com/zhinst/zhinst-go/pkg/nodetree"
)

// Operation names used for the op label.
const (
	OpListNodes   = "list_nodes"
	OpGet         = "get"
	OpSet         = "set"
	OpGetBulk     = "get_bulk"
	OpSubscribe   = "subscribe"
	OpUnsubscribe = "unsubscribe"
	OpPoll        = "poll"
	OpSync        = "sync"
	OpConnect     = "connect_device"
	OpDisconnect  = "disconnect_device"
	OpModule      = "create_module"
)

// Connection counts and times every call made through it. The optional
// connection interfaces are always implemented. Calls the wrapped
// connection does not support fail with connection.ErrNotSupported, except
// device attach and detach which do nothing.
type Connection struct {
	conn      connection.DeviceConnection
	collector *Collector
}

var (
	_ connection.DeviceConnection = (*Connection)(nil)
	_ connection.Subscriber       = (*Connection)(nil)
	_ connection.Poller           = (*Connection)(nil)
	_ connection.Syncer           = (*Connection)(nil)
	_ connection.DeviceConnector  = (*Connection)(nil)
	_ connection.ModuleFactory    = (*Connection)(nil)
	_ io.Closer                   = (*Connection)(nil)
)

// Instrument wraps conn.
func (c *Collector) Instrument(conn connection.DeviceConnection) *Connection {
	return &Connection{conn: conn, collector: c}
}

// Unwrap returns the wrapped connection.
func (ic *Connection) Unwrap() connection.DeviceConnection {
	return ic.conn
}

func (ic *Connection) observe(op string, start time.Time, err error) {
	ic.collector.ObserveOp(op, time.Since(start), err)
}

func (ic *Connection) ListNodes(ctx context.Context, pattern string) (map[string]nodetree.Descriptor, error) {
	start := time.Now()
	nodes, err := ic.conn.ListNodes(ctx, pattern)
	ic.observe(OpListNodes, start, err)
	return nodes, err
}

func (ic *Connection) Get(ctx context.Context, path string) (any, error) {
	start := time.Now()
	v, err := ic.conn.Get(ctx, path)
	ic.observe(OpGet, start, err)
	return v, err
}

func (ic *Connection) Set(ctx context.Context, path string, value any) (any, error) {
	start := time.Now()
	ack, err := ic.conn.Set(ctx, path, value)
	ic.observe(OpSet, start, err)
	return ack, err
}

func (ic *Connection) GetBulk(ctx context.Context, pattern string, opts connection.GetOptions) (map[string]any, error) {
	start := time.Now()
	values, err := ic.conn.GetBulk(ctx, pattern, opts)
	ic.observe(OpGetBulk, start, err)
	if err == nil {
		ic.collector.bulkNodes.Observe(float64(len(values)))
	}
	return values, err
}

func (ic *Connection) Subscribe(ctx context.Context, path string) error {
	sub, ok := ic.conn.(connection.Subscriber)
	if !ok {
		return connection.ErrNotSupported
	}
	start := time.Now()
	err := sub.Subscribe(ctx, path)
	ic.observe(OpSubscribe, start, err)
	return err
}

func (ic *Connection) Unsubscribe(ctx context.Context, path string) error {
	sub, ok := ic.conn.(connection.Subscriber)
	if !ok {
		return connection.ErrNotSupported
	}
	start := time.Now()
	err := sub.Unsubscribe(ctx, path)
	ic.observe(OpUnsubscribe, start, err)
	return err
}

func (ic *Connection) Poll(ctx context.Context, recording, timeout time.Duration) (map[string][]any, error) {
	poller, ok := ic.conn.(connection.Poller)
	if !ok {
		return nil, connection.ErrNotSupported
	}
	start := time.Now()
	data, err := poller.Poll(ctx, recording, timeout)
	ic.observe(OpPoll, start, err)
	return data, err
}

func (ic *Connection) Sync(ctx context.Context) error {
	syncer, ok := ic.conn.(connection.Syncer)
	if !ok {
		return connection.ErrNotSupported
	}
	start := time.Now()
	err := syncer.Sync(ctx)
	ic.observe(OpSync, start, err)
	return err
}

func (ic *Connection) ConnectDevice(ctx context.Context, serial, iface string) error {
	connector, ok := ic.conn.(connection.DeviceConnector)
	if !ok {
		return nil
	}
	start := time.Now()
	err := connector.ConnectDevice(ctx, serial, iface)
	ic.observe(OpConnect, start, err)
	return err
}

func (ic *Connection) DisconnectDevice(ctx context.Context, serial string) error {
	connector, ok := ic.conn.(connection.DeviceConnector)
	if !ok {
		return nil
	}
	start := time.Now()
	err := connector.DisconnectDevice(ctx, serial)
	ic.observe(OpDisconnect, start, err)
	return err
}

// CreateModule wraps the module connection too.
func (ic *Connection) CreateModule(ctx context.Context, name string) (connection.DeviceConnection, error) {
	factory, ok := ic.conn.(connection.ModuleFactory)
	if !ok {
		return nil, connection.ErrNotSupported
	}
	start := time.Now()
	mod, err := factory.CreateModule(ctx, name)
	ic.observe(OpModule, start, err)
	if err != nil {
		return nil, err
	}
	return ic.collector.Instrument(mod), nil
}

// Close closes the wrapped connection when it is an io.Closer.
func (ic *Connection) Close() error {
	if closer, ok := ic.conn.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
