package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/google/uuid"

	"github.com/zhinst/zhinst-go/pkg/connection"
	"github.com/zhinst/zhinst-go/pkg/log"
	"github.com/zhinst/zhinst-go/pkg/nodetree"
	"github.com/zhinst/zhinst-go/pkg/version"
	"github.com/zhinst/zhinst-go/pkg/wire"
)

// ClientConfig configures a Client.
type ClientConfig struct {
	// MaxMessageSize is the maximum frame size. Default 16 MiB.
	MaxMessageSize uint32

	// DialTimeout bounds one dial and hello. Default 10s.
	DialTimeout time.Duration

	// RequestTimeout bounds a call whose context has no deadline.
	// Zero means no limit.
	RequestTimeout time.Duration

	// Backoff is the retry policy of Dial and of re-dials. Its MaxElapsed
	// bounds Dial; zero retries until the context ends.
	Backoff connection.BackoffConfig

	// Version is the client's LabOne version. Default version.Current.
	Version string

	// AllowVersionMismatch accepts a data server of another release.
	AllowVersionMismatch bool

	// AutoReconnect re-dials in the background after the connection drops.
	AutoReconnect bool

	// Logger is optional.
	Logger *slog.Logger

	// ProtocolLogger receives frame and message events (optional).
	ProtocolLogger log.Logger
}

// DefaultClientConfig returns the default client configuration.
func DefaultClientConfig() ClientConfig {
	b := connection.DefaultBackoffConfig()
	b.MaxElapsed = 30 * time.Second
	return ClientConfig{
		DialTimeout: 10 * time.Second,
		Backoff:     b,
		Version:     version.Current,
	}
}

// Client is a DeviceConnection talking to a remote data server.
type Client struct {
	config  ClientConfig
	address string
	manager *connection.Manager

	nextID atomic.Uint32

	mu            sync.Mutex
	conn          net.Conn
	framer        *Framer
	connID        string
	serverVersion string
	pending       map[uint32]chan *wire.Response
	ready         bool
	closed        bool
}

// Dial connects to the data server at address, retrying with backoff.
func Dial(ctx context.Context, address string, config ClientConfig) (*Client, error) {
	def := DefaultClientConfig()
	if config.DialTimeout <= 0 {
		config.DialTimeout = def.DialTimeout
	}
	if config.Version == "" {
		config.Version = def.Version
	}
	if config.Backoff == (connection.BackoffConfig{}) {
		config.Backoff = def.Backoff
	}

	c := &Client{
		config:  config,
		address: address,
		pending: make(map[uint32]chan *wire.Response),
	}

	connect := c.connect
	if config.AutoReconnect {
		c.manager = connection.NewManagerWithConfig(c.connect, connection.ManagerConfig{
			Backoff:        config.Backoff,
			AttemptTimeout: config.DialTimeout,
			Logger:         config.Logger,
		})
		connect = c.manager.Connect
	}

	op := func() error {
		err := connect(ctx)
		if errors.Is(err, version.ErrMismatch) || errors.Is(err, connection.ErrConnectionClosed) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, d time.Duration) {
		c.debugLog("client: dial failed, retrying", "addr", address, "delay", d, "error", err)
	}
	b := backoff.WithContext(connection.NewBackOff(config.Backoff), ctx)
	if err := backoff.RetryNotify(op, b, notify); err != nil {
		if c.manager != nil {
			c.manager.Close()
		}
		return nil, fmt.Errorf("dial %s: %w", address, err)
	}
	if c.manager != nil {
		c.manager.StartReconnectLoop()
	}
	return c, nil
}

func (c *Client) debugLog(msg string, args ...any) {
	if c.config.Logger != nil {
		c.config.Logger.Debug(msg, args...)
	}
}

func (c *Client) protoLog(ev log.Event) {
	if c.config.ProtocolLogger != nil {
		ev.LocalRole = log.RoleClient
		c.config.ProtocolLogger.Log(ev)
	}
}

// connect dials once, starts the read loop and exchanges hello.
func (c *Client) connect(ctx context.Context) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return connection.ErrConnectionClosed
	}

	ctx, cancel := context.WithTimeout(ctx, c.config.DialTimeout)
	defer cancel()

	dialer := &net.Dialer{}
	conn, err := dialer.DialContext(ctx, "tcp", c.address)
	if err != nil {
		return fmt.Errorf("dial failed: %w", err)
	}

	connID := uuid.New().String()
	framer := NewFramer(conn, c.config.MaxMessageSize)
	if c.config.ProtocolLogger != nil {
		framer.SetLogger(c.config.ProtocolLogger, connID, log.RoleClient)
	}

	c.mu.Lock()
	c.conn = conn
	c.framer = framer
	c.connID = connID
	c.mu.Unlock()
	go c.readLoop(conn, framer)

	resp, err := c.call(ctx, &wire.Request{Op: wire.OpHello, Version: c.config.Version})
	if err == nil {
		err = version.Check(c.config.Version, resp.Version, c.config.AllowVersionMismatch)
	}
	if err != nil {
		c.drop(conn)
		return err
	}

	c.mu.Lock()
	c.serverVersion = resp.Version
	c.ready = c.conn == conn
	c.mu.Unlock()

	ev := log.StateEvent(connID, log.LayerTransport, log.StateEntityConnection, "", "CONNECTED", "")
	ev.RemoteAddr = c.address
	c.protoLog(ev)
	c.debugLog("client: connected", "addr", c.address, "conn_id", connID, "server_version", resp.Version)
	return nil
}

// drop closes conn if it is still the current connection.
func (c *Client) drop(conn net.Conn) {
	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
		c.framer = nil
		c.ready = false
	}
	c.mu.Unlock()
	conn.Close()
}

func (c *Client) readLoop(conn net.Conn, framer *Framer) {
	for {
		data, err := framer.ReadFrame()
		if err != nil {
			c.lost(conn, err)
			return
		}
		resp, err := wire.DecodeResponse(data)
		if err != nil {
			c.debugLog("client: dropping malformed response", "error", err)
			continue
		}
		c.mu.Lock()
		ch, ok := c.pending[resp.MessageID]
		delete(c.pending, resp.MessageID)
		connID := c.connID
		c.mu.Unlock()
		c.protoLog(log.ResponseEvent(connID, log.DirectionIn, resp, 0))
		if ok {
			ch <- resp
		}
	}
}

// lost fails every pending call and hands the connection to the
// reconnect manager.
func (c *Client) lost(conn net.Conn, err error) {
	c.mu.Lock()
	current := c.conn == conn
	if current {
		c.conn = nil
		c.framer = nil
		c.ready = false
		for id, ch := range c.pending {
			close(ch)
			delete(c.pending, id)
		}
	}
	closed := c.closed
	connID := c.connID
	c.mu.Unlock()
	conn.Close()

	if !current || closed {
		return
	}
	ev := log.StateEvent(connID, log.LayerTransport, log.StateEntityConnection, "CONNECTED", "DISCONNECTED", err.Error())
	ev.RemoteAddr = c.address
	c.protoLog(ev)
	if c.config.Logger != nil {
		c.config.Logger.Warn("data server connection lost", "addr", c.address, "error", err)
	}
	if c.manager != nil {
		c.manager.NotifyConnectionLost()
	}
}

// call sends req and waits for its response. A failed response is returned
// as *connection.RemoteError.
func (c *Client) call(ctx context.Context, req *wire.Request) (*wire.Response, error) {
	if _, ok := ctx.Deadline(); !ok && c.config.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.RequestTimeout)
		defer cancel()
	}

	req.MessageID = c.nextID.Add(1)
	if req.MessageID == 0 {
		req.MessageID = c.nextID.Add(1)
	}
	data, err := wire.EncodeRequest(req)
	if err != nil {
		return nil, err
	}

	ch := make(chan *wire.Response, 1)
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrConnectionClosed
	}
	framer := c.framer
	if framer == nil {
		c.mu.Unlock()
		return nil, ErrNotConnected
	}
	c.pending[req.MessageID] = ch
	connID := c.connID
	c.mu.Unlock()

	if err := framer.WriteFrame(data); err != nil {
		c.forget(req.MessageID)
		return nil, err
	}
	c.protoLog(log.RequestEvent(connID, log.DirectionOut, req))

	select {
	case resp, ok := <-ch:
		if !ok {
			return nil, ErrConnectionClosed
		}
		if !resp.IsSuccess() {
			return resp, remoteError(req, resp)
		}
		return resp, nil
	case <-ctx.Done():
		c.forget(req.MessageID)
		return nil, ctx.Err()
	}
}

func (c *Client) forget(id uint32) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

// Close closes the connection and stops reconnecting.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	conn := c.conn
	c.conn = nil
	c.framer = nil
	c.ready = false
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
	c.mu.Unlock()

	if c.manager != nil {
		c.manager.Close()
	}
	if conn != nil {
		return conn.Close()
	}
	return nil
}

// Connected reports whether a connection is up and past hello.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ready
}

// Manager returns the reconnect manager, nil without AutoReconnect.
func (c *Client) Manager() *connection.Manager {
	return c.manager
}

// ServerVersion returns the version reported by the data server.
func (c *Client) ServerVersion() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.serverVersion
}

// ConnID returns the current connection ID.
func (c *Client) ConnID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connID
}

// Address returns the data server address.
func (c *Client) Address() string {
	return c.address
}

// ListNodes returns node metadata matching pattern.
func (c *Client) ListNodes(ctx context.Context, pattern string) (map[string]nodetree.Descriptor, error) {
	resp, err := c.call(ctx, &wire.Request{Op: wire.OpListNodes, Path: pattern})
	if err != nil {
		return nil, err
	}
	if resp.Nodes == nil {
		return map[string]nodetree.Descriptor{}, nil
	}
	return resp.Nodes, nil
}

// Get reads one node.
func (c *Client) Get(ctx context.Context, path string) (any, error) {
	resp, err := c.call(ctx, &wire.Request{Op: wire.OpGet, Path: path})
	if err != nil {
		return nil, err
	}
	return resp.Value, nil
}

// Set writes one node and returns the acknowledged value.
func (c *Client) Set(ctx context.Context, path string, value any) (any, error) {
	resp, err := c.call(ctx, &wire.Request{Op: wire.OpSet, Path: path, Value: value})
	if err != nil {
		return nil, err
	}
	return resp.Value, nil
}

// GetBulk reads every node matching pattern.
func (c *Client) GetBulk(ctx context.Context, pattern string, opts connection.GetOptions) (map[string]any, error) {
	resp, err := c.call(ctx, &wire.Request{
		Op:   wire.OpGetBulk,
		Path: pattern,
		Options: &wire.Options{
			ExcludeStreaming: opts.ExcludeStreaming,
			SettingsOnly:     opts.SettingsOnly,
			ExcludeVectors:   opts.ExcludeVectors,
			Flat:             opts.Flat,
		},
	})
	if err != nil {
		return nil, err
	}
	if resp.Values == nil {
		return map[string]any{}, nil
	}
	return resp.Values, nil
}

// Subscribe adds path to the polled nodes.
func (c *Client) Subscribe(ctx context.Context, path string) error {
	_, err := c.call(ctx, &wire.Request{Op: wire.OpSubscribe, Path: path})
	return err
}

// Unsubscribe removes path from the polled nodes.
func (c *Client) Unsubscribe(ctx context.Context, path string) error {
	_, err := c.call(ctx, &wire.Request{Op: wire.OpUnsubscribe, Path: path})
	return err
}

// Poll returns data recorded for subscribed nodes.
func (c *Client) Poll(ctx context.Context, recording, timeout time.Duration) (map[string][]any, error) {
	resp, err := c.call(ctx, &wire.Request{
		Op:        wire.OpPoll,
		Recording: recording.Milliseconds(),
		Timeout:   timeout.Milliseconds(),
	})
	if err != nil {
		return nil, err
	}
	return resp.Polled, nil
}

// Sync waits until the server applied all previous sets.
func (c *Client) Sync(ctx context.Context) error {
	_, err := c.call(ctx, &wire.Request{Op: wire.OpSync})
	return err
}

// ConnectDevice connects serial on the given interface.
func (c *Client) ConnectDevice(ctx context.Context, serial, iface string) error {
	_, err := c.call(ctx, &wire.Request{Op: wire.OpConnectDevice, Path: serial, Interface: iface})
	return err
}

// DisconnectDevice disconnects serial.
func (c *Client) DisconnectDevice(ctx context.Context, serial string) error {
	_, err := c.call(ctx, &wire.Request{Op: wire.OpDisconnectDevice, Path: serial})
	return err
}

// CreateModule opens a module on the server. Module nodes live in their own
// namespace ("/daq/..."), so the client itself serves them.
func (c *Client) CreateModule(ctx context.Context, name string) (connection.DeviceConnection, error) {
	if _, err := c.call(ctx, &wire.Request{Op: wire.OpCreateModule, Path: strings.ToLower(name)}); err != nil {
		return nil, err
	}
	return c, nil
}

var (
	_ connection.DeviceConnection = (*Client)(nil)
	_ connection.Subscriber       = (*Client)(nil)
	_ connection.Poller           = (*Client)(nil)
	_ connection.Syncer           = (*Client)(nil)
	_ connection.DeviceConnector  = (*Client)(nil)
	_ connection.ModuleFactory    = (*Client)(nil)
)
