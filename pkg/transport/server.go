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

	"github.com/google/uuid"

	"github.com/zhinst/zhinst-go/pkg/connection"
	"github.com/zhinst/zhinst-go/pkg/log"
	"github.com/zhinst/zhinst-go/pkg/nodetree"
	"github.com/zhinst/zhinst-go/pkg/version"
	"github.com/zhinst/zhinst-go/pkg/wire"
)

// Data server ports.
const (
	DefaultPort = 8004
	HF2Port     = 8005
)

// ServerConfig configures a Server.
type ServerConfig struct {
	// Address to listen on. Default ":8004".
	Address string

	// Conn serves every request.
	Conn connection.DeviceConnection

	// Version is reported in the hello response. Default version.Current.
	Version string

	// MaxMessageSize is the maximum frame size. Default 16 MiB.
	MaxMessageSize uint32

	// Logger is optional.
	Logger *slog.Logger

	// ProtocolLogger receives frame and message events (optional).
	ProtocolLogger log.Logger

	// OnConnect and OnDisconnect are optional.
	OnConnect    func(conn *ServerConn)
	OnDisconnect func(conn *ServerConn)
}

// Server accepts client connections and serves them from one
// DeviceConnection.
type Server struct {
	config   ServerConfig
	listener net.Listener

	conns   map[*ServerConn]struct{}
	connsMu sync.RWMutex

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewServer creates a server.
func NewServer(config ServerConfig) (*Server, error) {
	if config.Conn == nil {
		return nil, ErrNoConnection
	}
	if config.Address == "" {
		config.Address = fmt.Sprintf(":%d", DefaultPort)
	}
	if config.Version == "" {
		config.Version = version.Current
	}
	return &Server{
		config: config,
		conns:  make(map[*ServerConn]struct{}),
	}, nil
}

func (s *Server) debugLog(msg string, args ...any) {
	if s.config.Logger != nil {
		s.config.Logger.Debug(msg, args...)
	}
}

func (s *Server) protoLog(ev log.Event) {
	if s.config.ProtocolLogger != nil {
		ev.LocalRole = log.RoleServer
		s.config.ProtocolLogger.Log(ev)
	}
}

// Start listens and begins accepting connections.
func (s *Server) Start(ctx context.Context) error {
	if s.running.Load() {
		return fmt.Errorf("server already running")
	}
	s.ctx, s.cancel = context.WithCancel(ctx)

	listener, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		s.cancel()
		return fmt.Errorf("failed to listen: %w", err)
	}
	s.listener = listener
	s.running.Store(true)

	s.wg.Add(1)
	go s.acceptLoop()
	if s.config.Logger != nil {
		s.config.Logger.Info("data server listening", "addr", listener.Addr().String(), "version", s.config.Version)
	}
	return nil
}

// Stop closes the listener and every connection.
func (s *Server) Stop() error {
	if !s.running.Load() {
		return nil
	}
	s.running.Store(false)
	s.cancel()
	if s.listener != nil {
		s.listener.Close()
	}

	s.connsMu.Lock()
	for conn := range s.conns {
		conn.Close()
	}
	s.connsMu.Unlock()

	s.wg.Wait()
	return nil
}

// Addr returns the listen address.
func (s *Server) Addr() net.Addr {
	if s.listener != nil {
		return s.listener.Addr()
	}
	return nil
}

// ConnectionCount returns the number of active connections.
func (s *Server) ConnectionCount() int {
	s.connsMu.RLock()
	defer s.connsMu.RUnlock()
	return len(s.conns)
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for s.running.Load() {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.running.Load() {
				s.debugLog("server: accept failed", "error", err)
			}
			continue
		}
		s.wg.Add(1)
		go s.handleConnection(conn)
	}
}

func (s *Server) handleConnection(conn net.Conn) {
	defer s.wg.Done()

	connID := uuid.New().String()
	framer := NewFramer(conn, s.config.MaxMessageSize)
	if s.config.ProtocolLogger != nil {
		framer.SetLogger(s.config.ProtocolLogger, connID, log.RoleServer)
	}
	sconn := &ServerConn{
		conn:    conn,
		framer:  framer,
		server:  s,
		closeCh: make(chan struct{}),
		connID:  connID,
		modules: make(map[string]connection.DeviceConnection),
	}

	ev := log.StateEvent(connID, log.LayerTransport, log.StateEntityConnection, "", "CONNECTED", "")
	ev.RemoteAddr = conn.RemoteAddr().String()
	s.protoLog(ev)
	s.debugLog("server: client connected", "conn_id", connID, "remote", conn.RemoteAddr().String())

	s.connsMu.Lock()
	s.conns[sconn] = struct{}{}
	s.connsMu.Unlock()
	if s.config.OnConnect != nil {
		s.config.OnConnect(sconn)
	}

	sconn.readLoop()
	sconn.inflight.Wait()

	s.connsMu.Lock()
	delete(s.conns, sconn)
	s.connsMu.Unlock()

	ev = log.StateEvent(connID, log.LayerTransport, log.StateEntityConnection, "CONNECTED", "DISCONNECTED", "")
	ev.RemoteAddr = conn.RemoteAddr().String()
	s.protoLog(ev)
	if s.config.OnDisconnect != nil {
		s.config.OnDisconnect(sconn)
	}
}

// ServerConn is one client connection.
type ServerConn struct {
	conn      net.Conn
	framer    *Framer
	server    *Server
	closeCh   chan struct{}
	closeOnce sync.Once
	connID    string
	inflight  sync.WaitGroup

	mu        sync.Mutex
	helloDone bool
	modules   map[string]connection.DeviceConnection
}

// RemoteAddr returns the client address.
func (c *ServerConn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// ConnID returns the unique connection identifier.
func (c *ServerConn) ConnID() string {
	return c.connID
}

// Close closes the connection.
func (c *ServerConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closeCh)
		err = c.conn.Close()
	})
	return err
}

func (c *ServerConn) readLoop() {
	for {
		data, err := c.framer.ReadFrame()
		if err != nil {
			select {
			case <-c.closeCh:
			default:
				c.server.debugLog("server: read failed", "conn_id", c.connID, "error", err)
				c.Close()
			}
			return
		}

		req, err := wire.DecodeRequest(data)
		if err != nil {
			c.server.debugLog("server: dropping malformed request", "conn_id", c.connID, "error", err)
			continue
		}
		c.server.protoLog(log.RequestEvent(c.connID, log.DirectionIn, req))

		// Hello is answered inline so no request can overtake it.
		if req.Op == wire.OpHello {
			c.handle(req, time.Now())
			continue
		}
		c.inflight.Add(1)
		go func(start time.Time) {
			defer c.inflight.Done()
			c.handle(req, start)
		}(time.Now())
	}
}

func (c *ServerConn) handle(req *wire.Request, start time.Time) {
	resp, err := c.dispatch(c.server.ctx, req)
	if err != nil {
		resp = wire.ErrorResponse(req.MessageID, statusOf(err), err.Error())
	}
	resp.MessageID = req.MessageID

	data, err := wire.EncodeResponse(resp)
	if err != nil {
		resp = wire.ErrorResponse(req.MessageID, wire.StatusInternal, err.Error())
		data, _ = wire.EncodeResponse(resp)
	}
	if err := c.framer.WriteFrame(data); err != nil {
		c.server.debugLog("server: write failed", "conn_id", c.connID, "error", err)
		return
	}
	c.server.protoLog(log.ResponseEvent(c.connID, log.DirectionOut, resp, time.Since(start)))
}

// route returns the connection serving path. Paths below a created module
// go to the module.
func (c *ServerConn) route(path string) connection.DeviceConnection {
	segs := nodetree.Split(path)
	if len(segs) > 0 {
		c.mu.Lock()
		m, ok := c.modules[segs[0]]
		c.mu.Unlock()
		if ok {
			return m
		}
	}
	return c.server.config.Conn
}

func (c *ServerConn) dispatch(ctx context.Context, req *wire.Request) (*wire.Response, error) {
	c.mu.Lock()
	hello := c.helloDone
	if req.Op == wire.OpHello {
		c.helloDone = true
	}
	c.mu.Unlock()
	if req.Op == wire.OpHello {
		return &wire.Response{Version: c.server.config.Version}, nil
	}
	if !hello {
		return nil, ErrHelloRequired
	}

	conn := c.route(req.Path)
	switch req.Op {
	case wire.OpListNodes:
		nodes, err := conn.ListNodes(ctx, req.Path)
		if err != nil {
			return nil, err
		}
		return &wire.Response{Nodes: nodes}, nil

	case wire.OpGet:
		v, err := conn.Get(ctx, req.Path)
		if err != nil {
			return nil, err
		}
		return &wire.Response{Value: v}, nil

	case wire.OpSet:
		ack, err := conn.Set(ctx, req.Path, req.Value)
		if err != nil {
			return nil, err
		}
		return &wire.Response{Value: ack}, nil

	case wire.OpGetBulk:
		var opts connection.GetOptions
		if o := req.Options; o != nil {
			opts = connection.GetOptions{
				ExcludeStreaming: o.ExcludeStreaming,
				SettingsOnly:     o.SettingsOnly,
				ExcludeVectors:   o.ExcludeVectors,
				Flat:             o.Flat,
			}
		}
		values, err := conn.GetBulk(ctx, req.Path, opts)
		if err != nil {
			return nil, err
		}
		return &wire.Response{Values: values}, nil

	case wire.OpSubscribe, wire.OpUnsubscribe:
		sub, ok := conn.(connection.Subscriber)
		if !ok {
			return nil, fmt.Errorf("%w: subscribe", connection.ErrNotSupported)
		}
		var err error
		if req.Op == wire.OpSubscribe {
			err = sub.Subscribe(ctx, req.Path)
		} else {
			err = sub.Unsubscribe(ctx, req.Path)
		}
		return &wire.Response{}, err

	case wire.OpPoll:
		poller, ok := c.server.config.Conn.(connection.Poller)
		if !ok {
			return nil, fmt.Errorf("%w: poll", connection.ErrNotSupported)
		}
		polled, err := poller.Poll(ctx, req.RecordingDuration(), req.TimeoutDuration())
		if err != nil {
			return nil, err
		}
		return &wire.Response{Polled: polled}, nil

	case wire.OpSync:
		if syncer, ok := c.server.config.Conn.(connection.Syncer); ok {
			if err := syncer.Sync(ctx); err != nil {
				return nil, err
			}
		}
		return &wire.Response{}, nil

	case wire.OpConnectDevice, wire.OpDisconnectDevice:
		dc, ok := c.server.config.Conn.(connection.DeviceConnector)
		if !ok {
			return nil, fmt.Errorf("%w: device connection", connection.ErrNotSupported)
		}
		var err error
		if req.Op == wire.OpConnectDevice {
			err = dc.ConnectDevice(ctx, req.Path, req.Interface)
		} else {
			err = dc.DisconnectDevice(ctx, req.Path)
		}
		return &wire.Response{}, err

	case wire.OpCreateModule:
		mf, ok := c.server.config.Conn.(connection.ModuleFactory)
		if !ok {
			return nil, fmt.Errorf("%w: modules", connection.ErrNotSupported)
		}
		name := strings.ToLower(strings.Trim(req.Path, "/"))
		m, err := mf.CreateModule(ctx, name)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.modules[name] = m
		c.mu.Unlock()
		return &wire.Response{}, nil
	}
	return nil, errors.New("unhandled operation " + req.Op.String())
}
