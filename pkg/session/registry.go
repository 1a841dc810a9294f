package session

import (
	"context"
	"fmt"
	"net"
	"sort"
	"strconv"
	"sync"

	"github.com/zhinst/zhinst-go/pkg/connection"
)

// Default data server ports.
const (
	DefaultPort = 8004
	HF2Port     = 8005
)

// Dialer opens a connection to the data server at address (host:port).
type Dialer func(ctx context.Context, address string) (connection.DeviceConnection, error)

// OpenOptions configures Registry.Open.
type OpenOptions struct {
	// HF2 selects the HF2 data server default port.
	HF2 bool

	// NewSession replaces an existing session for the address.
	NewSession bool
}

// Registry holds one session per data server address.
type Registry struct {
	dial Dialer
	cfg  Config

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewRegistry creates a registry that dials with dial and configures new
// sessions with cfg.
func NewRegistry(dial Dialer, cfg Config) *Registry {
	return &Registry{
		dial:     dial,
		cfg:      cfg,
		sessions: make(map[string]*Session),
	}
}

// Address returns the registry key for host and port. A zero port is the
// default port of the server kind.
func Address(host string, port int, hf2 bool) string {
	if port == 0 {
		port = DefaultPort
		if hf2 {
			port = HF2Port
		}
	}
	return net.JoinHostPort(host, strconv.Itoa(port))
}

// Open returns the session for host:port, dialing a new one when none
// exists or NewSession is set. A replaced session is closed.
func (r *Registry) Open(ctx context.Context, host string, port int, opts OpenOptions) (*Session, error) {
	addr := Address(host, port, opts.HF2)

	r.mu.Lock()
	defer r.mu.Unlock()

	old, exists := r.sessions[addr]
	if exists && !opts.NewSession {
		return old, nil
	}

	conn, err := r.dial(ctx, addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	s, err := New(conn, r.cfg)
	if err != nil {
		return nil, err
	}
	if exists {
		_ = old.Close()
	}
	r.sessions[addr] = s
	return s, nil
}

// Get returns the session registered for an address.
func (r *Registry) Get(addr string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[addr]
	return s, ok
}

// Addresses returns the registered addresses, sorted.
func (r *Registry) Addresses() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.sessions))
	for addr := range r.sessions {
		out = append(out, addr)
	}
	sort.Strings(out)
	return out
}

// Remove closes and forgets the session for an address.
func (r *Registry) Remove(addr string) error {
	r.mu.Lock()
	s, ok := r.sessions[addr]
	delete(r.sessions, addr)
	r.mu.Unlock()
	if !ok {
		return nil
	}
	return s.Close()
}

// CloseAll closes every session.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()
	for _, s := range sessions {
		_ = s.Close()
	}
}
