package connection

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
)

// Manager errors.
var (
	ErrConnectionClosed = errors.New("connection closed")
	ErrAlreadyConnected = errors.New("already connected")
	ErrNotConnected     = errors.New("not connected")
	ErrRetriesExhausted = errors.New("reconnect attempts exhausted")
)

// State represents the connection state.
type State uint8

const (
	// StateDisconnected indicates no active connection.
	StateDisconnected State = iota

	// StateConnecting indicates a connection attempt is in progress.
	StateConnecting

	// StateConnected indicates an active connection.
	StateConnected

	// StateReconnecting indicates automatic reconnection is in progress.
	StateReconnecting

	// StateClosed indicates the manager has been closed.
	StateClosed
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateReconnecting:
		return "RECONNECTING"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// ConnectFunc establishes a connection to the data server.
type ConnectFunc func(ctx context.Context) error

// ManagerConfig configures a Manager.
type ManagerConfig struct {
	// Backoff is the delay policy between reconnect attempts.
	Backoff BackoffConfig

	// AttemptTimeout bounds a single reconnect attempt. Default 10s.
	AttemptTimeout time.Duration

	// Logger is optional.
	Logger *slog.Logger
}

// Manager keeps a data-server connection alive and re-dials with backoff
// after it is lost.
type Manager struct {
	mu sync.RWMutex

	state     State
	backoff   backoff.BackOff
	attempts  int
	connectFn ConnectFunc
	timeout   time.Duration
	logger    *slog.Logger

	autoReconnect bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	reconnectCh chan struct{}

	onStateChange  func(oldState, newState State)
	onConnected    func()
	onDisconnected func()
	onReconnecting func(attempt int, delay time.Duration)
}

// NewManager creates a manager with the default backoff policy.
func NewManager(connectFn ConnectFunc) *Manager {
	return NewManagerWithConfig(connectFn, ManagerConfig{Backoff: DefaultBackoffConfig()})
}

// NewManagerWithConfig creates a manager.
func NewManagerWithConfig(connectFn ConnectFunc, cfg ManagerConfig) *Manager {
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = 10 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		state:         StateDisconnected,
		backoff:       NewBackOff(cfg.Backoff),
		connectFn:     connectFn,
		timeout:       cfg.AttemptTimeout,
		logger:        cfg.Logger,
		autoReconnect: true,
		ctx:           ctx,
		cancel:        cancel,
		reconnectCh:   make(chan struct{}, 1),
	}
}

func (m *Manager) debugLog(msg string, args ...any) {
	if m.logger != nil {
		m.logger.Debug(msg, args...)
	}
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// IsConnected returns true if currently connected.
func (m *Manager) IsConnected() bool {
	return m.State() == StateConnected
}

// SetAutoReconnect enables or disables automatic reconnection.
func (m *Manager) SetAutoReconnect(enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.autoReconnect = enabled
}

// Connect dials once. It does not retry.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	switch m.state {
	case StateConnected:
		m.mu.Unlock()
		return ErrAlreadyConnected
	case StateClosed:
		m.mu.Unlock()
		return ErrConnectionClosed
	}
	oldState := m.state
	m.state = StateConnecting
	m.mu.Unlock()
	m.notifyState(oldState, StateConnecting)

	if err := m.connectFn(ctx); err != nil {
		m.setState(StateDisconnected)
		return err
	}

	m.markConnected()
	return nil
}

// Disconnect marks the connection as closed by the caller. With
// auto-reconnect enabled a reconnect is started.
func (m *Manager) Disconnect() {
	m.lost()
}

// NotifyConnectionLost is called by the transport when the link drops.
func (m *Manager) NotifyConnectionLost() {
	m.lost()
}

func (m *Manager) lost() {
	m.mu.Lock()
	if m.state != StateConnected {
		m.mu.Unlock()
		return
	}
	oldState := m.state
	auto := m.autoReconnect
	if auto {
		m.state = StateReconnecting
	} else {
		m.state = StateDisconnected
	}
	newState := m.state
	onDisconnected := m.onDisconnected
	m.mu.Unlock()

	m.notifyState(oldState, newState)
	if onDisconnected != nil {
		onDisconnected()
	}
	if auto {
		m.triggerReconnect()
	}
}

// StartReconnectLoop starts the background reconnection loop.
// Must be called once before reconnection will work.
func (m *Manager) StartReconnectLoop() {
	m.wg.Add(1)
	go m.reconnectLoop()
}

// Close shuts down the manager and waits for the reconnect loop.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.state == StateClosed {
		m.mu.Unlock()
		return
	}
	oldState := m.state
	m.state = StateClosed
	m.mu.Unlock()

	m.notifyState(oldState, StateClosed)
	m.cancel()
	m.wg.Wait()
}

func (m *Manager) triggerReconnect() {
	select {
	case m.reconnectCh <- struct{}{}:
	default:
	}
}

func (m *Manager) reconnectLoop() {
	defer m.wg.Done()
	for {
		select {
		case <-m.ctx.Done():
			return
		case <-m.reconnectCh:
			m.attemptReconnect()
		}
	}
}

func (m *Manager) attemptReconnect() {
	for {
		if s := m.State(); s == StateClosed || s == StateConnected {
			return
		}

		m.mu.Lock()
		delay := m.backoff.NextBackOff()
		m.attempts++
		attempts := m.attempts
		onReconnecting := m.onReconnecting
		m.mu.Unlock()

		if delay == backoff.Stop {
			m.debugLog("reconnect: giving up", "attempts", attempts-1)
			m.setState(StateDisconnected)
			return
		}
		if onReconnecting != nil {
			onReconnecting(attempts, delay)
		}

		select {
		case <-m.ctx.Done():
			return
		case <-time.After(delay):
		}

		if s := m.State(); s == StateClosed || s == StateConnected {
			return
		}

		ctx, cancel := context.WithTimeout(m.ctx, m.timeout)
		err := m.connectFn(ctx)
		cancel()
		if err == nil {
			m.markConnected()
			return
		}
		m.debugLog("reconnect: attempt failed", "attempt", attempts, "error", err)
	}
}

func (m *Manager) markConnected() {
	m.mu.Lock()
	oldState := m.state
	if oldState == StateClosed {
		m.mu.Unlock()
		return
	}
	m.state = StateConnected
	m.backoff.Reset()
	m.attempts = 0
	onConnected := m.onConnected
	m.mu.Unlock()

	m.notifyState(oldState, StateConnected)
	if onConnected != nil {
		onConnected()
	}
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	oldState := m.state
	if oldState == StateClosed {
		m.mu.Unlock()
		return
	}
	m.state = s
	m.mu.Unlock()
	m.notifyState(oldState, s)
}

func (m *Manager) notifyState(oldState, newState State) {
	m.mu.RLock()
	fn := m.onStateChange
	m.mu.RUnlock()
	if fn != nil && oldState != newState {
		fn(oldState, newState)
	}
}

// OnStateChange sets a callback for state changes.
func (m *Manager) OnStateChange(fn func(oldState, newState State)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onStateChange = fn
}

// OnConnected sets a callback for successful connection.
func (m *Manager) OnConnected(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onConnected = fn
}

// OnDisconnected sets a callback for disconnection.
func (m *Manager) OnDisconnected(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onDisconnected = fn
}

// OnReconnecting sets a callback for reconnection attempts.
func (m *Manager) OnReconnecting(fn func(attempt int, delay time.Duration)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onReconnecting = fn
}

// Attempts returns the number of reconnect attempts since the last success.
func (m *Manager) Attempts() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.attempts
}
