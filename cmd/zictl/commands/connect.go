package commands

import (
	"context"
	"errors"
	"fmt"
	"net"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/zhinst/zhinst-go/pkg/connection"
	"github.com/zhinst/zhinst-go/pkg/metrics"
	"github.com/zhinst/zhinst-go/pkg/persistence"
	"github.com/zhinst/zhinst-go/pkg/profile"
	"github.com/zhinst/zhinst-go/pkg/session"
	"github.com/zhinst/zhinst-go/pkg/transport"
)

// simulatedHost is the registry host of the in-process simulator.
const simulatedHost = "simulator"

// commandContext bounds ctx by the configured timeout.
func (a *app) commandContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if a.cfg.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, a.cfg.Timeout)
}

// serverAddress picks the data server for serial: the configured server,
// then the server last seen with the device, then the last used server,
// then localhost.
func (a *app) serverAddress(serial string) string {
	if a.cfg.Server != "" {
		return a.cfg.Server
	}
	if st, err := a.state.Load(); err == nil && st != nil {
		if serial != "" {
			if rec := st.ServerFor(serial); rec != nil {
				return rec.Address
			}
		}
		if rec := st.LastUsed(); rec != nil {
			return rec.Address
		}
	} else if err != nil {
		a.logger.Warn("failed to read client state", "path", a.state.Path(), "error", err)
	}
	return session.Address("localhost", 0, a.cfg.HF2)
}

// dialer returns the registry dialer: the simulator when configured, the
// TCP transport otherwise.
func (a *app) dialer(collector *metrics.Collector) session.Dialer {
	return func(ctx context.Context, address string) (connection.DeviceConnection, error) {
		var conn connection.DeviceConnection
		if a.cfg.Simulate != "" {
			fx, err := connection.LoadFixture(a.cfg.Simulate)
			if err != nil {
				return nil, fmt.Errorf("load fixture: %w", err)
			}
			conn = connection.NewSimulator(fx, connection.SimulatorConfig{})
		} else {
			cc := transport.DefaultClientConfig()
			cc.AllowVersionMismatch = a.cfg.AllowVersionMismatch
			cc.Logger = a.logger
			cc.ProtocolLogger = a.protocolLogger()
			client, err := transport.Dial(ctx, address, cc)
			if err != nil {
				return nil, err
			}
			a.address = address
			a.remember(persistence.ServerRecord{Address: address, Version: client.ServerVersion()}, true)
			if m := client.Manager(); collector != nil && m != nil {
				collector.WatchManager(m)
			}
			conn = client
		}
		if collector != nil {
			conn = collector.Instrument(conn)
		}
		return conn, nil
	}
}

// openSession returns the session for serial's data server. The session
// stays open until the app is closed.
func (a *app) openSession(ctx context.Context, serial string, collector *metrics.Collector) (*session.Session, error) {
	if a.registry == nil {
		cfg := session.Config{Logger: a.logger}
		if a.cfg.Profiles != "" {
			set, err := profile.LoadFile(a.cfg.Profiles)
			if err != nil {
				return nil, fmt.Errorf("load profiles: %w", err)
			}
			cfg.Profiles = set
		}
		if collector != nil {
			cfg.BuildRecorder = collector
			cfg.SnapshotRecorder = collector
		}
		a.registry = session.NewRegistry(a.dialer(collector), cfg)
	}

	host, port := simulatedHost, 0
	if a.cfg.Simulate == "" {
		var err error
		host, port, err = splitAddress(a.serverAddress(serial))
		if err != nil {
			return nil, err
		}
	}
	return a.registry.Open(ctx, host, port, session.OpenOptions{HF2: a.cfg.HF2})
}

// connectDevice opens the session for serial and connects the device.
func (a *app) connectDevice(ctx context.Context, serial string) (*session.Device, error) {
	s, err := a.openSession(ctx, serial, nil)
	if err != nil {
		return nil, err
	}
	return a.connectOn(ctx, s, serial)
}

func (a *app) connectOn(ctx context.Context, s *session.Session, serial string) (*session.Device, error) {
	dev, err := s.ConnectDevice(ctx, serial, session.ConnectOptions{Interface: a.cfg.Interface})
	if err != nil {
		if errors.Is(err, session.ErrUnsupportedDeviceType) {
			return nil, err
		}
		return nil, fmt.Errorf("connect %s: %w", serial, err)
	}
	if a.address != "" {
		a.remember(persistence.ServerRecord{Address: a.address, Serials: []string{dev.Serial()}}, true)
	}
	a.logger.Debug("device connected", "serial", dev.Serial(), "type", dev.Type(),
		"parameters", dev.Stats().Parameters)
	return dev, nil
}

// remember records a server in the client state. Serials are merged with
// the known ones. used marks the server as the last one connected to.
func (a *app) remember(rec persistence.ServerRecord, used bool) {
	now := time.Now()
	rec.LastSeenAt = now
	if used {
		rec.LastUsedAt = now
	}
	err := a.state.Update(func(st *persistence.ClientState) {
		if cur := st.Server(rec.Address); cur != nil && len(rec.Serials) > 0 {
			merged := slices.Clone(cur.Serials)
			for _, s := range rec.Serials {
				if s = strings.ToLower(s); !slices.Contains(merged, s) {
					merged = append(merged, s)
				}
			}
			rec.Serials = merged
		}
		st.Upsert(rec)
	})
	if err != nil {
		a.logger.Warn("failed to save client state", "path", a.state.Path(), "error", err)
	}
}

func splitAddress(addr string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		// A bare host uses the default port.
		if !strings.Contains(addr, ":") {
			return addr, 0, nil
		}
		return "", 0, fmt.Errorf("invalid server address %q: %w", addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, fmt.Errorf("invalid server port %q", portStr)
	}
	if host == "" {
		host = "localhost"
	}
	return host, port, nil
}
