package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhinst/zhinst-go/pkg/httpapi"
	"github.com/zhinst/zhinst-go/pkg/inspect"
	"github.com/zhinst/zhinst-go/pkg/persistence"
	"github.com/zhinst/zhinst-go/pkg/session"
)

const fixture = "../../../testdata/sim.yaml"

// zictl runs the command line and returns stdout.
func zictl(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	err := Execute(context.Background(), args, &stdout, &stderr)
	return stdout.String(), err
}

// offline prefixes args with the simulator and a private state dir.
func offline(t *testing.T, args ...string) []string {
	t.Helper()
	return append([]string{"--simulate", fixture, "--state-dir", t.TempDir()}, args...)
}

func newTestApp(t *testing.T, cfg Config) *app {
	t.Helper()
	a := &app{
		cfg:    cfg,
		logger: slog.New(slog.DiscardHandler),
		state:  persistence.NewDirStore(cfg.StateDir),
	}
	t.Cleanup(a.close)
	return a
}

func TestTarget(t *testing.T) {
	tests := []struct {
		args     []string
		serial   string
		segments []string
		wantErr  bool
	}{
		{[]string{"dev8000"}, "dev8000", nil, false},
		{[]string{"/DEV8000/oscs/0/freq"}, "dev8000", []string{"oscs", "0", "freq"}, false},
		{[]string{"dev8000", "oscs[0].freq"}, "dev8000", []string{"oscs", "0", "freq"}, false},
		{[]string{"DEV8000", "/dev8000/sigouts/1"}, "dev8000", []string{"sigouts", "1"}, false},
		{[]string{"dev8000", "/dev2345/sigouts"}, "", nil, true},
		{[]string{"oscs/0/freq"}, "", nil, true},
		{[]string{"dev8000", ""}, "", nil, true},
		{nil, "", nil, true},
	}
	for _, tt := range tests {
		serial, path, err := target(tt.args)
		if tt.wantErr {
			if err == nil {
				t.Errorf("target(%q) error = nil, want error", tt.args)
			}
			continue
		}
		require.NoError(t, err, "target(%q)", tt.args)
		if serial != tt.serial {
			t.Errorf("target(%q) serial = %q, want %q", tt.args, serial, tt.serial)
		}
		assert.Equal(t, tt.segments, path.Segments, "target(%q)", tt.args)
	}
}

func TestConfigLayers(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "zictl.yaml")
	require.NoError(t, os.WriteFile(file, []byte("log_level: info\nhttp:\n  listen: 127.0.0.1:9000\n  burst: 3\n"), 0644))

	t.Setenv("ZICTL_HTTP__BURST", "7")
	t.Setenv("ZICTL_SNAPSHOT__KEEP", "12")

	out, err := zictl(t, "--config", file, "--log-level", "debug", "--state-dir", dir, "config", "print")
	require.NoError(t, err)

	// Flags beat the environment, which beats the file, which beats the defaults.
	for _, want := range []string{
		"log_level: debug",
		"listen: 127.0.0.1:9000",
		"burst: \"7\"",
		"keep: \"12\"",
		"rate_limit: 100",
		"browse_timeout: 5s",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("config print missing %q:\n%s", want, out)
		}
	}
	assert.NotContains(t, out, "values:", "command-only flags must not leak into the config")
}

func TestConfigInit(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "zictl.yaml")

	out, err := zictl(t, "--state-dir", dir, "config", "init", file)
	require.NoError(t, err)
	assert.Contains(t, out, "wrote")

	// The written file loads back to the defaults.
	out, err = zictl(t, "--config", file, "--state-dir", dir, "config", "print")
	require.NoError(t, err)
	assert.Contains(t, out, "8080")
	assert.Contains(t, out, "timeout: 30s")

	_, err = zictl(t, "--state-dir", dir, "config", "init", file)
	assert.Error(t, err, "init must not overwrite")
}

func TestBadConfig(t *testing.T) {
	dir := t.TempDir()
	_, err := zictl(t, "--config", filepath.Join(dir, "missing.yaml"), "servers")
	assert.Error(t, err)

	_, err = zictl(t, "--state-dir", dir, "--log-level", "chatty", "servers")
	assert.Error(t, err)
}

func TestTree(t *testing.T) {
	out, err := zictl(t, offline(t, "tree", "dev8000", "oscs", "--values")...)
	require.NoError(t, err)
	assert.Contains(t, out, "oscs[2]")
	assert.Contains(t, out, "freq: 1e+07 Hz")

	// Lists below the depth limit show no items.
	out, err = zictl(t, offline(t, "tree", "dev8000", "--depth", "2")...)
	require.NoError(t, err)
	assert.Contains(t, out, "oscs[0]")
	assert.NotContains(t, out, "freq")

	out, err = zictl(t, offline(t, "tree", "dev8000/oscs/0", "--json")...)
	require.NoError(t, err)
	var info inspect.NodeInfo
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	require.Len(t, info.Children, 1)
	assert.Equal(t, "freq", info.Children[0].Name)

	_, err = zictl(t, offline(t, "tree", "dev8000", "--depth", "-1")...)
	assert.Error(t, err)
}

func TestGetSet(t *testing.T) {
	out, err := zictl(t, offline(t, "get", "dev8000", "oscs[0].freq")...)
	require.NoError(t, err)
	assert.Equal(t, "1e+07 Hz\n", out)

	out, err = zictl(t, offline(t, "get", "/dev8000/oscs/0/freq", "--json")...)
	require.NoError(t, err)
	var got map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, 1e7, got["value"])
	assert.Equal(t, "Hz", got["unit"])

	out, err = zictl(t, offline(t, "get", "dev8000", "oscs", "--raw")...)
	require.NoError(t, err)
	assert.Contains(t, strings.ToLower(out), "/dev8000/oscs/0/freq = 1e+07")

	out, err = zictl(t, offline(t, "set", "dev8000", "oscs[1].freq", "2.5e6")...)
	require.NoError(t, err)
	assert.Contains(t, out, "= 2.5e+06 Hz")

	_, err = zictl(t, offline(t, "set", "/dev8000/system/fwrevision", "1")...)
	assert.Error(t, err)

	_, err = zictl(t, offline(t, "get", "dev8000", "oscs")...)
	assert.ErrorIs(t, err, inspect.ErrNotParameter)
}

func TestUnsupportedDevice(t *testing.T) {
	_, err := zictl(t, offline(t, "tree", "dev9999")...)
	assert.ErrorIs(t, err, session.ErrUnsupportedDeviceType)
}

func TestSnapshot(t *testing.T) {
	out, err := zictl(t, offline(t, "snapshot", "dev8000", "oscs")...)
	require.NoError(t, err)
	assert.Contains(t, out, "freq")

	out, err = zictl(t, offline(t, "snapshot", "dev8000", "--json")...)
	require.NoError(t, err)
	var snap map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &snap))
	assert.Contains(t, snap, "submodules")

	_, err = zictl(t, offline(t, "snapshot", "dev8000", "oscs/0/freq", "--archive", filepath.Join(t.TempDir(), "a.db"))...)
	assert.Error(t, err, "a single parameter cannot be archived")
}

func TestSnapshotArchive(t *testing.T) {
	db := filepath.Join(t.TempDir(), "snapshots.db")

	out, err := zictl(t, offline(t, "snapshot", "dev8000", "--archive", db, "--keep", "1", "--label", "run=7")...)
	require.NoError(t, err)
	assert.Contains(t, out, "archived dev8000 snapshot")

	out, err = zictl(t, offline(t, "snapshot", "dev8000", "--archive", db, "--keep", "1")...)
	require.NoError(t, err)
	assert.Contains(t, out, "pruned 1 old snapshots")

	out, err = zictl(t, offline(t, "snapshot", "list", "--archive", db)...)
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(out, "\n"), "header and one entry:\n%s", out)
	assert.Contains(t, out, "dev8000")

	out, err = zictl(t, offline(t, "snapshot", "show", "dev8000", "--archive", db)...)
	require.NoError(t, err)
	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &rec))
	assert.Equal(t, "dev8000", rec["Serial"])
	assert.Equal(t, "HDAWG8", rec["Type"])

	_, err = zictl(t, offline(t, "snapshot", "show", "dev8000", "--archive", db, "--at", "2001-01-01T00:00:00Z")...)
	assert.Error(t, err)

	_, err = zictl(t, offline(t, "snapshot", "list")...)
	assert.Error(t, err, "list needs an archive")
}

func TestServers(t *testing.T) {
	dir := t.TempDir()
	now := time.Now()
	store := persistence.NewDirStore(dir)
	require.NoError(t, store.Save(&persistence.ClientState{Servers: []persistence.ServerRecord{
		{Address: "lab:8004", Serials: []string{"dev8000"}, LastUsedAt: now, LastSeenAt: now},
		{Address: "bench:8004", Discovered: true, LastSeenAt: now},
	}}))

	out, err := zictl(t, "--state-dir", dir, "servers")
	require.NoError(t, err)
	assert.Contains(t, out, "lab:8004")
	assert.Contains(t, out, "(mDNS)")
	assert.Contains(t, out, "*")

	_, err = zictl(t, "--state-dir", dir, "servers", "forget", "bench:8004")
	require.NoError(t, err)
	_, err = zictl(t, "--state-dir", dir, "servers", "forget", "bench:8004")
	assert.Error(t, err)

	_, err = zictl(t, "--state-dir", dir, "servers", "clear")
	require.NoError(t, err)
	out, err = zictl(t, "--state-dir", dir, "servers")
	require.NoError(t, err)
	assert.Contains(t, out, "no known data servers")
}

func TestServerAddress(t *testing.T) {
	dir := t.TempDir()
	a := newTestApp(t, Config{StateDir: dir})
	assert.Equal(t, "localhost:8004", a.serverAddress("dev8000"))

	a.cfg.HF2 = true
	assert.Equal(t, "localhost:8005", a.serverAddress(""))
	a.cfg.HF2 = false

	a.remember(persistence.ServerRecord{Address: "lab:8004", Serials: []string{"DEV8000"}}, false)
	a.remember(persistence.ServerRecord{Address: "bench:8004"}, true)
	assert.Equal(t, "lab:8004", a.serverAddress("dev8000"))
	assert.Equal(t, "bench:8004", a.serverAddress("dev2345"))

	a.remember(persistence.ServerRecord{Address: "lab:8004", Serials: []string{"dev2345"}}, false)
	st, err := a.state.Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"dev2345", "dev8000"}, st.Server("lab:8004").Serials)

	a.cfg.Server = "explicit:1234"
	assert.Equal(t, "explicit:1234", a.serverAddress("dev8000"))
}

func TestSplitAddress(t *testing.T) {
	tests := []struct {
		in      string
		host    string
		port    int
		wantErr bool
	}{
		{"lab:8004", "lab", 8004, false},
		{"lab", "lab", 0, false},
		{":8005", "localhost", 8005, false},
		{"[::1]:8004", "::1", 8004, false},
		{"lab:port", "", 0, true},
	}
	for _, tt := range tests {
		host, port, err := splitAddress(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("splitAddress(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if host != tt.host || port != tt.port {
			t.Errorf("splitAddress(%q) = %q, %d, want %q, %d", tt.in, host, port, tt.host, tt.port)
		}
	}
}

// startServe runs serve on a loopback port and returns its address.
func startServe(t *testing.T) string {
	t.Helper()
	cfg := DefaultConfig()
	cfg.StateDir = t.TempDir()
	a := newTestApp(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	addrCh := make(chan string, 1)
	done := make(chan error, 1)
	go func() {
		done <- serve(ctx, a, ServeConfig{Listen: "127.0.0.1:0", Fixture: fixture}, func(addr net.Addr, serials []string) {
			addrCh <- addr.String()
		})
	}()
	t.Cleanup(func() {
		cancel()
		if err := <-done; err != nil {
			t.Errorf("serve() error = %v", err)
		}
	})

	select {
	case addr := <-addrCh:
		return addr
	case err := <-done:
		t.Fatalf("serve() returned early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve() did not start")
	}
	return ""
}

func TestServeAndRemote(t *testing.T) {
	addr := startServe(t)
	state := t.TempDir()
	clientLog := filepath.Join(t.TempDir(), "client.zlog")

	out, err := zictl(t, "--server", addr, "--state-dir", state, "--protocol-log", clientLog,
		"get", "dev8000", "oscs[0].freq", "--json")
	require.NoError(t, err)
	var got map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, 1e7, got["value"])

	// The server is remembered with the device, so the next command finds
	// it without --server.
	out, err = zictl(t, "--state-dir", state, "get", "dev8000", "--raw", "system/fwrevision")
	require.NoError(t, err)
	assert.Contains(t, out, "68431")

	out, err = zictl(t, "--state-dir", state, "servers")
	require.NoError(t, err)
	assert.Contains(t, out, addr)
	assert.Contains(t, out, "dev8000")

	out, err = zictl(t, "--state-dir", state, "log", "stats", clientLog)
	require.NoError(t, err)
	assert.Contains(t, out, "Total Events:")
	assert.Contains(t, out, "Requests by Operation:")
	assert.Contains(t, out, "Connections: 1")

	out, err = zictl(t, "--state-dir", state, "log", "view", "--layer", "wire", "--direction", "out", clientLog)
	require.NoError(t, err)
	assert.Contains(t, out, "REQUEST")
	assert.NotContains(t, out, "RESPONSE")

	filtered := filepath.Join(t.TempDir(), "errors.zlog")
	out, err = zictl(t, "--state-dir", state, "log", "filter", "--category", "error", "-o", filtered, clientLog)
	require.NoError(t, err)
	assert.Contains(t, out, "wrote 0 events")

	out, err = zictl(t, "--state-dir", state, "log", "export", "--format", "csv", clientLog)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "timestamp,connection_id"), "csv header missing:\n%s", out)

	_, err = zictl(t, "--state-dir", state, "log", "filter", clientLog)
	assert.Error(t, err, "filter needs -o")
}

func TestHTTP(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Simulate = fixture
	cfg.StateDir = t.TempDir()
	a := newTestApp(t, cfg)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	ready := make(chan string, 1)
	done := make(chan error, 1)
	go func() {
		done <- serveHTTP(ctx, a, []string{"dev8000", "dev1234"}, ln, func(addr net.Addr) {
			ready <- "http://" + addr.String()
		})
	}()
	defer func() {
		cancel()
		require.NoError(t, <-done)
	}()

	var base string
	select {
	case base = <-ready:
	case err := <-done:
		t.Fatalf("serveHTTP() returned early: %v", err)
	}

	get := func(path string) (int, string) {
		resp, err := http.Get(base + path)
		require.NoError(t, err)
		defer resp.Body.Close()
		b, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		return resp.StatusCode, string(b)
	}

	status, body := get("/devices")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, "dev1234")

	status, body = get("/devices/dev8000/nodes/oscs/0/freq")
	assert.Equal(t, http.StatusOK, status)
	var node httpapi.NodeValue
	require.NoError(t, json.Unmarshal([]byte(body), &node))
	if node.Unit != "Hz" {
		t.Errorf("unit = %q, want %q", node.Unit, "Hz")
	}
	assert.Equal(t, 1e7, node.Value)

	status, body = get("/metrics")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, "zi_tree_builds_total")
	assert.Contains(t, body, "zi_http_requests_total")
	assert.Contains(t, body, "go_goroutines")
}

func TestHTTPRemote(t *testing.T) {
	addr := startServe(t)
	cfg := DefaultConfig()
	cfg.Server = addr
	cfg.StateDir = t.TempDir()
	a := newTestApp(t, cfg)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	ready := make(chan string, 1)
	done := make(chan error, 1)
	go func() {
		done <- serveHTTP(ctx, a, []string{"dev8000"}, ln, func(addr net.Addr) {
			ready <- "http://" + addr.String()
		})
	}()
	defer func() {
		cancel()
		require.NoError(t, <-done)
	}()

	var base string
	select {
	case base = <-ready:
	case err := <-done:
		t.Fatalf("serveHTTP() returned early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("serveHTTP() did not start")
	}

	resp, err := http.Get(base + "/devices/dev8000/nodes/system/fwrevision")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var node httpapi.NodeValue
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&node))
	assert.Equal(t, 68431.0, node.Value)
}

func TestHTTPUnknownDevice(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Simulate = fixture
	cfg.StateDir = t.TempDir()
	a := newTestApp(t, cfg)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	err = serveHTTP(context.Background(), a, []string{"dev0404"}, ln, nil)
	assert.Error(t, err)
}

func TestServeCommandNeedsFixture(t *testing.T) {
	_, err := zictl(t, offline(t, "serve", "--listen", "127.0.0.1:0", "--announce=false")...)
	assert.Error(t, err)
}
