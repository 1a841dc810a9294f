package httpapi

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhinst/zhinst-go/pkg/connection"
	"github.com/zhinst/zhinst-go/pkg/metrics"
	"github.com/zhinst/zhinst-go/pkg/model"
	"github.com/zhinst/zhinst-go/pkg/session"
)

func newServer(t *testing.T, cfg Config) (*Server, *session.Session) {
	t.Helper()
	fx, err := connection.LoadFixture("../../testdata/sim.yaml")
	require.NoError(t, err)
	sim := connection.NewSimulator(fx, connection.SimulatorConfig{})
	s, err := session.New(sim, session.Config{})
	require.NoError(t, err)
	_, err = s.ConnectDevice(context.Background(), "dev8000", session.ConnectOptions{})
	require.NoError(t, err)
	return New(s, cfg), s
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestDevices(t *testing.T) {
	srv, _ := newServer(t, Config{})
	rec := do(t, srv.Handler(), http.MethodGet, "/devices/", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	devices := decode[[]DeviceInfo](t, rec)
	require.Len(t, devices, 1)
	assert.Equal(t, DeviceInfo{Serial: "dev8000", Type: "HDAWG8", Family: "hdawg", Name: "dev8000", Parameters: 11}, devices[0])
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
}

func TestGetNode(t *testing.T) {
	srv, _ := newServer(t, Config{})
	h := srv.Handler()

	tests := []struct {
		target string
		status int
		code   string
	}{
		{"/devices/dev8000/nodes/oscs/0/freq", http.StatusOK, ""},
		{"/devices/DEV8000/nodes/dev8000/oscs/0/freq", http.StatusOK, ""},
		{"/devices/dev8000/nodes/oscs/7/freq", http.StatusNotFound, ErrCodeNotFound},
		{"/devices/dev8000/nodes/nosuch", http.StatusNotFound, ErrCodeNotFound},
		{"/devices/dev8000/nodes/oscs", http.StatusNotFound, ErrCodeNotFound},
		{"/devices/dev8000/nodes/awgs/0/single", http.StatusForbidden, ErrCodeForbidden},
		{"/devices/dev8000/nodes/dev1234/oscs/0/freq", http.StatusBadRequest, ErrCodeInvalidRequest},
		{"/devices/dev9999/nodes/features/devtype", http.StatusUnprocessableEntity, ErrCodeUnsupportedDevice},
	}
	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			rec := do(t, h, http.MethodGet, tt.target, "")
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tt.status, rec.Body.String())
			}
			if tt.code != "" {
				resp := decode[ErrorResponse](t, rec)
				if resp.Code != tt.code {
					t.Errorf("code = %q, want %q", resp.Code, tt.code)
				}
				return
			}
			v := decode[NodeValue](t, rec)
			assert.Equal(t, 10e6, v.Value)
			assert.Equal(t, "Hz", v.Unit)
		})
	}
}

func TestSetNode(t *testing.T) {
	srv, _ := newServer(t, Config{})
	h := srv.Handler()

	rec := do(t, h, http.MethodPut, "/devices/dev8000/nodes/oscs/1/freq", `{"value": 2.5e6}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 2.5e6, decode[NodeValue](t, rec).Value)

	rec = do(t, h, http.MethodGet, "/devices/dev8000/nodes/oscs/1/freq", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2.5e6, decode[NodeValue](t, rec).Value)

	rec = do(t, h, http.MethodPut, "/devices/dev8000/nodes/awgs/0/ready", `{"value": 1}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(t, h, http.MethodPut, "/devices/dev8000/nodes/oscs/1/freq", `{"freq": 1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPut, "/devices/dev8000/nodes/oscs/1/freq", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want any
	}{
		{`1`, int64(1)},
		{`-3`, int64(-3)},
		{`1.5`, 1.5},
		{`1e3`, 1000.0},
		{`"abc"`, "abc"},
		{`true`, true},
		{`[1, 2.5]`, []float64{1, 2.5}},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodPut, "/", strings.NewReader(`{"value": `+tt.in+`}`))
		got, err := decodeValue(req)
		if err != nil {
			t.Errorf("decodeValue(%s) error = %v", tt.in, err)
			continue
		}
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestSnapshot(t *testing.T) {
	srv, _ := newServer(t, Config{})
	h := srv.Handler()

	rec := do(t, h, http.MethodGet, "/devices/dev8000/snapshot?update=true", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	snap := decode[model.Snapshot](t, rec)
	require.Contains(t, snap.Submodules, "oscs")
	require.NotEmpty(t, snap.Submodules["oscs"].Channels)
	assert.Equal(t, 10e6, snap.Submodules["oscs"].Channels[0].Parameters["freq"].Value)

	rec = do(t, h, http.MethodGet, "/devices/dev8000/snapshot?path=oscs/0/freq", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	ps := decode[model.ParameterSnapshot](t, rec)
	assert.Equal(t, "freq", ps.Name)

	rec = do(t, h, http.MethodGet, "/devices/dev8000/snapshot?update=maybe", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTree(t *testing.T) {
	srv, _ := newServer(t, Config{})
	h := srv.Handler()

	rec := do(t, h, http.MethodGet, "/devices/dev8000/tree?path=oscs&values=true", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	tree := decode[TreeNode](t, rec)
	assert.Equal(t, "oscs", tree.Name)
	assert.Equal(t, model.KindList.String(), tree.Kind)
	require.Len(t, tree.Children, 2)
	freq := tree.Children[0].Children[0]
	assert.Equal(t, "freq", freq.Name)
	assert.Equal(t, "read-write", freq.Access)
	assert.Equal(t, 10e6, freq.Value)

	rec = do(t, h, http.MethodGet, "/devices/dev8000/tree?depth=1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[TreeNode](t, rec).Children)

	rec = do(t, h, http.MethodGet, "/devices/dev8000/tree?depth=-1", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRateLimit(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(reg)
	srv, _ := newServer(t, Config{RateLimit: 0.001, RateLimitBurst: 1, Metrics: collector})
	h := srv.Handler()

	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/devices/", "").Code)
	rec := do(t, h, http.MethodGet, "/devices/", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
	assert.True(t, decode[ErrorResponse](t, rec).Retryable)

	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/health", "").Code, "health is not rate limited")

	rec = do(t, h, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `zi_http_rate_limit_rejects_total 1`)
	assert.Contains(t, body, "zi_http_requests_total{")
}

func TestServe(t *testing.T) {
	srv, _ := newServer(t, Config{})
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}
