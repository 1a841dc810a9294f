package metrics

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhinst/zhinst-go/pkg/builder"
	"github.com/zhinst/zhinst-go/pkg/connection"
	"github.com/zhinst/zhinst-go/pkg/session"
)

func newCollector(t *testing.T) (*Collector, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	return NewCollector(reg), reg
}

func TestObserveBuild(t *testing.T) {
	c, _ := newCollector(t)
	c.ObserveBuild("dev1234", builder.Stats{Parameters: 7, Skipped: 2, Failures: 1}, 10*time.Millisecond)
	c.ObserveBuild("dev1234", builder.Stats{Parameters: 3}, time.Millisecond)

	if got := testutil.ToFloat64(c.buildsTotal.WithLabelValues("dev1234")); got != 2 {
		t.Errorf("builds = %v, want 2", got)
	}
	tests := []struct {
		outcome string
		want    float64
	}{
		{"parameter", 10},
		{"skipped", 2},
		{"failed", 1},
	}
	for _, tt := range tests {
		if got := testutil.ToFloat64(c.buildNodes.WithLabelValues("dev1234", tt.outcome)); got != tt.want {
			t.Errorf("nodes{%s} = %v, want %v", tt.outcome, got, tt.want)
		}
	}
}

func TestObserveSnapshot(t *testing.T) {
	c, _ := newCollector(t)
	c.ObserveSnapshot("dev1234", time.Millisecond, 42, nil)
	c.ObserveSnapshot("dev1234", time.Millisecond, 0, errors.New("timeout"))
	c.ObserveSnapshotRead("dev1234", true)
	c.ObserveSnapshotRead("dev1234", true)
	c.ObserveSnapshotRead("dev1234", false)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.snapshotsTotal.WithLabelValues("dev1234", StatusSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.snapshotsTotal.WithLabelValues("dev1234", StatusError)))
	assert.Equal(t, 42.0, testutil.ToFloat64(c.snapshotNodes.WithLabelValues("dev1234")), "failed snapshot keeps the last count")
	assert.Equal(t, 2.0, testutil.ToFloat64(c.snapshotReads.WithLabelValues("dev1234", "hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.snapshotReads.WithLabelValues("dev1234", "miss")))
}

func TestInstrumentedSession(t *testing.T) {
	c, _ := newCollector(t)
	fx, err := connection.LoadFixture("../../testdata/sim.yaml")
	require.NoError(t, err)
	sim := connection.NewSimulator(fx, connection.SimulatorConfig{RequireConnect: true})

	s, err := session.New(c.Instrument(sim), session.Config{
		BuildRecorder:    c,
		SnapshotRecorder: c,
	})
	require.NoError(t, err)
	ctx := context.Background()

	dev, err := s.ConnectDevice(ctx, "dev8000", session.ConnectOptions{})
	require.NoError(t, err)
	_, err = dev.Snapshot(ctx, true)
	require.NoError(t, err)

	freq, err := dev.Lookup("oscs/0/freq")
	require.NoError(t, err)
	require.NoError(t, freq.Set(ctx, 1e6))

	_, err = s.ConnectDevice(ctx, "dev0001", session.ConnectOptions{})
	require.Error(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.opsTotal.WithLabelValues(OpGetBulk, StatusSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.opsTotal.WithLabelValues(OpSet, StatusSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.opsTotal.WithLabelValues(OpListNodes, StatusSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.opsTotal.WithLabelValues(OpConnect, StatusError)))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.snapshotsTotal.WithLabelValues("dev8000", StatusSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.buildsTotal.WithLabelValues("dev8000")))
	assert.Positive(t, testutil.ToFloat64(c.snapshotReads.WithLabelValues("dev8000", "hit")))

	mod, err := s.Modules().Create(ctx, "daq")
	require.NoError(t, err)
	_, ok := mod.Conn().(*Connection)
	assert.True(t, ok, "module connection is instrumented")
}

type bareConn struct {
	connection.DeviceConnection
}

func TestInstrumentUnsupported(t *testing.T) {
	c, _ := newCollector(t)
	ic := c.Instrument(bareConn{})
	ctx := context.Background()

	assert.ErrorIs(t, ic.Subscribe(ctx, "/dev1/x"), connection.ErrNotSupported)
	assert.ErrorIs(t, ic.Sync(ctx), connection.ErrNotSupported)
	_, err := ic.Poll(ctx, time.Millisecond, time.Millisecond)
	assert.ErrorIs(t, err, connection.ErrNotSupported)
	_, err = ic.CreateModule(ctx, "daq")
	assert.ErrorIs(t, err, connection.ErrNotSupported)
	assert.NoError(t, ic.ConnectDevice(ctx, "dev1", "1GbE"))
	assert.NoError(t, ic.Close())
}

func TestWatchManager(t *testing.T) {
	c, _ := newCollector(t)
	m := connection.NewManager(func(ctx context.Context) error { return nil })
	defer m.Close()
	c.WatchManager(m)

	require.NoError(t, m.Connect(context.Background()))
	if got := testutil.ToFloat64(c.connState); got != float64(connection.StateConnected) {
		t.Errorf("state = %v, want %v", got, float64(connection.StateConnected))
	}
}

func TestWatchManagerNil(t *testing.T) {
	c, _ := newCollector(t)
	assert.NotPanics(t, func() { c.WatchManager(nil) })
	if got := testutil.ToFloat64(c.connState); got != 0 {
		t.Errorf("state = %v, want 0", got)
	}
}

func TestMiddleware(t *testing.T) {
	c, reg := newCollector(t)
	h := c.Middleware(func(*http.Request) string { return "/devices/{serial}" })(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
			w.WriteHeader(http.StatusOK)
		}),
	)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/devices/dev1234", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, 1.0, testutil.ToFloat64(c.httpRequestsTotal.WithLabelValues("GET", "/devices/{serial}", "404")))
	assert.Equal(t, 0.0, testutil.ToFloat64(c.httpRequestsInFlight))

	c.RejectRateLimited()
	rec = httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, "zi_http_requests_total"), "exposition contains request counter")
	assert.True(t, strings.Contains(body, "zi_http_rate_limit_rejects_total 1"))

	n, err := testutil.GatherAndCount(reg, "zi_http_requests_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
