package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/zhinst/zhinst-go/pkg/builder"
	"github.com/zhinst/zhinst-go/pkg/connection"
	"github.com/zhinst/zhinst-go/pkg/snapshot"
)

// Namespace prefixes every series.
const Namespace = "zi"

// Label values for operation outcomes.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Collector holds the registered series.
type Collector struct {
	gatherer prometheus.Gatherer

	// Connection operations
	opsTotal   *prometheus.CounterVec
	opDuration *prometheus.HistogramVec
	bulkNodes  prometheus.Histogram
	connState  prometheus.Gauge
	reconnects prometheus.Counter

	// Tree builds
	buildsTotal   *prometheus.CounterVec
	buildDuration prometheus.Histogram
	buildNodes    *prometheus.CounterVec

	// Snapshots
	snapshotsTotal   *prometheus.CounterVec
	snapshotDuration *prometheus.HistogramVec
	snapshotNodes    *prometheus.GaugeVec
	snapshotReads    *prometheus.CounterVec

	// HTTP
	httpRequestsTotal    *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestsInFlight prometheus.Gauge
	rateLimitRejects     prometheus.Counter
}

var (
	_ builder.Recorder  = (*Collector)(nil)
	_ snapshot.Recorder = (*Collector)(nil)
)

// NewCollector registers the series on reg. reg also serves Handler when it
// is a prometheus.Gatherer.
func NewCollector(reg prometheus.Registerer) *Collector {
	f := promauto.With(reg)
	c := &Collector{
		opsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "connection_operations_total",
				Help:      "Total number of data server operations",
			},
			[]string{"op", "status"},
		),
		opDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Name:      "connection_operation_duration_seconds",
				Help:      "Data server operation latency in seconds",
				Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"op"},
		),
		bulkNodes: f.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Name:      "connection_bulk_nodes",
				Help:      "Number of nodes returned by one bulk read",
				Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
			},
		),
		connState: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Name:      "connection_state",
				Help:      "Current connection state (0 disconnected, 1 connecting, 2 connected, 3 reconnecting, 4 closed)",
			},
		),
		reconnects: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "connection_reconnects_total",
				Help:      "Total number of reconnect attempts",
			},
		),
		buildsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "tree_builds_total",
				Help:      "Total number of parameter tree builds",
			},
			[]string{"prefix"},
		),
		buildDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Name:      "tree_build_duration_seconds",
				Help:      "Time taken to build a parameter tree",
				Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
		),
		buildNodes: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "tree_build_nodes_total",
				Help:      "Nodes handled by tree builds, by outcome",
			},
			[]string{"prefix", "outcome"}, // parameter, skipped, failed
		),
		snapshotsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "snapshot_total",
				Help:      "Total number of snapshot bulk reads",
			},
			[]string{"prefix", "status"},
		),
		snapshotDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Name:      "snapshot_duration_seconds",
				Help:      "Time taken by one snapshot bulk read",
				Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
			},
			[]string{"prefix"},
		),
		snapshotNodes: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Name:      "snapshot_nodes",
				Help:      "Number of nodes in the last snapshot",
			},
			[]string{"prefix"},
		),
		snapshotReads: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "snapshot_reads_total",
				Help:      "Parameter reads inside a snapshot scope, by cache result",
			},
			[]string{"prefix", "result"}, // hit or miss
		),
		httpRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		httpRequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latency in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		httpRequestsInFlight: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Name:      "http_requests_in_flight",
				Help:      "Current number of HTTP requests being processed",
			},
		),
		rateLimitRejects: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "http_rate_limit_rejects_total",
				Help:      "Total number of requests rejected due to rate limiting",
			},
		),
	}
	if g, ok := reg.(prometheus.Gatherer); ok {
		c.gatherer = g
	}
	return c
}

// Handler serves the collector's registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	if c.gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{})
}

func status(err error) string {
	if err != nil {
		return StatusError
	}
	return StatusSuccess
}

// ObserveOp records one data server operation.
func (c *Collector) ObserveOp(op string, d time.Duration, err error) {
	c.opsTotal.WithLabelValues(op, status(err)).Inc()
	c.opDuration.WithLabelValues(op).Observe(d.Seconds())
}

// ObserveBuild implements builder.Recorder.
func (c *Collector) ObserveBuild(prefix string, stats builder.Stats, d time.Duration) {
	c.buildsTotal.WithLabelValues(prefix).Inc()
	c.buildDuration.Observe(d.Seconds())
	c.buildNodes.WithLabelValues(prefix, "parameter").Add(float64(stats.Parameters))
	c.buildNodes.WithLabelValues(prefix, "skipped").Add(float64(stats.Skipped))
	c.buildNodes.WithLabelValues(prefix, "failed").Add(float64(stats.Failures))
}

// ObserveSnapshot implements snapshot.Recorder.
func (c *Collector) ObserveSnapshot(prefix string, d time.Duration, nodes int, err error) {
	c.snapshotsTotal.WithLabelValues(prefix, status(err)).Inc()
	c.snapshotDuration.WithLabelValues(prefix).Observe(d.Seconds())
	if err == nil {
		c.snapshotNodes.WithLabelValues(prefix).Set(float64(nodes))
	}
}

// ObserveSnapshotRead implements snapshot.Recorder.
func (c *Collector) ObserveSnapshotRead(prefix string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	c.snapshotReads.WithLabelValues(prefix, result).Inc()
}

// RejectRateLimited counts a request refused by the rate limiter.
func (c *Collector) RejectRateLimited() {
	c.rateLimitRejects.Inc()
}

// WatchManager tracks the state of a reconnect manager. It replaces any
// state-change and reconnecting callbacks already set on m. A nil manager
// is ignored.
func (c *Collector) WatchManager(m *connection.Manager) {
	if m == nil {
		return
	}
	c.connState.Set(float64(m.State()))
	m.OnStateChange(func(_, newState connection.State) {
		c.connState.Set(float64(newState))
	})
	m.OnReconnecting(func(int, time.Duration) {
		c.reconnects.Inc()
	})
}

// Middleware instruments HTTP requests. route names the request for the
// route label so that path parameters do not explode cardinality.
func (c *Collector) Middleware(route func(r *http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			c.httpRequestsInFlight.Inc()
			defer c.httpRequestsInFlight.Dec()

			wrapped := newResponseWriter(w)
			next.ServeHTTP(wrapped, r)

			name := r.URL.Path
			if route != nil {
				if rt := route(r); rt != "" {
					name = rt
				}
			}
			c.httpRequestsTotal.WithLabelValues(r.Method, name, strconv.Itoa(wrapped.Status())).Inc()
			c.httpRequestDuration.WithLabelValues(r.Method, name).Observe(time.Since(start).Seconds())
		})
	}
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

func newResponseWriter(w http.ResponseWriter) *responseWriter {
	return &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
}

// WriteHeader only forwards the first call.
func (rw *responseWriter) WriteHeader(statusCode int) {
	if rw.written {
		return
	}
	rw.statusCode = statusCode
	rw.ResponseWriter.WriteHeader(statusCode)
	rw.written = true
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if !rw.written {
		rw.WriteHeader(http.StatusOK)
	}
	return rw.ResponseWriter.Write(b)
}

// Status returns the status code that was written.
func (rw *responseWriter) Status() int {
	return rw.statusCode
}
