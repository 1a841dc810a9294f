// Package metrics exposes Prometheus instrumentation for sessions, the
// tree builder, the snapshot cache and the HTTP surface.
//
// A Collector registers its series on the registerer it is created with.
// Pass prometheus.DefaultRegisterer for process-wide metrics or a fresh
// prometheus.NewRegistry() in tests.
package metrics
