// Package metrics exposes Prometheus instrumentation for the live session
// and historical client.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the client.
type Metrics struct {
	FramesTotal      *prometheus.CounterVec // labels: kind
	FramesDropped    *prometheus.CounterVec // labels: kind
	Reconnects       prometheus.Counter
	Heartbeats       prometheus.Counter
	HeartbeatGapSecs prometheus.Gauge
	ActiveSymbols    prometheus.Gauge
	HistRequests     *prometheus.CounterVec // labels: endpoint, outcome
	HubDrops         prometheus.Counter

	registry *prometheus.Registry
}

// New registers and returns all Prometheus metrics on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		FramesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "truedata_frames_total",
			Help: "Inbound websocket frames by kind",
		}, []string{"kind"}),
		FramesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "truedata_frames_dropped_total",
			Help: "Inbound frames dropped (malformed or unmapped symbol id)",
		}, []string{"kind"}),
		Reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "truedata_reconnects_total",
			Help: "Completed websocket reconnects",
		}),
		Heartbeats: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "truedata_heartbeats_total",
			Help: "Server heartbeats received",
		}),
		HeartbeatGapSecs: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "truedata_heartbeat_gap_seconds",
			Help: "Largest heartbeat gap observed across the last reconnect",
		}),
		ActiveSymbols: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "truedata_active_symbols",
			Help: "Symbols currently subscribed",
		}),
		HistRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "truedata_hist_requests_total",
			Help: "Historical REST requests by endpoint and outcome",
		}, []string{"endpoint", "outcome"}),
		HubDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "truedata_hub_dropped_ticks_total",
			Help: "Ticks dropped by slow hub subscribers",
		}),
		registry: reg,
	}

	reg.MustRegister(
		m.FramesTotal, m.FramesDropped, m.Reconnects, m.Heartbeats,
		m.HeartbeatGapSecs, m.ActiveSymbols, m.HistRequests, m.HubDrops,
	)
	return m
}

// Handler returns an HTTP handler serving the metrics registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Frame records an inbound frame of the given kind. Nil-safe.
func (m *Metrics) Frame(kind string) {
	if m != nil {
		m.FramesTotal.WithLabelValues(kind).Inc()
	}
}

// Dropped records a dropped frame of the given kind. Nil-safe.
func (m *Metrics) Dropped(kind string) {
	if m != nil {
		m.FramesDropped.WithLabelValues(kind).Inc()
	}
}

// Heartbeat records a received heartbeat. Nil-safe.
func (m *Metrics) Heartbeat() {
	if m != nil {
		m.Heartbeats.Inc()
	}
}

// Reconnect records a completed reconnect and the gap it spanned. Nil-safe.
func (m *Metrics) Reconnect(gapSeconds float64) {
	if m != nil {
		m.Reconnects.Inc()
		m.HeartbeatGapSecs.Set(gapSeconds)
	}
}

// SetActiveSymbols records the current subscription count. Nil-safe.
func (m *Metrics) SetActiveSymbols(n int) {
	if m != nil {
		m.ActiveSymbols.Set(float64(n))
	}
}

// HistRequest records a historical REST call outcome. Nil-safe.
func (m *Metrics) HistRequest(endpoint, outcome string) {
	if m != nil {
		m.HistRequests.WithLabelValues(endpoint, outcome).Inc()
	}
}

// HubDrop records a tick dropped by a slow subscriber. Nil-safe.
func (m *Metrics) HubDrop() {
	if m != nil {
		m.HubDrops.Inc()
	}
}
