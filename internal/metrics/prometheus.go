// Package metrics exposes dispatcher activity as Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusMetrics holds all Prometheus metrics for the dispatcher.
// All recording methods are safe to call on a nil receiver, so components
// can run without metrics wired in (tests, MCP tooling).
type PrometheusMetrics struct {
	// Counters
	CyclesTotal         *prometheus.CounterVec
	ResolveAttempts     *prometheus.CounterVec
	ProxiesMarkedDead   prometheus.Counter
	LogFlushesTotal     *prometheus.CounterVec
	LogEntriesPersisted prometheus.Counter

	// Gauges
	LogBuffered   prometheus.Gauge
	ActiveProxies prometheus.Gauge

	// Histograms
	TxValueNative  *prometheus.HistogramVec
	ConfirmLatency prometheus.Histogram
}

// NewPrometheusMetrics creates and registers all Prometheus metrics.
func NewPrometheusMetrics(reg prometheus.Registerer) *PrometheusMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	factory := promauto.With(reg)

	return &PrometheusMetrics{
		CyclesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pulse_cycles_total",
				Help: "Dispatch cycles by outcome",
			},
			[]string{"outcome"},
		),

		ResolveAttempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pulse_resolve_attempts_total",
				Help: "Endpoint connection attempts by result and mode (direct/proxy)",
			},
			[]string{"result", "mode"},
		),

		ProxiesMarkedDead: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "pulse_proxies_marked_dead_total",
				Help: "Proxies added to or re-marked in the dead-proxy set",
			},
		),

		LogFlushesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pulse_log_flushes_total",
				Help: "Transaction log flushes by result",
			},
			[]string{"result"},
		),

		LogEntriesPersisted: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "pulse_log_entries_flushed_total",
				Help: "Transaction log entries written by fully successful flushes",
			},
		),

		LogBuffered: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "pulse_log_buffered",
				Help: "Transaction log entries waiting for the next flush",
			},
		),

		ActiveProxies: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "pulse_active_proxies",
				Help: "Proxies in the active pool",
			},
		),

		TxValueNative: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pulse_tx_value_native",
				Help:    "Submitted transfer value in native units",
				Buckets: []float64{0, 0.0001, 0.001, 0.005, 0.01, 0.015, 0.02},
			},
			[]string{"action"},
		),

		ConfirmLatency: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "pulse_confirm_latency_seconds",
				Help:    "Time from submission to receipt",
				Buckets: []float64{0.5, 1, 2, 3, 5, 7.5, 10},
			},
		),
	}
}

// CycleOutcome counts a finished cycle.
func (m *PrometheusMetrics) CycleOutcome(outcome string) {
	if m == nil {
		return
	}
	m.CyclesTotal.WithLabelValues(outcome).Inc()
}

// ResolveAttempt counts one endpoint attempt.
func (m *PrometheusMetrics) ResolveAttempt(mode, result string) {
	if m == nil {
		return
	}
	m.ResolveAttempts.WithLabelValues(result, mode).Inc()
}

// ProxyMarkedDead counts a dead-proxy mark.
func (m *PrometheusMetrics) ProxyMarkedDead() {
	if m == nil {
		return
	}
	m.ProxiesMarkedDead.Inc()
}

// TxSubmitted records the value of a submitted transfer.
func (m *PrometheusMetrics) TxSubmitted(action string, value float64) {
	if m == nil {
		return
	}
	m.TxValueNative.WithLabelValues(action).Observe(value)
}

// TxConfirmed records submission-to-receipt latency.
func (m *PrometheusMetrics) TxConfirmed(seconds float64) {
	if m == nil {
		return
	}
	m.ConfirmLatency.Observe(seconds)
}

// LogFlushed records a flush result. Entries are counted only when every sink
// accepted the batch.
func (m *PrometheusMetrics) LogFlushed(entries int, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.LogFlushesTotal.WithLabelValues("error").Inc()
		return
	}
	m.LogFlushesTotal.WithLabelValues("success").Inc()
	m.LogEntriesPersisted.Add(float64(entries))
}

// SetBuffered sets the pending log entry gauge.
func (m *PrometheusMetrics) SetBuffered(n int) {
	if m == nil {
		return
	}
	m.LogBuffered.Set(float64(n))
}

// SetActiveProxies sets the active proxy pool gauge.
func (m *PrometheusMetrics) SetActiveProxies(n int) {
	if m == nil {
		return
	}
	m.ActiveProxies.Set(float64(n))
}
