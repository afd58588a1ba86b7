package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/upb/apicenter/services/providers"
)

const namespace = "apicenter"

// Metrics collects dispatch metrics on its own registry.
type Metrics struct {
	registry *prometheus.Registry

	attemptsTotal   *prometheus.CounterVec
	attemptDuration *prometheus.HistogramVec
	fallbacksTotal  *prometheus.CounterVec
	exhaustedTotal  *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them, together with the
// Go runtime and process collectors, on a fresh registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		attemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "attempts_total",
				Help:      "Provider attempts by outcome",
			},
			[]string{"mode", "provider", "model", "status"},
		),
		attemptDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "attempt_duration_seconds",
				Help:      "Provider attempt latency in seconds",
				Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
			},
			[]string{"mode", "provider"},
		),
		fallbacksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fallbacks_total",
				Help:      "Dispatches answered by a fallback instead of the primary",
			},
			[]string{"mode"},
		),
		exhaustedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "exhausted_total",
				Help:      "Dispatches where every attempt failed",
			},
			[]string{"mode"},
		),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.attemptsTotal,
		m.attemptDuration,
		m.fallbacksTotal,
		m.exhaustedTotal,
	)
	return m
}

// RecordAttempt counts one adapter call.
func (m *Metrics) RecordAttempt(mode providers.Mode, provider providers.Name, model string, ok bool, elapsed time.Duration) {
	status := "success"
	if !ok {
		status = "failure"
	}
	m.attemptsTotal.WithLabelValues(string(mode), string(provider), model, status).Inc()
	m.attemptDuration.WithLabelValues(string(mode), string(provider)).Observe(elapsed.Seconds())
}

// RecordDispatch counts the end of one dispatch. fallbackIndex is negative
// when the primary answered.
func (m *Metrics) RecordDispatch(mode providers.Mode, fallbackIndex int, exhausted bool) {
	switch {
	case exhausted:
		m.exhaustedTotal.WithLabelValues(string(mode)).Inc()
	case fallbackIndex >= 0:
		m.fallbacksTotal.WithLabelValues(string(mode)).Inc()
	}
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
