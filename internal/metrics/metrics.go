// Package metrics exposes session activity as Prometheus metrics and serves
// them, together with the installed filter listing, over HTTP.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "gowfp"

// Metrics holds the counters updated by sessions. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	FiltersInstalled prometheus.Counter
	FiltersRemoved   prometheus.Counter
	RemovalFailures  prometheus.Counter
	InstallFailures  *prometheus.CounterVec
	OpenSessions     prometheus.Gauge
}

// New creates the metrics on their own registry, so several instances can
// coexist in one process.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		FiltersInstalled: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "filters_installed_total",
			Help:      "Filters installed in the native engine.",
		}),
		FiltersRemoved: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "filters_removed_total",
			Help:      "Filters removed during session cleanup.",
		}),
		RemovalFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "filter_removal_failures_total",
			Help:      "Filters that could not be removed during session cleanup.",
		}),
		InstallFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "filter_add_failures_total",
			Help:      "Rejected AddFilter calls by stage.",
		}, []string{"stage"}),
		OpenSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_open",
			Help:      "Sessions currently holding an engine connection.",
		}),
	}
}

// Registry returns the underlying Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Installed() {
	if m != nil {
		m.FiltersInstalled.Inc()
	}
}

func (m *Metrics) Removed() {
	if m != nil {
		m.FiltersRemoved.Inc()
	}
}

func (m *Metrics) RemovalFailed() {
	if m != nil {
		m.RemovalFailures.Inc()
	}
}

// AddFailed counts a rejected AddFilter at stage ("parse" or "install").
func (m *Metrics) AddFailed(stage string) {
	if m != nil {
		m.InstallFailures.WithLabelValues(stage).Inc()
	}
}

func (m *Metrics) SessionOpened() {
	if m != nil {
		m.OpenSessions.Inc()
	}
}

func (m *Metrics) SessionClosed() {
	if m != nil {
		m.OpenSessions.Dec()
	}
}
