// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome label values.
const (
	OutcomeSuccess  = "success"
	OutcomeRejected = "rejected"
	OutcomeReused   = "reused"
	OutcomeError    = "error"
)

type Metrics struct {
	LoginAttempts       *prometheus.CounterVec
	RefreshAttempts     *prometheus.CounterVec
	RegistrySwept       prometheus.Counter
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	gatherer prometheus.Gatherer
}

// New creates the collectors and registers them with a fresh registry, so
// several instances can coexist in one process (tests, mostly).
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		LoginAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "authcore_login_attempts_total",
			Help: "Login attempts by outcome.",
		}, []string{"outcome"}),
		RefreshAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "authcore_refresh_total",
			Help: "Refresh attempts by outcome.",
		}, []string{"outcome"}),
		RegistrySwept: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "authcore_registry_swept_total",
			Help: "Expired refresh token entries removed by the sweeper.",
		}),
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "authcore_http_requests_total",
			Help: "HTTP requests by method, route and status.",
		}, []string{"method", "path", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "authcore_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2},
		}, []string{"method", "path"}),
		gatherer: reg,
	}

	reg.MustRegister(
		m.LoginAttempts,
		m.RefreshAttempts,
		m.RegistrySwept,
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
