// Package metrics exposes authentication and HTTP counters to Prometheus.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/evnchn/3D-Print-Me/domain/model"
)

// PrometheusMetrics owns a private registry so tests and multiple servers never collide.
type PrometheusMetrics struct {
	registry *prometheus.Registry

	authTotal       *prometheus.CounterVec
	tokensMinted    *prometheus.CounterVec
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

func NewPrometheusMetrics() *PrometheusMetrics {
	m := &PrometheusMetrics{
		registry: prometheus.NewRegistry(),
		authTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "portal_auth_operations_total",
				Help: "Credential and token operations by operation and outcome",
			},
			[]string{"operation", "outcome"},
		),
		tokensMinted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "portal_tokens_minted_total",
				Help: "Tokens issued by kind",
			},
			[]string{"kind"},
		),
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "portal_http_requests_total",
				Help: "HTTP requests by route, method and status",
			},
			[]string{"route", "method", "status"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "portal_http_request_duration_seconds",
				Help:    "HTTP request latency by route",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route"},
		),
	}

	m.registry.MustRegister(
		m.authTotal,
		m.tokensMinted,
		m.requestsTotal,
		m.requestDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// RecordAuth labels failures with their error kind, successes with "ok"
func (m *PrometheusMetrics) RecordAuth(operation string, kind model.ErrorKind, ok bool) {
	outcome := "ok"
	if !ok {
		outcome = kind.String()
	}
	m.authTotal.WithLabelValues(operation, outcome).Inc()
}

func (m *PrometheusMetrics) RecordTokenMinted(kind model.TokenKind) {
	m.tokensMinted.WithLabelValues(string(kind)).Inc()
}

func (m *PrometheusMetrics) ObserveRequest(route, method string, status int, elapsed time.Duration) {
	m.requestsTotal.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(route).Observe(elapsed.Seconds())
}

func (m *PrometheusMetrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *PrometheusMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
