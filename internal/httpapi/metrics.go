package httpapi

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// serverMetrics carries its own registry so two servers in one process do
// not collide on metric registration.
type serverMetrics struct {
	registry *prometheus.Registry
	requests *prometheus.CounterVec
}

func newServerMetrics() *serverMetrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "zensync",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "API requests by method, route, and status code.",
	}, []string{"method", "route", "status"})
	registry.MustRegister(requests)
	return &serverMetrics{registry: registry, requests: requests}
}

func (m *serverMetrics) observe(method, route string, status int) {
	m.requests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
}

func (m *serverMetrics) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
