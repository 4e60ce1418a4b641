// Package metrics exports probe outcomes as Prometheus series.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hazz-dev/sitewatch/internal/probe"
)

const namespace = "sitewatch"

// Metrics holds the collectors fed by Observe.
type Metrics struct {
	up                  prometheus.Gauge
	responseTime        prometheus.Histogram
	checks              *prometheus.CounterVec
	consecutiveFailures prometheus.Gauge

	mu       sync.Mutex
	failures int
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		up: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "up",
			Help:      "Whether the last probe cycle succeeded (1) or failed (0).",
		}),
		responseTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "response_time_seconds",
			Help:      "Latency of successful probe attempts in seconds.",
			Buckets:   prometheus.DefBuckets,
		}),
		checks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checks_total",
			Help:      "Probe cycles by result.",
		}, []string{"result"}),
		consecutiveFailures: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "consecutive_failures",
			Help:      "Number of consecutive failed probe cycles.",
		}),
	}
	reg.MustRegister(m.up, m.responseTime, m.checks, m.consecutiveFailures)
	return m
}

// Observe records one outcome. It matches history.Hook.
func (m *Metrics) Observe(o probe.Outcome) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if o.Up {
		m.failures = 0
		m.up.Set(1)
		m.responseTime.Observe(o.Latency.Seconds())
		m.checks.WithLabelValues("up").Inc()
	} else {
		m.failures++
		m.up.Set(0)
		m.checks.WithLabelValues("down").Inc()
	}
	m.consecutiveFailures.Set(float64(m.failures))
}

// Handler serves the series gathered by g in the Prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
