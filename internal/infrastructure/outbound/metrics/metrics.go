// Package metrics exposes request-serving counters in the Prometheus format.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sophialabs/stubkit/internal/infrastructure/ports"
)

var _ ports.Metrics = (*Prometheus)(nil)

// Prometheus records request outcomes on its own registry, so several
// servers in one process never collide.
type Prometheus struct {
	registry *prometheus.Registry

	requests *prometheus.CounterVec
	stubHits *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// New creates the collectors and registers them with a fresh registry.
func New() *Prometheus {
	p := &Prometheus{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "stubkit",
				Name:      "requests_total",
				Help:      "Requests served, by method, outcome and status code.",
			},
			[]string{"method", "outcome", "status_code"},
		),
		stubHits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "stubkit",
				Name:      "stub_hits_total",
				Help:      "Requests matched, by stub ID.",
			},
			[]string{"stub_id"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "stubkit",
				Name:      "request_duration_seconds",
				Help:      "Time spent serving a request, including configured delays.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"outcome"},
		),
	}

	p.registry.MustRegister(
		p.requests,
		p.stubHits,
		p.duration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return p
}

// ObserveRequest records one served request.
func (p *Prometheus) ObserveRequest(method, outcome, stubID string, status int, elapsed time.Duration) {
	p.requests.WithLabelValues(method, outcome, strconv.Itoa(status)).Inc()
	if stubID != "" {
		p.stubHits.WithLabelValues(stubID).Inc()
	}
	p.duration.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

// Handler serves the registry in the Prometheus text format.
func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (p *Prometheus) Registry() *prometheus.Registry {
	return p.registry
}
