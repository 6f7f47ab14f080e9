// Package metrics exposes lifecycle counters in Prometheus format.
package metrics

import (
	"context"

	"license-server/internal/model"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "license_server"

// Metrics counts lifecycle events. It implements the service recorder
// interface and owns its registry so tests can create as many as they need.
type Metrics struct {
	registry    *prometheus.Registry
	activations prometheus.Counter
	revocations prometheus.Counter
	heartbeats  *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		activations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "activations_total",
			Help:      "Licenses activated.",
		}),
		revocations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "revocations_total",
			Help:      "Revoke calls that matched a license.",
		}),
		heartbeats: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "heartbeats_total",
			Help:      "Heartbeats by verdict.",
		}, []string{"result"}),
	}
	m.registry.MustRegister(
		m.activations,
		m.revocations,
		m.heartbeats,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Record(_ context.Context, event model.LicenseEvent) error {
	switch event.Action {
	case model.ActionActivate:
		m.activations.Inc()
	case model.ActionRevoke:
		m.revocations.Inc()
	case model.ActionHeartbeat:
		m.heartbeats.WithLabelValues(event.Result).Inc()
	}
	return nil
}

// Handler serves the registry on a fiber route.
func (m *Metrics) Handler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
}
