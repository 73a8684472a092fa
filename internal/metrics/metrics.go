// Package metrics holds the Prometheus collectors for session resolution and
// rate limiting. Collectors are registered on an injected registerer so each
// process, and each test, owns its own set.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "sessiongate"

type Metrics struct {
	SessionLookups     *prometheus.CounterVec
	RateLimitDecisions *prometheus.CounterVec
	RateLimitErrors    *prometheus.CounterVec
	HandlerPanics      prometheus.Counter

	gatherer prometheus.Gatherer
}

// New registers the collectors on reg. surface becomes a constant label so
// the api and web processes can share dashboards.
func New(reg *prometheus.Registry, surface string) *Metrics {
	factory := promauto.With(reg)
	labels := prometheus.Labels{"surface": surface}

	return &Metrics{
		SessionLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "session_lookups_total",
			Help:        "Session resolutions by outcome (authenticated, anonymous, failed).",
			ConstLabels: labels,
		}, []string{"outcome"}),

		RateLimitDecisions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "rate_limit_decisions_total",
			Help:        "Rate limiter decisions by rule and result.",
			ConstLabels: labels,
		}, []string{"rule", "result"}),

		RateLimitErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "rate_limit_errors_total",
			Help:        "Rate limiter backend failures; the request is admitted.",
			ConstLabels: labels,
		}, []string{"rule"}),

		HandlerPanics: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "handler_panics_total",
			Help:        "Panics recovered at the outermost boundary.",
			ConstLabels: labels,
		}),

		gatherer: reg,
	}
}

// NewNop returns collectors on a private registry, for tests and tools.
func NewNop() *Metrics {
	return New(prometheus.NewRegistry(), "nop")
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
