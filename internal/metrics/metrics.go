// Package metrics provides Prometheus counters for the memory view.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "cortex_vault"

// Metrics holds the view's counters on a private registry so several
// instances (one per test, say) never collide.
type Metrics struct {
	reg *prometheus.Registry

	FetchTotal     prometheus.Counter
	FetchErrors    *prometheus.CounterVec
	StaleDiscarded prometheus.Counter
	DeleteTotal    prometheus.Counter
	DeleteFailed   prometheus.Counter
	RolledBack     prometheus.Counter
	Projections    prometheus.Counter
	FetchDuration  prometheus.Histogram
}

// New creates and registers the counters.
func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		FetchTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_total",
			Help:      "Collection fetches started (list and remote search).",
		}),
		FetchErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_errors_total",
			Help:      "Failed collection fetches by error kind.",
		}, []string{"kind"}),
		StaleDiscarded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stale_responses_total",
			Help:      "Fetch responses discarded because a newer fetch was started.",
		}),
		DeleteTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "delete_total",
			Help:      "Deletes requested.",
		}),
		DeleteFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "delete_failed_total",
			Help:      "Deletes the backend rejected or never answered.",
		}),
		RolledBack: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "delete_rolled_back_total",
			Help:      "Optimistic removals reverted after a failed delete.",
		}),
		Projections: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "projections_total",
			Help:      "Display projections computed.",
		}),
		FetchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fetch_duration_seconds",
			Help:      "Backend fetch latency in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
	}
	m.reg.MustRegister(
		m.FetchTotal,
		m.FetchErrors,
		m.StaleDiscarded,
		m.DeleteTotal,
		m.DeleteFailed,
		m.RolledBack,
		m.Projections,
		m.FetchDuration,
	)
	return m
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}
