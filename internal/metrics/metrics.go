// Package metrics exposes Prometheus instruments for queries, rebuilds and
// debounced invalidations.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/starford/quarry/internal/coordinator"
	"github.com/starford/quarry/internal/store"
)

const namespace = "quarry"

// Query outcomes.
const (
	OutcomeOK           = "ok"
	OutcomeInvalid      = "invalid_query"
	OutcomeNotFound     = "not_found"
	OutcomeUnavailable  = "unavailable"
	OutcomeInternalFail = "error"
)

// Metrics holds every instrument. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	queries            *prometheus.CounterVec
	queryDuration      *prometheus.HistogramVec
	rebuilds           *prometheus.CounterVec
	rebuildDuration    *prometheus.HistogramVec
	items              *prometheus.GaugeVec
	invalidations      *prometheus.CounterVec
	invalidationErrors *prometheus.CounterVec
}

// New registers the instruments on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		queries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "query",
			Name:      "requests_total",
			Help:      "Total number of collection queries by outcome",
		}, []string{"collection", "outcome"}),
		queryDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "query",
			Name:      "duration_seconds",
			Help:      "Collection query latency in seconds",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}, []string{"collection"}),
		rebuilds: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "rebuilds_total",
			Help:      "Total number of published snapshots by scope",
		}, []string{"collection", "scope"}),
		rebuildDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "rebuild_duration_seconds",
			Help:      "Time from invalidation to published snapshot in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10},
		}, []string{"collection", "scope"}),
		items: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "items",
			Help:      "Number of items in the current snapshot by validity",
		}, []string{"collection", "validity"}),
		invalidations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "coordinator",
			Name:      "invalidations_total",
			Help:      "Total number of debounced invalidations by event kind",
		}, []string{"kind"}),
		invalidationErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "coordinator",
			Name:      "invalidation_errors_total",
			Help:      "Total number of debounced invalidations that failed",
		}, []string{"kind"}),
	}
}

// ObserveQuery records one query.
func (m *Metrics) ObserveQuery(collection, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.queries.WithLabelValues(collection, outcome).Inc()
	if outcome == OutcomeOK {
		m.queryDuration.WithLabelValues(collection).Observe(d.Seconds())
	}
}

// HandleChange is a store listener.
func (m *Metrics) HandleChange(c store.Change) {
	if m == nil {
		return
	}
	scope := "path"
	if c.Kind == store.ChangeRebuilt {
		scope = "all"
	}
	m.rebuilds.WithLabelValues(c.Collection, scope).Inc()
	m.rebuildDuration.WithLabelValues(c.Collection, scope).Observe(c.Duration.Seconds())
	m.items.WithLabelValues(c.Collection, "valid").Set(float64(c.Valid))
	m.items.WithLabelValues(c.Collection, "invalid").Set(float64(c.Invalid))
}

// ForgetCollection drops the series of a removed collection.
func (m *Metrics) ForgetCollection(collection string) {
	if m == nil {
		return
	}
	labels := prometheus.Labels{"collection": collection}
	m.queries.DeletePartialMatch(labels)
	m.queryDuration.DeletePartialMatch(labels)
	m.rebuilds.DeletePartialMatch(labels)
	m.rebuildDuration.DeletePartialMatch(labels)
	m.items.DeletePartialMatch(labels)
}

// ObserveInvalidation matches coordinator.Options.OnInvalidate.
func (m *Metrics) ObserveInvalidation(ev coordinator.Event, err error) {
	if m == nil {
		return
	}
	m.invalidations.WithLabelValues(ev.Kind.String()).Inc()
	if err != nil {
		m.invalidationErrors.WithLabelValues(ev.Kind.String()).Inc()
	}
}
