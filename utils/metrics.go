package utils

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "pageview_dashboard"

// MetricSet holds the Prometheus collectors exported on /metrics.
type MetricSet struct {
	// Rows rejected at the query boundary or on import, by schema name
	ValidationFailures *prometheus.CounterVec
	// Views written by the collector middleware
	PageViewsRecorded prometheus.Counter
	// Rows written by the import endpoint
	RowsImported prometheus.Counter
	// Cache lookups by result (hit|miss|stale)
	CacheLookups *prometheus.CounterVec
	// Rows deleted by the retention pruner
	RowsPruned prometheus.Counter
}

// Metrics is the process-wide metric set.
var Metrics = newMetricSet(prometheus.DefaultRegisterer)

func newMetricSet(reg prometheus.Registerer) *MetricSet {
	f := promauto.With(reg)
	return &MetricSet{
		ValidationFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "validation_failures_total",
			Help:      "Rows that failed schema validation",
		}, []string{"schema"}),
		PageViewsRecorded: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "pageviews_recorded_total",
			Help:      "Page views recorded by the collector middleware",
		}),
		RowsImported: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "rows_imported_total",
			Help:      "Daily rows written by the import endpoint",
		}),
		CacheLookups: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "cache_lookups_total",
			Help:      "Aggregate cache lookups by result",
		}, []string{"result"}),
		RowsPruned: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "rows_pruned_total",
			Help:      "Rows deleted by the retention pruner",
		}),
	}
}
