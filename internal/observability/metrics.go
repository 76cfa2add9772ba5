package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "flood_risk"

// Metrics holds the Prometheus collectors for the prediction service.
type Metrics struct {
	Predictions  *prometheus.CounterVec // labels: outcome={success,<error code>}
	Acquisitions *prometheus.CounterVec // labels: source={live,archived,failed}
	Explanations *prometheus.CounterVec // labels: mode={llm,default}
	BatchSize    prometheus.Histogram

	// Upstream calls.
	UpstreamRequests *prometheus.CounterVec   // labels: upstream={nominatim,openweathermap,llm}, outcome={success,error,empty}
	UpstreamDuration *prometheus.HistogramVec // labels: upstream
	GeocodeCache     *prometheus.CounterVec   // labels: result={hit,miss}

	ArchiveRefreshes *prometheus.CounterVec // labels: outcome={stored,skipped,error}
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.Predictions,
		m.Acquisitions,
		m.Explanations,
		m.BatchSize,
		m.UpstreamRequests,
		m.UpstreamDuration,
		m.GeocodeCache,
		m.ArchiveRefreshes,
	)
	return m
}

// NewMetricsForTesting creates unregistered Metrics so tests can build as many as they like.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		Predictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "predictions_total",
			Help:      "Predictions by outcome.",
		}, []string{"outcome"}),
		Acquisitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "forecast_acquisitions_total",
			Help:      "Forecast acquisitions by the source that served them.",
		}, []string{"source"}),
		Explanations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "explanations_total",
			Help:      "Contextual explanations by analysis mode.",
		}, []string{"mode"}),
		BatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_size",
			Help:      "Localities per batch prediction request.",
			Buckets:   []float64{1, 2, 4, 8, 16, 32},
		}),
		UpstreamRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_requests_total",
			Help:      "Calls to external services by upstream and outcome.",
		}, []string{"upstream", "outcome"}),
		UpstreamDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upstream_request_duration_seconds",
			Help:      "External service request duration in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"upstream"}),
		GeocodeCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geocode_cache_total",
			Help:      "Coordinate cache lookups by result.",
		}, []string{"result"}),
		ArchiveRefreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "archive_refreshes_total",
			Help:      "Per-locality archive refresh jobs by outcome.",
		}, []string{"outcome"}),
	}
}
