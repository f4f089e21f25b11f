package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the geocoder service.
type Metrics struct {
	// Geocoding metrics.
	GeocodeRequests  *prometheus.CounterVec   // labels: provider, method={geocode,reverse,batch}, outcome={success,empty,error}
	GeocodeDuration  *prometheus.HistogramVec // labels: provider, method
	BatchQueries     prometheus.Histogram
	TokenRefreshes   *prometheus.CounterVec   // labels: provider
	UpstreamDuration *prometheus.HistogramVec // labels: host
	UpstreamStatus   *prometheus.CounterVec   // labels: host, status
	TransportErrors  *prometheus.CounterVec   // labels: code

	// Streaming worker metrics.
	MessagesConsumed        prometheus.Counter
	MessagesProduced        prometheus.Counter
	DecodeErrors            prometheus.Counter
	PipelineRunning         prometheus.Gauge
	BatchSize               prometheus.Histogram
	BatchProcessingDuration prometheus.Histogram
}

// NewMetrics creates and registers all service metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.GeocodeRequests,
		m.GeocodeDuration,
		m.BatchQueries,
		m.TokenRefreshes,
		m.UpstreamDuration,
		m.UpstreamStatus,
		m.TransportErrors,
		m.MessagesConsumed,
		m.MessagesProduced,
		m.DecodeErrors,
		m.PipelineRunning,
		m.BatchSize,
		m.BatchProcessingDuration,
	)
	return m
}

// NewMetricsForTesting creates unregistered Metrics to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		GeocodeRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "geocoder",
			Name:      "requests_total",
			Help:      "Geocoding calls by provider, method and outcome.",
		}, []string{"provider", "method", "outcome"}),
		GeocodeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "geocoder",
			Name:      "request_duration_seconds",
			Help:      "End-to-end duration of a geocoding call including post-processing.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"provider", "method"}),
		BatchQueries: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "geocoder",
			Name:      "batch_queries",
			Help:      "Number of queries per batchGeocode call.",
			Buckets:   []float64{1, 5, 10, 25, 50, 100, 250},
		}),
		TokenRefreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "geocoder",
			Name:      "token_refreshes_total",
			Help:      "Access token refreshes for token-based providers.",
		}, []string{"provider"}),
		UpstreamDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "geocoder",
			Name:      "upstream_duration_seconds",
			Help:      "Upstream HTTP request duration in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"host"}),
		UpstreamStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "geocoder",
			Name:      "upstream_responses_total",
			Help:      "Upstream HTTP responses by host and status code.",
		}, []string{"host", "status"}),
		TransportErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "geocoder",
			Name:      "transport_errors_total",
			Help:      "Upstream requests that failed below HTTP, by error code.",
		}, []string{"code"}),
		MessagesConsumed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "geocoder",
			Name:      "messages_consumed_total",
			Help:      "Total request messages read from the source topic.",
		}),
		MessagesProduced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "geocoder",
			Name:      "messages_produced_total",
			Help:      "Total response messages written to the sink topic.",
		}),
		DecodeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "geocoder",
			Name:      "decode_errors_total",
			Help:      "Request messages skipped because they could not be decoded.",
		}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "geocoder",
			Name:      "pipeline_running",
			Help:      "1 when the streaming worker is active, 0 when shut down.",
		}),
		BatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "geocoder",
			Name:      "batch_size",
			Help:      "Number of messages per batch extracted from Kafka.",
			Buckets:   []float64{1, 5, 10, 20, 30, 40, 50, 75, 100},
		}),
		BatchProcessingDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "geocoder",
			Name:      "batch_processing_duration_seconds",
			Help:      "Duration of a complete batch extract-geocode-load cycle.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10},
		}),
	}
}
